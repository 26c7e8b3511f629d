// Package catalog loads the topic catalog from YAML files and orders
// topics so prerequisites are always studied first.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Loader loads and caches topic content from the filesystem.
type Loader struct {
	rootDir string
	topics  map[string]Topic
	mu      sync.RWMutex
}

// NewLoader creates a catalog loader and loads all topic files under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		topics:  make(map[string]Topic),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "topics", len(l.topics))
	return l, nil
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// AllTopics returns all loaded topics.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	return topics
}

func (l *Loader) loadAll() error {
	var paths []string
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, path := range paths {
		g.Go(func() error {
			return l.loadTopic(path)
		})
	}
	return g.Wait()
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := doc["id"]; !ok {
		return nil // Not a topic file
	}

	if err := validateTopicDoc(doc); err != nil {
		slog.Warn("skipping topic failing schema validation", "path", path, "error", err)
		return nil
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping undecodable topic", "path", path, "error", err)
		return nil
	}
	if topic.Importance == 0 {
		topic.Importance = 5
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	l.mu.Unlock()

	return nil
}
