package catalog

import (
	"log/slog"
	"sort"
)

// Graph holds the prerequisite DAG over a topic catalog.
type Graph struct {
	topics map[string]Topic
}

// NewGraph builds a graph from the given topics.
func NewGraph(topics []Topic) *Graph {
	g := &Graph{topics: make(map[string]Topic, len(topics))}
	for _, t := range topics {
		g.topics[t.ID] = t
	}
	return g
}

// Sequence returns topics ordered so that no topic precedes any of its
// prerequisites, ties broken by descending priority. boost adds to a
// topic's base importance when ranking (used for diagnostic-driven
// prioritization). Prerequisite IDs missing from the catalog are skipped
// with a warning; MissingPrerequisites reports them.
func (g *Graph) Sequence(boost map[string]int) []Topic {
	seeds := make([]Topic, 0, len(g.topics))
	for _, t := range g.topics {
		seeds = append(seeds, t)
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		pi, pj := g.priority(seeds[i], boost), g.priority(seeds[j], boost)
		if pi != pj {
			return pi > pj
		}
		return seeds[i].ID < seeds[j].ID
	})

	visited := make(map[string]bool, len(seeds))
	ordered := make([]Topic, 0, len(seeds))

	var visit func(t Topic)
	visit = func(t Topic) {
		if visited[t.ID] {
			return
		}
		visited[t.ID] = true

		prereqs := make([]Topic, 0, len(t.Prerequisites))
		for _, id := range t.Prerequisites {
			p, ok := g.topics[id]
			if !ok {
				slog.Warn("topic references unknown prerequisite", "topic", t.ID, "prerequisite", id)
				continue
			}
			prereqs = append(prereqs, p)
		}
		sort.SliceStable(prereqs, func(i, j int) bool {
			return g.priority(prereqs[i], boost) > g.priority(prereqs[j], boost)
		})
		for _, p := range prereqs {
			visit(p)
		}
		ordered = append(ordered, t)
	}

	for _, t := range seeds {
		visit(t)
	}
	return ordered
}

// MissingPrerequisites maps topic IDs to prerequisite IDs that are absent
// from the catalog.
func (g *Graph) MissingPrerequisites() map[string][]string {
	missing := make(map[string][]string)
	for id, t := range g.topics {
		for _, p := range t.Prerequisites {
			if _, ok := g.topics[p]; !ok {
				missing[id] = append(missing[id], p)
			}
		}
	}
	return missing
}

func (g *Graph) priority(t Topic, boost map[string]int) int {
	return t.Importance + boost[t.ID]
}
