package catalog

import "fmt"

// Difficulty classifies how demanding a topic or task is.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Level maps a difficulty to its numeric rank (EASY=0, MEDIUM=1, HARD=2).
func (d Difficulty) Level() int {
	switch d {
	case Medium:
		return 1
	case Hard:
		return 2
	default:
		return 0
	}
}

// FromLevel returns the difficulty for a numeric rank, clamping out-of-range values.
func FromLevel(level int) Difficulty {
	switch {
	case level <= 0:
		return Easy
	case level == 1:
		return Medium
	default:
		return Hard
	}
}

// ParseDifficulty validates a difficulty string.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case Easy, Medium, Hard:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Topic represents one unit of exam content loaded from YAML.
type Topic struct {
	ID               string     `yaml:"id"`
	Name             string     `yaml:"name"`
	Category         string     `yaml:"category"`
	Difficulty       Difficulty `yaml:"difficulty"`
	Importance       int        `yaml:"importance"`        // 1-10
	EstimatedMinutes int        `yaml:"estimated_minutes"` // total study time
	Prerequisites    []string   `yaml:"prerequisites"`
}
