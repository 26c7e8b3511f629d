// Package insight turns adaptation outcomes into human-readable study
// advice. The Annotator seam lets deployments plug in an external
// generator; the built-in one is template-based.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-n-ai/studyplan/internal/adapt"
)

// Annotator produces a learner-facing note for one adaptation run.
type Annotator interface {
	Annotate(ctx context.Context, res *adapt.Result) (string, error)
}

// Nop returns no advice. Used when no annotator is configured.
type Nop struct{}

func (Nop) Annotate(context.Context, *adapt.Result) (string, error) {
	return "", nil
}

// Template renders a fixed-form note from the run summary.
type Template struct{}

func (Template) Annotate(_ context.Context, res *adapt.Result) (string, error) {
	if res == nil || len(res.Actions) == 0 {
		return "Your plan is on track. Keep going!", nil
	}

	var b strings.Builder
	b.WriteString("Your study plan was updated:\n")
	for _, line := range summaryLines(res) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return b.String(), nil
}

func summaryLines(res *adapt.Result) []string {
	var lines []string
	if n := res.Summary[adapt.ActionRescheduleMissed]; n > 0 {
		lines = append(lines, fmt.Sprintf("%d missed %s rescheduled", n, plural(n, "task was", "tasks were")))
	}
	if n := res.Summary[adapt.ActionAdjustDifficulty]; n > 0 {
		lines = append(lines, fmt.Sprintf("difficulty retuned on %d %s", n, plural(n, "task", "tasks")))
	}
	if n := res.Summary[adapt.ActionScheduleReview]; n > 0 {
		lines = append(lines, fmt.Sprintf("%d new review %s added", n, plural(n, "session", "sessions")))
	}
	if n := res.Summary[adapt.ActionInjectRemedial]; n > 0 {
		lines = append(lines, fmt.Sprintf("%d remedial %s added for topics that need attention", n, plural(n, "session", "sessions")))
	}
	if n := res.Summary[adapt.ActionRebalanceDay]; n > 0 {
		lines = append(lines, fmt.Sprintf("%d %s moved to lighter days", n, plural(n, "task", "tasks")))
	}
	if n := res.Summary[adapt.ActionAdaptPattern]; n > 0 {
		lines = append(lines, "sessions shifted toward the hours you actually study")
	}
	return lines
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Mock is a test double that captures the last result it saw.
type Mock struct {
	Response   string
	Err        error
	LastResult *adapt.Result
}

func (m *Mock) Annotate(_ context.Context, res *adapt.Result) (string, error) {
	m.LastResult = res
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
