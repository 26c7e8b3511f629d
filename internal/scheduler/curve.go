package scheduler

import (
	"sort"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

// ratio holds the target EASY/MEDIUM/HARD share for one temporal third.
type ratio struct {
	easy, medium, hard float64
}

// Curve tables: one triple per temporal third of the timeline. The default
// curve eases in and finishes hard; diagnostic bands shift the whole ramp.
var (
	defaultCurve = [3]ratio{
		{0.7, 0.3, 0.0},
		{0.2, 0.6, 0.2},
		{0.0, 0.3, 0.7},
	}
	// High scorers (>=80) ramp toward 0.1/0.3/0.6.
	highScorerCurve = [3]ratio{
		{0.4, 0.4, 0.2},
		{0.2, 0.4, 0.4},
		{0.1, 0.3, 0.6},
	}
	// Low scorers (<60) ramp toward 0.5/0.4/0.1.
	lowScorerCurve = [3]ratio{
		{0.8, 0.2, 0.0},
		{0.6, 0.3, 0.1},
		{0.5, 0.4, 0.1},
	}
)

// Curve reassigns task difficulty so the schedule follows a temporal
// progression instead of the topics' intrinsic labels.
type Curve struct{}

// NewCurve creates a difficulty curve.
func NewCurve() *Curve {
	return &Curve{}
}

// Apply relabels every non-review task. diagnosticScore personalizes the
// ramp when present; nil keeps the default curve.
func (c *Curve) Apply(s *Schedule, diagnosticScore *float64) {
	table := defaultCurve
	if diagnosticScore != nil {
		switch {
		case *diagnosticScore >= 80:
			table = highScorerCurve
		case *diagnosticScore < 60:
			table = lowScorerCurve
		}
	}

	thirds := splitThirds(s.Days)
	for i, days := range thirds {
		c.applyThird(days, table[i])
	}
}

// applyThird relabels the third's tasks to hit the target proportions:
// sort by current difficulty, then relabel the first block EASY, the next
// MEDIUM, and the remainder HARD. Sorting first preserves relative order,
// so intrinsically harder material stays harder.
func (c *Curve) applyThird(days []*Day, r ratio) {
	var specs []*TaskSpec
	for _, d := range days {
		for _, spec := range d.Specs {
			if !spec.IsReview() {
				specs = append(specs, spec)
			}
		}
	}
	if len(specs) == 0 {
		return
	}

	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Difficulty.Level() < specs[j].Difficulty.Level()
	})

	n := len(specs)
	easyCount := int(float64(n) * r.easy)
	mediumCount := int(float64(n) * r.medium)

	for i, spec := range specs {
		switch {
		case i < easyCount:
			spec.Difficulty = catalog.Easy
		case i < easyCount+mediumCount:
			spec.Difficulty = catalog.Medium
		default:
			spec.Difficulty = catalog.Hard
		}
	}

	// Rounding can push everything into HARD when the hard share is zero;
	// fold the run-off back into the largest configured band.
	if r.hard == 0 {
		for _, spec := range specs[easyCount+mediumCount:] {
			if r.medium >= r.easy {
				spec.Difficulty = catalog.Medium
			} else {
				spec.Difficulty = catalog.Easy
			}
		}
	}
}

// splitThirds partitions days into three contiguous groups by index.
func splitThirds(days []*Day) [3][]*Day {
	var out [3][]*Day
	n := len(days)
	if n == 0 {
		return out
	}
	a := n / 3
	b := 2 * n / 3
	out[0] = days[:a]
	out[1] = days[a:b]
	out[2] = days[b:]
	if a == 0 {
		// Fewer than three days: treat the whole window as the opening third.
		out[0] = days
		out[1], out[2] = nil, nil
	}
	return out
}
