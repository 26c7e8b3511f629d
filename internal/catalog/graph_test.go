package catalog_test

import (
	"testing"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

func topicIndex(order []catalog.Topic) map[string]int {
	idx := make(map[string]int, len(order))
	for i, t := range order {
		idx[t.ID] = i
	}
	return idx
}

func TestGraph_Sequence_PrerequisitesFirst(t *testing.T) {
	g := catalog.NewGraph([]catalog.Topic{
		{ID: "A", Importance: 5, Prerequisites: []string{"B"}},
		{ID: "B", Importance: 9},
		{ID: "C", Importance: 7, Prerequisites: []string{"A"}},
	})

	order := g.Sequence(nil)
	if len(order) != 3 {
		t.Fatalf("Sequence() returned %d topics, want 3", len(order))
	}

	idx := topicIndex(order)
	if idx["B"] > idx["A"] {
		t.Errorf("prerequisite B at %d should precede A at %d", idx["B"], idx["A"])
	}
	if idx["A"] > idx["C"] {
		t.Errorf("prerequisite A at %d should precede C at %d", idx["A"], idx["C"])
	}
}

func TestGraph_Sequence_PriorityOrdersIndependentTopics(t *testing.T) {
	g := catalog.NewGraph([]catalog.Topic{
		{ID: "low", Importance: 2},
		{ID: "high", Importance: 9},
		{ID: "mid", Importance: 5},
	})

	order := g.Sequence(nil)
	idx := topicIndex(order)
	if idx["high"] > idx["mid"] || idx["mid"] > idx["low"] {
		t.Errorf("independent topics not in priority order: %v", order)
	}
}

func TestGraph_Sequence_BoostOverridesImportance(t *testing.T) {
	g := catalog.NewGraph([]catalog.Topic{
		{ID: "strong", Importance: 8},
		{ID: "weak", Importance: 4},
	})

	// Weak-area boost pushes the weak topic ahead of the strong one.
	order := g.Sequence(map[string]int{"weak": 5})
	if order[0].ID != "weak" {
		t.Errorf("boosted topic should come first, got %q", order[0].ID)
	}
}

func TestGraph_Sequence_UnknownPrerequisiteSkipped(t *testing.T) {
	g := catalog.NewGraph([]catalog.Topic{
		{ID: "A", Importance: 5, Prerequisites: []string{"ghost"}},
	})

	order := g.Sequence(nil)
	if len(order) != 1 || order[0].ID != "A" {
		t.Fatalf("Sequence() = %v, want just A", order)
	}

	missing := g.MissingPrerequisites()
	if len(missing["A"]) != 1 || missing["A"][0] != "ghost" {
		t.Errorf("MissingPrerequisites() = %v, want A -> [ghost]", missing)
	}
}

func TestGraph_Sequence_CycleTerminates(t *testing.T) {
	g := catalog.NewGraph([]catalog.Topic{
		{ID: "A", Importance: 5, Prerequisites: []string{"B"}},
		{ID: "B", Importance: 5, Prerequisites: []string{"A"}},
	})

	order := g.Sequence(nil)
	if len(order) != 2 {
		t.Fatalf("Sequence() on a cycle returned %d topics, want 2", len(order))
	}
}
