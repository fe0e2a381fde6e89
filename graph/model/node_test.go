package model

import (
	"slices"
	"testing"
)

func TestStatusSets(t *testing.T) {
	for _, s := range AllStatuses {
		terminal, finalizable := s.IsTerminal(), s.IsFinalizable()
		if terminal == finalizable {
			t.Errorf("%s: terminal=%v finalizable=%v, want exactly one", s, terminal, finalizable)
		}
	}
	for _, s := range PausableStatuses {
		if !s.IsFinalizable() {
			t.Errorf("pausable %s is not finalizable", s)
		}
	}
	if !StatusFailed.In(BrokeStatuses) || StatusSucceeded.In(BrokeStatuses) {
		t.Error("BrokeStatuses mismatch")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		if got, err := ParseStatus(string(s)); err != nil || got != s {
			t.Errorf("ParseStatus(%s) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("DONE"); err == nil {
		t.Error("ParseStatus(DONE) succeeded")
	}

	for _, p := range []PlanStatus{PlanRunning, PlanPaused, PlanDiscontinuing, PlanAborted} {
		if got, err := ParsePlanStatus(string(p)); err != nil || got != p {
			t.Errorf("ParsePlanStatus(%s) = %q, %v", p, got, err)
		}
	}
	if _, err := ParsePlanStatus("QUEUED"); err == nil {
		t.Error("ParsePlanStatus(QUEUED) succeeded")
	}
	if PlanPausing.IsTerminal() || !PlanExpired.IsTerminal() {
		t.Error("PlanStatus.IsTerminal mismatch")
	}
}

func tree() []ExecutionNode {
	return []ExecutionNode{
		{ID: "root"},
		{ID: "a", ParentID: "root"},
		{ID: "a1", ParentID: "a"},
		{ID: "a2", ParentID: "a"},
		{ID: "b", ParentID: "root"},
	}
}

func TestSubtree(t *testing.T) {
	nodes := tree()

	got := Subtree(nodes, "a")
	slices.Sort(got)
	if want := []string{"a", "a1", "a2"}; !slices.Equal(got, want) {
		t.Errorf("Subtree(a) = %v, want %v", got, want)
	}
	if got := Subtree(nodes, "root"); len(got) != len(nodes) {
		t.Errorf("Subtree(root) = %v", got)
	}
	if got := Subtree(nodes, "b"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("Subtree(b) = %v", got)
	}
	if got := Subtree(nodes, "ghost"); got != nil {
		t.Errorf("Subtree(ghost) = %v, want nil", got)
	}

	cycle := []ExecutionNode{{ID: "x", ParentID: "y"}, {ID: "y", ParentID: "x"}, {ID: "z", ParentID: "y"}}
	got = Subtree(cycle, "x")
	slices.Sort(got)
	if want := []string{"x", "y", "z"}; !slices.Equal(got, want) {
		t.Errorf("Subtree on a cycle = %v, want %v", got, want)
	}
}

func TestAncestors(t *testing.T) {
	nodes := tree()
	if got := Ancestors(nodes, "a1"); !slices.Equal(got, []string{"a", "root"}) {
		t.Errorf("Ancestors(a1) = %v", got)
	}
	if got := Ancestors(nodes, "root"); len(got) != 0 {
		t.Errorf("Ancestors(root) = %v", got)
	}

	cycle := []ExecutionNode{{ID: "x", ParentID: "y"}, {ID: "y", ParentID: "x"}}
	if got := Ancestors(cycle, "x"); !slices.Equal(got, []string{"y"}) {
		t.Errorf("Ancestors on a cycle = %v, want [y]", got)
	}
}

func TestChildren(t *testing.T) {
	children := Children(tree())
	if len(children["a"]) != 2 || len(children["root"]) != 2 || len(children["a1"]) != 0 {
		t.Errorf("Children = %v", children)
	}
	if !(ExecutionNode{ID: "root"}).Root() || (ExecutionNode{ParentID: "x"}).Root() {
		t.Error("Root mismatch")
	}
}
