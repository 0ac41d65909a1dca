package agenda

import (
	"errors"
	"testing"
)

// sampleItems builds:
//
//	1 R1
//	  1.1 C1
//	    1.1.1 G1
//	  1.2 C2
//	2 R2
func sampleItems() []Item {
	return []Item{
		{ID: "R2", Order: 1, Title: "Second"},
		{ID: "C2", ParentID: "R1", Order: 1, Title: "Child two"},
		{ID: "R1", Order: 0, Title: "First"},
		{ID: "C1", ParentID: "R1", Order: 0, Title: "Child one"},
		{ID: "G1", ParentID: "C1", Order: 0, Title: "Grandchild"},
	}
}

func newSampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewTree(sampleItems())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func TestNewTree_OrdersByOrderField(t *testing.T) {
	tree := newSampleTree(t)

	roots := tree.Roots()
	if len(roots) != 2 || roots[0].ID != "R1" || roots[1].ID != "R2" {
		t.Fatalf("roots = %v, want [R1 R2]", ids(roots))
	}
	if got := ids(roots[0].Children); len(got) != 2 || got[0] != "C1" || got[1] != "C2" {
		t.Errorf("R1 children = %v, want [C1 C2]", got)
	}
	if tree.FirstID() != "R1" {
		t.Errorf("FirstID = %q, want R1", tree.FirstID())
	}
}

func TestNewTree_DefaultsStatusAndSegments(t *testing.T) {
	tree := newSampleTree(t)
	n, _ := tree.FindByID("G1")
	if n.Status != StatusPending {
		t.Errorf("status = %q, want pending", n.Status)
	}
	if n.TimeSegments == nil {
		t.Error("expected non-nil empty segments")
	}
	if n.Depth != 2 {
		t.Errorf("depth = %d, want 2", n.Depth)
	}
}

func TestNewTree_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
	}{
		{"duplicate id across levels", []Item{{ID: "A"}, {ID: "B", ParentID: "A"}, {ID: "A", ParentID: "B"}}},
		{"missing parent", []Item{{ID: "A", ParentID: "X"}}},
		{"self parent", []Item{{ID: "A", ParentID: "A"}}},
		{"cycle", []Item{{ID: "R"}, {ID: "A", ParentID: "B"}, {ID: "B", ParentID: "A"}}},
		{"too deep", []Item{{ID: "A"}, {ID: "B", ParentID: "A"}, {ID: "C", ParentID: "B"}, {ID: "D", ParentID: "C"}}},
		{"empty id", []Item{{ID: ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.items)
			if !errors.Is(err, ErrInvalidTree) {
				t.Errorf("err = %v, want ErrInvalidTree", err)
			}
		})
	}
}

func TestFindByID_AnyDepth(t *testing.T) {
	tree := newSampleTree(t)
	for _, id := range []string{"R1", "C2", "G1"} {
		if _, ok := tree.FindByID(id); !ok {
			t.Errorf("FindByID(%q) not found", id)
		}
	}
	if _, ok := tree.FindByID("nope"); ok {
		t.Error("expected unknown id to be not found")
	}
}

func TestNumbering(t *testing.T) {
	tree := newSampleTree(t)

	want := map[string]string{"R1": "1", "C1": "1.1", "G1": "1.1.1", "C2": "1.2", "R2": "2"}
	got := tree.Numbering()
	for id, num := range want {
		if got[id] != num {
			t.Errorf("Numbering[%s] = %q, want %q", id, got[id], num)
		}
		if n := tree.Number(id); n != num {
			t.Errorf("Number(%s) = %q, want %q", id, n, num)
		}
	}
}

func TestRootIndexOf(t *testing.T) {
	tree := newSampleTree(t)

	tests := map[string]int{"R1": 0, "C1": 0, "G1": 0, "R2": 1, "missing": -1}
	for id, want := range tests {
		if got := tree.RootIndexOf(id); got != want {
			t.Errorf("RootIndexOf(%q) = %d, want %d", id, got, want)
		}
	}
}

func TestWalk_DisplayOrderAndStop(t *testing.T) {
	tree := newSampleTree(t)

	var order []string
	tree.Walk(func(n *Node) bool {
		order = append(order, n.ID)
		return n.ID != "C2"
	})

	want := []string{"R1", "C1", "G1", "C2"}
	if len(order) != len(want) {
		t.Fatalf("walk = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("walk = %v, want %v", order, want)
		}
	}
}

func TestItems_AreCopies(t *testing.T) {
	tree := newSampleTree(t)
	n, _ := tree.FindByID("R1")
	n.TimeSegments = append(n.TimeSegments, Closed(0, 5))

	items := tree.Items()
	items[0].TimeSegments[0].Start = 99

	if n.TimeSegments[0].Start != 0 {
		t.Error("mutating Items() result changed the tree")
	}
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
