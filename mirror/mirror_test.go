package mirror

import (
	"sync"
	"testing"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/segment"
)

type captureListener struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureListener) OnMirrorChange(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func setup(t *testing.T) (*segment.Tracker, *Mirror) {
	t.Helper()
	tree, err := agenda.NewTree([]agenda.Item{
		{ID: "R1", Title: "Opening"},
		{ID: "C1", ParentID: "R1", Title: "Budget"},
		{ID: "R2", Order: 1, Title: "Roadmap"},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := New(tree.Items())
	tr := segment.NewTracker(tree)
	tr.AddOnChangeListener(m)
	return tr, m
}

func TestMirror_FollowsTracker(t *testing.T) {
	tr, m := setup(t)
	cl := &captureListener{}
	m.AddOnChangeListener(cl)

	_ = tr.StartSession(0)
	_ = tr.SwitchTo("C1", 15)

	c1, ok := m.Get("C1")
	if !ok || !agenda.SegmentsEqual(c1.TimeSegments, []agenda.TimeRange{agenda.Open(15)}) {
		t.Fatalf("C1 = %+v", c1)
	}
	if c1.Title != "Budget" || c1.Status != agenda.StatusInProgress {
		t.Errorf("C1 metadata = %+v", c1)
	}
	if c1.StartedAtSeconds == nil || *c1.StartedAtSeconds != 15 {
		t.Errorf("C1 anchor = %v", c1.StartedAtSeconds)
	}
	if m.ActiveID() != "C1" || m.Seq() != 2 {
		t.Errorf("active = %q seq = %d", m.ActiveID(), m.Seq())
	}
	if len(cl.events) != 2 || len(cl.events[1].Items) != 2 {
		t.Errorf("events = %+v", cl.events)
	}
}

func TestMirror_ListIsDisplayOrderAndCopied(t *testing.T) {
	tr, m := setup(t)
	_ = tr.StartSession(0)

	list := m.List()
	if len(list) != 3 || list[0].ID != "R1" || list[1].ID != "C1" || list[2].ID != "R2" {
		t.Fatalf("list = %+v", list)
	}
	list[0].TimeSegments[0].Start = 99
	r1, _ := m.Get("R1")
	if r1.TimeSegments[0].Start != 0 {
		t.Error("List returned shared segment storage")
	}
}

func TestMirror_Load(t *testing.T) {
	tr, m := setup(t)
	cl := &captureListener{}
	m.AddOnChangeListener(cl)

	tree, _ := agenda.NewTree([]agenda.Item{{ID: "N1", Title: "New agenda"}})
	tr.Load(tree)

	if _, ok := m.Get("R1"); ok {
		t.Error("old item survived load")
	}
	n1, ok := m.Get("N1")
	if !ok || n1.Title != "New agenda" {
		t.Errorf("N1 = %+v", n1)
	}
	if len(cl.events) != 1 || cl.events[0].Op != segment.OperationLoad {
		t.Errorf("events = %+v", cl.events)
	}
	if mt, err := m.Tree(); err != nil || mt.Len() != 1 {
		t.Errorf("Tree = %v, %v", mt, err)
	}
}
