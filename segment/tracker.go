package segment

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/clock"
)

// Tracker enforces that at most one time range across the whole agenda is
// open while letting the caller move freely between items, revisits
// included. Each Tracker owns its active pointer, so independent sessions
// can run side by side.
type Tracker struct {
	mu        sync.Mutex
	tree      *agenda.Tree
	active    *agenda.Node
	guard     clock.Guard
	seq       uint64
	listeners []OnChangeListener

	// notifyMu keeps listener delivery in mutation order. It is acquired
	// before mu is released.
	notifyMu sync.Mutex
}

// NewTracker wraps tree. An item left with an open range, e.g. by an
// interrupted session, becomes the active item.
func NewTracker(tree *agenda.Tree) *Tracker {
	t := &Tracker{tree: tree}
	t.adoptOpenLocked()
	return t
}

func (t *Tracker) AddOnChangeListener(l OnChangeListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// --- Transitions ---

// SwitchTo closes the open range (if any) at now and opens one for itemID,
// unless itemID is the item that was just closed. Switching to the active
// item is a no-op.
func (t *Tracker) SwitchTo(itemID string, now int) error {
	t.mu.Lock()

	target, ok := t.tree.FindByID(itemID)
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", agenda.ErrItemNotFound, itemID)
	}
	if t.active == target && lastOpen(target) {
		t.mu.Unlock()
		return nil
	}

	now = t.accept(now)
	c := newCollector()
	closed := t.closeOpenLocked(now, c)
	if closed != target {
		t.openLocked(target, now, c)
	}
	t.commit(OperationSwitch, c)
	return nil
}

// Open appends an open range for itemID at now and makes it the active item.
// A range still open elsewhere is closed first.
func (t *Tracker) Open(itemID string, now int) error {
	t.mu.Lock()

	target, ok := t.tree.FindByID(itemID)
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", agenda.ErrItemNotFound, itemID)
	}

	now = t.accept(now)
	c := newCollector()
	t.closeOpenLocked(now, c)
	t.openLocked(target, now, c)
	t.commit(OperationOpen, c)
	return nil
}

// CloseOpen ends the active item's open range at now and clears the active
// pointer. Calling it again without an intervening open does nothing.
func (t *Tracker) CloseOpen(now int) {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		return
	}
	now = t.accept(now)
	c := newCollector()
	t.closeOpenLocked(now, c)
	t.commit(OperationClose, c)
}

// ResetAll empties the segment list of every item at every level. Only
// StartSession calls it during normal operation.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	c := newCollector()
	t.resetLocked(c)
	t.commit(OperationReset, c)
}

// StartSession clears all history and opens the first root item at now.
func (t *Tracker) StartSession(now int) error {
	t.mu.Lock()
	first, ok := t.tree.FindByID(t.tree.FirstID())
	if !ok {
		t.mu.Unlock()
		return ErrEmptyAgenda
	}

	c := newCollector()
	t.resetLocked(c)
	now = t.accept(now)
	t.openLocked(first, now, c)
	t.commit(OperationReset, c)
	return nil
}

func (t *Tracker) StopSession(now int) {
	t.CloseOpen(now)
}

// Complete marks itemID as completed. Its segments are left untouched.
func (t *Tracker) Complete(itemID string) error {
	t.mu.Lock()

	n, ok := t.tree.FindByID(itemID)
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", agenda.ErrItemNotFound, itemID)
	}
	c := newCollector()
	if n.Status != agenda.StatusCompleted {
		n.Status = agenda.StatusCompleted
		c.touch(n, true)
	}
	t.commit(OperationComplete, c)
	return nil
}

// Load swaps in a new agenda and reports every item to listeners.
func (t *Tracker) Load(tree *agenda.Tree) {
	t.mu.Lock()
	t.tree = tree
	t.active = nil
	t.guard.Reset()
	t.adoptOpenLocked()

	c := newCollector()
	tree.Walk(func(n *agenda.Node) bool {
		c.touch(n, false)
		return true
	})
	c.items = tree.Items()
	t.commit(OperationLoad, c)
}

// --- Reads ---

// Active returns the id of the item with the open range, or "".
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ""
	}
	return t.active.ID
}

// DisplayIndex returns the root position of the active item's nearest root
// ancestor, or -1 when nothing is active. The open range itself always
// belongs to the exact node selected.
func (t *Tracker) DisplayIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return -1
	}
	return t.tree.RootIndexOf(t.active.ID)
}

func (t *Tracker) Item(id string) (agenda.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.tree.FindByID(id)
	if !ok {
		return agenda.Item{}, false
	}
	return n.Item.Clone(), true
}

func (t *Tracker) Items() []agenda.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Items()
}

// Snapshot returns an independent copy of the tree for read-only consumers
// such as reports.
func (t *Tracker) Snapshot() *agenda.Tree {
	items := t.Items()
	tree, err := agenda.NewTree(items)
	if err != nil {
		// Items came from a valid tree; rebuilding cannot fail.
		panic(fmt.Sprintf("segment: rebuild snapshot: %v", err))
	}
	return tree
}

// CheckInvariants verifies the per-item ordering rules and that at most one
// range is open across the tree, and that it belongs to the active item.
func (t *Tracker) CheckInvariants() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := 0
	var err error
	t.tree.Walk(func(n *agenda.Node) bool {
		if e := agenda.ValidateSegments(n.TimeSegments); e != nil {
			err = fmt.Errorf("item %s: %w", n.ID, e)
			return false
		}
		if k := agenda.CountOpen(n.TimeSegments); k > 0 {
			open += k
			if n != t.active {
				err = fmt.Errorf("%w: item %s has an open range but is not active", agenda.ErrInvalidSegments, n.ID)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if open > 1 {
		return fmt.Errorf("%w: %d open ranges", agenda.ErrInvalidSegments, open)
	}
	if t.active != nil && open == 0 {
		return fmt.Errorf("%w: active item %s has no open range", agenda.ErrInvalidSegments, t.active.ID)
	}
	return nil
}

// --- Internals (caller holds t.mu) ---

func (t *Tracker) adoptOpenLocked() {
	t.tree.Walk(func(n *agenda.Node) bool {
		if lastOpen(n) {
			t.active = n
			_, _ = t.guard.Accept(n.TimeSegments[len(n.TimeSegments)-1].Start)
			return false
		}
		return true
	})
}

func (t *Tracker) accept(now int) int {
	v, clamped := t.guard.Accept(now)
	if clamped {
		slog.Warn("clamped non-monotonic timestamp", "given", now, "used", v)
	}
	return v
}

// closeOpenLocked closes the active item's open range and returns the node
// that was closed, or nil.
func (t *Tracker) closeOpenLocked(now int, c *collector) *agenda.Node {
	n := t.active
	t.active = nil
	if n == nil || !lastOpen(n) {
		return nil
	}
	end := now
	n.TimeSegments[len(n.TimeSegments)-1].End = &end
	c.touch(n, false)
	return n
}

func (t *Tracker) openLocked(n *agenda.Node, now int, c *collector) {
	n.TimeSegments = append(n.TimeSegments, agenda.Open(now))
	n.StartedAtSeconds = agenda.Anchor(n.TimeSegments)
	statusChanged := false
	if n.Status != agenda.StatusCompleted && n.Status != agenda.StatusInProgress {
		n.Status = agenda.StatusInProgress
		statusChanged = true
	}
	t.active = n
	c.touch(n, statusChanged)
}

func (t *Tracker) resetLocked(c *collector) {
	t.active = nil
	t.guard.Reset()
	t.tree.Walk(func(n *agenda.Node) bool {
		if len(n.TimeSegments) > 0 || n.TimeSegments == nil || n.StartedAtSeconds != nil {
			n.TimeSegments = []agenda.TimeRange{}
			n.StartedAtSeconds = nil
			c.touch(n, false)
		}
		return true
	})
}

// commit snapshots the collected changes, releases t.mu and delivers the
// transition to listeners in order.
func (t *Tracker) commit(op Operation, c *collector) {
	if len(c.order) == 0 && op != OperationLoad {
		t.mu.Unlock()
		return
	}
	t.seq++
	tr := Transition{Seq: t.seq, Op: op, Changes: c.changes(), Items: c.items}
	if t.active != nil {
		tr.ActiveID = t.active.ID
	}
	listeners := make([]OnChangeListener, len(t.listeners))
	copy(listeners, t.listeners)

	t.notifyMu.Lock()
	t.mu.Unlock()
	defer t.notifyMu.Unlock()

	slog.Debug("segment transition", "op", op, "seq", tr.Seq, "items", len(tr.Changes), "active", tr.ActiveID)
	for _, l := range listeners {
		l.OnSegmentChange(tr)
	}
}

func lastOpen(n *agenda.Node) bool {
	return len(n.TimeSegments) > 0 && n.TimeSegments[len(n.TimeSegments)-1].IsOpen()
}

// collector records touched nodes in first-touch order; each node appears
// once with its final state.
type collector struct {
	order  []*agenda.Node
	status map[*agenda.Node]bool
	items  []agenda.Item
}

func newCollector() *collector {
	return &collector{status: make(map[*agenda.Node]bool)}
}

func (c *collector) touch(n *agenda.Node, statusChanged bool) {
	prev, seen := c.status[n]
	if !seen {
		c.order = append(c.order, n)
	}
	c.status[n] = prev || statusChanged
}

func (c *collector) changes() []Change {
	out := make([]Change, len(c.order))
	for i, n := range c.order {
		out[i] = Change{
			ItemID:        n.ID,
			Segments:      agenda.CloneSegments(n.TimeSegments),
			Status:        n.Status,
			StatusChanged: c.status[n],
		}
	}
	return out
}
