// Package mirror keeps the optimistic, locally readable copy of the agenda
// that clients render. It is updated synchronously from tracker transitions
// and never from the remote store directly.
package mirror

import (
	"sync"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/segment"
)

// Event reports the items a transition changed.
type Event struct {
	Seq      uint64
	Op       segment.Operation
	Items    []agenda.Item
	ActiveID string
}

type OnChangeListener interface {
	OnMirrorChange(event Event)
}

type Mirror struct {
	mu        sync.RWMutex
	items     map[string]agenda.Item
	order     []string
	activeID  string
	seq       uint64
	listeners []OnChangeListener
}

var _ segment.OnChangeListener = (*Mirror)(nil)

// New returns a mirror holding items in the given order.
func New(items []agenda.Item) *Mirror {
	m := &Mirror{}
	m.reset(items)
	return m
}

func (m *Mirror) reset(items []agenda.Item) {
	m.items = make(map[string]agenda.Item, len(items))
	m.order = make([]string, 0, len(items))
	for _, it := range items {
		m.items[it.ID] = it.Clone()
		m.order = append(m.order, it.ID)
	}
}

func (m *Mirror) AddOnChangeListener(listener OnChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// OnSegmentChange applies a tracker transition.
func (m *Mirror) OnSegmentChange(tr segment.Transition) {
	m.mu.Lock()

	if tr.Op == segment.OperationLoad {
		m.reset(tr.Items)
	}

	changed := make([]agenda.Item, 0, len(tr.Changes))
	for _, c := range tr.Changes {
		it, ok := m.items[c.ItemID]
		if !ok {
			continue
		}
		it.TimeSegments = agenda.CloneSegments(c.Segments)
		it.StartedAtSeconds = agenda.Anchor(it.TimeSegments)
		it.Status = c.Status
		m.items[c.ItemID] = it
		changed = append(changed, it.Clone())
	}
	m.activeID = tr.ActiveID
	m.seq = tr.Seq

	listeners := make([]OnChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	e := Event{Seq: tr.Seq, Op: tr.Op, Items: changed, ActiveID: tr.ActiveID}
	for _, l := range listeners {
		l.OnMirrorChange(e)
	}
}

func (m *Mirror) Get(id string) (agenda.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return agenda.Item{}, false
	}
	return it.Clone(), true
}

// List returns every item in display order.
func (m *Mirror) List() []agenda.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]agenda.Item, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id].Clone())
	}
	return out
}

func (m *Mirror) ActiveID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// Seq returns the sequence number of the last applied transition.
func (m *Mirror) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// Tree builds a read-only tree from the mirrored items.
func (m *Mirror) Tree() (*agenda.Tree, error) {
	return agenda.NewTree(m.List())
}
