// Package segment tracks which agenda item is being discussed and records
// the elapsed-time ranges spent on each one.
package segment

import (
	"errors"

	"github.com/meetline/server/agenda"
)

var ErrEmptyAgenda = errors.New("agenda has no items")

// Change describes the post-transition state of one item whose segment list
// or status was mutated.
type Change struct {
	ItemID        string
	Segments      []agenda.TimeRange
	Status        agenda.Status
	StatusChanged bool
}

// Transition groups the changes produced by one tracker operation. Seq
// increases by one per operation that changed anything.
type Transition struct {
	Seq     uint64
	Op      Operation
	Changes []Change
	// ActiveID is the active item after the transition ("" when none).
	ActiveID string
	// Items holds the full new agenda in display order for OperationLoad.
	Items []agenda.Item
}

type Operation string

const (
	OperationSwitch   Operation = "switch"
	OperationOpen     Operation = "open"
	OperationClose    Operation = "close"
	OperationReset    Operation = "reset"
	OperationComplete Operation = "complete"
	// OperationLoad replaces the whole agenda; Changes lists every item.
	OperationLoad Operation = "load"
)

// OnChangeListener receives tracker transitions.
//
// Contract: listeners are called in mutation order, outside the tracker's
// state lock but under its notification lock. A listener that calls back
// into the tracker MUST do so from another goroutine, otherwise the call
// deadlocks on the notification lock.
type OnChangeListener interface {
	OnSegmentChange(tr Transition)
}

// ListenerFunc adapts a function to OnChangeListener.
type ListenerFunc func(tr Transition)

func (f ListenerFunc) OnSegmentChange(tr Transition) { f(tr) }
