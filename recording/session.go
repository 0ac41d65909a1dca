// Package recording drives the recording lifecycle of one meeting and feeds
// clock readings to the segment tracker.
package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/clock"
	"github.com/meetline/server/segment"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotRecording      = errors.New("session is not recording")
	ErrUnknownPolicy     = errors.New("unknown pause policy")
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

var validTransitions = map[State][]State{
	StateIdle:      {StateRecording},
	StateRecording: {StatePaused, StateStopped},
	StatePaused:    {StateRecording, StateStopped},
	StateStopped:   {},
}

func ValidateTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// PausePolicy decides what happens to the open range while paused.
type PausePolicy string

const (
	// PauseKeepOpen leaves the range open and the clock running; the paused
	// interval counts toward the item.
	PauseKeepOpen PausePolicy = "keep_open"
	// PauseCloseSegment closes the range on pause and reopens the same item
	// on resume.
	PauseCloseSegment PausePolicy = "close_segment"
	// PauseFreezeClock leaves the range open and stops the clock.
	PauseFreezeClock PausePolicy = "freeze_clock"
)

func ParsePausePolicy(s string) (PausePolicy, error) {
	switch p := PausePolicy(s); p {
	case "":
		return PauseKeepOpen, nil
	case PauseKeepOpen, PauseCloseSegment, PauseFreezeClock:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

type Snapshot struct {
	State        State       `json:"state"`
	Elapsed      int         `json:"elapsed"`
	ActiveItemID string      `json:"active_item_id,omitempty"`
	DisplayIndex int         `json:"display_index"`
	PausePolicy  PausePolicy `json:"pause_policy"`
}

type OnChangeListener interface {
	OnSessionChange(snap Snapshot)
}

type Session struct {
	mu      sync.Mutex
	state   State
	clock   clock.Controller
	tracker *segment.Tracker
	policy  PausePolicy
	// resumeID is the item to reopen on resume under PauseCloseSegment.
	resumeID string

	listeners []OnChangeListener
}

func New(tracker *segment.Tracker, clk clock.Controller, policy PausePolicy) *Session {
	if policy == "" {
		policy = PauseKeepOpen
	}
	return &Session{state: StateIdle, clock: clk, tracker: tracker, policy: policy}
}

func (s *Session) AddOnChangeListener(l OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start begins recording at elapsed zero with all previous history cleared.
func (s *Session) Start() error {
	return s.transition(StateRecording, func(State) error {
		s.clock.Start()
		return s.tracker.StartSession(s.clock.Elapsed())
	}, StateIdle)
}

func (s *Session) Pause() error {
	return s.transition(StatePaused, func(State) error {
		switch s.policy {
		case PauseCloseSegment:
			s.resumeID = s.tracker.Active()
			s.tracker.CloseOpen(s.clock.Elapsed())
		case PauseFreezeClock:
			s.clock.Freeze()
		}
		return nil
	}, StateRecording)
}

func (s *Session) Resume() error {
	return s.transition(StateRecording, func(State) error {
		switch s.policy {
		case PauseCloseSegment:
			id := s.resumeID
			s.resumeID = ""
			if id != "" {
				return s.tracker.Open(id, s.clock.Elapsed())
			}
		case PauseFreezeClock:
			s.clock.Thaw()
		}
		return nil
	}, StatePaused)
}

// Stop closes the open range at the current elapsed value. Stopped is
// terminal.
func (s *Session) Stop() error {
	return s.transition(StateStopped, func(State) error {
		s.tracker.StopSession(s.clock.Elapsed())
		s.clock.Stop()
		s.resumeID = ""
		return nil
	}, StateRecording, StatePaused)
}

// Switch moves the discussion to itemID at the current elapsed value.
func (s *Session) Switch(itemID string) error {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotRecording, state)
	}
	err := s.tracker.SwitchTo(itemID, s.clock.Elapsed())
	listeners, snap := s.publishLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	notify(listeners, snap)
	return nil
}

// LoadAgenda replaces the tracked agenda. Only an idle session accepts a
// new agenda.
func (s *Session) LoadAgenda(tree *agenda.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot load agenda while %s", ErrInvalidTransition, s.state)
	}
	s.tracker.Load(tree)
	return nil
}

// Complete marks itemID completed. It is allowed in any state.
func (s *Session) Complete(itemID string) error {
	return s.tracker.Complete(itemID)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Policy() PausePolicy { return s.policy }

// transition moves to `to` if the current state is one of from, running fn
// under the session lock first. fn failing leaves the state unchanged.
func (s *Session) transition(to State, fn func(from State) error, from ...State) error {
	s.mu.Lock()
	cur := s.state
	if !slices.Contains(from, cur) || !ValidateTransition(cur, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur, to)
	}
	if err := fn(cur); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = to
	listeners, snap := s.publishLocked()
	s.mu.Unlock()

	slog.Info("recording session transition", "from", cur, "to", to, "elapsed", snap.Elapsed, "policy", s.policy)
	notify(listeners, snap)
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		Elapsed:      s.clock.Elapsed(),
		ActiveItemID: s.tracker.Active(),
		DisplayIndex: s.tracker.DisplayIndex(),
		PausePolicy:  s.policy,
	}
}

func (s *Session) publishLocked() ([]OnChangeListener, Snapshot) {
	listeners := make([]OnChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners, s.snapshotLocked()
}

// Must be called WITHOUT s.mu held.
func notify(listeners []OnChangeListener, snap Snapshot) {
	for _, l := range listeners {
		l.OnSessionChange(snap)
	}
}
