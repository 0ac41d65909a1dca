package watch

import (
	"log/slog"
	"sync/atomic"

	"github.com/meetline/server/recording"
)

// SessionSource is the part of recording.Session the session watcher reads.
type SessionSource interface {
	AddOnChangeListener(listener recording.OnChangeListener)
	Snapshot() recording.Snapshot
}

// SessionWatcher pushes recording state changes to subscribers. Only the
// newest snapshot matters, so a full channel just marks the watcher dirty
// and the next event sends the current snapshot instead.
type SessionWatcher struct {
	*BaseWatcher
	source  SessionSource
	eventCh chan recording.Snapshot
	dirty   atomic.Bool
}

func NewSessionWatcher(source SessionSource) *SessionWatcher {
	w := &SessionWatcher{
		BaseWatcher: NewBaseWatcher("sess"),
		source:      source,
		eventCh:     make(chan recording.Snapshot, 16),
	}
	source.AddOnChangeListener(w)
	return w
}

func (w *SessionWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SessionWatcher started")
	return nil
}

func (w *SessionWatcher) Stop() {
	w.Cancel()
	slog.Info("SessionWatcher stopped")
}

func (w *SessionWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case snap := <-w.eventCh:
			if w.dirty.Swap(false) {
				snap = w.source.Snapshot()
			}
			w.notify(snap)
		}
	}
}

func (w *SessionWatcher) notify(snap recording.Snapshot) {
	if !w.HasSubscriptions() {
		return
	}
	w.NotifyAll("session.changed", func(sub *Subscription) any {
		return sessionChangedParams{ID: sub.ID, Snapshot: snap}
	})
}

// Subscribe registers a subscriber and returns the current snapshot.
func (w *SessionWatcher) Subscribe(notifier Notifier) (string, recording.Snapshot) {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})
	return id, w.source.Snapshot()
}

type sessionChangedParams struct {
	ID string `json:"id"`
	recording.Snapshot
}

// OnSessionChange implements recording.OnChangeListener.
func (w *SessionWatcher) OnSessionChange(snap recording.Snapshot) {
	select {
	case <-w.Context().Done():
		return
	case w.eventCh <- snap:
	default:
		w.dirty.Store(true)
		slog.Warn("session change event dropped, will resend current state", "state", snap.State)
	}
}
