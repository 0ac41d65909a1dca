package watch

import (
	"log/slog"
	"sync/atomic"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/mirror"
)

// MirrorSource is the part of mirror.Mirror the segment watcher reads.
type MirrorSource interface {
	AddOnChangeListener(listener mirror.OnChangeListener)
	List() []agenda.Item
	ActiveID() string
	Seq() uint64
}

// SegmentsSnapshot is what a new subscriber starts from.
type SegmentsSnapshot struct {
	Seq          uint64        `json:"seq"`
	ActiveItemID string        `json:"active_item_id,omitempty"`
	Items        []agenda.Item `json:"items"`
}

// SegmentsWatcher pushes mirror changes to subscribers.
type SegmentsWatcher struct {
	*BaseWatcher
	source  MirrorSource
	eventCh chan mirror.Event
	dirty   atomic.Bool // set when an event is dropped; triggers full sync
}

func NewSegmentsWatcher(source MirrorSource) *SegmentsWatcher {
	w := &SegmentsWatcher{
		BaseWatcher: NewBaseWatcher("seg"),
		source:      source,
		eventCh:     make(chan mirror.Event, 64),
	}
	source.AddOnChangeListener(w)
	return w
}

func (w *SegmentsWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SegmentsWatcher started")
	return nil
}

func (w *SegmentsWatcher) Stop() {
	w.Cancel()
	slog.Info("SegmentsWatcher stopped")
}

func (w *SegmentsWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			if w.dirty.Swap(false) {
				w.notifySync()
			} else {
				w.notifyChange(event)
			}
		}
	}
}

func (w *SegmentsWatcher) notifyChange(event mirror.Event) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll("segments.changed", func(sub *Subscription) any {
		return segmentsChangedParams{
			ID:           sub.ID,
			Operation:    string(event.Op),
			Seq:          event.Seq,
			ActiveItemID: event.ActiveID,
			Items:        event.Items,
		}
	})

	slog.Debug("notified segment change", "operation", event.Op, "seq", event.Seq)
}

// notifySync sends every item to all subscribers after dropped events.
func (w *SegmentsWatcher) notifySync() {
	if !w.HasSubscriptions() {
		return
	}

	snap := w.snapshot()
	w.NotifyAll("segments.changed", func(sub *Subscription) any {
		return segmentsChangedParams{
			ID:           sub.ID,
			Operation:    "sync",
			Seq:          snap.Seq,
			ActiveItemID: snap.ActiveItemID,
			Items:        snap.Items,
		}
	})

	slog.Info("sent full segment sync to subscribers after event drop")
}

func (w *SegmentsWatcher) snapshot() SegmentsSnapshot {
	return SegmentsSnapshot{
		Seq:          w.source.Seq(),
		ActiveItemID: w.source.ActiveID(),
		Items:        w.source.List(),
	}
}

// Subscribe registers a subscriber and returns the current agenda state.
func (w *SegmentsWatcher) Subscribe(notifier Notifier) (string, SegmentsSnapshot) {
	id := w.GenerateID()
	// Add subscription BEFORE reading the mirror to avoid missing events.
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})
	return id, w.snapshot()
}

type segmentsChangedParams struct {
	ID           string        `json:"id"`
	Operation    string        `json:"operation"`
	Seq          uint64        `json:"seq"`
	ActiveItemID string        `json:"active_item_id,omitempty"`
	Items        []agenda.Item `json:"items"`
}

// OnMirrorChange implements mirror.OnChangeListener. It runs on the
// tracker's notification path and must not block.
func (w *SegmentsWatcher) OnMirrorChange(event mirror.Event) {
	select {
	case <-w.Context().Done():
		return
	case w.eventCh <- event:
	default:
		w.dirty.Store(true)
		slog.Warn("segment change event dropped, will sync on next event", "seq", event.Seq)
	}
}
