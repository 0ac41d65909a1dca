package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/logger"
	"github.com/meetline/server/segment"
)

// Sink receives the outcome of every remote write.
type Sink interface {
	WriteSucceeded(itemID string, p Patch)
	WriteFailed(itemID string, p Patch, err error)
}

type slogSink struct{}

func (slogSink) WriteSucceeded(itemID string, p Patch) {
	slog.Debug("segment write confirmed", "itemId", itemID, "version", p.Version, "segments", len(p.Segments))
}

func (slogSink) WriteFailed(itemID string, p Patch, err error) {
	slog.Error("segment write failed", "itemId", itemID, "version", p.Version, "error", err)
}

type Option func(*Gateway)

func WithJournal(j *Journal) Option { return func(g *Gateway) { g.journal = j } }
func WithSink(s Sink) Option        { return func(g *Gateway) { g.sink = s } }

// Gateway sends segment patches to the remote without blocking the caller.
// Each patch carries a per-item version so the remote can reject writes that
// arrive after a newer one. There is no retry, coalescing or cancellation;
// unconfirmed writes stay in the journal.
type Gateway struct {
	remote  Remote
	journal *Journal
	sink    Sink

	mu       sync.Mutex
	versions map[string]uint64
	wg       sync.WaitGroup
}

var _ segment.OnChangeListener = (*Gateway)(nil)

func NewGateway(remote Remote, opts ...Option) *Gateway {
	g := &Gateway{
		remote:   remote,
		sink:     slogSink{},
		versions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.journal == nil {
		g.journal = NewJournal()
	}
	return g
}

// SeedVersions raises the per-item counters to at least the given values,
// so writes after a reload supersede what the remote already holds.
func (g *Gateway) SeedVersions(versions map[string]uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, v := range versions {
		if v > g.versions[id] {
			g.versions[id] = v
		}
	}
}

// OnSegmentChange forwards every change of a tracker transition. Loads
// come from the remote and are not written back.
func (g *Gateway) OnSegmentChange(tr segment.Transition) {
	if tr.Op == segment.OperationLoad {
		return
	}
	for _, c := range tr.Changes {
		if c.StatusChanged {
			g.SendStatus(c.ItemID, c.Segments, c.Status)
		} else {
			g.Send(c.ItemID, c.Segments)
		}
	}
}

// Send replaces itemID's segment list on the remote. It returns immediately.
func (g *Gateway) Send(itemID string, segs []agenda.TimeRange) {
	g.send(itemID, segs, "")
}

// SendStatus is Send with a status transition.
func (g *Gateway) SendStatus(itemID string, segs []agenda.TimeRange, status agenda.Status) {
	g.send(itemID, segs, status)
}

// Resend re-issues journal entries with fresh versions, typically after a
// reload found them missing from the remote.
func (g *Gateway) Resend(entries []Entry) {
	for _, e := range entries {
		g.send(e.ItemID, e.Patch.Segments, e.Patch.Status)
	}
}

func (g *Gateway) send(itemID string, segs []agenda.TimeRange, status agenda.Status) {
	g.mu.Lock()
	g.versions[itemID]++
	p := NewPatch(segs, status, g.versions[itemID])
	g.journal.Record(itemID, p)
	g.wg.Add(1)
	g.mu.Unlock()

	go g.write(itemID, p)
}

func (g *Gateway) write(itemID string, p Patch) {
	defer g.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "segment write crashed", "itemId", itemID)
		}
	}()

	err := g.remote.PatchSegments(context.Background(), itemID, p)
	switch {
	case err == nil:
		g.journal.Ack(itemID, p.Version)
		g.sink.WriteSucceeded(itemID, p)
	case errors.Is(err, ErrStaleWrite):
		// A newer version already landed.
		g.journal.Ack(itemID, p.Version)
		slog.Debug("stale segment write superseded", "itemId", itemID, "version", p.Version)
	default:
		g.journal.Fail(itemID, p.Version, err)
		g.sink.WriteFailed(itemID, p, err)
	}
}

// Wait blocks until every in-flight write has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Pending returns the writes the remote has not confirmed.
func (g *Gateway) Pending() []Entry {
	return g.journal.Entries()
}

// Version returns the last version issued for itemID.
func (g *Gateway) Version(itemID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.versions[itemID]
}
