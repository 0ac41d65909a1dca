// Package app assembles one meeting: the remote store, the tracker and its
// listeners, the recording session and the watchers clients subscribe to.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/clock"
	"github.com/meetline/server/mirror"
	"github.com/meetline/server/persist"
	"github.com/meetline/server/recording"
	"github.com/meetline/server/segment"
	"github.com/meetline/server/store"
	"github.com/meetline/server/watch"
)

type Options struct {
	Store       store.Store
	Journal     *persist.Journal // nil means in-memory
	Clock       clock.Controller // nil means wall clock
	PausePolicy recording.PausePolicy
	Sink        persist.Sink
}

// Engine owns every component of a running meeting.
type Engine struct {
	Store    store.Store
	Journal  *persist.Journal
	Tracker  *segment.Tracker
	Mirror   *mirror.Mirror
	Gateway  *persist.Gateway
	Session  *recording.Session
	Segments *watch.SegmentsWatcher
	Sessions *watch.SessionWatcher

	watchers []watch.Watcher
	reloadMu sync.Mutex
}

var _ store.OnChangeListener = (*Engine)(nil)

// New loads the agenda from the store, overlays writes still pending from a
// previous run and re-sends them.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	journal := opts.Journal
	if journal == nil {
		journal = persist.NewJournal()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewWall(nil)
	}

	records, err := opts.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agenda: %w", err)
	}
	pending := journal.Reconcile(store.Versions(records))
	tree, err := agenda.NewTree(persist.Overlay(store.Items(records), pending))
	if err != nil {
		return nil, fmt.Errorf("build agenda: %w", err)
	}

	gwOpts := []persist.Option{persist.WithJournal(journal)}
	if opts.Sink != nil {
		gwOpts = append(gwOpts, persist.WithSink(opts.Sink))
	}

	e := &Engine{
		Store:   opts.Store,
		Journal: journal,
		Tracker: segment.NewTracker(tree),
		Mirror:  mirror.New(tree.Items()),
		Gateway: persist.NewGateway(opts.Store, gwOpts...),
	}
	// The mirror must see a transition before the write for it is issued.
	e.Tracker.AddOnChangeListener(e.Mirror)
	e.Tracker.AddOnChangeListener(e.Gateway)

	e.Gateway.SeedVersions(store.Versions(records))
	for _, p := range pending {
		e.Gateway.SeedVersions(map[string]uint64{p.ItemID: p.Patch.Version})
	}
	if len(pending) > 0 {
		slog.Info("re-sending pending segment writes", "count", len(pending))
		e.Gateway.Resend(pending)
	}

	e.Session = recording.New(e.Tracker, clk, opts.PausePolicy)
	e.Segments = watch.NewSegmentsWatcher(e.Mirror)
	e.Sessions = watch.NewSessionWatcher(e.Session)
	e.watchers = []watch.Watcher{e.Segments, e.Sessions}

	opts.Store.AddOnChangeListener(e)

	slog.Info("agenda loaded", "items", tree.Len(), "pending", len(pending), "active", e.Tracker.Active())
	return e, nil
}

func (e *Engine) Start() error {
	for i, w := range e.watchers {
		if err := w.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				e.watchers[j].Stop()
			}
			return fmt.Errorf("start watcher: %w", err)
		}
	}
	if err := e.Store.StartWatching(); err != nil {
		slog.Warn("store watching unavailable", "error", err)
	}
	return nil
}

// Stop waits for in-flight writes before releasing the store.
func (e *Engine) Stop() {
	for _, w := range e.watchers {
		w.Stop()
	}
	e.Gateway.Wait()
	e.Store.StopWatching()
}

// Report returns the dwell report of the locally tracked agenda.
func (e *Engine) Report() (segment.Report, error) {
	tree, err := e.Mirror.Tree()
	if err != nil {
		return segment.Report{}, err
	}
	return segment.DwellReport(tree), nil
}

// OnRecordChange reloads the agenda when another process edits the store
// while no meeting is being recorded. Echoes of our own writes are ignored.
func (e *Engine) OnRecordChange(event store.ChangeEvent) {
	if e.Session.State() != recording.StateIdle || !e.external(event) {
		return
	}
	go e.reload()
}

func (e *Engine) external(event store.ChangeEvent) bool {
	if event.Op != store.OperationUpdate {
		return true
	}
	if event.Record.Version > e.Gateway.Version(event.Record.ID) {
		return true
	}
	cur, ok := e.Mirror.Get(event.Record.ID)
	if !ok {
		return true
	}
	return cur.Title != event.Record.Title ||
		cur.Description != event.Record.Description ||
		cur.ParentID != event.Record.ParentID ||
		cur.Order != event.Record.Order
}

func (e *Engine) reload() {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	records, err := e.Store.List(context.Background())
	if err != nil {
		slog.Error("failed to reload agenda", "error", err)
		return
	}
	pending := e.Journal.Reconcile(store.Versions(records))
	tree, err := agenda.NewTree(persist.Overlay(store.Items(records), pending))
	if err != nil {
		slog.Error("reloaded agenda is invalid, keeping current", "error", err)
		return
	}
	e.Gateway.SeedVersions(store.Versions(records))
	if err := e.Session.LoadAgenda(tree); err != nil {
		slog.Debug("skipped agenda reload", "error", err)
		return
	}
	slog.Info("agenda reloaded from store", "items", tree.Len())
}
