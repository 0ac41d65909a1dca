package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/meetline/server/agenda"
)

// Entry is a write that the remote has not confirmed yet. Only the newest
// patch per item is kept since each patch replaces the whole segment list.
type Entry struct {
	ItemID    string    `json:"item_id"`
	Patch     Patch     `json:"patch"`
	QueuedAt  time.Time `json:"queued_at"`
	LastError string    `json:"last_error,omitempty"`
}

type journalData struct {
	Entries []Entry `json:"entries"`
}

// Journal tracks unconfirmed writes per item. With a path, every change is
// written through to disk so pending writes survive a restart.
type Journal struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	now     func() time.Time
}

func NewJournal() *Journal {
	return &Journal{entries: make(map[string]Entry), now: time.Now}
}

// OpenJournal loads the journal at path, creating an empty one if the file
// does not exist.
func OpenJournal(path string) (*Journal, error) {
	j := NewJournal()
	j.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var jd journalData
	if err := json.Unmarshal(data, &jd); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", path, err)
	}
	for _, e := range jd.Entries {
		j.entries[e.ItemID] = e
	}
	return j, nil
}

// Record stores p as the pending write for itemID unless a newer version is
// already pending.
func (j *Journal) Record(itemID string, p Patch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if cur, ok := j.entries[itemID]; ok && cur.Patch.Version > p.Version {
		return
	}
	j.entries[itemID] = Entry{ItemID: itemID, Patch: p, QueuedAt: j.now()}
	j.flushLocked()
}

// Ack removes the pending entry for itemID if it is not newer than version.
// It reports whether an entry was removed.
func (j *Journal) Ack(itemID string, version uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	cur, ok := j.entries[itemID]
	if !ok || cur.Patch.Version > version {
		return false
	}
	delete(j.entries, itemID)
	j.flushLocked()
	return true
}

// Fail annotates the pending entry with the last error, if the failed
// version is still the pending one.
func (j *Journal) Fail(itemID string, version uint64, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cur, ok := j.entries[itemID]
	if !ok || cur.Patch.Version != version {
		return
	}
	cur.LastError = err.Error()
	j.entries[itemID] = cur
	j.flushLocked()
}

// Entries returns the pending writes ordered by queue time.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sortedLocked()
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Clear drops every pending entry, e.g. after the remote agenda was
// replaced wholesale.
func (j *Journal) Clear() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := len(j.entries)
	if n == 0 {
		return 0
	}
	j.entries = make(map[string]Entry)
	j.flushLocked()
	return n
}

// Reconcile compares pending writes with the versions the remote holds.
// Entries the remote already has at an equal or newer version are dropped;
// the rest are returned so the caller can overlay and re-send them.
func (j *Journal) Reconcile(remote map[string]uint64) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	changed := false
	for id, e := range j.entries {
		if v, ok := remote[id]; ok && v >= e.Patch.Version {
			delete(j.entries, id)
			changed = true
		}
	}
	if changed {
		j.flushLocked()
	}
	return j.sortedLocked()
}

// Overlay applies pending entries on top of items loaded from the remote.
func Overlay(items []agenda.Item, pending []Entry) []agenda.Item {
	byID := make(map[string]Entry, len(pending))
	for _, e := range pending {
		byID[e.ItemID] = e
	}
	out := make([]agenda.Item, len(items))
	for i, it := range items {
		it = it.Clone()
		if e, ok := byID[it.ID]; ok {
			it.TimeSegments = agenda.CloneSegments(e.Patch.Segments)
			it.StartedAtSeconds = agenda.Anchor(it.TimeSegments)
			if e.Patch.Status != "" {
				it.Status = e.Patch.Status
			}
		}
		out[i] = it
	}
	return out
}

func (j *Journal) sortedLocked() []Entry {
	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].QueuedAt.Equal(out[b].QueuedAt) {
			return out[a].QueuedAt.Before(out[b].QueuedAt)
		}
		return out[a].ItemID < out[b].ItemID
	})
	return out
}

// flushLocked writes the journal to disk. Failures are logged; the in-memory
// journal stays authoritative.
func (j *Journal) flushLocked() {
	if j.path == "" {
		return
	}
	data, err := json.MarshalIndent(journalData{Entries: j.sortedLocked()}, "", "  ")
	if err != nil {
		slog.Error("failed to encode pending journal", "error", err)
		return
	}
	if err := writeFileAtomic(j.path, data); err != nil {
		slog.Error("failed to write pending journal", "path", j.path, "error", err)
	}
}

// writeFileAtomic writes data using write-temp-fsync-rename so readers see
// either the old file or the new one.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
