// Package store holds the remote copy of the agenda that segment patches are
// written to.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/persist"
)

var (
	ErrItemNotFound = errors.New("agenda item not found")
	ErrStaleWrite   = persist.ErrStaleWrite
)

// Record is one stored item plus the version of the last accepted patch.
type Record struct {
	agenda.Item
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Record) Clone() Record {
	r.Item = r.Item.Clone()
	return r
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

type ChangeEvent struct {
	Op     Operation
	Record Record
}

type OnChangeListener interface {
	OnRecordChange(event ChangeEvent)
}

// Store is the remote agenda. Writes from this process and, for backends
// that support it, from other processes are reported to listeners.
type Store interface {
	persist.Remote

	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (Record, bool, error)

	// Replace swaps the whole agenda, e.g. when seeding from an outline.
	// Versions restart at zero.
	Replace(ctx context.Context, items []agenda.Item) error

	AddOnChangeListener(listener OnChangeListener)

	// StartWatching begins monitoring for external changes.
	StartWatching() error
	StopWatching()
	Close() error
}

// Items strips records down to their items.
func Items(records []Record) []agenda.Item {
	out := make([]agenda.Item, len(records))
	for i, r := range records {
		out[i] = r.Item.Clone()
	}
	return out
}

// Versions maps item id to stored version.
func Versions(records []Record) map[string]uint64 {
	out := make(map[string]uint64, len(records))
	for _, r := range records {
		out[r.ID] = r.Version
	}
	return out
}

// applyPatch validates p against rec and returns the updated record.
func applyPatch(rec Record, p persist.Patch, now time.Time) (Record, error) {
	if p.Version < rec.Version {
		return Record{}, fmt.Errorf("%w: item %s at version %d, got %d", ErrStaleWrite, rec.ID, rec.Version, p.Version)
	}
	rec = rec.Clone()
	rec.TimeSegments = agenda.CloneSegments(p.Segments)
	rec.StartedAtSeconds = agenda.Anchor(rec.TimeSegments)
	if p.Status != "" {
		rec.Status = p.Status
	}
	rec.Version = p.Version
	rec.UpdatedAt = now
	return rec, nil
}

func recordsFromItems(items []agenda.Item, now time.Time) ([]Record, error) {
	tree, err := agenda.NewTree(items)
	if err != nil {
		return nil, err
	}
	ordered := tree.Items()
	out := make([]Record, len(ordered))
	for i, it := range ordered {
		it.StartedAtSeconds = agenda.Anchor(it.TimeSegments)
		out[i] = Record{Item: it, UpdatedAt: now}
	}
	return out, nil
}

func recordChanged(a, b Record) bool {
	return a.Title != b.Title ||
		a.Description != b.Description ||
		a.ParentID != b.ParentID ||
		a.Order != b.Order ||
		a.Status != b.Status ||
		a.Version != b.Version ||
		!agenda.SegmentsEqual(a.TimeSegments, b.TimeSegments)
}

func diffRecords(old, updated []Record) []ChangeEvent {
	var events []ChangeEvent

	oldMap := make(map[string]Record, len(old))
	for _, r := range old {
		oldMap[r.ID] = r
	}
	newMap := make(map[string]Record, len(updated))
	for _, r := range updated {
		newMap[r.ID] = r
	}

	for _, r := range old {
		if _, exists := newMap[r.ID]; !exists {
			events = append(events, ChangeEvent{Op: OperationDelete, Record: r})
		}
	}
	for _, r := range updated {
		prev, exists := oldMap[r.ID]
		if !exists {
			events = append(events, ChangeEvent{Op: OperationCreate, Record: r})
		} else if recordChanged(prev, r) {
			events = append(events, ChangeEvent{Op: OperationUpdate, Record: r})
		}
	}
	return events
}

// Must be called WITHOUT the store lock held.
func notify(listeners []OnChangeListener, events ...ChangeEvent) {
	for _, e := range events {
		for _, l := range listeners {
			l.OnRecordChange(e)
		}
	}
}
