// Package persist propagates segment changes to the remote store without
// blocking the tracker.
package persist

import (
	"context"
	"errors"

	"github.com/meetline/server/agenda"
)

var (
	// ErrValidation is returned by a remote that rejects a malformed patch.
	ErrValidation = errors.New("invalid segment patch")
	// ErrStaleWrite is returned by a remote that has already applied a newer
	// version for the item.
	ErrStaleWrite = errors.New("stale write")
)

// Patch is the partial update for one item: a full replacement of its
// segment list, the recomputed anchor and an optional status transition.
type Patch struct {
	Segments         []agenda.TimeRange `json:"time_segments"`
	StartedAtSeconds *int               `json:"started_at_seconds"`
	Status           agenda.Status      `json:"status,omitempty"`
	Version          uint64             `json:"version"`
}

// NewPatch builds a patch whose anchor matches the first segment.
func NewPatch(segs []agenda.TimeRange, status agenda.Status, version uint64) Patch {
	segs = agenda.CloneSegments(segs)
	if segs == nil {
		segs = []agenda.TimeRange{}
	}
	return Patch{
		Segments:         segs,
		StartedAtSeconds: agenda.Anchor(segs),
		Status:           status,
		Version:          version,
	}
}

// Remote is the store the gateway writes to. Sending the same patch twice
// must be idempotent.
type Remote interface {
	PatchSegments(ctx context.Context, itemID string, p Patch) error
}
