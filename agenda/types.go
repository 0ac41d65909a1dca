// Package agenda models the hierarchical meeting agenda and the time ranges
// recorded against each item.
package agenda

import (
	"errors"
	"slices"
)

var (
	ErrItemNotFound     = errors.New("agenda item not found")
	ErrInvalidTree      = errors.New("invalid agenda tree")
	ErrInvalidSegments  = errors.New("invalid time segments")
	ErrInvalidOutline   = errors.New("invalid agenda outline")
	ErrUnsupportedInput = errors.New("unsupported outline format")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ValidateStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// TimeRange is the half-open interval [Start, End) of recording-elapsed
// seconds. A nil End means the range is still open.
type TimeRange struct {
	Start int  `json:"start"`
	End   *int `json:"end"`
}

func Closed(start, end int) TimeRange {
	return TimeRange{Start: start, End: &end}
}

func Open(start int) TimeRange {
	return TimeRange{Start: start}
}

func (r TimeRange) IsOpen() bool { return r.End == nil }

// Duration returns End-Start for a closed range and 0 for an open one.
func (r TimeRange) Duration() int {
	if r.End == nil {
		return 0
	}
	return *r.End - r.Start
}

// Contains reports whether t falls inside [Start, End). Open ranges extend
// to infinity.
func (r TimeRange) Contains(t float64) bool {
	if t < float64(r.Start) {
		return false
	}
	return r.End == nil || t < float64(*r.End)
}

type Item struct {
	ID           string      `json:"id"`
	ParentID     string      `json:"parent_id,omitempty"`
	Order        int         `json:"order"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Status       Status      `json:"status"`
	TimeSegments []TimeRange `json:"time_segments"`
	// StartedAtSeconds is the legacy single-timestamp anchor kept for readers
	// that predate TimeSegments. Always equals TimeSegments[0].Start.
	StartedAtSeconds *int `json:"started_at_seconds"`
}

// Clone returns a deep copy so callers can hand items across goroutines.
func (it Item) Clone() Item {
	it.TimeSegments = CloneSegments(it.TimeSegments)
	if it.StartedAtSeconds != nil {
		v := *it.StartedAtSeconds
		it.StartedAtSeconds = &v
	}
	return it
}

func CloneSegments(segs []TimeRange) []TimeRange {
	out := make([]TimeRange, len(segs))
	for i, r := range segs {
		out[i].Start = r.Start
		if r.End != nil {
			end := *r.End
			out[i].End = &end
		}
	}
	return out
}

// Anchor returns the start of the first segment, or nil when segs is empty.
func Anchor(segs []TimeRange) *int {
	if len(segs) == 0 {
		return nil
	}
	v := segs[0].Start
	return &v
}

// SegmentsEqual compares two segment lists by value.
func SegmentsEqual(a, b []TimeRange) bool {
	return slices.EqualFunc(a, b, func(x, y TimeRange) bool {
		if x.Start != y.Start {
			return false
		}
		if x.End == nil || y.End == nil {
			return x.End == nil && y.End == nil
		}
		return *x.End == *y.End
	})
}
