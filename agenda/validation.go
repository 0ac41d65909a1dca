package agenda

import "fmt"

// MaxDepth is the number of hierarchy levels an agenda may have:
// root, child, grandchild.
const MaxDepth = 3

// ValidateSegments checks the per-item ordering rules: ranges are sorted by
// start, pairwise non-overlapping, closed ranges never end before they
// start, and only the last range may be open.
func ValidateSegments(segs []TimeRange) error {
	for i, r := range segs {
		if r.Start < 0 {
			return fmt.Errorf("%w: segment %d has negative start %d", ErrInvalidSegments, i, r.Start)
		}
		if r.End != nil {
			if *r.End < 0 {
				return fmt.Errorf("%w: segment %d has negative end %d", ErrInvalidSegments, i, *r.End)
			}
			if *r.End < r.Start {
				return fmt.Errorf("%w: segment %d ends at %d before it starts at %d", ErrInvalidSegments, i, *r.End, r.Start)
			}
		} else if i != len(segs)-1 {
			return fmt.Errorf("%w: segment %d is open but not last", ErrInvalidSegments, i)
		}
		if i == 0 {
			continue
		}
		prev := segs[i-1]
		if r.Start < prev.Start {
			return fmt.Errorf("%w: segment %d starts at %d before segment %d at %d", ErrInvalidSegments, i, r.Start, i-1, prev.Start)
		}
		if prev.End != nil && *prev.End > r.Start {
			return fmt.Errorf("%w: segment %d overlaps segment %d", ErrInvalidSegments, i-1, i)
		}
	}
	return nil
}

// CountOpen returns the number of open ranges in segs.
func CountOpen(segs []TimeRange) int {
	n := 0
	for _, r := range segs {
		if r.IsOpen() {
			n++
		}
	}
	return n
}
