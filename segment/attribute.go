package segment

import (
	"math"
	"sort"
	"strings"

	"github.com/meetline/server/agenda"
)

// Fragment is one piece of transcript text positioned in elapsed seconds.
// End may be omitted (zero or lower than Start) for point-in-time fragments.
type Fragment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end,omitempty"`
	Text  string  `json:"text"`
}

func (f Fragment) midpoint() float64 {
	end := f.End
	if end < f.Start {
		end = f.Start
	}
	return (f.Start + end) / 2
}

// Attribution is the result of assigning fragments to agenda items.
type Attribution struct {
	ByItem     map[string][]Fragment `json:"by_item"`
	Unassigned []Fragment            `json:"unassigned"`
}

// Attribute assigns each fragment to the item whose range contains the
// fragment's midpoint. Items without ranges but with an anchor cover the
// span from their anchor to the next anchor in time. Fragments with blank
// text are skipped.
func Attribute(tree *agenda.Tree, fragments []Fragment) Attribution {
	res := Attribution{ByItem: make(map[string][]Fragment)}
	legacy := legacySpans(tree)

	for _, f := range fragments {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		id, ok := itemAt(tree, legacy, f.midpoint())
		if !ok {
			res.Unassigned = append(res.Unassigned, f)
			continue
		}
		res.ByItem[id] = append(res.ByItem[id], f)
	}
	return res
}

// ItemAt returns the item being discussed at elapsed second t.
func ItemAt(tree *agenda.Tree, t float64) (string, bool) {
	return itemAt(tree, legacySpans(tree), t)
}

type span struct {
	id         string
	start, end float64
}

func itemAt(tree *agenda.Tree, legacy []span, t float64) (string, bool) {
	var found string
	tree.Walk(func(n *agenda.Node) bool {
		for _, r := range n.TimeSegments {
			if r.Contains(t) {
				found = n.ID
				return false
			}
		}
		return true
	})
	if found != "" {
		return found, true
	}
	for _, s := range legacy {
		if t >= s.start && t < s.end {
			return s.id, true
		}
	}
	return "", false
}

// legacySpans derives ranges for items that only carry an anchor. The next
// anchor is taken across all anchored items, ranged or not.
func legacySpans(tree *agenda.Tree) []span {
	type anchored struct {
		id     string
		at     int
		legacy bool
	}
	var all []anchored
	tree.Walk(func(n *agenda.Node) bool {
		if n.StartedAtSeconds != nil {
			all = append(all, anchored{id: n.ID, at: *n.StartedAtSeconds, legacy: len(n.TimeSegments) == 0})
		}
		return true
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].at < all[j].at })

	var out []span
	for i, a := range all {
		if !a.legacy {
			continue
		}
		end := math.Inf(1)
		if i+1 < len(all) {
			end = float64(all[i+1].at)
		}
		out = append(out, span{id: a.id, start: float64(a.at), end: end})
	}
	return out
}
