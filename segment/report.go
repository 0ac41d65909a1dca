package segment

import "github.com/meetline/server/agenda"

// Dwell sums end-start over the closed ranges. Open ranges contribute 0.
func Dwell(segs []agenda.TimeRange) int {
	total := 0
	for _, r := range segs {
		total += r.Duration()
	}
	return total
}

// DwellEntry is one row of the dwell report.
type DwellEntry struct {
	ItemID   string        `json:"item_id"`
	Number   string        `json:"number"`
	Title    string        `json:"title"`
	Depth    int           `json:"depth"`
	Status   agenda.Status `json:"status"`
	Ranges   int           `json:"ranges"`
	Seconds  int           `json:"seconds"`
	Open     bool          `json:"open"`

	// RollupSeconds adds the dwell of every descendant.
	RollupSeconds int `json:"rollup_seconds"`
}

// Report is the dwell table for a whole agenda, in display order.
type Report struct {
	Entries      []DwellEntry `json:"entries"`
	TotalSeconds int          `json:"total_seconds"`
}

func DwellReport(tree *agenda.Tree) Report {
	numbers := tree.Numbering()
	var rep Report
	pos := make(map[string]int, tree.Len())

	tree.Walk(func(n *agenda.Node) bool {
		d := Dwell(n.TimeSegments)
		pos[n.ID] = len(rep.Entries)
		rep.Entries = append(rep.Entries, DwellEntry{
			ItemID:        n.ID,
			Number:        numbers[n.ID],
			Title:         n.Title,
			Depth:         n.Depth,
			Status:        n.Status,
			Ranges:        len(n.TimeSegments),
			Seconds:       d,
			Open:          agenda.CountOpen(n.TimeSegments) > 0,
			RollupSeconds: d,
		})
		rep.TotalSeconds += d
		return true
	})

	// Walk is pre-order, so iterating backwards visits children before
	// their parents.
	for i := len(rep.Entries) - 1; i >= 0; i-- {
		n, _ := tree.FindByID(rep.Entries[i].ItemID)
		if n.Parent != nil {
			rep.Entries[pos[n.Parent.ID]].RollupSeconds += rep.Entries[i].RollupSeconds
		}
	}
	return rep
}
