package segment

import (
	"testing"

	"github.com/meetline/server/agenda"
)

func TestDwell(t *testing.T) {
	tests := []struct {
		name string
		segs []agenda.TimeRange
		want int
	}{
		{"empty", nil, 0},
		{"closed", []agenda.TimeRange{agenda.Closed(0, 10), agenda.Closed(20, 35)}, 25},
		{"open contributes nothing", []agenda.TimeRange{agenda.Closed(0, 10), agenda.Open(20)}, 10},
		{"zero length", []agenda.TimeRange{agenda.Closed(5, 5)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dwell(tt.segs); got != tt.want {
				t.Errorf("Dwell = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDwellReport_AfterScenario(t *testing.T) {
	tr := newTracker(t)
	_ = tr.StartSession(0)
	_ = tr.SwitchTo("C1", 15)
	_ = tr.SwitchTo("G1", 25)
	_ = tr.SwitchTo("R2", 40)
	_ = tr.SwitchTo("R1", 70)
	tr.StopSession(90)

	rep := DwellReport(tr.Snapshot())

	if len(rep.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(rep.Entries))
	}
	want := []struct {
		id, number      string
		seconds, rollup int
		ranges          int
	}{
		{"R1", "1", 35, 60, 2},
		{"C1", "1.1", 10, 25, 1},
		{"G1", "1.1.1", 15, 15, 1},
		{"R2", "2", 30, 30, 1},
	}
	for i, w := range want {
		e := rep.Entries[i]
		if e.ItemID != w.id || e.Number != w.number || e.Seconds != w.seconds || e.RollupSeconds != w.rollup || e.Ranges != w.ranges {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
		if e.Open {
			t.Errorf("entry %s reports an open range after stop", e.ItemID)
		}
	}
	if rep.TotalSeconds != 90 {
		t.Errorf("TotalSeconds = %d, want 90", rep.TotalSeconds)
	}
}

func TestDwellReport_MarksOpenRange(t *testing.T) {
	tr := newTracker(t)
	_ = tr.StartSession(0)
	_ = tr.SwitchTo("R2", 10)

	rep := DwellReport(tr.Snapshot())
	last := rep.Entries[len(rep.Entries)-1]
	if last.ItemID != "R2" || !last.Open || last.Seconds != 0 {
		t.Errorf("R2 entry = %+v", last)
	}
}
