package clock

import (
	"testing"
	"time"
)

type fakeTime struct{ t time.Time }

func newFakeTime() *fakeTime { return &fakeTime{t: time.Unix(1_700_000_000, 0)} }

func (f *fakeTime) now() time.Time          { return f.t }
func (f *fakeTime) advance(d time.Duration) { f.t = f.t.Add(d) }

func wallAt(ft *fakeTime) *Wall { return NewWall(ft.now) }

func expectElapsed(t *testing.T, c Source, want int) {
	t.Helper()
	if got := c.Elapsed(); got != want {
		t.Errorf("Elapsed = %d, want %d", got, want)
	}
}

func TestWall_NotStarted(t *testing.T) {
	ft := newFakeTime()
	c := wallAt(ft)
	ft.advance(time.Minute)
	expectElapsed(t, c, 0)
}

func TestWall_CountsWholeSeconds(t *testing.T) {
	ft := newFakeTime()
	c := wallAt(ft)
	c.Start()

	ft.advance(2500 * time.Millisecond)
	expectElapsed(t, c, 2)
}

func TestWall_FreezeExcludesPausedInterval(t *testing.T) {
	ft := newFakeTime()
	c := wallAt(ft)
	c.Start()

	ft.advance(10 * time.Second)
	c.Freeze()
	ft.advance(30 * time.Second)
	expectElapsed(t, c, 10)

	c.Thaw()
	ft.advance(5 * time.Second)
	expectElapsed(t, c, 15)
}

func TestWall_StopIsPermanentUntilStart(t *testing.T) {
	ft := newFakeTime()
	c := wallAt(ft)
	c.Start()
	ft.advance(20 * time.Second)
	c.Stop()
	c.Thaw()
	ft.advance(20 * time.Second)
	expectElapsed(t, c, 20)

	c.Start()
	ft.advance(3 * time.Second)
	expectElapsed(t, c, 3)
}

func TestManual(t *testing.T) {
	var m Manual
	m.Start()
	m.Advance(10)
	m.Set(5) // behind, ignored
	expectElapsed(t, &m, 10)

	m.Freeze()
	m.Advance(10)
	expectElapsed(t, &m, 10)

	m.Thaw()
	m.Set(42)
	expectElapsed(t, &m, 42)
}

func TestGuard(t *testing.T) {
	var g Guard

	if v, clamped := g.Accept(10); v != 10 || clamped {
		t.Errorf("Accept(10) = %d, %v", v, clamped)
	}
	if v, clamped := g.Accept(4); v != 10 || !clamped {
		t.Errorf("Accept(4) = %d, %v, want 10, true", v, clamped)
	}
	if v, clamped := g.Accept(12); v != 12 || clamped {
		t.Errorf("Accept(12) = %d, %v", v, clamped)
	}

	g.Reset()
	if v, clamped := g.Accept(0); v != 0 || clamped {
		t.Errorf("after reset Accept(0) = %d, %v", v, clamped)
	}
	if v, clamped := g.Accept(-3); v != 0 || !clamped {
		t.Errorf("Accept(-3) = %d, %v, want 0, true", v, clamped)
	}
}
