package clock

// Guard enforces that accepted timestamps never go backwards within one
// session. It is not safe for concurrent use; the owner serialises access.
type Guard struct {
	last int
	seen bool
}

// Accept returns the value to use for now: now itself, or the last accepted
// value if now is lower. Negative values are clamped to zero. clamped
// reports whether the input was adjusted.
func (g *Guard) Accept(now int) (accepted int, clamped bool) {
	if now < 0 {
		now, clamped = 0, true
	}
	if g.seen && now < g.last {
		return g.last, true
	}
	g.last = now
	g.seen = true
	return now, clamped
}

// Last returns the most recently accepted value and whether any exists.
func (g *Guard) Last() (int, bool) { return g.last, g.seen }

func (g *Guard) Reset() {
	g.last = 0
	g.seen = false
}
