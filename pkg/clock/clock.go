package clock

import "time"

// Clock abstracts the current time so slot generation stays deterministic in
// tests. Production code uses Real; tests pin a Fixed instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns a clock backed by the system time.
func Real() Clock { return realClock{} }

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }
