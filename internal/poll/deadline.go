package poll

import "time"

// Deadline is an absolute wall-clock limit or infinity.
type Deadline struct {
	at       time.Time
	infinite bool
}

// Infinite never expires.
func Infinite() Deadline { return Deadline{infinite: true} }

// At expires at t.
func At(t time.Time) Deadline { return Deadline{at: t} }

// After expires d from now. d <= 0 yields a deadline that has already
// passed, which polls each queue once without waiting.
func After(d time.Duration) Deadline {
	now := time.Now()
	if d <= 0 {
		return Deadline{at: now}
	}
	return Deadline{at: now.Add(d)}
}

func (d Deadline) IsInfinite() bool { return d.infinite }

// Time returns the expiry; zero for an infinite deadline.
func (d Deadline) Time() time.Time { return d.at }

// Remaining returns the time left at now, clamped at zero.
func (d Deadline) Remaining(now time.Time) time.Duration {
	if d.infinite {
		return time.Duration(1<<63 - 1)
	}
	if r := d.at.Sub(now); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether d has passed at now.
func (d Deadline) Expired(now time.Time) bool {
	return !d.infinite && !d.at.After(now)
}

func (d Deadline) String() string {
	if d.infinite {
		return "infinite"
	}
	return d.at.Format(time.RFC3339Nano)
}
