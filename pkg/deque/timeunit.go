package deque

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnit scales a timeout magnitude.
type TimeUnit int

const (
	Nanoseconds TimeUnit = iota
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var unitSizes = [...]time.Duration{
	Nanoseconds:  time.Nanosecond,
	Microseconds: time.Microsecond,
	Milliseconds: time.Millisecond,
	Seconds:      time.Second,
	Minutes:      time.Minute,
	Hours:        time.Hour,
	Days:         24 * time.Hour,
}

var unitNames = [...]string{"ns", "us", "ms", "s", "m", "h", "d"}

func (u TimeUnit) valid() bool { return u >= Nanoseconds && u <= Days }

func (u TimeUnit) String() string {
	if !u.valid() {
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
	return unitNames[u]
}

// Duration converts n units. The second result is false when the product
// does not fit in a time.Duration.
func (u TimeUnit) Duration(n int64) (time.Duration, bool) {
	if !u.valid() {
		return 0, false
	}
	size := int64(unitSizes[u])
	if n > math.MaxInt64/size || n < math.MinInt64/size {
		return 0, false
	}
	return time.Duration(n * size), true
}

// ParseTimeUnit accepts the short names printed by String and the long
// English forms ("seconds", "millis").
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ns", "nanos", "nanoseconds":
		return Nanoseconds, nil
	case "us", "micros", "microseconds":
		return Microseconds, nil
	case "ms", "millis", "milliseconds":
		return Milliseconds, nil
	case "s", "sec", "seconds":
		return Seconds, nil
	case "m", "min", "minutes":
		return Minutes, nil
	case "h", "hours":
		return Hours, nil
	case "d", "days":
		return Days, nil
	}
	return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidArgument, s)
}
