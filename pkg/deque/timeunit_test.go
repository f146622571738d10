package deque

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeUnitDuration(t *testing.T) {
	d, ok := Milliseconds.Duration(150)
	require.True(t, ok)
	assert.Equal(t, 150*time.Millisecond, d)

	d, ok = Days.Duration(2)
	require.True(t, ok)
	assert.Equal(t, 48*time.Hour, d)

	_, ok = Hours.Duration(math.MaxInt64 / 2)
	assert.False(t, ok)
	_, ok = TimeUnit(-1).Duration(1)
	assert.False(t, ok)
}

func TestParseTimeUnit(t *testing.T) {
	for in, want := range map[string]TimeUnit{"ms": Milliseconds, "Seconds": Seconds, " m ": Minutes, "days": Days} {
		got, err := ParseTimeUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTimeUnit("fortnights")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "s", Seconds.String())
}

func TestOverflowingTimeoutIsInfinite(t *testing.T) {
	d := &BlockingDeque[string]{}
	dl, err := d.deadline(math.MaxInt64, Days)
	require.NoError(t, err)
	assert.True(t, dl.IsInfinite())
}
