package gc

import (
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
)

// budget tracks the time left for one Collect call. A non-positive limit
// never runs out.
type budget struct {
	clock clock.Clock
	start time.Time
	limit time.Duration
}

func newBudget(c clock.Clock, limit time.Duration) budget {
	return budget{clock: c, start: c.Now(), limit: limit}
}

func (b budget) exhausted() bool {
	return b.limit > 0 && b.clock.Now().Sub(b.start) >= b.limit
}

// stopwatch accumulates phase durations
type stopwatch struct {
	clock clock.Clock
	start time.Time
}

func startStopwatch(c clock.Clock) stopwatch {
	return stopwatch{clock: c, start: c.Now()}
}

func (s stopwatch) addTo(d *time.Duration) {
	*d += s.clock.Now().Sub(s.start)
}
