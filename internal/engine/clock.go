package engine

import (
	"time"

	"github.com/cz9874308/barter-rs/internal/schema"
)

// Clock determines the engine's current time. Injecting it lets
// backtests run on approximately correct historical timestamps while
// live trading uses the wall clock.
type Clock interface {
	// Now returns the engine time in nanoseconds.
	Now() int64
	// Process lets the clock observe each event before it is applied.
	Process(event *schema.EngineEvent)
}

// LiveClock reads the wall clock.
type LiveClock struct{}

var _ Clock = LiveClock{}

func (LiveClock) Now() int64                  { return time.Now().UTC().UnixNano() }
func (LiveClock) Process(*schema.EngineEvent) {}

// HistoricalClock advances with the exchange timestamps of the events
// it observes, never backwards.
type HistoricalClock struct {
	now int64
}

var _ Clock = (*HistoricalClock)(nil)

// NewHistoricalClock starts the clock at the given time.
func NewHistoricalClock(start int64) *HistoricalClock {
	return &HistoricalClock{now: start}
}

func (c *HistoricalClock) Now() int64 { return c.now }

func (c *HistoricalClock) Process(event *schema.EngineEvent) {
	var ts int64
	switch event.Kind {
	case schema.EventMarket:
		if event.Market != nil {
			ts = event.Market.TimeExchange
		}
	case schema.EventAccount:
		if event.Account != nil {
			ts = event.Account.TimeExchange
		}
	}
	if ts > c.now {
		c.now = ts
	}
}
