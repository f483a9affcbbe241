package engine

import "github.com/cz9874308/barter-rs/internal/schema"

// Feed is the engine's event source. Next blocks until an event is
// available and reports false once the source is exhausted or closed.
// Iterator and channel feeds have identical semantics; only the wakeup
// differs.
type Feed interface {
	Next() (schema.EngineEvent, bool)
}

// IterFeed pulls events synchronously from a slice: single-threaded
// and deterministic, suited to backtesting.
type IterFeed struct {
	events []schema.EngineEvent
	next   int
}

var _ Feed = (*IterFeed)(nil)

// NewIterFeed creates a feed over the given events.
func NewIterFeed(events ...schema.EngineEvent) *IterFeed {
	return &IterFeed{events: events}
}

func (f *IterFeed) Next() (schema.EngineEvent, bool) {
	if f.next >= len(f.events) {
		return schema.EngineEvent{}, false
	}
	event := f.events[f.next]
	f.next++
	return event, true
}

// ChannelFeed merges the market, account, and command streams for live
// trading. Sources are drained with a fair round-robin over non-empty
// channels; the commandPriority option drains commands first instead.
type ChannelFeed struct {
	market  chan schema.EngineEvent
	account chan schema.EngineEvent
	command chan schema.EngineEvent

	commandPriority bool
	rr              int
	open            [3]bool
}

var _ Feed = (*ChannelFeed)(nil)

// NewChannelFeed allocates the three source channels with the given
// buffer size.
func NewChannelFeed(buffer int, commandPriority bool) *ChannelFeed {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelFeed{
		market:          make(chan schema.EngineEvent, buffer),
		account:         make(chan schema.EngineEvent, buffer),
		command:         make(chan schema.EngineEvent, buffer),
		commandPriority: commandPriority,
		open:            [3]bool{true, true, true},
	}
}

// MarketIn is the producer side of the market stream.
func (f *ChannelFeed) MarketIn() chan<- schema.EngineEvent { return f.market }

// AccountIn is the producer side of the account stream.
func (f *ChannelFeed) AccountIn() chan<- schema.EngineEvent { return f.account }

// CommandIn is the producer side of the command stream. Shutdown and
// trading-state events travel here as well.
func (f *ChannelFeed) CommandIn() chan<- schema.EngineEvent { return f.command }

// Close closes every producer channel; the engine drains what remains
// and stops.
func (f *ChannelFeed) Close() {
	close(f.market)
	close(f.account)
	close(f.command)
}

func (f *ChannelFeed) source(index int) chan schema.EngineEvent {
	switch index {
	case 0:
		return f.market
	case 1:
		return f.account
	default:
		return f.command
	}
}

func (f *ChannelFeed) Next() (schema.EngineEvent, bool) {
	const commandIndex = 2

	for {
		if f.commandPriority && f.open[commandIndex] {
			select {
			case event, ok := <-f.command:
				if ok {
					return event, true
				}
				f.open[commandIndex] = false
			default:
			}
		}

		// One non-blocking rotation over the remaining sources.
		for i := 0; i < 3; i++ {
			index := (f.rr + i) % 3
			if !f.open[index] {
				continue
			}
			select {
			case event, ok := <-f.source(index):
				if !ok {
					f.open[index] = false
					continue
				}
				f.rr = (index + 1) % 3
				return event, true
			default:
			}
		}

		if !f.open[0] && !f.open[1] && !f.open[2] {
			return schema.EngineEvent{}, false
		}

		// Everything empty: block until any source produces.
		market, account, command := f.market, f.account, f.command
		if !f.open[0] {
			market = nil
		}
		if !f.open[1] {
			account = nil
		}
		if !f.open[2] {
			command = nil
		}
		select {
		case event, ok := <-market:
			if !ok {
				f.open[0] = false
				continue
			}
			f.rr = 1
			return event, true
		case event, ok := <-account:
			if !ok {
				f.open[1] = false
				continue
			}
			f.rr = 2
			return event, true
		case event, ok := <-command:
			if !ok {
				f.open[2] = false
				continue
			}
			f.rr = 0
			return event, true
		}
	}
}
