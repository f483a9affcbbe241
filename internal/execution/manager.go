// Package execution fans engine requests out to per-exchange outbound
// channels, deduplicates in-flight requests, and sheds non-cancel
// traffic under backpressure.
package execution

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/cz9874308/barter-rs/internal/schema"
)

var (
	ErrClosed          = errors.New("execution: manager closed")
	ErrUnknownExchange = errors.New("execution: unknown exchange")
	ErrDuplicate       = errors.New("execution: duplicate in-flight request")
	ErrBackpressure    = errors.New("execution: backpressure shed")
)

// DefaultHighWater is the default per-exchange backlog threshold above
// which non-cancel requests are shed.
const DefaultHighWater = 10000

type requestKey struct {
	exchange schema.ExchangeIndex
	kind     schema.ExecutionRequestKind
	id       schema.OrderID
}

// Manager routes execution requests to one outbound channel per
// exchange. It is driven from the engine task only; exchange workers
// consume the channels concurrently.
type Manager struct {
	queues    []chan schema.ExecutionRequest
	highWater int
	inflight  map[requestKey]struct{}
	closed    bool
}

// NewManager allocates outbound channels for exchangeCount exchanges.
func NewManager(exchangeCount, highWater int) *Manager {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	queues := make([]chan schema.ExecutionRequest, exchangeCount)
	for i := range queues {
		// Cancels are admitted past the high-water mark, so the
		// channel leaves headroom above it.
		queues[i] = make(chan schema.ExecutionRequest, highWater*2)
	}
	return &Manager{
		queues:    queues,
		highWater: highWater,
		inflight:  make(map[requestKey]struct{}),
	}
}

// Channel returns the outbound channel for an exchange.
func (m *Manager) Channel(exchange schema.ExchangeIndex) (<-chan schema.ExecutionRequest, bool) {
	if int(exchange) >= len(m.queues) {
		return nil, false
	}
	return m.queues[exchange], true
}

// Route posts one request to its exchange channel. Requests already
// in flight are dropped; non-cancel requests are shed once the
// backlog crosses the high-water mark.
func (m *Manager) Route(req schema.ExecutionRequest) error {
	if m.closed {
		return ErrClosed
	}
	exchange := req.Exchange()
	if int(exchange) >= len(m.queues) {
		return errors.Wrap(ErrUnknownExchange, exchange.String())
	}

	key := requestKey{exchange: exchange, kind: req.Kind, id: req.OrderID()}
	if _, ok := m.inflight[key]; ok {
		return errors.Wrap(ErrDuplicate, req.OrderID().String())
	}

	queue := m.queues[exchange]
	if req.Kind != schema.ExecutionCancel && len(queue) >= m.highWater {
		logs.Infof("execution backpressure: shedding order %d on exchange %d (backlog %d)",
			req.OrderID(), exchange, len(queue))
		return errors.Wrap(ErrBackpressure, req.OrderID().String())
	}

	select {
	case queue <- req:
	default:
		// Channel headroom exhausted; cancels included at this point.
		return errors.Wrap(ErrBackpressure, req.OrderID().String())
	}
	m.inflight[key] = struct{}{}
	return nil
}

// Resolve clears the in-flight entry once the exchange confirmed the
// request.
func (m *Manager) Resolve(exchange schema.ExchangeIndex, kind schema.ExecutionRequestKind, id schema.OrderID) {
	delete(m.inflight, requestKey{exchange: exchange, kind: kind, id: id})
}

// InFlightCount returns the number of outstanding requests.
func (m *Manager) InFlightCount() int { return len(m.inflight) }

// Close closes every outbound channel. Routing afterwards fails with
// ErrClosed.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	for _, queue := range m.queues {
		close(queue)
	}
}
