package strategy

import (
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

// MarketCloser is the default ClosePositions implementation: cancel
// every resting order on the selected instruments and flatten each
// open position with an opposite-side market order.
type MarketCloser struct{}

var _ ClosePositions = MarketCloser{}

func (MarketCloser) CloseOrders(s *state.EngineState, filter schema.Filter) ([]schema.CancelRequest, []schema.OrderRequest) {
	var cancels []schema.CancelRequest
	var opens []schema.OrderRequest

	reg := s.Registry()
	for i := range s.Instruments {
		index := schema.InstrumentIndex(i)
		inst, ok := reg.Instrument(index)
		if !ok || !filter.MatchesInstrument(inst, index) {
			continue
		}

		for _, o := range s.Instruments[i].Orders.ActiveOrders() {
			if o.State == schema.OrderStateInFlightCancel {
				continue
			}
			cancels = append(cancels, schema.CancelRequest{
				Instrument: index,
				Exchange:   inst.Exchange,
				ID:         o.ID,
			})
		}

		pos := s.Instruments[i].Position
		if pos == nil || pos.Quantity.Sign() <= 0 {
			continue
		}
		opens = append(opens, schema.OrderRequest{
			Instrument:  index,
			Exchange:    inst.Exchange,
			Side:        pos.Side.Opposite(),
			Kind:        schema.OrderMarket,
			TimeInForce: schema.TimeInForceIOC,
			Quantity:    pos.Quantity,
		})
	}
	return cancels, opens
}

// Noop provides every capability with empty output; useful as the
// default wiring and in tests.
type Noop struct{}

var (
	_ Algo           = Noop{}
	_ ClosePositions = Noop{}
	_ OnDisconnect   = Noop{}
)

func (Noop) GenerateOrders(*state.EngineState) []schema.OrderRequest { return nil }

func (Noop) CloseOrders(*state.EngineState, schema.Filter) ([]schema.CancelRequest, []schema.OrderRequest) {
	return nil, nil
}

func (Noop) OnDisconnect(*state.EngineState, schema.ExchangeIndex) []schema.OrderRequest {
	return nil
}
