// Package strategy defines the user-provided decision hooks invoked by
// the engine loop. An implementation may provide any subset of the
// three capabilities; hooks observe the engine state read-only and
// never mutate it. Client order ids are assigned by the engine after
// generation.
package strategy

import (
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

// Algo generates algorithmic orders once per engine tick, after the
// state has been updated and only while trading is enabled.
type Algo interface {
	GenerateOrders(s *state.EngineState) []schema.OrderRequest
}

// ClosePositions builds the cancel and open requests that flatten the
// positions selected by the filter.
type ClosePositions interface {
	CloseOrders(s *state.EngineState, filter schema.Filter) (cancels []schema.CancelRequest, opens []schema.OrderRequest)
}

// OnDisconnect reacts to an exchange transitioning to reconnecting.
type OnDisconnect interface {
	OnDisconnect(s *state.EngineState, exchange schema.ExchangeIndex) []schema.OrderRequest
}
