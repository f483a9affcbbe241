// Package state owns the engine's authoritative in-memory trading
// snapshot: trading flag, connectivity, asset balances, per-instrument
// market data, order managers, positions, and the closed-position
// ledger. A single deterministic Apply folds every event kind into the
// state and reports the resulting delta.
package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/order"
	"github.com/cz9874308/barter-rs/internal/registry"
	"github.com/cz9874308/barter-rs/internal/schema"
)

// GlobalData is the user payload carried inside the engine state. It
// observes every market and account event after the engine-owned
// fields are updated.
type GlobalData interface {
	ProcessMarket(event *schema.MarketEvent)
	ProcessAccount(event *schema.AccountEvent)
}

// NoopGlobal is the default empty global payload.
type NoopGlobal struct{}

func (NoopGlobal) ProcessMarket(*schema.MarketEvent)   {}
func (NoopGlobal) ProcessAccount(*schema.AccountEvent) {}

// InstrumentState is the per-instrument slot of the engine state.
type InstrumentState struct {
	Market   MarketData
	Orders   *order.Manager
	Position *Position
}

// EngineState is the single authoritative snapshot owned by the
// engine task. It is never shared across goroutines; hooks observe it
// through read-only references during invocation.
type EngineState struct {
	Trading      schema.TradingState
	Global       GlobalData
	Connectivity []schema.ConnectivityState
	Assets       []AssetState
	Instruments  []InstrumentState
	Closed       []ClosedPosition

	registry *registry.Registry
}

// ApplyResult reports the outcome of folding one event into the state.
type ApplyResult struct {
	Delta Delta
	// Errors are the per-event non-fatal anomalies, captured for the
	// audit tick.
	Errors []string
	// Reconnecting lists exchanges that transitioned to Reconnecting,
	// for the disconnect strategy hook.
	Reconnecting []schema.ExchangeIndex
}

// New builds the engine state for every entity in the registry.
func New(reg *registry.Registry, initial schema.TradingState, global GlobalData, reconcileTimeout time.Duration) *EngineState {
	if global == nil {
		global = NoopGlobal{}
	}
	s := &EngineState{
		Trading:      initial,
		Global:       global,
		Connectivity: make([]schema.ConnectivityState, reg.ExchangeCount()),
		Assets:       make([]AssetState, reg.AssetCount()),
		Instruments:  make([]InstrumentState, reg.InstrumentCount()),
		registry:     reg,
	}
	for i := range s.Assets {
		s.Assets[i] = AssetState{Total: decimal.Zero, Free: decimal.Zero}
	}
	for i, inst := range reg.Instruments() {
		s.Instruments[i] = InstrumentState{
			Orders: order.NewManager(schema.InstrumentIndex(i), inst.Exchange, reconcileTimeout),
		}
	}
	return s
}

// Registry returns the registry the state was built from.
func (s *EngineState) Registry() *registry.Registry { return s.registry }

// Instrument returns the instrument slot by index.
func (s *EngineState) Instrument(index schema.InstrumentIndex) (*InstrumentState, bool) {
	if int(index) >= len(s.Instruments) {
		return nil, false
	}
	return &s.Instruments[index], true
}

// Apply folds one event into the state. now is the engine-local time
// in nanoseconds, used only for order reconcile deadlines.
func (s *EngineState) Apply(event *schema.EngineEvent, now int64) ApplyResult {
	var res ApplyResult
	switch event.Kind {
	case schema.EventMarket:
		if event.Market != nil {
			s.applyMarket(event.Market, &res)
			s.Global.ProcessMarket(event.Market)
		}
	case schema.EventAccount:
		if event.Account != nil {
			s.applyAccount(event.Account, now, &res)
			s.Global.ProcessAccount(event.Account)
		}
	case schema.EventTradingState:
		if s.Trading != event.TradingState {
			s.Trading = event.TradingState
			trading := event.TradingState
			res.Delta.Trading = &trading
		}
	}
	s.sweepGhosts(now, &res)
	return res
}

// applyMarket updates the instrument's public market view. Orders and
// positions are never touched by market data.
func (s *EngineState) applyMarket(event *schema.MarketEvent, res *ApplyResult) {
	inst, ok := s.Instrument(event.Instrument)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown instrument %d", event.Instrument))
		return
	}
	switch event.Kind {
	case schema.MarketTrade:
		if event.Trade != nil {
			trade := *event.Trade
			inst.Market.LastTrade = &trade
		}
	case schema.MarketBookL1:
		if event.Book != nil {
			book := *event.Book
			inst.Market.Book = &book
		}
	}
	inst.Market.TimeExchangeUpdate = event.TimeExchange
	res.Delta.Markets = append(res.Delta.Markets, MarketDelta{
		Instrument: event.Instrument,
		Market:     inst.Market,
	})
}

func (s *EngineState) applyAccount(event *schema.AccountEvent, now int64, res *ApplyResult) {
	if int(event.Exchange) >= len(s.Connectivity) {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown exchange %d", event.Exchange))
		return
	}
	switch event.Kind {
	case schema.AccountConnectivity:
		if event.Connectivity != nil {
			s.applyConnectivity(event.Exchange, event.Connectivity.State, res)
		}
	case schema.AccountBalance:
		if event.Balance != nil {
			s.applyBalance(event.Balance, event.TimeExchange, res)
		}
	case schema.AccountSnapshot:
		if event.Snapshot != nil {
			s.applySnapshot(event.Exchange, event.Snapshot, event.TimeExchange, res)
		}
	case schema.AccountOrderUpdate:
		if event.Order != nil {
			s.applyOrderUpdate(event.Order, now, res)
		}
	case schema.AccountTrade:
		if event.Trade != nil {
			s.applyTrade(event.Trade, event.TimeExchange, now, res)
		}
	}
}

func (s *EngineState) applyConnectivity(exchange schema.ExchangeIndex, next schema.ConnectivityState, res *ApplyResult) {
	prev := s.Connectivity[exchange]
	if prev == next {
		return
	}
	s.Connectivity[exchange] = next
	res.Delta.Connectivity = append(res.Delta.Connectivity, ConnectivityDelta{Exchange: exchange, State: next})

	switch {
	case next == schema.ConnectivityReconnecting:
		res.Reconnecting = append(res.Reconnecting, exchange)
	case prev == schema.ConnectivityReconnecting && next == schema.ConnectivityHealthy:
		// Back online: local orders are stale until the account
		// snapshot arrives.
		for i := range s.Instruments {
			if s.instrumentExchange(schema.InstrumentIndex(i)) != exchange {
				continue
			}
			for _, change := range s.Instruments[i].Orders.MarkAwaitingSnapshot() {
				res.Delta.Orders = append(res.Delta.Orders, OrderDelta{
					Instrument: schema.InstrumentIndex(i),
					Order:      change.Order,
					Removed:    change.Removed,
				})
			}
		}
	}
}

// applyBalance sets the asset balance unless the update is stale.
func (s *EngineState) applyBalance(balance *schema.BalanceUpdate, timeExchange int64, res *ApplyResult) {
	if int(balance.Asset) >= len(s.Assets) {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown asset %d", balance.Asset))
		return
	}
	current := &s.Assets[balance.Asset]
	if timeExchange < current.TimeExchange {
		return
	}
	free := balance.Free
	if free.GreaterThan(balance.Total) {
		free = balance.Total
	}
	if free.Sign() < 0 {
		free = decimal.Zero
	}
	*current = AssetState{Total: balance.Total, Free: free, TimeExchange: timeExchange}
	res.Delta.Assets = append(res.Delta.Assets, AssetDelta{Asset: balance.Asset, State: *current})
}

// applySnapshot replaces balances and reconciles the exchange's open
// orders against the authoritative snapshot.
func (s *EngineState) applySnapshot(exchange schema.ExchangeIndex, snapshot *schema.AccountSnapshotEvent, timeExchange int64, res *ApplyResult) {
	for i := range snapshot.Balances {
		s.applyBalance(&snapshot.Balances[i], timeExchange, res)
	}

	byInstrument := make(map[schema.InstrumentIndex][]schema.SnapshotOrder)
	for _, snap := range snapshot.Orders {
		byInstrument[snap.Instrument] = append(byInstrument[snap.Instrument], snap)
	}
	for i := range s.Instruments {
		index := schema.InstrumentIndex(i)
		if s.instrumentExchange(index) != exchange {
			continue
		}
		for _, change := range s.Instruments[i].Orders.ReconcileSnapshot(byInstrument[index]) {
			res.Delta.Orders = append(res.Delta.Orders, OrderDelta{
				Instrument: index,
				Order:      change.Order,
				Removed:    change.Removed,
			})
		}
	}
}

func (s *EngineState) applyOrderUpdate(update *schema.OrderUpdate, now int64, res *ApplyResult) {
	inst, ok := s.Instrument(update.Instrument)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown instrument %d", update.Instrument))
		return
	}
	change, flags, err := inst.Orders.ApplyUpdate(*update, now)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}
	if flags.Ghost {
		return
	}
	res.Delta.Orders = append(res.Delta.Orders, OrderDelta{
		Instrument: update.Instrument,
		Order:      change.Order,
		Removed:    change.Removed,
	})
}

// applyTrade folds a fill into both the order manager and the
// position.
func (s *EngineState) applyTrade(fill *schema.TradeFill, timeExchange, now int64, res *ApplyResult) {
	inst, ok := s.Instrument(fill.Instrument)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown instrument %d", fill.Instrument))
		return
	}

	change, flags, err := inst.Orders.ApplyFill(*fill, now)
	switch {
	case err != nil:
		res.Errors = append(res.Errors, err.Error())
		if errors.Is(err, order.ErrAlreadyTerminal) {
			// A re-sent fill for a finished order must not move the
			// position again.
			return
		}
	case flags.Ghost:
		// Fill before the open confirm; the order side reconciles
		// later, the position update proceeds now.
	default:
		res.Delta.Orders = append(res.Delta.Orders, OrderDelta{
			Instrument: fill.Instrument,
			Order:      change.Order,
			Removed:    change.Removed,
		})
	}
	if flags.Overfill {
		res.Errors = append(res.Errors, fmt.Sprintf("overfill detected: order %d", fill.OrderID))
	}

	applied := *fill
	if flags.Overfill {
		// The order-side clamp also truncates the position update.
		applied.Quantity = flags.Applied
	}
	if applied.Quantity.Sign() <= 0 {
		return
	}

	pos, closed, overflow := applyFill(inst.Position, &applied, timeExchange, len(s.Closed))
	if overflow {
		res.Errors = append(res.Errors, fmt.Sprintf("numeric overflow applying trade to instrument %d", fill.Instrument))
	}
	inst.Position = pos
	res.Delta.Positions = append(res.Delta.Positions, PositionDelta{Instrument: fill.Instrument, Position: clonePosition(pos)})
	if closed != nil {
		s.Closed = append(s.Closed, *closed)
		res.Delta.Closed = append(res.Delta.Closed, *closed)
	}
}

func (s *EngineState) sweepGhosts(now int64, res *ApplyResult) {
	for i := range s.Instruments {
		for _, ghost := range s.Instruments[i].Orders.SweepGhosts(now) {
			res.Errors = append(res.Errors, fmt.Sprintf("ghost order %d discarded on instrument %d", ghost.ID, i))
		}
	}
}

// RecordInFlightOpens registers command- or strategy-issued opens as
// in-flight and reports the order deltas. Failures (duplicate ids)
// are returned as audit errors.
func (s *EngineState) RecordInFlightOpens(requests []schema.OrderRequest, now int64) (deltas []OrderDelta, errs []string) {
	for _, req := range requests {
		inst, ok := s.Instrument(req.Instrument)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown instrument %d", req.Instrument))
			continue
		}
		change, _, err := inst.Orders.RequestOpen(req, now)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		deltas = append(deltas, OrderDelta{Instrument: req.Instrument, Order: change.Order, Removed: change.Removed})
	}
	return deltas, errs
}

// RecordInFlightCancels marks outstanding orders as cancel-in-flight
// and reports the order deltas.
func (s *EngineState) RecordInFlightCancels(requests []schema.CancelRequest) (deltas []OrderDelta, errs []string) {
	for _, req := range requests {
		inst, ok := s.Instrument(req.Instrument)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown instrument %d", req.Instrument))
			continue
		}
		change, err := inst.Orders.RequestCancel(req.ID)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		deltas = append(deltas, OrderDelta{Instrument: req.Instrument, Order: change.Order, Removed: change.Removed})
	}
	return deltas, errs
}

// NextOrderID issues a fresh client order id for the instrument.
func (s *EngineState) NextOrderID(index schema.InstrumentIndex) schema.OrderID {
	inst, ok := s.Instrument(index)
	if !ok {
		return 0
	}
	return inst.Orders.NextID()
}

// Snapshot produces an owned, serializable copy of the state.
func (s *EngineState) Snapshot() Snapshot {
	snap := Snapshot{
		Trading:      s.Trading,
		Connectivity: append([]schema.ConnectivityState(nil), s.Connectivity...),
		Assets:       append([]AssetState(nil), s.Assets...),
		Instruments:  make([]InstrumentSnapshot, len(s.Instruments)),
		Closed:       append([]ClosedPosition(nil), s.Closed...),
	}
	for i := range s.Instruments {
		inst := &s.Instruments[i]
		entry := InstrumentSnapshot{
			Market: inst.Market,
			Orders: inst.Orders.ActiveOrders(),
		}
		if inst.Market.LastTrade != nil {
			trade := *inst.Market.LastTrade
			entry.Market.LastTrade = &trade
		}
		if inst.Market.Book != nil {
			book := *inst.Market.Book
			entry.Market.Book = &book
		}
		entry.Position = clonePosition(inst.Position)
		snap.Instruments[i] = entry
	}
	return snap
}

func (s *EngineState) instrumentExchange(index schema.InstrumentIndex) schema.ExchangeIndex {
	inst, ok := s.registry.Instrument(index)
	if !ok {
		return 0
	}
	return inst.Exchange
}

func clonePosition(pos *Position) *Position {
	if pos == nil {
		return nil
	}
	clone := *pos
	return &clone
}
