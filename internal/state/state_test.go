package state

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cz9874308/barter-rs/internal/registry"
	"github.com/cz9874308/barter-rs/internal/schema"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestState builds a one-exchange, one-instrument (btc/usdt spot)
// state.
func newTestState(t *testing.T) *EngineState {
	t.Helper()
	reg := registry.New()
	binance, err := reg.AddExchange("binance")
	require.NoError(t, err)
	btc, err := reg.AddAsset(binance, "btc")
	require.NoError(t, err)
	usdt, err := reg.AddAsset(binance, "usdt")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		Exchange:     binance,
		Base:         btc,
		Quote:        usdt,
		Name:         "binance-btc-usdt-spot",
		Kind:         schema.InstrumentSpot,
		PriceTick:    d("0.01"),
		QuantityTick: d("0.0001"),
	})
	require.NoError(t, err)
	return New(reg, schema.TradingDisabled, nil, 30*time.Second)
}

func accountEvent(kind schema.AccountEventKind, ts int64) *schema.AccountEvent {
	return &schema.AccountEvent{Exchange: 0, TimeExchange: ts, Kind: kind}
}

func tradeEvent(id schema.OrderID, side schema.Side, price, qty, fee string, ts int64) *schema.EngineEvent {
	ev := accountEvent(schema.AccountTrade, ts)
	ev.Trade = &schema.TradeFill{
		Instrument: 0,
		OrderID:    id,
		Side:       side,
		Price:      d(price),
		Quantity:   d(qty),
		Fee:        d(fee),
	}
	return &schema.EngineEvent{Kind: schema.EventAccount, Account: ev}
}

func TestMarketEventNeverTouchesOrders(t *testing.T) {
	s := newTestState(t)
	res := s.Apply(&schema.EngineEvent{
		Kind: schema.EventMarket,
		Market: &schema.MarketEvent{
			Instrument:   0,
			TimeExchange: 10,
			Kind:         schema.MarketTrade,
			Trade:        &schema.PublicTrade{Price: d("20000"), Quantity: d("0.5"), Side: schema.SideBuy},
		},
	}, 0)

	require.Len(t, res.Delta.Markets, 1)
	assert.Empty(t, res.Delta.Orders)
	assert.Empty(t, res.Delta.Positions)
	assert.Equal(t, int64(10), s.Instruments[0].Market.TimeExchangeUpdate)
	require.NotNil(t, s.Instruments[0].Market.LastTrade)
	assert.True(t, s.Instruments[0].Market.LastTrade.Price.Equal(d("20000")))
}

func TestBalanceStaleDrop(t *testing.T) {
	s := newTestState(t)

	fresh := accountEvent(schema.AccountBalance, 100)
	fresh.Balance = &schema.BalanceUpdate{Asset: 1, Total: d("1000"), Free: d("900")}
	res := s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: fresh}, 0)
	require.Len(t, res.Delta.Assets, 1)

	stale := accountEvent(schema.AccountBalance, 50)
	stale.Balance = &schema.BalanceUpdate{Asset: 1, Total: d("5"), Free: d("5")}
	res = s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: stale}, 0)
	assert.Empty(t, res.Delta.Assets)
	assert.True(t, s.Assets[1].Total.Equal(d("1000")))

	// Free is clamped into [0, total].
	clamped := accountEvent(schema.AccountBalance, 200)
	clamped.Balance = &schema.BalanceUpdate{Asset: 1, Total: d("10"), Free: d("20")}
	s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: clamped}, 0)
	assert.True(t, s.Assets[1].Free.Equal(d("10")))
}

func TestOpenFillCloseCycle(t *testing.T) {
	s := newTestState(t)

	deltas, errs := s.RecordInFlightOpens([]schema.OrderRequest{{
		Instrument: 0, ID: 1, Side: schema.SideBuy, Kind: schema.OrderLimit,
		TimeInForce: schema.TimeInForceGTC, Price: d("20000"), Quantity: d("1"),
	}}, 0)
	require.Empty(t, errs)
	require.Len(t, deltas, 1)

	open := accountEvent(schema.AccountOrderUpdate, 1)
	open.Order = &schema.OrderUpdate{Instrument: 0, ID: 1, State: schema.OrderStateOpen}
	res := s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: open}, 0)
	require.Empty(t, res.Errors)

	res = s.Apply(tradeEvent(1, schema.SideBuy, "20000", "1", "10", 2), 0)
	require.Empty(t, res.Errors)
	pos := s.Instruments[0].Position
	require.NotNil(t, pos)
	assert.Equal(t, schema.SideBuy, pos.Side)
	assert.True(t, pos.Quantity.Equal(d("1")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("20000")))
	assert.True(t, pos.Fees.Equal(d("10")))

	deltas, errs = s.RecordInFlightOpens([]schema.OrderRequest{{
		Instrument: 0, ID: 2, Side: schema.SideSell, Kind: schema.OrderMarket,
		Price: d("0"), Quantity: d("1"),
	}}, 0)
	require.Empty(t, errs)
	require.Len(t, deltas, 1)

	res = s.Apply(tradeEvent(2, schema.SideSell, "20100", "1", "10", 3), 0)
	require.Empty(t, res.Errors)
	assert.Nil(t, s.Instruments[0].Position)
	require.Len(t, s.Closed, 1)
	entry := s.Closed[0]
	assert.True(t, entry.RealisedPnL.Equal(d("80")), "realised = %s", entry.RealisedPnL)
	assert.True(t, entry.Fees.Equal(d("20")))
	assert.Equal(t, schema.SideBuy, entry.Side)
	assert.NotEmpty(t, entry.ID)
	assert.Empty(t, s.Instruments[0].Orders.ActiveOrders())
}

func TestSameSideFillAverages(t *testing.T) {
	s := newTestState(t)
	s.Apply(tradeEvent(11, schema.SideBuy, "100", "1", "0", 1), 0)
	s.Apply(tradeEvent(12, schema.SideBuy, "200", "1", "0", 2), 0)

	pos := s.Instruments[0].Position
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("150")), "avg = %s", pos.AvgEntryPrice)
}

func TestFlipOnOverfill(t *testing.T) {
	s := newTestState(t)
	s.Apply(tradeEvent(21, schema.SideBuy, "20000", "1", "0", 1), 0)

	res := s.Apply(tradeEvent(22, schema.SideSell, "20050", "1.5", "0", 2), 0)
	require.Len(t, res.Delta.Closed, 1)
	entry := res.Delta.Closed[0]
	assert.True(t, entry.RealisedPnL.Equal(d("50")), "realised = %s", entry.RealisedPnL)

	pos := s.Instruments[0].Position
	require.NotNil(t, pos)
	assert.Equal(t, schema.SideSell, pos.Side)
	assert.True(t, pos.Quantity.Equal(d("0.5")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("20050")))
}

func TestShortPositionRealisesInverted(t *testing.T) {
	s := newTestState(t)
	s.Apply(tradeEvent(31, schema.SideSell, "100", "2", "0", 1), 0)
	s.Apply(tradeEvent(32, schema.SideBuy, "90", "2", "0", 2), 0)

	require.Len(t, s.Closed, 1)
	assert.True(t, s.Closed[0].RealisedPnL.Equal(d("20")), "realised = %s", s.Closed[0].RealisedPnL)
	assert.Nil(t, s.Instruments[0].Position)
}

func TestReconnectReconciliation(t *testing.T) {
	s := newTestState(t)
	for _, id := range []schema.OrderID{1, 2, 3} {
		_, errs := s.RecordInFlightOpens([]schema.OrderRequest{{
			Instrument: 0, ID: id, Side: schema.SideBuy, Kind: schema.OrderLimit,
			Price: d("100"), Quantity: d("1"),
		}}, 0)
		require.Empty(t, errs)
		up := accountEvent(schema.AccountOrderUpdate, int64(id))
		up.Order = &schema.OrderUpdate{Instrument: 0, ID: id, State: schema.OrderStateOpen}
		s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: up}, 0)
	}

	down := accountEvent(schema.AccountConnectivity, 10)
	down.Connectivity = &schema.ConnectivityUpdate{State: schema.ConnectivityReconnecting}
	res := s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: down}, 0)
	require.Equal(t, []schema.ExchangeIndex{0}, res.Reconnecting)

	up := accountEvent(schema.AccountConnectivity, 11)
	up.Connectivity = &schema.ConnectivityUpdate{State: schema.ConnectivityHealthy}
	res = s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: up}, 0)
	require.Len(t, res.Delta.Orders, 3)
	for _, od := range res.Delta.Orders {
		assert.True(t, od.Order.AwaitingSnapshot)
	}

	snap := accountEvent(schema.AccountSnapshot, 12)
	snap.Snapshot = &schema.AccountSnapshotEvent{
		Orders: []schema.SnapshotOrder{
			{Instrument: 0, ID: 1, Side: schema.SideBuy, Kind: schema.OrderLimit, Price: d("100"), Quantity: d("1")},
			{Instrument: 0, ID: 4, Side: schema.SideSell, Kind: schema.OrderLimit, Price: d("110"), Quantity: d("2")},
		},
	}
	s.Apply(&schema.EngineEvent{Kind: schema.EventAccount, Account: snap}, 0)

	orders := s.Instruments[0].Orders.ActiveOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, schema.OrderID(1), orders[0].ID)
	assert.Equal(t, schema.OrderOrigin(schema.OriginLocal), orders[0].Origin)
	assert.Equal(t, schema.OrderID(4), orders[1].ID)
	assert.Equal(t, schema.OriginAdopted, orders[1].Origin)

	terminal := s.Instruments[0].Orders.TerminalOrders()
	require.Len(t, terminal, 2)
	for _, o := range terminal {
		assert.Equal(t, schema.OrderStateCancelled, o.State)
		assert.Equal(t, schema.CancelReasonMissingFromSnapshot, o.CancelReason)
	}
}

func TestSnapshotDeltaReplayMirrorsState(t *testing.T) {
	s := newTestState(t)
	replica := s.Snapshot()

	events := []*schema.EngineEvent{
		{Kind: schema.EventTradingState, TradingState: schema.TradingEnabled},
		tradeEvent(1, schema.SideBuy, "20000", "1", "10", 1),
		{Kind: schema.EventMarket, Market: &schema.MarketEvent{
			Instrument: 0, TimeExchange: 2, Kind: schema.MarketBookL1,
			Book: &schema.BookL1{BidPrice: d("19999"), BidQuantity: d("3"), AskPrice: d("20001"), AskQuantity: d("4")},
		}},
		tradeEvent(2, schema.SideSell, "20100", "1.5", "0", 3),
	}
	for _, ev := range events {
		res := s.Apply(ev, 0)
		replica.ApplyDelta(&res.Delta)
	}

	assert.Equal(t, s.Snapshot(), replica)
}

func TestDuplicateFillForTerminalOrderIgnored(t *testing.T) {
	s := newTestState(t)
	_, errs := s.RecordInFlightOpens([]schema.OrderRequest{{
		Instrument: 0, ID: 1, Side: schema.SideBuy, Kind: schema.OrderLimit,
		Price: d("100"), Quantity: d("1"),
	}}, 0)
	require.Empty(t, errs)

	s.Apply(tradeEvent(1, schema.SideBuy, "100", "1", "0", 1), 0)
	require.NotNil(t, s.Instruments[0].Position)
	require.True(t, s.Instruments[0].Position.Quantity.Equal(d("1")))

	// The exchange re-sends the fill after the order went terminal.
	res := s.Apply(tradeEvent(1, schema.SideBuy, "100", "1", "0", 2), 0)
	require.NotEmpty(t, res.Errors)
	assert.True(t, s.Instruments[0].Position.Quantity.Equal(d("1")))
}

func TestTradingStateIdempotent(t *testing.T) {
	s := newTestState(t)
	res := s.Apply(&schema.EngineEvent{Kind: schema.EventTradingState, TradingState: schema.TradingEnabled}, 0)
	require.NotNil(t, res.Delta.Trading)

	res = s.Apply(&schema.EngineEvent{Kind: schema.EventTradingState, TradingState: schema.TradingEnabled}, 0)
	assert.Nil(t, res.Delta.Trading)
}
