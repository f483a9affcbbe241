package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cz9874308/barter-rs/internal/registry"
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limitsState(t *testing.T) *state.EngineState {
	t.Helper()
	reg := registry.New()
	ex, err := reg.AddExchange("binance")
	require.NoError(t, err)
	btc, err := reg.AddAsset(ex, "btc")
	require.NoError(t, err)
	usdt, err := reg.AddAsset(ex, "usdt")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		Exchange: ex, Base: btc, Quote: usdt, Name: "binance-btc-usdt-spot",
		Kind: schema.InstrumentSpot, PriceTick: d("0.01"), QuantityTick: d("0.0001"),
	})
	require.NoError(t, err)
	return state.New(reg, schema.TradingEnabled, nil, 30*time.Second)
}

func proposal(side schema.Side, qty, price string) schema.OrderRequest {
	return schema.OrderRequest{
		Instrument: 0, Side: side, Kind: schema.OrderLimit,
		Price: d(price), Quantity: d(qty),
	}
}

func TestLimitsPartition(t *testing.T) {
	s := limitsState(t)
	limits := NewLimits(Config{
		MaxOrderQty:      d("10"),
		MaxOrderNotional: d("100000"),
	})

	decision := limits.Check(s, nil, []schema.OrderRequest{
		proposal(schema.SideBuy, "1", "20000"),  // ok
		proposal(schema.SideBuy, "11", "1"),     // qty
		proposal(schema.SideBuy, "10", "20000"), // notional
		proposal(schema.SideBuy, "0", "20000"),  // zero qty
	})

	require.Len(t, decision.ApprovedOpens, 1)
	require.Len(t, decision.RefusedOpens, 3)
	assert.Equal(t, ReasonMaxQty, decision.RefusedOpens[0].Reason)
	assert.Equal(t, ReasonMaxNotional, decision.RefusedOpens[1].Reason)
	assert.Equal(t, ReasonZeroQuantity, decision.RefusedOpens[2].Reason)
}

func TestLimitsApproveCancels(t *testing.T) {
	s := limitsState(t)
	limits := NewLimits(Config{KillSwitch: true})
	cancels := []schema.CancelRequest{{Instrument: 0, Exchange: 0, ID: 1}}
	decision := limits.Check(s, cancels, nil)
	assert.Equal(t, cancels, decision.ApprovedCancels)
	assert.Empty(t, decision.RefusedCancels)
}

func TestLimitsKillSwitch(t *testing.T) {
	s := limitsState(t)
	limits := NewLimits(Config{KillSwitch: true})
	decision := limits.Check(s, nil, []schema.OrderRequest{proposal(schema.SideBuy, "1", "1")})
	require.Empty(t, decision.ApprovedOpens)
	require.Len(t, decision.RefusedOpens, 1)
	assert.Equal(t, ReasonKillSwitch, decision.RefusedOpens[0].Reason)
}

func TestLimitsPositionProjection(t *testing.T) {
	s := limitsState(t)
	limits := NewLimits(Config{MaxPosition: d("2")})

	decision := limits.Check(s, nil, []schema.OrderRequest{proposal(schema.SideBuy, "2", "100")})
	require.Len(t, decision.ApprovedOpens, 1)

	decision = limits.Check(s, nil, []schema.OrderRequest{proposal(schema.SideBuy, "3", "100")})
	require.Len(t, decision.RefusedOpens, 1)
	assert.Equal(t, ReasonPositionLimit, decision.RefusedOpens[0].Reason)
}
