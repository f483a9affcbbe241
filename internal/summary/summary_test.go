package summary

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cz9874308/barter-rs/internal/state"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(pnl, fees, avgEntry, qty string) state.ClosedPosition {
	return state.ClosedPosition{
		RealisedPnL:   d(pnl),
		Fees:          d(fees),
		AvgEntryPrice: d(avgEntry),
		Quantity:      d(qty),
	}
}

func TestGenerateEmptyLedger(t *testing.T) {
	g := NewGenerator(d("0.02"))
	s := g.Generate(nil, 0, 100)
	assert.Equal(t, 0, s.Trades)
	assert.True(t, s.PnLNet.IsZero())
	assert.True(t, s.Sharpe.IsZero())
}

func TestGenerateAggregates(t *testing.T) {
	g := NewGenerator(decimal.Zero)
	ledger := []state.ClosedPosition{
		entry("80", "20", "20000", "1"),
		entry("-30", "10", "10000", "1"),
		entry("50", "5", "5000", "2"),
	}
	s := g.Generate(ledger, 10, 20)

	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.True(t, s.PnLNet.Equal(d("100")), "pnl = %s", s.PnLNet)
	assert.True(t, s.FeesTotal.Equal(d("35")))

	// win rate 2/3 rounded half-to-even at scale 18
	assert.True(t, s.WinRate.Equal(d("0.666666666666666667")), "win rate = %s", s.WinRate)
	// profit factor 130/30
	assert.True(t, s.ProfitFactor.Equal(d("4.333333333333333333")), "pf = %s", s.ProfitFactor)
	assert.False(t, s.Sharpe.IsZero())
	assert.False(t, s.Sortino.IsZero())
}

func TestMaxDrawdownTracksEquityCurve(t *testing.T) {
	g := NewGenerator(decimal.Zero)
	ledger := []state.ClosedPosition{
		entry("100", "0", "100", "1"),
		entry("-60", "0", "100", "1"),
		entry("-20", "0", "100", "1"),
		entry("150", "0", "100", "1"),
	}
	s := g.Generate(ledger, 0, 1)
	require.True(t, s.MaxDrawdown.Equal(d("80")), "drawdown = %s", s.MaxDrawdown)
}

func TestAllWinsHasNoProfitFactor(t *testing.T) {
	g := NewGenerator(decimal.Zero)
	s := g.Generate([]state.ClosedPosition{entry("10", "0", "100", "1")}, 0, 1)
	assert.True(t, s.ProfitFactor.IsZero())
	assert.True(t, s.WinRate.Equal(d("1")))
}
