// Package summary post-processes the closed-position ledger into a
// trading summary: PnL, win rate, profit factor, and risk-adjusted
// ratios seeded with the configured risk-free return.
package summary

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/cz9874308/barter-rs/internal/num"
	"github.com/cz9874308/barter-rs/internal/state"
)

// Summary is the generated trading report.
type Summary struct {
	TimeStart int64 `json:"timeStart"`
	TimeEnd   int64 `json:"timeEnd"`

	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	PnLNet       decimal.Decimal `json:"pnlNet"`
	FeesTotal    decimal.Decimal `json:"feesTotal"`
	WinRate      decimal.Decimal `json:"winRate"`
	ProfitFactor decimal.Decimal `json:"profitFactor"`
	Sharpe       decimal.Decimal `json:"sharpe"`
	Sortino      decimal.Decimal `json:"sortino"`
	MaxDrawdown  decimal.Decimal `json:"maxDrawdown"`
}

// Generator derives summaries from a ledger.
type Generator struct {
	riskFreeReturn decimal.Decimal
}

// NewGenerator creates a generator with the risk-free return used by
// the Sharpe and Sortino ratios.
func NewGenerator(riskFreeReturn decimal.Decimal) *Generator {
	return &Generator{riskFreeReturn: riskFreeReturn}
}

// Generate folds the ledger into a summary. Entries are assumed to be
// in close order, as the engine appends them.
func (g *Generator) Generate(ledger []state.ClosedPosition, timeStart, timeEnd int64) Summary {
	s := Summary{
		TimeStart:    timeStart,
		TimeEnd:      timeEnd,
		Trades:       len(ledger),
		PnLNet:       decimal.Zero,
		FeesTotal:    decimal.Zero,
		WinRate:      decimal.Zero,
		ProfitFactor: decimal.Zero,
		Sharpe:       decimal.Zero,
		Sortino:      decimal.Zero,
		MaxDrawdown:  decimal.Zero,
	}
	if len(ledger) == 0 {
		return s
	}

	var grossProfit, grossLoss decimal.Decimal
	returns := make([]decimal.Decimal, 0, len(ledger))

	peak := decimal.Zero
	equity := decimal.Zero
	maxDrawdown := decimal.Zero

	for _, entry := range ledger {
		pnl := entry.RealisedPnL
		s.PnLNet, _ = num.Add(s.PnLNet, pnl)
		s.FeesTotal, _ = num.Add(s.FeesTotal, entry.Fees)
		returns = append(returns, g.tradeReturn(entry))

		switch {
		case pnl.Sign() > 0:
			s.Wins++
			grossProfit, _ = num.Add(grossProfit, pnl)
		case pnl.Sign() < 0:
			s.Losses++
			grossLoss, _ = num.Add(grossLoss, pnl.Abs())
		}

		equity, _ = num.Add(equity, pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if drawdown, _ := num.Sub(peak, equity); drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}

	s.MaxDrawdown = maxDrawdown
	s.WinRate, _ = num.Div(decimal.NewFromInt(int64(s.Wins)), decimal.NewFromInt(int64(s.Trades)))
	if grossLoss.Sign() > 0 {
		s.ProfitFactor, _ = num.Div(grossProfit, grossLoss)
	}
	s.Sharpe = g.sharpe(returns)
	s.Sortino = g.sortino(returns)
	return s
}

// tradeReturn is the per-trade return: net pnl over entry notional.
func (g *Generator) tradeReturn(entry state.ClosedPosition) decimal.Decimal {
	notional, _ := num.Mul(entry.AvgEntryPrice, entry.Quantity)
	if notional.Sign() <= 0 {
		return decimal.Zero
	}
	ret, _ := num.Div(entry.RealisedPnL, notional)
	return ret
}

func (g *Generator) sharpe(returns []decimal.Decimal) decimal.Decimal {
	mean, std := meanStd(returns, nil)
	if std == 0 {
		return decimal.Zero
	}
	rf, _ := g.riskFreeReturn.Float64()
	return decimal.NewFromFloat((mean - rf) / std)
}

func (g *Generator) sortino(returns []decimal.Decimal) decimal.Decimal {
	mean, downside := meanStd(returns, func(r float64) bool { return r < 0 })
	if downside == 0 {
		return decimal.Zero
	}
	rf, _ := g.riskFreeReturn.Float64()
	return decimal.NewFromFloat((mean - rf) / downside)
}

// meanStd computes the mean over all returns and a deviation. With a
// nil filter it is the standard deviation of all returns around the
// mean. With a filter, the squared values of the selected returns
// (measured against zero) are summed and divided by the count of all
// returns, matching the downside-deviation definition.
func meanStd(returns []decimal.Decimal, filter func(float64) bool) (mean, std float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	values := make([]float64, len(returns))
	var sum float64
	for i, r := range returns {
		f, _ := r.Float64()
		values[i] = f
		sum += f
	}
	mean = sum / float64(len(values))

	var variance float64
	var count int
	for _, v := range values {
		if filter == nil {
			diff := v - mean
			variance += diff * diff
			count++
			continue
		}
		if filter(v) {
			variance += v * v
		}
		count++
	}
	if count == 0 {
		return mean, 0
	}
	return mean, math.Sqrt(variance / float64(count))
}
