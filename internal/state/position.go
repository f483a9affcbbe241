package state

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cz9874308/barter-rs/internal/num"
	"github.com/cz9874308/barter-rs/internal/schema"
)

// Position is the current open exposure on one instrument.
type Position struct {
	Instrument       schema.InstrumentIndex `json:"instrument"`
	Side             schema.Side            `json:"side"`
	Quantity         decimal.Decimal        `json:"quantity"`
	AvgEntryPrice    decimal.Decimal        `json:"avgEntryPrice"`
	RealisedPnL      decimal.Decimal        `json:"realisedPnl"`
	Fees             decimal.Decimal        `json:"fees"`
	TimeOpenExchange int64                  `json:"timeOpenExchange"`
}

// ClosedPosition is the ledger entry recording a position that reached
// zero quantity. RealisedPnL is net of fees.
type ClosedPosition struct {
	ID                string                 `json:"id"`
	Instrument        schema.InstrumentIndex `json:"instrument"`
	Side              schema.Side            `json:"side"`
	Quantity          decimal.Decimal        `json:"quantity"`
	AvgEntryPrice     decimal.Decimal        `json:"avgEntryPrice"`
	ExitPrice         decimal.Decimal        `json:"exitPrice"`
	RealisedPnL       decimal.Decimal        `json:"realisedPnl"`
	Fees              decimal.Decimal        `json:"fees"`
	TimeOpenExchange  int64                  `json:"timeOpenExchange"`
	TimeCloseExchange int64                  `json:"timeCloseExchange"`
}

// closedID derives a stable ledger id so identical event sequences
// produce identical ledgers.
func closedID(instrument schema.InstrumentIndex, timeClose int64, ordinal int) string {
	name := fmt.Sprintf("position:%d:%d:%d", instrument, timeClose, ordinal)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// overflowAcc folds per-operation saturation flags into one.
type overflowAcc struct{ hit bool }

func (a *overflowAcc) track(d decimal.Decimal, overflowed bool) decimal.Decimal {
	a.hit = a.hit || overflowed
	return d
}

// applyFill folds one fill into the position and returns the surviving
// position (nil when flat), an optional ledger entry, and whether any
// arithmetic saturated.
//
// Same-side fills average the entry price. Opposite-side fills realise
// PnL against the average entry; when the fill quantity exceeds the
// open quantity the position closes and the excess opens a fresh
// position on the opposite side at the fill price.
func applyFill(
	pos *Position,
	fill *schema.TradeFill,
	timeExchange int64,
	ordinal int,
) (*Position, *ClosedPosition, bool) {
	if pos == nil {
		opened := &Position{
			Instrument:       fill.Instrument,
			Side:             fill.Side,
			Quantity:         fill.Quantity,
			AvgEntryPrice:    fill.Price,
			RealisedPnL:      decimal.Zero,
			Fees:             fill.Fee,
			TimeOpenExchange: timeExchange,
		}
		return opened, nil, false
	}

	var acc overflowAcc

	if fill.Side == pos.Side {
		// Increase: average the entry price over the combined quantity.
		notionalOld := acc.track(num.Mul(pos.AvgEntryPrice, pos.Quantity))
		notionalNew := acc.track(num.Mul(fill.Price, fill.Quantity))
		combinedNotional := acc.track(num.Add(notionalOld, notionalNew))
		combinedQty := acc.track(num.Add(pos.Quantity, fill.Quantity))

		pos.AvgEntryPrice = acc.track(num.Div(combinedNotional, combinedQty))
		pos.Quantity = combinedQty
		pos.Fees = acc.track(num.Add(pos.Fees, fill.Fee))
		return pos, nil, acc.hit
	}

	// Reduce.
	closeQty := decimal.Min(pos.Quantity, fill.Quantity)
	sign := decimal.NewFromInt(pos.Side.Sign())
	priceDelta := acc.track(num.Sub(fill.Price, pos.AvgEntryPrice))
	realised := acc.track(num.Mul(priceDelta, closeQty))
	realised = acc.track(num.Mul(realised, sign))

	pos.RealisedPnL = acc.track(num.Add(pos.RealisedPnL, realised))
	pos.Fees = acc.track(num.Add(pos.Fees, fill.Fee))
	pos.Quantity = acc.track(num.Sub(pos.Quantity, closeQty))

	if pos.Quantity.Sign() > 0 {
		return pos, nil, acc.hit
	}

	closed := &ClosedPosition{
		ID:                closedID(pos.Instrument, timeExchange, ordinal),
		Instrument:        pos.Instrument,
		Side:              pos.Side,
		Quantity:          closeQty,
		AvgEntryPrice:     pos.AvgEntryPrice,
		ExitPrice:         fill.Price,
		RealisedPnL:       acc.track(num.Sub(pos.RealisedPnL, pos.Fees)),
		Fees:              pos.Fees,
		TimeOpenExchange:  pos.TimeOpenExchange,
		TimeCloseExchange: timeExchange,
	}

	remainder := acc.track(num.Sub(fill.Quantity, closeQty))
	if remainder.Sign() <= 0 {
		return nil, closed, acc.hit
	}

	// Flip: the excess opens the opposite side at the fill price.
	flipped := &Position{
		Instrument:       pos.Instrument,
		Side:             fill.Side,
		Quantity:         remainder,
		AvgEntryPrice:    fill.Price,
		RealisedPnL:      decimal.Zero,
		Fees:             decimal.Zero,
		TimeOpenExchange: timeExchange,
	}
	return flipped, closed, acc.hit
}
