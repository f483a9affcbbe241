package state

import (
	"github.com/shopspring/decimal"

	"github.com/cz9874308/barter-rs/internal/schema"
)

// AssetState is the tracked balance of one asset.
type AssetState struct {
	Total        decimal.Decimal `json:"total"`
	Free         decimal.Decimal `json:"free"`
	TimeExchange int64           `json:"timeExchange"`
}

// MarketData is the latest public market view of one instrument.
type MarketData struct {
	LastTrade          *schema.PublicTrade `json:"lastTrade,omitempty"`
	Book               *schema.BookL1      `json:"book,omitempty"`
	TimeExchangeUpdate int64               `json:"timeExchangeUpdate"`
}

// ConnectivityDelta records one exchange connectivity transition.
type ConnectivityDelta struct {
	Exchange schema.ExchangeIndex     `json:"exchange"`
	State    schema.ConnectivityState `json:"state"`
}

// AssetDelta records the new balance state of one asset.
type AssetDelta struct {
	Asset schema.AssetIndex `json:"asset"`
	State AssetState        `json:"state"`
}

// MarketDelta records the new market data of one instrument.
type MarketDelta struct {
	Instrument schema.InstrumentIndex `json:"instrument"`
	Market     MarketData             `json:"market"`
}

// OrderDelta records one order upsert or removal.
type OrderDelta struct {
	Instrument schema.InstrumentIndex `json:"instrument"`
	Order      schema.Order           `json:"order"`
	Removed    bool                   `json:"removed,omitempty"`
}

// PositionDelta records the new position of one instrument; a nil
// position clears it.
type PositionDelta struct {
	Instrument schema.InstrumentIndex `json:"instrument"`
	Position   *Position              `json:"position,omitempty"`
}

// Delta is the serializable record of every state mutation caused by
// one processed event. Entries carry absolute new values so a replica
// can apply them without re-running engine logic.
type Delta struct {
	Trading      *schema.TradingState `json:"trading,omitempty"`
	Connectivity []ConnectivityDelta  `json:"connectivity,omitempty"`
	Assets       []AssetDelta         `json:"assets,omitempty"`
	Markets      []MarketDelta        `json:"markets,omitempty"`
	Orders       []OrderDelta         `json:"orders,omitempty"`
	Positions    []PositionDelta      `json:"positions,omitempty"`
	Closed       []ClosedPosition     `json:"closed,omitempty"`
}

// IsEmpty reports whether the delta carries no mutation.
func (d *Delta) IsEmpty() bool {
	return d.Trading == nil &&
		len(d.Connectivity) == 0 &&
		len(d.Assets) == 0 &&
		len(d.Markets) == 0 &&
		len(d.Orders) == 0 &&
		len(d.Positions) == 0 &&
		len(d.Closed) == 0
}

// Merge appends the mutations of other onto d in processing order.
func (d *Delta) Merge(other Delta) {
	if other.Trading != nil {
		d.Trading = other.Trading
	}
	d.Connectivity = append(d.Connectivity, other.Connectivity...)
	d.Assets = append(d.Assets, other.Assets...)
	d.Markets = append(d.Markets, other.Markets...)
	d.Orders = append(d.Orders, other.Orders...)
	d.Positions = append(d.Positions, other.Positions...)
	d.Closed = append(d.Closed, other.Closed...)
}
