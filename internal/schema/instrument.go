package schema

import "github.com/shopspring/decimal"

// Asset describes a registered asset on a single exchange.
type Asset struct {
	Exchange ExchangeIndex `json:"exchange"`
	Symbol   string        `json:"symbol"`
}

// InstrumentKind distinguishes the contract type of an instrument.
type InstrumentKind uint16

const (
	InstrumentSpot InstrumentKind = iota
	InstrumentPerpetual
	InstrumentFuture
	InstrumentOption
)

func (k InstrumentKind) String() string {
	switch k {
	case InstrumentPerpetual:
		return "perpetual"
	case InstrumentFuture:
		return "future"
	case InstrumentOption:
		return "option"
	default:
		return "spot"
	}
}

// OptionRight is the call/put flag of an option contract.
type OptionRight uint16

const (
	OptionCall OptionRight = iota
	OptionPut
)

// OptionExercise is the exercise style of an option contract.
type OptionExercise uint16

const (
	ExerciseEuropean OptionExercise = iota
	ExerciseAmerican
)

// FutureContract holds the future-specific attributes.
type FutureContract struct {
	Expiry int64 `json:"expiry"`
}

// OptionContract holds the option-specific attributes.
type OptionContract struct {
	Expiry   int64           `json:"expiry"`
	Strike   decimal.Decimal `json:"strike"`
	Right    OptionRight     `json:"right"`
	Exercise OptionExercise  `json:"exercise"`
}

// Instrument describes a tradable contract. Base and quote reference
// registered assets on the same exchange and are always distinct.
type Instrument struct {
	Exchange     ExchangeIndex   `json:"exchange"`
	Base         AssetIndex      `json:"base"`
	Quote        AssetIndex      `json:"quote"`
	Name         string          `json:"name"`
	Kind         InstrumentKind  `json:"kind"`
	Future       *FutureContract `json:"future,omitempty"`
	Option       *OptionContract `json:"option,omitempty"`
	PriceTick    decimal.Decimal `json:"priceTick"`
	QuantityTick decimal.Decimal `json:"quantityTick"`
}
