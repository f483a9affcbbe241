package schema

// CommandKind discriminates external trading instructions.
type CommandKind uint16

const (
	CommandSendCancelRequests CommandKind = iota
	CommandSendOpenRequests
	CommandClosePositions
	CommandCancelOrders
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendOpenRequests:
		return "send_open_requests"
	case CommandClosePositions:
		return "close_positions"
	case CommandCancelOrders:
		return "cancel_orders"
	default:
		return "send_cancel_requests"
	}
}

// Command is an external trading instruction delivered to the engine.
type Command struct {
	Kind    CommandKind     `json:"commandKind"`
	Opens   []OrderRequest  `json:"opens,omitempty"`
	Cancels []CancelRequest `json:"cancels,omitempty"`
	Filter  Filter          `json:"filter"`
}

// FilterKind discriminates instrument selection filters.
type FilterKind uint16

const (
	FilterNone FilterKind = iota
	FilterExchanges
	FilterInstruments
	FilterUnderlying
)

// Filter selects instruments by exchange, instrument, or underlying
// pair. The zero value selects everything.
type Filter struct {
	Kind        FilterKind        `json:"filterKind"`
	Exchanges   []ExchangeIndex   `json:"exchanges,omitempty"`
	Instruments []InstrumentIndex `json:"instruments,omitempty"`
	Base        AssetIndex        `json:"base,omitempty"`
	Quote       AssetIndex        `json:"quote,omitempty"`
}

// MatchesInstrument reports whether the filter selects the instrument.
func (f Filter) MatchesInstrument(inst Instrument, index InstrumentIndex) bool {
	switch f.Kind {
	case FilterExchanges:
		for _, ex := range f.Exchanges {
			if ex == inst.Exchange {
				return true
			}
		}
		return false
	case FilterInstruments:
		for _, ix := range f.Instruments {
			if ix == index {
				return true
			}
		}
		return false
	case FilterUnderlying:
		return inst.Base == f.Base && inst.Quote == f.Quote
	default:
		return true
	}
}
