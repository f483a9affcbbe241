package schema

import "github.com/shopspring/decimal"

// EngineEventKind discriminates the merged engine input event.
type EngineEventKind uint16

const (
	EventMarket EngineEventKind = iota
	EventAccount
	EventCommand
	EventTradingState
	EventShutdown
)

func (k EngineEventKind) String() string {
	switch k {
	case EventAccount:
		return "account"
	case EventCommand:
		return "command"
	case EventTradingState:
		return "trading_state"
	case EventShutdown:
		return "shutdown"
	default:
		return "market"
	}
}

// EngineEvent is the single merged input type consumed by the engine.
type EngineEvent struct {
	Kind         EngineEventKind `json:"kind"`
	Market       *MarketEvent    `json:"market,omitempty"`
	Account      *AccountEvent   `json:"account,omitempty"`
	Command      *Command        `json:"command,omitempty"`
	TradingState TradingState    `json:"tradingState,omitempty"`
}

// MarketEventKind discriminates public market data payloads.
type MarketEventKind uint16

const (
	MarketTrade MarketEventKind = iota
	MarketBookL1
)

// PublicTrade is a public trade print.
type PublicTrade struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     Side            `json:"side"`
}

// BookL1 is the top of book.
type BookL1 struct {
	BidPrice    decimal.Decimal `json:"bidPrice"`
	BidQuantity decimal.Decimal `json:"bidQuantity"`
	AskPrice    decimal.Decimal `json:"askPrice"`
	AskQuantity decimal.Decimal `json:"askQuantity"`
}

// MarketEvent is a normalized public market data update.
type MarketEvent struct {
	Instrument   InstrumentIndex `json:"instrument"`
	TimeExchange int64           `json:"timeExchange"`
	Kind         MarketEventKind `json:"marketKind"`
	Trade        *PublicTrade    `json:"trade,omitempty"`
	Book         *BookL1         `json:"book,omitempty"`
}

// AccountEventKind discriminates private account stream payloads.
type AccountEventKind uint16

const (
	AccountSnapshot AccountEventKind = iota
	AccountBalance
	AccountOrderUpdate
	AccountTrade
	AccountConnectivity
)

func (k AccountEventKind) String() string {
	switch k {
	case AccountBalance:
		return "balance"
	case AccountOrderUpdate:
		return "order_update"
	case AccountTrade:
		return "trade"
	case AccountConnectivity:
		return "connectivity"
	default:
		return "snapshot"
	}
}

// BalanceUpdate carries one asset balance.
type BalanceUpdate struct {
	Asset AssetIndex      `json:"asset"`
	Total decimal.Decimal `json:"total"`
	Free  decimal.Decimal `json:"free"`
}

// OrderUpdate is an exchange confirmation of an order transition.
type OrderUpdate struct {
	Instrument InstrumentIndex `json:"instrument"`
	ID         OrderID         `json:"id"`
	ExchangeID string          `json:"exchangeId,omitempty"`
	State      OrderState      `json:"state"`
	Quantity   decimal.Decimal `json:"quantity"`
	Filled     decimal.Decimal `json:"filled"`
}

// TradeFill is an execution (fill) of one of our orders.
type TradeFill struct {
	Instrument InstrumentIndex `json:"instrument"`
	OrderID    OrderID         `json:"orderId"`
	TradeID    string          `json:"tradeId,omitempty"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Fee        decimal.Decimal `json:"fee"`
}

// SnapshotOrder is the exchange's authoritative view of one open order.
type SnapshotOrder struct {
	Instrument InstrumentIndex `json:"instrument"`
	ID         OrderID         `json:"id"`
	ExchangeID string          `json:"exchangeId,omitempty"`
	Side       Side            `json:"side"`
	Kind       OrderKind       `json:"orderKind"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Filled     decimal.Decimal `json:"filled"`
}

// AccountSnapshotEvent is the full account state after (re)connect.
type AccountSnapshotEvent struct {
	Balances []BalanceUpdate `json:"balances"`
	Orders   []SnapshotOrder `json:"orders"`
}

// ConnectivityUpdate transitions the health of an exchange connection.
type ConnectivityUpdate struct {
	State ConnectivityState `json:"state"`
}

// AccountEvent is a normalized private account notification.
type AccountEvent struct {
	Exchange     ExchangeIndex         `json:"exchange"`
	TimeExchange int64                 `json:"timeExchange"`
	Kind         AccountEventKind      `json:"accountKind"`
	Snapshot     *AccountSnapshotEvent `json:"snapshot,omitempty"`
	Balance      *BalanceUpdate        `json:"balance,omitempty"`
	Order        *OrderUpdate          `json:"order,omitempty"`
	Trade        *TradeFill            `json:"trade,omitempty"`
	Connectivity *ConnectivityUpdate   `json:"connectivity,omitempty"`
}
