package schema

import "github.com/shopspring/decimal"

// Side is the direction of an order or position.
type Side uint16

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for buy and -1 for sell.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderKind is the order type.
type OrderKind uint16

const (
	OrderMarket OrderKind = iota
	OrderLimit
)

func (k OrderKind) String() string {
	if k == OrderLimit {
		return "limit"
	}
	return "market"
}

// TimeInForce controls how long an order rests on the book.
type TimeInForce uint16

const (
	TimeInForceGTC TimeInForce = iota
	TimeInForceIOC
	TimeInForceFOK
)

// OrderState is the lifecycle state of an order.
type OrderState uint16

const (
	OrderStateInFlightOpen OrderState = iota
	OrderStateOpen
	OrderStatePartiallyFilled
	OrderStateInFlightCancel
	OrderStateFilled
	OrderStateCancelled
	OrderStateExpired
	OrderStateRejected
)

func (s OrderState) String() string {
	switch s {
	case OrderStateOpen:
		return "open"
	case OrderStatePartiallyFilled:
		return "partially_filled"
	case OrderStateInFlightCancel:
		return "in_flight_cancel"
	case OrderStateFilled:
		return "filled"
	case OrderStateCancelled:
		return "cancelled"
	case OrderStateExpired:
		return "expired"
	case OrderStateRejected:
		return "rejected"
	default:
		return "in_flight_open"
	}
}

// Terminal reports whether the state is final.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateExpired, OrderStateRejected:
		return true
	default:
		return false
	}
}

// OrderOrigin records how an order entered the local book.
type OrderOrigin uint16

const (
	OriginLocal OrderOrigin = iota
	OriginAdopted
)

// CancelReason explains a local cancellation.
type CancelReason uint16

const (
	CancelReasonNone CancelReason = iota
	CancelReasonRequested
	CancelReasonMissingFromSnapshot
)

// Order is the engine's view of a single order.
type Order struct {
	Instrument   InstrumentIndex `json:"instrument"`
	Exchange     ExchangeIndex   `json:"exchange"`
	ID           OrderID         `json:"id"`
	ExchangeID   string          `json:"exchangeId,omitempty"`
	Side         Side            `json:"side"`
	Kind         OrderKind       `json:"kind"`
	TimeInForce  TimeInForce     `json:"timeInForce"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Filled       decimal.Decimal `json:"filled"`
	State        OrderState      `json:"state"`
	Origin       OrderOrigin     `json:"origin"`
	CancelReason CancelReason    `json:"cancelReason,omitempty"`
	// AwaitingSnapshot is set while the owning exchange reconnects;
	// the next account snapshot resolves it.
	AwaitingSnapshot bool `json:"awaitingSnapshot,omitempty"`
}

// OrderRequest is a proposed order open, produced by strategies or
// commands before risk review.
type OrderRequest struct {
	Instrument  InstrumentIndex `json:"instrument"`
	Exchange    ExchangeIndex   `json:"exchange"`
	ID          OrderID         `json:"id"`
	Side        Side            `json:"side"`
	Kind        OrderKind       `json:"kind"`
	TimeInForce TimeInForce     `json:"timeInForce"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// CancelRequest is a proposed cancel of a resting order.
type CancelRequest struct {
	Instrument InstrumentIndex `json:"instrument"`
	Exchange   ExchangeIndex   `json:"exchange"`
	ID         OrderID         `json:"id"`
}

// ExecutionRequestKind discriminates outbound execution requests.
type ExecutionRequestKind uint16

const (
	ExecutionOpen ExecutionRequestKind = iota
	ExecutionCancel
)

// ExecutionRequest is an outbound directive addressed to an exchange
// execution worker.
type ExecutionRequest struct {
	Kind   ExecutionRequestKind `json:"kind"`
	Open   *OrderRequest        `json:"open,omitempty"`
	Cancel *CancelRequest       `json:"cancel,omitempty"`
}

// Exchange returns the exchange the request routes to.
func (r ExecutionRequest) Exchange() ExchangeIndex {
	if r.Kind == ExecutionCancel && r.Cancel != nil {
		return r.Cancel.Exchange
	}
	if r.Open != nil {
		return r.Open.Exchange
	}
	return 0
}

// Instrument returns the instrument the request concerns.
func (r ExecutionRequest) Instrument() InstrumentIndex {
	if r.Kind == ExecutionCancel && r.Cancel != nil {
		return r.Cancel.Instrument
	}
	if r.Open != nil {
		return r.Open.Instrument
	}
	return 0
}

// OrderID returns the client order id the request concerns.
func (r ExecutionRequest) OrderID() OrderID {
	if r.Kind == ExecutionCancel && r.Cancel != nil {
		return r.Cancel.ID
	}
	if r.Open != nil {
		return r.Open.ID
	}
	return 0
}
