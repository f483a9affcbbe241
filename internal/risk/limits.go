package risk

import (
	"github.com/shopspring/decimal"

	"github.com/cz9874308/barter-rs/internal/num"
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

// Refusal reasons reported by the limits manager.
const (
	ReasonKillSwitch    = "kill_switch"
	ReasonMaxQty        = "max_order_qty"
	ReasonMaxNotional   = "max_order_notional"
	ReasonPositionLimit = "position_limit"
	ReasonZeroQuantity  = "zero_quantity"
)

// Config defines static order limits. Zero values disable a check.
type Config struct {
	KillSwitch       bool            `yaml:"kill_switch" json:"killSwitch"`
	MaxOrderQty      decimal.Decimal `yaml:"max_order_qty" json:"maxOrderQty"`
	MaxOrderNotional decimal.Decimal `yaml:"max_order_notional" json:"maxOrderNotional"`
	MaxPosition      decimal.Decimal `yaml:"max_position" json:"maxPosition"`
}

// Limits is a static-limit Manager.
type Limits struct {
	cfg Config
}

var _ Manager = (*Limits)(nil)

// NewLimits creates a limits manager.
func NewLimits(cfg Config) *Limits {
	return &Limits{cfg: cfg}
}

func (l *Limits) Check(s *state.EngineState, cancels []schema.CancelRequest, opens []schema.OrderRequest) Decision {
	// Cancels only reduce exposure; static limits never refuse them.
	decision := Decision{ApprovedCancels: cancels}
	for _, req := range opens {
		if reason := l.evaluate(s, req); reason != "" {
			decision.RefusedOpens = append(decision.RefusedOpens, RefusedOpen{Request: req, Reason: reason})
			continue
		}
		decision.ApprovedOpens = append(decision.ApprovedOpens, req)
	}
	return decision
}

func (l *Limits) evaluate(s *state.EngineState, req schema.OrderRequest) string {
	if l.cfg.KillSwitch {
		return ReasonKillSwitch
	}
	if req.Quantity.Sign() <= 0 {
		return ReasonZeroQuantity
	}
	if l.cfg.MaxOrderQty.Sign() > 0 && req.Quantity.GreaterThan(l.cfg.MaxOrderQty) {
		return ReasonMaxQty
	}
	if l.cfg.MaxOrderNotional.Sign() > 0 && req.Kind == schema.OrderLimit {
		notional, overflow := num.Mul(req.Price, req.Quantity)
		if overflow || notional.GreaterThan(l.cfg.MaxOrderNotional) {
			return ReasonMaxNotional
		}
	}
	if l.cfg.MaxPosition.Sign() > 0 {
		if next := l.projectedPosition(s, req); next.Abs().GreaterThan(l.cfg.MaxPosition) {
			return ReasonPositionLimit
		}
	}
	return ""
}

// projectedPosition is the signed position quantity assuming the order
// fills completely.
func (l *Limits) projectedPosition(s *state.EngineState, req schema.OrderRequest) decimal.Decimal {
	current := decimal.Zero
	if inst, ok := s.Instrument(req.Instrument); ok && inst.Position != nil {
		current = inst.Position.Quantity.Mul(decimal.NewFromInt(inst.Position.Side.Sign()))
	}
	return current.Add(req.Quantity.Mul(decimal.NewFromInt(req.Side.Sign())))
}
