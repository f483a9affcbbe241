package state

import "github.com/cz9874308/barter-rs/internal/schema"

// InstrumentSnapshot is the serializable view of one instrument's
// state: market data, non-terminal orders in id order, and the open
// position.
type InstrumentSnapshot struct {
	Market   MarketData     `json:"market"`
	Orders   []schema.Order `json:"orders,omitempty"`
	Position *Position      `json:"position,omitempty"`
}

// Snapshot is an owned, serializable copy of the engine state. Audit
// consumers receive snapshots, never live references; a replica
// mirrors the engine by applying deltas to a snapshot.
type Snapshot struct {
	Trading      schema.TradingState        `json:"trading"`
	Connectivity []schema.ConnectivityState `json:"connectivity"`
	Assets       []AssetState               `json:"assets"`
	Instruments  []InstrumentSnapshot       `json:"instruments"`
	Closed       []ClosedPosition           `json:"closed,omitempty"`
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() Snapshot {
	out := Snapshot{
		Trading:      s.Trading,
		Connectivity: append([]schema.ConnectivityState(nil), s.Connectivity...),
		Assets:       append([]AssetState(nil), s.Assets...),
		Instruments:  make([]InstrumentSnapshot, len(s.Instruments)),
		Closed:       append([]ClosedPosition(nil), s.Closed...),
	}
	for i, inst := range s.Instruments {
		clone := InstrumentSnapshot{
			Market: inst.Market,
			Orders: append([]schema.Order(nil), inst.Orders...),
		}
		if inst.Market.LastTrade != nil {
			trade := *inst.Market.LastTrade
			clone.Market.LastTrade = &trade
		}
		if inst.Market.Book != nil {
			book := *inst.Market.Book
			clone.Market.Book = &book
		}
		if inst.Position != nil {
			pos := *inst.Position
			clone.Position = &pos
		}
		out.Instruments[i] = clone
	}
	return out
}

// ApplyDelta folds one audit delta into the snapshot. Entries carry
// absolute values, so application is a plain overwrite in order.
func (s *Snapshot) ApplyDelta(d *Delta) {
	if d.Trading != nil {
		s.Trading = *d.Trading
	}
	for _, c := range d.Connectivity {
		if int(c.Exchange) < len(s.Connectivity) {
			s.Connectivity[c.Exchange] = c.State
		}
	}
	for _, a := range d.Assets {
		if int(a.Asset) < len(s.Assets) {
			s.Assets[a.Asset] = a.State
		}
	}
	for _, m := range d.Markets {
		if int(m.Instrument) < len(s.Instruments) {
			market := m.Market
			if market.LastTrade != nil {
				trade := *market.LastTrade
				market.LastTrade = &trade
			}
			if market.Book != nil {
				book := *market.Book
				market.Book = &book
			}
			s.Instruments[m.Instrument].Market = market
		}
	}
	for _, o := range d.Orders {
		if int(o.Instrument) >= len(s.Instruments) {
			continue
		}
		inst := &s.Instruments[o.Instrument]
		if o.Removed {
			inst.Orders = removeOrder(inst.Orders, o.Order.ID)
			continue
		}
		inst.Orders = upsertOrder(inst.Orders, o.Order)
	}
	for _, p := range d.Positions {
		if int(p.Instrument) >= len(s.Instruments) {
			continue
		}
		if p.Position == nil {
			s.Instruments[p.Instrument].Position = nil
			continue
		}
		pos := *p.Position
		s.Instruments[p.Instrument].Position = &pos
	}
	s.Closed = append(s.Closed, d.Closed...)
}

// upsertOrder keeps the order slice sorted by id.
func upsertOrder(orders []schema.Order, o schema.Order) []schema.Order {
	for i := range orders {
		if orders[i].ID == o.ID {
			orders[i] = o
			return orders
		}
		if orders[i].ID > o.ID {
			orders = append(orders, schema.Order{})
			copy(orders[i+1:], orders[i:])
			orders[i] = o
			return orders
		}
	}
	return append(orders, o)
}

func removeOrder(orders []schema.Order, id schema.OrderID) []schema.Order {
	for i := range orders {
		if orders[i].ID == id {
			out := append(orders[:i], orders[i+1:]...)
			if len(out) == 0 {
				return nil
			}
			return out
		}
	}
	return orders
}
