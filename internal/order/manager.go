// Package order tracks the lifecycle of orders for a single
// instrument: in-flight opens and cancels, exchange confirmations,
// fills, and snapshot reconciliation after reconnects.
package order

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/num"
	"github.com/cz9874308/barter-rs/internal/schema"
)

var (
	ErrDuplicateID     = errors.New("order: duplicate client order id")
	ErrUnknownOrder    = errors.New("order: order not found")
	ErrAlreadyTerminal = errors.New("order: order already terminal")
	ErrCancelInFlight  = errors.New("order: cancel already in flight")
)

// DefaultReconcileTimeout bounds how long an update for an unknown
// order id is shadowed before being discarded as a ghost.
const DefaultReconcileTimeout = 30 * time.Second

// DefaultTerminalRingSize bounds the retained terminal order history.
const DefaultTerminalRingSize = 128

// Change reports one order mutation produced by a manager operation.
type Change struct {
	Order   schema.Order
	Removed bool
}

// Flags carries the non-fatal anomalies detected while applying an
// event.
type Flags struct {
	Overfill bool
	Ghost    bool
	// Applied is the fill quantity actually credited after clamping.
	Applied decimal.Decimal
}

// shadow is a pending entry for updates that arrived before the
// matching open request.
type shadow struct {
	updates  []schema.OrderUpdate
	fills    []schema.TradeFill
	deadline int64
}

// Manager tracks the orders of one instrument.
type Manager struct {
	instrument schema.InstrumentIndex
	exchange   schema.ExchangeIndex

	active   map[schema.OrderID]*schema.Order
	pending  map[schema.OrderID]*shadow
	terminal *terminalRing

	nextID           schema.OrderID
	reconcileTimeout int64
}

// NewManager creates an empty manager for the instrument.
func NewManager(instrument schema.InstrumentIndex, exchange schema.ExchangeIndex, reconcileTimeout time.Duration) *Manager {
	if reconcileTimeout <= 0 {
		reconcileTimeout = DefaultReconcileTimeout
	}
	return &Manager{
		instrument:       instrument,
		exchange:         exchange,
		active:           make(map[schema.OrderID]*schema.Order),
		pending:          make(map[schema.OrderID]*shadow),
		terminal:         newTerminalRing(DefaultTerminalRingSize),
		nextID:           1,
		reconcileTimeout: reconcileTimeout.Nanoseconds(),
	}
}

// NextID issues the next client order id for this instrument.
func (m *Manager) NextID() schema.OrderID {
	id := m.nextID
	m.nextID++
	return id
}

// ReserveID advances the id sequence past an externally supplied id so
// engine-issued ids never collide with commanded ones.
func (m *Manager) ReserveID(id schema.OrderID) {
	if id >= m.nextID {
		m.nextID = id + 1
	}
}

// Active returns the order by id if it is non-terminal.
func (m *Manager) Active(id schema.OrderID) (schema.Order, bool) {
	o, ok := m.active[id]
	if !ok {
		return schema.Order{}, false
	}
	return *o, true
}

// ActiveOrders returns copies of all non-terminal orders in id order.
func (m *Manager) ActiveOrders() []schema.Order {
	if len(m.active) == 0 {
		return nil
	}
	ids := make([]schema.OrderID, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sortOrderIDs(ids)
	out := make([]schema.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.active[id])
	}
	return out
}

// RequestOpen registers a proposed open as in-flight and returns the
// resulting order state. Duplicate non-terminal ids are rejected.
func (m *Manager) RequestOpen(req schema.OrderRequest, now int64) (Change, Flags, error) {
	if _, ok := m.active[req.ID]; ok {
		return Change{}, Flags{}, errors.Wrap(ErrDuplicateID, req.ID.String())
	}
	m.ReserveID(req.ID)
	o := &schema.Order{
		Instrument:  m.instrument,
		Exchange:    m.exchange,
		ID:          req.ID,
		Side:        req.Side,
		Kind:        req.Kind,
		TimeInForce: req.TimeInForce,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Filled:      decimal.Zero,
		State:       schema.OrderStateInFlightOpen,
		Origin:      schema.OriginLocal,
	}
	m.active[req.ID] = o

	var flags Flags
	if sh, ok := m.pending[req.ID]; ok {
		// Late open for a shadowed order: replay what the exchange
		// already told us.
		delete(m.pending, req.ID)
		for _, u := range sh.updates {
			if _, _, err := m.ApplyUpdate(u, now); err != nil {
				break
			}
		}
		for _, f := range sh.fills {
			_, fillFlags, err := m.ApplyFill(f, now)
			flags.Overfill = flags.Overfill || fillFlags.Overfill
			if err != nil {
				break
			}
		}
	}

	if current, ok := m.active[req.ID]; ok {
		return Change{Order: *current}, flags, nil
	}
	// Replayed shadow updates drove the order terminal already.
	if terminal, ok := m.terminal.lookup(req.ID); ok {
		return Change{Order: terminal}, flags, nil
	}
	return Change{Order: *o}, flags, nil
}

// RequestCancel marks an outstanding order as cancel-in-flight.
func (m *Manager) RequestCancel(id schema.OrderID) (Change, error) {
	o, ok := m.active[id]
	if !ok {
		if _, terminal := m.terminal.lookup(id); terminal {
			return Change{}, errors.Wrap(ErrAlreadyTerminal, id.String())
		}
		return Change{}, errors.Wrap(ErrUnknownOrder, id.String())
	}
	if o.State == schema.OrderStateInFlightCancel {
		return Change{}, errors.Wrap(ErrCancelInFlight, id.String())
	}
	o.State = schema.OrderStateInFlightCancel
	o.CancelReason = schema.CancelReasonRequested
	return Change{Order: *o}, nil
}

// ApplyUpdate transitions an order from an exchange confirmation.
// Updates for unknown ids are shadowed until the matching open request
// arrives or the reconcile timeout elapses.
func (m *Manager) ApplyUpdate(update schema.OrderUpdate, now int64) (Change, Flags, error) {
	o, ok := m.active[update.ID]
	if !ok {
		if terminal, found := m.terminal.lookup(update.ID); found {
			// Late confirmation for an already-terminal order.
			return Change{Order: terminal}, Flags{}, errors.Wrap(ErrAlreadyTerminal, update.ID.String())
		}
		m.shadowUpdate(update, now)
		return Change{}, Flags{Ghost: true}, nil
	}
	if o.State.Terminal() {
		return Change{Order: *o}, Flags{}, errors.Wrap(ErrAlreadyTerminal, update.ID.String())
	}

	if update.ExchangeID != "" {
		o.ExchangeID = update.ExchangeID
	}
	if update.Quantity.Sign() > 0 {
		o.Quantity = update.Quantity
	}
	if update.Filled.Sign() > 0 && update.Filled.GreaterThan(o.Filled) {
		o.Filled = decimal.Min(update.Filled, o.Quantity)
	}

	switch update.State {
	case schema.OrderStateOpen:
		// A cancel in flight is not displaced by a late open confirm.
		if o.State != schema.OrderStateInFlightCancel {
			o.State = schema.OrderStateOpen
		}
	case schema.OrderStatePartiallyFilled:
		if o.State != schema.OrderStateInFlightCancel {
			o.State = schema.OrderStatePartiallyFilled
		}
	case schema.OrderStateFilled, schema.OrderStateCancelled, schema.OrderStateExpired, schema.OrderStateRejected:
		o.State = update.State
		return m.retire(o), Flags{}, nil
	}
	return Change{Order: *o}, Flags{}, nil
}

// ApplyFill increments the cumulative filled quantity from a trade.
// Fill quantity beyond the order quantity is clamped and flagged.
// Fills for unknown ids are shadowed like updates.
func (m *Manager) ApplyFill(fill schema.TradeFill, now int64) (Change, Flags, error) {
	o, ok := m.active[fill.OrderID]
	if !ok {
		if terminal, found := m.terminal.lookup(fill.OrderID); found {
			return Change{Order: terminal}, Flags{Overfill: true}, errors.Wrap(ErrAlreadyTerminal, fill.OrderID.String())
		}
		m.shadowFill(fill, now)
		return Change{}, Flags{Ghost: true}, nil
	}
	if o.State.Terminal() {
		return Change{Order: *o}, Flags{}, errors.Wrap(ErrAlreadyTerminal, fill.OrderID.String())
	}

	flags := Flags{Applied: fill.Quantity}
	next, _ := num.Add(o.Filled, fill.Quantity)
	if next.GreaterThan(o.Quantity) {
		flags.Applied = o.Quantity.Sub(o.Filled)
		next = o.Quantity
		flags.Overfill = true
	}
	o.Filled = next

	if o.Filled.GreaterThanOrEqual(o.Quantity) {
		o.State = schema.OrderStateFilled
		return m.retire(o), flags, nil
	}
	if o.State != schema.OrderStateInFlightCancel {
		o.State = schema.OrderStatePartiallyFilled
	}
	return Change{Order: *o}, flags, nil
}

// MarkAwaitingSnapshot flags every non-terminal order as stale after a
// reconnect; the next account snapshot resolves them.
func (m *Manager) MarkAwaitingSnapshot() []Change {
	changes := make([]Change, 0, len(m.active))
	for _, o := range m.active {
		o.AwaitingSnapshot = true
		changes = append(changes, Change{Order: *o})
	}
	sortChanges(changes)
	return changes
}

// ReconcileSnapshot treats the exchange snapshot as authoritative:
// local non-terminal orders missing from it are cancelled, snapshot
// orders not known locally are adopted as open.
func (m *Manager) ReconcileSnapshot(snapshot []schema.SnapshotOrder) []Change {
	seen := make(map[schema.OrderID]struct{}, len(snapshot))
	var changes []Change

	for _, snap := range snapshot {
		seen[snap.ID] = struct{}{}
		if o, ok := m.active[snap.ID]; ok {
			o.AwaitingSnapshot = false
			if snap.ExchangeID != "" {
				o.ExchangeID = snap.ExchangeID
			}
			if snap.Quantity.Sign() > 0 {
				o.Quantity = snap.Quantity
			}
			if snap.Filled.GreaterThan(o.Filled) {
				o.Filled = decimal.Min(snap.Filled, o.Quantity)
			}
			if o.State == schema.OrderStateInFlightOpen {
				o.State = schema.OrderStateOpen
			}
			changes = append(changes, Change{Order: *o})
			continue
		}
		m.ReserveID(snap.ID)
		adopted := &schema.Order{
			Instrument: m.instrument,
			Exchange:   m.exchange,
			ID:         snap.ID,
			ExchangeID: snap.ExchangeID,
			Side:       snap.Side,
			Kind:       snap.Kind,
			Price:      snap.Price,
			Quantity:   snap.Quantity,
			Filled:     snap.Filled,
			State:      schema.OrderStateOpen,
			Origin:     schema.OriginAdopted,
		}
		m.active[snap.ID] = adopted
		changes = append(changes, Change{Order: *adopted})
	}

	ids := make([]schema.OrderID, 0, len(m.active))
	for id := range m.active {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sortOrderIDs(ids)
	for _, id := range ids {
		o := m.active[id]
		o.State = schema.OrderStateCancelled
		o.CancelReason = schema.CancelReasonMissingFromSnapshot
		o.AwaitingSnapshot = false
		changes = append(changes, m.retire(o))
	}
	sortChanges(changes)
	return changes
}

// GhostOrder reports a shadow entry discarded after the reconcile
// timeout.
type GhostOrder struct {
	ID      schema.OrderID
	Updates int
	Fills   int
}

// SweepGhosts discards shadow entries whose deadline has passed.
func (m *Manager) SweepGhosts(now int64) []GhostOrder {
	var ghosts []GhostOrder
	for id, sh := range m.pending {
		if now >= sh.deadline {
			ghosts = append(ghosts, GhostOrder{ID: id, Updates: len(sh.updates), Fills: len(sh.fills)})
			delete(m.pending, id)
		}
	}
	sortGhosts(ghosts)
	return ghosts
}

// PendingCount returns the number of shadow entries.
func (m *Manager) PendingCount() int { return len(m.pending) }

// TerminalOrders returns the retained terminal order history,
// oldest first.
func (m *Manager) TerminalOrders() []schema.Order { return m.terminal.orders() }

func (m *Manager) retire(o *schema.Order) Change {
	delete(m.active, o.ID)
	m.terminal.push(*o)
	return Change{Order: *o, Removed: true}
}

func (m *Manager) shadowUpdate(update schema.OrderUpdate, now int64) {
	sh := m.shadowFor(update.ID, now)
	sh.updates = append(sh.updates, update)
}

func (m *Manager) shadowFill(fill schema.TradeFill, now int64) {
	sh := m.shadowFor(fill.OrderID, now)
	sh.fills = append(sh.fills, fill)
}

func (m *Manager) shadowFor(id schema.OrderID, now int64) *shadow {
	sh, ok := m.pending[id]
	if !ok {
		sh = &shadow{deadline: now + m.reconcileTimeout}
		m.pending[id] = sh
	}
	return sh
}

func sortOrderIDs(ids []schema.OrderID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].Order.ID < changes[j].Order.ID })
}

func sortGhosts(ghosts []GhostOrder) {
	sort.Slice(ghosts, func(i, j int) bool { return ghosts[i].ID < ghosts[j].ID })
}
