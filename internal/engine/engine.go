// Package engine implements the event-driven decision loop: it
// ingests merged engine events, folds them into the engine state,
// invokes the strategy and risk hooks, dispatches execution requests,
// and emits one audit tick per processed event.
package engine

import (
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/cz9874308/barter-rs/internal/audit"
	"github.com/cz9874308/barter-rs/internal/execution"
	"github.com/cz9874308/barter-rs/internal/obs"
	"github.com/cz9874308/barter-rs/internal/risk"
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
	"github.com/cz9874308/barter-rs/internal/strategy"
)

// Hooks bundles the optional strategy capabilities. Nil members are
// simply skipped.
type Hooks struct {
	Algo         strategy.Algo
	Close        strategy.ClosePositions
	OnDisconnect strategy.OnDisconnect
}

// Engine is the single-threaded event multiplexer. It exclusively
// owns the engine state; hooks observe the state during invocation
// and audit consumers receive owned snapshots.
type Engine struct {
	clock   Clock
	state   *state.EngineState
	exec    *execution.Manager
	hooks   Hooks
	risk    risk.Manager
	hub     *audit.Hub
	metrics *obs.Metrics

	seq schema.Sequence
}

// New wires an engine. hub and metrics may be nil; a nil risk manager
// approves everything.
func New(clock Clock, st *state.EngineState, exec *execution.Manager, hooks Hooks, riskManager risk.Manager, hub *audit.Hub, metrics *obs.Metrics) *Engine {
	if clock == nil {
		clock = LiveClock{}
	}
	if riskManager == nil {
		riskManager = risk.AllowAll{}
	}
	return &Engine{
		clock:   clock,
		state:   st,
		exec:    exec,
		hooks:   hooks,
		risk:    riskManager,
		hub:     hub,
		metrics: metrics,
	}
}

// State exposes the engine-owned state for hook wiring and tests. It
// must only be touched from the engine task.
func (e *Engine) State() *state.EngineState { return e.state }

// Seq returns the last emitted audit sequence number.
func (e *Engine) Seq() schema.Sequence { return e.seq }

// Run processes events until a Shutdown event arrives or the feed is
// exhausted. Both paths drain outbound channels and emit a final
// shutdown tick.
func (e *Engine) Run(feed Feed) error {
	for {
		event, ok := feed.Next()
		if !ok {
			// Inbound closure ends the run.
			e.shutdown(schema.EngineEvent{Kind: schema.EventShutdown}, 0)
			return nil
		}
		if stop := e.Process(event); stop {
			return nil
		}
	}
}

// Process applies one event and emits its audit tick. It reports true
// when the event was a shutdown.
func (e *Engine) Process(event schema.EngineEvent) bool {
	started := time.Now()
	e.clock.Process(&event)
	e.metrics.CountEvent(event.Kind)

	if event.Kind == schema.EventShutdown {
		e.shutdown(event, 0)
		return true
	}

	now := e.clock.Now()
	tick := audit.Tick{TimeEngine: now, Event: event}

	res := e.state.Apply(&event, now)
	tick.Delta = res.Delta
	tick.Errors = res.Errors
	e.resolveInFlight(res.Delta.Orders)

	var requests []schema.ExecutionRequest

	// Disconnect hook: the strategy may hedge or flatten while the
	// exchange is away.
	for _, exchange := range res.Reconnecting {
		if e.hooks.OnDisconnect == nil {
			continue
		}
		proposals := e.assignIDs(e.hooks.OnDisconnect.OnDisconnect(e.state, exchange))
		_, approved := e.riskCheck(nil, proposals, &tick)
		requests = append(requests, e.recordOpens(approved, now, &tick)...)
	}

	if event.Kind == schema.EventCommand && event.Command != nil {
		requests = append(requests, e.action(event.Command, now, &tick)...)
	}

	// Algorithmic order generation, gated by the trading flag.
	if e.state.Trading == schema.TradingEnabled && e.hooks.Algo != nil {
		proposals := e.assignIDs(e.hooks.Algo.GenerateOrders(e.state))
		_, approved := e.riskCheck(nil, proposals, &tick)
		requests = append(requests, e.recordOpens(approved, now, &tick)...)
	}

	tick.Outputs = e.route(requests, &tick)
	e.publish(&tick)
	e.metrics.CountEventErrors(len(tick.Errors))
	e.metrics.ObserveTickLatency(time.Since(started))
	return false
}

// action executes one command and returns the recorded execution
// requests.
func (e *Engine) action(command *schema.Command, now int64, tick *audit.Tick) []schema.ExecutionRequest {
	switch command.Kind {
	case schema.CommandSendOpenRequests:
		// Direct user command: declared risk bypass.
		return e.recordOpens(command.Opens, now, tick)

	case schema.CommandSendCancelRequests:
		return e.recordCancels(command.Cancels, tick)

	case schema.CommandClosePositions:
		if e.hooks.Close == nil {
			return nil
		}
		cancels, opens := e.hooks.Close.CloseOrders(e.state, command.Filter)
		opens = e.assignIDs(opens)
		approvedCancels, approvedOpens := e.riskCheck(cancels, opens, tick)
		requests := e.recordCancels(approvedCancels, tick)
		return append(requests, e.recordOpens(approvedOpens, now, tick)...)

	case schema.CommandCancelOrders:
		approvedCancels, _ := e.riskCheck(e.collectCancels(command.Filter), nil, tick)
		return e.recordCancels(approvedCancels, tick)
	}
	return nil
}

// collectCancels builds cancel requests for every outstanding order
// matching the filter.
func (e *Engine) collectCancels(filter schema.Filter) []schema.CancelRequest {
	reg := e.state.Registry()
	var cancels []schema.CancelRequest
	for i := range e.state.Instruments {
		index := schema.InstrumentIndex(i)
		inst, ok := reg.Instrument(index)
		if !ok || !filter.MatchesInstrument(inst, index) {
			continue
		}
		for _, o := range e.state.Instruments[i].Orders.ActiveOrders() {
			if o.State == schema.OrderStateInFlightCancel {
				continue
			}
			cancels = append(cancels, schema.CancelRequest{
				Instrument: index,
				Exchange:   inst.Exchange,
				ID:         o.ID,
			})
		}
	}
	return cancels
}

// assignIDs issues fresh client order ids for strategy-generated
// proposals. Strategies never touch the id counters themselves.
func (e *Engine) assignIDs(proposals []schema.OrderRequest) []schema.OrderRequest {
	for i := range proposals {
		if proposals[i].ID == 0 {
			proposals[i].ID = e.state.NextOrderID(proposals[i].Instrument)
		}
	}
	return proposals
}

func (e *Engine) riskCheck(cancels []schema.CancelRequest, opens []schema.OrderRequest, tick *audit.Tick) ([]schema.CancelRequest, []schema.OrderRequest) {
	if len(cancels) == 0 && len(opens) == 0 {
		return nil, nil
	}
	decision := e.risk.Check(e.state, cancels, opens)
	tick.RefusedCancels = append(tick.RefusedCancels, decision.RefusedCancels...)
	tick.RefusedOpens = append(tick.RefusedOpens, decision.RefusedOpens...)
	e.metrics.CountRiskRefusals(decision.RefusedCount())
	return decision.ApprovedCancels, decision.ApprovedOpens
}

// recordOpens registers opens as in-flight and returns their
// execution requests. Rejections surface as tick errors.
func (e *Engine) recordOpens(opens []schema.OrderRequest, now int64, tick *audit.Tick) []schema.ExecutionRequest {
	var requests []schema.ExecutionRequest
	for i := range opens {
		open := opens[i]
		deltas, errs := e.state.RecordInFlightOpens([]schema.OrderRequest{open}, now)
		tick.Errors = append(tick.Errors, errs...)
		if len(deltas) == 0 {
			continue
		}
		tick.Delta.Orders = append(tick.Delta.Orders, deltas...)
		requests = append(requests, schema.ExecutionRequest{Kind: schema.ExecutionOpen, Open: &open})
	}
	return requests
}

// recordCancels marks orders cancel-in-flight and returns their
// execution requests.
func (e *Engine) recordCancels(cancels []schema.CancelRequest, tick *audit.Tick) []schema.ExecutionRequest {
	var requests []schema.ExecutionRequest
	for i := range cancels {
		cancel := cancels[i]
		deltas, errs := e.state.RecordInFlightCancels([]schema.CancelRequest{cancel})
		tick.Errors = append(tick.Errors, errs...)
		if len(deltas) == 0 {
			continue
		}
		tick.Delta.Orders = append(tick.Delta.Orders, deltas...)
		requests = append(requests, schema.ExecutionRequest{Kind: schema.ExecutionCancel, Cancel: &cancel})
	}
	return requests
}

// route posts requests to the execution manager and returns those
// actually emitted, in generation order.
func (e *Engine) route(requests []schema.ExecutionRequest, tick *audit.Tick) []schema.ExecutionRequest {
	var routed []schema.ExecutionRequest
	for _, req := range requests {
		if err := e.exec.Route(req); err != nil {
			if errors.Is(err, execution.ErrBackpressure) {
				e.metrics.CountExecShed()
			}
			tick.Errors = append(tick.Errors, err.Error())
			continue
		}
		routed = append(routed, req)
	}
	return routed
}

// resolveInFlight clears execution dedup entries once the exchange
// confirmed the corresponding request.
func (e *Engine) resolveInFlight(orders []state.OrderDelta) {
	reg := e.state.Registry()
	for _, od := range orders {
		inst, ok := reg.Instrument(od.Instrument)
		if !ok {
			continue
		}
		if od.Order.State == schema.OrderStateOpen || od.Order.State.Terminal() {
			e.exec.Resolve(inst.Exchange, schema.ExecutionOpen, od.Order.ID)
		}
		if od.Order.State.Terminal() {
			e.exec.Resolve(inst.Exchange, schema.ExecutionCancel, od.Order.ID)
		}
	}
}

// shutdown drains outbound channels, emits the final audit tick, and
// closes the audit stream.
func (e *Engine) shutdown(event schema.EngineEvent, exitCode int) {
	logs.Infof("engine shutting down, exit code %d", exitCode)
	e.exec.Close()
	tick := audit.Tick{
		TimeEngine: e.clock.Now(),
		Event:      event,
		Shutdown:   &audit.ShutdownNote{ExitCode: exitCode},
	}
	e.publish(&tick)
	if e.hub != nil {
		e.hub.Close()
	}
}

func (e *Engine) publish(tick *audit.Tick) {
	e.seq++
	tick.Seq = e.seq
	e.metrics.CountAuditTick()
	if e.hub != nil {
		e.hub.Publish(*tick)
	}
}
