package main

import (
	"context"
	"flag"
	"log"
	"sync"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/cz9874308/barter-rs/internal/audit"
	"github.com/cz9874308/barter-rs/internal/engine"
	"github.com/cz9874308/barter-rs/internal/execution"
	"github.com/cz9874308/barter-rs/internal/obs"
	"github.com/cz9874308/barter-rs/internal/ops"
	"github.com/cz9874308/barter-rs/internal/risk"
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
	"github.com/cz9874308/barter-rs/internal/strategy"
	"github.com/cz9874308/barter-rs/internal/summary"
	"github.com/cz9874308/barter-rs/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "barter/engine",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %+v", err)
	}

	if err := run(loaded); err != nil {
		log.Fatalf("engine run failed: %+v", err)
	}
}

func run(loaded ops.Loaded) error {
	st := state.New(loaded.Registry, loaded.TradingInitial, nil, loaded.ReconcileTimeout)
	exec := execution.NewManager(loaded.Registry.ExchangeCount(), loaded.HighWater)
	metrics := obs.New()

	var hub *audit.Hub
	if loaded.AuditEnabled {
		hub = audit.NewHub(loaded.AuditCapacity)
	}

	eng := engine.New(
		engine.LiveClock{},
		st,
		exec,
		engine.Hooks{Close: strategy.MarketCloser{}},
		risk.NewLimits(loaded.Config.Risk),
		hub,
		metrics,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumers sync.WaitGroup
	startExchangeWorkers(ctx, &consumers, loaded, exec)
	if hub != nil {
		startAuditConsumers(ctx, &consumers, loaded, hub)
	}

	feed := engine.NewChannelFeed(1024, loaded.Config.Engine.CommandPriority)
	go func() {
		<-sys.Shutdown()
		feed.CommandIn() <- schema.EngineEvent{Kind: schema.EventShutdown}
	}()

	logs.Infof("engine starting: %d exchanges, %d instruments",
		loaded.Registry.ExchangeCount(), loaded.Registry.InstrumentCount())
	err := eng.Run(feed)

	cancel()
	consumers.Wait()

	report := summary.NewGenerator(loaded.RiskFreeReturn).
		Generate(st.Closed, 0, engine.LiveClock{}.Now())
	logs.Infof("session summary: trades=%d pnl=%s fees=%s win_rate=%s max_drawdown=%s",
		report.Trades, report.PnLNet, report.FeesTotal, report.WinRate, report.MaxDrawdown)
	return err
}

// startExchangeWorkers drains the outbound channels. Real exchange
// connectors attach here; the built-in worker only logs.
func startExchangeWorkers(ctx context.Context, wg *sync.WaitGroup, loaded ops.Loaded, exec *execution.Manager) {
	for i := 0; i < loaded.Registry.ExchangeCount(); i++ {
		exchange := schema.ExchangeIndex(i)
		ch, ok := exec.Channel(exchange)
		if !ok {
			continue
		}
		name, _ := loaded.Registry.Exchange(exchange)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req, open := <-ch:
					if !open {
						return
					}
					logs.Infof("[%s] execution request: kind=%d order=%d", name, req.Kind, req.OrderID())
				}
			}
		}()
	}
}

func startAuditConsumers(ctx context.Context, wg *sync.WaitGroup, loaded ops.Loaded, hub *audit.Hub) {
	if path := loaded.Config.Audit.WALPath; path != "" {
		writer, err := audit.NewWriter(path)
		if err != nil {
			logs.Errorf("open audit wal: %+v", err)
		} else {
			sub := hub.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { _ = writer.Close() }()
				for {
					select {
					case <-ctx.Done():
						sub.Close()
						return
					case lag := <-sub.Lagged:
						logs.Infof("audit wal lagged by %d ticks, stream detached", lag.Count)
						return
					case tick, open := <-sub.C:
						if !open {
							return
						}
						if err := writer.Append(&tick); err != nil {
							logs.Errorf("append audit wal: %+v", err)
						}
					}
				}
			}()
		}
	}

	if dsn := loaded.Config.Audit.Postgres; dsn != "" {
		db, err := conn.Postgres{ConnString: dsn}.Open()
		if err != nil {
			logs.Errorf("connect audit store: %+v", err)
			return
		}
		store, err := audit.NewStore(db)
		if err != nil {
			logs.Errorf("init audit store: %+v", err)
			_ = conn.Close(db)
			return
		}
		sub := hub.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = conn.Close(db) }()
			store.Run(ctx, sub)
		}()
	}
}
