// Package ops loads the engine configuration: the registry section
// naming exchanges, assets, and instruments, plus the recognized
// engine options with their defaults.
package ops

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"github.com/cz9874308/barter-rs/internal/registry"
	"github.com/cz9874308/barter-rs/internal/risk"
	"github.com/cz9874308/barter-rs/internal/schema"
)

var ErrInvalidConfig = errors.New("ops: invalid config")

// Config mirrors the YAML config layout.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Engine   EngineConfig   `yaml:"engine"`
	Risk     risk.Config    `yaml:"risk"`
	Audit    AuditConfig    `yaml:"audit"`
}

// RegistryConfig defines exchange, asset, and instrument mappings.
type RegistryConfig struct {
	Exchanges   []string           `yaml:"exchanges"`
	Assets      []AssetConfig      `yaml:"assets"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// AssetConfig describes one asset entry.
type AssetConfig struct {
	Exchange string `yaml:"exchange"`
	Symbol   string `yaml:"symbol"`
}

// InstrumentConfig describes one instrument entry.
type InstrumentConfig struct {
	Name         string `yaml:"name"`
	Exchange     string `yaml:"exchange"`
	Base         string `yaml:"base"`
	Quote        string `yaml:"quote"`
	Kind         string `yaml:"kind"`
	Expiry       int64  `yaml:"expiry,omitempty"`
	Strike       string `yaml:"strike,omitempty"`
	Right        string `yaml:"right,omitempty"`
	Exercise     string `yaml:"exercise,omitempty"`
	PriceTick    string `yaml:"price_tick"`
	QuantityTick string `yaml:"quantity_tick"`
}

// EngineConfig captures the recognized engine options.
type EngineConfig struct {
	FeedMode                  string `yaml:"feed_mode"`
	AuditMode                 string `yaml:"audit_mode"`
	TradingStateInitial       string `yaml:"trading_state_initial"`
	OrderReconcileTimeoutMS   uint64 `yaml:"order_reconcile_timeout_ms"`
	ExecBackpressureHighWater int    `yaml:"exec_backpressure_high_water"`
	AuditChannelCapacity      int    `yaml:"audit_channel_capacity"`
	CommandPriority           bool   `yaml:"command_priority"`
	RiskFreeReturn            string `yaml:"risk_free_return"`
}

// AuditConfig wires the optional audit sinks.
type AuditConfig struct {
	WALPath  string `yaml:"wal_path,omitempty"`
	Postgres string `yaml:"postgres,omitempty"`
}

// Loaded is a parsed and validated configuration.
type Loaded struct {
	Config           Config
	Registry         *registry.Registry
	FeedMode         FeedMode
	AuditEnabled     bool
	TradingInitial   schema.TradingState
	ReconcileTimeout time.Duration
	HighWater        int
	AuditCapacity    int
	RiskFreeReturn   decimal.Decimal
}

// FeedMode selects the engine's event source.
type FeedMode uint16

const (
	FeedIterator FeedMode = iota
	FeedChannel
)

// Defaults applied when options are omitted.
const (
	DefaultReconcileTimeoutMS = 30000
	DefaultHighWater          = 10000
	DefaultAuditCapacity      = 1024
)

// Load reads and validates the YAML config at path.
func Load(path string) (Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	return Parse(raw)
}

// Parse validates raw YAML config bytes.
func Parse(raw []byte) (Loaded, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "unmarshal config")
	}

	reg, err := BuildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Config:           cfg,
		Registry:         reg,
		ReconcileTimeout: DefaultReconcileTimeoutMS * time.Millisecond,
		HighWater:        DefaultHighWater,
		AuditCapacity:    DefaultAuditCapacity,
		AuditEnabled:     true,
		RiskFreeReturn:   decimal.Zero,
	}

	switch strings.ToLower(cfg.Engine.FeedMode) {
	case "", "iterator":
		loaded.FeedMode = FeedIterator
	case "channel":
		loaded.FeedMode = FeedChannel
	default:
		return Loaded{}, errors.Wrap(ErrInvalidConfig, "feed_mode "+cfg.Engine.FeedMode)
	}

	switch strings.ToLower(cfg.Engine.AuditMode) {
	case "", "enabled":
		loaded.AuditEnabled = true
	case "disabled":
		loaded.AuditEnabled = false
	default:
		return Loaded{}, errors.Wrap(ErrInvalidConfig, "audit_mode "+cfg.Engine.AuditMode)
	}

	switch strings.ToLower(cfg.Engine.TradingStateInitial) {
	case "enabled":
		loaded.TradingInitial = schema.TradingEnabled
	case "", "disabled":
		loaded.TradingInitial = schema.TradingDisabled
	default:
		return Loaded{}, errors.Wrap(ErrInvalidConfig, "trading_state_initial "+cfg.Engine.TradingStateInitial)
	}

	if cfg.Engine.OrderReconcileTimeoutMS > 0 {
		loaded.ReconcileTimeout = time.Duration(cfg.Engine.OrderReconcileTimeoutMS) * time.Millisecond
	}
	if cfg.Engine.ExecBackpressureHighWater > 0 {
		loaded.HighWater = cfg.Engine.ExecBackpressureHighWater
	}
	if cfg.Engine.AuditChannelCapacity > 0 {
		loaded.AuditCapacity = cfg.Engine.AuditChannelCapacity
	}
	if cfg.Engine.RiskFreeReturn != "" {
		rate, err := decimal.NewFromString(cfg.Engine.RiskFreeReturn)
		if err != nil {
			return Loaded{}, errors.Wrap(ErrInvalidConfig, "risk_free_return "+cfg.Engine.RiskFreeReturn)
		}
		loaded.RiskFreeReturn = rate
	}

	return loaded, nil
}

// BuildRegistry constructs the indexed registry from the config
// section. Any reference error is fatal at startup.
func BuildRegistry(cfg RegistryConfig) (*registry.Registry, error) {
	reg := registry.New()
	for _, name := range cfg.Exchanges {
		if _, err := reg.AddExchange(name); err != nil {
			return nil, err
		}
	}
	for _, asset := range cfg.Assets {
		exchange, err := reg.ExchangeIndex(asset.Exchange)
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddAsset(exchange, asset.Symbol); err != nil {
			return nil, err
		}
	}
	for _, inst := range cfg.Instruments {
		parsed, err := parseInstrument(reg, inst)
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddInstrument(parsed); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseInstrument(reg *registry.Registry, cfg InstrumentConfig) (schema.Instrument, error) {
	exchange, err := reg.ExchangeIndex(cfg.Exchange)
	if err != nil {
		return schema.Instrument{}, err
	}
	base, err := reg.AssetIndex(exchange, cfg.Base)
	if err != nil {
		return schema.Instrument{}, err
	}
	quote, err := reg.AssetIndex(exchange, cfg.Quote)
	if err != nil {
		return schema.Instrument{}, err
	}
	priceTick, err := decimal.NewFromString(cfg.PriceTick)
	if err != nil {
		return schema.Instrument{}, errors.Wrap(ErrInvalidConfig, "price_tick "+cfg.PriceTick)
	}
	quantityTick, err := decimal.NewFromString(cfg.QuantityTick)
	if err != nil {
		return schema.Instrument{}, errors.Wrap(ErrInvalidConfig, "quantity_tick "+cfg.QuantityTick)
	}

	inst := schema.Instrument{
		Exchange:     exchange,
		Base:         base,
		Quote:        quote,
		Name:         cfg.Name,
		PriceTick:    priceTick,
		QuantityTick: quantityTick,
	}

	switch strings.ToLower(cfg.Kind) {
	case "", "spot":
		inst.Kind = schema.InstrumentSpot
	case "perpetual":
		inst.Kind = schema.InstrumentPerpetual
	case "future":
		inst.Kind = schema.InstrumentFuture
		inst.Future = &schema.FutureContract{Expiry: cfg.Expiry}
	case "option":
		inst.Kind = schema.InstrumentOption
		option := &schema.OptionContract{Expiry: cfg.Expiry}
		if cfg.Strike != "" {
			strike, err := decimal.NewFromString(cfg.Strike)
			if err != nil {
				return schema.Instrument{}, errors.Wrap(ErrInvalidConfig, "strike "+cfg.Strike)
			}
			option.Strike = strike
		}
		if strings.ToLower(cfg.Right) == "put" {
			option.Right = schema.OptionPut
		}
		if strings.ToLower(cfg.Exercise) == "american" {
			option.Exercise = schema.ExerciseAmerican
		}
		inst.Option = option
	default:
		return schema.Instrument{}, errors.Wrap(ErrInvalidConfig, "kind "+cfg.Kind)
	}
	return inst, nil
}
