// Package registry builds the bidirectional maps between configured
// exchange/asset/instrument names and the dense indices used by all
// hot-path state. Indices are assigned once and stable for the process
// lifetime; iteration in index order walks contiguous slices.
package registry

import (
	"fmt"

	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/schema"
)

var (
	ErrDuplicateExchange   = errors.New("registry: exchange already exists")
	ErrDuplicateAsset      = errors.New("registry: asset already exists")
	ErrDuplicateInstrument = errors.New("registry: instrument already exists")
	ErrUnknownIdentifier   = errors.New("registry: unknown identifier")
	ErrInvalidInstrument   = errors.New("registry: invalid instrument")
)

// Registry stores exchange, asset, and instrument mappings in a
// compact indexed form.
type Registry struct {
	exchanges   []string
	assets      []schema.Asset
	instruments []schema.Instrument

	exchangeByName   map[string]schema.ExchangeIndex
	assetByName      map[assetKey]schema.AssetIndex
	instrumentByName map[string]schema.InstrumentIndex
}

type assetKey struct {
	exchange schema.ExchangeIndex
	symbol   string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		exchangeByName:   make(map[string]schema.ExchangeIndex),
		assetByName:      make(map[assetKey]schema.AssetIndex),
		instrumentByName: make(map[string]schema.InstrumentIndex),
	}
}

// AddExchange registers an exchange and returns its index.
func (r *Registry) AddExchange(name string) (schema.ExchangeIndex, error) {
	if name == "" {
		return 0, errors.Wrap(ErrInvalidInstrument, "exchange name is empty")
	}
	if _, ok := r.exchangeByName[name]; ok {
		return 0, errors.Wrap(ErrDuplicateExchange, name)
	}
	index := schema.ExchangeIndex(len(r.exchanges))
	r.exchanges = append(r.exchanges, name)
	r.exchangeByName[name] = index
	return index, nil
}

// AddAsset registers an asset and returns its index. Each
// (exchange, symbol) pair appears at most once.
func (r *Registry) AddAsset(exchange schema.ExchangeIndex, symbol string) (schema.AssetIndex, error) {
	if symbol == "" {
		return 0, errors.Wrap(ErrInvalidInstrument, "asset symbol is empty")
	}
	if int(exchange) >= len(r.exchanges) {
		return 0, errors.Wrap(ErrUnknownIdentifier, fmt.Sprintf("exchange index %d", exchange))
	}
	key := assetKey{exchange: exchange, symbol: symbol}
	if _, ok := r.assetByName[key]; ok {
		return 0, errors.Wrap(ErrDuplicateAsset, symbol)
	}
	index := schema.AssetIndex(len(r.assets))
	r.assets = append(r.assets, schema.Asset{Exchange: exchange, Symbol: symbol})
	r.assetByName[key] = index
	return index, nil
}

// AddInstrument registers an instrument and returns its index. Base
// and quote must reference registered assets on the same exchange and
// must differ.
func (r *Registry) AddInstrument(inst schema.Instrument) (schema.InstrumentIndex, error) {
	if inst.Name == "" {
		return 0, errors.Wrap(ErrInvalidInstrument, "instrument name is empty")
	}
	if _, ok := r.instrumentByName[inst.Name]; ok {
		return 0, errors.Wrap(ErrDuplicateInstrument, inst.Name)
	}
	if int(inst.Exchange) >= len(r.exchanges) {
		return 0, errors.Wrap(ErrUnknownIdentifier, fmt.Sprintf("exchange index %d", inst.Exchange))
	}
	if inst.Base == inst.Quote {
		return 0, errors.Wrap(ErrInvalidInstrument, "base equals quote")
	}
	for _, asset := range []schema.AssetIndex{inst.Base, inst.Quote} {
		if int(asset) >= len(r.assets) {
			return 0, errors.Wrap(ErrUnknownIdentifier, fmt.Sprintf("asset index %d", asset))
		}
		if r.assets[asset].Exchange != inst.Exchange {
			return 0, errors.Wrap(ErrInvalidInstrument, "asset exchange mismatch")
		}
	}
	if inst.PriceTick.Sign() <= 0 || inst.QuantityTick.Sign() <= 0 {
		return 0, errors.Wrap(ErrInvalidInstrument, "tick increments must be positive")
	}
	index := schema.InstrumentIndex(len(r.instruments))
	r.instruments = append(r.instruments, inst)
	r.instrumentByName[inst.Name] = index
	return index, nil
}

// Exchange returns the exchange name by index.
func (r *Registry) Exchange(index schema.ExchangeIndex) (string, bool) {
	if int(index) >= len(r.exchanges) {
		return "", false
	}
	return r.exchanges[index], true
}

// Asset returns the asset by index.
func (r *Registry) Asset(index schema.AssetIndex) (schema.Asset, bool) {
	if int(index) >= len(r.assets) {
		return schema.Asset{}, false
	}
	return r.assets[index], true
}

// Instrument returns the instrument by index.
func (r *Registry) Instrument(index schema.InstrumentIndex) (schema.Instrument, bool) {
	if int(index) >= len(r.instruments) {
		return schema.Instrument{}, false
	}
	return r.instruments[index], true
}

// ExchangeIndex resolves an exchange name.
func (r *Registry) ExchangeIndex(name string) (schema.ExchangeIndex, error) {
	index, ok := r.exchangeByName[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownIdentifier, name)
	}
	return index, nil
}

// AssetIndex resolves an (exchange, symbol) pair.
func (r *Registry) AssetIndex(exchange schema.ExchangeIndex, symbol string) (schema.AssetIndex, error) {
	index, ok := r.assetByName[assetKey{exchange: exchange, symbol: symbol}]
	if !ok {
		return 0, errors.Wrap(ErrUnknownIdentifier, symbol)
	}
	return index, nil
}

// InstrumentIndex resolves an instrument name.
func (r *Registry) InstrumentIndex(name string) (schema.InstrumentIndex, error) {
	index, ok := r.instrumentByName[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownIdentifier, name)
	}
	return index, nil
}

// ExchangeCount returns the number of registered exchanges.
func (r *Registry) ExchangeCount() int { return len(r.exchanges) }

// AssetCount returns the number of registered assets.
func (r *Registry) AssetCount() int { return len(r.assets) }

// InstrumentCount returns the number of registered instruments.
func (r *Registry) InstrumentCount() int { return len(r.instruments) }

// Instruments returns the instrument slice in index order.
func (r *Registry) Instruments() []schema.Instrument { return r.instruments }
