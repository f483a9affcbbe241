package registry

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/schema"
)

func buildTestRegistry(t *testing.T) (*Registry, schema.ExchangeIndex, schema.AssetIndex, schema.AssetIndex) {
	t.Helper()
	r := New()
	binance, err := r.AddExchange("binance")
	if err != nil {
		t.Fatalf("add exchange: %v", err)
	}
	btc, err := r.AddAsset(binance, "btc")
	if err != nil {
		t.Fatalf("add btc: %v", err)
	}
	usdt, err := r.AddAsset(binance, "usdt")
	if err != nil {
		t.Fatalf("add usdt: %v", err)
	}
	return r, binance, btc, usdt
}

func TestRegistryIndicesAreDense(t *testing.T) {
	r, binance, btc, usdt := buildTestRegistry(t)
	if binance != 0 || btc != 0 || usdt != 1 {
		t.Fatalf("unexpected indices: exchange=%d btc=%d usdt=%d", binance, btc, usdt)
	}

	index, err := r.AddInstrument(schema.Instrument{
		Exchange:     binance,
		Base:         btc,
		Quote:        usdt,
		Name:         "binance-btc-usdt-spot",
		Kind:         schema.InstrumentSpot,
		PriceTick:    decimal.RequireFromString("0.01"),
		QuantityTick: decimal.RequireFromString("0.0001"),
	})
	if err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	if index != 0 {
		t.Fatalf("instrument index = %d, want 0", index)
	}

	resolved, err := r.InstrumentIndex("binance-btc-usdt-spot")
	if err != nil || resolved != index {
		t.Fatalf("resolve instrument: index=%d err=%v", resolved, err)
	}
}

func TestRegistryDuplicateAsset(t *testing.T) {
	r, binance, _, _ := buildTestRegistry(t)
	if _, err := r.AddAsset(binance, "btc"); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("duplicate asset error = %v", err)
	}
}

func TestRegistryInvalidInstrument(t *testing.T) {
	r, binance, btc, usdt := buildTestRegistry(t)
	tick := decimal.RequireFromString("0.01")

	cases := []struct {
		name string
		inst schema.Instrument
		want error
	}{
		{
			name: "base equals quote",
			inst: schema.Instrument{Exchange: binance, Base: btc, Quote: btc, Name: "bad-pair", PriceTick: tick, QuantityTick: tick},
			want: ErrInvalidInstrument,
		},
		{
			name: "unknown asset",
			inst: schema.Instrument{Exchange: binance, Base: btc, Quote: 99, Name: "bad-asset", PriceTick: tick, QuantityTick: tick},
			want: ErrUnknownIdentifier,
		},
		{
			name: "zero tick",
			inst: schema.Instrument{Exchange: binance, Base: btc, Quote: usdt, Name: "bad-tick", PriceTick: decimal.Zero, QuantityTick: tick},
			want: ErrInvalidInstrument,
		},
	}
	for _, tc := range cases {
		if _, err := r.AddInstrument(tc.inst); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestRegistryUnknownLookup(t *testing.T) {
	r, _, _, _ := buildTestRegistry(t)
	if _, err := r.ExchangeIndex("kraken"); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("unknown exchange err = %v", err)
	}
	if _, err := r.InstrumentIndex("nope"); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("unknown instrument err = %v", err)
	}
	if _, ok := r.Instrument(5); ok {
		t.Fatal("out-of-range instrument lookup should fail")
	}
}
