package audit

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTick(seq schema.Sequence) Tick {
	trading := schema.TradingEnabled
	return Tick{
		Seq:        seq,
		TimeEngine: 42,
		Event: schema.EngineEvent{
			Kind: schema.EventAccount,
			Account: &schema.AccountEvent{
				Exchange:     0,
				TimeExchange: 41,
				Kind:         schema.AccountTrade,
				Trade: &schema.TradeFill{
					Instrument: 0, OrderID: 1, Side: schema.SideBuy,
					Price: d("20000"), Quantity: d("1"), Fee: d("10"),
				},
			},
		},
		Delta: state.Delta{
			Trading: &trading,
			Orders: []state.OrderDelta{{
				Instrument: 0,
				Order: schema.Order{
					Instrument: 0, ID: 1, Side: schema.SideBuy,
					Kind: schema.OrderLimit, Price: d("20000"), Quantity: d("1"),
					Filled: d("1"), State: schema.OrderStateFilled,
				},
				Removed: true,
			}},
			Positions: []state.PositionDelta{{
				Instrument: 0,
				Position: &state.Position{
					Instrument: 0, Side: schema.SideBuy, Quantity: d("1"),
					AvgEntryPrice: d("20000"), RealisedPnL: d("0"), Fees: d("10"),
				},
			}},
		},
		Outputs: []schema.ExecutionRequest{{
			Kind:   schema.ExecutionCancel,
			Cancel: &schema.CancelRequest{Instrument: 0, Exchange: 0, ID: 2},
		}},
		Errors: []string{"overfill detected: order 9"},
	}
}

func TestTickJSONRoundTrip(t *testing.T) {
	orig := sampleTick(7)
	payload, err := json.Marshal(&orig)
	require.NoError(t, err)

	var decoded Tick
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, orig.Seq, decoded.Seq)
	assert.Equal(t, orig.TimeEngine, decoded.TimeEngine)
	assert.Equal(t, orig.Event.Kind, decoded.Event.Kind)
	require.NotNil(t, decoded.Event.Account)
	assert.True(t, decoded.Event.Account.Trade.Price.Equal(d("20000")))
	require.Len(t, decoded.Delta.Orders, 1)
	assert.True(t, decoded.Delta.Orders[0].Removed)
	require.Len(t, decoded.Delta.Positions, 1)
	assert.True(t, decoded.Delta.Positions[0].Position.Fees.Equal(d("10")))
	require.Len(t, decoded.Outputs, 1)
	assert.Equal(t, schema.OrderID(2), decoded.Outputs[0].OrderID())
	assert.Equal(t, orig.Errors, decoded.Errors)
}

func TestHubBroadcastAndLag(t *testing.T) {
	hub := NewHub(2)
	fast := hub.Subscribe()
	slow := hub.Subscribe()

	hub.Publish(sampleTick(1))
	hub.Publish(sampleTick(2))

	// Fast consumer keeps up.
	<-fast.C
	<-fast.C

	// Slow consumer's backlog fills; the third publish detaches it.
	hub.Publish(sampleTick(3))

	lag := <-slow.Lagged
	assert.Equal(t, uint64(1), lag.Count)

	var slowTicks int
	for range slow.C {
		slowTicks++
	}
	assert.Equal(t, 2, slowTicks)

	// Fast consumer still receives.
	tick := <-fast.C
	assert.Equal(t, schema.Sequence(3), tick.Seq)

	hub.Close()
	_, open := <-fast.C
	assert.False(t, open)
}

func TestWALRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.wal")
	w, err := NewWriter(path)
	require.NoError(t, err)
	for seq := schema.Sequence(1); seq <= 3; seq++ {
		require.NoError(t, w.Append(&Tick{Seq: seq, TimeEngine: int64(seq) * 10, Event: schema.EngineEvent{Kind: schema.EventMarket}}))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	for want := schema.Sequence(1); want <= 3; want++ {
		tick, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, tick.Seq)
		assert.Equal(t, int64(want)*10, tick.TimeEngine)
	}
	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWALChecksumDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.wal")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(&Tick{Seq: 1, Event: schema.EngineEvent{Kind: schema.EventMarket}}))
	require.NoError(t, w.Close())

	corruptLastByte(t, path)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestReplicaSequenceDiscipline(t *testing.T) {
	replica := NewReplica(state.Snapshot{
		Connectivity: make([]schema.ConnectivityState, 1),
		Assets:       make([]state.AssetState, 2),
		Instruments:  make([]state.InstrumentSnapshot, 1),
	}, 0)

	tick1 := sampleTick(1)
	require.NoError(t, replica.ApplyTick(&tick1))
	assert.Equal(t, schema.Sequence(1), replica.Seq())

	stale := sampleTick(1)
	assert.True(t, errors.Is(replica.ApplyTick(&stale), ErrStaleTick))

	gap := sampleTick(3)
	assert.True(t, errors.Is(replica.ApplyTick(&gap), ErrSequenceGap))

	tick2 := sampleTick(2)
	tick2.Shutdown = &ShutdownNote{ExitCode: 0}
	require.NoError(t, replica.ApplyTick(&tick2))
	assert.True(t, replica.Done())
	next := sampleTick(3)
	assert.True(t, errors.Is(replica.ApplyTick(&next), ErrReplicaDone))

	// The sample delta removes order 1, opens a position, and enables
	// trading.
	mirrored := replica.State()
	assert.Equal(t, schema.TradingEnabled, mirrored.Trading)
	assert.Empty(t, mirrored.Instruments[0].Orders)
	require.NotNil(t, mirrored.Instruments[0].Position)
}

func corruptLastByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
