package audit

import (
	"context"
	"encoding/json"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"github.com/cz9874308/barter-rs/internal/state"
)

// TickRecord is the persisted form of one audit tick.
type TickRecord struct {
	Seq        uint64 `gorm:"primaryKey"`
	TimeEngine int64
	Payload    []byte `gorm:"type:jsonb"`
}

// ClosedPositionRecord is the persisted form of one ledger entry.
type ClosedPositionRecord struct {
	ID          string `gorm:"primaryKey"`
	Instrument  uint32
	Side        uint16
	Quantity    string
	AvgEntry    string
	ExitPrice   string
	RealisedPnL string
	Fees        string
	TimeOpen    int64
	TimeClose   int64
}

// Store persists audit ticks and closed positions through gorm. It is
// a terminal audit consumer and never feeds back into the engine.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the audit tables and returns a store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TickRecord{}, &ClosedPositionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit tables")
	}
	return &Store{db: db}, nil
}

// SaveTick persists one tick and any ledger entries it carries.
func (s *Store) SaveTick(tick *Tick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return errors.Wrap(err, "marshal audit tick")
	}
	record := TickRecord{Seq: uint64(tick.Seq), TimeEngine: tick.TimeEngine, Payload: payload}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(err, "insert audit tick")
	}
	for i := range tick.Delta.Closed {
		if err := s.saveClosed(&tick.Delta.Closed[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveClosed(entry *state.ClosedPosition) error {
	record := ClosedPositionRecord{
		ID:          entry.ID,
		Instrument:  uint32(entry.Instrument),
		Side:        uint16(entry.Side),
		Quantity:    entry.Quantity.String(),
		AvgEntry:    entry.AvgEntryPrice.String(),
		ExitPrice:   entry.ExitPrice.String(),
		RealisedPnL: entry.RealisedPnL.String(),
		Fees:        entry.Fees.String(),
		TimeOpen:    entry.TimeOpenExchange,
		TimeClose:   entry.TimeCloseExchange,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(err, "insert closed position")
	}
	return nil
}

// Run consumes the subscription until the stream closes or the
// context is cancelled. Persistence failures are logged, never fatal.
func (s *Store) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case lag := <-sub.Lagged:
			logs.Infof("audit store lagged by %d ticks, stream detached", lag.Count)
			return
		case tick, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.SaveTick(&tick); err != nil {
				logs.Errorf("persist audit tick %d: %+v", tick.Seq, err)
			}
		}
	}
}
