package audit

import (
	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

var (
	ErrSequenceGap = errors.New("audit: sequence gap")
	ErrStaleTick   = errors.New("audit: tick older than replica")
	ErrReplicaDone = errors.New("audit: replica received shutdown")
)

// Replica reconstructs a mirror of the engine state by applying the
// delta of every tick after its seed snapshot. It never re-runs engine
// logic.
type Replica struct {
	snapshot state.Snapshot
	seq      schema.Sequence
	done     bool
}

// NewReplica seeds a replica with a snapshot taken at seq.
func NewReplica(snapshot state.Snapshot, seq schema.Sequence) *Replica {
	return &Replica{snapshot: snapshot.Clone(), seq: seq}
}

// ApplyTick folds one tick into the mirror. Ticks at or before the
// seed are rejected as stale; a missing sequence number is a gap.
func (r *Replica) ApplyTick(tick *Tick) error {
	if r.done {
		return ErrReplicaDone
	}
	if tick.Seq <= r.seq {
		return errors.Wrap(ErrStaleTick, tick.Seq.String())
	}
	if tick.Seq != r.seq+1 {
		return errors.Wrap(ErrSequenceGap, tick.Seq.String())
	}
	r.snapshot.ApplyDelta(&tick.Delta)
	r.seq = tick.Seq
	if tick.Shutdown != nil {
		r.done = true
	}
	return nil
}

// Seq returns the last applied sequence number.
func (r *Replica) Seq() schema.Sequence { return r.seq }

// State returns a copy of the mirrored state.
func (r *Replica) State() state.Snapshot { return r.snapshot.Clone() }

// Done reports whether the stream ended with a shutdown tick.
func (r *Replica) Done() bool { return r.done }
