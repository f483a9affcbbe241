// Package audit carries the engine's serializable tick log: one record
// per processed event, sufficient for a passive replica to mirror the
// engine state, plus the broadcast hub, the on-disk record stream, and
// the replica itself.
package audit

import (
	"github.com/cz9874308/barter-rs/internal/risk"
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

// ShutdownNote is the sentinel payload of the final tick.
type ShutdownNote struct {
	ExitCode int `json:"exitCode"`
}

// Tick is a single audit record: the processed event, the state delta
// it caused, and the outputs it produced. Sequence numbers are
// monotonic and gap-free.
type Tick struct {
	Seq            schema.Sequence           `json:"seq"`
	TimeEngine     int64                     `json:"timeEngine"`
	Event          schema.EngineEvent        `json:"event"`
	Delta          state.Delta               `json:"delta"`
	Outputs        []schema.ExecutionRequest `json:"outputs,omitempty"`
	RefusedCancels []risk.RefusedCancel      `json:"refusedCancels,omitempty"`
	RefusedOpens   []risk.RefusedOpen        `json:"refusedOpens,omitempty"`
	Errors         []string                  `json:"errors,omitempty"`
	Shutdown       *ShutdownNote             `json:"shutdown,omitempty"`
}
