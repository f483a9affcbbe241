// Package risk defines the order-approval hook consulted by the
// engine before algorithmic orders and command-generated cancels and
// closes are sent.
package risk

import (
	"github.com/cz9874308/barter-rs/internal/schema"
	"github.com/cz9874308/barter-rs/internal/state"
)

// RefusedOpen is a refused open proposal with the audited reason.
type RefusedOpen struct {
	Request schema.OrderRequest `json:"request"`
	Reason  string              `json:"reason"`
}

// RefusedCancel is a refused cancel proposal with the audited reason.
type RefusedCancel struct {
	Request schema.CancelRequest `json:"request"`
	Reason  string               `json:"reason"`
}

// Decision partitions proposed cancels and opens into approved and
// refused. A refusal is a normal outcome, not an error.
type Decision struct {
	ApprovedCancels []schema.CancelRequest `json:"approvedCancels,omitempty"`
	ApprovedOpens   []schema.OrderRequest  `json:"approvedOpens,omitempty"`
	RefusedCancels  []RefusedCancel        `json:"refusedCancels,omitempty"`
	RefusedOpens    []RefusedOpen          `json:"refusedOpens,omitempty"`
}

// RefusedCount returns the total number of refused proposals.
func (d Decision) RefusedCount() int {
	return len(d.RefusedCancels) + len(d.RefusedOpens)
}

// Manager inspects proposed cancels and opens and partitions them.
type Manager interface {
	Check(s *state.EngineState, cancels []schema.CancelRequest, opens []schema.OrderRequest) Decision
}

// AllowAll approves every proposal.
type AllowAll struct{}

var _ Manager = AllowAll{}

func (AllowAll) Check(_ *state.EngineState, cancels []schema.CancelRequest, opens []schema.OrderRequest) Decision {
	return Decision{ApprovedCancels: cancels, ApprovedOpens: opens}
}
