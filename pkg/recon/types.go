// Package recon implements the reconciliation engine: the planner that turns
// identity-match results into pending actions, the store that owns the
// pending-action lifecycle, and the executor that applies approved actions
// against the external systems.
package recon

import (
	"context"
	"time"

	"github.com/opshub/tenantsync/pkg/records"
)

// Names of the external systems an action can touch.
const (
	SystemInventory = "inventory"
	SystemTree      = "tree"
	SystemBackup    = "backup-aggregator"
)

// Kind is the type of a pending action.
type Kind string

// Action kinds.
const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
)

// Status classifies report entries and execution outcomes.
type Status string

// Statuses.
const (
	StatusSynced        Status = "synced"
	StatusPendingCreate Status = "pending_create"
	StatusPendingUpdate Status = "pending_update"
	StatusSuccess       Status = "success"
	StatusWarning       Status = "warning"
	StatusError         Status = "error"
)

// PendingAction is a proposed synchronization step awaiting approval. Synced
// report entries reuse the same shape with StatusSynced and no Kind.
type PendingAction struct {
	// ID is unique within the report cycle that produced it. Regenerating
	// the report invalidates all previous ids.
	ID string `json:"id"`

	Kind   Kind   `json:"kind,omitempty"`
	Status Status `json:"status"`

	// TargetID is set for update actions that matched an existing tenant.
	TargetID string `json:"target_id,omitempty"`

	// ProposedName is the name the action will apply.
	ProposedName string `json:"proposed_name"`

	TaxID    string `json:"tax_id,omitempty"`
	SourceID string `json:"source_id"`

	// Systems lists the external systems the action affects.
	Systems []string `json:"systems"`

	// Rationale is the human-readable explanation shown for approval.
	Rationale string `json:"rationale"`

	CreatedAt time.Time `json:"created_at"`

	// Generation is the report cycle that produced the action.
	Generation uint64 `json:"-"`
}

// Report is the ordered result of one planning run.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Generation  uint64          `json:"generation"`
	Entries     []PendingAction `json:"entries"`
}

// Pending returns the entries that require approval (everything not synced).
func (r *Report) Pending() []PendingAction {
	var out []PendingAction
	for _, e := range r.Entries {
		if e.Status != StatusSynced {
			out = append(out, e)
		}
	}
	return out
}

// Summarize condenses the report into per-status counts.
func (r *Report) Summarize() Summary {
	sum := Summary{LastRun: r.GeneratedAt, Generation: r.Generation}
	for _, e := range r.Entries {
		switch e.Status {
		case StatusSynced:
			sum.Synced++
		case StatusPendingCreate:
			sum.PendingCreate++
		case StatusPendingUpdate:
			sum.PendingUpdate++
		}
	}
	return sum
}

// Summary condenses the last planning run for status endpoints.
type Summary struct {
	LastRun       time.Time `json:"last_run"`
	Generation    uint64    `json:"generation"`
	Synced        int       `json:"synced"`
	PendingCreate int       `json:"pending_create"`
	PendingUpdate int       `json:"pending_update"`
	Skipped       int       `json:"skipped"`
}

// Outcome is the per-id result of executing one approved action.
type Outcome struct {
	ID        string   `json:"id"`
	Status    Status   `json:"status"`
	Name      string   `json:"name,omitempty"`
	Message   string   `json:"message,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// TargetPatch is a partial update applied to an inventory target. Only
// non-zero fields are sent.
type TargetPatch struct {
	Name       string
	Attributes map[string]string
}

// SourceClient lists active records from the source registry.
type SourceClient interface {
	ListActiveRecords(ctx context.Context) ([]records.SourceRecord, error)
}

// InventoryClient is the thin pass-through client for the target registry.
type InventoryClient interface {
	ListTargets(ctx context.Context, group string) ([]records.TargetRecord, error)
	GetTarget(ctx context.Context, id string) (*records.TargetRecord, error)
	GetTargetByAttribute(ctx context.Context, key, value string) (*records.TargetRecord, error)
	GetGroup(ctx context.Context, name string) (string, error)
	CreateTarget(ctx context.Context, name, slug string, attrs map[string]string, groupID string) (*records.TargetRecord, error)
	UpdateTarget(ctx context.Context, id string, patch TargetPatch) error
}

// PathChecker is the read-only tree-path existence check used by the planner.
type PathChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// PathEnsurer idempotently resolves or creates a tree path, returning the
// leaf node id.
type PathEnsurer interface {
	Ensure(ctx context.Context, path string) (string, error)
}
