package recon

import (
	"context"
	"fmt"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"
)

// Executor applies approved pending actions against the inventory registry
// and the access tree.
type Executor struct {
	inventory InventoryClient
	tree      PathEnsurer
	store     *Store
	opts      PlannerOptions
}

// NewExecutor wires an Executor from its collaborators. The options carry the
// same scope group and path root the planner used.
func NewExecutor(inventory InventoryClient, tree PathEnsurer, store *Store, opts PlannerOptions) *Executor {
	if opts.PathRoot == "" {
		opts.PathRoot = constants.DefaultPathRoot
	}
	return &Executor{inventory: inventory, tree: tree, store: store, opts: opts}
}

// Execute applies the actions with the given ids and returns one outcome per
// id, in order. A failure on one action never aborts the batch. Each id is
// consumed at most once: taking it from the store is the first step, and
// success, warning, and error outcomes all terminate it.
func (e *Executor) Execute(ctx context.Context, ids []string) []Outcome {
	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		action, ok := e.store.Take(id)
		if !ok {
			outcomes = append(outcomes, Outcome{
				ID:      id,
				Status:  StatusError,
				Message: errors.ErrActionExpired.Error(),
			})
			continue
		}

		actx := logging.WithAction(ctx, id)
		outcomes = append(outcomes, e.executeAction(actx, action))
	}
	return outcomes
}

// executeAction dispatches one consumed action and converts any failure into
// a structured error outcome.
func (e *Executor) executeAction(ctx context.Context, a PendingAction) Outcome {
	log := logging.FromContext(ctx)

	var (
		out Outcome
		err error
	)
	switch a.Kind {
	case KindCreate:
		out, err = e.executeCreate(ctx, a)
	case KindUpdate:
		out, err = e.executeUpdate(ctx, a)
	default:
		err = errors.NewValidationError("kind", string(a.Kind), "unknown action kind")
	}
	if err != nil {
		log.Error().Err(err).Str("name", a.ProposedName).Msg("action failed")
		return Outcome{ID: a.ID, Status: StatusError, Name: a.ProposedName, Message: err.Error()}
	}
	return out
}

// executeCreate creates the tenant in the inventory registry and ensures its
// tree path.
func (e *Executor) executeCreate(ctx context.Context, a PendingAction) (Outcome, error) {
	log := logging.FromContext(ctx)

	groupID, err := e.inventory.GetGroup(ctx, e.opts.ScopeGroup)
	if err != nil {
		// A missing group is tolerated: the tenant is created unscoped,
		// matching the original operator workflow.
		log.Warn().Err(err).Str("group", e.opts.ScopeGroup).Msg("group lookup failed; creating unscoped tenant")
		groupID = ""
	}

	attrs := map[string]string{records.ExternalIDKeys[0]: a.SourceID}
	if a.TaxID != "" {
		attrs[records.TaxIDKeys[0]] = a.TaxID
	}

	if _, err := e.inventory.CreateTarget(ctx, a.ProposedName, Slugify(a.ProposedName), attrs, groupID); err != nil {
		return Outcome{}, errors.NewSyncError(a.ID, []string{SystemInventory}, err)
	}

	if _, err := e.tree.Ensure(ctx, e.tenantPath(a.ProposedName)); err != nil {
		return Outcome{}, errors.NewSyncError(a.ID, []string{SystemTree}, err)
	}

	log.Info().Str("name", a.ProposedName).Msg("tenant created")
	return Outcome{ID: a.ID, Status: StatusSuccess, Name: a.ProposedName}, nil
}

// executeUpdate resolves the target through the fallback chain, applies
// non-conflicting changes, and ensures the tree path. A vanished target falls
// back to the create flow.
func (e *Executor) executeUpdate(ctx context.Context, a PendingAction) (Outcome, error) {
	log := logging.FromContext(ctx)

	target := e.resolveTarget(ctx, a)
	if target == nil {
		// Self-healing: the tenant this update referenced no longer
		// exists, so the update becomes a create.
		log.Warn().Str("target_id", a.TargetID).Msg("update target vanished; falling back to create flow")
		out, err := e.executeCreate(ctx, a)
		if err != nil {
			return Outcome{}, err
		}
		out.Message = "update target missing; tenant recreated"
		return out, nil
	}

	patch := TargetPatch{Name: a.ProposedName, Attributes: map[string]string{}}
	var conflicts []string

	// Only fields that are empty or already agree are overwritten; an
	// existing divergent value is a conflict for human follow-up.
	if cur := target.ExternalID(); cur != "" && cur != a.SourceID {
		conflicts = append(conflicts, fmt.Sprintf("%s (%s vs %s)", records.ExternalIDKeys[0], cur, a.SourceID))
	} else if a.SourceID != "" {
		patch.Attributes[records.ExternalIDKeys[0]] = a.SourceID
	}
	if cur := target.TaxID(); cur != "" && a.TaxID != "" && cur != a.TaxID {
		conflicts = append(conflicts, fmt.Sprintf("%s (%s vs %s)", records.TaxIDKeys[0], cur, a.TaxID))
	} else if a.TaxID != "" {
		patch.Attributes[records.TaxIDKeys[0]] = a.TaxID
	}

	if err := e.inventory.UpdateTarget(ctx, target.ID, patch); err != nil {
		return Outcome{}, errors.NewSyncError(a.ID, []string{SystemInventory}, err)
	}

	if _, err := e.tree.Ensure(ctx, e.tenantPath(a.ProposedName)); err != nil {
		return Outcome{}, errors.NewSyncError(a.ID, []string{SystemTree}, err)
	}

	if len(conflicts) > 0 {
		log.Warn().Strs("conflicts", conflicts).Str("name", a.ProposedName).Msg("tenant updated with conflicts")
		return Outcome{
			ID:        a.ID,
			Status:    StatusWarning,
			Name:      a.ProposedName,
			Message:   "partial sync; conflicting fields left untouched: " + strings.Join(conflicts, ", "),
			Conflicts: conflicts,
		}, nil
	}

	log.Info().Str("name", a.ProposedName).Msg("tenant updated")
	return Outcome{ID: a.ID, Status: StatusSuccess, Name: a.ProposedName}, nil
}

// resolveTarget finds the tenant an update action refers to: by stored id,
// else by external-id attribute (trying known field-name variants), else by
// exact name within the scope group. Returns nil when every method fails.
func (e *Executor) resolveTarget(ctx context.Context, a PendingAction) *records.TargetRecord {
	if a.TargetID != "" {
		if t, err := e.inventory.GetTarget(ctx, a.TargetID); err == nil && t != nil {
			return t
		}
	}

	if a.SourceID != "" {
		for _, key := range records.ExternalIDKeys {
			if t, err := e.inventory.GetTargetByAttribute(ctx, key, a.SourceID); err == nil && t != nil {
				return t
			}
		}
	}

	targets, err := e.inventory.ListTargets(ctx, e.opts.ScopeGroup)
	if err != nil {
		return nil
	}
	for i := range targets {
		if targets[i].Name == a.ProposedName {
			return &targets[i]
		}
	}
	return nil
}

func (e *Executor) tenantPath(name string) string {
	return e.opts.PathRoot + constants.PathSeparator + name
}

// Slugify derives a URL-safe slug from a tenant name, matching the inventory
// system's slug rules: lowercase, runs of non-alphanumerics become single
// dashes, trimmed and capped.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > constants.MaxSlugLength {
		slug = strings.TrimRight(slug[:constants.MaxSlugLength], "-")
	}
	return slug
}
