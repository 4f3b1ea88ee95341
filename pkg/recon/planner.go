package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/identity"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"
)

// PlannerOptions configures a Planner.
type PlannerOptions struct {
	// ScopeGroup restricts the target listing to one tenant group.
	ScopeGroup string

	// PathRoot is the fixed tree prefix under which tenant nodes live,
	// e.g. "/DEFAULT/PRODUCTION".
	PathRoot string
}

// Planner compares the source registry against the inventory registry and the
// access tree, and emits a report of synced entries and pending actions.
type Planner struct {
	source    SourceClient
	inventory InventoryClient
	tree      PathChecker
	matcher   *identity.Matcher
	store     *Store
	opts      PlannerOptions
}

// NewPlanner wires a Planner from its collaborators.
func NewPlanner(source SourceClient, inventory InventoryClient, tree PathChecker,
	matcher *identity.Matcher, store *Store, opts PlannerOptions) *Planner {
	if opts.PathRoot == "" {
		opts.PathRoot = constants.DefaultPathRoot
	}
	return &Planner{
		source:    source,
		inventory: inventory,
		tree:      tree,
		matcher:   matcher,
		store:     store,
		opts:      opts,
	}
}

// Plan fetches fresh snapshots from both registries, runs the identity
// cascade per source record, and returns the resulting report.
//
// When storePending is true the run begins a new store generation and every
// pending entry is registered for later execution; previous ids become
// expired. When false the run is a read-only preview and the pending set is
// left untouched.
//
// Total failure to reach either registry yields an empty report, logged at
// error severity, never an error to the caller; a per-record failure skips
// that record only.
func (p *Planner) Plan(ctx context.Context, storePending bool) *Report {
	log := logging.FromContext(ctx)

	var (
		sources []records.SourceRecord
		targets []records.TargetRecord
	)

	// The two snapshots are independent; fetch them concurrently and join
	// before comparing.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sources, err = p.source.ListActiveRecords(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = p.inventory.ListTargets(gctx, p.opts.ScopeGroup)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("report generation failed; returning empty report")
		return &Report{GeneratedAt: time.Now(), Generation: p.store.Generation()}
	}

	gen := p.store.Generation()
	if storePending {
		gen = p.store.BeginGeneration()
	}

	idx := p.matcher.BuildIndex(targets)
	report := &Report{GeneratedAt: time.Now(), Generation: gen}
	var sum Summary

	for _, src := range sources {
		entry, ok := p.planRecord(ctx, src, idx)
		if !ok {
			sum.Skipped++
			continue
		}
		report.Entries = append(report.Entries, entry)

		switch entry.Status {
		case StatusSynced:
			sum.Synced++
		case StatusPendingCreate:
			sum.PendingCreate++
		case StatusPendingUpdate:
			sum.PendingUpdate++
		}
		if entry.Status != StatusSynced && storePending {
			p.store.Put(entry)
		}
	}

	sum.LastRun = report.GeneratedAt
	sum.Generation = gen
	p.store.SetSummary(sum)

	log.Info().
		Int("synced", sum.Synced).
		Int("pending_create", sum.PendingCreate).
		Int("pending_update", sum.PendingUpdate).
		Int("skipped", sum.Skipped).
		Bool("stored", storePending).
		Msg("sync report generated")

	return report
}

// planRecord applies the decision table to one source record. ok=false means
// the record was skipped as unusable.
func (p *Planner) planRecord(ctx context.Context, src records.SourceRecord, idx *identity.Index) (PendingAction, bool) {
	log := logging.FromContext(ctx)

	name := src.Name()
	if name == "" {
		log.Warn().Str("source_id", src.ExternalID).Msg("source record has no usable name; skipping")
		return PendingAction{}, false
	}

	res := p.matcher.Match(src, idx)

	switch {
	case res.Kind == identity.Unmatched:
		return p.newAction(PendingAction{
			Kind:         KindCreate,
			Status:       StatusPendingCreate,
			ProposedName: name,
			TaxID:        src.TaxID,
			SourceID:     src.ExternalID,
			Systems:      []string{SystemInventory, SystemTree, SystemBackup},
			Rationale:    fmt.Sprintf("no match found; create new tenant %q and its tree path", name),
		}), true

	case res.Fallback():
		return p.planFallback(ctx, src, name, res), true

	default:
		return p.planMatched(ctx, src, name, res)
	}
}

// planFallback handles a name-only match: the tenant exists but carries no
// external-id linkage. The tenant's stored name is preferred to avoid churn.
func (p *Planner) planFallback(ctx context.Context, src records.SourceRecord, name string, res identity.Result) PendingAction {
	target := res.Target

	rationale := fmt.Sprintf("found %q in inventory via name; tenant is not linked to source id %s, update to link",
		target.Name, src.ExternalID)
	if target.Name != name {
		rationale += fmt.Sprintf("; name diverges: %q in inventory vs %q in source", target.Name, name)
	}
	if res.Ambiguous {
		rationale += "; multiple tenants share this normalized name, review before approving"
	}

	systems := []string{SystemInventory}
	if !p.pathExists(ctx, target.Name) && (target.Name == name || !p.pathExists(ctx, name)) {
		systems = append(systems, SystemTree)
	}

	return p.newAction(PendingAction{
		Kind:         KindUpdate,
		Status:       StatusPendingUpdate,
		TargetID:     target.ID,
		ProposedName: target.Name,
		TaxID:        src.TaxID,
		SourceID:     src.ExternalID,
		Systems:      systems,
		Rationale:    rationale,
	})
}

// planMatched handles an id/tax-id match. ok=true always; the entry may be a
// synced record rather than an action.
func (p *Planner) planMatched(ctx context.Context, src records.SourceRecord, name string, res identity.Result) (PendingAction, bool) {
	target := res.Target

	nameMismatch := target.Name != name
	caseOnly := nameMismatch && p.matcher.Normalizer().Equivalent(target.Name, name)

	pathExists := p.pathExists(ctx, target.Name)
	if !pathExists && target.Name != name {
		pathExists = p.pathExists(ctx, name)
	}

	if !nameMismatch && pathExists {
		return PendingAction{
			ID:           "synced-" + src.ExternalID,
			Status:       StatusSynced,
			TargetID:     target.ID,
			ProposedName: name,
			TaxID:        src.TaxID,
			SourceID:     src.ExternalID,
			Systems:      []string{SystemInventory, SystemTree, SystemBackup},
			Rationale:    "synced and validated (identical name, tree path present)",
			CreatedAt:    time.Now(),
		}, true
	}

	var rationale string
	switch {
	case caseOnly:
		rationale = fmt.Sprintf("case-only divergence: %q in inventory vs %q in source; update to standardize", target.Name, name)
	case nameMismatch:
		rationale = fmt.Sprintf("name divergence: currently %q in inventory, source reports %q", target.Name, name)
	default:
		rationale = fmt.Sprintf("tree path missing for %q; ensure node path", name)
	}

	var systems []string
	if nameMismatch {
		systems = append(systems, SystemInventory)
	}
	if !pathExists {
		systems = append(systems, SystemTree)
	}

	return p.newAction(PendingAction{
		Kind:         KindUpdate,
		Status:       StatusPendingUpdate,
		TargetID:     target.ID,
		ProposedName: name,
		TaxID:        src.TaxID,
		SourceID:     src.ExternalID,
		Systems:      systems,
		Rationale:    rationale,
	}), true
}

// pathExists consults the tree for the canonical path of the given tenant
// name. Errors degrade to "missing" so a tree outage surfaces as pending tree
// work, never as an aborted report.
func (p *Planner) pathExists(ctx context.Context, name string) bool {
	path := p.opts.PathRoot + constants.PathSeparator + name
	ok, err := p.tree.Exists(ctx, path)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("path", path).Msg("tree existence check failed")
		return false
	}
	return ok
}

// newAction stamps identity fields shared by every generated action.
func (p *Planner) newAction(a PendingAction) PendingAction {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	return a
}
