package cmd

import (
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/identity"
	"github.com/opshub/tenantsync/pkg/recon"

	"github.com/opshub/tenantsync/internal/clients/accesstree"
	"github.com/opshub/tenantsync/internal/clients/crm"
	"github.com/opshub/tenantsync/internal/clients/inventory"
	"github.com/opshub/tenantsync/internal/config"
)

// engine bundles the wired reconciliation collaborators for one process.
type engine struct {
	cfg      *config.Settings
	store    *recon.Store
	planner  *recon.Planner
	executor *recon.Executor
	auditor  *recon.Auditor
	tree     *accesstree.Client
}

// buildEngine loads configuration and wires clients, planner, and executor.
// The CRM and inventory endpoints are mandatory; the access tree degrades
// to "path missing" planning when unreachable, but its endpoint must still
// be configured.
func buildEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildEngineWith(cfg)
}

func buildEngineWith(cfg *config.Settings) (*engine, error) {
	if cfg.CRM.BaseURL == "" {
		return nil, errors.NewConfigError("crm", "CRM_BASE_URL is not set", nil)
	}
	if cfg.Inventory.BaseURL == "" {
		return nil, errors.NewConfigError("inventory", "INVENTORY_BASE_URL is not set", nil)
	}
	if cfg.Tree.BaseURL == "" {
		return nil, errors.NewConfigError("tree", "TREE_BASE_URL is not set", nil)
	}

	crmClient, err := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token)
	if err != nil {
		return nil, err
	}

	invClient, err := inventory.NewClient(cfg.Inventory.BaseURL, cfg.Inventory.Token)
	if err != nil {
		return nil, err
	}

	broker, err := accesstree.NewBroker(accesstree.BrokerConfig{
		BaseURL:     cfg.Tree.BaseURL,
		Username:    cfg.Tree.Username,
		Password:    cfg.Tree.Password,
		StaticToken: cfg.Tree.StaticToken,
	})
	if err != nil {
		return nil, err
	}
	treeClient, err := accesstree.NewClient(cfg.Tree.BaseURL, broker)
	if err != nil {
		return nil, err
	}
	resolver := accesstree.NewResolver(treeClient, accesstree.MatchPolicy(cfg.Tree.MatchPolicy), cfg.Tree.OrgID)

	opts := recon.PlannerOptions{
		ScopeGroup: cfg.Inventory.ScopeGroup,
		PathRoot:   cfg.Tree.PathRoot,
	}

	store := recon.NewStore()
	matcher := identity.NewMatcher(identity.NewNormalizer())

	return &engine{
		cfg:      cfg,
		store:    store,
		planner:  recon.NewPlanner(crmClient, invClient, resolver, matcher, store, opts),
		executor: recon.NewExecutor(invClient, resolver, store, opts),
		auditor:  recon.NewAuditor(invClient, treeClient, opts),
		tree:     treeClient,
	}, nil
}
