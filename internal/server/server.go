// Package server provides the HTTP front door for the reconciliation
// engine: report generation, approval, audit, and webhook-triggered scans.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/recon"

	"github.com/opshub/tenantsync/internal/clients/accesstree"
	"github.com/opshub/tenantsync/internal/server/middleware"
	"github.com/opshub/tenantsync/internal/server/response"
	"github.com/opshub/tenantsync/internal/snapshot"
)

// Planner produces reconciliation reports.
type Planner interface {
	Plan(ctx context.Context, storePending bool) *recon.Report
}

// Executor applies approved pending actions.
type Executor interface {
	Execute(ctx context.Context, ids []string) []recon.Outcome
}

// Auditor cross-checks devices against access-tree assets.
type Auditor interface {
	Audit(ctx context.Context) (*recon.AuditReport, error)
}

// NodeLister exposes the raw access-tree node set for the debug endpoint.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]accesstree.Node, error)
}

// Config holds the server's runtime options.
type Config struct {
	Addr string

	// WebhookStoresPending controls whether a source-change webhook stores
	// approvable actions or only refreshes the preview.
	WebhookStoresPending bool
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	planner   Planner
	executor  Executor
	auditor   Auditor
	store     *recon.Store
	snapshots *snapshot.Store
	nodes     NodeLister
	logger    *zerolog.Logger
	config    Config
	startTime time.Time
}

// New creates a server instance. auditor and nodes may be nil when the
// access-tree system is not configured; their endpoints then report the
// system as unavailable.
func New(planner Planner, executor Executor, auditor Auditor, store *recon.Store,
	snapshots *snapshot.Store, nodes NodeLister, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		planner:   planner,
		executor:  executor,
		auditor:   auditor,
		store:     store,
		snapshots: snapshots,
		nodes:     nodes,
		logger:    logging.Default(),
		config:    cfg,
		startTime: time.Now(),
	}
}

// Handler returns the configured http.Handler with the middleware chain
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/sync/report", s.handleReport)
	mux.HandleFunc("/sync/status", s.handleStatus)
	mux.HandleFunc("/sync/approve", s.handleApprove)
	mux.HandleFunc("/webhooks/source", s.handleWebhook)
	mux.HandleFunc("/audit/tree-missing", s.handleAudit)
	mux.HandleFunc("/debug/tree/nodes", s.handleTreeNodes)

	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(mux)
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("sync API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, r.Method)
		return
	}
	response.OK(w, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"pending": s.store.Len(),
	})
}

// handleReport runs a full reconciliation scan, stores the resulting
// pending actions for later approval, and returns the report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		response.MethodNotAllowed(w, r.Method)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ReportTimeout)
	defer cancel()

	report := s.planner.Plan(ctx, true)
	if s.snapshots != nil {
		s.snapshots.Put("last-report", report)
	}
	response.OK(w, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, r.Method)
		return
	}

	// First status call after startup has nothing to report yet; run a
	// preview scan so the response is never an empty shell.
	if s.store.LastSummary().LastRun.IsZero() {
		ctx, cancel := context.WithTimeout(r.Context(), constants.ReportTimeout)
		defer cancel()
		s.planner.Plan(ctx, false)
	}

	response.OK(w, map[string]any{
		"generation": s.store.Generation(),
		"pending":    s.store.Len(),
		"summary":    s.store.LastSummary(),
	})
}

// approveRequest is the approval body: the ids of pending actions to apply.
type approveRequest struct {
	ActionIDs []string `json:"action_ids"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.MethodNotAllowed(w, r.Method)
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}
	if len(req.ActionIDs) == 0 {
		response.BadRequest(w, "action_ids is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ReportTimeout)
	defer cancel()

	outcomes := s.executor.Execute(ctx, req.ActionIDs)
	response.OK(w, map[string]any{"results": outcomes})
}

// sourceEvent is the webhook payload: the changed company as the source
// registry pushes it.
type sourceEvent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	BusinessName  string `json:"businessName"`
	CorporateName string `json:"corporateName"`
	TaxID         string `json:"cpfCnpj"`
}

func (e sourceEvent) displayName() string {
	for _, c := range []string{e.Name, e.BusinessName, e.CorporateName} {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

// handleWebhook reacts to a source-registry change notification for one
// company. The record becomes a create action; operator policy decides
// whether it executes immediately or waits in the approval queue.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.MethodNotAllowed(w, r.Method)
		return
	}

	var event sourceEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}
	name := event.displayName()
	if event.ID == "" || name == "" {
		response.BadRequest(w, "event requires an id and a name", "")
		return
	}

	action := recon.PendingAction{
		ID:           uuid.NewString(),
		Kind:         recon.KindCreate,
		Status:       recon.StatusPendingCreate,
		ProposedName: name,
		SourceID:     event.ID,
		TaxID:        strings.TrimSpace(event.TaxID),
		Systems:      []string{recon.SystemInventory, recon.SystemTree},
		Rationale:    "source registry change event",
		CreatedAt:    time.Now(),
	}
	s.store.Put(action)

	if s.config.WebhookStoresPending {
		response.Accepted(w, map[string]any{"queued": action})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ReportTimeout)
	defer cancel()

	outcomes := s.executor.Execute(ctx, []string{action.ID})
	response.Accepted(w, map[string]any{"results": outcomes})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, r.Method)
		return
	}
	if s.auditor == nil {
		response.ServiceUnavailable(w, "access-tree system is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ReportTimeout)
	defer cancel()

	report, err := s.auditor.Audit(ctx)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, report)
}

// handleTreeNodes serves the cached node listing; a failed refresh falls
// back to the last good snapshot.
func (s *Server) handleTreeNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, r.Method)
		return
	}
	if s.nodes == nil {
		response.ServiceUnavailable(w, "access-tree system is not configured")
		return
	}

	load := func(ctx context.Context) (any, error) {
		return s.nodes.ListNodes(ctx)
	}
	value, err := s.snapshots.Get(r.Context(), "tree-nodes", load, true)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, value)
}
