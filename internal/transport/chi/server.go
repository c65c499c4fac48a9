package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
	analysisuc "github.com/valtric/dealbrain/internal/usecase/analysis"
	healthuc "github.com/valtric/dealbrain/internal/usecase/health"
)

// Analyzer answers valuation questions and serves the audit trail.
type Analyzer interface {
	Analyze(ctx context.Context, dealID, question string) (analysisuc.Answer, error)
	Lineage(ctx context.Context, analysisID string) ([]domain.LineageEvent, error)
}

// SnapshotManager reads and promotes embedding snapshots.
type SnapshotManager interface {
	Current(ctx context.Context, orgID string) (domain.Snapshot, error)
	Promote(ctx context.Context, id string) error
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server is the HTTP API surface.
type Server struct {
	analysis      Analyzer
	snapshots     SnapshotManager
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(analysis Analyzer, snapshots SnapshotManager, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		analysis:  analysis,
		snapshots: snapshots,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout"),
		sentinelHandler(domain.ErrContractViolation, http.StatusBadGateway, "contract_violation"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "provider_error"),
		sentinelHandler(domain.ErrInferenceProviderError, http.StatusBadGateway, "provider_error"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusInternalServerError, "vector_dim_mismatch"),
	}
	return s
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/deals/{dealID}/analyze", s.analyzeDeal)
		r.Get("/snapshots/current", s.currentSnapshot)
		r.Post("/snapshots/{snapshotID}/promote", s.promoteSnapshot)
		r.Get("/analyses/{analysisID}/lineage", s.analysisLineage)
	})
	r.Get("/health", s.healthCheck)
	r.Get("/metrics", s.metrics)
}

type analyzeRequest struct {
	Question string `json:"question"`
}

// analyzeDeal handles POST /api/v1/deals/{dealID}/analyze.
func (s *Server) analyzeDeal(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	}

	ans, err := s.analysis.Analyze(r.Context(), chi.URLParam(r, "dealID"), req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// The body is exactly the answer contract; identity travels in headers.
	w.Header().Set("X-Analysis-ID", ans.AnalysisID)
	w.Header().Set("X-Tier", string(ans.Tier))

	result := ans.Result
	if result.CompsUsed == nil {
		result.CompsUsed = []domain.CompCitation{}
	}
	if result.RiskFlags == nil {
		result.RiskFlags = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

type snapshotResponse struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"created_at"`
}

// currentSnapshot handles GET /api/v1/snapshots/current.
func (s *Server) currentSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Current(r.Context(), r.URL.Query().Get("org_id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		ID:         snap.ID,
		OrgID:      snap.OrgID,
		Model:      snap.Model,
		Dimensions: snap.Dimensions,
		Current:    snap.Current,
		CreatedAt:  snap.CreatedAt,
	})
}

// promoteSnapshot handles POST /api/v1/snapshots/{snapshotID}/promote.
func (s *Server) promoteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshots.Promote(r.Context(), chi.URLParam(r, "snapshotID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lineageResponse struct {
	AnalysisID string                `json:"analysis_id"`
	Events     []domain.LineageEvent `json:"events"`
}

// analysisLineage handles GET /api/v1/analyses/{analysisID}/lineage.
func (s *Server) analysisLineage(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "analysisID")

	events, err := s.analysis.Lineage(r.Context(), analysisID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.LineageEvent{}
	}

	writeJSON(w, http.StatusOK, lineageResponse{AnalysisID: analysisID, Events: events})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// metrics handles GET /metrics.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals or evidence content.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrProviderTimeout,
		domain.ErrContractViolation,
		domain.ErrEmbeddingProviderError,
		domain.ErrInferenceProviderError,
		domain.ErrVectorDimMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// validationHandler maps request validation failures to 400 with the terse
// reason.
func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeError(w, http.StatusBadRequest, "validation_failed", ve.Reason)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
