package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
	"github.com/Ray-dawg/Myralight-sub002/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// SecurityPipeline defines the diagnostic and administrative operations the
// handler depends on
type SecurityPipeline interface {
	GetSecurityActivity(ctx context.Context, subject string, opts repositories.QueryOptions) ([]*models.AuditLogEntry, error)
	AdminUnlockAccount(ctx context.Context, userID string) error
}

// RiskAnalyzer computes a point-in-time risk assessment for an identity
type RiskAnalyzer interface {
	Analyze(ctx context.Context, identity string, window time.Duration) (*models.RiskAssessment, error)
}

// SecurityHandler handles audit trail, risk and lockout administration
type SecurityHandler struct {
	pipeline SecurityPipeline
	risk     RiskAnalyzer
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(pipeline SecurityPipeline, risk RiskAnalyzer) *SecurityHandler {
	return &SecurityHandler{
		pipeline: pipeline,
		risk:     risk,
	}
}

// Activity returns the audit trail for a subject, newest first.
// Query params: limit, since (RFC3339), severity (repeatable).
func (h *SecurityHandler) Activity(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		httpx.WriteBadRequest(w, "subject is required")
		return
	}

	opts := repositories.QueryOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httpx.WriteBadRequest(w, "limit must be an integer")
			return
		}
		opts.Limit = limit
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		opts.Since = &since
	}
	for _, v := range r.URL.Query()["severity"] {
		opts.Severities = append(opts.Severities, models.Severity(v))
	}

	entries, err := h.pipeline.GetSecurityActivity(r.Context(), subject, opts)
	if err != nil {
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"subject": subject,
		"entries": entries,
	})
}

// RiskAssessment computes and returns the current risk assessment for an
// identity. Assessments are derived on demand and never stored.
func (h *SecurityHandler) RiskAssessment(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		httpx.WriteBadRequest(w, "identity is required")
		return
	}

	window := time.Duration(0)
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			httpx.WriteBadRequest(w, "window must be a duration, e.g. 24h")
			return
		}
		window = parsed
	}

	assessment, err := h.risk.Analyze(r.Context(), identity, window)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			httpx.WriteBadRequest(w, "Invalid identity")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, assessment)
}

// Unlock clears an account lock on administrative action
func (h *SecurityHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		httpx.WriteBadRequest(w, "user id is required")
		return
	}

	if err := h.pipeline.AdminUnlockAccount(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			httpx.WriteNotFound(w, "No lock state for this account")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
