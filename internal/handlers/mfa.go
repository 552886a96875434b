package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// MFAPipeline defines the MFA lifecycle operations the handler depends on
type MFAPipeline interface {
	EnrollMFA(ctx context.Context, userID string, typ models.FactorType, destination string) (*models.MFASetupInfo, error)
	VerifyMFAChallenge(ctx context.Context, token, challengeID, code string) (*models.MFAVerifyResult, error)
	DisableMFA(ctx context.Context, factorID string) error
}

// MFAHandler handles multi-factor authentication HTTP requests
type MFAHandler struct {
	pipeline MFAPipeline
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(pipeline MFAPipeline) *MFAHandler {
	return &MFAHandler{pipeline: pipeline}
}

// EnrollRequest represents the request body for MFA enrollment
type EnrollRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=totp sms"`
	Destination string `json:"destination" validate:"required"`
}

// VerifyChallengeRequest represents the request body for challenge verification
type VerifyChallengeRequest struct {
	MFAToken    string `json:"mfa_token" validate:"required"`
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,min=6,max=8"`
}

// Enroll handles MFA factor enrollment. The setup material in the response
// (secret, provisioning URL, QR code) is shown exactly once.
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	setup, err := h.pipeline.EnrollMFA(r.Context(), req.UserID, models.FactorType(req.Type), req.Destination)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			httpx.WriteBadRequest(w, "Invalid enrollment request")
		case errors.Is(err, models.ErrConflict):
			httpx.WriteConflict(w, "An active factor of this type already exists")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, setup)
}

// VerifyChallenge completes a login or enrollment by verifying a challenge
// code
func (h *MFAHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req VerifyChallengeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.pipeline.VerifyMFAChallenge(r.Context(), req.MFAToken, req.ChallengeID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrMFAFactorNotFound):
			httpx.WriteUnauthorized(w, "Authentication failed")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	switch result.Status {
	case models.MFAVerified:
		httpx.WriteJSON(w, http.StatusOK, result)
	case models.MFAInvalidCode:
		httpx.WriteUnauthorized(w, "Invalid verification code")
	default:
		httpx.WriteUnauthorized(w, "Challenge is no longer valid")
	}
}

// Disable removes an MFA factor from service
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factorID")
	if factorID == "" {
		httpx.WriteBadRequest(w, "factor id is required")
		return
	}

	if err := h.pipeline.DisableMFA(r.Context(), factorID); err != nil {
		switch {
		case errors.Is(err, models.ErrMFAFactorNotFound):
			httpx.WriteNotFound(w, "Factor not found")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
