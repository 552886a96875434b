package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/pkg/httpx"
)

// AuthPipeline defines the credential orchestration operations the handler
// depends on
type AuthPipeline interface {
	AttemptLogin(ctx context.Context, identity, secret string, meta models.AttemptMetadata) *models.LoginResult
	AttemptRegister(ctx context.Context, identity, secret string, role models.Role, meta models.AttemptMetadata) *models.RegisterResult
	RequestPasswordReset(ctx context.Context, identity string, meta models.AttemptMetadata) *models.ResetResult
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	pipeline AuthPipeline
	ipConfig *httpx.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(pipeline AuthPipeline, ipConfig *httpx.IPConfig) *AuthHandler {
	return &AuthHandler{
		pipeline: pipeline,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin driver carrier shipper"`
}

// PasswordResetRequest represents the request body for a reset request
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result := h.pipeline.AttemptLogin(r.Context(), req.Email, req.Password, h.requestMeta(r))

	switch result.Status {
	case models.LoginSuccess, models.LoginMFARequired:
		httpx.WriteJSON(w, http.StatusOK, result)
	case models.LoginRateLimited:
		httpx.WriteTooManyRequests(w, result.Message, result.RetryAfter)
	case models.LoginAccountLocked, models.LoginInvalidCredentials:
		// Same wording for wrong password and locked account so that the
		// response does not reveal account state.
		httpx.WriteUnauthorized(w, result.Message)
	default:
		httpx.WriteInternalError(w, "Internal server error")
	}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result := h.pipeline.AttemptRegister(r.Context(), req.Email, req.Password, models.Role(req.Role), h.requestMeta(r))

	switch result.Status {
	case models.RegisterSuccessful, models.RegisterAlreadyExists:
		// Identical response either way to prevent account enumeration.
		httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
			"message": "Registration received. If the email is not already registered, you will receive a confirmation email.",
		})
	case models.RegisterInvalidInput:
		httpx.WriteBadRequest(w, result.Reason)
	case models.RegisterRateLimited:
		httpx.WriteTooManyRequests(w, "Too many registration attempts. Please try again later.", result.RetryAfter)
	default:
		httpx.WriteInternalError(w, "Internal server error")
	}
}

// RequestPasswordReset handles password reset requests
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result := h.pipeline.RequestPasswordReset(r.Context(), req.Email, h.requestMeta(r))

	switch result.Status {
	case models.ResetRateLimited:
		httpx.WriteTooManyRequests(w, "Too many reset requests. Please try again later.", result.RetryAfter)
	default:
		httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
			"message": "If an account exists with this email, password reset instructions will be sent.",
		})
	}
}

func (h *AuthHandler) requestMeta(r *http.Request) models.AttemptMetadata {
	return models.AttemptMetadata{
		IPAddress: httpx.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}
