package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/handlers"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/pkg/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPipeline returns canned results and records the inputs it saw
type stubPipeline struct {
	loginResult    *models.LoginResult
	registerResult *models.RegisterResult
	resetResult    *models.ResetResult

	lastIdentity string
	lastMeta     models.AttemptMetadata
}

func (s *stubPipeline) AttemptLogin(ctx context.Context, identity, secret string, meta models.AttemptMetadata) *models.LoginResult {
	s.lastIdentity = identity
	s.lastMeta = meta
	return s.loginResult
}

func (s *stubPipeline) AttemptRegister(ctx context.Context, identity, secret string, role models.Role, meta models.AttemptMetadata) *models.RegisterResult {
	s.lastIdentity = identity
	return s.registerResult
}

func (s *stubPipeline) RequestPasswordReset(ctx context.Context, identity string, meta models.AttemptMetadata) *models.ResetResult {
	s.lastIdentity = identity
	return s.resetResult
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAuthHandlerLogin_Success(t *testing.T) {
	pipeline := &stubPipeline{loginResult: &models.LoginResult{Status: models.LoginSuccess, UserID: "user-1"}}
	handler := handlers.NewAuthHandler(pipeline, &httpx.IPConfig{})

	rec := postJSON(t, handler.Login, map[string]string{
		"email":    "Driver@Example.com",
		"password": "Passw0rd!",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	// Email normalized before the pipeline sees it
	assert.Equal(t, "driver@example.com", pipeline.lastIdentity)
	assert.Equal(t, "test-agent", pipeline.lastMeta.UserAgent)
}

func TestAuthHandlerLogin_GenericWordingForLockedAndInvalid(t *testing.T) {
	for _, status := range []models.LoginStatus{models.LoginInvalidCredentials, models.LoginAccountLocked} {
		pipeline := &stubPipeline{loginResult: &models.LoginResult{
			Status:  status,
			Message: models.GenericAuthMessage,
		}}
		handler := handlers.NewAuthHandler(pipeline, &httpx.IPConfig{})

		rec := postJSON(t, handler.Login, map[string]string{
			"email":    "driver@example.com",
			"password": "whatever1A",
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s", status)
		assert.Contains(t, rec.Body.String(), models.GenericAuthMessage, "%s", status)
	}
}

func TestAuthHandlerLogin_RateLimitedSetsRetryAfter(t *testing.T) {
	pipeline := &stubPipeline{loginResult: &models.LoginResult{
		Status:     models.LoginRateLimited,
		RetryAfter: 10 * time.Minute,
		Message:    models.GenericAuthMessage,
	}}
	handler := handlers.NewAuthHandler(pipeline, &httpx.IPConfig{})

	rec := postJSON(t, handler.Login, map[string]string{
		"email":    "driver@example.com",
		"password": "whatever1A",
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAuthHandlerLogin_RejectsMalformedBody(t *testing.T) {
	handler := handlers.NewAuthHandler(&stubPipeline{}, &httpx.IPConfig{})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLogin_RejectsMissingFields(t *testing.T) {
	handler := handlers.NewAuthHandler(&stubPipeline{}, &httpx.IPConfig{})

	rec := postJSON(t, handler.Login, map[string]string{"email": "driver@example.com"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerRegister_SameResponseForNewAndExisting(t *testing.T) {
	for _, status := range []models.RegisterStatus{models.RegisterSuccessful, models.RegisterAlreadyExists} {
		pipeline := &stubPipeline{registerResult: &models.RegisterResult{Status: status}}
		handler := handlers.NewAuthHandler(pipeline, &httpx.IPConfig{})

		rec := postJSON(t, handler.Register, map[string]string{
			"email":    "carrier@example.com",
			"password": "Passw0rd!",
			"role":     "carrier",
		})

		assert.Equal(t, http.StatusAccepted, rec.Code, "%s", status)
		assert.Contains(t, rec.Body.String(), "Registration received", "%s", status)
	}
}

func TestAuthHandlerRegister_RejectsUnknownRole(t *testing.T) {
	handler := handlers.NewAuthHandler(&stubPipeline{}, &httpx.IPConfig{})

	rec := postJSON(t, handler.Register, map[string]string{
		"email":    "carrier@example.com",
		"password": "Passw0rd!",
		"role":     "superuser",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerPasswordReset_AlwaysAccepted(t *testing.T) {
	pipeline := &stubPipeline{resetResult: &models.ResetResult{Status: models.ResetSent}}
	handler := handlers.NewAuthHandler(pipeline, &httpx.IPConfig{})

	rec := postJSON(t, handler.RequestPasswordReset, map[string]string{
		"email": "driver@example.com",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "If an account exists")
}
