package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/notify"
	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
	"github.com/Ray-dawg/Myralight-sub002/internal/services"
	pkglogger "github.com/Ray-dawg/Myralight-sub002/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestAuditService(repo *MockAuditRepo) *services.AuditService {
	logger := testLogger()
	return services.NewAuditService(repo, logger, pkglogger.NewFallbackAuditLogger(logger))
}

// MockAttemptRepo implements the attempt ledger read/write interfaces with
// overridable behavior
type MockAttemptRepo struct {
	mu       sync.Mutex
	Recorded []*models.AuthAttempt

	RecordErr         error
	FailureCount      int
	FailureCountErr   error
	AttemptCount      int
	AttemptCountErr   error
	OldestFailure     *time.Time
	OldestFailureErr  error
	SuccessOrigins    []string
	SuccessOriginsErr error
}

func (m *MockAttemptRepo) Record(ctx context.Context, attempt *models.AuthAttempt) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

func (m *MockAttemptRepo) CountFailures(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error) {
	if m.FailureCountErr != nil {
		return 0, m.FailureCountErr
	}
	return m.FailureCount, nil
}

// CountAttempts counts recorded attempts for the identity and action on top
// of the fixed AttemptCount base, so tests can drive the limiter either with
// a canned count or by actually recording attempts.
func (m *MockAttemptRepo) CountAttempts(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error) {
	if m.AttemptCountErr != nil {
		return 0, m.AttemptCountErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.AttemptCount
	for _, a := range m.Recorded {
		if a.Identity == identity && a.Action == action && a.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockAttemptRepo) OldestAttemptTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *time.Time
	for _, a := range m.Recorded {
		if a.Identity == identity && a.Action == action && a.AttemptTime.After(since) {
			if oldest == nil || a.AttemptTime.Before(*oldest) {
				at := a.AttemptTime
				oldest = &at
			}
		}
	}
	if oldest == nil {
		return m.OldestFailure, nil
	}
	return oldest, nil
}

func (m *MockAttemptRepo) OldestFailureTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error) {
	if m.OldestFailureErr != nil {
		return nil, m.OldestFailureErr
	}
	return m.OldestFailure, nil
}

func (m *MockAttemptRepo) DistinctSuccessOrigins(ctx context.Context, identity string, since time.Time) ([]string, error) {
	if m.SuccessOriginsErr != nil {
		return nil, m.SuccessOriginsErr
	}
	return m.SuccessOrigins, nil
}

// MockAuditRepo records appended audit entries in memory
type MockAuditRepo struct {
	mu      sync.Mutex
	Entries []*models.AuditLogEntry

	AppendErr error
	Events    map[models.EventType]bool
	HasErr    error
}

func (m *MockAuditRepo) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockAuditRepo) Query(ctx context.Context, subject string, opts repositories.QueryOptions) ([]*models.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLogEntry
	for _, e := range m.Entries {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockAuditRepo) HasEvent(ctx context.Context, subject string, eventType models.EventType, since time.Time) (bool, error) {
	if m.HasErr != nil {
		return false, m.HasErr
	}
	return m.Events[eventType], nil
}

// Last returns the most recently appended entry, or nil
func (m *MockAuditRepo) Last() *models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// Find returns the first appended entry of the given type, or nil
func (m *MockAuditRepo) Find(eventType models.EventType) *models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}

// MockLockRepo keeps lock states in memory
type MockLockRepo struct {
	mu     sync.Mutex
	States map[string]*models.AccountLockState

	GetErr    error
	UpsertErr error
}

func NewMockLockRepo() *MockLockRepo {
	return &MockLockRepo{States: make(map[string]*models.AccountLockState)}
}

func (m *MockLockRepo) Get(ctx context.Context, userID string) (*models.AccountLockState, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.States[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (m *MockLockRepo) Upsert(ctx context.Context, state *models.AccountLockState) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *state
	m.States[state.UserID] = &copied
	return nil
}

// MockMFARepo keeps factors and challenges in memory
type MockMFARepo struct {
	mu         sync.Mutex
	Factors    map[string]*models.MFAFactor
	Challenges map[string]*models.MFAChallenge
}

func NewMockMFARepo() *MockMFARepo {
	return &MockMFARepo{
		Factors:    make(map[string]*models.MFAFactor),
		Challenges: make(map[string]*models.MFAChallenge),
	}
}

func (m *MockMFARepo) CreateFactor(ctx context.Context, factor *models.MFAFactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *factor
	m.Factors[factor.ID] = &copied
	return nil
}

func (m *MockMFARepo) GetFactor(ctx context.Context, factorID string) (*models.MFAFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	factor, ok := m.Factors[factorID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *factor
	return &copied, nil
}

func (m *MockMFARepo) GetActiveFactor(ctx context.Context, userID string, typ models.FactorType) (*models.MFAFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.Factors {
		if f.UserID == userID && f.Type == typ && f.Status == models.FactorActive {
			copied := *f
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockMFARepo) ListActiveFactors(ctx context.Context, userID string) ([]*models.MFAFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MFAFactor
	for _, f := range m.Factors {
		if f.UserID == userID && f.Status == models.FactorActive {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockMFARepo) UpdateFactorStatus(ctx context.Context, factorID string, status models.FactorStatus, activatedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	factor, ok := m.Factors[factorID]
	if !ok {
		return models.ErrNotFound
	}
	factor.Status = status
	if activatedAt != nil {
		factor.ActivatedAt = activatedAt
	}
	return nil
}

func (m *MockMFARepo) CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *challenge
	m.Challenges[challenge.ID] = &copied
	return nil
}

func (m *MockMFARepo) GetChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.Challenges[challengeID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (m *MockMFARepo) IncrementChallengeAttempts(ctx context.Context, challengeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.Challenges[challengeID]
	if !ok {
		return 0, models.ErrNotFound
	}
	challenge.AttemptCount++
	return challenge.AttemptCount, nil
}

func (m *MockMFARepo) ConsumeChallenge(ctx context.Context, challengeID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.Challenges[challengeID]
	if !ok || challenge.ConsumedAt != nil {
		return models.ErrMFAChallengeExpired
	}
	challenge.ConsumedAt = &at
	return nil
}

// MockNotifier captures enqueued notifications
type MockNotifier struct {
	mu       sync.Mutex
	Messages []notify.Message
}

func (m *MockNotifier) Enqueue(msg notify.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
}

// MockVerifier implements CredentialVerifier with fixed behavior
type MockVerifier struct {
	Check *services.CredentialCheck
	Err   error
	Calls int
}

func (m *MockVerifier) VerifyCredentials(ctx context.Context, identity, secret string) (*services.CredentialCheck, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Check, nil
}

// MockDirectory implements AccountDirectory with fixed behavior
type MockDirectory struct {
	UserID string
	Err    error
}

func (m *MockDirectory) CreateAccount(ctx context.Context, identity, secret string, role models.Role) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.UserID, nil
}
