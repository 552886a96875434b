package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockoutService(repo *MockLockRepo, audit *MockAuditRepo) *services.LockoutService {
	return services.NewLockoutService(repo, newTestAuditService(audit), services.DefaultLockoutConfig(), testLogger())
}

func TestLockoutService_LocksAtThreshold(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	var state *models.AccountLockState
	var err error
	for i := 0; i < 5; i++ {
		state, err = service.RegisterFailure(ctx, "user-1")
		require.NoError(t, err)
	}

	assert.True(t, state.Locked)
	require.NotNil(t, state.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *state.LockedUntil, 2*time.Second)

	entry := audit.Find(models.EventAccountLocked)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeveritySecurity, entry.Severity)
}

func TestLockoutService_BelowThresholdStaysUnlocked(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		state, err := service.RegisterFailure(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, state.Locked)
	}

	assert.Nil(t, audit.Find(models.EventAccountLocked))
}

func TestLockoutService_SuccessResetsCounter(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := service.RegisterFailure(ctx, "user-1")
		require.NoError(t, err)
	}
	require.NoError(t, service.RegisterSuccess(ctx, "user-1"))

	// Counter restarted: 4 more failures do not reach the threshold
	var state *models.AccountLockState
	var err error
	for i := 0; i < 4; i++ {
		state, err = service.RegisterFailure(ctx, "user-1")
		require.NoError(t, err)
	}
	assert.False(t, state.Locked)
	assert.Equal(t, 4, state.FailedAttemptCount)
}

func TestLockoutService_ExpiredLockClearsLazily(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	past := time.Now().Add(-1 * time.Minute)
	repo.States["user-1"] = &models.AccountLockState{
		UserID:             "user-1",
		Locked:             true,
		LockedUntil:        &past,
		FailedAttemptCount: 5,
		UpdatedAt:          past,
	}

	state, err := service.Check(ctx, "user-1")
	require.NoError(t, err)

	assert.False(t, state.Locked)
	assert.Nil(t, state.LockedUntil)
	assert.Zero(t, state.FailedAttemptCount)

	entry := audit.Find(models.EventAccountUnlocked)
	require.NotNil(t, entry)
	assert.Equal(t, "automatic", entry.Detail["mode"])
}

func TestLockoutService_ActiveLockHolds(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	future := time.Now().Add(10 * time.Minute)
	repo.States["user-1"] = &models.AccountLockState{
		UserID:             "user-1",
		Locked:             true,
		LockedUntil:        &future,
		FailedAttemptCount: 5,
		UpdatedAt:          time.Now(),
	}

	state, err := service.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Locked)

	// Further failures while locked do not extend or re-lock
	state, err = service.RegisterFailure(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, state.FailedAttemptCount)
}

func TestLockoutService_AdminUnlock(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	future := time.Now().Add(10 * time.Minute)
	repo.States["user-1"] = &models.AccountLockState{
		UserID:             "user-1",
		Locked:             true,
		LockedUntil:        &future,
		FailedAttemptCount: 5,
		UpdatedAt:          time.Now(),
	}

	require.NoError(t, service.AdminUnlock(ctx, "user-1"))

	state, err := service.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, state.Locked)
	assert.Zero(t, state.FailedAttemptCount)

	entry := audit.Find(models.EventAccountUnlocked)
	require.NotNil(t, entry)
	assert.Equal(t, "manual", entry.Detail["mode"])
}

func TestLockoutService_AdminUnlockUnknownUser(t *testing.T) {
	repo := NewMockLockRepo()
	service := newLockoutService(repo, &MockAuditRepo{})

	err := service.AdminUnlock(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLockoutService_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	repo := NewMockLockRepo()
	audit := &MockAuditRepo{}
	service := newLockoutService(repo, audit)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.RegisterFailure(ctx, "user-1")
		}()
	}
	wg.Wait()

	state, err := service.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Locked)

	locked := 0
	for _, e := range audit.Entries {
		if e.EventType == models.EventAccountLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}
