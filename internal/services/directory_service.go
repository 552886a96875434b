package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository defines the identity store operations the directory needs
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

// DirectoryService is the database-backed identity store. It satisfies both
// CredentialVerifier and AccountDirectory for the orchestrator.
type DirectoryService struct {
	repo   AccountRepository
	logger *slog.Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(repo AccountRepository, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		repo:   repo,
		logger: logger,
	}
}

// VerifyCredentials checks a credential pair against the store. An unknown
// email still burns a bcrypt comparison so that response timing does not
// distinguish missing accounts from wrong passwords.
func (s *DirectoryService) VerifyCredentials(ctx context.Context, identity, secret string) (*CredentialCheck, error) {
	account, err := s.repo.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
			return &CredentialCheck{Valid: false}, nil
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(secret)); err != nil {
		return &CredentialCheck{Valid: false}, nil
	}

	return &CredentialCheck{Valid: true, UserID: account.ID}, nil
}

// CreateAccount creates a new account and returns its id. A duplicate email
// surfaces as ErrConflict from the unique constraint.
func (s *DirectoryService) CreateAccount(ctx context.Context, identity, secret string, role models.Role) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	now := time.Now()
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        identity,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return "", err
	}

	return account.ID, nil
}

// dummyHash is a bcrypt hash of an unguessable value, used to equalize the
// timing of lookups for unknown emails.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
