package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/database"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// AuditLogRepository handles audit log data access. Append-only: there is no
// update or delete path here.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

// QueryOptions narrows an audit trail query.
type QueryOptions struct {
	Limit      int
	Since      *time.Time
	Severities []models.Severity
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditRow(row rowScanner) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry

	err := row.Scan(
		&entry.ID, &entry.EventType, &entry.Subject,
		&entry.Severity, &entry.Detail, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

func scanAuditRows(rows pgx.Rows) ([]*models.AuditLogEntry, error) {
	defer rows.Close()

	entries := make([]*models.AuditLogEntry, 0)

	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

// Append persists one audit entry
func (r *AuditLogRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (id, event_type, subject, severity, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, string(entry.EventType), entry.Subject,
		string(entry.Severity), entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// Query retrieves audit entries for a subject, newest first
func (r *AuditLogRepository) Query(ctx context.Context, subject string, opts QueryOptions) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, event_type, subject, severity, detail, created_at
		FROM audit_log
		WHERE subject = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::text[] IS NULL OR severity = ANY($3))
		ORDER BY created_at DESC
		LIMIT $4
	`

	var severities interface{}
	if len(opts.Severities) > 0 {
		names := make([]string, len(opts.Severities))
		for i, s := range opts.Severities {
			names[i] = string(s)
		}
		severities = pq.Array(names)
	}

	rows, err := r.pool.Query(ctx, query, subject, opts.Since, severities, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	return scanAuditRows(rows)
}

// HasEvent reports whether an event of the given type exists for a subject
// within a window
func (r *AuditLogRepository) HasEvent(ctx context.Context, subject string, eventType models.EventType, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM audit_log
			WHERE subject = $1 AND event_type = $2 AND created_at > $3
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, subject, string(eventType), since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check audit event presence: %w", err)
	}

	return exists, nil
}

// CountBySubject counts audit entries for a subject
func (r *AuditLogRepository) CountBySubject(ctx context.Context, subject string) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_log WHERE subject = $1`

	var count int64
	err := r.pool.QueryRow(ctx, query, subject).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return count, nil
}
