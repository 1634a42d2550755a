package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
)

const maxMessageLen = 1024

type ReflectionFailureRepository struct{ db *sql.DB }

func NewReflectionFailureRepository(db *sql.DB) *ReflectionFailureRepository {
	return &ReflectionFailureRepository{db: db}
}

// Save inserts one absorbed reflection failure; a repeated id is ignored.
func (r *ReflectionFailureRepository) Save(ctx context.Context, f *domain.Failure) error {
	const q = `
INSERT INTO reflection_failures
  (id, tenant_id, request_id, user_id, kind, status_code, message, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING;`
	msg := f.Message
	if len(msg) > maxMessageLen {
		msg = strings.ToValidUTF8(msg[:maxMessageLen], "")
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		f.ID,
		stringOrDash(f.TenantID),
		stringOrDash(f.RequestID),
		stringOrDash(f.UserID),
		stringOrDash(string(f.Kind)),
		f.StatusCode,
		stringOrDash(msg),
		f.DurationMS,
		created,
	)
	return err
}

// ListByTenant returns the newest failures for a tenant.
func (r *ReflectionFailureRepository) ListByTenant(ctx context.Context, tenant string, limit int) ([]*domain.Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, request_id, user_id, kind, status_code, message, duration_ms, created_at
FROM reflection_failures
WHERE tenant_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Failure
	for rows.Next() {
		var f domain.Failure
		var kind string
		if err := rows.Scan(&f.ID, &f.TenantID, &f.RequestID, &f.UserID, &kind, &f.StatusCode, &f.Message, &f.DurationMS, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Kind = domain.FailureKind(kind)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
