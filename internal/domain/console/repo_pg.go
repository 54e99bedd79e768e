package console

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type auditRepoPG struct{ db queryable }

// NewAuditRepoPG stores the audit trail in the ui_audit table. db is
// usually a *pgxpool.Pool.
func NewAuditRepoPG(db queryable) AuditRepository {
	return &auditRepoPG{db: db}
}

const auditCols = `id, user_id, entity, action, natural_key, outcome, detail, request_id, created_at`

func (r *auditRepoPG) scanEntry(row pgx.Row) (*AuditEntry, error) {
	var e AuditEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Entity, &e.Action, &e.NaturalKey,
		&e.Outcome, &e.Detail, &e.RequestID, &e.CreatedAt)
	return &e, err
}

func (r *auditRepoPG) Record(ctx context.Context, e *AuditEntry) error {
	e.ID = uuid.New()
	return r.db.QueryRow(ctx, `
		INSERT INTO ui_audit (id, user_id, entity, action, natural_key, outcome, detail, request_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		e.ID, e.UserID, e.Entity, e.Action, e.NaturalKey, e.Outcome, e.Detail, e.RequestID,
	).Scan(&e.CreatedAt)
}

func (r *auditRepoPG) List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ui_audit`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+auditCols+` FROM ui_audit ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
