package console

import (
	"time"

	"github.com/google/uuid"
)

// Write actions recorded in the audit trail.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// AuditEntry records one write sent to the upstream API.
type AuditEntry struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Entity     string    `db:"entity" json:"entity"`
	Action     string    `db:"action" json:"action"`
	NaturalKey string    `db:"natural_key" json:"natural_key,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome"`
	Detail     *string   `db:"detail" json:"detail,omitempty"`
	RequestID  string    `db:"request_id" json:"request_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
