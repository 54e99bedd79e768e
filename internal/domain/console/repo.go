package console

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type AuditRepository interface {
	Record(ctx context.Context, e *AuditEntry) error
	// List returns entries newest first with the total count.
	List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error)
}

// InMemoryAuditRepo keeps the audit trail in process. It is used when no
// database is configured.
type InMemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewInMemoryAuditRepo() *InMemoryAuditRepo {
	return &InMemoryAuditRepo{}
}

func (r *InMemoryAuditRepo) Record(_ context.Context, e *AuditEntry) error {
	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *InMemoryAuditRepo) List(_ context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.entries)
	if offset >= total {
		return []*AuditEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*AuditEntry, 0, end-offset)
	for i := total - 1 - offset; i >= total-end; i-- {
		out = append(out, r.entries[i])
	}
	return out, total, nil
}
