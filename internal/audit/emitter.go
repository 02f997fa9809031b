// Package audit records durable audit entries for scoring operations.
//
// Every accepted mutation and every rejected permission check produces one
// entry. Entries back incident analysis and scoring disputes; distributed
// tracing still goes through internal/platform/otel.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/crease/internal/storage"
)

// Outcome labels for audit entries.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeDenied   = "denied"
)

// Emitter records audit entries.
type Emitter struct {
	store storage.AuditStore
	clock func() time.Time
}

// NewEmitter creates a new audit emitter.
func NewEmitter(store storage.AuditStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records an audit entry. It is a no-op when the store is nil, and an
// append failure is logged rather than surfaced: audit writes never block a
// scoring decision that was already made.
func (e *Emitter) Emit(ctx context.Context, rec storage.AuditRecord) {
	if e == nil || e.store == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		if e.clock == nil {
			rec.CreatedAt = time.Now().UTC()
		} else {
			rec.CreatedAt = e.clock().UTC()
		}
	}
	if err := e.store.AppendAudit(ctx, rec); err != nil {
		log.Printf("audit append failed: action=%s match=%s err=%v", rec.Action, rec.MatchID, err)
	}
}
