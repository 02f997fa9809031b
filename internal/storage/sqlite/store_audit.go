package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/crease/internal/platform/id"
	"github.com/louisbranch/crease/internal/storage"
)

// AppendAudit appends one audit-log entry.
func (s *Store) AppendAudit(ctx context.Context, rec storage.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rec.Action) == "" {
		return fmt.Errorf("audit action is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate audit id: %w", err)
		}
		rec.ID = generated
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO audit_log (id, match_id, actor_id, action, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MatchID, rec.ActorID, rec.Action, rec.Outcome, rec.Detail, toMillis(rec.CreatedAt),
	); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit entries for a match, newest first.
func (s *Store) ListAudit(ctx context.Context, matchID string, limit int) ([]storage.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, match_id, actor_id, action, outcome, detail, created_at
		 FROM audit_log WHERE match_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		matchID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var records []storage.AuditRecord
	for rows.Next() {
		var (
			rec       storage.AuditRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.MatchID, &rec.ActorID, &rec.Action, &rec.Outcome, &rec.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return records, nil
}
