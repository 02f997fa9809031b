package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/crease/internal/storage"
)

// PutRole grants or replaces a user's role for a match.
func (s *Store) PutRole(ctx context.Context, rec storage.RoleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rec.MatchID) == "" || strings.TrimSpace(rec.UserID) == "" {
		return fmt.Errorf("match id and user id are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO match_roles (match_id, user_id, role, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id, user_id) DO UPDATE SET
			role = excluded.role,
			granted_by = excluded.granted_by`,
		rec.MatchID, rec.UserID, rec.Role, rec.GrantedBy, toMillis(rec.CreatedAt),
	); err != nil {
		return fmt.Errorf("put role: %w", err)
	}
	return nil
}

// GetRole returns the role grant for (match, user), or ErrNotFound.
func (s *Store) GetRole(ctx context.Context, matchID, userID string) (storage.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoleRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoleRecord{}, fmt.Errorf("storage is not configured")
	}

	var (
		rec       storage.RoleRecord
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT match_id, user_id, role, granted_by, created_at
		 FROM match_roles WHERE match_id = ? AND user_id = ?`,
		matchID, userID,
	).Scan(&rec.MatchID, &rec.UserID, &rec.Role, &rec.GrantedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RoleRecord{}, storage.ErrNotFound
		}
		return storage.RoleRecord{}, fmt.Errorf("get role: %w", err)
	}
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// ListRoles returns all role grants for a match.
func (s *Store) ListRoles(ctx context.Context, matchID string) ([]storage.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT match_id, user_id, role, granted_by, created_at
		 FROM match_roles WHERE match_id = ? ORDER BY user_id ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var records []storage.RoleRecord
	for rows.Next() {
		var (
			rec       storage.RoleRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.MatchID, &rec.UserID, &rec.Role, &rec.GrantedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return records, nil
}

// DeleteRole revokes a user's role for a match.
func (s *Store) DeleteRole(ctx context.Context, matchID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM match_roles WHERE match_id = ? AND user_id = ?`,
		matchID, userID,
	); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}
