package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// AdvanceCursor records clientSeq for (match, client) if it is strictly
// greater than the stored value.
func (s *Store) AdvanceCursor(ctx context.Context, matchID, clientID string, clientSeq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO client_cursors (match_id, client_id, client_seq, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (match_id, client_id) DO UPDATE SET
			client_seq = excluded.client_seq,
			updated_at = excluded.updated_at
		WHERE excluded.client_seq > client_cursors.client_seq`,
		matchID, clientID, int64(clientSeq), toMillis(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance cursor result: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeClientSeqOutOfOrder,
			"client sequence must be strictly increasing", map[string]string{
				"match_id":   matchID,
				"client_id":  clientID,
				"client_seq": fmt.Sprintf("%d", clientSeq),
			})
	}
	return nil
}

// GetCursor returns the last accepted client sequence, zero when none exists.
func (s *Store) GetCursor(ctx context.Context, matchID, clientID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT client_seq FROM client_cursors WHERE match_id = ? AND client_id = ?`,
		matchID, clientID,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get cursor: %w", err)
	}
	return uint64(seq), nil
}
