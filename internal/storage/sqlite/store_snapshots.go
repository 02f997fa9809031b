package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/crease/internal/match/engine"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

// PutSnapshot stores a snapshot if its version does not regress. An equal
// version is treated as an idempotent no-op.
func (s *Store) PutSnapshot(ctx context.Context, rec storage.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rec.MatchID) == "" {
		return fmt.Errorf("match id is required")
	}
	if rec.Innings <= 0 {
		return fmt.Errorf("innings is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	snapshotJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	res, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO snapshots (match_id, innings, version, snapshot_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id, innings) DO UPDATE SET
			version = excluded.version,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at
		WHERE excluded.version > snapshots.version`,
		rec.MatchID, rec.Innings, int64(rec.Version), string(snapshotJSON), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put snapshot result: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetSnapshot(ctx, rec.MatchID, rec.Innings)
		if getErr == nil && existing.Version == rec.Version {
			return nil
		}
		return apperrors.WithMetadata(apperrors.CodeVersionRegression,
			"snapshot version regressed", map[string]string{
				"match_id": rec.MatchID,
				"version":  fmt.Sprintf("%d", rec.Version),
			})
	}
	return nil
}

// GetSnapshot retrieves a snapshot by match and innings.
func (s *Store) GetSnapshot(ctx context.Context, matchID string, innings int) (storage.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SnapshotRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SnapshotRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT match_id, innings, version, snapshot_json, updated_at
		 FROM snapshots WHERE match_id = ? AND innings = ?`,
		matchID, innings,
	)
	return scanSnapshot(row)
}

// GetLatestSnapshot retrieves the snapshot of the highest innings on record.
func (s *Store) GetLatestSnapshot(ctx context.Context, matchID string) (storage.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SnapshotRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SnapshotRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT match_id, innings, version, snapshot_json, updated_at
		 FROM snapshots WHERE match_id = ?
		 ORDER BY innings DESC LIMIT 1`,
		matchID,
	)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (storage.SnapshotRecord, error) {
	var (
		rec          storage.SnapshotRecord
		version      int64
		snapshotJSON string
		updatedAt    int64
	)
	if err := row.Scan(&rec.MatchID, &rec.Innings, &version, &snapshotJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SnapshotRecord{}, storage.ErrNotFound
		}
		return storage.SnapshotRecord{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snap); err != nil {
		return storage.SnapshotRecord{}, fmt.Errorf("decode snapshot: %w", err)
	}
	rec.Version = uint64(version)
	rec.Snapshot = snap
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}
