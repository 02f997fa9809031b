package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

// maxSeqRetries bounds how many times an append recovers from a sequence
// collision before the journal is considered corrupt.
const maxSeqRetries = 3

// AppendEvent atomically allocates the next per-match sequence and inserts
// the event. A reused idempotency key returns the originally stored event.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.MatchID) == "" {
		return event.Event{}, fmt.Errorf("match id is required")
	}
	if strings.TrimSpace(evt.IdempotencyKey) == "" {
		return event.Event{}, apperrors.New(apperrors.CodeIdempotencyKeyMissing, "idempotency key is required")
	}

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	var lastErr error
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		stored, err := s.appendEventOnce(ctx, evt)
		if err == nil {
			return stored, nil
		}
		if !isConstraintError(err) {
			return event.Event{}, err
		}

		// A key collision means this request was already applied; hand back
		// the original append.
		existing, lookupErr := s.GetEventByIdempotencyKey(ctx, evt.MatchID, evt.IdempotencyKey)
		if lookupErr == nil {
			return existing, nil
		}
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return event.Event{}, lookupErr
		}

		// Otherwise the counter drifted behind the journal; re-anchor it to
		// MAX(seq) and try again.
		if err := s.resyncEventSeq(ctx, evt.MatchID); err != nil {
			return event.Event{}, err
		}
		lastErr = err
	}

	return event.Event{}, apperrors.Wrap(apperrors.CodeSeqRetryExceeded,
		fmt.Sprintf("append for match %s failed after %d sequence retries", evt.MatchID, maxSeqRetries), lastErr)
}

// appendEventOnce runs one allocate-and-insert transaction.
func (s *Store) appendEventOnce(ctx context.Context, evt event.Event) (event.Event, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_seq (match_id, next_seq) VALUES (?, 1)`,
		evt.MatchID,
	); err != nil {
		return event.Event{}, fmt.Errorf("init event seq: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM event_seq WHERE match_id = ?`,
		evt.MatchID,
	).Scan(&seq); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx,
		`UPDATE event_seq SET next_seq = next_seq + 1 WHERE match_id = ?`,
		evt.MatchID,
	); err != nil {
		return event.Event{}, fmt.Errorf("increment event seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (
			match_id, seq, innings, over_num, ball_in_over, timestamp,
			event_type, actor_id, idempotency_key, target_seq, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.MatchID,
		int64(evt.Seq),
		evt.Innings,
		evt.Over,
		evt.BallInOver,
		toMillis(evt.Timestamp),
		string(evt.Type),
		evt.ActorID,
		evt.IdempotencyKey,
		int64(evt.TargetSeq),
		string(evt.PayloadJSON),
	); err != nil {
		return event.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

// resyncEventSeq re-anchors the per-match counter to MAX(seq)+1.
func (s *Store) resyncEventSeq(ctx context.Context, matchID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO event_seq (match_id, next_seq)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE match_id = ?))
		ON CONFLICT (match_id) DO UPDATE SET
			next_seq = (SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE match_id = excluded.match_id)`,
		matchID, matchID,
	); err != nil {
		return fmt.Errorf("resync event seq: %w", err)
	}
	return nil
}

const eventColumns = `match_id, seq, innings, over_num, ball_in_over, timestamp,
	event_type, actor_id, idempotency_key, target_seq, payload_json`

type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		timestamp int64
		eventType string
		targetSeq int64
		payload   string
	)
	if err := row.Scan(
		&evt.MatchID, &seq, &evt.Innings, &evt.Over, &evt.BallInOver,
		&timestamp, &eventType, &evt.ActorID, &evt.IdempotencyKey,
		&targetSeq, &payload,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	evt.TargetSeq = uint64(targetSeq)
	if payload != "" {
		evt.PayloadJSON = []byte(payload)
	}
	return evt, nil
}

// GetEventByIdempotencyKey returns the stored event for a key, or ErrNotFound.
func (s *Store) GetEventByIdempotencyKey(ctx context.Context, matchID, key string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE match_id = ? AND idempotency_key = ?`,
		matchID, key,
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by idempotency key: %w", err)
	}
	return evt, nil
}

// GetEventBySeq returns one event by its per-match sequence.
func (s *Store) GetEventBySeq(ctx context.Context, matchID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE match_id = ? AND seq = ?`,
		matchID, int64(seq),
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// ListEvents returns up to limit events with seq > afterSeq in seq order.
func (s *Store) ListEvents(ctx context.Context, matchID string, afterSeq uint64, limit int) ([]event.Event, error) {
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
		`SELECT `+eventColumns+` FROM events
		 WHERE match_id = ? AND seq > ?
		 ORDER BY seq ASC LIMIT ?`,
		matchID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListInningsEvents returns the complete history of one innings in seq order.
func (s *Store) ListInningsEvents(ctx context.Context, matchID string, innings int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE match_id = ? AND innings = ?
		 ORDER BY seq ASC`,
		matchID, innings,
	)
	if err != nil {
		return nil, fmt.Errorf("list innings events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetLatestEventSeq returns the highest allocated sequence, zero when empty.
func (s *Store) GetLatestEventSeq(ctx context.Context, matchID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE match_id = ?`,
		matchID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest event seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

func collectEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
