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
	"github.com/louisbranch/crease/internal/storage"
)

// PutMatch persists a match record and its rule settings.
func (s *Store) PutMatch(ctx context.Context, m storage.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("match id is required")
	}
	if err := m.Rules.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.CurrentInning <= 0 {
		m.CurrentInning = 1
	}

	rulesJSON, err := json.Marshal(m.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	rosterA, err := json.Marshal(m.TeamARoster)
	if err != nil {
		return fmt.Errorf("marshal team a roster: %w", err)
	}
	rosterB, err := json.Marshal(m.TeamBRoster)
	if err != nil {
		return fmt.Errorf("marshal team b roster: %w", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO matches (
			match_id, name, team_a_id, team_b_id, rules_json,
			team_a_roster, team_b_roster, current_inning, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			name = excluded.name,
			team_a_id = excluded.team_a_id,
			team_b_id = excluded.team_b_id,
			rules_json = excluded.rules_json,
			team_a_roster = excluded.team_a_roster,
			team_b_roster = excluded.team_b_roster,
			current_inning = excluded.current_inning,
			updated_at = excluded.updated_at`,
		m.ID, m.Name, m.TeamAID, m.TeamBID, string(rulesJSON),
		string(rosterA), string(rosterB), m.CurrentInning,
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put match: %w", err)
	}
	return nil
}

// GetMatch retrieves a match record by id.
func (s *Store) GetMatch(ctx context.Context, matchID string) (storage.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MatchRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MatchRecord{}, fmt.Errorf("storage is not configured")
	}

	var (
		m         storage.MatchRecord
		rulesJSON string
		rosterA   string
		rosterB   string
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT match_id, name, team_a_id, team_b_id, rules_json,
		       team_a_roster, team_b_roster, current_inning, created_at, updated_at
		FROM matches WHERE match_id = ?`,
		matchID,
	).Scan(&m.ID, &m.Name, &m.TeamAID, &m.TeamBID, &rulesJSON,
		&rosterA, &rosterB, &m.CurrentInning, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MatchRecord{}, storage.ErrNotFound
		}
		return storage.MatchRecord{}, fmt.Errorf("get match: %w", err)
	}

	var rules engine.Rules
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		return storage.MatchRecord{}, fmt.Errorf("decode rules: %w", err)
	}
	m.Rules = rules
	if err := json.Unmarshal([]byte(rosterA), &m.TeamARoster); err != nil {
		return storage.MatchRecord{}, fmt.Errorf("decode team a roster: %w", err)
	}
	if err := json.Unmarshal([]byte(rosterB), &m.TeamBRoster); err != nil {
		return storage.MatchRecord{}, fmt.Errorf("decode team b roster: %w", err)
	}
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}

// SetCurrentInning advances the innings pointer when the second innings starts.
func (s *Store) SetCurrentInning(ctx context.Context, matchID string, inning int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE matches SET current_inning = ?, updated_at = ? WHERE match_id = ?`,
		inning, toMillis(time.Now().UTC()), matchID,
	)
	if err != nil {
		return fmt.Errorf("set current inning: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set current inning result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
