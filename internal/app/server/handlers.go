package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/platform/requestctx"
	"github.com/louisbranch/crease/internal/scoring"
)

// guardEnvelope is the concurrency-control header every mutation body carries.
type guardEnvelope struct {
	IdempotencyKey  string  `json:"idempotency_key"`
	ClientID        string  `json:"client_id,omitempty"`
	ClientSeq       uint64  `json:"client_seq,omitempty"`
	ExpectedVersion *uint64 `json:"expected_version,omitempty"`
}

func (e guardEnvelope) guard(r *http.Request) scoring.Guard {
	return scoring.Guard{
		ActorID:         requestctx.UserIDFromContext(r.Context()),
		IdempotencyKey:  e.IdempotencyKey,
		ClientID:        e.ClientID,
		ClientSeq:       e.ClientSeq,
		ExpectedVersion: e.ExpectedVersion,
	}
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string       `json:"name"`
		TeamAID     string       `json:"team_a_id"`
		TeamBID     string       `json:"team_b_id"`
		Rules       engine.Rules `json:"rules"`
		TeamARoster []string     `json:"team_a_roster"`
		TeamBRoster []string     `json:"team_b_roster"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	match, err := s.scoring.CreateMatch(r.Context(), requestctx.UserIDFromContext(r.Context()), scoring.CreateMatchParams{
		Name:        body.Name,
		TeamAID:     body.TeamAID,
		TeamBID:     body.TeamBID,
		Rules:       body.Rules,
		TeamARoster: body.TeamARoster,
		TeamBRoster: body.TeamBRoster,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	view, err := s.scoring.GetSnapshot(r.Context(), r.PathValue("id"), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetInnings(w http.ResponseWriter, r *http.Request) {
	innings, err := strconv.Atoi(r.PathValue("innings"))
	if err != nil || innings < 1 {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "innings must be a positive number"))
		return
	}
	view, err := s.scoring.GetInningsSnapshot(r.Context(), r.PathValue("id"), innings, requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var afterSeq uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after_seq")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "after_seq must be a number"))
			return
		}
		afterSeq = parsed
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "limit must be a positive number"))
			return
		}
		limit = parsed
	}

	events, err := s.scoring.ListEvents(r.Context(), r.PathValue("id"), afterSeq, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Events []event.Event `json:"events"`
		Count  int           `json:"count"`
	}{Events: events, Count: len(events)})
}

func (s *Server) handleStartInnings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		BattingTeamID string `json:"batting_team_id,omitempty"`
		StrikerID     string `json:"striker_id"`
		NonStrikerID  string `json:"non_striker_id"`
		BowlerID      string `json:"bowler_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.StartInnings(r.Context(), r.PathValue("id"), body.guard(r), scoring.StartInningsParams{
		BattingTeamID: body.BattingTeamID,
		StrikerID:     body.StrikerID,
		NonStrikerID:  body.NonStrikerID,
		BowlerID:      body.BowlerID,
	})
	respondResult(w, result, err)
}

func (s *Server) handleRecordBall(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		Runs int `json:"runs"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.RecordBall(r.Context(), r.PathValue("id"), body.guard(r), body.Runs)
	respondResult(w, result, err)
}

func (s *Server) handleRecordExtra(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		Kind event.ExtraKind `json:"kind"`
		Runs int             `json:"runs"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.RecordExtra(r.Context(), r.PathValue("id"), body.guard(r), event.ExtraScoredPayload{
		Kind: body.Kind,
		Runs: body.Runs,
	})
	respondResult(w, result, err)
}

func (s *Server) handleRecordWicket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		Kind      event.DismissalKind `json:"kind"`
		BatterID  string              `json:"batter_id"`
		FielderID string              `json:"fielder_id,omitempty"`
		Runs      int                 `json:"runs,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.RecordWicket(r.Context(), r.PathValue("id"), body.guard(r), event.WicketFallenPayload{
		Kind:      body.Kind,
		BatterID:  body.BatterID,
		FielderID: body.FielderID,
		Runs:      body.Runs,
	})
	respondResult(w, result, err)
}

func (s *Server) handleSelectBowler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		BowlerID string `json:"bowler_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.SelectBowler(r.Context(), r.PathValue("id"), body.guard(r), body.BowlerID)
	respondResult(w, result, err)
}

func (s *Server) handleSelectBatter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		BatterID string `json:"batter_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.SelectBatter(r.Context(), r.PathValue("id"), body.guard(r), body.BatterID)
	respondResult(w, result, err)
}

func (s *Server) handleApproveInningsTwo(w http.ResponseWriter, r *http.Request) {
	var body guardEnvelope
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.ApproveInningsTwo(r.Context(), r.PathValue("id"), body.guard(r))
	respondResult(w, result, err)
}

func (s *Server) handleEndInnings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		Reason string `json:"reason,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.EndInnings(r.Context(), r.PathValue("id"), body.guard(r), body.Reason)
	respondResult(w, result, err)
}

func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		Reason string `json:"reason,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.EndMatch(r.Context(), r.PathValue("id"), body.guard(r), body.Reason)
	respondResult(w, result, err)
}

func (s *Server) handleLockMatch(w http.ResponseWriter, r *http.Request) {
	var body guardEnvelope
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.LockMatch(r.Context(), r.PathValue("id"), body.guard(r))
	respondResult(w, result, err)
}

func (s *Server) handleUnlockMatch(w http.ResponseWriter, r *http.Request) {
	var body guardEnvelope
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.UnlockMatch(r.Context(), r.PathValue("id"), body.guard(r))
	respondResult(w, result, err)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		TargetSeq uint64 `json:"target_seq,omitempty"`
		Reason    string `json:"reason,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.Undo(r.Context(), r.PathValue("id"), body.guard(r), body.TargetSeq, body.Reason)
	respondResult(w, result, err)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		guardEnvelope
		TargetSeq   uint64          `json:"target_seq"`
		Replacement json.RawMessage `json:"replacement"`
		Reason      string          `json:"reason,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.scoring.Edit(r.Context(), r.PathValue("id"), body.guard(r), body.TargetSeq, body.Replacement, body.Reason)
	respondResult(w, result, err)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	actorID := requestctx.UserIDFromContext(r.Context())
	err := s.scoring.AssignRole(r.Context(), r.PathValue("id"), actorID, body.UserID, authz.ParseRole(body.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	actorID := requestctx.UserIDFromContext(r.Context())
	err := s.scoring.RevokeRole(r.Context(), r.PathValue("id"), actorID, r.PathValue("userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func respondResult(w http.ResponseWriter, result scoring.Result, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
