package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "crease.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("Open with blank path should fail")
	}
}

func TestAppendEventAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		stored, err := store.AppendEvent(ctx, event.Event{
			MatchID:        "m1",
			Innings:        1,
			Type:           event.TypeBallScored,
			IdempotencyKey: string(rune('a' + want)),
			PayloadJSON:    []byte(`{"runs":1}`),
		})
		if err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
		if stored.Seq != want {
			t.Errorf("Seq = %d, want %d", stored.Seq, want)
		}
	}

	latest, err := store.GetLatestEventSeq(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatestEventSeq() error = %v", err)
	}
	if latest != 3 {
		t.Errorf("latest seq = %d, want 3", latest)
	}
}

func TestAppendEventSequencesAreIndependentPerMatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, event.Event{
		MatchID: "m1", Innings: 1, Type: event.TypeBallScored, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("AppendEvent(m1) error = %v", err)
	}
	second, err := store.AppendEvent(ctx, event.Event{
		MatchID: "m2", Innings: 1, Type: event.TypeBallScored, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("AppendEvent(m2) error = %v", err)
	}
	if first.Seq != 1 || second.Seq != 1 {
		t.Errorf("seqs = %d/%d, want 1/1", first.Seq, second.Seq)
	}
}

func TestAppendEventIdempotencyDedup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	original, err := store.AppendEvent(ctx, event.Event{
		MatchID:        "m1",
		Innings:        1,
		Type:           event.TypeBallScored,
		IdempotencyKey: "once",
		PayloadJSON:    []byte(`{"runs":4}`),
	})
	if err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	replayed, err := store.AppendEvent(ctx, event.Event{
		MatchID:        "m1",
		Innings:        1,
		Type:           event.TypeBallScored,
		IdempotencyKey: "once",
		PayloadJSON:    []byte(`{"runs":6}`),
	})
	if err != nil {
		t.Fatalf("AppendEvent() retry error = %v", err)
	}
	if replayed.Seq != original.Seq {
		t.Errorf("replayed Seq = %d, want %d", replayed.Seq, original.Seq)
	}
	if string(replayed.PayloadJSON) != `{"runs":4}` {
		t.Errorf("replayed payload = %s, want the original payload", replayed.PayloadJSON)
	}

	latest, err := store.GetLatestEventSeq(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatestEventSeq() error = %v", err)
	}
	if latest != 1 {
		t.Errorf("latest seq = %d, want 1 (no second append)", latest)
	}
}

func TestAppendEventRequiresIdempotencyKey(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AppendEvent(context.Background(), event.Event{
		MatchID: "m1", Innings: 1, Type: event.TypeBallScored,
	})
	if apperrors.CodeOf(err) != apperrors.CodeIdempotencyKeyMissing {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeIdempotencyKeyMissing)
	}
}

func TestListEventsPaging(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, event.Event{
			MatchID:        "m1",
			Innings:        1,
			Type:           event.TypeBallScored,
			IdempotencyKey: string(rune('a' + i)),
		}); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	page, err := store.ListEvents(ctx, "m1", 2, 2)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	if page[0].Seq != 3 || page[1].Seq != 4 {
		t.Errorf("page seqs = %d,%d, want 3,4", page[0].Seq, page[1].Seq)
	}
}

func TestListInningsEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, innings := range []int{1, 1, 2} {
		if _, err := store.AppendEvent(ctx, event.Event{
			MatchID:        "m1",
			Innings:        innings,
			Type:           event.TypeBallScored,
			IdempotencyKey: string(rune('a' + i)),
		}); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	events, err := store.ListInningsEvents(ctx, "m1", 1)
	if err != nil {
		t.Fatalf("ListInningsEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestGetEventBySeq(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stored, err := store.AppendEvent(ctx, event.Event{
		MatchID:        "m1",
		Innings:        1,
		Type:           event.TypeWicketFallen,
		ActorID:        "scorer-1",
		IdempotencyKey: "k1",
		PayloadJSON:    []byte(`{"kind":"bowled","batter_id":"bat1"}`),
	})
	if err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	got, err := store.GetEventBySeq(ctx, "m1", stored.Seq)
	if err != nil {
		t.Fatalf("GetEventBySeq() error = %v", err)
	}
	if got.Type != event.TypeWicketFallen || got.ActorID != "scorer-1" {
		t.Errorf("event = %+v, want stored wicket", got)
	}

	if _, err := store.GetEventBySeq(ctx, "m1", 99); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing seq error = %v, want ErrNotFound", err)
	}
}

func TestPutSnapshotVersionGuard(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	put := func(version uint64) error {
		return store.PutSnapshot(ctx, storage.SnapshotRecord{
			MatchID: "m1",
			Innings: 1,
			Version: version,
			Snapshot: engine.Snapshot{
				MatchID: "m1", Innings: 1, Version: version,
				Status: engine.StatusLive, Rules: engine.DefaultRules(20),
			},
		})
	}

	if err := put(5); err != nil {
		t.Fatalf("PutSnapshot(5) error = %v", err)
	}
	if err := put(7); err != nil {
		t.Fatalf("PutSnapshot(7) error = %v", err)
	}
	// Same version is an idempotent no-op.
	if err := put(7); err != nil {
		t.Fatalf("PutSnapshot(7) repeat error = %v", err)
	}
	// Older version must not overwrite.
	err := put(6)
	if apperrors.CodeOf(err) != apperrors.CodeVersionRegression {
		t.Fatalf("PutSnapshot(6) error = %v, want %s", err, apperrors.CodeVersionRegression)
	}

	rec, err := store.GetSnapshot(ctx, "m1", 1)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if rec.Version != 7 {
		t.Errorf("stored version = %d, want 7", rec.Version)
	}
	if rec.Snapshot.Status != engine.StatusLive {
		t.Errorf("snapshot status = %v, want %v", rec.Snapshot.Status, engine.StatusLive)
	}
}

func TestGetLatestSnapshotPicksHighestInnings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for innings := 1; innings <= 2; innings++ {
		if err := store.PutSnapshot(ctx, storage.SnapshotRecord{
			MatchID:  "m1",
			Innings:  innings,
			Version:  uint64(innings * 10),
			Snapshot: engine.Snapshot{MatchID: "m1", Innings: innings, Rules: engine.DefaultRules(20)},
		}); err != nil {
			t.Fatalf("PutSnapshot(%d) error = %v", innings, err)
		}
	}

	latest, err := store.GetLatestSnapshot(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatestSnapshot() error = %v", err)
	}
	if latest.Innings != 2 {
		t.Errorf("latest innings = %d, want 2", latest.Innings)
	}

	if _, err := store.GetLatestSnapshot(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing match error = %v, want ErrNotFound", err)
	}
}

func TestAdvanceCursorStrictlyIncreasing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.AdvanceCursor(ctx, "m1", "c1", 1); err != nil {
		t.Fatalf("AdvanceCursor(1) error = %v", err)
	}
	if err := store.AdvanceCursor(ctx, "m1", "c1", 5); err != nil {
		t.Fatalf("AdvanceCursor(5) error = %v", err)
	}

	for _, seq := range []uint64{5, 3} {
		err := store.AdvanceCursor(ctx, "m1", "c1", seq)
		if apperrors.CodeOf(err) != apperrors.CodeClientSeqOutOfOrder {
			t.Errorf("AdvanceCursor(%d) error = %v, want %s", seq, err, apperrors.CodeClientSeqOutOfOrder)
		}
	}

	got, err := store.GetCursor(ctx, "m1", "c1")
	if err != nil {
		t.Fatalf("GetCursor() error = %v", err)
	}
	if got != 5 {
		t.Errorf("cursor = %d, want 5", got)
	}

	other, err := store.GetCursor(ctx, "m1", "unseen")
	if err != nil {
		t.Fatalf("GetCursor(unseen) error = %v", err)
	}
	if other != 0 {
		t.Errorf("unseen cursor = %d, want 0", other)
	}
}

func TestRoleLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRole(ctx, storage.RoleRecord{
		MatchID: "m1", UserID: "u1", Role: "scorer", GrantedBy: "admin-1",
	}); err != nil {
		t.Fatalf("PutRole() error = %v", err)
	}

	rec, err := store.GetRole(ctx, "m1", "u1")
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if rec.Role != "scorer" {
		t.Errorf("role = %s, want scorer", rec.Role)
	}

	// Re-granting replaces the role.
	if err := store.PutRole(ctx, storage.RoleRecord{
		MatchID: "m1", UserID: "u1", Role: "organizer",
	}); err != nil {
		t.Fatalf("PutRole() upgrade error = %v", err)
	}
	rec, err = store.GetRole(ctx, "m1", "u1")
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if rec.Role != "organizer" {
		t.Errorf("role = %s, want organizer", rec.Role)
	}

	roles, err := store.ListRoles(ctx, "m1")
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("len(roles) = %d, want 1", len(roles))
	}

	if err := store.DeleteRole(ctx, "m1", "u1"); err != nil {
		t.Fatalf("DeleteRole() error = %v", err)
	}
	if _, err := store.GetRole(ctx, "m1", "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted role error = %v, want ErrNotFound", err)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, outcome := range []string{"accepted", "denied"} {
		if err := store.AppendAudit(ctx, storage.AuditRecord{
			MatchID: "m1",
			ActorID: "u1",
			Action:  "record_ball",
			Outcome: outcome,
		}); err != nil {
			t.Fatalf("AppendAudit(%s) error = %v", outcome, err)
		}
	}

	records, err := store.ListAudit(ctx, "m1", 10)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ID == "" {
			t.Error("audit record should be assigned an id")
		}
	}
}

func TestMatchLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rules := engine.DefaultRules(20)
	if err := store.PutMatch(ctx, storage.MatchRecord{
		ID:          "m1",
		Name:        "Club Final",
		TeamAID:     "team-a",
		TeamBID:     "team-b",
		Rules:       rules,
		TeamARoster: []string{"bat1", "bat2"},
		TeamBRoster: []string{"bowl1", "bowl2"},
	}); err != nil {
		t.Fatalf("PutMatch() error = %v", err)
	}

	m, err := store.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if m.Rules.OversLimit != 20 || m.CurrentInning != 1 {
		t.Errorf("match = %+v, want 20 overs at innings 1", m)
	}
	if len(m.TeamARoster) != 2 || m.TeamARoster[0] != "bat1" {
		t.Errorf("team a roster = %v, want [bat1 bat2]", m.TeamARoster)
	}

	if err := store.SetCurrentInning(ctx, "m1", 2); err != nil {
		t.Fatalf("SetCurrentInning() error = %v", err)
	}
	m, err = store.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	if m.CurrentInning != 2 {
		t.Errorf("CurrentInning = %d, want 2", m.CurrentInning)
	}

	if err := store.SetCurrentInning(ctx, "missing", 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing match error = %v, want ErrNotFound", err)
	}
}
