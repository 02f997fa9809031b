package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	"github.com/louisbranch/crease/internal/match/replay"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage/sqlite"
)

type capturePublisher struct {
	mu      sync.Mutex
	updates []Update
}

func (p *capturePublisher) Publish(update Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
}

func (p *capturePublisher) last(t *testing.T) Update {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		t.Fatal("no updates published")
	}
	return p.updates[len(p.updates)-1]
}

type fixture struct {
	service *Service
	store   *sqlite.Store
	pub     *capturePublisher
	matchID string
	keySeq  int
}

func newFixture(t *testing.T, rules engine.Rules) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "crease.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	pub := &capturePublisher{}
	service := NewService(store, audit.NewEmitter(store), pub)

	match, err := service.CreateMatch(context.Background(), "organizer-1", CreateMatchParams{
		Name:        "Club Final",
		TeamAID:     "team-a",
		TeamBID:     "team-b",
		Rules:       rules,
		TeamARoster: []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11"},
		TeamBRoster: []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8", "b9", "b10", "b11"},
	})
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	f := &fixture{service: service, store: store, pub: pub, matchID: match.ID}
	f.grantRole(t, "scorer-1", authz.RoleScorer)
	f.grantRole(t, "admin-1", authz.RoleAdmin)
	return f
}

func (f *fixture) grantRole(t *testing.T, userID string, role authz.Role) {
	t.Helper()
	if err := f.service.AssignRole(context.Background(), f.matchID, "organizer-1", userID, role); err != nil {
		t.Fatalf("AssignRole(%s) error = %v", userID, err)
	}
}

func (f *fixture) guard(actorID string) Guard {
	f.keySeq++
	return Guard{ActorID: actorID, IdempotencyKey: fmt.Sprintf("key-%d", f.keySeq)}
}

func (f *fixture) startInnings(t *testing.T) {
	t.Helper()
	_, err := f.service.StartInnings(context.Background(), f.matchID, f.guard("scorer-1"), StartInningsParams{
		BattingTeamID: "team-a",
		StrikerID:     "a1",
		NonStrikerID:  "a2",
		BowlerID:      "b1",
	})
	if err != nil {
		t.Fatalf("StartInnings() error = %v", err)
	}
}

func (f *fixture) ball(t *testing.T, runs int) Result {
	t.Helper()
	res, err := f.service.RecordBall(context.Background(), f.matchID, f.guard("scorer-1"), runs)
	if err != nil {
		t.Fatalf("RecordBall(%d) error = %v", runs, err)
	}
	return res
}

func continuousRules(overs int) engine.Rules {
	rules := engine.DefaultRules(overs)
	rules.BowlerMayContinue = true
	return rules
}

func TestStartInningsAndScore(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)

	var res Result
	for i := 0; i < 6; i++ {
		res = f.ball(t, 1)
	}

	if res.Snapshot.Runs != 6 || res.Snapshot.LegalBalls != 6 {
		t.Errorf("Runs/LegalBalls = %d/%d, want 6/6", res.Snapshot.Runs, res.Snapshot.LegalBalls)
	}
	if res.Snapshot.Pending != engine.PendingSelectBowler {
		t.Fatalf("Pending = %v, want %v", res.Snapshot.Pending, engine.PendingSelectBowler)
	}
	if !res.Allowed.CanSelectBowler || res.Allowed.CanScore {
		t.Errorf("allowed = %+v, want bowler selection only", res.Allowed)
	}

	next, err := f.service.SelectBowler(context.Background(), f.matchID, f.guard("scorer-1"), "b2")
	if err != nil {
		t.Fatalf("SelectBowler() error = %v", err)
	}
	if next.Snapshot.BowlerID != "b2" || next.Snapshot.Pending != engine.PendingNone {
		t.Errorf("snapshot = bowler %s pending %v, want b2/none", next.Snapshot.BowlerID, next.Snapshot.Pending)
	}

	update := f.pub.last(t)
	if update.MatchID != f.matchID || update.Resync {
		t.Errorf("update = %+v, want a delta for the match", update)
	}
}

func TestConcurrentWritersFoldInSequenceOrder(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	ctx := context.Background()

	const writers = 6
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := Guard{ActorID: "scorer-1", IdempotencyKey: fmt.Sprintf("cc-%d", i)}
			_, errs[i] = f.service.RecordBall(ctx, f.matchID, g, 1)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("RecordBall(writer %d) error = %v", i, err)
		}
	}

	rec, err := f.store.GetSnapshot(ctx, f.matchID, 1)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if rec.Snapshot.Runs != writers || rec.Snapshot.LegalBalls != writers {
		t.Errorf("stored Runs/LegalBalls = %d/%d, want %d/%d",
			rec.Snapshot.Runs, rec.Snapshot.LegalBalls, writers, writers)
	}

	m, err := f.store.GetMatch(ctx, f.matchID)
	if err != nil {
		t.Fatalf("GetMatch() error = %v", err)
	}
	events, err := f.store.ListInningsEvents(ctx, f.matchID, 1)
	if err != nil {
		t.Fatalf("ListInningsEvents() error = %v", err)
	}
	rebuilt, err := replay.Rebuild(events, configFor(m, rec.Snapshot.BattingTeamID))
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if !reflect.DeepEqual(rec.Snapshot, rebuilt) {
		t.Errorf("stored snapshot diverged from the log:\n stored  %+v\n rebuilt %+v", rec.Snapshot, rebuilt)
	}
}

func TestExtrasWicketAndReplacementBatter(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	ctx := context.Background()

	res, err := f.service.RecordExtra(ctx, f.matchID, f.guard("scorer-1"), event.ExtraScoredPayload{Kind: event.ExtraWide})
	if err != nil {
		t.Fatalf("RecordExtra(wide) error = %v", err)
	}
	if res.Snapshot.Runs != 1 || res.Snapshot.LegalBalls != 0 {
		t.Errorf("after wide Runs/LegalBalls = %d/%d, want 1/0", res.Snapshot.Runs, res.Snapshot.LegalBalls)
	}

	res, err = f.service.RecordExtra(ctx, f.matchID, f.guard("scorer-1"), event.ExtraScoredPayload{Kind: event.ExtraNoBall})
	if err != nil {
		t.Fatalf("RecordExtra(no_ball) error = %v", err)
	}
	if !res.Snapshot.FreeHit {
		t.Error("FreeHit = false after no-ball, want true")
	}

	_, err = f.service.RecordWicket(ctx, f.matchID, f.guard("scorer-1"), event.WicketFallenPayload{
		Kind:     event.DismissalBowled,
		BatterID: "a1",
	})
	if apperrors.CodeOf(err) != apperrors.CodeWicketOnFreeHit {
		t.Fatalf("wicket on free hit error = %v, want %s", err, apperrors.CodeWicketOnFreeHit)
	}

	res = f.ball(t, 0)
	if res.Snapshot.FreeHit {
		t.Error("FreeHit still set after legal delivery")
	}

	res, err = f.service.RecordWicket(ctx, f.matchID, f.guard("scorer-1"), event.WicketFallenPayload{
		Kind:     event.DismissalBowled,
		BatterID: "a1",
	})
	if err != nil {
		t.Fatalf("RecordWicket() error = %v", err)
	}
	if res.Snapshot.Wickets != 1 || res.Snapshot.Pending != engine.PendingSelectBatter {
		t.Fatalf("Wickets/Pending = %d/%v, want 1/%v", res.Snapshot.Wickets, res.Snapshot.Pending, engine.PendingSelectBatter)
	}
	if !res.Allowed.CanSelectBatter {
		t.Error("CanSelectBatter = false while a batter slot is open")
	}

	res, err = f.service.SelectBatter(ctx, f.matchID, f.guard("scorer-1"), "a3")
	if err != nil {
		t.Fatalf("SelectBatter() error = %v", err)
	}
	if res.Snapshot.Pending != engine.PendingNone {
		t.Errorf("Pending = %v after batter selection, want %v", res.Snapshot.Pending, engine.PendingNone)
	}
	if res.Snapshot.StrikerID != "a3" {
		t.Errorf("StrikerID = %q, want a3", res.Snapshot.StrikerID)
	}
}

func TestViewerDeniedAndAudited(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)

	_, err := f.service.RecordBall(context.Background(), f.matchID, f.guard("viewer-1"), 4)
	if apperrors.CodeOf(err) != apperrors.CodePermissionDenied {
		t.Fatalf("error = %v, want %s", err, apperrors.CodePermissionDenied)
	}

	records, err := f.store.ListAudit(context.Background(), f.matchID, 50)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.ActorID == "viewer-1" && rec.Outcome == audit.OutcomeDenied {
			found = true
		}
	}
	if !found {
		t.Error("denied attempt should be audit-logged")
	}
}

func TestIdempotentReplayReturnsOriginal(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)

	g := f.guard("scorer-1")
	first, err := f.service.RecordBall(context.Background(), f.matchID, g, 4)
	if err != nil {
		t.Fatalf("RecordBall() error = %v", err)
	}
	replayed, err := f.service.RecordBall(context.Background(), f.matchID, g, 4)
	if err != nil {
		t.Fatalf("RecordBall() replay error = %v", err)
	}
	if replayed.Event.Seq != first.Event.Seq {
		t.Errorf("replayed seq = %d, want %d", replayed.Event.Seq, first.Event.Seq)
	}

	latest, err := f.store.GetLatestEventSeq(context.Background(), f.matchID)
	if err != nil {
		t.Fatalf("GetLatestEventSeq() error = %v", err)
	}
	if latest != first.Event.Seq {
		t.Errorf("latest seq = %d, want %d (no duplicate append)", latest, first.Event.Seq)
	}
}

func TestMissingIdempotencyKey(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)

	_, err := f.service.RecordBall(context.Background(), f.matchID, Guard{ActorID: "scorer-1"}, 1)
	if apperrors.CodeOf(err) != apperrors.CodeIdempotencyKeyMissing {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeIdempotencyKeyMissing)
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	res := f.ball(t, 1)

	stale := res.Snapshot.Version - 1
	g := f.guard("scorer-1")
	g.ExpectedVersion = &stale
	_, err := f.service.RecordBall(context.Background(), f.matchID, g, 1)
	if apperrors.CodeOf(err) != apperrors.CodeVersionConflict {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeVersionConflict)
	}

	current := res.Snapshot.Version
	g = f.guard("scorer-1")
	g.ExpectedVersion = &current
	if _, err := f.service.RecordBall(context.Background(), f.matchID, g, 1); err != nil {
		t.Fatalf("matching expected version error = %v", err)
	}
}

func TestClientSeqGuard(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)

	g := f.guard("scorer-1")
	g.ClientID, g.ClientSeq = "tablet-1", 2
	if _, err := f.service.RecordBall(context.Background(), f.matchID, g, 1); err != nil {
		t.Fatalf("RecordBall(seq 2) error = %v", err)
	}

	g = f.guard("scorer-1")
	g.ClientID, g.ClientSeq = "tablet-1", 1
	_, err := f.service.RecordBall(context.Background(), f.matchID, g, 1)
	if apperrors.CodeOf(err) != apperrors.CodeClientSeqOutOfOrder {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeClientSeqOutOfOrder)
	}

	// A different device has its own cursor.
	g = f.guard("scorer-1")
	g.ClientID, g.ClientSeq = "phone-1", 1
	if _, err := f.service.RecordBall(context.Background(), f.matchID, g, 1); err != nil {
		t.Fatalf("RecordBall(other client) error = %v", err)
	}
}

func TestUndoLatest(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	f.ball(t, 1)
	boundary := f.ball(t, 4)

	res, err := f.service.Undo(context.Background(), f.matchID, f.guard("scorer-1"), 0, "wrong button")
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if res.Snapshot.Runs != 1 {
		t.Errorf("Runs = %d, want 1 after undoing the boundary", res.Snapshot.Runs)
	}
	if res.Snapshot.Version != boundary.Event.Seq+1 {
		t.Errorf("Version = %d, want the undo's own seq %d", res.Snapshot.Version, boundary.Event.Seq+1)
	}
	if update := f.pub.last(t); !update.Resync {
		t.Error("undo should publish a resync update")
	}
}

func TestUndoTargetValidation(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	res := f.ball(t, 2)

	// The innings start is not revisable.
	_, err := f.service.Undo(context.Background(), f.matchID, f.guard("scorer-1"), 1, "")
	if apperrors.CodeOf(err) != apperrors.CodeEventNotUndoable {
		t.Fatalf("undo start error = %v, want %s", err, apperrors.CodeEventNotUndoable)
	}

	if _, err := f.service.Undo(context.Background(), f.matchID, f.guard("scorer-1"), res.Event.Seq, ""); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	_, err = f.service.Undo(context.Background(), f.matchID, f.guard("scorer-1"), res.Event.Seq, "")
	if apperrors.CodeOf(err) != apperrors.CodeEventAlreadyVoided {
		t.Fatalf("double undo error = %v, want %s", err, apperrors.CodeEventAlreadyVoided)
	}

	_, err = f.service.Undo(context.Background(), f.matchID, f.guard("scorer-1"), 999, "")
	if apperrors.CodeOf(err) != apperrors.CodeTargetEventMissing {
		t.Fatalf("missing target error = %v, want %s", err, apperrors.CodeTargetEventMissing)
	}
}

func TestEditBallRuns(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	res := f.ball(t, 1)

	replacement, _ := json.Marshal(event.BallScoredPayload{Runs: 4})
	edited, err := f.service.Edit(context.Background(), f.matchID, f.guard("organizer-1"), res.Event.Seq, replacement, "was a boundary")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.Snapshot.Runs != 4 {
		t.Errorf("Runs = %d, want 4 after edit", edited.Snapshot.Runs)
	}

	// Scorers cannot edit; edits are a manage action.
	_, err = f.service.Edit(context.Background(), f.matchID, f.guard("scorer-1"), res.Event.Seq, replacement, "")
	if apperrors.CodeOf(err) != apperrors.CodePermissionDenied {
		t.Fatalf("scorer edit error = %v, want %s", err, apperrors.CodePermissionDenied)
	}
}

func TestEditRejectsBadReplacement(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	res := f.ball(t, 1)

	replacement, _ := json.Marshal(event.BallScoredPayload{Runs: 9})
	_, err := f.service.Edit(context.Background(), f.matchID, f.guard("organizer-1"), res.Event.Seq, replacement, "")
	if apperrors.CodeOf(err) != apperrors.CodeInvalidRuns {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeInvalidRuns)
	}
}

func TestFullMatchFlow(t *testing.T) {
	f := newFixture(t, continuousRules(1))
	f.startInnings(t)
	ctx := context.Background()

	// First innings: one over of singles.
	var res Result
	for i := 0; i < 6; i++ {
		res = f.ball(t, 1)
	}
	if res.Snapshot.Status != engine.StatusInningsBreak {
		t.Fatalf("Status = %v, want %v", res.Snapshot.Status, engine.StatusInningsBreak)
	}

	if _, err := f.service.ApproveInningsTwo(ctx, f.matchID, f.guard("organizer-1")); err != nil {
		t.Fatalf("ApproveInningsTwo() error = %v", err)
	}

	second, err := f.service.StartInnings(ctx, f.matchID, f.guard("scorer-1"), StartInningsParams{
		StrikerID:    "b1",
		NonStrikerID: "b2",
		BowlerID:     "a1",
	})
	if err != nil {
		t.Fatalf("StartInnings(2) error = %v", err)
	}
	if second.Snapshot.Innings != 2 || second.Snapshot.Target != 7 {
		t.Fatalf("second innings = %d target %d, want innings 2 chasing 7", second.Snapshot.Innings, second.Snapshot.Target)
	}
	if second.Snapshot.BattingTeamID != "team-b" {
		t.Errorf("batting team = %s, want team-b", second.Snapshot.BattingTeamID)
	}

	// Chase: 6 then 1 wins by ten wickets.
	f.ball(t, 6)
	res = f.ball(t, 1)
	if res.Snapshot.Status != engine.StatusCompleted {
		t.Fatalf("Status = %v, want %v", res.Snapshot.Status, engine.StatusCompleted)
	}
	if res.Snapshot.Result == nil || res.Snapshot.Result.WinnerTeamID != "team-b" {
		t.Fatalf("Result = %+v, want team-b win", res.Snapshot.Result)
	}
	if res.Snapshot.Result.WinType != engine.WinByWickets || res.Snapshot.Result.Margin != 10 {
		t.Errorf("Result = %+v, want win by 10 wickets", res.Snapshot.Result)
	}
}

func TestUnlockCompletedIsAdminOnly(t *testing.T) {
	f := newFixture(t, continuousRules(1))
	f.startInnings(t)
	ctx := context.Background()

	if _, err := f.service.EndInnings(ctx, f.matchID, f.guard("organizer-1"), "rain"); err != nil {
		t.Fatalf("EndInnings() error = %v", err)
	}
	if _, err := f.service.ApproveInningsTwo(ctx, f.matchID, f.guard("organizer-1")); err != nil {
		t.Fatalf("ApproveInningsTwo() error = %v", err)
	}
	if _, err := f.service.StartInnings(ctx, f.matchID, f.guard("scorer-1"), StartInningsParams{
		StrikerID: "b1", NonStrikerID: "b2", BowlerID: "a1",
	}); err != nil {
		t.Fatalf("StartInnings(2) error = %v", err)
	}
	if _, err := f.service.EndMatch(ctx, f.matchID, f.guard("organizer-1"), "conceded"); err != nil {
		t.Fatalf("EndMatch() error = %v", err)
	}
	if _, err := f.service.LockMatch(ctx, f.matchID, f.guard("organizer-1")); err != nil {
		t.Fatalf("LockMatch() error = %v", err)
	}

	_, err := f.service.UnlockMatch(ctx, f.matchID, f.guard("organizer-1"))
	if apperrors.CodeOf(err) != apperrors.CodeUnlockAdminOnly {
		t.Fatalf("organizer unlock error = %v, want %s", err, apperrors.CodeUnlockAdminOnly)
	}

	res, err := f.service.UnlockMatch(ctx, f.matchID, f.guard("admin-1"))
	if err != nil {
		t.Fatalf("admin unlock error = %v", err)
	}
	if res.Snapshot.Locked {
		t.Error("match should be unlocked")
	}
}

func TestScoringBlockedWhileLocked(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	ctx := context.Background()

	if _, err := f.service.LockMatch(ctx, f.matchID, f.guard("organizer-1")); err != nil {
		t.Fatalf("LockMatch() error = %v", err)
	}
	_, err := f.service.RecordBall(ctx, f.matchID, f.guard("scorer-1"), 1)
	if apperrors.CodeOf(err) != apperrors.CodeMatchLocked {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeMatchLocked)
	}
	_, err = f.service.Undo(ctx, f.matchID, f.guard("scorer-1"), 0, "")
	if apperrors.CodeOf(err) != apperrors.CodeMatchLocked {
		t.Fatalf("undo error = %v, want %s", err, apperrors.CodeMatchLocked)
	}
}

func TestGetSnapshotView(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	f.ball(t, 4)

	view, err := f.service.GetSnapshot(context.Background(), f.matchID, "viewer-1")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if view.Snapshot.Runs != 4 {
		t.Errorf("Runs = %d, want 4", view.Snapshot.Runs)
	}
	if view.Allowed.CanScore {
		t.Error("viewer must not be offered scoring actions")
	}

	scorerView, err := f.service.GetSnapshot(context.Background(), f.matchID, "scorer-1")
	if err != nil {
		t.Fatalf("GetSnapshot(scorer) error = %v", err)
	}
	if !scorerView.Allowed.CanScore {
		t.Error("scorer should be offered scoring actions")
	}
}

func TestListEventsPage(t *testing.T) {
	f := newFixture(t, engine.DefaultRules(20))
	f.startInnings(t)
	f.ball(t, 1)
	f.ball(t, 2)

	events, err := f.service.ListEvents(context.Background(), f.matchID, 0, 10)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Type != event.TypeInningsStarted {
		t.Errorf("first event = %s, want %s", events[0].Type, event.TypeInningsStarted)
	}
}
