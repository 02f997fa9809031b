// Package replay rebuilds innings snapshots from the full event history,
// honoring undo voids and edit overrides.
package replay

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// Rebuild reconstructs the snapshot for one innings from scratch.
//
// The event list is the innings' complete history, including event.undone and
// event.edited revisions. A single scan collects the voided sequences and
// edit overrides, then the transition function is folded over the remaining
// events in sequence order: voided events are skipped, overridden events are
// folded with their replacement payload, and revision events themselves are
// never folded. The returned snapshot's version is pinned to the highest
// sequence in the list, so the version always reflects the most recent
// acknowledged mutation rather than the last surviving scoring event.
func Rebuild(events []event.Event, cfg engine.Config) (engine.Snapshot, error) {
	if len(events) == 0 {
		return engine.Snapshot{}, apperrors.New(apperrors.CodeLogCorrupt, "cannot rebuild an innings with no events")
	}

	ordered := append([]event.Event(nil), events...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	voided := make(map[uint64]struct{})
	overrides := make(map[uint64][]byte)
	for _, evt := range ordered {
		switch evt.Type {
		case event.TypeEventUndone:
			voided[evt.TargetSeq] = struct{}{}
		case event.TypeEventEdited:
			var payload event.EditedPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return engine.Snapshot{}, apperrors.Wrap(apperrors.CodeLogCorrupt,
					fmt.Sprintf("decode edit payload at seq %d", evt.Seq), err)
			}
			overrides[evt.TargetSeq] = payload.Replacement
		}
	}

	var snap engine.Snapshot
	started := false
	for _, evt := range ordered {
		if evt.Type == event.TypeInningsStarted {
			if started {
				return engine.Snapshot{}, apperrors.New(apperrors.CodeLogCorrupt,
					fmt.Sprintf("duplicate innings.started at seq %d", evt.Seq))
			}
			built, err := engine.NewSnapshot(evt, cfg.Rules)
			if err != nil {
				return engine.Snapshot{}, err
			}
			snap = built
			started = true
			continue
		}
		if evt.Type.IsRevision() {
			continue
		}
		if _, skip := voided[evt.Seq]; skip {
			continue
		}
		if !started {
			return engine.Snapshot{}, apperrors.New(apperrors.CodeLogCorrupt,
				fmt.Sprintf("event at seq %d precedes innings.started", evt.Seq))
		}

		effective := evt
		if replacement, ok := overrides[evt.Seq]; ok {
			effective.PayloadJSON = replacement
		}

		// A revision can orphan later events (a batter pick after its wicket
		// was voided). Such events no longer validate against the rebuilt
		// state and are skipped rather than folded blindly.
		if err := engine.Validate(snap, effective, cfg); err != nil {
			continue
		}
		snap = engine.Fold(snap, effective)
	}

	if !started {
		return engine.Snapshot{}, apperrors.New(apperrors.CodeLogCorrupt, "innings.started event is missing")
	}

	snap.Version = ordered[len(ordered)-1].Seq
	return snap, nil
}

// VoidedSequences returns the set of sequences voided by undo events, for
// callers that need to filter a history without a full rebuild.
func VoidedSequences(events []event.Event) map[uint64]struct{} {
	voided := make(map[uint64]struct{})
	for _, evt := range events {
		if evt.Type == event.TypeEventUndone {
			voided[evt.TargetSeq] = struct{}{}
		}
	}
	return voided
}
