package services

import (
	"testing"
	"time"
)

// Full two-day lifecycle: ingest, score, re-ingest same day, score again,
// ingest next day, then roll back to the start of day 2.
func TestRollbackScenarioEndToEnd(t *testing.T) {
	jstore := &stubJournalStore{}
	pstore := newStubProfileStore()

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, kst)
	day2 := day1.Add(24 * time.Hour)

	journal := newTestJournal(jstore, day1)
	profiles := NewProfileService(pstore, kst)
	recalc := NewRecalcService(journal, profiles)
	key := testKey()

	// day 1: first submission
	id1, err := journal.Upsert(sampleSubmission())
	if err != nil {
		t.Fatalf("day1 submit: %v", err)
	}
	if id1 != 1 {
		t.Fatalf("expected id 1, got %d", id1)
	}

	// scorer claims the work: snapshot is created from the baseline
	snap, err := profiles.GetOrCreateTodaysSnapshot(key, day1)
	if err != nil {
		t.Fatalf("day1 snapshot: %v", err)
	}
	if snap.Scores["grammar"] != BaselineScore {
		t.Fatalf("first snapshot must be the baseline, got %v", snap.Scores)
	}
	if _, err := journal.MarkProcessed([]int{id1}, day1.Add(time.Hour)); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	p1 := &Profile{Scores: scoresOf(60)}
	if err := profiles.CommitCurrent(key, p1, day1.Add(time.Hour)); err != nil {
		t.Fatalf("commit P1: %v", err)
	}

	// same day, corrected answers: same id, back to pending
	journal.now = func() time.Time { return day1.Add(3 * time.Hour) }
	again := sampleSubmission()
	again.Answers = map[string]any{"q1": "corrected"}
	idAgain, err := journal.Upsert(again)
	if err != nil {
		t.Fatalf("day1 resubmit: %v", err)
	}
	if idAgain != id1 {
		t.Fatalf("resubmission must reuse id %d, got %d", id1, idAgain)
	}
	if jstore.subs[0].Status != StatusPending {
		t.Fatal("resubmission must trigger rework")
	}

	// scorer reruns: same-day snapshot is reused, not recreated
	snapAgain, err := profiles.GetOrCreateTodaysSnapshot(key, day1.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("day1 second snapshot: %v", err)
	}
	if snapAgain.Scores["grammar"] != BaselineScore {
		t.Fatalf("day1 snapshot must still hold pre-run state, got %v", snapAgain.Scores)
	}
	p1p := &Profile{Scores: scoresOf(65)}
	if err := profiles.CommitCurrent(key, p1p, day1.Add(4*time.Hour)); err != nil {
		t.Fatalf("commit P1': %v", err)
	}
	if _, err := journal.MarkProcessed([]int{id1}, day1.Add(4*time.Hour)); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	// day 2: new submission, new id
	journal.now = func() time.Time { return day2 }
	id2, err := journal.Upsert(sampleSubmission())
	if err != nil {
		t.Fatalf("day2 submit: %v", err)
	}
	if id2 != 2 {
		t.Fatalf("expected id 2, got %d", id2)
	}
	if _, err := profiles.GetOrCreateTodaysSnapshot(key, day2); err != nil {
		t.Fatalf("day2 snapshot: %v", err)
	}
	if err := profiles.CommitCurrent(key, &Profile{Scores: scoresOf(70)}, day2.Add(time.Hour)); err != nil {
		t.Fatalf("commit P2: %v", err)
	}
	if _, err := journal.MarkProcessed([]int{id2}, day2.Add(time.Hour)); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	// rollback with cutoff = day 2
	res, err := recalc.RecalculateFrom("Kim", "1234", nil, day2.Format(DateLayout))
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if res.RestoredDate != day1.Format(DateLayout) {
		t.Fatalf("expected restore to day-1 snapshot, got %q", res.RestoredDate)
	}
	if res.ResetCount != 1 {
		t.Fatalf("expected only the day-2 record reset, got %d", res.ResetCount)
	}

	// current profile equals the day-1 snapshot (pre-run state of day 1)
	current, stored, err := profiles.GetCurrent(key)
	if err != nil || !stored {
		t.Fatalf("get current: stored=%v err=%v", stored, err)
	}
	if current.Scores["grammar"] != BaselineScore {
		t.Fatalf("profile must match the day-1 snapshot, got %v", current.Scores)
	}

	// day-1 snapshot retained, day-2 snapshot purged
	dates, err := profiles.ListSnapshotsDescending(key)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(dates) != 1 || dates[0] != day1.Format(DateLayout) {
		t.Fatalf("expected only the day-1 snapshot, got %v", dates)
	}

	// record 1 untouched, record 2 pending again
	byID := map[int]Submission{}
	for _, sub := range jstore.subs {
		byID[sub.ID] = sub
	}
	if byID[id1].Status != StatusProcessed {
		t.Fatalf("day-1 record must be untouched: %+v", byID[id1])
	}
	if byID[id2].Status != StatusPending || byID[id2].ProcessedAt != "" {
		t.Fatalf("day-2 record must be pending: %+v", byID[id2])
	}
}
