package services

import (
	"testing"
	"time"
)

type stubProfileStore struct {
	current map[ProfileKey]*Profile
	snaps   map[ProfileKey]map[string]*Profile
}

func newStubProfileStore() *stubProfileStore {
	return &stubProfileStore{
		current: map[ProfileKey]*Profile{},
		snaps:   map[ProfileKey]map[string]*Profile{},
	}
}

func (s *stubProfileStore) LoadCurrent(key ProfileKey) (*Profile, error) {
	return s.current[key].Clone(), nil
}

func (s *stubProfileStore) SaveCurrent(key ProfileKey, p *Profile) error {
	s.current[key] = p.Clone()
	return nil
}

func (s *stubProfileStore) DeleteCurrent(key ProfileKey) error {
	delete(s.current, key)
	return nil
}

func (s *stubProfileStore) LoadSnapshot(key ProfileKey, date string) (*Profile, error) {
	return s.snaps[key][date].Clone(), nil
}

func (s *stubProfileStore) SaveSnapshot(key ProfileKey, date string, p *Profile) error {
	if s.snaps[key] == nil {
		s.snaps[key] = map[string]*Profile{}
	}
	s.snaps[key][date] = p.Clone()
	return nil
}

func (s *stubProfileStore) DeleteSnapshot(key ProfileKey, date string) error {
	delete(s.snaps[key], date)
	return nil
}

func (s *stubProfileStore) ListSnapshotDates(key ProfileKey) ([]string, error) {
	dates := []string{}
	for d := range s.snaps[key] {
		dates = append(dates, d)
	}
	return dates, nil
}

func testKey() ProfileKey {
	return ProfileKey{
		StudentID: StudentID("Kim", "1234"),
		Group:     EntityGroup{Subject: "english", Series: "intensive-a"},
	}
}

func scoresOf(v float64) map[string]float64 {
	m := map[string]float64{}
	for _, d := range ProfileDimensions {
		m[d] = v
	}
	return m
}

func TestSnapshotBaselineDefault(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	today := time.Date(2025, 3, 10, 9, 0, 0, 0, kst)

	p, err := svc.GetOrCreateTodaysSnapshot(testKey(), today)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(p.Scores) != len(ProfileDimensions) {
		t.Fatalf("expected %d dimensions, got %d", len(ProfileDimensions), len(p.Scores))
	}
	for _, d := range ProfileDimensions {
		if p.Scores[d] != BaselineScore {
			t.Fatalf("dimension %s: expected baseline %v, got %v", d, BaselineScore, p.Scores[d])
		}
	}
}

func TestSnapshotIdempotentPerDay(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	key := testKey()
	today := time.Date(2025, 3, 10, 9, 0, 0, 0, kst)

	first, err := svc.GetOrCreateTodaysSnapshot(key, today)
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	// a commit between the two calls must not leak into today's snapshot
	if err := svc.CommitCurrent(key, &Profile{Scores: scoresOf(70)}, today.Add(time.Hour)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	second, err := svc.GetOrCreateTodaysSnapshot(key, today.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	for _, d := range ProfileDimensions {
		if first.Scores[d] != second.Scores[d] {
			t.Fatalf("snapshot changed within one day: %v vs %v", first.Scores, second.Scores)
		}
	}
	if len(store.snaps[key]) != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", len(store.snaps[key]))
	}
}

func TestCommitCurrentRejectsUnknownDimension(t *testing.T) {
	svc := NewProfileService(newStubProfileStore(), kst)
	err := svc.CommitCurrent(testKey(), &Profile{Scores: map[string]float64{"charisma": 99}}, time.Now())
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRestoreAndPurgeKeepsOnlyChosenSnapshot(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	key := testKey()

	d1, d2, d3 := "2025-03-01", "2025-03-05", "2025-03-09"
	_ = store.SaveSnapshot(key, d1, &Profile{Scores: scoresOf(51)})
	_ = store.SaveSnapshot(key, d2, &Profile{Scores: scoresOf(62)})
	_ = store.SaveSnapshot(key, d3, &Profile{Scores: scoresOf(73)})
	_ = store.SaveCurrent(key, &Profile{Scores: scoresOf(80)})

	// cutoff falls between d2 and d3
	restored, err := svc.RestoreAndPurge(key, "2025-03-07")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != d2 {
		t.Fatalf("expected restore to %s, got %s", d2, restored)
	}
	if store.current[key].Scores["grammar"] != 62 {
		t.Fatalf("current profile not restored to d2 content: %v", store.current[key].Scores)
	}
	dates, _ := store.ListSnapshotDates(key)
	if len(dates) != 1 || dates[0] != d2 {
		t.Fatalf("expected only %s to survive, got %v", d2, dates)
	}
}

func TestRestoreAndPurgeNoEarlierSnapshot(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	key := testKey()

	_ = store.SaveSnapshot(key, "2025-03-05", &Profile{Scores: scoresOf(62)})
	_ = store.SaveCurrent(key, &Profile{Scores: scoresOf(80)})

	restored, err := svc.RestoreAndPurge(key, "2025-03-01")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != "" {
		t.Fatalf("expected baseline revert, got restore to %s", restored)
	}
	if store.current[key] != nil {
		t.Fatalf("current profile must be deleted")
	}
	dates, _ := store.ListSnapshotDates(key)
	if len(dates) != 0 {
		t.Fatalf("all snapshots must be deleted, got %v", dates)
	}

	// next read reverts to baseline
	p, stored, err := svc.GetCurrent(key)
	if err != nil || stored {
		t.Fatalf("expected synthesized baseline, stored=%v err=%v", stored, err)
	}
	if p.Scores["reading"] != BaselineScore {
		t.Fatalf("expected baseline scores, got %v", p.Scores)
	}
}

func TestRestoreAndPurgeKeepOlderSnapshotsOption(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	svc.KeepOlderSnapshots = true
	key := testKey()

	_ = store.SaveSnapshot(key, "2025-03-01", &Profile{Scores: scoresOf(51)})
	_ = store.SaveSnapshot(key, "2025-03-05", &Profile{Scores: scoresOf(62)})
	_ = store.SaveSnapshot(key, "2025-03-09", &Profile{Scores: scoresOf(73)})

	restored, err := svc.RestoreAndPurge(key, "2025-03-07")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != "2025-03-05" {
		t.Fatalf("expected restore to 2025-03-05, got %s", restored)
	}
	dates, _ := svc.ListSnapshotsDescending(key)
	if len(dates) != 2 || dates[0] != "2025-03-05" || dates[1] != "2025-03-01" {
		t.Fatalf("expected older snapshot preserved, got %v", dates)
	}
}

func TestRestoreAndPurgeRejectsBadCutoff(t *testing.T) {
	svc := NewProfileService(newStubProfileStore(), kst)
	_, err := svc.RestoreAndPurge(testKey(), "07-03-2025")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAllRemovesEverything(t *testing.T) {
	store := newStubProfileStore()
	svc := NewProfileService(store, kst)
	key := testKey()
	_ = store.SaveCurrent(key, &Profile{Scores: scoresOf(70)})
	_ = store.SaveSnapshot(key, "2025-03-01", &Profile{Scores: scoresOf(51)})

	if err := svc.DeleteAll(key); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if store.current[key] != nil {
		t.Fatal("current profile survived DeleteAll")
	}
	if dates, _ := store.ListSnapshotDates(key); len(dates) != 0 {
		t.Fatalf("snapshots survived DeleteAll: %v", dates)
	}
}
