package services

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProfileStore abstracts durable per-entity profile state: one current
// profile plus a chain of dated snapshots per (student, entity group).
// Load methods return (nil, nil) when the resource does not exist; delete
// methods are no-ops on absent resources.
type ProfileStore interface {
	LoadCurrent(key ProfileKey) (*Profile, error)
	SaveCurrent(key ProfileKey, p *Profile) error
	DeleteCurrent(key ProfileKey) error

	LoadSnapshot(key ProfileKey, date string) (*Profile, error)
	SaveSnapshot(key ProfileKey, date string, p *Profile) error
	DeleteSnapshot(key ProfileKey, date string) error
	ListSnapshotDates(key ProfileKey) ([]string, error)
}

// ProfileService owns profile state and its backup chain. Operations on one
// (student, entity group) key are serialized by a per-key mutex; different
// keys proceed independently.
type ProfileService struct {
	store ProfileStore
	loc   *time.Location

	// KeepOlderSnapshots preserves snapshots older than the one a rollback
	// restores. Off by default: the stock behavior keeps only the restored
	// snapshot and discards the rest of the chain.
	KeepOlderSnapshots bool

	mu    sync.Mutex
	locks map[ProfileKey]*sync.Mutex
}

func NewProfileService(store ProfileStore, loc *time.Location) *ProfileService {
	if loc == nil {
		loc = time.Local
	}
	return &ProfileService{
		store: store,
		loc:   loc,
		locks: map[ProfileKey]*sync.Mutex{},
	}
}

func (s *ProfileService) keyLock(key ProfileKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetOrCreateTodaysSnapshot returns today's snapshot for key, creating it
// from the current profile (or the baseline when none exists) on the day's
// first call. Later calls the same day return the stored snapshot unchanged;
// this is the only path that creates snapshots.
func (s *ProfileService) GetOrCreateTodaysSnapshot(key ProfileKey, today time.Time) (*Profile, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	date := today.In(s.loc).Format(DateLayout)
	snap, err := s.store.LoadSnapshot(key, date)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", date, err)
	}
	if snap != nil {
		return snap.Clone(), nil
	}

	current, err := s.store.LoadCurrent(key)
	if err != nil {
		return nil, fmt.Errorf("load current profile: %w", err)
	}
	if current == nil {
		current = BaselineProfile()
	}
	if err := s.store.SaveSnapshot(key, date, current); err != nil {
		return nil, fmt.Errorf("save snapshot %s: %w", date, err)
	}
	return current.Clone(), nil
}

// GetCurrent returns the current profile, or the baseline when none exists.
// The second result reports whether a stored profile was found.
func (s *ProfileService) GetCurrent(key ProfileKey) (*Profile, bool, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	current, err := s.store.LoadCurrent(key)
	if err != nil {
		return nil, false, fmt.Errorf("load current profile: %w", err)
	}
	if current == nil {
		return BaselineProfile(), false, nil
	}
	return current.Clone(), true, nil
}

// CommitCurrent overwrites the current profile unconditionally. Snapshots are
// never touched here. Unknown dimensions are rejected before any write.
func (s *ProfileService) CommitCurrent(key ProfileKey, p *Profile, now time.Time) error {
	if p == nil || len(p.Scores) == 0 {
		return NewInvalidError("profile scores are required")
	}
	known := make(map[string]bool, len(ProfileDimensions))
	for _, d := range ProfileDimensions {
		known[d] = true
	}
	for dim := range p.Scores {
		if !known[dim] {
			return NewInvalidError("unknown profile dimension: " + dim)
		}
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	stored := p.Clone()
	stored.UpdatedAt = now.In(s.loc).Format(time.RFC3339)
	if err := s.store.SaveCurrent(key, stored); err != nil {
		return fmt.Errorf("save current profile: %w", err)
	}
	return nil
}

// ListSnapshotsDescending returns all snapshot dates for key, newest first.
func (s *ProfileService) ListSnapshotsDescending(key ProfileKey) ([]string, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	dates, err := s.store.ListSnapshotDates(key)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// RestoreAndPurge rolls the profile back to the newest snapshot dated
// strictly before cutoffDate and returns that date. Every other snapshot is
// deleted, including ones older than the restored snapshot, unless
// KeepOlderSnapshots is set. When no snapshot predates the cutoff, the
// current profile and all snapshots are deleted (next read reverts to the
// baseline) and the returned date is empty.
func (s *ProfileService) RestoreAndPurge(key ProfileKey, cutoffDate string) (string, error) {
	if _, err := ParseDate(cutoffDate); err != nil {
		return "", NewInvalidError("cutoff date must be YYYY-MM-DD")
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	dates, err := s.store.ListSnapshotDates(key)
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}
	sort.Strings(dates)

	chosen := ""
	for _, d := range dates {
		if d < cutoffDate {
			chosen = d // dates are sorted ascending, so this ends on the newest
		}
	}

	if chosen == "" {
		if err := s.store.DeleteCurrent(key); err != nil {
			return "", fmt.Errorf("delete current profile: %w", err)
		}
		for _, d := range dates {
			if err := s.store.DeleteSnapshot(key, d); err != nil {
				return "", fmt.Errorf("delete snapshot %s: %w", d, err)
			}
		}
		return "", nil
	}

	snap, err := s.store.LoadSnapshot(key, chosen)
	if err != nil {
		return "", fmt.Errorf("load snapshot %s: %w", chosen, err)
	}
	if snap == nil {
		return "", NewNotFoundError("snapshot vanished: " + chosen)
	}
	if err := s.store.SaveCurrent(key, snap); err != nil {
		return "", fmt.Errorf("restore current profile: %w", err)
	}
	for _, d := range dates {
		if d == chosen {
			continue
		}
		if s.KeepOlderSnapshots && d < chosen {
			continue
		}
		if err := s.store.DeleteSnapshot(key, d); err != nil {
			return "", fmt.Errorf("delete snapshot %s: %w", d, err)
		}
	}
	return chosen, nil
}

// DeleteAll removes the current profile and every snapshot for key.
func (s *ProfileService) DeleteAll(key ProfileKey) error {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := s.store.DeleteCurrent(key); err != nil {
		return fmt.Errorf("delete current profile: %w", err)
	}
	dates, err := s.store.ListSnapshotDates(key)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for _, d := range dates {
		if err := s.store.DeleteSnapshot(key, d); err != nil {
			return fmt.Errorf("delete snapshot %s: %w", d, err)
		}
	}
	return nil
}
