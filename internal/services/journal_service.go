package services

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// JournalStore abstracts the shared submission journal as one replaceable
// document: every mutation loads the full record set and saves it back.
type JournalStore interface {
	LoadJournal() ([]Submission, error)
	SaveJournal([]Submission) error
}

// JournalService owns the submission journal: idempotent ingestion, status
// transitions and queries. All mutations run under one mutex so overlapping
// read-modify-write cycles cannot lose records.
type JournalService struct {
	mu    sync.Mutex
	store JournalStore
	loc   *time.Location
	now   func() time.Time
}

func NewJournalService(store JournalStore, loc *time.Location) *JournalService {
	if loc == nil {
		loc = time.Local
	}
	return &JournalService{
		store: store,
		loc:   loc,
		now:   func() time.Time { return time.Now() },
	}
}

// naturalKeyMatch reports whether existing collides with the inbound record
// on (local calendar date, student, phone suffix, form). Records whose stored
// timestamp no longer parses are treated as non-colliding.
func (s *JournalService) naturalKeyMatch(existing Submission, in Submission, localDate string) bool {
	if existing.StudentName != in.StudentName ||
		existing.PhoneSuffix != in.PhoneSuffix ||
		existing.FormID != in.FormID {
		return false
	}
	d, ok := LocalDate(existing.SubmittedAt, s.loc)
	if !ok {
		return false
	}
	return d == localDate
}

// Upsert ingests a submission. A second submission with the same natural key
// on the same calendar day overwrites the earlier record in place, keeps its
// id and resets it to pending; otherwise a new id (max+1) is assigned.
// Returns the id of the stored record.
func (s *JournalService) Upsert(in Submission) (int, error) {
	if in.StudentName == "" || in.FormID == "" {
		return 0, NewInvalidError("student_name and form_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	now := s.now().In(s.loc)
	in.SubmittedAt = now.Format(time.RFC3339)
	in.Status = StatusPending
	in.ProcessedAt = ""
	localDate := now.Format(DateLayout)

	maxID := 0
	matched := -1
	for i, sub := range subs {
		if sub.ID > maxID {
			maxID = sub.ID
		}
		if matched < 0 && s.naturalKeyMatch(sub, in, localDate) {
			matched = i
		}
	}

	if matched >= 0 {
		in.ID = subs[matched].ID
		subs[matched] = in
	} else {
		in.ID = maxID + 1
		subs = append(subs, in)
	}

	if err := s.store.SaveJournal(subs); err != nil {
		return 0, fmt.Errorf("save journal: %w", err)
	}
	return in.ID, nil
}

// ListByStatus returns records with the given status ordered by submission
// time ascending. Records with unparsable timestamps sort first, in their
// stored order.
func (s *JournalService) ListByStatus(status string) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	out := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == status {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339, out[i].SubmittedAt)
		tj, _ := time.Parse(time.RFC3339, out[j].SubmittedAt)
		return ti.Before(tj)
	})
	return out, nil
}

// ListAll returns every journal record in stored order.
func (s *JournalService) ListAll() ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.store.LoadJournal()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return subs, nil
}

// ListWhere returns records matching pred in stored order.
func (s *JournalService) ListWhere(pred func(Submission) bool) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.store.LoadJournal()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	out := []Submission{}
	for _, sub := range subs {
		if pred(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// MarkProcessed flips every record whose id is in ids to processed and stamps
// processed_at. Unknown ids are ignored; the scorer may legitimately report
// ids an operator has deleted in the meantime. Returns how many records
// actually changed.
func (s *JournalService) MarkProcessed(ids []int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	changed := 0
	stamp := now.In(s.loc).Format(time.RFC3339)
	for i := range subs {
		if want[subs[i].ID] {
			subs[i].Status = StatusProcessed
			subs[i].ProcessedAt = stamp
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.store.SaveJournal(subs); err != nil {
		return 0, fmt.Errorf("save journal: %w", err)
	}
	return changed, nil
}

// ResetToPending re-queues one record for scoring. Fails with NotFound when
// the id does not exist.
func (s *JournalService) ResetToPending(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	found := false
	for i := range subs {
		if subs[i].ID == id {
			subs[i].Status = StatusPending
			subs[i].ProcessedAt = ""
			found = true
			break
		}
	}
	if !found {
		return NewNotFoundError("submission not found")
	}
	if err := s.store.SaveJournal(subs); err != nil {
		return fmt.Errorf("save journal: %w", err)
	}
	return nil
}

// ResetToPendingWhere re-queues every record matching pred and returns how
// many were reset. No match is not an error.
func (s *JournalService) ResetToPendingWhere(pred func(Submission) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	count := 0
	for i := range subs {
		if pred(subs[i]) {
			subs[i].Status = StatusPending
			subs[i].ProcessedAt = ""
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.store.SaveJournal(subs); err != nil {
		return 0, fmt.Errorf("save journal: %w", err)
	}
	return count, nil
}

// Delete removes one record permanently. Fails with NotFound when absent.
func (s *JournalService) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	kept := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.ID != id {
			kept = append(kept, sub)
		}
	}
	if len(kept) == len(subs) {
		return NewNotFoundError("submission not found")
	}
	if err := s.store.SaveJournal(kept); err != nil {
		return fmt.Errorf("save journal: %w", err)
	}
	return nil
}

// DeleteWhere removes every record matching pred and returns how many were
// removed. Used by student-data erasure.
func (s *JournalService) DeleteWhere(pred func(Submission) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.LoadJournal()
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	kept := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if !pred(sub) {
			kept = append(kept, sub)
		}
	}
	removed := len(subs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.SaveJournal(kept); err != nil {
		return 0, fmt.Errorf("save journal: %w", err)
	}
	return removed, nil
}

// LocalDateOf exposes the journal's timezone-aware date derivation so
// callers building predicates share one definition of "local date".
func (s *JournalService) LocalDateOf(ts string) (string, bool) {
	return LocalDate(ts, s.loc)
}
