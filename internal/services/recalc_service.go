package services

import (
	"fmt"
	"time"
)

// RecalcService coordinates a rollback across the profile store and the
// submission journal. It keeps no state of its own; the two steps are not
// transactional, and a failure between them surfaces as ConsistencyGapError.
type RecalcService struct {
	journal  *JournalService
	profiles *ProfileService
}

func NewRecalcService(journal *JournalService, profiles *ProfileService) *RecalcService {
	return &RecalcService{journal: journal, profiles: profiles}
}

// RecalcResult reports what a rollback did.
type RecalcResult struct {
	RestoredDate string `json:"restored_date,omitempty"` // empty when reverted to baseline
	ResetCount   int    `json:"reset_count"`
}

// ResolveGroup finds the entity group for a student from their most recent
// journal record. Used when the operator does not supply one.
func (s *RecalcService) ResolveGroup(studentName, phoneSuffix string) (EntityGroup, error) {
	subs, err := s.journal.ListWhere(func(sub Submission) bool {
		return sub.StudentName == studentName && sub.PhoneSuffix == phoneSuffix && !sub.Group().IsZero()
	})
	if err != nil {
		return EntityGroup{}, err
	}
	if len(subs) == 0 {
		return EntityGroup{}, NewNotFoundError("no submissions recorded for student")
	}
	best := subs[0]
	bestAt, _ := time.Parse(time.RFC3339, best.SubmittedAt)
	for _, sub := range subs[1:] {
		at, err := time.Parse(time.RFC3339, sub.SubmittedAt)
		if err != nil {
			continue
		}
		if at.After(bestAt) {
			best, bestAt = sub, at
		}
	}
	return best.Group(), nil
}

// RecalculateFrom rolls a student's profile back to its state before
// cutoffDate and re-queues every affected journal record. When group is nil
// it is resolved from the student's most recent submission.
//
// The profile restore and the journal reset touch independent stores; if the
// reset fails after the restore succeeded the error is a *ConsistencyGapError
// carrying the restored snapshot date, so operators know the journal needs a
// manual pass.
func (s *RecalcService) RecalculateFrom(studentName, phoneSuffix string, group *EntityGroup, cutoffDate string) (*RecalcResult, error) {
	if studentName == "" {
		return nil, NewInvalidError("student_name is required")
	}
	if _, err := ParseDate(cutoffDate); err != nil {
		return nil, NewInvalidError("cutoff date must be YYYY-MM-DD")
	}

	g := EntityGroup{}
	if group != nil {
		g = *group
	}
	if g.IsZero() {
		resolved, err := s.ResolveGroup(studentName, phoneSuffix)
		if err != nil {
			return nil, err
		}
		g = resolved
	}

	key := ProfileKey{StudentID: StudentID(studentName, phoneSuffix), Group: g}
	restored, err := s.profiles.RestoreAndPurge(key, cutoffDate)
	if err != nil {
		return nil, fmt.Errorf("restore profile: %w", err)
	}

	count, err := s.journal.ResetToPendingWhere(func(sub Submission) bool {
		if sub.StudentName != studentName || sub.PhoneSuffix != phoneSuffix || sub.Group() != g {
			return false
		}
		d, ok := s.journal.LocalDateOf(sub.SubmittedAt)
		return ok && d >= cutoffDate
	})
	if err != nil {
		return nil, &ConsistencyGapError{RestoredDate: restored, Err: err}
	}
	return &RecalcResult{RestoredDate: restored, ResetCount: count}, nil
}

// EraseStudent permanently removes a student's journal records and every
// profile partition they accumulated. Groups are discovered from the journal
// before the records are deleted.
func (s *RecalcService) EraseStudent(studentName, phoneSuffix string) (int, error) {
	if studentName == "" {
		return 0, NewInvalidError("student_name is required")
	}
	subs, err := s.journal.ListWhere(func(sub Submission) bool {
		return sub.StudentName == studentName && sub.PhoneSuffix == phoneSuffix
	})
	if err != nil {
		return 0, err
	}
	groups := map[EntityGroup]bool{}
	for _, sub := range subs {
		if !sub.Group().IsZero() {
			groups[sub.Group()] = true
		}
	}

	removed, err := s.journal.DeleteWhere(func(sub Submission) bool {
		return sub.StudentName == studentName && sub.PhoneSuffix == phoneSuffix
	})
	if err != nil {
		return 0, err
	}
	sid := StudentID(studentName, phoneSuffix)
	for g := range groups {
		if err := s.profiles.DeleteAll(ProfileKey{StudentID: sid, Group: g}); err != nil {
			return removed, fmt.Errorf("erase profile %s: %w", g, err)
		}
	}
	return removed, nil
}
