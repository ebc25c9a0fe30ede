package services

import (
	"errors"
	"fmt"
	"time"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorStorage      ErrorCode = "storage"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ConsistencyGapError reports a rollback that restored the profile store but
// failed before the journal could be reset. The two stores disagree until an
// operator re-runs the reset, so it must never be reported as a clean failure.
type ConsistencyGapError struct {
	RestoredDate string // snapshot date the profile was restored to; empty if reverted to baseline
	Err          error
}

func (e *ConsistencyGapError) Error() string {
	return fmt.Sprintf("profile restored but journal reset failed: %v", e.Err)
}

func (e *ConsistencyGapError) Unwrap() error { return e.Err }

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

// EntityGroup scopes which profile a submission's scoring belongs to.
type EntityGroup struct {
	Subject string `json:"subject"`
	Series  string `json:"series"`
}

func (g EntityGroup) String() string { return g.Subject + "/" + g.Series }

func (g EntityGroup) IsZero() bool { return g.Subject == "" && g.Series == "" }

// Submission is one graded or ungraded form submission. SubmittedAt and
// ProcessedAt are kept as RFC3339 strings; legacy records may carry values
// that no longer parse and the journal must tolerate them.
type Submission struct {
	ID          int            `json:"id"`
	StudentName string         `json:"student_name"`
	PhoneSuffix string         `json:"phone_suffix"`
	FormID      string         `json:"form_id"`
	Subject     string         `json:"subject"`
	Series      string         `json:"series"`
	Answers     map[string]any `json:"answers,omitempty"`
	Status      string         `json:"status"`
	SubmittedAt string         `json:"submitted_at"`
	ProcessedAt string         `json:"processed_at,omitempty"`
}

func (s Submission) Group() EntityGroup { return EntityGroup{Subject: s.Subject, Series: s.Series} }

// StudentID composes the identity used to partition profile state.
func StudentID(name, phoneSuffix string) string { return name + "-" + phoneSuffix }

// ProfileKey addresses one (student, entity group) profile partition.
type ProfileKey struct {
	StudentID string
	Group     EntityGroup
}

// ProfileDimensions is the fixed set of skill dimensions every profile carries.
var ProfileDimensions = []string{"vocabulary", "grammar", "reading", "listening", "writing"}

// BaselineScore is the score every dimension starts at when no profile exists.
const BaselineScore = 50.0

// Profile is a mutable skill-score mapping for one (student, entity group) pair.
type Profile struct {
	Scores    map[string]float64 `json:"scores"`
	UpdatedAt string             `json:"updated_at,omitempty"`
}

// BaselineProfile returns a fresh profile with every dimension at the baseline.
func BaselineProfile() *Profile {
	scores := make(map[string]float64, len(ProfileDimensions))
	for _, d := range ProfileDimensions {
		scores[d] = BaselineScore
	}
	return &Profile{Scores: scores}
}

// Clone deep-copies a profile so callers never share score maps with a store.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	scores := make(map[string]float64, len(p.Scores))
	for k, v := range p.Scores {
		scores[k] = v
	}
	return &Profile{Scores: scores, UpdatedAt: p.UpdatedAt}
}

// Form is a stored form definition. Schema is kept opaque; only the id and
// display name matter to this service.
type Form struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
}

// DateLayout is the calendar-date form used for natural keys, snapshot names
// and rollback cutoffs.
const DateLayout = "2006-01-02"

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// LocalDate derives the calendar date of an RFC3339 timestamp in loc.
// ok is false when the timestamp does not parse.
func LocalDate(ts string, loc *time.Location) (string, bool) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", false
	}
	return t.In(loc).Format(DateLayout), true
}
