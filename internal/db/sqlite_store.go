package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studylogkr/formtrack/internal/services"
)

// SQLiteStore is the embedded-database backing medium. Records are stored as
// JSON documents keyed for lookup; each store operation keeps the same
// full-replace semantics as the file store (journal and form saves rewrite
// their whole table in one transaction).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(sqlDB *sql.DB) (*SQLiteStore, error) {
	if sqlDB == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := sqlDB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

func profileKeyString(key services.ProfileKey) string {
	return key.StudentID + "|" + key.Group.String()
}

func (s *SQLiteStore) LoadJournal() ([]services.Submission, error) {
	rows, err := s.db.Query("SELECT doc FROM submissions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()
	subs := []services.Submission{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sub services.Submission
		if err := json.Unmarshal([]byte(doc), &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) SaveJournal(subs []services.Submission) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM submissions"); err != nil {
		return err
	}
	for _, sub := range subs {
		doc, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO submissions (id, doc) VALUES (?, ?)", sub.ID, string(doc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadForms() ([]services.Form, error) {
	rows, err := s.db.Query("SELECT doc FROM forms ORDER BY form_id")
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()
	forms := []services.Form{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var f services.Form
		if err := json.Unmarshal([]byte(doc), &f); err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

func (s *SQLiteStore) SaveForms(forms []services.Form) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM forms"); err != nil {
		return err
	}
	for _, f := range forms {
		doc, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO forms (form_id, doc) VALUES (?, ?)", f.ID, string(doc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) loadProfileDoc(query, key string, args ...any) (*services.Profile, error) {
	full := append([]any{key}, args...)
	var doc string
	err := s.db.QueryRow(query, full...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p services.Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) LoadCurrent(key services.ProfileKey) (*services.Profile, error) {
	return s.loadProfileDoc("SELECT doc FROM profiles WHERE profile_key = ?", profileKeyString(key))
}

func (s *SQLiteStore) SaveCurrent(key services.ProfileKey, p *services.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO profiles (profile_key, doc) VALUES (?, ?) ON CONFLICT(profile_key) DO UPDATE SET doc = excluded.doc",
		profileKeyString(key), string(doc))
	return err
}

func (s *SQLiteStore) DeleteCurrent(key services.ProfileKey) error {
	_, err := s.db.Exec("DELETE FROM profiles WHERE profile_key = ?", profileKeyString(key))
	return err
}

func (s *SQLiteStore) LoadSnapshot(key services.ProfileKey, date string) (*services.Profile, error) {
	return s.loadProfileDoc("SELECT doc FROM snapshots WHERE profile_key = ? AND snap_date = ?", profileKeyString(key), date)
}

func (s *SQLiteStore) SaveSnapshot(key services.ProfileKey, date string, p *services.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO snapshots (profile_key, snap_date, doc) VALUES (?, ?, ?) ON CONFLICT(profile_key, snap_date) DO UPDATE SET doc = excluded.doc",
		profileKeyString(key), date, string(doc))
	return err
}

func (s *SQLiteStore) DeleteSnapshot(key services.ProfileKey, date string) error {
	_, err := s.db.Exec("DELETE FROM snapshots WHERE profile_key = ? AND snap_date = ?", profileKeyString(key), date)
	return err
}

func (s *SQLiteStore) ListSnapshotDates(key services.ProfileKey) ([]string, error) {
	rows, err := s.db.Query("SELECT snap_date FROM snapshots WHERE profile_key = ? ORDER BY snap_date", profileKeyString(key))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// interface conformance
var (
	_ services.JournalStore = (*SQLiteStore)(nil)
	_ services.ProfileStore = (*SQLiteStore)(nil)
	_ services.FormStore    = (*SQLiteStore)(nil)
	_ services.JournalStore = (*FileStore)(nil)
	_ services.ProfileStore = (*FileStore)(nil)
	_ services.FormStore    = (*FileStore)(nil)
)
