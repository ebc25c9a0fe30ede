package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/studylogkr/formtrack/internal/services"
)

const (
	journalFile  = "submissions.json"
	formsFile    = "forms.json"
	profilesDir  = "profiles"
	currentFile  = "current.json"
	backupPrefix = "backup_"
	backupSuffix = ".json"
	keySeparator = "__"
)

// FileStore persists every resource as a flat JSON document under one data
// directory, mirroring the legacy layout:
//
//	submissions.json
//	forms.json
//	profiles/<student>__<group>/current.json
//	profiles/<student>__<group>/backup_YYYY-MM-DD.json
//
// Each save replaces the whole document via write-temp-then-rename, so a
// failed write never leaves a half-written resource behind.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, profilesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// escapeKey percent-encodes anything path-unsafe, including the underscore,
// so the "__" partition separator can never occur inside an escaped part.
func escapeKey(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "_", "%5F")
}

func unescapeKey(s string) (string, error) {
	return url.PathUnescape(s)
}

func (fs *FileStore) profileDir(key services.ProfileKey) string {
	name := escapeKey(key.StudentID) + keySeparator + escapeKey(key.Group.String())
	return filepath.Join(fs.dir, profilesDir, name)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func (fs *FileStore) LoadJournal() ([]services.Submission, error) {
	var subs []services.Submission
	if _, err := readJSON(filepath.Join(fs.dir, journalFile), &subs); err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []services.Submission{}
	}
	return subs, nil
}

func (fs *FileStore) SaveJournal(subs []services.Submission) error {
	return writeJSONAtomic(filepath.Join(fs.dir, journalFile), subs)
}

func (fs *FileStore) LoadForms() ([]services.Form, error) {
	var forms []services.Form
	if _, err := readJSON(filepath.Join(fs.dir, formsFile), &forms); err != nil {
		return nil, err
	}
	if forms == nil {
		forms = []services.Form{}
	}
	return forms, nil
}

func (fs *FileStore) SaveForms(forms []services.Form) error {
	return writeJSONAtomic(filepath.Join(fs.dir, formsFile), forms)
}

func (fs *FileStore) LoadCurrent(key services.ProfileKey) (*services.Profile, error) {
	var p services.Profile
	ok, err := readJSON(filepath.Join(fs.profileDir(key), currentFile), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (fs *FileStore) SaveCurrent(key services.ProfileKey, p *services.Profile) error {
	dir := fs.profileDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, currentFile), p)
}

func (fs *FileStore) DeleteCurrent(key services.ProfileKey) error {
	err := os.Remove(filepath.Join(fs.profileDir(key), currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func backupName(date string) string { return backupPrefix + date + backupSuffix }

func (fs *FileStore) LoadSnapshot(key services.ProfileKey, date string) (*services.Profile, error) {
	var p services.Profile
	ok, err := readJSON(filepath.Join(fs.profileDir(key), backupName(date)), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (fs *FileStore) SaveSnapshot(key services.ProfileKey, date string, p *services.Profile) error {
	dir := fs.profileDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, backupName(date)), p)
}

func (fs *FileStore) DeleteSnapshot(key services.ProfileKey, date string) error {
	err := os.Remove(filepath.Join(fs.profileDir(key), backupName(date)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (fs *FileStore) ListSnapshotDates(key services.ProfileKey) ([]string, error) {
	entries, err := os.ReadDir(fs.profileDir(key))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	dates := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
		if _, err := services.ParseDate(date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// ListProfileKeys enumerates every profile partition on disk. Used by the
// one-time sqlite migration.
func (fs *FileStore) ListProfileKeys() ([]services.ProfileKey, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, profilesDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := []services.ProfileKey{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), keySeparator, 2)
		if len(parts) != 2 {
			continue
		}
		student, err := unescapeKey(parts[0])
		if err != nil {
			continue
		}
		group, err := unescapeKey(parts[1])
		if err != nil {
			continue
		}
		subject, series, ok := strings.Cut(group, "/")
		if !ok {
			continue
		}
		keys = append(keys, services.ProfileKey{
			StudentID: student,
			Group:     services.EntityGroup{Subject: subject, Series: series},
		})
	}
	return keys, nil
}
