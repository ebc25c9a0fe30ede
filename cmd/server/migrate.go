package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/studylogkr/formtrack/internal/db"
)

// MigrateIfNeeded performs a one-time copy of the legacy flat-file data
// (submissions.json, forms.json, per-student profile directories) into a
// fresh sqlite database. It is a no-op when the sqlite file already exists
// or when there is no legacy data directory.
func MigrateIfNeeded(dataDir, sqlitePath string) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil // already migrated
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}
	if _, err := os.Stat(dataDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	legacy, err := db.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("open legacy store: %w", err)
	}

	sqlDB, err := openSQLite(sqlitePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("warning: close sqlite after migration: %v", cerr)
		}
	}()
	store, err := db.NewSQLiteStore(sqlDB)
	if err != nil {
		return err
	}

	log.Printf("first run with sqlite: migrating legacy data from %s...", dataDir)

	subs, err := legacy.LoadJournal()
	if err != nil {
		return fmt.Errorf("load legacy journal: %w", err)
	}
	if len(subs) > 0 {
		if err := store.SaveJournal(subs); err != nil {
			return fmt.Errorf("copy journal: %w", err)
		}
	}

	forms, err := legacy.LoadForms()
	if err != nil {
		return fmt.Errorf("load legacy forms: %w", err)
	}
	if len(forms) > 0 {
		if err := store.SaveForms(forms); err != nil {
			return fmt.Errorf("copy forms: %w", err)
		}
	}

	keys, err := legacy.ListProfileKeys()
	if err != nil {
		return fmt.Errorf("list legacy profiles: %w", err)
	}
	for _, key := range keys {
		current, err := legacy.LoadCurrent(key)
		if err != nil {
			return fmt.Errorf("load legacy profile %s: %w", key.StudentID, err)
		}
		if current != nil {
			if err := store.SaveCurrent(key, current); err != nil {
				return fmt.Errorf("copy profile %s: %w", key.StudentID, err)
			}
		}
		dates, err := legacy.ListSnapshotDates(key)
		if err != nil {
			return fmt.Errorf("list legacy snapshots %s: %w", key.StudentID, err)
		}
		for _, date := range dates {
			snap, err := legacy.LoadSnapshot(key, date)
			if err != nil {
				return fmt.Errorf("load legacy snapshot %s/%s: %w", key.StudentID, date, err)
			}
			if snap == nil {
				continue
			}
			if err := store.SaveSnapshot(key, date, snap); err != nil {
				return fmt.Errorf("copy snapshot %s/%s: %w", key.StudentID, date, err)
			}
		}
	}

	log.Printf("migration complete: %d submissions, %d forms, %d profile partitions", len(subs), len(forms), len(keys))
	return nil
}
