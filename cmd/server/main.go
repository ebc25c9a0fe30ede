package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/studylogkr/formtrack/internal/api"
	"github.com/studylogkr/formtrack/internal/db"
	"github.com/studylogkr/formtrack/internal/middleware"
	"github.com/studylogkr/formtrack/internal/services"
	"github.com/studylogkr/formtrack/internal/utils"
)

func main() {
	_ = godotenv.Load()

	addr := utils.EnvOr("FORMTRACK_ADDR", ":8080")
	dataDir := utils.EnvOr("FORMTRACK_DATA_DIR", "./data")
	apiKey := utils.EnvOr("FORMTRACK_API_KEY", "")
	tzName := utils.EnvOr("FORMTRACK_TZ", "Asia/Seoul")
	sqlitePath := os.Getenv("FORMTRACK_SQLITE_PATH")

	if apiKey == "" {
		log.Printf("warning: FORMTRACK_API_KEY is empty; operator routes accept JWT only")
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatalf("invalid FORMTRACK_TZ %q: %v", tzName, err)
	}

	var (
		journalStore services.JournalStore
		profileStore services.ProfileStore
		formStore    services.FormStore
	)
	if sqlitePath != "" {
		if err := MigrateIfNeeded(dataDir, sqlitePath); err != nil {
			log.Fatalf("legacy data migration: %v", err)
		}
		sqlDB, err := openSQLite(sqlitePath)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		store, err := db.NewSQLiteStore(sqlDB)
		if err != nil {
			log.Fatalf("init sqlite store: %v", err)
		}
		journalStore, profileStore, formStore = store, store, store
		log.Printf("using sqlite store at %s", sqlitePath)
	} else {
		store, err := db.NewFileStore(dataDir)
		if err != nil {
			log.Fatalf("init file store: %v", err)
		}
		journalStore, profileStore, formStore = store, store, store
		log.Printf("using file store in %s", dataDir)
	}

	journal := services.NewJournalService(journalStore, loc)
	profiles := services.NewProfileService(profileStore, loc)
	if os.Getenv("FORMTRACK_KEEP_OLDER_SNAPSHOTS") == "1" {
		profiles.KeepOlderSnapshots = true
	}
	recalc := services.NewRecalcService(journal, profiles)
	forms := services.NewFormService(formStore)
	auth := services.NewAuthService([]byte(os.Getenv("FORMTRACK_ADMIN_PASSWORD_HASH")), middleware.SignToken)

	mux := http.NewServeMux()
	api.NewRouter(journal, profiles, recalc, forms, auth, apiKey).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":  true,
			"msg": utils.T(locale, "health.ok"),
			"tz":  loc.String(),
		})
	})

	handler := middleware.CORS(middleware.SecureHeaders(middleware.NoStore(middleware.LocaleMiddleware(mux))))

	log.Printf("formtrack server listening on %s (tz=%s)", addr, loc)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(path))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}
