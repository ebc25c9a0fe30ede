package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/studylogkr/formtrack/internal/middleware"
	"github.com/studylogkr/formtrack/internal/services"
	"github.com/studylogkr/formtrack/internal/utils"
)

// Router wires the HTTP surface to the journal, profile and recalculation
// services. Handlers stay thin: decode, validate, call one service, encode.
type Router struct {
	journal  *services.JournalService
	profiles *services.ProfileService
	recalc   *services.RecalcService
	forms    *services.FormService
	auth     *services.AuthService
	validate *validator.Validate
	apiKey   string
	now      func() time.Time
}

func NewRouter(journal *services.JournalService, profiles *services.ProfileService, recalc *services.RecalcService, forms *services.FormService, auth *services.AuthService, apiKey string) *Router {
	return &Router{
		journal:  journal,
		profiles: profiles,
		recalc:   recalc,
		forms:    forms,
		auth:     auth,
		validate: validator.New(),
		apiKey:   apiKey,
		now:      func() time.Time { return time.Now() },
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	key := func(h http.HandlerFunc) http.HandlerFunc { return middleware.RequireOperator(rt.apiKey, h) }

	mux.HandleFunc("/submit", rt.handleSubmit)                          // POST (public)
	mux.HandleFunc("/pending-data", key(rt.handlePendingData))          // GET
	mux.HandleFunc("/mark-processed", key(rt.handleMarkProcessed))      // POST
	mux.HandleFunc("/api/reprocess/", key(rt.handleReprocess))          // POST /api/reprocess/{id}
	mux.HandleFunc("/api/data/by-date-form/", key(rt.handleByDateForm)) // GET /api/data/by-date-form/{date}/{form}
	mux.HandleFunc("/api/data/", key(rt.handleDataByID))                // DELETE /api/data/{id}
	mux.HandleFunc("/api/forms", rt.handleForms)                        // GET (public), POST (key)
	mux.HandleFunc("/api/forms/", key(rt.handleFormByID))               // DELETE /api/forms/{id}
	mux.HandleFunc("/api/calendar/events", key(rt.handleCalendarEvents))
	mux.HandleFunc("/api/profiles/snapshot", key(rt.handleProfileSnapshot)) // POST
	mux.HandleFunc("/api/profiles/commit", key(rt.handleProfileCommit))     // POST
	mux.HandleFunc("/api/profiles/current", key(rt.handleProfileCurrent))   // GET
	mux.HandleFunc("/api/recalculate", key(rt.handleRecalculate))           // POST
	mux.HandleFunc("/api/students/", key(rt.handleStudentErase))            // DELETE /api/students/{name}/{phone}
	mux.HandleFunc("/api/export/csv", key(rt.handleExportCSV))              // GET
	mux.HandleFunc("/api/admin/login", rt.handleAdminLogin)                 // POST
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. The consistency-gap
// case gets its own code so operators can tell it apart from a clean failure.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	var gap *services.ConsistencyGapError
	if errors.As(err, &gap) {
		log.Printf("CONSISTENCY GAP: restored_date=%q err=%v", gap.RestoredDate, gap.Err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error_code":    "consistency_gap",
			"restored_date": gap.RestoredDate,
			"error":         utils.T(locale, "recalc.gap"),
		})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]any{"error": se.Message, "error_code": string(se.Code)})
		return
	}
	log.Printf("internal error on %s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

type submitRequest struct {
	StudentName string         `json:"student_name" validate:"required,max=64"`
	PhoneSuffix string         `json:"phone_suffix" validate:"required,numeric,len=4"`
	FormID      string         `json:"form_id" validate:"required"`
	Subject     string         `json:"subject" validate:"required"`
	Series      string         `json:"series" validate:"required"`
	Answers     map[string]any `json:"answers"`
}

// POST /submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	id, err := rt.journal.Upsert(services.Submission{
		StudentName: req.StudentName,
		PhoneSuffix: req.PhoneSuffix,
		FormID:      req.FormID,
		Subject:     req.Subject,
		Series:      req.Series,
		Answers:     req.Answers,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{"message": utils.T(locale, "submit.accepted"), "id": id})
}

// GET /pending-data
func (rt *Router) handlePendingData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subs, err := rt.journal.ListByStatus(services.StatusPending)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// POST /mark-processed
func (rt *Router) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		IDs []int `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	changed, err := rt.journal.MarkProcessed(req.IDs, rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": utils.T(locale, "mark.processed"), "count": changed})
}

// POST /api/reprocess/{id}
func (rt *Router) handleReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/reprocess/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("submission id must be an integer"))
		return
	}
	if err := rt.journal.ResetToPending(id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": utils.T(locale, "reprocess.queued"), "id": id})
}

// GET /api/data/by-date-form/{date}/{form}
func (rt *Router) handleByDateForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/data/by-date-form/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	date, formID := parts[0], parts[1]
	if _, err := services.ParseDate(date); err != nil {
		rt.writeError(w, r, services.NewInvalidError("date must be YYYY-MM-DD"))
		return
	}
	subs, err := rt.journal.ListWhere(func(sub services.Submission) bool {
		d, ok := rt.journal.LocalDateOf(sub.SubmittedAt)
		return ok && d == date && sub.FormID == formID
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// DELETE /api/data/{id}
func (rt *Router) handleDataByID(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/data/by-date-form/") {
		rt.handleByDateForm(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/data/"))
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("submission id must be an integer"))
		return
	}
	if err := rt.journal.Delete(id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// GET /api/forms (public) | POST /api/forms (operator)
func (rt *Router) handleForms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		forms, err := rt.forms.List()
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, forms)
	case http.MethodPost:
		middleware.RequireOperator(rt.apiKey, rt.handleFormCreate)(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleFormCreate(w http.ResponseWriter, r *http.Request) {
	var f services.Form
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	stored, err := rt.forms.Add(f)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{"message": utils.T(locale, "form.saved"), "id": stored.ID})
}

// DELETE /api/forms/{id}
func (rt *Router) handleFormByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/forms/")
	locale := middleware.LocaleFromContext(r.Context())
	if err := rt.forms.Delete(id); err != nil {
		if se, ok := services.AsServiceError(err); ok && se.Code == services.ErrorNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": utils.T(locale, "form.notfound")})
			return
		}
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": utils.T(locale, "form.deleted")})
}

type calendarEvent struct {
	Title         string         `json:"title"`
	Start         string         `json:"start"`
	ExtendedProps map[string]any `json:"extendedProps"`
}

// GET /api/calendar/events?start=YYYY-MM-DD&end=YYYY-MM-DD
// One event per (date, form) pair within [start, end).
func (rt *Router) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		rt.writeError(w, r, services.NewInvalidError("start and end are required"))
		return
	}
	subs, err := rt.journal.ListAll()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	names, err := rt.forms.NamesByID()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	type dateForm struct{ date, formID string }
	seen := map[dateForm]bool{}
	for _, sub := range subs {
		d, ok := rt.journal.LocalDateOf(sub.SubmittedAt)
		if !ok || sub.FormID == "" {
			continue
		}
		if d >= start && d < end {
			seen[dateForm{d, sub.FormID}] = true
		}
	}

	locale := middleware.LocaleFromContext(r.Context())
	events := make([]calendarEvent, 0, len(seen))
	for df := range seen {
		name := names[df.formID]
		if name == "" {
			name = utils.T(locale, "form.unknown")
		}
		events = append(events, calendarEvent{
			Title:         name,
			Start:         df.date,
			ExtendedProps: map[string]any{"formId": df.formID},
		})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Start != events[j].Start {
			return events[i].Start < events[j].Start
		}
		return events[i].Title < events[j].Title
	})
	writeJSON(w, http.StatusOK, events)
}

type profileTarget struct {
	StudentName string `json:"student_name" validate:"required"`
	PhoneSuffix string `json:"phone_suffix" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Series      string `json:"series" validate:"required"`
}

func (t profileTarget) key() services.ProfileKey {
	return services.ProfileKey{
		StudentID: services.StudentID(t.StudentName, t.PhoneSuffix),
		Group:     services.EntityGroup{Subject: t.Subject, Series: t.Series},
	}
}

// POST /api/profiles/snapshot — scorer calls this before a scoring run.
func (rt *Router) handleProfileSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req profileTarget
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	p, err := rt.profiles.GetOrCreateTodaysSnapshot(req.key(), rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/profiles/commit — scorer calls this after a scoring run.
func (rt *Router) handleProfileCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		profileTarget
		Scores map[string]float64 `json:"scores" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	if err := rt.profiles.CommitCurrent(req.key(), &services.Profile{Scores: req.Scores}, rt.now()); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"committed": true})
}

// GET /api/profiles/current?student_name=&phone_suffix=&subject=&series=
func (rt *Router) handleProfileCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	req := profileTarget{
		StudentName: q.Get("student_name"),
		PhoneSuffix: q.Get("phone_suffix"),
		Subject:     q.Get("subject"),
		Series:      q.Get("series"),
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	p, stored, err := rt.profiles.GetCurrent(req.key())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p, "stored": stored})
}

// POST /api/recalculate
func (rt *Router) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		StudentName string `json:"student_name" validate:"required"`
		PhoneSuffix string `json:"phone_suffix" validate:"required"`
		Subject     string `json:"subject"`
		Series      string `json:"series"`
		Cutoff      string `json:"cutoff" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	var group *services.EntityGroup
	if req.Subject != "" || req.Series != "" {
		group = &services.EntityGroup{Subject: req.Subject, Series: req.Series}
	}
	res, err := rt.recalc.RecalculateFrom(req.StudentName, req.PhoneSuffix, group, req.Cutoff)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       utils.T(locale, "recalc.done"),
		"reset_count":   res.ResetCount,
		"restored_date": res.RestoredDate,
	})
}

// DELETE /api/students/{name}/{phone}
func (rt *Router) handleStudentErase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/students/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	name, err := url.PathUnescape(parts[0])
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid student name"))
		return
	}
	phone, err := url.PathUnescape(parts[1])
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid phone suffix"))
		return
	}
	removed, err := rt.recalc.EraseStudent(name, phone)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": utils.T(locale, "student.erased"), "removed": removed})
}

// GET /api/export/csv
func (rt *Router) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subs, err := rt.journal.ListAll()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	data, err := services.ExportJournalCSV(subs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="submissions.csv"`)
	_, _ = w.Write(data)
}

// POST /api/admin/login
func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, services.NewInvalidError("invalid JSON payload"))
		return
	}
	res, err := rt.auth.Login(req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "expires_in": int(res.ExpiresIn.Seconds())})
}
