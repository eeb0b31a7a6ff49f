package habit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"chabits/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// Store is what the handler needs from the habit repository.
type Store interface {
	ListByOwner(ctx context.Context, owner string) ([]Habit, error)
	Create(ctx context.Context, owner string, input HabitInput) (Habit, error)
	Update(ctx context.Context, owner, id string, input HabitInput) (Habit, error)
	Delete(ctx context.Context, owner, id string) error
	CreateLog(ctx context.Context, owner, habitID string, input LogInput) (LogEntry, error)
	ListLogs(ctx context.Context, owner, habitID string) ([]LogEntry, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	habits, err := h.store.ListByOwner(r.Context(), owner)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list habits")
		return
	}

	writeJSON(w, http.StatusOK, habits)
}

func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	input, ok := parseHabitInput(w, r)
	if !ok {
		return
	}

	created, err := h.store.Create(r.Context(), owner, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create habit")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	input, ok := parseHabitInput(w, r)
	if !ok {
		return
	}

	updated, err := h.store.Update(r.Context(), owner, id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "habit not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update habit")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	if err := h.store.Delete(r.Context(), owner, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "habit not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete habit")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateLog(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input LogInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.Date = strings.TrimSpace(input.Date)
	if input.Date == "" {
		input.Date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
		return
	}

	entry, err := h.store.CreateLog(r.Context(), owner, id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "habit not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to log habit")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	entries, err := h.store.ListLogs(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "habit not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list habit logs")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func ownerFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return "", false
	}
	return claims.Subject, true
}

func parseHabitInput(w http.ResponseWriter, r *http.Request) (HabitInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input HabitInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return HabitInput{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Frequency = strings.TrimSpace(input.Frequency)

	if input.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return HabitInput{}, false
	}
	if !utf8.ValidString(input.Name) || len(input.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name is invalid")
		return HabitInput{}, false
	}
	if !utf8.ValidString(input.Description) || len(input.Description) > 255 {
		writeError(w, http.StatusBadRequest, "description is invalid")
		return HabitInput{}, false
	}
	if input.Frequency == "" {
		writeError(w, http.StatusBadRequest, "frequency is required")
		return HabitInput{}, false
	}
	if !utf8.ValidString(input.Frequency) || len(input.Frequency) > 50 {
		writeError(w, http.StatusBadRequest, "frequency is invalid")
		return HabitInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
