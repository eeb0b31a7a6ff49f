package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{1,32}$`)

const (
	maxJSONBodyBytes = 1 << 20
	// bcrypt ignores everything past 72 bytes, so longer inputs are refused
	// instead of being silently truncated.
	maxPasswordBytes = 72
)

type Handler struct {
	service *Service
	users   UserStore
}

func NewHandler(service *Service, users UserStore) *Handler {
	return &Handler{service: service, users: users}
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body signupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.ToLower(strings.TrimSpace(body.Username))
	body.Password = strings.TrimSpace(body.Password)
	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if body.Password == "" || len(body.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	user, err := h.service.Signup(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, "username is already taken")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to sign up")
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var lockedErr ErrLoginLocked
		if errors.As(err, &lockedErr) {
			retryAfter := int(time.Until(lockedErr.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "login temporarily locked")
			return
		}

		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout runs behind the auth gate, so the claims in context are already
// verified and unrevoked. Revoking here is idempotent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"msg": "logged out"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body resetPasswordRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	newPassword := strings.TrimSpace(body.NewPassword)
	if newPassword == "" || len(newPassword) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	err := h.service.ResetPassword(r.Context(), claims.Subject, body.CurrentPassword, body.NewPassword)
	if err != nil {
		if errors.Is(err, ErrSamePassword) {
			writeError(w, http.StatusBadRequest, "new password must differ from the current one")
			return
		}
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"msg": "password updated"})
}

// Protected is the identity probe behind the auth gate.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"logged_in_as": claims.Subject})
}

// ListUsers and GetUser expose the user directory. The password hash never
// leaves the store layer through these.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, userResponse{ID: user.ID, Username: user.Username})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if !usernameRegex.MatchString(username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}

	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
