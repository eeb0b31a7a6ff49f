package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chabits/internal/auth"
	"chabits/internal/observability"
)

// CleanupHandler prunes auth storage: revocation-ledger rows whose token has
// expired and login-attempt rows that have gone stale. It is meant to be hit
// by a scheduler and hides behind a shared secret; without one configured
// the route pretends not to exist.
type CleanupHandler struct {
	repo                  *auth.Repository
	blocklist             *auth.PostgresBlocklist
	logger                *observability.Logger
	cronSecret            string
	loginAttemptRetention time.Duration
	batchSize             int
}

func NewCleanupHandler(
	repo *auth.Repository,
	blocklist *auth.PostgresBlocklist,
	logger *observability.Logger,
	cronSecret string,
	loginAttemptRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:                  repo,
		blocklist:             blocklist,
		logger:                logger,
		cronSecret:            strings.TrimSpace(cronSecret),
		loginAttemptRetention: loginAttemptRetention,
		batchSize:             batchSize,
	}
}

type cleanupResult struct {
	DeletedRevokedTokens int64 `json:"deleted_revoked_tokens"`
	DeletedLoginAttempts int64 `json:"deleted_login_attempts"`
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var result cleanupResult

	// The Redis ledger prunes itself through key TTLs, so blocklist may be
	// nil here.
	if h.blocklist != nil {
		deleted, err := h.blocklist.PruneExpired(r.Context(), h.batchSize)
		if err != nil {
			h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
			return
		}
		result.DeletedRevokedTokens = deleted
	}

	retention := h.loginAttemptRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := h.repo.DeleteStaleLoginAttempts(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}
	result.DeletedLoginAttempts = deleted

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_revoked_tokens": result.DeletedRevokedTokens,
		"deleted_login_attempts": result.DeletedLoginAttempts,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
