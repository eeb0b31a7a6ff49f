package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// newTestMux wires the auth routes exactly as the application bootstrap
// does, but on in-memory stores.
func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	store := newMemUserStore()
	blocklist := newMemBlocklist()
	issuer := NewTokenIssuer("test-secret", time.Hour)
	service := NewService(store, blocklist, issuer, NewPasswordHasher(bcrypt.MinCost))
	handler := NewHandler(service, store)

	guard := func(h http.HandlerFunc) http.Handler {
		return Middleware(issuer, blocklist, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", handler.Signup)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.Handle("POST /auth/logout", guard(handler.Logout))
	mux.Handle("POST /auth/reset_password", guard(handler.ResetPassword))
	mux.Handle("GET /protected", guard(handler.Protected))
	mux.HandleFunc("GET /users", handler.ListUsers)
	mux.HandleFunc("GET /users/{username}", handler.GetUser)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSignupLoginProtectedLogoutFlow(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "bob", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "bob", created.Username)
	assert.NotEmpty(t, created.ID)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens Tokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.AccessToken)

	rec = doJSON(t, mux, http.MethodGet, "/protected", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var identity struct {
		LoggedInAs string `json:"logged_in_as"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, "bob", identity.LoggedInAs)

	rec = doJSON(t, mux, http.MethodPost, "/auth/logout", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The very same token must be dead on the next request.
	rec = doJSON(t, mux, http.MethodGet, "/protected", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// And logout with it again reads as plain unauthenticated.
	rec = doJSON(t, mux, http.MethodPost, "/auth/logout", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupDuplicateOverHTTP(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupValidation(t *testing.T) {
	mux := newTestMux(t)

	cases := []map[string]string{
		{"username": "", "password": "p1"},
		{"username": "has spaces", "password": "p1"},
		{"username": "alice", "password": ""},
	}
	for _, body := range cases {
		rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}
}

// Unknown usernames and wrong passwords must be byte-for-byte identical to
// the caller, or login becomes a username oracle.
func TestLoginDoesNotLeakUsernameExistence(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	unknownRec := doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "p1"})
	wrongRec := doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	assert.Equal(t, unknownRec.Code, wrongRec.Code)
	assert.Equal(t, unknownRec.Body.String(), wrongRec.Body.String())
}

func TestResetPasswordSamePasswordOverHTTP(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens Tokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))

	rec = doJSON(t, mux, http.MethodPost, "/auth/reset_password", tokens.AccessToken,
		map[string]string{"current_password": "p1", "new_password": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Old password must still log in.
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPasswordOverHTTP(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens Tokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))

	rec = doJSON(t, mux, http.MethodPost, "/auth/reset_password", tokens.AccessToken,
		map[string]string{"current_password": "wrong", "new_password": "p2"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/reset_password", tokens.AccessToken,
		map[string]string{"current_password": "p1", "new_password": "p2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "p2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The pre-reset token was not revoked. Known gap; current behavior.
	rec = doJSON(t, mux, http.MethodGet, "/protected", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserDirectoryNeverExposesHashes(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", "", map[string]string{"username": "alice", "password": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/users", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = doJSON(t, mux, http.MethodGet, "/users/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = doJSON(t, mux, http.MethodGet, "/users/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
