package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
	"github.com/Daziusm/anonbuci-sub001/internal/config"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

var userTestColumns = []string{
	"id", "username", "email", "password_hash", "account_type",
	"is_banned", "ban_reason", "hwid", "hwid_resets", "created_at", "updated_at",
}

// envelope decodes the uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Banned  bool            `json:"banned"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "response body: %s", w.Body.String())
	return env
}

func testAuthConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			SessionDuration:   time.Hour,
			AllowRegistration: true,
			HWIDResetLimit:    3,
		},
	}
}

// newAccountsRouter mounts the account endpoints over a sqlmock-backed
// repository. The authenticated routes get their user injected directly so
// these tests exercise handler behavior, not the auth middleware.
func newAccountsRouter(t *testing.T, cfg *config.Config, user *models.User) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	handlers := NewAccountHandlers(cfg, repositories.NewUserRepository(db))
	r := gin.New()
	r.POST("/register", handlers.RegisterHandler())
	r.POST("/login", handlers.LoginHandler())

	authed := r.Group("")
	authed.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.UserContextKey, user)
			c.Set(middleware.UserIDContextKey, user.ID)
		}
		c.Next()
	})
	authed.GET("/me", handlers.MeHandler())
	authed.POST("/hwid/reset", handlers.ResetHWIDHandler())

	return r, mock
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_CreatesAccountAndSession(t *testing.T) {
	r, mock := newAccountsRouter(t, testAuthConfig(), nil)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(r, "/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct-horse-battery",
	})

	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	var data struct {
		Token string `json:"token"`
		User  struct {
			Username    string `json:"username"`
			AccountType string `json:"account_type"`
			HWIDBound   bool   `json:"hwid_bound"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token, "registration must return a session token")
	assert.Equal(t, "alice", data.User.Username)
	assert.Equal(t, models.AccountTypeUser, data.User.AccountType)
	assert.False(t, data.User.HWIDBound)

	claims, err := auth.ValidateJWT(data.Token)
	require.NoError(t, err, "registration token must validate")
	assert.Equal(t, "alice", claims.Username)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_Disabled(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Auth.AllowRegistration = false
	r, _ := newAccountsRouter(t, cfg, nil)

	w := postJSON(r, "/register", gin.H{"username": "alice", "password": "long-enough-pass"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Registration is disabled", decodeEnvelope(t, w).Message)
}

func TestRegister_PasswordTooShort(t *testing.T) {
	r, _ := newAccountsRouter(t, testAuthConfig(), nil)

	w := postJSON(r, "/register", gin.H{"username": "alice", "password": "short"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeEnvelope(t, w).Message, "at least 8 characters")
}

func TestRegister_InvalidUsername(t *testing.T) {
	r, _ := newAccountsRouter(t, testAuthConfig(), nil)

	// Too short and non-alphanumeric both fail binding before any DB work.
	for _, username := range []string{"ab", "not valid!"} {
		w := postJSON(r, "/register", gin.H{"username": username, "password": "long-enough-pass"})
		assert.Equal(t, http.StatusBadRequest, w.Code, "username %q should be rejected", username)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	r, mock := newAccountsRouter(t, testAuthConfig(), nil)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	w := postJSON(r, "/register", gin.H{"username": "alice", "password": "long-enough-pass"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Username or email already taken", decodeEnvelope(t, w).Message)
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func loginRow(t *testing.T, id, username, password string, banned bool, banReason *string) *sqlmock.Rows {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.NewRows(userTestColumns).
		AddRow(id, username, nil, hash, models.AccountTypeUser,
			banned, banReason, nil, 0, now, now)
}

func TestLogin_Success(t *testing.T) {
	r, mock := newAccountsRouter(t, testAuthConfig(), nil)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(loginRow(t, "u1", "alice", "hunter2hunter2", false, nil))

	w := postJSON(r, "/login", gin.H{"username": "alice", "password": "hunter2hunter2"})

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	env := decodeEnvelope(t, w)

	var data struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "u1", data.User.ID)
}

func TestLogin_UnknownUserAndWrongPasswordLookIdentical(t *testing.T) {
	// The endpoint must not leak which usernames exist: both failure modes
	// return the same status and message.
	r, mock := newAccountsRouter(t, testAuthConfig(), nil)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userTestColumns))
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(loginRow(t, "u1", "alice", "the-real-password", false, nil))

	unknown := postJSON(r, "/login", gin.H{"username": "ghost", "password": "whatever-pass"})
	wrongPass := postJSON(r, "/login", gin.H{"username": "alice", "password": "not-the-password"})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, unknown.Body.String(), wrongPass.Body.String(),
		"unknown-user and wrong-password responses must be indistinguishable")
}

func TestLogin_BannedAccount(t *testing.T) {
	r, mock := newAccountsRouter(t, testAuthConfig(), nil)

	reason := "chargeback fraud"
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(loginRow(t, "u1", "alice", "hunter2hunter2", true, &reason))

	w := postJSON(r, "/login", gin.H{"username": "alice", "password": "hunter2hunter2"})

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.True(t, env.Banned, "banned flag must be set so the client forces a logout")
	assert.Equal(t, "Account is banned: chargeback fraud", env.Message)
}

func TestLogin_MissingFields(t *testing.T) {
	r, _ := newAccountsRouter(t, testAuthConfig(), nil)

	w := postJSON(r, "/login", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Me
// ---------------------------------------------------------------------------

func TestMe_ReturnsAuthenticatedAccount(t *testing.T) {
	hwid := "hw-123"
	user := &models.User{
		ID:          "u1",
		Username:    "alice",
		AccountType: models.AccountTypePremium,
		HWID:        &hwid,
		HWIDResets:  2,
	}
	r, _ := newAccountsRouter(t, testAuthConfig(), user)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	var data struct {
		ID         string `json:"id"`
		HWIDBound  bool   `json:"hwid_bound"`
		HWIDResets int    `json:"hwid_resets"`
		HWID       string `json:"hwid"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "u1", data.ID)
	assert.True(t, data.HWIDBound)
	assert.Equal(t, 2, data.HWIDResets)
	assert.Empty(t, data.HWID, "the raw hardware identifier must never leave the server")
	assert.NotContains(t, w.Body.String(), "hw-123")
	assert.NotContains(t, w.Body.String(), "password")
}

// ---------------------------------------------------------------------------
// ResetHWID
// ---------------------------------------------------------------------------

func TestResetHWID_Success(t *testing.T) {
	user := &models.User{ID: "u1", Username: "alice", HWIDResets: 1}
	r, mock := newAccountsRouter(t, testAuthConfig(), user)

	mock.ExpectExec(`UPDATE users SET hwid = NULL, hwid_resets = hwid_resets \+ 1`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(r, "/hwid/reset", nil)

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	env := decodeEnvelope(t, w)

	var data struct {
		HWIDResets int `json:"hwid_resets"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.HWIDResets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetHWID_LimitReached(t *testing.T) {
	user := &models.User{ID: "u1", Username: "alice", HWIDResets: 3}
	r, _ := newAccountsRouter(t, testAuthConfig(), user)

	w := postJSON(r, "/hwid/reset", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Hardware ID reset limit reached, contact support", decodeEnvelope(t, w).Message)
}

func TestResetHWID_ZeroLimitMeansUnlimited(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Auth.HWIDResetLimit = 0
	user := &models.User{ID: "u1", Username: "alice", HWIDResets: 99}
	r, mock := newAccountsRouter(t, cfg, user)

	mock.ExpectExec(`UPDATE users SET hwid = NULL`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(r, "/hwid/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
