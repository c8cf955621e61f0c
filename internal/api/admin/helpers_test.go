package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

var userTestColumns = []string{
	"id", "username", "email", "password_hash", "account_type",
	"is_banned", "ban_reason", "hwid", "hwid_resets", "created_at", "updated_at",
}

var productTestColumns = []string{
	"id", "name", "display_name", "price_cents", "is_frozen", "is_broken",
	"is_alpha_only", "created_at", "updated_at",
}

var loaderTestColumns = []string{
	"id", "product_id", "product_name", "filename", "version", "storage_path",
	"storage_backend", "size_bytes", "checksum", "is_active", "download_count",
	"last_downloaded_at", "uploaded_by", "created_at", "updated_at",
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "response body: %s", w.Body.String())
	return env
}

func adminUser() *models.User {
	return &models.User{ID: "admin-1", Username: "root", AccountType: models.AccountTypeAdmin}
}

// injectAdmin simulates the auth middleware having already authenticated the
// given admin account.
func injectAdmin(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, user)
		c.Set(middleware.UserIDContextKey, user.ID)
		c.Next()
	}
}

func userRow(id, username string, banned bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userTestColumns).
		AddRow(id, username, nil, "$2a$12$hash", models.AccountTypeUser,
			banned, nil, nil, 0, now, now)
}

func productRow(id, name, displayName string, frozen, broken, alphaOnly bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(productTestColumns).
		AddRow(id, name, displayName, int64(1999), frozen, broken, alphaOnly, now, now)
}

func sendJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}
