package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository/postgres"
	"github.com/nkiryanov/bufete/internal/service/auth"
	"github.com/nkiryanov/bufete/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/bufete/internal/service/invoice"
	"github.com/nkiryanov/bufete/internal/service/session"
	"github.com/nkiryanov/bufete/internal/service/user"
	"github.com/nkiryanov/bufete/internal/testutil"
)

// Production services wired to the router, all in single db transaction
type testApp struct {
	url   string
	auth  *auth.AuthService
	users *user.UserService
}

// Run http server with production router inside db transaction
// Rollback transaction when test stops
func withApp(dbpool *pgxpool.Pool, t *testing.T, fn func(app testApp)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		l := logger.NewNoOpLogger()

		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret", RefreshTTL: 24 * time.Hour}, storage.Refresh())
		require.NoError(t, err, "token manager should be created without errors")

		sessions, err := session.NewService(storage, l)
		require.NoError(t, err)

		users := user.NewService(auth.BcryptHasher{Cost: bcrypt.MinCost}, storage)

		authService, err := auth.NewService(auth.Config{}, tokenManager, users, sessions, l)
		require.NoError(t, err, "auth service starting error", err)

		invoices, err := invoice.NewService(storage, l, invoice.WithIssuer(invoice.Issuer{Name: "Bufete", TaxID: "B12345674"}))
		require.NoError(t, err)

		srv := httptest.NewServer(NewRouter(authService, users, invoices, sessions, l))
		defer srv.Close()

		fn(testApp{url: srv.URL, auth: authService, users: users})
	})
}

// Send request with optional json body and access token
// Returns response and its body
func do(t *testing.T, method string, url string, body string, access string, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", access)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp, string(data)
}

// Create user with role directly through service and login through http
// Returns Authorization header value
func loginAs(t *testing.T, app testApp, username string, role models.Role, profile *models.ClientProfile) string {
	t.Helper()

	_, err := app.users.CreateUser(t.Context(), models.NewUser{Username: username, Password: "StrongEnoughPassword", Role: role, Profile: profile})
	require.NoError(t, err)

	resp, body := do(t, http.MethodPost, app.url+"/api/auth/login", `{"login": "`+username+`", "password": "StrongEnoughPassword"}`, "")
	require.Equalf(t, http.StatusOK, resp.StatusCode, "login failed. Body: %s", body)

	return resp.Header.Get("Authorization")
}
