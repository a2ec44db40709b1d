package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartq/launchpad/internal/app"
	"github.com/smartq/launchpad/internal/auth"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/users"
)

type stubUsers struct {
	user users.User
	ok   bool
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if !s.ok || s.user.Email != email {
		return users.User{}, users.ErrNotFound
	}
	return s.user, nil
}

func (s *stubUsers) Get(ctx context.Context, id uuid.UUID) (users.User, error) {
	if !s.ok || s.user.ID != id {
		return users.User{}, users.ErrNotFound
	}
	return s.user, nil
}

func testUser(t *testing.T, roles ...rbac.Role) users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("launchpad123"), bcrypt.MinCost)
	require.NoError(t, err)
	return users.User{
		ID:           uuid.New(),
		Email:        "jordan@smartq.test",
		Name:         "Jordan Hale",
		PasswordHash: string(hash),
		Roles:        roles,
		IsActive:     true,
	}
}

// newAuthServer wires the handler behind the same session middleware the
// application router uses.
func newAuthServer(t *testing.T, port auth.UserPort) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(port), sessions)

	r := chi.NewRouter()
	r.Use(app.SessionMiddleware(logger, sessions))
	handler.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func login(t *testing.T, client *http.Client, base string) map[string]any {
	t.Helper()
	res, err := client.Post(base+"/auth/login", "application/json",
		strings.NewReader(`{"email":"jordan@smartq.test","password":"launchpad123"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
	return envelope.Data
}

func TestLoginSetsSessionAndActiveRole(t *testing.T) {
	user := testUser(t, rbac.RoleDeploymentEngineer, rbac.RoleOpsManager)
	srv := newAuthServer(t, &stubUsers{user: user, ok: true})
	client := newClient(t)

	data := login(t, client, srv.URL)
	require.Equal(t, user.ID.String(), data["userId"])
	require.Equal(t, "deployment_engineer", data["activeRole"])

	res, err := client.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	user := testUser(t, rbac.RoleAdmin)
	srv := newAuthServer(t, &stubUsers{user: user, ok: true})
	client := newClient(t)

	res, err := client.Post(srv.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"jordan@smartq.test","password":"wrongpassword"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestMeRequiresSession(t *testing.T) {
	srv := newAuthServer(t, &stubUsers{})
	client := newClient(t)

	res, err := client.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSwitchRoleEnforcesHeldRoles(t *testing.T) {
	user := testUser(t, rbac.RoleDeploymentEngineer, rbac.RoleOpsManager)
	srv := newAuthServer(t, &stubUsers{user: user, ok: true})
	client := newClient(t)
	login(t, client, srv.URL)

	// switching to a held role succeeds
	res, err := client.Post(srv.URL+"/auth/switch-role", "application/json",
		strings.NewReader(`{"role":"ops_manager"}`))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	// switching to a role the user does not hold is rejected
	res, err = client.Post(srv.URL+"/auth/switch-role", "application/json",
		strings.NewReader(`{"role":"admin"}`))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestLogoutClearsSession(t *testing.T) {
	user := testUser(t, rbac.RoleAdmin)
	srv := newAuthServer(t, &stubUsers{user: user, ok: true})
	client := newClient(t)
	login(t, client, srv.URL)

	res, err := client.Post(srv.URL+"/auth/logout", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = client.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
