package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/matthisholleville/authgate/internal/cfg"
	"github.com/matthisholleville/authgate/internal/identity"
	"github.com/matthisholleville/authgate/internal/session"
	"github.com/matthisholleville/authgate/internal/webhook"
	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMiddlewareServer creates a server wired only with what the webhook middleware needs
func createMiddlewareServer(t *testing.T, emulationRole *session.Role) *Server {
	t.Helper()
	hook := newTokenHook(t)
	hookURL, err := url.Parse(hook.URL)
	require.NoError(t, err)

	log := logger.MustNewLogger("json", "debug", "ISO8601")
	return &Server{
		Config: cfg.DefaultConfig(),
		Router: echo.New(),
		Logger: log,
		AuthConfig: &webhook.AuthConfig{
			Version:              webhook.VersionV1,
			V1:                   &webhook.AuthHookConfig{URL: hookURL, Method: webhook.MethodGet},
			AllowRoleEmulationBy: emulationRole,
		},
		Authenticator: webhook.NewAuthenticator(hook.Client(), log),
	}
}

// createTestContext creates a test context with the given server, request, response recorder and path
func createTestContext(server *Server, req *http.Request, rec *httptest.ResponseRecorder, path string) echo.Context {
	c := server.Router.NewContext(req, rec)
	c.SetPath(path)
	c.SetRequest(req)
	return c
}

func TestWebhookMiddleware_Success(t *testing.T) {
	server := createMiddlewareServer(t, nil)

	nextHandler := func(c echo.Context) error {
		sess, ok := sessionFromContext(c)
		require.True(t, ok)
		assert.Equal(t, session.Role("user"), sess.Role)
		value, ok := sess.Variables.Get(session.MustParseVariableName("x-hasura-user-id"))
		require.True(t, ok)
		assert.Equal(t, "42", value.Raw())

		// the request logger carries the correlation id
		assert.NotSame(t, server.Logger, logger.FromContext(c.Request().Context(), server.Logger))
		return c.String(http.StatusOK, "ok")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer user")
	rec := httptest.NewRecorder()
	c := createTestContext(server, req, rec, "/v1/session")

	err := server.webhookMiddleware(nextHandler)(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(correlationIDHeader))
}

func TestWebhookMiddleware_Errors(t *testing.T) {
	for _, test := range []struct {
		name  string
		token string
		role  string
		code  int
	}{
		{name: "denied by the hook", token: "", code: http.StatusForbidden},
		{name: "unexpected hook status", token: "broken", code: http.StatusInternalServerError},
		{name: "role not allowed", token: "user", role: "admin", code: http.StatusBadRequest},
	} {
		t.Run(test.name, func(t *testing.T) {
			server := createMiddlewareServer(t, nil)
			called := false
			nextHandler := func(c echo.Context) error {
				called = true
				return nil
			}

			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			if test.token != "" {
				req.Header.Set("Authorization", "Bearer "+test.token)
			}
			if test.role != "" {
				req.Header.Set("X-Hasura-Role", test.role)
			}
			rec := httptest.NewRecorder()
			c := createTestContext(server, req, rec, "/v1/session")

			err := server.webhookMiddleware(nextHandler)(c)

			httpErr, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, test.code, httpErr.Code)
			assert.False(t, called)
		})
	}
}

func TestWebhookMiddleware_InternalErrorsAreNotLeaked(t *testing.T) {
	server := createMiddlewareServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec := httptest.NewRecorder()
	c := createTestContext(server, req, rec, "/v1/session")

	err := server.webhookMiddleware(func(echo.Context) error { return nil })(c)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.NotContains(t, httpErr.Message, "502")
}

func TestWebhookMiddleware_RoleEmulation(t *testing.T) {
	admin := session.NewRole("admin")
	server := createMiddlewareServer(t, &admin)

	var got identity.Session
	nextHandler := func(c echo.Context) error {
		sess, ok := sessionFromContext(c)
		require.True(t, ok)
		got = sess
		return nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer admin")
	req.Header.Set("X-Hasura-Role", "editor")
	req.Header.Set("X-Hasura-Org-Id", "3")
	rec := httptest.NewRecorder()
	c := createTestContext(server, req, rec, "/v1/session")

	require.NoError(t, server.webhookMiddleware(nextHandler)(c))
	assert.Equal(t, session.Role("editor"), got.Role)
	assert.Equal(t, []session.VariableName{"x-hasura-org-id", "x-hasura-role"}, got.Variables.Names())
}

func TestAdminMiddleware(t *testing.T) {
	server := createMiddlewareServer(t, nil)
	server.Config.HTTP.AdminAPIKey = testAPIKey

	for _, test := range []struct {
		name   string
		apiKey string
		ok     bool
	}{
		{name: "valid key", apiKey: testAPIKey, ok: true},
		{name: "wrong key", apiKey: "nope", ok: false},
		{name: "missing key", apiKey: "", ok: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/commands", nil)
			if test.apiKey != "" {
				req.Header.Set(apiKeyHeader, test.apiKey)
			}
			rec := httptest.NewRecorder()
			c := createTestContext(server, req, rec, "/v1/admin/commands")

			err := server.adminMiddleware(func(c echo.Context) error {
				return c.NoContent(http.StatusNoContent)
			})(c)

			if test.ok {
				assert.NoError(t, err)
				assert.Equal(t, http.StatusNoContent, rec.Code)
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
		})
	}
}
