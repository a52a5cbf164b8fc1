package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(issuer *Issuer) *echo.Echo {
	e := echo.New()
	g := e.Group("", issuer.Middleware())
	g.GET("/whoami", func(c echo.Context) error {
		session, err := SessionID(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, session)
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireAdmin)
	return e
}

func do(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	e := newTestServer(issuer)

	token, session, err := issuer.Issue(false)
	require.NoError(t, err)

	rec := do(e, "/whoami", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(e, "/admin", token).Code)
}

func TestAdminToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	e := newTestServer(issuer)

	token, _, err := issuer.Issue(true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(e, "/admin", token).Code)
}

func TestRejectsMissingForeignAndExpiredTokens(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	e := newTestServer(issuer)

	rec := do(e, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)

	foreign, _, err := NewIssuer("other", time.Hour).Issue(true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/whoami", foreign).Code)

	expiredIssuer := NewIssuer("secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIssuer.Issue(false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/whoami", expired).Code)
}
