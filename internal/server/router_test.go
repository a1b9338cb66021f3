package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/attendance"
	"unilib/internal/auth"
	"unilib/internal/catalog"
	"unilib/internal/circulation"
	"unilib/internal/dashboard"
	"unilib/internal/membership"
	"unilib/internal/storage"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type fixture struct {
	handler http.Handler
	tokens  *auth.TokenManager
	covers  *storage.CoverStore
}

func newFixture(t *testing.T, db Pinger) fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	tokens := auth.NewTokenManager("router-secret", time.Hour)
	authn := auth.NewMiddleware(tokens, auth.CookieOptions{}, log)
	covers := storage.NewCoverStoreFs(afero.NewMemMapFs())

	// Services are nil: every request below is answered before reaching one.
	h := NewRouter(Handlers{
		Membership:  membership.NewHandler(nil, authn, log),
		Catalog:     catalog.NewHandler(nil, 1<<20, log),
		Circulation: circulation.NewHandler(nil, 10, log),
		Attendance:  attendance.NewHandler(nil, log),
		Dashboard:   dashboard.NewHandler(nil, log),
		Covers:      covers.Handler(),
		DB:          db,
	}, authn, log)
	return fixture{handler: h, tokens: tokens, covers: covers}
}

func (f fixture) do(t *testing.T, method, target string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if role != "" {
		token, _, err := f.tokens.GenerateToken(auth.Principal{UserID: uuid.New(), Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := newFixture(t, pinger{}).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = newFixture(t, pinger{err: errors.New("connection refused")}).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestManagerRoutesAreGated(t *testing.T) {
	f := newFixture(t, pinger{})

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/loans"},
		{http.MethodGet, "/api/loans/all"},
		{http.MethodPost, "/api/loans/" + uuid.NewString() + "/return"},
		{http.MethodPost, "/api/presence"},
		{http.MethodGet, "/api/usersStats"},
		{http.MethodDelete, "/api/authors/" + uuid.NewString()},
		{http.MethodGet, "/api/search/students"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, f.do(t, rt.method, rt.path, "").Code)
			assert.Equal(t, http.StatusForbidden, f.do(t, rt.method, rt.path, auth.RoleStudent).Code)
		})
	}
}

func TestManagerRolesReachHandlers(t *testing.T) {
	f := newFixture(t, pinger{})

	for _, role := range auth.ManagerRoles {
		rec := f.do(t, http.MethodGet, "/api/loans/all?page=first", role)
		assert.Equal(t, http.StatusBadRequest, rec.Code, role)

		rec = f.do(t, http.MethodPost, "/api/loans/17/return", role)
		assert.Equal(t, http.StatusBadRequest, rec.Code, role)
	}
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t, pinger{})

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/books/42", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/me", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nowhere", "").Code)

	rec := f.do(t, http.MethodPost, "/api/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), auth.CookieName+"=")
}

func TestUploadsAreServed(t *testing.T) {
	f := newFixture(t, pinger{})
	ref, err := f.covers.Save("cover.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, ref, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/uploads/books/missing.png", "").Code)
}
