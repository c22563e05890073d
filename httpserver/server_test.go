package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirvault/escrow-backend/api"
	"github.com/heirvault/escrow-backend/api/planhandler"
	"github.com/heirvault/escrow-backend/plan"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := planhandler.NewHandler(plan.NewMemStore(), log)

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:    "127.0.0.1:0",
		Log:           log,
		DrainDuration: time.Millisecond,
	}, handler)
	require.NoError(t, err)
	return srv
}

func execRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.getRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := execRequest(srv, http.MethodGet, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = execRequest(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDrainUndrain(t *testing.T) {
	srv := newTestServer(t)

	rec := execRequest(srv, http.MethodGet, "/drain")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"draining"}`, rec.Body.String())

	rec = execRequest(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = execRequest(srv, http.MethodGet, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, rec.Body.String())

	rec = execRequest(srv, http.MethodGet, "/undrain")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = execRequest(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlanRoutesMounted(t *testing.T) {
	srv := newTestServer(t)

	rec := execRequest(srv, http.MethodGet, "/api/plans")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
