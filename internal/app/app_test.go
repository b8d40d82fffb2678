package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/observability"
	"github.com/odyssey-erp/projectledger/internal/projects"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "18", cfg.DefaultTaxRate.String())
	require.Equal(t, 3, cfg.CodeRetryAttempts)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsTaxRate(t *testing.T) {
	t.Setenv("DEFAULT_TAX_RATE", "120")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}).Info("hidden")
	require.Empty(t, buf.String())

	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}).Warn("shown")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}

func newTestRouter(db Pinger) http.Handler {
	cfg := &Config{AppEnv: "development"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:   logger,
		Config:   cfg,
		Handlers: APIHandlers{Projects: projects.NewHandler(logger, nil, 1)},
		Metrics:  observability.NewMetrics(),
		DB:       db,
	})
}

func TestRouterHealthAndReadiness(t *testing.T) {
	r := newTestRouter(fakePinger{})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	down := newTestRouter(fakePinger{err: errors.New("refused")})
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterRequiresActorOnAPI(t *testing.T) {
	r := newTestRouter(nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterServesMetrics(t *testing.T) {
	r := newTestRouter(nil)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `projectledger_http_requests_total{code="200",route="/healthz"}`)
}
