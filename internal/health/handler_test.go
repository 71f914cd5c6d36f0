package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvoice/internal/platform/cache"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }
func (f pingFunc) Ping(ctx context.Context) error        { return f(ctx) }

var (
	up   = pingFunc(func(context.Context) error { return nil })
	down = pingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func serve(t *testing.T, db Pinger, c CachePinger, method string) (*httptest.ResponseRecorder, Report) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(db, c, "1.2.3", logger))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, "/health", nil))
	var rep Report
	if method == http.MethodGet {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	}
	return rec, rep
}

func TestHealthy(t *testing.T) {
	rec, rep := serve(t, up, up, http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, "1.2.3", rep.Version)
	assert.Equal(t, "up", rep.Checks["database"].Status)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestDatabaseDownIsUnhealthy(t *testing.T) {
	rec, rep := serve(t, down, up, http.MethodGet)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, rep.Status)
	assert.Equal(t, "connection refused", rep.Checks["database"].Error)

	rec, _ = serve(t, down, up, http.MethodHead)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestCacheDownIsDegraded(t *testing.T) {
	rec, rep := serve(t, up, down, http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusDegraded, rep.Status)
}

func TestCacheDisabled(t *testing.T) {
	_, rep := serve(t, up, nil, http.MethodGet)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, "disabled", rep.Checks["cache"].Status)
}

func TestRedisCacheProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	logger, _ := test.NewNullLogger()
	rc := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0, logger)

	_, rep := serve(t, up, rc, http.MethodGet)
	assert.Equal(t, "up", rep.Checks["cache"].Status)

	mr.Close()
	_, rep = serve(t, up, rc, http.MethodGet)
	assert.Equal(t, StatusDegraded, rep.Status)
}
