// Package health reports whether the service and its backing stores are usable.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/platform/respond"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 3 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger is optional; a nil value reports the cache as disabled.
type CachePinger interface {
	Ping(ctx context.Context) error
}

type Check struct {
	Status         string `json:"status"`
	ResponseTimeMs int64  `json:"responseTime,omitempty"`
	Error          string `json:"error,omitempty"`
}

type Report struct {
	Status    Status           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    float64          `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

type Handler struct {
	db      Pinger
	cache   CachePinger
	version string
	started time.Time
	logger  logrus.FieldLogger
}

func NewHandler(db Pinger, cache CachePinger, version string, logger logrus.FieldLogger) *Handler {
	return &Handler{db: db, cache: cache, version: version, started: time.Now(), logger: logger}
}

func (h *Handler) evaluate(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	rep := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Seconds(),
		Version:   h.version,
		Checks:    map[string]Check{},
	}

	db := probe(ctx, h.db.PingContext)
	rep.Checks["database"] = db
	if db.Status != "up" {
		rep.Status = StatusUnhealthy
		h.logger.WithField("error", db.Error).Warn("health: database down")
	}

	if h.cache == nil {
		rep.Checks["cache"] = Check{Status: "disabled"}
	} else {
		c := probe(ctx, h.cache.Ping)
		rep.Checks["cache"] = c
		if c.Status != "up" && rep.Status == StatusHealthy {
			rep.Status = StatusDegraded
		}
	}
	return rep
}

func probe(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "down", Error: err.Error()}
	}
	return Check{Status: "up", ResponseTimeMs: time.Since(start).Milliseconds()}
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rep := h.evaluate(r.Context())
	noCache(w)
	respond.JSON(w, httpStatus(rep.Status), rep)
}

// Head is a body-less liveness probe for load balancers.
func (h *Handler) Head(w http.ResponseWriter, r *http.Request) {
	rep := h.evaluate(r.Context())
	noCache(w)
	w.WriteHeader(httpStatus(rep.Status))
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/health", h.Get)
	r.Head("/health", h.Head)
}
