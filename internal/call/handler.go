package call

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/consultation"
	"medvoice/internal/platform/respond"
)

// SecretHeader carries the shared secret configured on the voice service's server URL.
const SecretHeader = "X-Vapi-Secret"

const maxEventBody = 1 << 20

type Handler struct {
	manager       *Manager
	webhookSecret string
	logger        logrus.FieldLogger
}

func NewHandler(manager *Manager, webhookSecret string, logger logrus.FieldLogger) *Handler {
	return &Handler{manager: manager, webhookSecret: webhookSecret, logger: logger}
}

func (h *Handler) fresh(w http.ResponseWriter, r *http.Request) (*Controller, bool) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	sessionID := chi.URLParam(r, "sessionId")

	c, err := h.manager.Fresh(r.Context(), id.Email, sessionID)
	if err != nil {
		h.writeErr(w, err)
		return nil, false
	}
	return c, true
}

// existing resolves the session's running controller. c is nil when no call was ever started.
func (h *Handler) existing(w http.ResponseWriter, r *http.Request) (c *Controller, sessionID string, ok bool) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, "", false
	}
	sessionID = chi.URLParam(r, "sessionId")
	c, _, err = h.manager.Existing(r.Context(), id.Email, sessionID)
	if err != nil {
		h.writeErr(w, err)
		return nil, "", false
	}
	return c, sessionID, true
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	c, sessionID, ok := h.existing(w, r)
	if !ok {
		return
	}
	if c == nil {
		respond.JSON(w, http.StatusOK, Snapshot{SessionID: sessionID, State: StateIdle, Transcript: []consultation.Turn{}})
		return
	}
	respond.JSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	c, ok := h.fresh(w, r)
	if !ok {
		return
	}
	snap, err := c.Start(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, snap)
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.existing(w, r)
	if !ok {
		return
	}
	if c == nil {
		h.writeErr(w, ErrNotStarted)
		return
	}
	out, err := c.End(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.existing(w, r)
	if !ok {
		return
	}
	if c != nil {
		c.Close(r.Context())
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Events receives voice-service webhooks. Unknown sessions and message types are acknowledged and dropped.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.authorised(r) {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	sessionID, ev, ok, err := ParseServerMessage(body)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if ok && sessionID != "" {
		if !h.manager.Dispatch(sessionID, ev) {
			h.logger.WithFields(logrus.Fields{"session_id": sessionID, "event": ev.Type}).Debug("event for unknown call dropped")
		}
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// authorised rejects everything while no secret is configured.
func (h *Handler) authorised(r *http.Request) bool {
	if h.webhookSecret == "" {
		return false
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consultation.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, ErrChannelNotConfigured):
		respond.Error(w, http.StatusServiceUnavailable, "Voice service is not configured")
	case errors.Is(err, ErrChannelStart):
		respond.Error(w, http.StatusBadGateway, "An error occurred in AI services. Please try again later.")
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNotStarted), errors.Is(err, ErrEnded):
		respond.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.WithError(err).Error("call request failed")
		respond.Error(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/sessions/{sessionId}/call", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Delete("/", h.Close)
		r.Post("/start", h.Start)
		r.Post("/end", h.End)
	})
}

// RegisterWebhook mounts the voice-service callback, which authenticates by shared secret instead of bearer token.
func RegisterWebhook(r chi.Router, h *Handler) {
	r.Post("/voice/events", h.Events)
}
