package consultation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/entitlement"
	"medvoice/internal/platform/respond"
)

type Handler struct {
	svc    Service
	logger logrus.FieldLogger
}

func NewHandler(svc Service, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type personaRef struct {
	ID int `json:"id"`
}

// SelectedDoctor is accepted as an alias of Persona for older clients.
type CreateSessionRequest struct {
	Notes          string      `json:"notes"`
	Persona        *personaRef `json:"persona"`
	SelectedDoctor *personaRef `json:"selectedDoctor"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	ref := req.Persona
	if ref == nil {
		ref = req.SelectedDoctor
	}
	if ref == nil || ref.ID == 0 {
		respond.Error(w, http.StatusBadRequest, "persona is required")
		return
	}

	sess, err := h.svc.Create(r.Context(), id, req.Notes, ref.ID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sess)
}

// GetSessions serves both ?id=all (owner's sessions) and ?id=<sessionId>.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sessionID := sessionIDParam(r)
	if sessionID == "" {
		respond.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if sessionID == "all" {
		list, err := h.svc.List(r.Context(), id.Email)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, list)
		return
	}

	sess, err := h.svc.Get(r.Context(), id.Email, sessionID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sessionID := sessionIDParam(r)
	if sessionID == "" || sessionID == "all" {
		respond.Error(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.svc.Delete(r.Context(), id.Email, sessionID); err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	list, err := h.svc.History(r.Context(), id.Email)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

func sessionIDParam(r *http.Request) string {
	q := r.URL.Query()
	v := q.Get("id")
	if v == "" {
		v = q.Get("sessionId")
	}
	return strings.TrimSpace(v)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, ErrUnknownPersona):
		respond.Error(w, http.StatusBadRequest, "Unknown persona")
	case errors.Is(err, ErrConflict):
		respond.Error(w, http.StatusConflict, "Session identifier collision, please retry")
	case errors.Is(err, entitlement.ErrUpgradeRequired):
		respond.Error(w, http.StatusForbidden, entitlement.ErrUpgradeRequired.Error())
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		respond.Error(w, http.StatusTooManyRequests, entitlement.ErrQuotaExceeded.Error())
	case errors.Is(err, entitlement.ErrUnavailable):
		respond.Error(w, http.StatusServiceUnavailable, entitlement.ErrUnavailable.Error())
	default:
		h.logger.WithError(err).Error("session request failed")
		respond.Error(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions", h.GetSessions)
	r.Delete("/sessions", h.DeleteSession)
	r.Get("/history", h.History)
}
