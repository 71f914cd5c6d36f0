package report

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/consultation"
	"medvoice/internal/persona"
	"medvoice/internal/platform/respond"
)

// SessionReader resolves a session on behalf of its owner.
type SessionReader interface {
	Get(ctx context.Context, ownerEmail, sessionID string) (*consultation.Session, error)
}

type Handler struct {
	svc      Service
	sessions SessionReader
	renderer *Renderer
	logger   logrus.FieldLogger
}

func NewHandler(svc Service, sessions SessionReader, renderer *Renderer, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, sessions: sessions, renderer: renderer, logger: logger}
}

// DeriveRequest accepts the session's persona snapshot; when omitted the stored one is used.
type DeriveRequest struct {
	SessionID  string              `json:"sessionId"`
	Transcript []consultation.Turn `json:"transcript"`
	Persona    *persona.Persona    `json:"persona"`
}

func (h *Handler) Derive(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req DeriveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		respond.Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	sess, err := h.sessions.Get(r.Context(), id.Email, req.SessionID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	p := sess.Persona
	if req.Persona != nil && req.Persona.ID != 0 {
		p = *req.Persona
	}

	res, err := h.svc.Derive(r.Context(), Request{
		SessionID:  sess.SessionID,
		Persona:    p,
		Transcript: req.Transcript,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res.Report)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sess, err := h.sessions.Get(r.Context(), id.Email, chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	doc, err := h.renderer.Render(*sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+FileName(sess.SessionID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consultation.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, ErrNoReport):
		respond.Error(w, http.StatusNotFound, "Report not available yet")
	case errors.Is(err, ErrNotConfigured):
		h.logger.Error("report requested but completion endpoint is not configured")
		respond.Error(w, http.StatusInternalServerError, "Report generation is not configured")
	default:
		h.logger.WithError(err).Error("report request failed")
		respond.Error(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/reports", h.Derive)
	r.Get("/reports/{sessionId}/pdf", h.PDF)
}
