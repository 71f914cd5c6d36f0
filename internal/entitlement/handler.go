package entitlement

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/platform/respond"
)

type Handler struct {
	gate   *Gate
	logger logrus.FieldLogger
}

func NewHandler(gate *Gate, logger logrus.FieldLogger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ent, err := h.gate.Evaluate(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			h.logger.WithError(err).Warn("entitlement evaluation failed")
			respond.Error(w, http.StatusServiceUnavailable, ErrUnavailable.Error())
			return
		}
		respond.Error(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respond.JSON(w, http.StatusOK, ent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/entitlement", h.Get)
}
