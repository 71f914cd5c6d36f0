package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/platform/respond"
)

// AccessFunc reports whether id may start a consultation with p.
type AccessFunc func(id auth.Identity, p Persona) bool

// Listed is a catalog entry annotated for the caller.
type Listed struct {
	Persona
	Locked bool `json:"locked"`
}

type Handler struct {
	suggester *Suggester
	canUse    AccessFunc
	logger    logrus.FieldLogger
}

func NewHandler(suggester *Suggester, canUse AccessFunc, logger logrus.FieldLogger) *Handler {
	return &Handler{suggester: suggester, canUse: canUse, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respond.JSON(w, http.StatusOK, h.annotate(id, All()))
}

type suggestRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req suggestRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	respond.JSON(w, http.StatusOK, h.annotate(id, h.suggester.Suggest(r.Context(), req.Notes)))
}

func (h *Handler) annotate(id auth.Identity, list []Persona) []Listed {
	out := make([]Listed, 0, len(list))
	for _, p := range list {
		out = append(out, Listed{Persona: p, Locked: !h.canUse(id, p)})
	}
	return out
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/personas", h.List)
	r.Post("/personas/suggest", h.Suggest)
}
