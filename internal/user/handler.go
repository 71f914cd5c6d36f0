package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/platform/respond"
)

type Handler struct {
	svc    Service
	logger logrus.FieldLogger
}

func NewHandler(svc Service, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// EnsureUser is the get-or-create touch the client makes after sign-in.
func (h *Handler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	u, err := h.svc.EnsureUser(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("email", id.Email).Error("ensure user failed")
		respond.Error(w, http.StatusInternalServerError, "An error occurred while creating or fetching the user.")
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	u, err := h.svc.Profile(r.Context(), id.Email)
	if err != nil {
		h.writeErr(w, err, "An error occurred while fetching user profile.")
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *Handler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, complete bool) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var upd ProfileUpdate
	if err := respond.Decode(r, &upd); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var u *User
	if complete {
		u, err = h.svc.CompleteProfile(r.Context(), id.Email, upd)
	} else {
		u, err = h.svc.UpdateProfile(r.Context(), id.Email, upd)
	}
	if err != nil {
		h.writeErr(w, err, "An error occurred while updating the profile.")
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, ErrInvalidProfile):
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.WithError(err).Error("profile request failed")
	respond.Error(w, http.StatusInternalServerError, fallback)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/users", h.EnsureUser)
	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.UpdateProfile)
	r.Post("/profile/complete", h.CompleteProfile)
}
