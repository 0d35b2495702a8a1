package handler

import (
	"net/http"

	"github.com/portfolio-contact/internal/application/contact"
	"github.com/portfolio-contact/internal/domain"
)

// ContactHandler accepts contact-form messages.
type ContactHandler struct {
	svc contact.Service
}

func NewContactHandler(svc contact.Service) *ContactHandler {
	return &ContactHandler{svc: svc}
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.ContactSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}
	out, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ContactEnvelope{Message: "message sent", ID: out.ID})
}
