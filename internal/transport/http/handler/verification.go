package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/portfolio-contact/internal/application/verification"
	"github.com/portfolio-contact/internal/pkg/validate"
)

// VerificationHandler serves the email OTP endpoints.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

type requestCodeBody struct {
	Email string `json:"email" validate:"required,email"`
}

type validateCodeBody struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otpcode"`
}

// Action dispatches on {action}: "request" sends a code, "validate-code" checks one.
func (h *VerificationHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		h.request(w, r)
	case "validate-code":
		h.validateCode(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *VerificationHandler) request(w http.ResponseWriter, r *http.Request) {
	var body requestCodeBody
	if !decodeJSON(w, r, &body) {
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if err := validate.Struct(body); err != nil {
		httpError(w, err)
		return
	}
	ch, err := h.svc.RequestCode(r.Context(), body.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OTPEnvelope{
		Success:   true,
		Message:   "OTP sent successfully",
		ExpiresIn: int(ch.ExpiresIn.Seconds()),
	})
}

func (h *VerificationHandler) validateCode(w http.ResponseWriter, r *http.Request) {
	var body validateCodeBody
	if !decodeJSON(w, r, &body) {
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if err := validate.Struct(body); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.SubmitCode(r.Context(), body.Email, body.OTP); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}

// Status reports the verification state of ?email=.
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	state, err := h.svc.State(r.Context(), email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Email: email, State: state})
}
