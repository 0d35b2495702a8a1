package handler

import (
	"net/http"

	"github.com/portfolio-contact/internal/domain"
)

// httpError maps a service error to a status code and a message safe to show a
// visitor. Validation messages name the offending field; everything else is fixed
// text so infrastructure details never leak.
func httpError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	status, msg := http.StatusInternalServerError, "internal server error"
	switch kind {
	case domain.KindValidation:
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case domain.KindNotFound:
		status, msg = http.StatusNotFound, "No verification code found. Please request a new code."
	case domain.KindExpired:
		status, msg = http.StatusGone, "Verification code expired. Please request a new code."
	case domain.KindMismatch:
		status, msg = http.StatusUnauthorized, "Invalid OTP. Please try again."
	case domain.KindNotVerified:
		status, msg = http.StatusForbidden, "Please verify your email with OTP first"
	case domain.KindConfiguration:
		status, msg = http.StatusServiceUnavailable, "Email service not configured. Please contact the administrator."
	case domain.KindDispatch:
		status, msg = http.StatusBadGateway, "Failed to send email. Please try again or contact support."
	default:
		kind = ""
	}
	writeJSON(w, status, MessageEnvelope{Error: msg, Code: kind})
}
