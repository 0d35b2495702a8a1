package handler

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-contact/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Code carries the error kind.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OTPEnvelope answers a code request.
type OTPEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// StatusEnvelope reports the verification state of one address.
type StatusEnvelope struct {
	Email string                   `json:"email"`
	State domain.VerificationState `json:"state"`
}

// ContactEnvelope answers an accepted contact message.
type ContactEnvelope struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

const maxBodyBytes = 64 << 10

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
