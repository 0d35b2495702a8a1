package domain

import (
	"strings"
	"time"
)

// VerificationState is the lifecycle position of an identity's current challenge.
type VerificationState string

const (
	StateNone     VerificationState = "none"
	StatePending  VerificationState = "pending"
	StateVerified VerificationState = "verified"
	StateExpired  VerificationState = "expired"
)

// VerificationEntry is the outstanding OTP challenge for one email address.
// Only the bcrypt hash of the code is kept. A new challenge for the same
// identity replaces the previous entry.
type VerificationEntry struct {
	Identity    string    `json:"identity"`
	ChallengeID string    `json:"challenge_id"`
	CodeHash    string    `json:"code_hash"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
	// Claimed marks a verified entry whose contact message is being sent. A claim
	// lets exactly one submission use the verification, across instances.
	Claimed     bool      `json:"claimed"`
}

// Expired reports whether the entry lapsed strictly before now.
func (e *VerificationEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// State derives the lifecycle state of the entry at now.
func (e *VerificationEntry) State(now time.Time) VerificationState {
	switch {
	case e.Expired(now):
		return StateExpired
	case e.Consumed:
		return StateVerified
	default:
		return StatePending
	}
}

// NormalizeIdentity lower-cases and trims an email address so that
// "A@Example.com " and "a@example.com" share one challenge.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
