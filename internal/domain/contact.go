package domain

import "time"

// DefaultContactSubject is used when the visitor leaves the subject blank.
const DefaultContactSubject = "Contact Form Message"

// ContactSubmission is a message from the contact form. It is forwarded to the
// site owner once the sender's address is verified and is never persisted.
type ContactSubmission struct {
	ID          string    `json:"id"`
	SenderName  string    `json:"name" validate:"required"`
	SenderEmail string    `json:"email" validate:"required,email"`
	Subject     string    `json:"subject"`
	Body        string    `json:"message" validate:"required"`
	SubmittedAt time.Time `json:"submitted_at"`
}
