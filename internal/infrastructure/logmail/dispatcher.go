// Package logmail is a dispatcher for local development: it writes every message
// to the log instead of sending it.
package logmail

import (
	"context"
	"time"

	"github.com/portfolio-contact/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher logs messages, codes included, so it must never run in production.
type Dispatcher struct {
	log *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{log: log.Named("logmail")}
}

func (d *Dispatcher) SendVerificationCode(_ context.Context, identity, code string, ttl time.Duration) error {
	d.log.Info("send verification code",
		zap.String("to", identity),
		zap.String("code", code),
		zap.Duration("ttl", ttl),
	)
	return nil
}

func (d *Dispatcher) SendContactMessage(_ context.Context, sub domain.ContactSubmission) error {
	d.log.Info("send contact message",
		zap.String("id", sub.ID),
		zap.String("from_name", sub.SenderName),
		zap.String("from_email", sub.SenderEmail),
		zap.String("subject", sub.Subject),
		zap.String("body", sub.Body),
	)
	return nil
}
