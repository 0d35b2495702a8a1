// Package contact forwards contact-form messages to the site owner, but only for
// senders whose email address has just been verified.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/monitoring"
	"github.com/portfolio-contact/internal/pkg/id"
	"github.com/portfolio-contact/internal/pkg/validate"
	"go.uber.org/zap"
)

const defaultDispatchTimeout = 10 * time.Second

// MessageSender delivers a submission to the site owner.
type MessageSender interface {
	SendContactMessage(ctx context.Context, sub domain.ContactSubmission) error
}

// Verifier hands out single-use claims on verified addresses. Claim fails with
// domain.ErrNotVerified when there is nothing to claim.
type Verifier interface {
	Claim(ctx context.Context, identity string) (challengeID string, err error)
	Release(ctx context.Context, identity, challengeID string) error
	Redeem(ctx context.Context, identity, challengeID string) error
}

// OwnerAlerter pings the owner out of band when a message arrives. Optional.
type OwnerAlerter interface {
	AlertNewMessage(ctx context.Context, sub domain.ContactSubmission) error
}

type Service interface {
	Submit(ctx context.Context, sub domain.ContactSubmission) (*domain.ContactSubmission, error)
}

type service struct {
	verifier        Verifier
	sender          MessageSender
	alerter         OwnerAlerter
	metrics         *monitoring.Metrics
	log             *zap.Logger
	now             func() time.Time
	dispatchTimeout time.Duration
}

type ServiceDeps struct {
	Verifier        Verifier
	Sender          MessageSender
	Alerter         OwnerAlerter
	Metrics         *monitoring.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
	DispatchTimeout time.Duration
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		verifier:        deps.Verifier,
		sender:          deps.Sender,
		alerter:         deps.Alerter,
		metrics:         deps.Metrics,
		log:             deps.Logger,
		now:             deps.Now,
		dispatchTimeout: deps.DispatchTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dispatchTimeout <= 0 {
		s.dispatchTimeout = defaultDispatchTimeout
	}
	return s
}

// Submit validates the message, claims the sender's verification, forwards it and
// then redeems the claim so the next message needs a fresh code. A failed send
// releases the claim so the visitor can retry.
func (s *service) Submit(ctx context.Context, in domain.ContactSubmission) (out *domain.ContactSubmission, err error) {
	defer func() { s.metrics.ObserveContactMessage(err) }()

	sub := domain.ContactSubmission{
		SenderName:  strings.TrimSpace(in.SenderName),
		SenderEmail: domain.NormalizeIdentity(in.SenderEmail),
		Subject:     strings.TrimSpace(in.Subject),
		Body:        strings.TrimSpace(in.Body),
	}
	if err := validate.Struct(sub); err != nil {
		return nil, err
	}
	if sub.Subject == "" {
		sub.Subject = domain.DefaultContactSubject
	}

	challengeID, err := s.verifier.Claim(ctx, sub.SenderEmail)
	if errors.Is(err, domain.ErrNotVerified) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("check verification: %w", err)
	}

	sub.SubmittedAt = s.now()
	sub.ID = id.NewAt(sub.SubmittedAt)
	if err := s.send(ctx, sub); err != nil {
		s.log.Warn("contact message not sent",
			zap.String("identity", sub.SenderEmail), zap.String("kind", domain.Kind(err)), zap.Error(err))
		if rerr := s.verifier.Release(context.WithoutCancel(ctx), sub.SenderEmail, challengeID); rerr != nil {
			// the claim lapses with the verification
			s.log.Error("release verification claim", zap.String("identity", sub.SenderEmail), zap.Error(rerr))
		}
		return nil, err
	}

	if err := s.verifier.Redeem(ctx, sub.SenderEmail, challengeID); err != nil {
		// the message is already out and the claim blocks reuse until it lapses
		s.log.Error("redeem verification after send", zap.String("identity", sub.SenderEmail), zap.Error(err))
	}
	s.log.Info("contact message sent", zap.String("identity", sub.SenderEmail), zap.String("message_id", sub.ID))

	if s.alerter != nil {
		if err := s.alerter.AlertNewMessage(ctx, sub); err != nil {
			s.log.Warn("owner alert failed", zap.String("message_id", sub.ID), zap.Error(err))
		}
	}
	return &sub, nil
}

func (s *service) send(ctx context.Context, sub domain.ContactSubmission) (err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveDispatch("contact_message", started, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	err = s.sender.SendContactMessage(ctx, sub)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", s.dispatchTimeout, domain.ErrDispatch)
	}
	return domain.AsDispatchError(err)
}
