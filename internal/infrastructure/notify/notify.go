// Package notify picks the email backend named by configuration.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/portfolio-contact/internal/config"
	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/infrastructure/emailjs"
	"github.com/portfolio-contact/internal/infrastructure/logmail"
	"github.com/portfolio-contact/internal/infrastructure/smtp"
	"go.uber.org/zap"
)

// Dispatcher sends both kinds of email the service produces.
type Dispatcher interface {
	SendVerificationCode(ctx context.Context, identity, code string, ttl time.Duration) error
	SendContactMessage(ctx context.Context, sub domain.ContactSubmission) error
}

// Unavailable stands in when no backend could be configured. Every call fails
// with the error found at startup.
type Unavailable struct {
	Err error
}

func (u Unavailable) SendVerificationCode(context.Context, string, string, time.Duration) error {
	return u.Err
}

func (u Unavailable) SendContactMessage(context.Context, domain.ContactSubmission) error {
	return u.Err
}

// New builds the dispatcher for cfg.MailProvider. A configuration problem is
// returned wrapping domain.ErrConfiguration; callers usually log it and fall back
// to Unavailable so the API still starts.
func New(cfg *config.Config, log *zap.Logger, client *http.Client) (Dispatcher, error) {
	switch cfg.MailProvider {
	case config.MailSMTP:
		d, err := smtp.NewDispatcher(smtp.Settings{
			Host:           cfg.SMTPHost,
			Port:           cfg.SMTPPort,
			Username:       cfg.SMTPUsername,
			Password:       cfg.SMTPPassword,
			From:           cfg.SMTPFrom,
			Recipient:      cfg.ContactRecipient,
			OwnerName:      cfg.OwnerName,
			AllowAnonymous: cfg.SMTPAllowAnonymous,
			ImplicitTLS:    cfg.SMTPImplicitTLS,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.MailEmailJS:
		d, err := emailjs.NewDispatcher(client, emailjs.Settings{
			APIURL:            cfg.EmailJS.APIURL,
			ServiceID:         cfg.EmailJS.ServiceID,
			OTPTemplateID:     cfg.EmailJS.OTPTemplateID,
			ContactTemplateID: cfg.EmailJS.ContactTemplateID,
			PublicKey:         cfg.EmailJS.PublicKey,
			PrivateKey:        cfg.EmailJS.PrivateKey,
			OwnerName:         cfg.OwnerName,
			Recipient:         cfg.ContactRecipient,
			RequestsPerSecond: cfg.EmailJS.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.MailLog:
		return logmail.NewDispatcher(log), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q: %w", cfg.MailProvider, domain.ErrConfiguration)
	}
}
