// Package smtp delivers verification codes and contact messages over SMTP.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/pkg/id"
)

// Values shipped in the sample .env. Treated as missing.
var placeholders = map[string]bool{
	"your-email@gmail.com":           true,
	"your-16-character-app-password": true,
}

// Settings configures the SMTP account used for both messages.
type Settings struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	Recipient string // owner inbox for contact messages
	OwnerName string
	// AllowAnonymous skips AUTH and TLS, for local relays and tests.
	AllowAnonymous bool
	// ImplicitTLS dials TLS directly instead of upgrading with STARTTLS.
	// Port 465 always uses it.
	ImplicitTLS bool
	// TLSConfig overrides the default client TLS settings, e.g. for a private CA.
	TLSConfig *tls.Config
}

// Dispatcher sends mail through one SMTP server.
type Dispatcher struct {
	settings Settings
	code     *view
	contact  *view
	now      func() time.Time
}

// NewDispatcher checks the settings and parses the embedded templates. Missing or
// placeholder credentials yield an error wrapping domain.ErrConfiguration.
func NewDispatcher(s Settings) (*Dispatcher, error) {
	var missing []string
	if s.Host == "" || s.Port == "" {
		missing = append(missing, "SMTP_HOST/SMTP_PORT")
	}
	if !s.AllowAnonymous {
		if unset(s.Username) {
			missing = append(missing, "SMTP_USERNAME")
		}
		if unset(s.Password) {
			missing = append(missing, "SMTP_PASSWORD")
		}
	}
	if unset(s.From) {
		missing = append(missing, "SMTP_FROM")
	}
	if unset(s.Recipient) {
		missing = append(missing, "CONTACT_RECIPIENT")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("smtp: %s not set: %w", strings.Join(missing, ", "), domain.ErrConfiguration)
	}

	code, err := parseView(viewVerificationCode)
	if err != nil {
		return nil, err
	}
	contact, err := parseView(viewContactMessage)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{settings: s, code: code, contact: contact, now: time.Now}, nil
}

func unset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || placeholders[v]
}

// SendVerificationCode mails code to identity.
func (d *Dispatcher) SendVerificationCode(ctx context.Context, identity, code string, ttl time.Duration) error {
	subject, body, err := d.code.render(struct {
		OwnerName string
		Code      string
		ExpiresIn string
	}{d.settings.OwnerName, code, humanDuration(ttl)})
	if err != nil {
		return fmt.Errorf("%w: %w", err, domain.ErrDispatch)
	}
	msg := message{
		From:    d.settings.From,
		To:      identity,
		Subject: subject,
		HTML:    body,
	}
	return d.send(ctx, msg)
}

// SendContactMessage mails sub to the owner with Reply-To set to the sender.
func (d *Dispatcher) SendContactMessage(ctx context.Context, sub domain.ContactSubmission) error {
	subject, body, err := d.contact.render(sub)
	if err != nil {
		return fmt.Errorf("%w: %w", err, domain.ErrDispatch)
	}
	msg := message{
		From:     d.settings.From,
		FromName: sub.SenderName + " via portfolio",
		To:       d.settings.Recipient,
		ReplyTo:  sub.SenderEmail,
		Subject:  subject,
		HTML:     body,
	}
	return d.send(ctx, msg)
}

// send runs the SMTP exchange in a goroutine so ctx can abandon it. An abandoned
// exchange is unblocked by closing its connection as soon as one exists.
func (d *Dispatcher) send(ctx context.Context, msg message) error {
	msg.Date = d.now()
	msg.MessageID = fmt.Sprintf("<%s@%s>", id.NewAt(msg.Date), messageIDHost(d.settings.From))
	raw, err := msg.bytes()
	if err != nil {
		return fmt.Errorf("build message: %w", domain.ErrDispatch)
	}

	addr := net.JoinHostPort(d.settings.Host, d.settings.Port)
	conns := make(chan *gosmtp.Client, 1)
	done := make(chan error, 1)
	go func() {
		c, err := d.dial(addr)
		if err != nil {
			done <- fmt.Errorf("dial %s: %w: %w", addr, err, domain.ErrDispatch)
			return
		}
		conns <- c
		done <- d.exchange(c, msg.To, raw)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			select {
			case c := <-conns:
				_ = c.Close()
			case <-done:
			}
		}()
		return fmt.Errorf("smtp exchange abandoned: %w: %w", ctx.Err(), domain.ErrDispatch)
	}
}

// dial opens the connection. Credentials only ever travel over TLS: an authenticated
// account either dials TLS directly or requires STARTTLS, and fails when the server
// does not offer it. Plain connections are reserved for anonymous relays.
func (d *Dispatcher) dial(addr string) (*gosmtp.Client, error) {
	if d.settings.AllowAnonymous {
		return gosmtp.Dial(addr)
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if d.settings.TLSConfig != nil {
		cfg = d.settings.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = d.settings.Host
	}
	if d.settings.ImplicitTLS || d.settings.Port == "465" {
		return gosmtp.DialTLS(addr, cfg)
	}
	return gosmtp.DialStartTLS(addr, cfg)
}

func (d *Dispatcher) exchange(c *gosmtp.Client, to string, raw []byte) error {
	defer c.Close()

	if !d.settings.AllowAnonymous {
		auth := sasl.NewPlainClient("", d.settings.Username, d.settings.Password)
		if err := c.Auth(auth); err != nil {
			return classify("auth", err)
		}
	}
	if err := c.Mail(d.settings.From, nil); err != nil {
		return classify("mail from", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return classify("rcpt to", err)
	}
	w, err := c.Data()
	if err != nil {
		return classify("data", err)
	}
	if _, err := w.Write(raw); err != nil {
		return classify("data", err)
	}
	if err := w.Close(); err != nil {
		return classify("data", err)
	}
	return c.Quit()
}

// classify maps an SMTP reply to the error kinds the flow understands: rejected
// credentials are a configuration problem, a refused mailbox is bad input, anything
// else is a failed dispatch.
func classify(stage string, err error) error {
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		switch se.Code {
		case 530, 534, 535, 538:
			return fmt.Errorf("smtp %s: %w: %w", stage, err, domain.ErrConfiguration)
		case 501, 510, 511, 550, 553:
			if stage == "rcpt to" {
				return fmt.Errorf("smtp %s: %w: %w", stage, err, domain.ErrValidation)
			}
		}
	}
	return fmt.Errorf("smtp %s: %w: %w", stage, err, domain.ErrDispatch)
}

func messageIDHost(from string) string {
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}
