// Package emailjs delivers mail through the EmailJS REST API using the templates
// configured in the EmailJS dashboard.
package emailjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/portfolio-contact/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultAPIURL is the public EmailJS send endpoint.
const DefaultAPIURL = "https://api.emailjs.com/api/v1.0/email/send"

// Values shipped in the sample configuration. Treated as missing.
var placeholders = map[string]bool{
	"your_public_key":      true,
	"your_service_id":      true,
	"template_otp_verify":  true,
	"template_contact_msg": true,
}

// Settings configures the EmailJS account.
type Settings struct {
	APIURL            string
	ServiceID         string
	OTPTemplateID     string
	ContactTemplateID string
	PublicKey         string
	PrivateKey        string // optional access token
	OwnerName         string
	Recipient         string // owner inbox for contact messages
	// RequestsPerSecond paces outbound calls to stay inside the account quota.
	RequestsPerSecond float64
}

// Dispatcher sends both message types through EmailJS.
type Dispatcher struct {
	client   *http.Client
	settings Settings
	limiter  *rate.Limiter
}

// NewDispatcher checks the settings. Missing or placeholder identifiers yield an
// error wrapping domain.ErrConfiguration.
func NewDispatcher(client *http.Client, s Settings) (*Dispatcher, error) {
	var missing []string
	for name, v := range map[string]string{
		"EMAILJS_SERVICE_ID":          s.ServiceID,
		"EMAILJS_OTP_TEMPLATE_ID":     s.OTPTemplateID,
		"EMAILJS_CONTACT_TEMPLATE_ID": s.ContactTemplateID,
		"EMAILJS_PUBLIC_KEY":          s.PublicKey,
	} {
		if v = strings.TrimSpace(v); v == "" || placeholders[v] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("emailjs: %s not set: %w", strings.Join(missing, ", "), domain.ErrConfiguration)
	}
	if s.APIURL == "" {
		s.APIURL = DefaultAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	limit := rate.Inf
	if s.RequestsPerSecond > 0 {
		limit = rate.Limit(s.RequestsPerSecond)
	}
	return &Dispatcher{
		client:   client,
		settings: s,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// SendVerificationCode sends code with the OTP template. The recipient fields are
// repeated under every name the dashboard templates have used.
func (d *Dispatcher) SendVerificationCode(ctx context.Context, identity, code string, ttl time.Duration) error {
	return d.send(ctx, d.settings.OTPTemplateID, map[string]string{
		"user_name":  identity,
		"otp_code":   code,
		"expires_in": ttl.String(),
		"owner_name": d.settings.OwnerName,
		"to_email":   identity,
		"email":      identity,
		"user_email": identity,
		"reply_to":   identity,
		"from_email": identity,
	})
}

// SendContactMessage sends sub with the contact template.
func (d *Dispatcher) SendContactMessage(ctx context.Context, sub domain.ContactSubmission) error {
	params := map[string]string{
		"sender_name":     sub.SenderName,
		"sender_email":    sub.SenderEmail,
		"message_subject": sub.Subject,
		"message_content": sub.Body,
		"current_date":    sub.SubmittedAt.Format("1/2/2006, 3:04:05 PM"),
		"email":           sub.SenderEmail,
		"user_email":      sub.SenderEmail,
		"reply_to":        sub.SenderEmail,
		"from_email":      sub.SenderEmail,
	}
	if d.settings.Recipient != "" {
		params["to_email"] = d.settings.Recipient
	}
	return d.send(ctx, d.settings.ContactTemplateID, params)
}

func (d *Dispatcher) send(ctx context.Context, templateID string, params map[string]string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("emailjs: waiting for send slot: %w: %w", err, domain.ErrDispatch)
	}

	var b bytes.Buffer
	err := json.NewEncoder(&b).Encode(sendRequest{
		ServiceID:      d.settings.ServiceID,
		TemplateID:     templateID,
		UserID:         d.settings.PublicKey,
		AccessToken:    d.settings.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("emailjs: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.settings.APIURL, &b)
	if err != nil {
		return fmt.Errorf("emailjs: create request: %w: %w", err, domain.ErrConfiguration)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("emailjs: send request: %w: %w", err, domain.ErrDispatch)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return classify(resp.StatusCode, strings.TrimSpace(string(body)))
}

// classify maps an EmailJS failure to an error kind. EmailJS answers 400 both for
// bad account identifiers and for template parameter problems, so the body decides.
func classify(status int, body string) error {
	err := fmt.Errorf("emailjs: status %d: %s", status, body)
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", err, domain.ErrConfiguration)
	case status == http.StatusBadRequest && mentionsAccount(lower):
		return fmt.Errorf("%w: %w", err, domain.ErrConfiguration)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", err, domain.ErrValidation)
	default:
		return fmt.Errorf("%w: %w", err, domain.ErrDispatch)
	}
}

func mentionsAccount(body string) bool {
	for _, s := range []string{"public key", "user id", "service id", "template id", "account"} {
		if strings.Contains(body, s) {
			return true
		}
	}
	return false
}
