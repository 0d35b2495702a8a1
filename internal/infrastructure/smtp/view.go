package smtp

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	viewVerificationCode = "verification_code"
	viewContactMessage   = "contact_message"
)

// view renders one email: the "subject" block as plain text and the "body"
// block as escaped HTML.
type view struct {
	subject *template.Template
	body    *htmltemplate.Template
}

func parseView(name string) (*view, error) {
	filename := "templates/" + name + ".tmpl"
	subject, err := template.New(name).ParseFS(templateFS, filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s subject: %w", name, err)
	}
	body, err := htmltemplate.New(name).ParseFS(templateFS, filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s body: %w", name, err)
	}
	if subject.Lookup("subject") == nil || body.Lookup("body") == nil {
		return nil, fmt.Errorf("view %s must define subject and body", name)
	}
	return &view{subject: subject, body: body}, nil
}

func (v *view) render(data any) (subject, body string, err error) {
	var s, b bytes.Buffer
	if err := v.subject.ExecuteTemplate(&s, "subject", data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := v.body.ExecuteTemplate(&b, "body", data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	// header values must stay on one line
	return strings.Join(strings.Fields(s.String()), " "), b.String(), nil
}
