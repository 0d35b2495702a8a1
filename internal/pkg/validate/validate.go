package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/pkg/otp"
)

// v is the package-level singleton validator. Custom tags are registered in
// init() before the first call to Struct.
var v = validator.New()

func init() {
	if err := v.RegisterValidation("otpcode", func(fl validator.FieldLevel) bool {
		return otp.Valid(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// Struct validates the given struct using its validate tags.
// The returned error wraps domain.ErrValidation and lists every failed field.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrValidation)
	}
	return nil
}

// Email checks that raw is a single, well-formed email address.
func Email(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("email address is required: %w", domain.ErrValidation)
	}
	if err := v.Var(raw, "email"); err != nil {
		return fmt.Errorf("malformed email address %q: %w", raw, domain.ErrValidation)
	}
	return nil
}

// Code checks that raw looks like a verification code before any lookup happens.
func Code(raw string) error {
	if err := v.Var(raw, "required,otpcode"); err != nil {
		return fmt.Errorf("verification code must be %d digits: %w", otp.Length, domain.ErrValidation)
	}
	return nil
}
