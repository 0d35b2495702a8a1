package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreDynamo = "dynamo"
)

// Mail providers.
const (
	MailSMTP    = "smtp"
	MailEmailJS = "emailjs"
	MailLog     = "log"
)

// Config holds all runtime configuration loaded from environment variables.
// It is read once at startup.
type Config struct {
	AppPort        string
	AppEnv         string
	LogLevel       string
	LogFile        string
	AllowedOrigins []string // CORS allowed origins

	OTPTTL           time.Duration
	OTPVerifiedTTL   time.Duration // how long a verified address stays verified
	OTPSweepInterval time.Duration
	OTPHashCost      int
	DispatchTimeout  time.Duration

	StoreBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	MailProvider       string
	OwnerName          string
	ContactRecipient   string // where contact messages are delivered
	SMTPHost           string
	SMTPPort           string
	SMTPFrom           string
	SMTPUsername       string
	SMTPPassword       string
	SMTPAllowAnonymous bool
	SMTPImplicitTLS    bool // TLS from the first byte (port 465) instead of STARTTLS
	EmailJS            EmailJS

	SNSRegion        string
	SNSOwnerTopicARN string
	SNSOwnerPhone    string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Verifications string
}

// EmailJS holds the EmailJS REST API settings.
type EmailJS struct {
	APIURL            string
	ServiceID         string
	OTPTemplateID     string
	ContactTemplateID string
	PublicKey         string
	PrivateKey        string
	RequestsPerSecond float64
}

var defaults = map[string]interface{}{
	"APP_PORT":                    "3000",
	"APP_ENV":                     "development",
	"LOG_LEVEL":                   "info",
	"LOG_FILE":                    "",
	"ALLOWED_ORIGINS":             "*",
	"OTP_TTL":                     "5m",
	"OTP_VERIFIED_TTL":            "10m",
	"OTP_SWEEP_INTERVAL":          "60s",
	"OTP_HASH_COST":               bcrypt.DefaultCost,
	"DISPATCH_TIMEOUT":            "10s",
	"STORE_BACKEND":               StoreMemory,
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"REDIS_KEY_PREFIX":            "portfolio:otp:",
	"AWS_REGION":                  "us-east-1",
	"AWS_ENDPOINT_URL":            "",
	"AWS_ACCESS_KEY_ID":           "",
	"AWS_SECRET_ACCESS_KEY":       "",
	"DYNAMO_TABLE_VERIFICATIONS":  "contact_verifications",
	"MAIL_PROVIDER":               MailSMTP,
	"OWNER_NAME":                  "Pruthvi Suvarna",
	"CONTACT_RECIPIENT":           "",
	"SMTP_HOST":                   "smtp.gmail.com",
	"SMTP_PORT":                   "587",
	"SMTP_FROM":                   "",
	"SMTP_USERNAME":               "",
	"SMTP_PASSWORD":               "",
	"SMTP_ALLOW_ANONYMOUS":        false,
	"SMTP_IMPLICIT_TLS":           false,
	"EMAILJS_API_URL":             "https://api.emailjs.com/api/v1.0/email/send",
	"EMAILJS_SERVICE_ID":          "",
	"EMAILJS_OTP_TEMPLATE_ID":     "",
	"EMAILJS_CONTACT_TEMPLATE_ID": "",
	"EMAILJS_PUBLIC_KEY":          "",
	"EMAILJS_PRIVATE_KEY":         "",
	"EMAILJS_REQUESTS_PER_SECOND": 1.0,
	"SNS_REGION":                  "us-east-1",
	"SNS_OWNER_TOPIC_ARN":         "",
	"SNS_OWNER_PHONE":             "",
}

// aliases lets the variable names used by the old Node deployment keep working.
var aliases = map[string][]string{
	"SMTP_USERNAME":               {"SMTP_USERNAME", "EMAIL_USER"},
	"SMTP_PASSWORD":               {"SMTP_PASSWORD", "EMAIL_PASS"},
	"EMAILJS_SERVICE_ID":          {"EMAILJS_SERVICE_ID", "NEXT_PUBLIC_EMAILJS_SERVICE_ID"},
	"EMAILJS_OTP_TEMPLATE_ID":     {"EMAILJS_OTP_TEMPLATE_ID", "NEXT_PUBLIC_EMAILJS_OTP_TEMPLATE_ID"},
	"EMAILJS_CONTACT_TEMPLATE_ID": {"EMAILJS_CONTACT_TEMPLATE_ID", "NEXT_PUBLIC_EMAILJS_CONTACT_TEMPLATE_ID"},
	"EMAILJS_PUBLIC_KEY":          {"EMAILJS_PUBLIC_KEY", "NEXT_PUBLIC_EMAILJS_PUBLIC_KEY"},
}

// Load reads all configuration from environment variables, falling back to defaults.
// It rejects values that could never work (unknown backends, non-positive durations);
// email credentials are checked later, when the dispatcher is built.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for k, envs := range aliases {
		if err := v.BindEnv(append([]string{k}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:          v.GetString("APP_PORT"),
		AppEnv:           v.GetString("APP_ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFile:          v.GetString("LOG_FILE"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		OTPTTL:           v.GetDuration("OTP_TTL"),
		OTPVerifiedTTL:   v.GetDuration("OTP_VERIFIED_TTL"),
		OTPSweepInterval: v.GetDuration("OTP_SWEEP_INTERVAL"),
		OTPHashCost:      v.GetInt("OTP_HASH_COST"),
		DispatchTimeout:  v.GetDuration("DISPATCH_TIMEOUT"),
		StoreBackend:     strings.ToLower(v.GetString("STORE_BACKEND")),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		RedisKeyPrefix:   v.GetString("REDIS_KEY_PREFIX"),
		AWSRegion:        v.GetString("AWS_REGION"),
		AWSEndpointURL:   v.GetString("AWS_ENDPOINT_URL"),
		AWSAccessKeyID:   v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:     v.GetString("AWS_SECRET_ACCESS_KEY"),
		DynamoTables: DynamoTables{
			Verifications: v.GetString("DYNAMO_TABLE_VERIFICATIONS"),
		},
		MailProvider:       strings.ToLower(v.GetString("MAIL_PROVIDER")),
		OwnerName:          v.GetString("OWNER_NAME"),
		ContactRecipient:   v.GetString("CONTACT_RECIPIENT"),
		SMTPHost:           v.GetString("SMTP_HOST"),
		SMTPPort:           v.GetString("SMTP_PORT"),
		SMTPFrom:           v.GetString("SMTP_FROM"),
		SMTPUsername:       v.GetString("SMTP_USERNAME"),
		SMTPPassword:       v.GetString("SMTP_PASSWORD"),
		SMTPAllowAnonymous: v.GetBool("SMTP_ALLOW_ANONYMOUS"),
		SMTPImplicitTLS:    v.GetBool("SMTP_IMPLICIT_TLS"),
		EmailJS: EmailJS{
			APIURL:            v.GetString("EMAILJS_API_URL"),
			ServiceID:         v.GetString("EMAILJS_SERVICE_ID"),
			OTPTemplateID:     v.GetString("EMAILJS_OTP_TEMPLATE_ID"),
			ContactTemplateID: v.GetString("EMAILJS_CONTACT_TEMPLATE_ID"),
			PublicKey:         v.GetString("EMAILJS_PUBLIC_KEY"),
			PrivateKey:        v.GetString("EMAILJS_PRIVATE_KEY"),
			RequestsPerSecond: v.GetFloat64("EMAILJS_REQUESTS_PER_SECOND"),
		},
		SNSRegion:        v.GetString("SNS_REGION"),
		SNSOwnerTopicARN: v.GetString("SNS_OWNER_TOPIC_ARN"),
		SNSOwnerPhone:    v.GetString("SNS_OWNER_PHONE"),
	}

	// The SMTP account doubles as sender and recipient unless told otherwise,
	// which is how the site was originally deployed.
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUsername
	}
	if cfg.ContactRecipient == "" {
		cfg.ContactRecipient = cfg.SMTPUsername
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether APP_ENV selects a non-production environment.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

func (c *Config) validate() error {
	durations := map[string]time.Duration{
		"OTP_TTL":            c.OTPTTL,
		"OTP_VERIFIED_TTL":   c.OTPVerifiedTTL,
		"OTP_SWEEP_INTERVAL": c.OTPSweepInterval,
		"DISPATCH_TIMEOUT":   c.DispatchTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("invalid env variable %s: must be a positive duration", name)
		}
	}
	if c.OTPSweepInterval < time.Second {
		return fmt.Errorf("invalid env variable OTP_SWEEP_INTERVAL: must be at least 1s")
	}
	if c.OTPHashCost < bcrypt.MinCost || c.OTPHashCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid env variable OTP_HASH_COST: must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreRedis, StoreDynamo:
	default:
		return fmt.Errorf("invalid env variable STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}
	switch c.MailProvider {
	case MailSMTP, MailEmailJS, MailLog:
	default:
		return fmt.Errorf("invalid env variable MAIL_PROVIDER: unknown provider %q", c.MailProvider)
	}
	// the log provider writes verification codes to the logs
	if c.MailProvider == MailLog && !c.IsDevelopment() {
		return fmt.Errorf("invalid env variable MAIL_PROVIDER: %q is only allowed in development, APP_ENV is %q", MailLog, c.AppEnv)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
