package http

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/portfolio-contact/internal/application/contact"
	"github.com/portfolio-contact/internal/application/verification"
	"github.com/portfolio-contact/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Deps holds everything the router needs. Health and Gatherer may be nil.
type Deps struct {
	Verification   verification.Service
	Contact        contact.Service
	Metrics        *monitoring.Metrics
	Gatherer       prometheus.Gatherer
	Health         healthcheck.Handler
	Logger         *zap.Logger
	AllowedOrigins []string
}

// Pinger is implemented by every verification store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// maxGoroutines is far above what a healthy instance runs; crossing it means a leak.
const maxGoroutines = 2000

// NewHealthChecks builds the /live and /ready checks. Readiness fails while the
// store does not answer within timeout.
func NewHealthChecks(store Pinger, timeout time.Duration) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	h.AddReadinessCheck("verification-store", healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return store.Ping(ctx)
	}, timeout))
	return h
}
