// Package monitoring exposes the Prometheus collectors used by the services and the HTTP layer.
package monitoring

import (
	"time"

	"github.com/portfolio-contact/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portfolio_contact"

// Metrics groups every collector the service reports. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	OTPRequests         *prometheus.CounterVec
	OTPVerifications    *prometheus.CounterVec
	ContactMessages     *prometheus.CounterVec
	DispatchDuration    *prometheus.HistogramVec
	SweptEntries        prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_requests_total",
			Help:      "Verification code requests by result.",
		}, []string{"result"}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "Verification code submissions by result.",
		}, []string{"result"}),
		ContactMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_messages_total",
			Help:      "Contact form submissions by result.",
		}, []string{"result"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handing an email to the provider.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
		SweptEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_swept_entries_total",
			Help:      "Expired verification entries removed by the sweep.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveOTPRequest counts a code request labelled by the kind of err.
func (m *Metrics) ObserveOTPRequest(err error) {
	if m == nil {
		return
	}
	m.OTPRequests.WithLabelValues(domain.Kind(err)).Inc()
}

// ObserveOTPVerification counts a code submission labelled by the kind of err.
func (m *Metrics) ObserveOTPVerification(err error) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(domain.Kind(err)).Inc()
}

// ObserveContactMessage counts a contact submission labelled by the kind of err.
func (m *Metrics) ObserveContactMessage(err error) {
	if m == nil {
		return
	}
	m.ContactMessages.WithLabelValues(domain.Kind(err)).Inc()
}

// ObserveDispatch records how long a send of the given operation took.
func (m *Metrics) ObserveDispatch(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(operation, domain.Kind(err)).Observe(time.Since(started).Seconds())
}

// AddSwept adds n removed entries.
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptEntries.Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
