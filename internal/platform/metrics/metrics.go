package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "intake/pkg/domain-errors"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing, so services can run without instrumentation.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Challenges        *prometheus.CounterVec
	ReviewerAuth      *prometheus.CounterVec
	AuditFailures     prometheus.Counter
	DraftsCreated     prometheus.Counter
	RateLimited       *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_record_operations_total",
			Help: "Lifecycle and claim operations by name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_record_operation_duration_seconds",
			Help:    "Duration of lifecycle and claim operations including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		Challenges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_email_challenges_total",
			Help: "Email challenge starts and verification outcomes",
		}, []string{"outcome"}),
		ReviewerAuth: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_reviewer_auth_total",
			Help: "Reviewer bearer authentication attempts by outcome",
		}, []string{"outcome"}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_audit_append_failures_total",
			Help: "Audit events that could not be persisted",
		}),
		DraftsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_drafts_created_total",
			Help: "Draft records created on first durable save",
		}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_rate_limited_total",
			Help: "Requests refused by the per-IP limiter, by endpoint class",
		}, []string{"class"}),
	}
}

// Outcome labels an operation result with its error code, or "ok".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}

// ObserveOperation records one completed engine operation.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementChallenge records a challenge event ("started", "verified", "mismatch", ...).
func (m *Metrics) IncrementChallenge(outcome string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(outcome).Inc()
}

// IncrementReviewerAuth records a bearer authentication outcome.
func (m *Metrics) IncrementReviewerAuth(outcome string) {
	if m == nil {
		return
	}
	m.ReviewerAuth.WithLabelValues(outcome).Inc()
}

// IncrementDraftsCreated records a newly persisted draft.
func (m *Metrics) IncrementDraftsCreated() {
	if m == nil {
		return
	}
	m.DraftsCreated.Inc()
}

// IncrementRateLimited records a refused request.
func (m *Metrics) IncrementRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}

// AuditFailureCounter exposes the audit failure counter to the publisher.
func (m *Metrics) AuditFailureCounter() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.AuditFailures
}
