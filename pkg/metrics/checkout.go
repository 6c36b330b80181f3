package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of checkout attempts.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	success  prometheus.Counter
	failure  *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	success := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_success_total",
		Help: "Orders successfully committed.",
	})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failure_total",
		Help: "Checkout attempts rejected, by error code.",
	}, []string{"code"})
	reg.MustRegister(duration, success, failure)
	return &CheckoutMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records how long a checkout attempt took.
func (c *CheckoutMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncSuccess increments the committed-order counter.
func (c *CheckoutMetrics) IncSuccess() {
	if c == nil || c.success == nil {
		return
	}
	c.success.Inc()
}

// IncFailure increments the rejection counter for the given error code.
func (c *CheckoutMetrics) IncFailure(code string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(code).Inc()
}
