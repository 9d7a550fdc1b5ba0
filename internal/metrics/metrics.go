package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Account lifecycle
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_registrations_total",
		Help: "Total number of successful registrations.",
	})
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_login_attempts_total",
		Help: "Total number of login attempts by outcome.",
	}, []string{"status"}) // success | not_found | not_verified | bad_credentials | error

	// OTP lifecycle
	OTPIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_otp_issued_total",
		Help: "Total number of OTPs issued.",
	}, []string{"purpose"})
	OTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_otp_verifications_total",
		Help: "Total number of OTP verification attempts by result.",
	}, []string{"purpose", "result"}) // success | invalid

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_notifications_total",
		Help: "Total number of outbound notifications by result.",
	}, []string{"result"}) // sent | failed

	// Store
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_store_operation_duration_seconds",
		Help:    "Duration of credential and todo store operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_store_errors_total",
		Help: "Total number of failed store operations.",
	}, []string{"backend", "operation"})

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveStore returns a func that records the duration of one store
// operation and counts it as failed when *err is non-nil.
//
//	defer metrics.ObserveStore("dynamo", "save", &err)()
func ObserveStore(backend, operation string, err *error) func() {
	timer := prometheus.NewTimer(StoreOperationDuration.WithLabelValues(backend, operation))
	return func() {
		timer.ObserveDuration()
		if err != nil && *err != nil {
			StoreErrorsTotal.WithLabelValues(backend, operation).Inc()
		}
	}
}
