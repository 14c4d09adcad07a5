package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OTPIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_otp_issued_total",
		Help: "One-time passcodes issued, by purpose",
	}, []string{"purpose"})

	OTPChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_otp_checks_total",
		Help: "OTP validation attempts, by purpose and outcome",
	}, []string{"purpose", "result"})

	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(OTPIssued, OTPChecks, Logins, HTTPRequests, HTTPDuration)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
