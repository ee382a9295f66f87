package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moments_api_requests_total",
		Help: "The total number of requests sent to the moments API",
	}, []string{"method", "status"})

	apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moments_api_errors_total",
		Help: "The total number of failed moments API calls by error kind",
	}, []string{"kind"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moments_api_request_duration_seconds",
		Help:    "Duration of moments API round trips",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // Start at 10ms, double each bucket, 10 buckets
	}, []string{"method"})
)
