// Package metrics holds Prometheus instruments used across the API.
// All collectors are registered with the global registry, so importing
// this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_requests_total",
			Help: "Record operations served, by collection and operation.",
		},
		[]string{"collection", "operation"})

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_errors_total",
			Help: "Failure envelopes written, by status class.",
		},
		[]string{"class"})

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "record_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		})

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "record_in_flight_requests",
			Help: "Requests currently being served.",
		})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		ErrorsTotal,
		RateLimitedTotal,
		InFlight,
	)
}
