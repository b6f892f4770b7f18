// Package telemetry holds the Prometheus collectors of the quiz server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	AttemptsStarted  prometheus.Counter
	AttemptsFinished *prometheus.CounterVec
	AnswersSaved     prometheus.Counter
	RequestDuration  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizrun_attempts_started_total",
			Help: "Number of quiz attempts created",
		}),
		AttemptsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizrun_attempts_finished_total",
			Help: "Number of quiz attempts finished, by completion",
		}, []string{"completion"}),
		AnswersSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizrun_answers_saved_total",
			Help: "Number of answers recorded",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizrun_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
