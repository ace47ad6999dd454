package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for coinsight. Each Registry owns its
// own prometheus.Registry so tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	// Analysis workflow
	RunsStarted    *prometheus.CounterVec
	RunsCompleted  *prometheus.CounterVec
	RunsSuperseded prometheus.Counter
	RunsFailed     prometheus.Counter
	ActiveRuns     prometheus.Gauge
	StageDuration  *prometheus.HistogramVec
	Signals        *prometheus.CounterVec

	// Collaborators
	ActiveSessions     prometheus.Gauge
	AuthEvents         *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec
	LimitRejections    *prometheus.CounterVec

	// HTTP
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with every coinsight metric registered,
// plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_analysis_runs_started_total",
				Help: "Analysis runs started by granularity",
			},
			[]string{"granularity"},
		),

		RunsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_analysis_runs_completed_total",
				Help: "Analysis runs that produced a result, by provider",
			},
			[]string{"provider"},
		),

		RunsSuperseded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coinsight_analysis_runs_superseded_total",
				Help: "Analysis runs cancelled by a newer invocation or sign-out",
			},
		),

		RunsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coinsight_analysis_runs_failed_total",
				Help: "Analysis runs whose provider returned an error",
			},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinsight_analysis_active_runs",
				Help: "Number of analysis runs currently in the Running state",
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinsight_active_sessions",
				Help: "Users currently signed in to this instance",
			},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsight_stage_duration_seconds",
				Help:    "Time spent on each progress stage",
				Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 5.0},
			},
			[]string{"stage"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_signals_total",
				Help: "Produced signals by kind",
			},
			[]string{"signal"},
		),

		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_auth_events_total",
				Help: "Sign-in and sign-out events",
			},
			[]string{"event"},
		),

		CollaboratorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_collaborator_errors_total",
				Help: "Failures reported by identity, storage and payments",
			},
			[]string{"collaborator"},
		),

		LimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_limit_rejections_total",
				Help: "Analysis starts refused by plan rules",
			},
			[]string{"reason"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsight_http_request_duration_seconds",
				Help:    "HTTP request latency by route and status class",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	r.reg.MustRegister(
		r.RunsStarted,
		r.RunsCompleted,
		r.RunsSuperseded,
		r.RunsFailed,
		r.ActiveRuns,
		r.StageDuration,
		r.Signals,
		r.ActiveSessions,
		r.AuthEvents,
		r.CollaboratorErrors,
		r.LimitRejections,
		r.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) RunStarted(granularity string) {
	r.RunsStarted.WithLabelValues(granularity).Inc()
	r.ActiveRuns.Inc()
}

func (r *Registry) RunCompleted(provider, signal string) {
	r.RunsCompleted.WithLabelValues(provider).Inc()
	r.Signals.WithLabelValues(signal).Inc()
	r.ActiveRuns.Dec()
}

func (r *Registry) RunSuperseded() {
	r.RunsSuperseded.Inc()
	r.ActiveRuns.Dec()
}

func (r *Registry) RunFailed() {
	r.RunsFailed.Inc()
	r.ActiveRuns.Dec()
}

func (r *Registry) StageCompleted(label string, d time.Duration) {
	r.StageDuration.WithLabelValues(label).Observe(d.Seconds())
}

func (r *Registry) SetActiveSessions(n int) {
	r.ActiveSessions.Set(float64(n))
}

func (r *Registry) AuthEvent(event string) {
	r.AuthEvents.WithLabelValues(event).Inc()
}

func (r *Registry) CollaboratorError(collaborator string) {
	r.CollaboratorErrors.WithLabelValues(collaborator).Inc()
}

func (r *Registry) LimitRejected(reason string) {
	r.LimitRejections.WithLabelValues(reason).Inc()
}

func (r *Registry) ObserveRequest(method, route, status string, d time.Duration) {
	r.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
