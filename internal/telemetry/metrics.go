package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "contentplan"

// Metrics holds the process counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	jobRuns     *prometheus.CounterVec
	jobItems    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	publishes   *prometheus.CounterVec
	generations *prometheus.CounterVec
	updates     prometheus.Counter
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduler job runs by job and result.",
		}, []string{"job", "result"}),
		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_items_total",
			Help:      "Items handled by scheduler jobs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduler job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Channel publish attempts by path and result.",
		}, []string{"path", "result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_total",
			Help:      "Text generation calls by kind and result.",
		}, []string{"kind", "result"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns, m.jobItems, m.jobDuration, m.publishes, m.generations, m.updates,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveJob records one completed run of a scheduler job.
func (m *Metrics) ObserveJob(job string, d time.Duration, succeeded, failed int, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	m.jobItems.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	m.jobItems.WithLabelValues(job, "failed").Add(float64(failed))
}

// ObservePublish records a channel send on the given path ("immediate" or "scheduled").
func (m *Metrics) ObservePublish(path string, err error) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(path, result(err)).Inc()
}

// ObserveGeneration records a text generation call.
func (m *Metrics) ObserveGeneration(kind string, err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(kind, result(err)).Inc()
}

// ObserveUpdate counts an incoming update.
func (m *Metrics) ObserveUpdate() {
	if m == nil {
		return
	}
	m.updates.Inc()
}
