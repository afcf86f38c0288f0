package observability

import (
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Job outcomes recorded per job kind.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
	OutcomeSkipped   = "skipped"
)

var jobKinds = []domain.JobKind{
	domain.JobCRMUpsert, domain.JobFollowupPublish, domain.JobContractPDF, domain.JobEmail, domain.JobCRMInbound,
}

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	// Registry owns these metrics; /metrics serves it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	signalFailures  *prometheus.CounterVec
	followupsSynced prometheus.Counter
	emailsSent      *prometheus.CounterVec
}

// NewMetrics registers every metric on a private registry so tests can
// build as many as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_external_errors_total",
				Help: "Errors returned by upstream services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_cache_hits_total",
				Help: "Cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_cache_misses_total",
				Help: "Cache misses.",
			},
			[]string{"cache"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_jobs_total",
				Help: "Background jobs by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_job_duration_seconds",
				Help:    "Background job execution time.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		signalFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_signal_handler_failures_total",
				Help: "Post-save signal handlers that returned an error.",
			},
			[]string{"handler"},
		),
		followupsSynced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_followups_synced_total",
				Help: "Mortgage follow-ups created or updated by the poller.",
			},
		),
		emailsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_emails_sent_total",
				Help: "Transactional emails handed to the provider.",
			},
			[]string{"template"},
		),
	}
}

func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// CacheObserver adapts the hit/miss counters to cache.InMemory.OnLookup.
func (m *Metrics) CacheObserver(cache string) func(hit bool) {
	return func(hit bool) {
		if hit {
			m.IncrCacheHit(cache)
		} else {
			m.IncrCacheMiss(cache)
		}
	}
}

// RecordJob counts one job outcome and its execution time.
func (m *Metrics) RecordJob(kind domain.JobKind, outcome string, d time.Duration) {
	m.jobs.WithLabelValues(string(kind), outcome).Inc()
	m.jobDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) IncrSignalFailure(handler string) {
	m.signalFailures.WithLabelValues(handler).Inc()
}

func (m *Metrics) AddFollowupsSynced(n int) {
	m.followupsSynced.Add(float64(n))
}

func (m *Metrics) IncrEmailSent(template domain.EmailTemplate) {
	m.emailsSent.WithLabelValues(string(template)).Inc()
}

// QueueSnapshot returns cumulative job outcomes per kind for
// GET /api/1.0.0/queue/stats.
func (m *Metrics) QueueSnapshot() *domain.QueueStats {
	stats := &domain.QueueStats{
		Succeeded: map[string]float64{},
		Retried:   map[string]float64{},
		Dead:      map[string]float64{},
		Skipped:   map[string]float64{},
	}
	for _, kind := range jobKinds {
		k := string(kind)
		stats.Succeeded[k] = getCounterValue(m.jobs, k, OutcomeSucceeded)
		stats.Retried[k] = getCounterValue(m.jobs, k, OutcomeRetried)
		stats.Dead[k] = getCounterValue(m.jobs, k, OutcomeDead)
		stats.Skipped[k] = getCounterValue(m.jobs, k, OutcomeSkipped)
	}
	return stats
}

// getCounterValue reads the current value of one CounterVec child.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
