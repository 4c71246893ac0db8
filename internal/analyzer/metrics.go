package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Observer that feeds Prometheus collectors.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	LinkProbesTotal  *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	CacheStores      *prometheus.CounterVec
}

// NewMetrics creates the analyzer collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "analyzer_requests_total", Help: "Analyses by outcome"},
			[]string{"status"},
		),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_duration_seconds",
			Help:    "Analysis duration",
			Buckets: prometheus.DefBuckets,
		}),
		LinkProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "analyzer_link_probes_total", Help: "HEAD probes by result"},
			[]string{"result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "analyzer_cache_lookups_total", Help: "Report cache lookups by result"},
			[]string{"result"},
		),
		CacheStores: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "analyzer_cache_stores_total", Help: "Report cache writes by result"},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.AnalysisDuration, m.LinkProbesTotal, m.CacheLookups, m.CacheStores)
	return m
}

func (m *Metrics) PageFetched(context.Context, FetchResult) {}
func (m *Metrics) PageParsed(context.Context, string, PageStructure) {}

func (m *Metrics) LinkProbed(_ context.Context, status LinkStatus, _ error) {
	result := "reachable"
	if !status.Reachable {
		result = "inaccessible"
	}
	m.LinkProbesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AnalysisFinished(_ context.Context, _ string, report *Report, err error, elapsed time.Duration) {
	m.AnalysisDuration.Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(outcome(report, err)).Inc()
}

func (m *Metrics) CacheLookup(_ context.Context, _ string, hit bool, err error) {
	switch {
	case err != nil:
		m.CacheLookups.WithLabelValues("error").Inc()
	case hit:
		m.CacheLookups.WithLabelValues("hit").Inc()
	default:
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) CacheStored(_ context.Context, _ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CacheStores.WithLabelValues(result).Inc()
}

func outcome(report *Report, err error) string {
	switch {
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrDeadline):
		return "deadline"
	case errors.Is(err, ErrInvalidURL):
		return "invalid"
	case err != nil:
		return "error"
	case !report.Reachable:
		return "unreachable"
	}
	return "ok"
}
