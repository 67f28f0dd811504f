// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Narrative outcome labels.
const (
	OutcomeBenign  = domain.NarrativeBenign
	OutcomeSuccess = "success"
	OutcomeFailure = domain.NarrativeFailed
	OutcomeCached  = domain.NarrativeCached
)

// Collector holds the fraudlens metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry          *prometheus.Registry
	narrativeRequests *prometheus.CounterVec
	narrativeDuration prometheus.Histogram
	ruleFindings      *prometheus.CounterVec
	explanations      prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

// New creates a collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		narrativeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudlens_narrative_requests_total",
			Help: "Narrative requests by outcome",
		}, []string{"outcome"}),
		narrativeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraudlens_narrative_duration_seconds",
			Help:    "Time spent waiting on the text-generation service",
			Buckets: prometheus.DefBuckets,
		}),
		ruleFindings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudlens_rule_findings_total",
			Help: "Fired rules by identifier",
		}, []string{"rule"}),
		explanations: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraudlens_explanations_assembled_total",
			Help: "Explained records assembled",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudlens_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
	}
}

// ObserveNarrative records one narrative request outcome. Duration is only
// observed for calls that reached the external service.
func (c *Collector) ObserveNarrative(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.narrativeRequests.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		c.narrativeDuration.Observe(d.Seconds())
	}
}

// ObserveFindings counts each fired rule.
func (c *Collector) ObserveFindings(finding domain.RuleFinding) {
	if c == nil {
		return
	}
	for _, kind := range finding {
		c.ruleFindings.WithLabelValues(kind.String()).Inc()
	}
}

// ObserveAssembled counts assembled records.
func (c *Collector) ObserveAssembled(n int) {
	if c == nil {
		return
	}
	c.explanations.Add(float64(n))
}

// ObserveHTTP counts one served request.
func (c *Collector) ObserveHTTP(method string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
