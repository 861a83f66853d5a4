package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the chat-commerce backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	conversationSteps  *prometheus.CounterVec
	paymentInitiations *prometheus.CounterVec
	webhooks           *prometheus.CounterVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	tokensUsed         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boutik_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		conversationSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_conversation_steps_total",
				Help: "Step transitions processed, labeled by resulting step.",
			},
			[]string{"step"},
		),
		paymentInitiations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_payment_initiations_total",
				Help: "Payment initiations by provider and result.",
			},
			[]string{"provider", "result"},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_webhooks_total",
				Help: "Provider webhook deliveries by provider and result.",
			},
			[]string{"provider", "result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boutik_completion_tokens_total",
				Help: "Total text-generation tokens consumed.",
			},
			[]string{"type"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStep increments the step-transition counter.
func (m *Metrics) IncrStep(step string) {
	m.conversationSteps.WithLabelValues(step).Inc()
}

// IncrPaymentInitiation increments payment initiations for a provider.
func (m *Metrics) IncrPaymentInitiation(provider, result string) {
	m.paymentInitiations.WithLabelValues(provider, result).Inc()
}

// IncrWebhook increments webhook deliveries for a provider.
func (m *Metrics) IncrWebhook(provider, result string) {
	m.webhooks.WithLabelValues(provider, result).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// WebhookCount returns the current counter value for a provider/result
// pair. Used by the back-office metrics snapshot.
func (m *Metrics) WebhookCount(provider, result string) float64 {
	return getCounterValue(m.webhooks, provider, result)
}

// getCounterValue extracts the current float64 value from a CounterVec.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	metric := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(metric); err != nil {
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}
