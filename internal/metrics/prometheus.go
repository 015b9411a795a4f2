package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitebot_ingest_duration_seconds",
			Help:    "Knowledge ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_ingest_total",
			Help: "Total ingestion attempts",
		},
		[]string{"source_kind", "status"},
	)

	FetchStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_fetch_strategy_total",
			Help: "Successful fetches by winning strategy",
		},
		[]string{"strategy"},
	)

	SemanticFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitebot_semantic_fallback_total",
			Help: "Times structural extraction fell back to the model",
		},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_llm_tokens_total",
			Help: "Tokens consumed by model calls",
		},
		[]string{"type"},
	)

	ChatTurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitebot_chat_turns_total",
			Help: "Accepted user chat turns",
		},
	)

	ResponseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitebot_response_failures_total",
			Help: "Chat turns degraded to a canned reply",
		},
	)

	ConversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_conversions_total",
			Help: "Sessions that reached the conversion state",
		},
		[]string{"trigger"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebot_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestTotal)
	prometheus.MustRegister(FetchStrategyTotal)
	prometheus.MustRegister(SemanticFallbackTotal)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(ChatTurnsTotal)
	prometheus.MustRegister(ResponseFailuresTotal)
	prometheus.MustRegister(ConversionsTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
