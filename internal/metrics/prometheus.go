package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docutalk_ask_duration_seconds",
			Help:    "Time to stream a complete answer",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)

	CreateChatbotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docutalk_create_chatbot_duration_seconds",
			Help:    "Time to create a chatbot, uploads and generation included",
			Buckets: []float64{5, 10, 20, 40, 60, 120, 240},
		},
		[]string{"model"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docutalk_llm_tokens_total",
			Help: "Total tokens reported by the model",
		},
		[]string{"model", "operation"},
	)

	UsageCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docutalk_usage_cost_usd_total",
			Help: "Metered cost of model usage in USD",
		},
		[]string{"model"},
	)

	DocumentsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docutalk_documents_uploaded_total",
			Help: "Total documents stored",
		},
	)

	EmailsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docutalk_emails_dispatched_total",
			Help: "Emails sent or queued",
		},
		[]string{"template", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docutalk_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			AskDuration,
			CreateChatbotDuration,
			LLMTokens,
			UsageCost,
			DocumentsUploaded,
			EmailsDispatched,
			HTTPRequests,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
