package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cinegenius-server/internal/models"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegenius_ai_requests_total",
			Help: "Total number of requests to the generative backend.",
		},
		[]string{"task", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegenius_ai_request_duration_seconds",
			Help:    "Histogram of generative backend request durations.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"task", "model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegenius_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10), // 128 ... 65536
		},
		[]string{"task", "model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegenius_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
		[]string{"task", "model"},
	)
)

// observe записывает метрики одного вызова. status - "success" или класс ошибки.
func observe(task models.TaskKind, model string, started time.Time, usage Usage, err error) {
	status := "success"
	if err != nil {
		status = models.ErrorKind(err)
	}
	labels := prometheus.Labels{"task": string(task), "model": model}
	aiRequestsTotal.With(prometheus.Labels{"task": string(task), "model": model, "status": status}).Inc()
	aiRequestDuration.With(labels).Observe(time.Since(started).Seconds())
	if err == nil && usage.TotalTokens > 0 {
		aiPromptTokens.With(labels).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(labels).Observe(float64(usage.CompletionTokens))
	}
}
