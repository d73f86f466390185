package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedbackSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_submitted_total",
		Help: "Сохранённые обращения",
	}, []string{"identity"})
	FeedbackSaveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_save_errors_total",
		Help: "Ошибки сохранения обращений",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_rate_limited_total",
		Help: "Отказы по лимиту частоты обращений",
	})
	AttachmentsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_attachments_stored_total",
		Help: "Сохранённые вложения",
	}, []string{"kind"})
	AttachmentErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_attachment_errors_total",
		Help: "Ошибки скачивания вложений",
	})
	BatchesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_attachment_batches_total",
		Help: "Обработанные группы вложений",
	}, []string{"result"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedback_active_sessions",
		Help: "Незавершённые диалоги",
	})
	NotifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_notify_errors_total",
		Help: "Ошибки уведомления администраторов",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedbackSubmitted,
		FeedbackSaveErrors,
		RateLimited,
		AttachmentsStored,
		AttachmentErrors,
		BatchesProcessed,
		ActiveSessions,
		NotifyErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncFeedbackSubmitted учитывает сохранённое обращение.
func IncFeedbackSubmitted(withIdentity bool) {
	label := "anonymous"
	if withIdentity {
		label = "identified"
	}
	FeedbackSubmitted.WithLabelValues(label).Inc()
}

// IncRateLimited учитывает отказ по лимиту.
func IncRateLimited() {
	RateLimited.Inc()
}

// IncAttachmentStored учитывает сохранённый файл.
func IncAttachmentStored(kind string) {
	AttachmentsStored.WithLabelValues(kind).Inc()
}

// IncBatch учитывает обработку группы вложений: processed, stale или empty.
func IncBatch(result string) {
	BatchesProcessed.WithLabelValues(result).Inc()
}

// SetActiveSessions обновляет число активных диалогов.
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}
