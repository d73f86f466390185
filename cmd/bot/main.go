package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"feedback-bot/internal/adapters/bot"
	"feedback-bot/internal/adapters/files"
	"feedback-bot/internal/adapters/notify"
	"feedback-bot/internal/adapters/repo"
	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/cache"
	"feedback-bot/internal/infra/config"
	"feedback-bot/internal/infra/db"
	apphttp "feedback-bot/internal/infra/http"
	applog "feedback-bot/internal/infra/log"
	"feedback-bot/internal/infra/metrics"
	"feedback-bot/internal/infra/queue"
	"feedback-bot/internal/usecase/conversation"
	"feedback-bot/internal/usecase/ratelimit"
	"feedback-bot/internal/usecase/submission"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("bot: некорректная конфигурация")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.VerifySchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot: схема БД не готова, выполните feedbackctl migrate")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}
	logger.Info().Str("username", botAPI.Self.UserName).Msg("bot: авторизован")

	notifier := buildNotifier(cfg, botAPI, logger)
	dedupe := buildDedupe(ctx, cfg, logger)

	limiter := ratelimit.NewLimiter(repoAdapter, cfg.Feedback.Cooldown, applog.Component(logger, "ratelimit"))
	finalizer := submission.NewFinalizer(repoAdapter, limiter, notifier, applog.Component(logger, "submission"))
	replier := bot.NewReplier(botAPI, applog.Component(logger, "replier"))

	sessions := conversation.NewSessionStore()
	pending := conversation.NewPendingStore()
	attachments := files.NewTelegramStore(botAPI, cfg.Feedback.FilesDir, applog.Component(logger, "files"))
	batcher := conversation.NewBatcher(attachments, pending, replier, cfg.Feedback.BatchDelay, applog.Component(logger, "batcher"))
	machine := conversation.NewMachine(sessions, pending, batcher, limiter, finalizer, cfg.Feedback.Branches, applog.Component(logger, "conversation"))

	dispatcher := bot.NewDispatcher()
	handler := bot.NewHandler(machine, replier, dispatcher, dedupe, applog.Component(logger, "bot"))

	server := apphttp.NewServer(applog.Component(logger, "http"), pool.Ping)
	if cfg.Telegram.WebhookURL != "" {
		server.Router.With(apphttp.WebhookSecretMiddleware(cfg.Telegram.WebhookSecret)).
			Post("/bot/webhook", apphttp.WebhookHandler(handler.HandleUpdate))
		if err := setWebhook(botAPI, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось установить вебхук")
		}
	} else {
		go poll(ctx, botAPI, handler, logger)
	}

	go func() {
		if err := server.Start(cfg.ListenAddr()); err != nil {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	dispatcher.Stop()
	finalizer.Wait()
}

func buildNotifier(cfg config.AppConfig, botAPI *tgbotapi.BotAPI, logger zerolog.Logger) domain.AdminNotifier {
	if cfg.Queues.RabbitURL == "" {
		return notify.NewTelegramNotifier(botAPI, cfg.Telegram.AdminChatID, applog.Component(logger, "notify"))
	}
	q, err := queue.NewRabbitNotificationQueue(cfg.Queues.RabbitURL, cfg.Queues.Notify, applog.Component(logger, "queue"))
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось инициализировать очередь RabbitMQ")
	}
	return notify.NewQueuedNotifier(q)
}

func buildDedupe(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) domain.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(time.Minute)
	}
	client, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к Redis")
	}
	return cache.NewRedis(client, "feedback:")
}

// setWebhook вызывает setWebhook напрямую: WebhookConfig библиотеки не передаёт secret_token.
func setWebhook(botAPI *tgbotapi.BotAPI, url, secret string) error {
	_, err := botAPI.MakeRequest("setWebhook", tgbotapi.Params{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": `["message","callback_query"]`,
	})
	return err
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.Handler, logger zerolog.Logger) {
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("bot: не удалось удалить вебхук")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Msg("bot: получение апдейтов через long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			handler.HandleUpdate(ctx, upd)
		}
	}
}
