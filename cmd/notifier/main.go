package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"feedback-bot/internal/adapters/notify"
	"feedback-bot/internal/infra/config"
	applog "feedback-bot/internal/infra/log"
	"feedback-bot/internal/infra/metrics"
	"feedback-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.Queues.RabbitURL == "" {
		logger.Fatal().Msg("notifier: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("notifier: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	if cfg.Telegram.AdminChatID == 0 {
		logger.Fatal().Msg("notifier: не указан чат администраторов (ADMIN_CHAT_ID)")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}

	q, err := queue.NewRabbitNotificationQueue(cfg.Queues.RabbitURL, cfg.Queues.Notify, applog.Component(logger, "queue"))
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось инициализировать очередь RabbitMQ")
	}
	defer q.Close()

	sender := notify.NewTelegramNotifier(botAPI, cfg.Telegram.AdminChatID, applog.Component(logger, "notify"))
	logger.Info().Str("queue", cfg.Queues.Notify).Msg("notifier: запущен")

	err = q.Consume(ctx, sender.Notify)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("notifier: остановка")
	case err != nil:
		logger.Fatal().Err(err).Msg("notifier: потребитель остановлен")
	}
}
