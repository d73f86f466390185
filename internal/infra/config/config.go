package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
		AdminChatID   int64  `envconfig:"ADMIN_CHAT_ID"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD"`
		Name     string `envconfig:"DB_NAME" default:"postgres"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queues struct {
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Notify    string `envconfig:"NOTIFY_QUEUE" default:"feedback_notifications"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Feedback struct {
		Branches   []string      `envconfig:"FEEDBACK_BRANCHES" default:"Chilonzor,Yunusobod,Sergeli,Mirzo Ulugbek"`
		Cooldown   time.Duration `envconfig:"FEEDBACK_COOLDOWN" default:"30s"`
		BatchDelay time.Duration `envconfig:"FEEDBACK_BATCH_DELAY" default:"1500ms"`
		FilesDir   string        `envconfig:"FEEDBACK_FILES_DIR" default:"uploads"`
	} `envconfig:""`
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без загрузки .env.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.Feedback.Branches = cleanBranches(cfg.Feedback.Branches)
	return cfg, nil
}

// Validate проверяет значения, без которых бот не запускается.
func (c AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("TG_BOT_TOKEN не задан"))
	}
	if len(c.Feedback.Branches) == 0 {
		errs = append(errs, errors.New("FEEDBACK_BRANCHES пуст"))
	}
	if c.Feedback.Cooldown < 0 {
		errs = append(errs, errors.New("FEEDBACK_COOLDOWN не может быть отрицательным"))
	}
	if c.Feedback.BatchDelay <= 0 {
		errs = append(errs, errors.New("FEEDBACK_BATCH_DELAY должен быть положительным"))
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.WebhookSecret == "" {
		errs = append(errs, errors.New("для вебхука нужен TG_WEBHOOK_SECRET"))
	}
	return errors.Join(errs...)
}

// DSN возвращает строку подключения к Postgres. Если PG_DSN не задан,
// она собирается из DB_HOST, DB_PORT, DB_USER, DB_PASSWORD и DB_NAME.
func (c AppConfig) DSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.DB.Host + ":" + strconv.Itoa(c.DB.Port),
		Path:   "/" + c.DB.Name,
	}
	if c.DB.Password != "" {
		u.User = url.UserPassword(c.DB.User, c.DB.Password)
	} else {
		u.User = url.User(c.DB.User)
	}
	return u.String()
}

// ListenAddr возвращает адрес HTTP-сервера бота.
func (c AppConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func cleanBranches(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
