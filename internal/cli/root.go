package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedback-bot/internal/adapters/repo"
	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/config"
	"feedback-bot/internal/infra/db"
)

const commandTimeout = time.Minute

// Store управляет схемой базы и читает сохранённые обращения.
type Store interface {
	Migrate(ctx context.Context) error
	VerifySchema(ctx context.Context) error
	GetFeedback(ctx context.Context, id int64) (domain.Feedback, error)
}

// Connector открывает хранилище и возвращает функцию закрытия.
type Connector func(ctx context.Context, dsn string) (Store, func(), error)

// RootOptions — общие флаги всех команд.
type RootOptions struct {
	DSN     string
	Connect Connector
}

// NewRootCommand создаёт корневую команду feedbackctl.
func NewRootCommand(connect Connector) *cobra.Command {
	if connect == nil {
		connect = connectPostgres
	}
	opts := &RootOptions{Connect: connect}

	cmd := &cobra.Command{
		Use:           "feedbackctl",
		Short:         "Обслуживание базы бота обратной связи",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.DSN == "" {
				cfg, err := config.Parse()
				if err == nil {
					opts.DSN = cfg.DSN()
				}
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "строка подключения к Postgres (по умолчанию из PG_DSN или DB_*)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	return cmd
}

func (o *RootOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, store Store) error) error {
	if o.DSN == "" {
		return fmt.Errorf("не задана строка подключения: укажите --dsn или PG_DSN")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	store, closeFn, err := o.Connect(ctx, o.DSN)
	if err != nil {
		return fmt.Errorf("подключение к БД: %w", err)
	}
	defer closeFn()
	return fn(ctx, store)
}

func connectPostgres(ctx context.Context, dsn string) (Store, func(), error) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return repo.NewPostgres(pool), pool.Close, nil
}
