package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"feedback-bot/internal/domain"
)

// NewShowCommand создаёт команду show: печатает обращение по номеру.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Показать обращение и его файлы",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("некорректный номер обращения %q", args[0])
			}
			return opts.withStore(cmd, func(ctx context.Context, store Store) error {
				fb, err := store.GetFeedback(ctx, id)
				if errors.Is(err, domain.ErrFeedbackNotFound) {
					return fmt.Errorf("обращение #%d не найдено", id)
				}
				if err != nil {
					return err
				}
				printFeedback(cmd.OutOrStdout(), fb)
				return nil
			})
		},
	}
}

func printFeedback(w io.Writer, fb domain.Feedback) {
	fmt.Fprintf(w, "Обращение #%d от %s\n", fb.ID, fb.CreatedAt.Format("02.01.2006 15:04"))
	fmt.Fprintf(w, "Филиал: %s\n", fb.Branch)
	if fb.Name == "" && fb.Phone == "" {
		fmt.Fprintln(w, "Отправитель: анонимно")
	} else {
		fmt.Fprintf(w, "Отправитель: %s %s\n", fb.Name, fb.Phone)
	}
	fmt.Fprintf(w, "\n%s\n", fb.Message)
	for _, a := range fb.Attachments {
		fmt.Fprintf(w, "[%s] %s\n", a.Kind, a.Path)
	}
}
