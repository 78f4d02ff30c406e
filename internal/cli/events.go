package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

// NewEventsCmd создаёт команду чтения потока уведомлений.
func NewEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var step string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow step notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := clientFn().OpenEvents(cmd.Context(), step)
			if err != nil {
				return err
			}
			defer stream.Close()

			return follow(cmd.Context(), stream, outputFn(), false)
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Only notifications of this step")

	return cmd
}

// follow печатает уведомления до отмены ctx. untilEnd завершает
// чтение после status/end.
func follow(ctx context.Context, stream *EventStream, out *Output, untilEnd bool) error {
	for {
		n, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		PrintNotification(out, n)
		if untilEnd && n.Name == "status" && n.Status == "end" {
			return nil
		}
	}
}

// PrintNotification выводит одно уведомление строкой или JSON.
func PrintNotification(out *Output, n Notification) {
	if out.JSONMode() {
		out.JSON(n)
		return
	}
	label := n.Name
	if n.Status != "" {
		label += "/" + n.Status
	}
	out.Line("%s [%s] %s: %s", n.Time, n.Step, label, n.Message)
}
