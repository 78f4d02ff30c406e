package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewSettingCmd создаёт группу команд для Setting.
func NewSettingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Load or show the setting document",
	}

	cmd.AddCommand(
		newSettingLoadCmd(clientFn, outputFn),
		newSettingShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newSettingLoadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Load a setting document (JSON or YAML)",
		Long: `Load a setting document into the server.

Running steps of the previous setting are stopped: they dispatch no new
tasks and wait for the in-flight ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			ext := strings.ToLower(filepath.Ext(args[0]))

			res, err := client.LoadSetting(cmd.Context(), data, ext == ".yaml" || ext == ".yml")
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(res)
				return nil
			}
			msg := fmt.Sprintf("Setting loaded: %d step(s): %s", len(res.Steps), strings.Join(res.Steps, ", "))
			if res.Version > 0 {
				msg += fmt.Sprintf(" (version %d)", res.Version)
			}
			out.Success(msg)
			return nil
		},
	}
}

func newSettingShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current setting document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.GetSetting(cmd.Context())
			if err != nil {
				return err
			}

			var v any
			if err := json.Unmarshal(doc, &v); err != nil {
				return fmt.Errorf("failed to decode setting: %w", err)
			}
			out.JSON(v)
			return nil
		},
	}
}
