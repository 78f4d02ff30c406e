package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд для истории запусков.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run"},
		Short:   "Browse step run history",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsGetCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeader = table.Row{"ID", "STEP", "STATUS", "DISPATCHED", "FAILED", "STARTED", "DURATION_MS", "ERROR"}

func runRow(r RunResponse) table.Row {
	return table.Row{r.ID, r.Step, r.Status, r.Dispatched, r.Failed, r.StartedAt, r.DurationMs, r.Error}
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List step runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([]table.Row, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeader, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Step, "step", "", "Filter by step name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (RUNNING, SUCCEEDED, STOPPED, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a step run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(runHeader, []table.Row{runRow(*run)}, run)
			return nil
		},
	}
}
