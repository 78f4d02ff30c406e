package cli

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// NewStepsCmd создаёт группу команд для управления шагами.
func NewStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "steps",
		Aliases: []string{"step"},
		Short:   "Inspect, run and control steps",
	}

	cmd.AddCommand(
		newStepsListCmd(clientFn, outputFn),
		newStepsGetCmd(clientFn, outputFn),
		newStepsRunCmd(clientFn, outputFn),
		newStepsStateCmd(clientFn, outputFn, "pause", "paused", "Pause dispatching new tasks"),
		newStepsStateCmd(clientFn, outputFn, "resume", "running", "Resume a paused step"),
		newStepsStateCmd(clientFn, outputFn, "stop", "stopped", "Stop a step after in-flight tasks finish"),
	)

	return cmd
}

var stepHeader = table.Row{"NAME", "STATE", "RUNNING", "JOB", "LIMIT", "SCHEDULE", "NEXT RUN"}

func stepRow(s StepResponse) table.Row {
	next := ""
	if s.NextRun != nil {
		next = s.NextRun.Local().Format("2006-01-02 15:04")
	}
	return table.Row{s.Name, s.State, strconv.FormatBool(s.Running), s.Job, s.ConcurrencyLimit, s.Schedule, next}
}

func newStepsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List steps of the loaded setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListSteps(cmd.Context())
			if err != nil {
				return err
			}

			out.Print(stepHeader, lo.Map(steps, func(s StepResponse, _ int) table.Row {
				return stepRow(s)
			}), steps)
			return nil
		},
	}
}

func newStepsGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			step, err := client.GetStep(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(stepHeader, []table.Row{stepRow(*step)}, step)
			return nil
		},
	}
}

func newStepsRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var followRun bool

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Start a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			name := args[0]

			// Подписка до запуска, иначе start может потеряться.
			var stream *EventStream
			if followRun {
				s, err := client.OpenEvents(cmd.Context(), name)
				if err != nil {
					return err
				}
				defer s.Close()
				stream = s
			}

			res, err := client.RunStep(cmd.Context(), name)
			if err != nil {
				return err
			}
			if out.JSONMode() {
				out.JSON(res)
			} else {
				out.Success(fmt.Sprintf("Step %s %s", res.Step, res.Status))
			}
			if stream == nil {
				return nil
			}

			return follow(cmd.Context(), stream, out, true)
		},
	}

	cmd.Flags().BoolVarP(&followRun, "follow", "f", false, "Stream notifications until the step ends")

	return cmd
}

func newStepsStateCmd(clientFn func() *Client, outputFn func() *Output, use, state, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			step, err := client.SetState(cmd.Context(), args[0], state)
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(step)
				return nil
			}
			out.Success(fmt.Sprintf("Step %s is %s", step.Name, step.State))
			return nil
		},
	}
}
