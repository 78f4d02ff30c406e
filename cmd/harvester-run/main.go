// Harvester Run — локальный запуск шагов без сервера.
//
// Использование:
//
//	harvester-run <setting-file> [step...] [--all] [--json]
//
// Шаги выполняются по очереди, уведомления печатаются в stdout.
// Ctrl-C переводит текущий шаг в Stopped: новые задачи не запускаются,
// запущенные дорабатывают.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/harvester/internal/config"
	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/jobs"
	"github.com/shaiso/harvester/internal/orchestrator"
	"github.com/shaiso/harvester/internal/setting"
	"github.com/shaiso/harvester/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:           "harvester-run SETTING_FILE [STEP...]",
		Short:         "Run steps of a setting file locally",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runSteps(ctx, cmd.OutOrStdout(), args[0], args[1:], all, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Run every step of the setting in name order")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print notifications as JSON lines")

	return cmd
}

func runSteps(ctx context.Context, out io.Writer, path string, names []string, all, jsonOutput bool) error {
	cfg, err := config.Load(os.Getenv("HARVESTER_CONFIG"))
	if err != nil {
		return err
	}
	// Лог в stderr, чтобы stdout остался для уведомлений.
	logger, err := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.LogLevel,
		Format: "text",
		File:   cfg.LogFile,
		Writer: os.Stderr,
	})
	if err != nil {
		return err
	}

	s, err := setting.Load(path)
	if err != nil {
		return err
	}

	switch {
	case all:
		names = s.StepNames()
	case len(names) == 0:
		return fmt.Errorf("no steps given: pass step names or --all (available: %v)", s.StepNames())
	}

	var mu sync.Mutex
	printer := orchestrator.NotifierFunc(func(_ context.Context, n domain.Notification) {
		mu.Lock()
		defer mu.Unlock()
		if jsonOutput {
			json.NewEncoder(out).Encode(n)
			return
		}
		fmt.Fprintln(out, formatNotification(n))
	})

	eng := orchestrator.New(orchestrator.Config{
		Client: jobs.NewClient(jobs.ClientConfig{
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
		}),
		Notifier: printer,
		Logger:   logger,
	})
	if err := eng.Load(*s); err != nil {
		return err
	}

	for _, name := range names {
		if ctx.Err() != nil {
			logger.Info("interrupted, remaining steps skipped", "step", name)
			break
		}
		if err := runOne(ctx, eng, name); err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
	}
	return nil
}

// runOne выполняет шаг; отмена ctx переводит его в Stopped.
func runOne(ctx context.Context, eng *orchestrator.Engine, name string) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			eng.UpdateState(name, domain.StepStopped)
		case <-done:
		}
	}()

	return eng.RunStep(ctx, name)
}

func formatNotification(n domain.Notification) string {
	label := n.Name
	if n.Status != "" {
		label += "/" + n.Status
	}
	return fmt.Sprintf("%s [%s] %s: %s", n.Time.Format("15:04:05"), n.Step, label, n.Message)
}
