// Harvester API — долгоживущий процесс с движком шагов.
//
// Процесс:
//   - Загружает Setting из файла (или последнюю сохранённую версию из БД)
//   - Обслуживает REST API и websocket-поток уведомлений
//   - Запускает шаги по расписанию
//   - Перечитывает файл Setting при изменении (HARVESTER_WATCH_SETTING)
//   - Принимает команды из RabbitMQ и публикует события (если задан AMQP URL)
//   - Пишет историю запусков в PostgreSQL (если задан DATABASE_URL)
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/harvester/internal/api"
	"github.com/shaiso/harvester/internal/config"
	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/jobs"
	"github.com/shaiso/harvester/internal/mq"
	"github.com/shaiso/harvester/internal/orchestrator"
	"github.com/shaiso/harvester/internal/repo"
	"github.com/shaiso/harvester/internal/scheduler"
	"github.com/shaiso/harvester/internal/setting"
	"github.com/shaiso/harvester/internal/telemetry"
	"github.com/shaiso/harvester/internal/worker"
)

var startTime = time.Now()

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "harvester-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("HARVESTER_CONFIG"))
	if err != nil {
		return err
	}

	// Инициализируем structured logging
	logger, err := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	logger.Info("starting harvester-api")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := orchestrator.NewBroadcaster(256, logger)
	notifier := orchestrator.MultiNotifier{
		orchestrator.LogNotifier{Logger: logger},
		events,
	}

	// PostgreSQL: история запусков и версии Setting
	var (
		recorder orchestrator.Recorder
		runStore api.RunStore
		settings api.SettingStore
		settingR *repo.SettingRepo
	)
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := repo.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("connected to database")

		runRepo := repo.NewStepRunRepo(pool)
		settingR = repo.NewSettingRepo(pool)
		recorder, runStore, settings = runRepo, runRepo, settingR
	} else {
		logger.Info("database not configured, run history disabled")
	}

	// RabbitMQ: команды и события
	var mqConn *mq.Connection
	if cfg.AMQPURL != "" {
		mqConn, err = mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			return err
		}
		notifier = append(notifier, mq.NewEventNotifier(mq.NewPublisher(mqConn, logger), logger))
		logger.Info("RabbitMQ connected")
		logger.Debug("amqp topology\n" + mq.DefaultTopology().String())
	}

	eng := orchestrator.New(orchestrator.Config{
		Client: jobs.NewClient(jobs.ClientConfig{
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
		}),
		Notifier: notifier,
		Recorder: recorder,
		Metrics:  telemetry.NewMetrics(nil),
		Logger:   logger,
	})

	if err := loadInitialSetting(ctx, eng, cfg, settingR); err != nil {
		return err
	}

	var w *worker.Worker
	if mqConn != nil {
		w = worker.New(worker.Config{Engine: eng, Conn: mqConn, Logger: logger})
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	sched := scheduler.New(scheduler.Config{Engine: eng, Logger: logger})

	handler := api.NewHandler(api.Config{
		Engine:     eng,
		Runs:       runStore,
		Settings:   settings,
		Events:     events,
		Schedule:   sched,
		RunContext: ctx,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := api.HealthResponse{
			Status:           "ok",
			Uptime:           time.Since(startTime).Round(time.Second).String(),
			EventSubscribers: events.Subscribers(),
		}
		if mqConn != nil {
			connected := mqConn.IsConnected()
			health.AMQPConnected = &connected
			if !connected {
				health.Status = "degraded"
			}
		}
		api.Health(w, health)
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// websocket-подписчики завершаются вместе с процессом
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Run(gctx, cfg.ScheduleInterval)
		return nil
	})

	if cfg.WatchSetting {
		watcher, err := setting.NewWatcher(cfg.SettingPath, 0, func(s *domain.Setting) error {
			return eng.Load(*s)
		}, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown с таймаутом 10 секунд
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if w != nil {
		w.Stop()
	}
	// Отмена ctx действует на шаги как Stopped: ждём задачи в полёте.
	cancel()
	handler.Wait()
	sched.Wait()

	logger.Info("stopped")
	return err
}

// loadInitialSetting загружает Setting из файла, а без файла — последнюю
// версию из БД. Отсутствие обоих не ошибка: Setting можно загрузить
// через API.
func loadInitialSetting(ctx context.Context, eng *orchestrator.Engine, cfg *config.Config, settings *repo.SettingRepo) error {
	if cfg.SettingPath != "" {
		s, err := setting.Load(cfg.SettingPath)
		if err != nil {
			return err
		}
		return eng.Load(*s)
	}

	if settings == nil {
		return nil
	}
	s, _, err := settings.Latest(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return eng.Load(*s)
}
