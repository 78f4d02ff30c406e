package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики выполнения шагов.
type Metrics struct {
	// StepRuns — завершённые запуски шагов по статусу.
	StepRuns *prometheus.CounterVec

	// Tasks — выполненные задачи по виду job и результату (ok/error).
	Tasks *prometheus.CounterVec

	// InFlight — задачи, выполняющиеся прямо сейчас, по шагу.
	InFlight *prometheus.GaugeVec

	// TaskDuration — длительность выполнения задачи.
	TaskDuration *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg.
// Для nil используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_step_runs_total",
			Help: "Finished step runs by status",
		}, []string{"step", "status"}),

		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_tasks_total",
			Help: "Executed tasks by job kind and result",
		}, []string{"step", "kind", "result"}),

		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_tasks_in_flight",
			Help: "Tasks currently executing",
		}, []string{"step"}),

		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_task_duration_seconds",
			Help:    "Task execution time",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}
