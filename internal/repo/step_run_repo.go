package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/harvester/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// StepRunRepo — история запусков шагов.
// Реализует orchestrator.Recorder.
type StepRunRepo struct {
	pool *pgxpool.Pool
}

// NewStepRunRepo создаёт новый StepRunRepo.
func NewStepRunRepo(pool *pgxpool.Pool) *StepRunRepo {
	return &StepRunRepo{pool: pool}
}

// Create записывает начатый запуск.
func (r *StepRunRepo) Create(ctx context.Context, run *domain.StepRun) error {
	query := `
		INSERT INTO step_runs (id, step, status, dispatched, failed, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Step,
		run.Status,
		run.Dispatched,
		run.Failed,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step run: %w", err)
	}
	return nil
}

// Finish сохраняет итог запуска.
func (r *StepRunRepo) Finish(ctx context.Context, run *domain.StepRun) error {
	if !run.IsFinished() {
		return fmt.Errorf("%w: run %s is %s", ErrInvalidState, run.ID, run.Status)
	}
	query := `
		UPDATE step_runs
		SET status = $2, dispatched = $3, failed = $4, error = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.Dispatched,
		run.Failed,
		nullString(run.Error),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update step run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запуск по ID.
func (r *StepRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.StepRun, error) {
	query := `
		SELECT id, step, status, dispatched, failed, error, started_at, finished_at
		FROM step_runs
		WHERE id = $1
	`
	run, err := scanStepRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// StepRunFilter — параметры выборки истории.
type StepRunFilter struct {
	Step   string
	Status domain.RunStatus
	Limit  int
	Offset int
}

// normalize приводит Limit и Offset к допустимым значениям.
func (f StepRunFilter) normalize() StepRunFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)
	return f
}

// List возвращает запуски, новые первыми.
func (r *StepRunRepo) List(ctx context.Context, filter StepRunFilter) ([]domain.StepRun, error) {
	filter = filter.normalize()

	query := `
		SELECT id, step, status, dispatched, failed, error, started_at, finished_at
		FROM step_runs
		WHERE ($1::text IS NULL OR step = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Step),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StepRun
	for rows.Next() {
		run, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanStepRun сканирует одну строку. pgx.Rows тоже реализует pgx.Row.
func scanStepRun(row pgx.Row) (*domain.StepRun, error) {
	var run domain.StepRun
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.Step,
		&run.Status,
		&run.Dispatched,
		&run.Failed,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan step run: %w", err)
	}

	if runError != nil {
		run.Error = *runError
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
