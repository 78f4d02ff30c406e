package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/harvester/internal/domain"
)

// SettingRepo хранит версии Setting. Последняя версия загружается
// при старте API, если файл настроек не указан.
type SettingRepo struct {
	pool *pgxpool.Pool
}

// NewSettingRepo создаёт новый SettingRepo.
func NewSettingRepo(pool *pgxpool.Pool) *SettingRepo {
	return &SettingRepo{pool: pool}
}

// Save сохраняет Setting новой версией и возвращает её номер.
func (r *SettingRepo) Save(ctx context.Context, s *domain.Setting) (int64, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("marshal setting: %w", err)
	}

	var version int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO settings (document) VALUES ($1) RETURNING version`, doc,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert setting: %w", err)
	}
	return version, nil
}

// Latest возвращает последнюю сохранённую версию.
func (r *SettingRepo) Latest(ctx context.Context) (*domain.Setting, int64, error) {
	var (
		version int64
		doc     []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT version, document FROM settings ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select setting: %w", err)
	}

	var s domain.Setting
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, 0, fmt.Errorf("unmarshal setting v%d: %w", version, err)
	}
	return &s, version, nil
}
