package setting

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shaiso/harvester/internal/domain"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher перечитывает файл настроек после его изменения.
//
// Следит за каталогом, а не за файлом: редакторы сохраняют через
// переименование, и наблюдение за самим файлом теряется. Серия событий
// схлопывается в одну перезагрузку через debounce.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*domain.Setting) error
	logger   *slog.Logger

	fsw *fsnotify.Watcher
}

// NewWatcher начинает наблюдение за каталогом файла path.
// onChange вызывается с новым Setting после успешной загрузки.
func NewWatcher(path string, debounce time.Duration, onChange func(*domain.Setting) error, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve setting path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "setting-watcher", "path", abs),
		fsw:      fsw,
	}, nil
}

// Run обрабатывает события до отмены ctx и закрывает наблюдение.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info("watching setting file")

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Error("setting reload failed", "error", err)
		return
	}
	if err := w.onChange(s); err != nil {
		w.logger.Error("setting apply failed", "error", err)
		return
	}
	w.logger.Info("setting reloaded", "steps", len(s.Steps))
}
