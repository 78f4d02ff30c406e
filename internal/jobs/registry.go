package jobs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/harvester/internal/domain"
)

// Factory создаёт Job из описания.
type Factory func(spec domain.JobSpec) (Job, error)

// Registry — реестр видов job.
//
// Позволяет регистрировать и получать фабрики Job по виду.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.JobKind]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.JobKind]Factory),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными видами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(domain.JobHTTP, func(spec domain.JobSpec) (Job, error) { return NewHTTPJob(spec.HTTP) })
	r.Register(domain.JobHTML, func(spec domain.JobSpec) (Job, error) { return NewHTMLJob(spec.HTML) })
	r.Register(domain.JobCSV, func(spec domain.JobSpec) (Job, error) { return NewCSVJob(spec.CSV) })
	r.Register(domain.JobShell, func(spec domain.JobSpec) (Job, error) { return NewShellJob(spec.Shell) })

	return r
}

// Register регистрирует фабрику.
// Если фабрика для вида уже существует, она будет перезаписана.
func (r *Registry) Register(kind domain.JobKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New создаёт Job по описанию.
// Возвращает ErrUnknownKind, если вид не зарегистрирован.
func (r *Registry) New(spec domain.JobSpec) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
	return f(spec)
}

// Has проверяет, зарегистрирован ли вид.
func (r *Registry) Has(kind domain.JobKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds возвращает список зарегистрированных видов.
func (r *Registry) Kinds() []domain.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.JobKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
