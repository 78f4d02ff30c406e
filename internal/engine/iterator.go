package engine

import (
	"iter"

	"github.com/shaiso/harvester/internal/domain"
)

// Tuple — одна полная комбинация: по Binding на каждую позицию
// и снимок контекста на момент выдачи.
type Tuple struct {
	Bindings []domain.Binding
	Context  domain.Context
}

// DefaultGenerators возвращает генераторы шага или, если их нет,
// единственный Range {IDX_<step>, 0, 1}, чтобы шаг дал ровно один кортеж.
func DefaultGenerators(step domain.Step) []domain.GeneratorSpec {
	if len(step.TaskIters) > 0 {
		return step.TaskIters
	}
	return []domain.GeneratorSpec{domain.NewRange("IDX_"+step.Name, "0", "1")}
}

// position — одна позиция одометра.
type position struct {
	next    func() (domain.Binding, bool)
	stop    func()
	current domain.Binding // nil — позицию нужно перезапустить
}

// Iterator — зависимое декартово произведение генераторов («одометр»).
//
// Последняя позиция меняется быстрее всех. Когда позиция k исчерпана,
// итератор откатывается к k-1 и берёт её следующее значение; позиция k
// при следующем входе создаётся заново против уже изменённого контекста,
// поэтому её шаблоны видят текущие значения позиций 0..k-1.
//
// Iterator не безопасен для конкурентного использования: его двигает
// один контроллер, а потребители получают снимки контекста.
type Iterator struct {
	specs     []domain.GeneratorSpec
	ctx       domain.Context
	positions []position
	pos       int
	done      bool
}

// NewIterator создаёт итератор. Позиция 0 запускается сразу против seed.
func NewIterator(specs []domain.GeneratorSpec, seed domain.Context) *Iterator {
	it := &Iterator{
		specs:     specs,
		ctx:       seed.Clone(),
		positions: make([]position, len(specs)),
	}
	if len(specs) == 0 {
		it.done = true
		return it
	}
	it.restart(0)
	return it
}

func (it *Iterator) restart(pos int) {
	p := &it.positions[pos]
	if p.stop != nil {
		p.stop()
	}
	p.next, p.stop = iter.Pull(Generate(it.specs[pos], it.ctx))
	p.current = nil
}

// Next возвращает следующий кортеж или false, когда позиция 0 исчерпана.
func (it *Iterator) Next() (Tuple, bool) {
	if it.done {
		return Tuple{}, false
	}

	last := len(it.specs) - 1
	for {
		p := &it.positions[it.pos]
		if it.pos != 0 && p.current == nil {
			it.restart(it.pos)
		}

		b, ok := p.next()
		if !ok {
			p.current = nil
			if it.pos == 0 {
				it.Close()
				return Tuple{}, false
			}
			it.pos--
			continue
		}

		it.ctx.Merge(b)
		p.current = b
		if it.pos < last {
			it.pos++
			continue
		}

		bindings := make([]domain.Binding, len(it.positions))
		for i := range it.positions {
			bindings[i] = it.positions[i].current
		}
		return Tuple{Bindings: bindings, Context: it.ctx.Clone()}, true
	}
}

// Close освобождает все незавершённые последовательности.
// Повторный вызов безопасен.
func (it *Iterator) Close() {
	it.done = true
	for i := range it.positions {
		if it.positions[i].stop != nil {
			it.positions[i].stop()
			it.positions[i].stop = nil
		}
	}
}

// All возвращает итератор как iter.Seq. Прерывание range закрывает его.
func (it *Iterator) All() iter.Seq[Tuple] {
	return func(yield func(Tuple) bool) {
		defer it.Close()
		for {
			t, ok := it.Next()
			if !ok || !yield(t) {
				return
			}
		}
	}
}

// Tuples — сокращение для NewIterator(...).All().
func Tuples(specs []domain.GeneratorSpec, seed domain.Context) iter.Seq[Tuple] {
	return NewIterator(specs, seed).All()
}
