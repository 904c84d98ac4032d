// Package batch склеивает вложенные изменения в один наблюдаемый цикл обновления.
//
// Engine держит счётчик глубины. Только самый внешний Run разгружает очереди фаз,
// причём на время разгрузки глубина снова поднимается, чтобы эффекты, порождённые
// самой разгрузкой, попали в тот же цикл. Цикл повторяется, пока все очереди не пусты.
package batch

import "github.com/golang/glog"

// Phase: одна очередь отложенных эффектов. Take забирает снимок очереди и
// возвращает функцию, которая его обработает, или nil, если очередь пуста.
type Phase interface {
	Take() func()
}

// PhaseFunc: адаптер функции к Phase
type PhaseFunc func() func()

func (f PhaseFunc) Take() func() { return f() }

type Engine struct {
	depth  int
	phases []namedPhase
	passes int
}

type namedPhase struct {
	name  string
	phase Phase
}

func New() *Engine { return &Engine{} }

// Register добавляет фазу; фазы разгружаются в порядке регистрации
func (e *Engine) Register(name string, p Phase) {
	e.phases = append(e.phases, namedPhase{name: name, phase: p})
}

// Depth: текущая глубина вложенности (0, вне батча)
func (e *Engine) Depth() int { return e.depth }

// Batching: идёт ли сейчас батч (в том числе разгрузка)
func (e *Engine) Batching() bool { return e.depth > 0 }

// Passes: сколько проходов сделала последняя разгрузка
func (e *Engine) Passes() int { return e.passes }

// Run выполняет fn внутри батча. Ошибка fn возвращается как есть; очереди
// разгружаются в любом случае, включая панику.
func (e *Engine) Run(fn func() error) (err error) {
	e.depth++
	defer func() {
		e.depth--
		if e.depth == 0 {
			e.drain()
		}
	}()
	return fn()
}

func (e *Engine) drain() {
	e.depth++
	defer func() { e.depth-- }()

	e.passes = 0
	for {
		jobs := make([]func(), len(e.phases))
		pending := false
		for i, p := range e.phases {
			jobs[i] = p.phase.Take()
			if jobs[i] != nil {
				pending = true
			}
		}
		if !pending {
			return
		}
		e.passes++
		for i, job := range jobs {
			if job == nil {
				continue
			}
			if glog.V(3) {
				glog.Infof("batch: pass %d phase %s", e.passes, e.phases[i].name)
			}
			job()
		}
	}
}
