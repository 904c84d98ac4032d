package models

import (
	"github.com/golang/glog"

	"relmodels/internal/batch"
	"relmodels/internal/schema"
)

// Setup вызывается для каждой записи после того, как вся операция (create, loadData)
// применена и связи проставлены. vals: исходный payload.
type Setup func(rec *Record, vals map[string]any)

// Models: хранилище записей всех моделей одной схемы. Однопоточное: все мутации
// и рассылка уведомлений идут синхронно, вызывающий обеспечивает одного писателя.
type Models struct {
	schema *schema.Schema
	models map[string]*Model
	order  []string

	engine        *batch.Engine
	alloc         IDAllocator
	allowDangling bool
	setups        map[string][]Setup

	// очереди фаз разгрузки, в порядке обработки
	computeQ batch.Set[fieldRef]
	sortQ    batch.Set[fieldRef]
	addQ     batch.List[hookCall]
	removeQ  batch.List[hookCall]
	notifyQ  batch.Set[fieldRef]
	readyQ   batch.List[func()]
	deleteQ  batch.Set[*Record]

	subs     map[*Record]map[string][]*subscription
	dangling map[recordKey][]waiter
}

type fieldRef struct {
	rec   *Record
	field string
}

type recordKey struct {
	model string
	id    ID
}

// waiter: запись, ссылающаяся на ещё не существующую цель
type waiter struct {
	rec   *Record
	field schema.Relational
}

type hookCall struct {
	rec   *Record
	field string
	other *Record
}

type subscription struct {
	cb     func()
	active bool
}

type Option func(*Models)

// WithAllocator задаёт генератор клиентских id (по умолчанию CounterAllocator)
func WithAllocator(a IDAllocator) Option {
	return func(ms *Models) { ms.alloc = a }
}

// WithDangling разрешает ссылки на отсутствующие записи в Create/Update/Link
func WithDangling(allow bool) Option {
	return func(ms *Models) { ms.allowDangling = allow }
}

// WithSetup регистрирует пост-инициализацию записей модели
func WithSetup(model string, fn Setup) Option {
	return func(ms *Models) { ms.setups[model] = append(ms.setups[model], fn) }
}

// New создаёт хранилище по разрешённой схеме
func New(s *schema.Schema, opts ...Option) *Models {
	ms := &Models{
		schema:   s,
		models:   map[string]*Model{},
		engine:   batch.New(),
		setups:   map[string][]Setup{},
		subs:     map[*Record]map[string][]*subscription{},
		dangling: map[recordKey][]waiter{},
	}
	for _, o := range opts {
		o(ms)
	}
	if ms.alloc == nil {
		ms.alloc = NewCounterAllocator()
	}
	for _, name := range s.Names() {
		def, _ := s.Model(name)
		ms.models[name] = newModel(ms, def)
		ms.order = append(ms.order, name)
	}

	ms.engine.Register("compute", batch.SetPhase(&ms.computeQ, ms.runCompute))
	ms.engine.Register("sort", batch.SetPhase(&ms.sortQ, ms.runSort))
	ms.engine.Register("add", batch.ListPhase(&ms.addQ, ms.runOnAdd))
	ms.engine.Register("remove", batch.ListPhase(&ms.removeQ, ms.runOnRemove))
	ms.engine.Register("notify", batch.PhaseFunc(func() func() {
		refs := ms.notifyQ.Take()
		if refs == nil {
			return nil
		}
		return func() { ms.runNotify(refs) }
	}))
	ms.engine.Register("ready", batch.ListPhase(&ms.readyQ, func(fn func()) { fn() }))
	ms.engine.Register("delete", batch.SetPhase(&ms.deleteQ, ms.finalizeDelete))
	return ms
}

func (ms *Models) Schema() *schema.Schema { return ms.schema }

// Model возвращает API модели или nil
func (ms *Models) Model(name string) *Model { return ms.models[name] }

// Names: модели в порядке схемы
func (ms *Models) Names() []string { return append([]string(nil), ms.order...) }

func (ms *Models) model(name string) (*Model, error) {
	m, ok := ms.models[name]
	if !ok {
		return nil, &UnknownModelError{Model: name}
	}
	return m, nil
}

// Batch выполняет fn как один цикл обновления: подписчики, хуки и отложенные
// удаления срабатывают один раз, когда завершится самый внешний Batch.
func (ms *Models) Batch(fn func() error) error {
	return ms.engine.Run(fn)
}

// Records: записи модели в порядке вставки
func (ms *Models) Records(model string) ([]*Record, error) {
	m, err := ms.model(model)
	if err != nil {
		return nil, err
	}
	return m.ReadAll(), nil
}

// Indexed: группы записей по индексу
func (ms *Models) Indexed(model, key string) (map[any][]*Record, error) {
	m, err := ms.model(model)
	if err != nil {
		return nil, err
	}
	return m.ReadAllBy(key)
}

// OnFieldChange подписывает cb на изменения полей записи. cb вызывается без аргументов
// не более одного раза за проход разгрузки; текущее состояние читается из записи.
func (ms *Models) OnFieldChange(rec *Record, fields []string, cb func()) (func(), error) {
	for _, f := range fields {
		if _, ok := rec.model.def.Field(f); !ok {
			return nil, &UnknownFieldError{Model: rec.model.name, Field: f}
		}
	}
	sub := &subscription{cb: cb, active: true}
	byField := ms.subs[rec]
	if byField == nil {
		byField = map[string][]*subscription{}
		ms.subs[rec] = byField
	}
	for _, f := range fields {
		byField[f] = append(byField[f], sub)
	}
	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		byField := ms.subs[rec]
		for _, f := range fields {
			list := byField[f]
			for i, s := range list {
				if s == sub {
					byField[f] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(byField[f]) == 0 {
				delete(byField, f)
			}
		}
	}, nil
}

// OnReady ставит fn в фазу ready текущего цикла (или запускает новый цикл)
func (ms *Models) OnReady(fn func()) {
	_ = ms.Batch(func() error {
		ms.readyQ.Push(fn)
		return nil
	})
}

// touch фиксирует изменение поля: индексы, уведомления, зависимые вычисления, сортировка
func (ms *Models) touch(rec *Record, field string) {
	if rec.deleted {
		return
	}
	m := rec.model
	m.reindex(rec, field)
	ms.notifyQ.Add(fieldRef{rec, field})
	for _, c := range m.dependents[field] {
		ms.computeQ.Add(fieldRef{rec, c})
	}
	if _, ok := m.sorts[field]; ok {
		ms.sortQ.Add(fieldRef{rec, field})
	}
}

// runNotify рассылает уведомления одного прохода; подписка на несколько полей
// срабатывает один раз
func (ms *Models) runNotify(refs []fieldRef) {
	fired := map[*subscription]bool{}
	for _, ref := range refs {
		if ref.rec.deleted {
			continue
		}
		list := ms.subs[ref.rec][ref.field]
		if len(list) == 0 {
			continue
		}
		glog.V(3).Infof("models: notify %s.%s (%d)", ref.rec, ref.field, len(list))
		for _, sub := range append([]*subscription(nil), list...) {
			// отписка во время разгрузки отменяет ещё не выполненные вызовы
			if !sub.active || fired[sub] {
				continue
			}
			fired[sub] = true
			sub.cb()
		}
	}
}
