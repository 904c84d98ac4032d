package models

import (
	"fmt"
	"sort"

	"relmodels/internal/schema"
)

// Event: событие модели для AddEventListener
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Model: API одной модели: CRUD, чтение по индексам, сериализация, хуки
type Model struct {
	root *Models
	def  *schema.Model
	name string

	records map[ID]*Record
	order   *recordList
	indexes map[string]*index

	listeners map[Event][]func([]*Record)
	pending   map[Event]*recordList
	flushing  bool

	computes     map[string]func(*Record) any
	computeOrder []string
	dependents   map[string][]string // поле → вычисляемые поля, зависящие от него
	sorts        map[string]func(a, b *Record) bool
	onAdd        map[string]func(rec, added *Record)
	onRemove     map[string]func(rec, removed *Record)
}

func newModel(root *Models, def *schema.Model) *Model {
	m := &Model{
		root:       root,
		def:        def,
		name:       def.Name,
		records:    map[ID]*Record{},
		order:      newRecordList(),
		indexes:    map[string]*index{},
		listeners:  map[Event][]func([]*Record){},
		pending:    map[Event]*recordList{},
		computes:   map[string]func(*Record) any{},
		dependents: map[string][]string{},
		sorts:      map[string]func(a, b *Record) bool{},
		onAdd:      map[string]func(rec, added *Record){},
		onRemove:   map[string]func(rec, removed *Record){},
	}
	for _, ix := range def.Indexes() {
		f, _ := def.Field(ix.Field)
		m.indexes[ix.Field] = newIndex(ix, f)
	}
	return m
}

func (m *Model) Name() string          { return m.name }
func (m *Model) Schema() *schema.Model { return m.def }

// Create создаёт запись (или сливает с существующей, если id уже есть)
func (m *Model) Create(vals map[string]any) (*Record, error) {
	recs, err := m.root.write(m, []map[string]any{vals}, writeOptions{create: true, dangling: m.root.allowDangling})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// CreateMany: все payload проверяются до того, как хоть один применится
func (m *Model) CreateMany(list []map[string]any) ([]*Record, error) {
	return m.root.write(m, list, writeOptions{create: true, dangling: m.root.allowDangling})
}

// Update применяет значения к записи; неизвестные ключи игнорируются.
// Либо применяются все поля, либо (при ошибке) ни одно.
func (m *Model) Update(rec *Record, vals map[string]any) error {
	if rec == nil || rec.model != m {
		return &TypeMismatchError{Model: m.name, Field: "id", Message: fmt.Sprintf("record %v does not belong to %s", rec, m.name)}
	}
	if rec.deleted {
		return &UnknownRecordError{Model: m.name, ID: rec.id}
	}
	_, err := m.root.write(m, []map[string]any{vals}, writeOptions{target: rec, dangling: m.root.allowDangling})
	return err
}

// Delete помечает запись к удалению; фактическое удаление: в последней фазе цикла.
// Повторный вызов ничего не делает.
func (m *Model) Delete(rec *Record) ID {
	if rec == nil {
		return ID{}
	}
	_ = m.root.Batch(func() error {
		if rec.deleted || rec.pendingDelete {
			return nil
		}
		rec.pendingDelete = true
		m.root.deleteQ.Add(rec)
		return nil
	})
	return rec.id
}

func (m *Model) DeleteMany(recs []*Record) []ID {
	out := make([]ID, 0, len(recs))
	_ = m.root.Batch(func() error {
		for _, r := range recs {
			out = append(out, m.Delete(r))
		}
		return nil
	})
	return out
}

// Read: запись по id (ID, число или строка) или nil
func (m *Model) Read(id any) *Record {
	pid, ok := ParseID(id)
	if !ok || pid.IsZero() {
		return nil
	}
	return m.records[pid]
}

func (m *Model) ReadFirst() *Record {
	if m.order.len() == 0 {
		return nil
	}
	return m.order.items[0]
}

func (m *Model) ReadAll() []*Record { return m.order.list() }

// ReadMany сохраняет порядок ids; на месте отсутствующих: nil
func (m *Model) ReadMany(ids []any) []*Record {
	out := make([]*Record, len(ids))
	for i, id := range ids {
		out[i] = m.Read(id)
	}
	return out
}

// ReadBy: записи с данным значением индексированного поля
func (m *Model) ReadBy(key string, value any) ([]*Record, error) {
	ix, ok := m.indexes[key]
	if !ok {
		return nil, &IndexError{Model: m.name, Key: key}
	}
	k, ok := ix.lookupKey(value)
	if !ok {
		return nil, nil
	}
	return ix.get(k), nil
}

// ReadOneBy: первая запись по индексу или nil
func (m *Model) ReadOneBy(key string, value any) (*Record, error) {
	recs, err := m.ReadBy(key, value)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// ReadAllBy: все группы индекса. Ключи: ID для id и реляционных полей,
// нормализованный скаляр для остальных.
func (m *Model) ReadAllBy(key string) (map[any][]*Record, error) {
	ix, ok := m.indexes[key]
	if !ok {
		return nil, &IndexError{Model: m.name, Key: key}
	}
	return ix.all(), nil
}

// синонимы
func (m *Model) Get(id any) *Record                             { return m.Read(id) }
func (m *Model) GetFirst() *Record                              { return m.ReadFirst() }
func (m *Model) GetAll() []*Record                              { return m.ReadAll() }
func (m *Model) GetBy(key string, value any) ([]*Record, error) { return m.ReadBy(key, value) }
func (m *Model) GetAllBy(key string) (map[any][]*Record, error) { return m.ReadAllBy(key) }

func (m *Model) Len() int { return m.order.len() }

func (m *Model) IndexOf(rec *Record) int { return m.order.indexOf(rec) }

func (m *Model) ForEach(fn func(*Record)) {
	for _, r := range m.order.list() {
		fn(r)
	}
}

func (m *Model) Filter(fn func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range m.order.items {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) Find(fn func(*Record) bool) *Record {
	for _, r := range m.order.items {
		if fn(r) {
			return r
		}
	}
	return nil
}

func (m *Model) Some(fn func(*Record) bool) bool { return m.Find(fn) != nil }

func (m *Model) Every(fn func(*Record) bool) bool {
	for _, r := range m.order.items {
		if !fn(r) {
			return false
		}
	}
	return true
}

// Sort возвращает отсортированную копию; порядок вставки не меняется
func (m *Model) Sort(less func(a, b *Record) bool) []*Record {
	out := m.order.list()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Map, FlatMap, Reduce: методы с параметрами типа в Go невозможны, поэтому функции
func Map[T any](m *Model, fn func(*Record) T) []T {
	out := make([]T, 0, m.Len())
	for _, r := range m.order.list() {
		out = append(out, fn(r))
	}
	return out
}

func FlatMap[T any](m *Model, fn func(*Record) []T) []T {
	var out []T
	for _, r := range m.order.list() {
		out = append(out, fn(r)...)
	}
	return out
}

func Reduce[T any](m *Model, fn func(acc T, r *Record) T, initial T) T {
	acc := initial
	for _, r := range m.order.list() {
		acc = fn(acc, r)
	}
	return acc
}

// AddEventListener: create/update получают записи, удаление: удалённые записи
// (IsDeleted() == true, ID() по-прежнему доступен). События копятся в течение цикла.
func (m *Model) AddEventListener(event Event, cb func([]*Record)) error {
	switch event {
	case EventCreate, EventUpdate, EventDelete:
	default:
		return fmt.Errorf("event %q is not available", event)
	}
	m.listeners[event] = append(m.listeners[event], cb)
	return nil
}

// emit копит событие до фазы ready
func (m *Model) emit(event Event, rec *Record) {
	if len(m.listeners[event]) == 0 {
		return
	}
	l := m.pending[event]
	if l == nil {
		l = newRecordList()
		m.pending[event] = l
	}
	l.add(rec)
	if !m.flushing {
		m.flushing = true
		m.root.readyQ.Push(m.flushEvents)
	}
}

func (m *Model) flushEvents() {
	m.flushing = false
	pending := m.pending
	m.pending = map[Event]*recordList{}

	created := pending[EventCreate]
	for _, ev := range []Event{EventCreate, EventUpdate, EventDelete} {
		l := pending[ev]
		if l == nil {
			continue
		}
		var recs []*Record
		for _, r := range l.items {
			if ev != EventDelete && r.deleted {
				continue
			}
			// созданная в этом же цикле запись не получает отдельного update
			if ev == EventUpdate && created != nil && created.indexOf(r) >= 0 {
				continue
			}
			recs = append(recs, r)
		}
		if len(recs) == 0 {
			continue
		}
		for _, cb := range m.listeners[ev] {
			cb(recs)
		}
	}
}

// insert регистрирует новую запись в хранилище модели
func (m *Model) insert(rec *Record) {
	m.records[rec.id] = rec
	m.order.add(rec)
	m.reindex(rec, "id")
}

func (m *Model) remove(rec *Record) {
	m.unindex(rec)
	delete(m.records, rec.id)
	m.order.remove(rec)
}
