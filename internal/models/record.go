package models

import (
	"relmodels/internal/schema"
)

// Record: одна запись модели. Скаляры хранятся значениями, связи, идентификаторами;
// живые записи по связям достаются через Related/One или Models.GetRelated.
type Record struct {
	model *Model
	id    ID

	scalars map[string]any
	one     map[string]ID
	many    map[string]*idSet

	extra   map[string]any
	uiState map[string]any
	raw     map[string]any

	pendingDelete bool
	deleted       bool
}

func newRecord(m *Model, id ID) *Record {
	r := &Record{
		model:   m,
		id:      id,
		scalars: map[string]any{},
		one:     map[string]ID{},
		many:    map[string]*idSet{},
		extra:   map[string]any{},
	}
	for _, f := range m.def.Relational() {
		if f.IsMany() {
			r.many[f.Name()] = newIDSet()
		}
	}
	return r
}

func (r *Record) ID() ID            { return r.id }
func (r *Record) Model() *Model     { return r.model }
func (r *Record) ModelName() string { return r.model.name }
func (r *Record) IsDeleted() bool   { return r.deleted }
func (r *Record) String() string    { return r.model.name + "(" + r.id.String() + ")" }

// Extra: произвольный атрибут из "_"-ключей payload
func (r *Record) Extra(key string) any { return r.extra[key] }

// Get возвращает значение поля: скаляр (nil, если не задан), ID для many2one
// (нулевой, если пусто), []ID для one2many/many2many
func (r *Record) Get(field string) any {
	if field == "id" {
		return r.id
	}
	f, ok := r.model.def.Field(field)
	if !ok {
		return nil
	}
	switch f.Kind() {
	case schema.KindScalar:
		return r.scalars[field]
	case schema.KindMany2One:
		return r.one[field]
	default:
		return r.many[field].list()
	}
}

// Ref: id по many2one
func (r *Record) Ref(field string) ID { return r.one[field] }

// Links: id по one2many/many2many в порядке вставки (или сортировки)
func (r *Record) Links(field string) []ID {
	if s := r.many[field]; s != nil {
		return s.list()
	}
	return nil
}

// Has: содержит ли поле указанный id
func (r *Record) Has(field string, id ID) bool {
	if s := r.many[field]; s != nil {
		return s.has(id)
	}
	return !id.IsZero() && r.one[field] == id
}

// Related: живые записи по x2many полю; висячие id пропускаются
func (r *Record) Related(field string) []*Record {
	out, _ := r.model.root.GetRelated(r, field)
	return out
}

// One: живая запись по many2one или nil
func (r *Record) One(field string) *Record {
	out, _ := r.model.root.GetRelatedOne(r, field)
	return out
}

// Raw: последний payload, из которого запись создавалась или обновлялась
func (r *Record) Raw() map[string]any {
	if r.raw == nil {
		return map[string]any{}
	}
	return r.raw
}

// UIState: клиентское состояние записи, не уходит на сервер
func (r *Record) UIState() map[string]any {
	if r.uiState == nil {
		r.uiState = map[string]any{}
	}
	return r.uiState
}

func (r *Record) SetupState(vals map[string]any) {
	r.uiState = make(map[string]any, len(vals))
	for k, v := range vals {
		r.uiState[k] = v
	}
}

func (r *Record) SerializeState() map[string]any {
	out := make(map[string]any, len(r.uiState))
	for k, v := range r.uiState {
		out[k] = v
	}
	return out
}

func (r *Record) Update(vals map[string]any) error { return r.model.Update(r, vals) }

func (r *Record) Delete() ID { return r.model.Delete(r) }

func (r *Record) Serialize(opts SerializeOptions) map[string]any {
	return r.model.Serialize(r, opts)
}

// links: текущие id по реляционному полю (снимок)
func (r *Record) links(f schema.Relational) []ID {
	if f.IsMany() {
		return r.many[f.Name()].list()
	}
	if id := r.one[f.Name()]; !id.IsZero() {
		return []ID{id}
	}
	return nil
}
