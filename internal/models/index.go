package models

import (
	"fmt"

	"relmodels/internal/schema"
)

// index: вторичный индекс по полю. Ключ отображается в упорядоченную группу
// держателей; уникальный отдаёт последнего записанного, а после его ухода
// предыдущего живого.
type index struct {
	spec   schema.Index
	field  schema.Field
	groups map[any]*recordList
	keys   map[*Record][]any // текущие ключи записи
	order  []any             // ключи в порядке первого появления
}

func newIndex(spec schema.Index, f schema.Field) *index {
	return &index{
		spec:   spec,
		field:  f,
		groups: map[any]*recordList{},
		keys:   map[*Record][]any{},
	}
}

// recordKeys: ключи записи для индекса; пустое значение не индексируется
func (ix *index) recordKeys(rec *Record) []any {
	name := ix.spec.Field
	if name == "id" {
		return []any{rec.id}
	}
	switch ix.field.Kind() {
	case schema.KindScalar:
		if k, ok := scalarKey(rec.scalars[name]); ok {
			return []any{k}
		}
		return nil
	case schema.KindMany2One:
		if id := rec.one[name]; !id.IsZero() {
			return []any{id}
		}
		return nil
	default:
		ids := rec.many[name].list()
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out
	}
}

// lookupKey приводит значение запроса к ключу индекса
func (ix *index) lookupKey(v any) (any, bool) {
	if ix.spec.Field == "id" || ix.field.Kind() != schema.KindScalar {
		id, ok := ParseID(v)
		if !ok || id.IsZero() {
			return nil, false
		}
		return id, true
	}
	sc := ix.field.(*schema.Scalar)
	cv, err := coerceScalar(sc, v)
	if err != nil {
		return nil, false
	}
	return scalarKey(cv)
}

// scalarKey: сравнимый ключ; составные значения (json) индексируются по строке
func scalarKey(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, int64, float64, bool:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}

// update приводит ключи записи к текущим значениям; неизменившиеся ключи
// сохраняют позицию записи в группе
func (ix *index) update(rec *Record) {
	next := ix.recordKeys(rec)
	keep := make(map[any]bool, len(next))
	for _, k := range next {
		keep[k] = true
	}
	had := make(map[any]bool, len(ix.keys[rec]))
	for _, k := range ix.keys[rec] {
		had[k] = true
		if !keep[k] {
			ix.dropKey(rec, k)
		}
	}
	var added []any
	for _, k := range next {
		if !had[k] {
			added = append(added, k)
		}
	}
	ix.keys[rec] = next
	ix.put(rec, added)
}

func (ix *index) put(rec *Record, ks []any) {
	for _, k := range ks {
		g := ix.groups[k]
		if g == nil {
			g = newRecordList()
			ix.groups[k] = g
			ix.order = append(ix.order, k)
		}
		g.add(rec)
	}
}

func (ix *index) drop(rec *Record) {
	for _, k := range ix.keys[rec] {
		ix.dropKey(rec, k)
	}
	delete(ix.keys, rec)
}

func (ix *index) dropKey(rec *Record, k any) {
	if g := ix.groups[k]; g != nil {
		g.remove(rec)
		if g.len() == 0 {
			delete(ix.groups, k)
			ix.forget(k)
		}
	}
}

func (ix *index) forget(k any) {
	for i, o := range ix.order {
		if o == k {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			return
		}
	}
}

func (ix *index) get(k any) []*Record {
	g := ix.groups[k]
	if g == nil || g.len() == 0 {
		return nil
	}
	if ix.spec.Unique {
		return []*Record{g.items[g.len()-1]}
	}
	return g.list()
}

func (ix *index) all() map[any][]*Record {
	out := make(map[any][]*Record, len(ix.order))
	for _, k := range ix.order {
		out[k] = ix.get(k)
	}
	return out
}

// orderedKeys: ключи в порядке появления
func (ix *index) orderedKeys() []any { return append([]any(nil), ix.order...) }

func (m *Model) reindex(rec *Record, field string) {
	ix, ok := m.indexes[field]
	if !ok || rec.deleted {
		return
	}
	ix.update(rec)
}

func (m *Model) unindex(rec *Record) {
	for _, ix := range m.indexes {
		ix.drop(rec)
	}
}

// IndexKeys: ключи индекса в порядке первого появления
func (m *Model) IndexKeys(key string) ([]any, error) {
	ix, ok := m.indexes[key]
	if !ok {
		return nil, &IndexError{Model: m.name, Key: key}
	}
	return ix.orderedKeys(), nil
}
