package models

import (
	"sort"

	"github.com/golang/glog"

	"relmodels/internal/schema"
)

// Compute регистрирует вычисляемое скалярное поле: fn пересчитывается в фазе compute
// при создании записи и при каждом изменении любого из deps.
func (m *Model) Compute(field string, deps []string, fn func(*Record) any) error {
	f, ok := m.def.Field(field)
	if !ok {
		return &UnknownFieldError{Model: m.name, Field: field}
	}
	if f.Kind() != schema.KindScalar {
		return mismatch(m.name, field, "only scalar fields can be computed")
	}
	for _, d := range deps {
		if _, ok := m.def.Field(d); !ok {
			return &UnknownFieldError{Model: m.name, Field: d}
		}
	}
	if _, exists := m.computes[field]; !exists {
		m.computeOrder = append(m.computeOrder, field)
	}
	m.computes[field] = fn
	for _, d := range deps {
		m.dependents[d] = appendUnique(m.dependents[d], field)
	}
	// уже загруженные записи пересчитываем сразу
	_ = m.root.Batch(func() error {
		for _, r := range m.order.items {
			m.root.computeQ.Add(fieldRef{r, field})
		}
		return nil
	})
	return nil
}

// SortBy задаёт порядок x2many поля; пересортировка: в фазе sort после изменений поля
func (m *Model) SortBy(field string, less func(a, b *Record) bool) error {
	if _, err := m.x2many(field); err != nil {
		return err
	}
	m.sorts[field] = less
	_ = m.root.Batch(func() error {
		for _, r := range m.order.items {
			m.root.sortQ.Add(fieldRef{r, field})
		}
		return nil
	})
	return nil
}

// OnAdd: хук на добавление записи в x2many поле
func (m *Model) OnAdd(field string, fn func(rec, added *Record)) error {
	if _, err := m.x2many(field); err != nil {
		return err
	}
	m.onAdd[field] = fn
	return nil
}

// OnRemove: хук на удаление записи из x2many поля
func (m *Model) OnRemove(field string, fn func(rec, removed *Record)) error {
	if _, err := m.x2many(field); err != nil {
		return err
	}
	m.onRemove[field] = fn
	return nil
}

func (m *Model) x2many(field string) (schema.Relational, error) {
	f, ok := m.def.Field(field)
	if !ok {
		return nil, &UnknownFieldError{Model: m.name, Field: field}
	}
	r, ok := f.(schema.Relational)
	if !ok || !r.IsMany() {
		return nil, mismatch(m.name, field, "not a one2many/many2many field")
	}
	return r, nil
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func (ms *Models) runCompute(ref fieldRef) {
	rec := ref.rec
	if rec.deleted {
		return
	}
	fn := rec.model.computes[ref.field]
	if fn == nil {
		return
	}
	f, _ := rec.model.def.Field(ref.field)
	v, err := coerceScalar(f.(*schema.Scalar), fn(rec))
	if err != nil {
		glog.Warningf("models: compute %s.%s: %v", rec, ref.field, err)
		return
	}
	ms.setScalar(rec, ref.field, v)
}

func (ms *Models) runSort(ref fieldRef) {
	rec := ref.rec
	if rec.deleted {
		return
	}
	less := rec.model.sorts[ref.field]
	set := rec.many[ref.field]
	if less == nil || set == nil || set.len() < 2 {
		return
	}
	f, _ := rec.model.def.Field(ref.field)
	target := f.(schema.Relational).Relation()

	ids := set.list()
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ms.live(target, ids[i]), ms.live(target, ids[j])
		// висячие id: в конец
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return less(a, b)
	})
	changed := false
	for i, id := range ids {
		if set.items[i] != id {
			changed = true
			break
		}
	}
	if !changed {
		return
	}
	set.reorder(ids)
	// порядок: тоже изменение поля, но без повторной сортировки
	ms.notifyQ.Add(ref)
}

func (ms *Models) runOnAdd(c hookCall) {
	if c.rec.deleted {
		return
	}
	if fn := c.rec.model.onAdd[c.field]; fn != nil {
		fn(c.rec, c.other)
	}
}

func (ms *Models) runOnRemove(c hookCall) {
	if c.rec.deleted {
		return
	}
	if fn := c.rec.model.onRemove[c.field]; fn != nil {
		fn(c.rec, c.other)
	}
}
