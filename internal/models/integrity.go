package models

import (
	"github.com/golang/glog"

	"relmodels/internal/schema"
)

// attach: одностороннее добавление id в поле (без обратной стороны)
func (ms *Models) attach(rec *Record, f schema.Relational, target ID) {
	name := f.Name()
	if f.IsMany() {
		if !rec.many[name].add(target) {
			return
		}
		if _, ok := rec.model.onAdd[name]; ok {
			if other := ms.live(f.Relation(), target); other != nil {
				ms.addQ.Push(hookCall{rec: rec, field: name, other: other})
			}
		}
	} else {
		if rec.one[name] == target {
			return
		}
		rec.one[name] = target
	}
	ms.touch(rec, name)
}

// detach: одностороннее удаление; отсутствие id, не ошибка
func (ms *Models) detach(rec *Record, f schema.Relational, target ID) {
	name := f.Name()
	if f.IsMany() {
		if !rec.many[name].remove(target) {
			return
		}
		if _, ok := rec.model.onRemove[name]; ok {
			if other := ms.live(f.Relation(), target); other != nil {
				ms.removeQ.Push(hookCall{rec: rec, field: name, other: other})
			}
		}
	} else {
		if rec.one[name] != target {
			return
		}
		delete(rec.one, name)
	}
	ms.touch(rec, name)
}

// live: неудалённая запись модели или nil
func (ms *Models) live(model string, id ID) *Record {
	m := ms.models[model]
	if m == nil {
		return nil
	}
	r := m.records[id]
	if r == nil || r.deleted {
		return nil
	}
	return r
}

// link добавляет target в поле записи и поддерживает обратную сторону.
// Для many2one прежнее значение сначала отвязывается; то же значение: no-op.
func (ms *Models) link(rec *Record, f schema.Relational, target ID) {
	if target.IsZero() || rec.deleted {
		return
	}
	if f.IsMany() {
		if rec.many[f.Name()].has(target) {
			return
		}
	} else {
		prev := rec.one[f.Name()]
		if prev == target {
			return
		}
		if !prev.IsZero() {
			ms.unlink(rec, f, prev)
		}
	}
	ms.attach(rec, f, target)

	trec := ms.live(f.Relation(), target)
	if trec == nil {
		ms.wait(rec, f, target)
		return
	}
	ms.attachInverse(trec, f.InverseField(), rec)
}

// attachInverse ставит src в обратное поле inv записи trec. Если обратное поле -
// many2one, trec сначала уходит от прежнего владельца.
func (ms *Models) attachInverse(trec *Record, inv schema.Relational, src *Record) {
	if !inv.IsMany() {
		prev := trec.one[inv.Name()]
		if prev == src.id {
			return
		}
		if !prev.IsZero() {
			if owner := ms.live(inv.Relation(), prev); owner != nil {
				ms.detach(owner, inv.InverseField(), trec.id)
			} else {
				ms.unwait(prev, inv.Relation(), trec, inv)
			}
			ms.detach(trec, inv, prev)
		}
	}
	ms.attach(trec, inv, src.id)
}

// unlink: симметричное удаление связи; если связи нет, ничего не меняется
func (ms *Models) unlink(rec *Record, f schema.Relational, target ID) {
	if !rec.Has(f.Name(), target) {
		return
	}
	ms.detach(rec, f, target)
	if trec := ms.live(f.Relation(), target); trec != nil {
		ms.detach(trec, f.InverseField(), rec.id)
	} else {
		ms.unwait(target, f.Relation(), rec, f)
	}
}

// wait запоминает висячую ссылку: обратная сторона проставится при создании цели
func (ms *Models) wait(rec *Record, f schema.Relational, target ID) {
	key := recordKey{model: f.Relation(), id: target}
	for _, w := range ms.dangling[key] {
		if w.rec == rec && w.field == f {
			return
		}
	}
	ms.dangling[key] = append(ms.dangling[key], waiter{rec: rec, field: f})
	glog.V(2).Infof("models: %s.%s -> %s(%s) is dangling", rec, f.Name(), f.Relation(), target)
}

func (ms *Models) unwait(target ID, model string, rec *Record, f schema.Relational) {
	key := recordKey{model: model, id: target}
	list := ms.dangling[key]
	for i, w := range list {
		if w.rec == rec && w.field == f {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(ms.dangling, key)
	} else {
		ms.dangling[key] = list
	}
}

// resolveDangling вызывается при появлении записи: все, кто ссылался на её id,
// получают обратную связь
func (ms *Models) resolveDangling(rec *Record) {
	key := recordKey{model: rec.model.name, id: rec.id}
	list := ms.dangling[key]
	if len(list) == 0 {
		return
	}
	delete(ms.dangling, key)
	for _, w := range list {
		if w.rec.deleted || !w.rec.Has(w.field.Name(), rec.id) {
			continue
		}
		ms.attachInverse(rec, w.field.InverseField(), w.rec)
	}
}

// DanglingCount: число висячих ссылок (для диагностики)
func (ms *Models) DanglingCount() int {
	n := 0
	for _, l := range ms.dangling {
		n += len(l)
	}
	return n
}

// finalizeDelete: фактическое удаление: отвязка по снимку связей, затем индексы,
// основная карта и подписки
func (ms *Models) finalizeDelete(rec *Record) {
	if rec.deleted {
		return
	}
	type link struct {
		f   schema.Relational
		ids []ID
	}
	var snapshot []link
	for _, f := range rec.model.def.Relational() {
		if ids := rec.links(f); len(ids) > 0 {
			snapshot = append(snapshot, link{f: f, ids: ids})
		}
	}
	for _, l := range snapshot {
		for _, id := range l.ids {
			ms.unlink(rec, l.f, id)
		}
	}

	m := rec.model
	m.remove(rec)
	rec.deleted = true
	rec.pendingDelete = false
	delete(ms.subs, rec)
	glog.V(2).Infof("models: deleted %s", rec)
	m.emit(EventDelete, rec)
}

// relField: реляционное поле модели записи
func relField(rec *Record, field string) (schema.Relational, error) {
	f, ok := rec.model.def.Field(field)
	if !ok {
		return nil, &UnknownFieldError{Model: rec.model.name, Field: field}
	}
	r, ok := f.(schema.Relational)
	if !ok {
		return nil, mismatch(rec.model.name, field, "not a relational field")
	}
	return r, nil
}

// GetRelated: живые записи по реляционному полю (для many2one, 0 или 1 запись)
func (ms *Models) GetRelated(rec *Record, field string) ([]*Record, error) {
	f, err := relField(rec, field)
	if err != nil {
		return nil, err
	}
	ids := rec.links(f)
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if r := ms.live(f.Relation(), id); r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRelatedOne: живая запись по many2one или nil
func (ms *Models) GetRelatedOne(rec *Record, field string) (*Record, error) {
	f, err := relField(rec, field)
	if err != nil {
		return nil, err
	}
	if f.IsMany() {
		return nil, mismatch(rec.model.name, field, "not a many2one field")
	}
	return ms.live(f.Relation(), rec.one[field]), nil
}

// SetRelated присваивает реляционное поле (значение в любом виде, принимаемом Update)
func (ms *Models) SetRelated(rec *Record, field string, value any) error {
	if _, err := relField(rec, field); err != nil {
		return err
	}
	return rec.model.Update(rec, map[string]any{field: value})
}

// Link связывает запись с target (запись, ID или идентификатор) по полю
func (ms *Models) Link(rec *Record, field string, target any) error {
	f, id, err := ms.resolveLinkTarget(rec, field, target, ms.allowDangling)
	if err != nil {
		return err
	}
	return ms.Batch(func() error {
		ms.link(rec, f, id)
		return nil
	})
}

// Unlink разрывает связь с обеих сторон; отсутствие связи: не ошибка
func (ms *Models) Unlink(rec *Record, field string, target any) error {
	f, id, err := ms.resolveLinkTarget(rec, field, target, true)
	if err != nil {
		return err
	}
	return ms.Batch(func() error {
		ms.unlink(rec, f, id)
		return nil
	})
}

func (ms *Models) resolveLinkTarget(rec *Record, field string, target any, dangling bool) (schema.Relational, ID, error) {
	if rec == nil || rec.deleted {
		return nil, ID{}, &UnknownRecordError{Model: "?", ID: ID{}}
	}
	f, err := relField(rec, field)
	if err != nil {
		return nil, ID{}, err
	}
	id, err := ms.targetID(rec.model.name, f, target, dangling)
	if err != nil {
		return nil, ID{}, err
	}
	if id.IsZero() {
		return nil, ID{}, mismatch(rec.model.name, field, "empty link target")
	}
	return f, id, nil
}

// targetID проверяет цель связи: модель записи и существование (если висячие запрещены)
func (ms *Models) targetID(model string, f schema.Relational, v any, dangling bool) (ID, error) {
	if r, ok := v.(*Record); ok && r != nil {
		if r.model.name != f.Relation() {
			return ID{}, mismatch(model, f.Name(), "expected %s record, got %s", f.Relation(), r.model.name)
		}
		if r.deleted {
			return ID{}, &UnknownRecordError{Model: f.Relation(), ID: r.id, Field: model + "." + f.Name()}
		}
		return r.id, nil
	}
	id, ok := ParseID(v)
	if !ok {
		return ID{}, mismatch(model, f.Name(), "invalid %s id %v", f.Relation(), v)
	}
	if id.IsZero() || dangling {
		return id, nil
	}
	if ms.live(f.Relation(), id) == nil {
		return ID{}, &UnknownRecordError{Model: f.Relation(), ID: id, Field: model + "." + f.Name()}
	}
	return id, nil
}
