package models

import (
	"fmt"

	"github.com/golang/glog"

	"relmodels/internal/schema"
)

// LoadOptions: фильтр и режим загрузки
type LoadOptions struct {
	// Only: загружать только эти модели (пусто, все из payload)
	Only []string
	// FromSerialized: данные из локального снимка: клиентские id продвигают счётчик
	FromSerialized bool
}

type modelDrafts struct {
	model  *Model
	drafts []*draft
}

// LoadData загружает данные по моделям (create или слияние по id). Ссылки между
// записями разрешаются независимо от порядка: висячая ссылка получает обратную
// сторону, когда цель появится. Возвращает затронутые записи по моделям.
func (ms *Models) LoadData(raw map[string][]map[string]any, opts LoadOptions) (map[string][]*Record, error) {
	var result map[string][]*Record
	err := ms.Batch(func() error {
		groups, err := ms.prepareLoad(raw, opts)
		if err != nil {
			return err
		}
		result = ms.applyLoad(groups)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (ms *Models) prepareLoad(raw map[string][]map[string]any, opts LoadOptions) ([]modelDrafts, error) {
	only := map[string]bool{}
	for _, name := range opts.Only {
		only[name] = true
	}
	for name := range raw {
		if len(only) > 0 && !only[name] {
			continue
		}
		if _, ok := ms.models[name]; !ok {
			return nil, &UnknownModelError{Model: name}
		}
	}

	p := ms.newParser(writeOptions{create: true, dangling: true, fromSerialized: opts.FromSerialized})
	var groups []modelDrafts
	for _, name := range ms.order {
		rows, ok := raw[name]
		if !ok || (len(only) > 0 && !only[name]) {
			continue
		}
		g := modelDrafts{model: ms.models[name]}
		for i, row := range rows {
			d, err := p.parse(g.model, row, nil, "")
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			g.drafts = append(g.drafts, d)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (ms *Models) applyLoad(groups []modelDrafts) map[string][]*Record {
	result := make(map[string][]*Record, len(groups))
	var applied []*draft
	for _, g := range groups {
		recs := make([]*Record, 0, len(g.drafts))
		for _, d := range g.drafts {
			ms.apply(d, &applied)
			recs = append(recs, d.rec)
		}
		result[g.model.name] = recs
		glog.V(1).Infof("models: loaded %d %s records", len(recs), g.model.name)
	}
	// setup: когда все связи уже проставлены
	ms.runSetups(applied)
	return result
}

// ReplaceDataByKey заменяет записи, совпадающие с новыми данными по полю key:
// старые удаляются, новые загружаются, UI-состояние переносится по значению key.
func (ms *Models) ReplaceDataByKey(key string, raw map[string][]map[string]any) (map[string][]*Record, error) {
	var result map[string][]*Record
	err := ms.Batch(func() error {
		for name := range raw {
			m, err := ms.model(name)
			if err != nil {
				return err
			}
			if f, ok := m.def.Field(key); ok && f.Kind() != schema.KindScalar && f.Kind() != schema.KindMany2One {
				return mismatch(name, key, "replace key must be a scalar or many2one field")
			}
		}
		groups, err := ms.prepareLoad(raw, LoadOptions{})
		if err != nil {
			return err
		}

		states := map[string]map[any]map[string]any{}
		for _, g := range groups {
			m := g.model
			wanted := map[any]bool{}
			for _, row := range raw[m.name] {
				if k, ok := m.rowKey(key, row); ok {
					wanted[k] = true
				}
			}
			st := map[any]map[string]any{}
			for _, rec := range m.ReadAll() {
				k, ok := m.keyOf(key, rec)
				if !ok || !wanted[k] {
					continue
				}
				if len(rec.uiState) > 0 {
					st[k] = rec.SerializeState()
				}
				m.Delete(rec)
			}
			states[m.name] = st
		}

		result = ms.applyLoad(groups)
		for name, recs := range result {
			m := ms.models[name]
			for _, rec := range recs {
				if k, ok := m.keyOf(key, rec); ok {
					if st, ok := states[name][k]; ok {
						rec.SetupState(st)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// keyOf: сравнимое значение поля key записи
func (m *Model) keyOf(key string, rec *Record) (any, bool) {
	f, ok := m.def.Field(key)
	if !ok {
		v, has := rec.Raw()[key]
		if !has {
			return nil, false
		}
		return fmt.Sprint(v), true
	}
	switch f.Kind() {
	case schema.KindScalar:
		if key == "id" {
			return rec.id, true
		}
		return scalarKey(rec.scalars[key])
	case schema.KindMany2One:
		id := rec.one[key]
		return id, !id.IsZero()
	}
	return nil, false
}

// rowKey: то же значение из сырого payload
func (m *Model) rowKey(key string, row map[string]any) (any, bool) {
	v, has := row[key]
	if !has {
		return nil, false
	}
	f, ok := m.def.Field(key)
	if !ok {
		return fmt.Sprint(v), true
	}
	if key == "id" || f.Kind() == schema.KindMany2One {
		if pair, isPair := v.([]any); isPair && len(pair) == 2 {
			v = pair[0]
		}
		id, ok := ParseID(v)
		return id, ok && !id.IsZero()
	}
	cv, err := coerceScalar(f.(*schema.Scalar), v)
	if err != nil {
		return nil, false
	}
	return scalarKey(cv)
}
