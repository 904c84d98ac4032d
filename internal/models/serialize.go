package models

import (
	"relmodels/internal/schema"
)

type SerializeOptions struct {
	// ORM: payload для сервера: только backend-поля, x2many в виде команд
	ORM bool
}

// Serialize переводит запись в wire-формат.
//
// Без ORM: все поля; many2one: id или false, x2many, список id.
// С ORM: без local/compute/related/синтетических полей; x2many: команды:
// клиентский id → [0, 0, vals], серверный id во вложенном поле → [1, id, vals],
// иначе [4, id]. Вложенные vals не содержат id и обратного поля к родителю.
func (m *Model) Serialize(rec *Record, opts SerializeOptions) map[string]any {
	return m.root.serialize(rec, opts, "", map[*Record]bool{})
}

func (ms *Models) serialize(rec *Record, opts SerializeOptions, skip string, visiting map[*Record]bool) map[string]any {
	visiting[rec] = true
	defer delete(visiting, rec)

	nested := skip != ""
	out := map[string]any{}
	for _, f := range rec.model.def.Fields() {
		name := f.Name()
		if opts.ORM && !f.Attrs().Backend() {
			continue
		}
		if name == "id" {
			if !(opts.ORM && nested) {
				out["id"] = rec.id.Value()
			}
			continue
		}
		if nested && name == skip {
			continue
		}
		switch x := f.(type) {
		case *schema.Scalar:
			if v, ok := rec.scalars[name]; ok {
				out[name] = v
			} else {
				out[name] = false
			}
		case schema.Relational:
			if !x.IsMany() {
				out[name] = rec.one[name].Value()
				continue
			}
			ids := rec.many[name].list()
			if !opts.ORM {
				list := make([]any, len(ids))
				for i, id := range ids {
					list[i] = id.Value()
				}
				out[name] = list
				continue
			}
			out[name] = ms.commandsFor(x, ids, opts, visiting)
		}
	}
	return out
}

func (ms *Models) commandsFor(f schema.Relational, ids []ID, opts SerializeOptions, visiting map[*Record]bool) []any {
	back := ""
	if inv := f.InverseField(); inv != nil {
		back = inv.Name()
	}
	cmds := make([]any, 0, len(ids))
	for _, id := range ids {
		child := ms.live(f.Relation(), id)
		expand := child != nil && !visiting[child]
		switch {
		case expand && id.IsLocal():
			cmds = append(cmds, []any{0, 0, ms.serialize(child, opts, back, visiting)})
		case expand && isNested(f):
			cmds = append(cmds, []any{1, id.Value(), ms.serialize(child, opts, back, visiting)})
		default:
			cmds = append(cmds, []any{4, id.Value()})
		}
	}
	return cmds
}

func isNested(f schema.Relational) bool {
	switch x := f.(type) {
	case *schema.One2Many:
		return x.Nested
	case *schema.Many2Many:
		return x.Nested
	}
	return false
}

// Deserialize: создание или слияние записи из payload сервера (включая вложенные
// команды и payload). Ссылки на ещё не загруженные записи допускаются.
func (m *Model) Deserialize(payload map[string]any) (*Record, error) {
	recs, err := m.root.write(m, []map[string]any{payload}, writeOptions{create: true, dangling: true, fromSerialized: true})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}
