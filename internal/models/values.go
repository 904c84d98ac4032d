package models

import (
	"reflect"
	"strings"

	"relmodels/internal/schema"
)

type stepKind int

const (
	stepSet stepKind = iota
	stepAdd
	stepRemove
	stepClear
	stepDelete
)

// X2ManyOp: типизированная операция над one2many/many2many для Update:
//
//	order.Update(map[string]any{"tag_ids": models.Add(tag)})
type X2ManyOp struct {
	kind    stepKind
	targets []any
}

// Add связывает записи (записи, id или вложенные payload)
func Add(targets ...any) X2ManyOp { return X2ManyOp{kind: stepAdd, targets: targets} }

// Remove отвязывает записи
func Remove(targets ...any) X2ManyOp { return X2ManyOp{kind: stepRemove, targets: targets} }

// Clear отвязывает всё
func Clear() X2ManyOp { return X2ManyOp{kind: stepClear} }

// Replace делает набор связей ровно таким
func Replace(targets ...any) X2ManyOp { return X2ManyOp{kind: stepSet, targets: targets} }

type writeOptions struct {
	create         bool    // Create/LoadData: новый или слияние по id
	target         *Record // Update
	dangling       bool
	fromSerialized bool
}

// draft: проверенный, но ещё не применённый набор изменений одной записи
type draft struct {
	model    *Model
	id       ID
	vals     map[string]any
	existing *Record
	update   bool

	scalars []scalarVal
	ops     []relOp
	extra   map[string]any
	nested  []*draft

	rec *Record
}

type scalarVal struct {
	name  string
	value any
}

type relOp struct {
	field schema.Relational
	steps []step
}

type step struct {
	kind stepKind
	ids  []ID
}

// parser разбирает payload одной операции; pending: записи, которые эта операция создаст
type parser struct {
	ms      *Models
	opts    writeOptions
	pending map[recordKey]*draft
}

func (ms *Models) newParser(opts writeOptions) *parser {
	return &parser{ms: ms, opts: opts, pending: map[recordKey]*draft{}}
}

// parse проверяет и нормализует vals. implied: поле, которое заполнит родитель
// (обратное поле вложенной записи), для него required не проверяется.
func (p *parser) parse(m *Model, vals map[string]any, target *Record, implied string) (*draft, error) {
	d := &draft{model: m, vals: vals, extra: map[string]any{}}

	if target != nil {
		d.existing, d.id, d.update = target, target.id, true
	} else {
		var id ID
		if raw, has := vals["id"]; has {
			pid, ok := ParseID(raw)
			if !ok {
				return nil, mismatch(m.name, "id", "invalid id %v", raw)
			}
			id = pid
		}
		if id.IsZero() {
			id = p.ms.alloc.Next(m.name)
		} else if p.opts.fromSerialized {
			p.ms.alloc.Observe(m.name, id)
		}
		d.id = id
		if r := m.records[id]; r != nil && !r.pendingDelete {
			d.existing = r
		}
		_, planned := p.pending[recordKey{m.name, id}]
		if d.existing == nil && !planned {
			for _, f := range m.def.Fields() {
				name := f.Name()
				if name == "id" || name == implied || !f.Attrs().Required {
					continue
				}
				if _, ok := vals[name]; !ok {
					return nil, &RequiredFieldError{Model: m.name, Field: name}
				}
			}
		}
	}
	p.pending[recordKey{m.name, d.id}] = d

	for _, f := range m.def.Fields() {
		name := f.Name()
		if name == "id" {
			continue
		}
		v, ok := vals[name]
		if !ok {
			continue
		}
		switch x := f.(type) {
		case *schema.Scalar:
			cv, err := coerceScalar(x, v)
			if err != nil {
				return nil, mismatch(m.name, name, "%v", err)
			}
			d.scalars = append(d.scalars, scalarVal{name: name, value: cv})
		case schema.Relational:
			var (
				steps []step
				err   error
			)
			if x.IsMany() {
				steps, err = p.parseMany(d, x, v)
			} else {
				steps, err = p.parseOne(d, x, v)
			}
			if err != nil {
				return nil, err
			}
			d.ops = append(d.ops, relOp{field: x, steps: steps})
		}
	}

	for k, v := range vals {
		if _, isField := m.def.Field(k); isField {
			continue
		}
		if strings.HasPrefix(k, "_") && !strings.HasPrefix(k, "__") {
			d.extra[k] = v
		}
	}
	return d, nil
}

func (p *parser) targetModel(f schema.Relational) *Model { return p.ms.models[f.Relation()] }

// nestedDraft: вложенный payload цели; обратное поле к родителю заполнится связью
func (p *parser) nestedDraft(parent *draft, f schema.Relational, vals map[string]any) (*draft, error) {
	implied := ""
	if inv := f.InverseField(); inv != nil && !inv.IsMany() {
		implied = inv.Name()
	}
	nd, err := p.parse(p.targetModel(f), vals, nil, implied)
	if err != nil {
		return nil, err
	}
	parent.nested = append(parent.nested, nd)
	return nd, nil
}

// ref разбирает одну цель: запись, id или вложенный payload
func (p *parser) ref(parent *draft, f schema.Relational, v any) (ID, error) {
	if vals, ok := v.(map[string]any); ok {
		nd, err := p.nestedDraft(parent, f, vals)
		if err != nil {
			return ID{}, err
		}
		return nd.id, nil
	}
	dangling := p.opts.dangling
	if !dangling {
		if pid, ok := ParseID(v); ok && !pid.IsZero() {
			if _, planned := p.pending[recordKey{f.Relation(), pid}]; planned {
				dangling = true
			}
		}
	}
	return p.ms.targetID(parent.model.name, f, v, dangling)
}

func (p *parser) parseOne(d *draft, f schema.Relational, v any) ([]step, error) {
	// [id, "display name"] от сервера
	if pair, ok := v.([]any); ok {
		switch len(pair) {
		case 0:
			v = nil
		case 2:
			v = pair[0]
		default:
			return nil, mismatch(d.model.name, f.Name(), "unexpected many2one value %v", v)
		}
	}
	id, err := p.ref(d, f, v)
	if err != nil {
		return nil, err
	}
	if id.IsZero() {
		return []step{{kind: stepSet}}, nil
	}
	return []step{{kind: stepSet, ids: []ID{id}}}, nil
}

func (p *parser) parseMany(d *draft, f schema.Relational, v any) ([]step, error) {
	switch x := v.(type) {
	case nil:
		return []step{{kind: stepSet}}, nil
	case bool:
		if !x {
			return []step{{kind: stepSet}}, nil
		}
	case X2ManyOp:
		return p.opSteps(d, f, []X2ManyOp{x})
	case []X2ManyOp:
		return p.opSteps(d, f, x)
	case []*Record:
		return p.refList(d, f, toAny(x))
	case []ID:
		return p.refList(d, f, toAny(x))
	case []int:
		return p.refList(d, f, toAny(x))
	case []int64:
		return p.refList(d, f, toAny(x))
	case []float64:
		return p.refList(d, f, toAny(x))
	case []string:
		return p.refList(d, f, toAny(x))
	case []map[string]any:
		return p.refList(d, f, toAny(x))
	case []any:
		cmds := 0
		for _, el := range x {
			if _, _, ok := parseCommand(el); ok {
				cmds++
			}
		}
		switch {
		case len(x) == 0 || cmds == 0:
			return p.refList(d, f, x)
		case cmds == len(x):
			return p.commands(d, f, x)
		default:
			return nil, mismatch(d.model.name, f.Name(), "mixed commands and ids")
		}
	}
	return nil, mismatch(d.model.name, f.Name(), "unexpected %s value %T", f.Kind(), v)
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func (p *parser) ids(d *draft, f schema.Relational, targets []any) ([]ID, error) {
	out := make([]ID, 0, len(targets))
	for _, t := range targets {
		id, err := p.ref(d, f, t)
		if err != nil {
			return nil, err
		}
		if !id.IsZero() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (p *parser) refList(d *draft, f schema.Relational, targets []any) ([]step, error) {
	ids, err := p.ids(d, f, targets)
	if err != nil {
		return nil, err
	}
	return []step{{kind: stepSet, ids: ids}}, nil
}

func (p *parser) opSteps(d *draft, f schema.Relational, ops []X2ManyOp) ([]step, error) {
	var out []step
	for _, op := range ops {
		if op.kind == stepClear {
			out = append(out, step{kind: stepClear})
			continue
		}
		ids, err := p.ids(d, f, op.targets)
		if err != nil {
			return nil, err
		}
		out = append(out, step{kind: op.kind, ids: ids})
	}
	return out, nil
}

// parseCommand распознаёт серверную команду x2many: [0,0,vals] [1,id,vals] [2,id]
// [3,id] [4,id] [5] [6,0,ids]
func parseCommand(v any) (int, []any, bool) {
	c, ok := v.([]any)
	if !ok || len(c) == 0 {
		return 0, nil, false
	}
	code, err := toIntStrict(c[0])
	if err != nil {
		return 0, nil, false
	}
	switch code {
	case 0, 1:
		if len(c) != 3 {
			return 0, nil, false
		}
		if _, isMap := c[2].(map[string]any); !isMap {
			return 0, nil, false
		}
	case 2, 3, 4:
		if len(c) < 2 || len(c) > 3 {
			return 0, nil, false
		}
	case 5:
		if len(c) > 3 {
			return 0, nil, false
		}
	case 6:
		if len(c) != 3 {
			return 0, nil, false
		}
		if _, isList := c[2].([]any); !isList {
			return 0, nil, false
		}
	default:
		return 0, nil, false
	}
	return int(code), c, true
}

func (p *parser) commands(d *draft, f schema.Relational, list []any) ([]step, error) {
	var out []step
	for _, el := range list {
		code, c, _ := parseCommand(el)
		switch code {
		case 0:
			nd, err := p.nestedDraft(d, f, c[2].(map[string]any))
			if err != nil {
				return nil, err
			}
			out = append(out, step{kind: stepAdd, ids: []ID{nd.id}})
		case 1:
			vals := make(map[string]any, len(c[2].(map[string]any))+1)
			for k, v := range c[2].(map[string]any) {
				vals[k] = v
			}
			vals["id"] = c[1]
			nd, err := p.nestedDraft(d, f, vals)
			if err != nil {
				return nil, err
			}
			out = append(out, step{kind: stepAdd, ids: []ID{nd.id}})
		case 2, 3, 4:
			id, err := p.ref(d, f, c[1])
			if err != nil {
				return nil, err
			}
			kind := map[int]stepKind{2: stepDelete, 3: stepRemove, 4: stepAdd}[code]
			out = append(out, step{kind: kind, ids: []ID{id}})
		case 5:
			out = append(out, step{kind: stepClear})
		case 6:
			ids, err := p.ids(d, f, c[2].([]any))
			if err != nil {
				return nil, err
			}
			out = append(out, step{kind: stepSet, ids: ids})
		}
	}
	return out, nil
}

// apply применяет черновик; вложенные записи: раньше ссылающейся на них
func (ms *Models) apply(d *draft, applied *[]*draft) {
	for _, n := range d.nested {
		ms.apply(n, applied)
	}
	m := d.model
	rec := d.existing
	if rec == nil || rec.deleted {
		rec = m.records[d.id]
	}
	if rec != nil && rec.pendingDelete && !d.update {
		// запись удаляется в этом же цикле и создаётся заново
		ms.finalizeDelete(rec)
		rec = nil
	}
	created := rec == nil
	if created {
		rec = newRecord(m, d.id)
		m.insert(rec)
		ms.resolveDangling(rec)
	}

	for _, s := range d.scalars {
		ms.setScalar(rec, s.name, s.value)
	}
	for _, op := range d.ops {
		ms.applyOp(rec, op)
	}
	for k, v := range d.extra {
		rec.extra[k] = v
	}
	if !d.update {
		rec.raw = d.vals
	}

	if created {
		for _, field := range m.computeOrder {
			ms.computeQ.Add(fieldRef{rec, field})
		}
		m.emit(EventCreate, rec)
	} else {
		m.emit(EventUpdate, rec)
	}
	d.rec = rec
	*applied = append(*applied, d)
}

func (ms *Models) setScalar(rec *Record, name string, v any) {
	old, had := rec.scalars[name]
	if v == nil {
		if !had {
			return
		}
		delete(rec.scalars, name)
	} else {
		if had && reflect.DeepEqual(old, v) {
			return
		}
		rec.scalars[name] = v
	}
	ms.touch(rec, name)
}

func (ms *Models) applyOp(rec *Record, op relOp) {
	f := op.field
	for _, st := range op.steps {
		switch st.kind {
		case stepSet:
			if !f.IsMany() {
				if len(st.ids) == 0 {
					if prev := rec.one[f.Name()]; !prev.IsZero() {
						ms.unlink(rec, f, prev)
					}
				} else {
					ms.link(rec, f, st.ids[0])
				}
				continue
			}
			want := make(map[ID]bool, len(st.ids))
			for _, id := range st.ids {
				want[id] = true
			}
			for _, id := range rec.links(f) {
				if !want[id] {
					ms.unlink(rec, f, id)
				}
			}
			for _, id := range st.ids {
				ms.link(rec, f, id)
			}
		case stepAdd:
			for _, id := range st.ids {
				ms.link(rec, f, id)
			}
		case stepRemove:
			for _, id := range st.ids {
				ms.unlink(rec, f, id)
			}
		case stepClear:
			for _, id := range rec.links(f) {
				ms.unlink(rec, f, id)
			}
		case stepDelete:
			for _, id := range st.ids {
				ms.unlink(rec, f, id)
				if t := ms.live(f.Relation(), id); t != nil {
					t.model.Delete(t)
				}
			}
		}
	}
}

// write: общий путь Create/CreateMany/Update: сначала разбор всех payload, затем применение
func (ms *Models) write(m *Model, list []map[string]any, opts writeOptions) ([]*Record, error) {
	var out []*Record
	err := ms.Batch(func() error {
		p := ms.newParser(opts)
		drafts := make([]*draft, 0, len(list))
		for _, vals := range list {
			d, err := p.parse(m, vals, opts.target, "")
			if err != nil {
				return err
			}
			drafts = append(drafts, d)
		}
		var applied []*draft
		for _, d := range drafts {
			ms.apply(d, &applied)
		}
		ms.runSetups(applied)
		for _, d := range drafts {
			out = append(out, d.rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// runSetups: пост-инициализация после того, как вся операция применена
func (ms *Models) runSetups(applied []*draft) {
	for _, d := range applied {
		if d.update {
			continue
		}
		for _, fn := range ms.setups[d.model.name] {
			fn(d.rec, d.vals)
		}
	}
}
