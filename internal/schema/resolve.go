package schema

import (
	"strings"

	"github.com/golang/glog"

	"relmodels/internal/dsl"
)

// Resolve строит схему по сырым описаниям: классифицирует поля, находит или синтезирует
// обратные поля для каждой связи и собирает индексы. Входные данные не меняются.
// extraIndexes: дополнительные индексы по моделям (из конфигурации).
func Resolve(entities []*dsl.Entity, extraIndexes map[string][]string) (*Schema, error) {
	s := &Schema{models: make(map[string]*Model, len(entities))}
	declared := make(map[string]*dsl.Entity, len(entities))

	// 1) модели и их объявленные поля
	for _, raw := range entities {
		if raw == nil || strings.TrimSpace(raw.Name) == "" {
			return nil, schemaErr("?", "", "empty model name")
		}
		e := raw.Clone()
		if _, dup := s.models[e.Name]; dup {
			return nil, schemaErr(e.Name, "", "model declared twice")
		}
		m := &Model{Name: e.Name, byName: map[string]Field{}}
		s.models[e.Name] = m
		s.order = append(s.order, e.Name)
		declared[e.Name] = e

		if idf, ok := e.Field("id"); ok {
			if _, scalar := ParseScalarType(idf.Type); !scalar {
				return nil, schemaErr(e.Name, "id", "id must be a scalar field, got %q", idf.Type)
			}
		}
		m.add(&Scalar{base: base{name: "id", model: e.Name, attrs: Attrs{Unique: true}}, Type: TypeID})

		for _, df := range e.Fields {
			if df.Name == "id" {
				continue
			}
			if _, dup := m.byName[df.Name]; dup {
				return nil, schemaErr(e.Name, df.Name, "duplicate field")
			}
			f, err := buildField(e.Name, df)
			if err != nil {
				return nil, err
			}
			m.add(f)
		}
	}

	// 2) цели связей должны существовать
	for _, name := range s.order {
		for _, r := range s.models[name].Relational() {
			if _, ok := s.models[r.Relation()]; !ok {
				return nil, schemaErr(name, r.Name(), "unknown target model %q", r.Relation())
			}
		}
	}

	// 3) many2many, затем one2many, затем оставшиеся many2one
	for _, name := range s.order {
		for _, f := range s.models[name].fields {
			if mm, ok := f.(*Many2Many); ok && mm.Inverse == nil {
				if err := s.pairMany2Many(mm); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, name := range s.order {
		for _, f := range s.models[name].fields {
			if om, ok := f.(*One2Many); ok && om.Inverse == nil {
				if err := s.pairOne2Many(om); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, name := range s.order {
		for _, f := range s.models[name].fields {
			if mo, ok := f.(*Many2One); ok && mo.Inverse == nil {
				if err := s.pairMany2One(mo); err != nil {
					return nil, err
				}
			}
		}
	}

	// 4) индексы: id всегда, затем объявленные в DSL, затем из конфигурации, затем флаги unique/index
	for _, name := range s.order {
		m := s.models[name]
		keys := []string{"id"}
		keys = append(keys, declared[name].Indexes...)
		keys = append(keys, extraIndexes[name]...)
		for _, df := range declared[name].Fields {
			if df.Flag("unique") || df.Flag("index") {
				keys = append(keys, df.Name)
			}
		}
		for _, k := range keys {
			if _, seen := m.Index(k); seen {
				continue
			}
			f, ok := m.byName[k]
			if !ok {
				return nil, schemaErr(name, k, "index on unknown field")
			}
			ix := Index{Field: k, Unique: f.Attrs().Unique}
			if r, ok := f.(Relational); ok && r.IsMany() {
				ix.Unique = false
				ix.Many = true
			}
			m.indexes = append(m.indexes, ix)
		}
	}
	for model := range extraIndexes {
		if _, ok := s.models[model]; !ok {
			return nil, schemaErr(model, "", "index for unknown model")
		}
	}

	glog.V(1).Infof("schema: resolved %d models", len(s.order))
	return s, nil
}

func buildField(model string, df dsl.Field) (Field, error) {
	b := base{
		name:  df.Name,
		model: model,
		attrs: Attrs{
			Required: df.Flag("required"),
			Local:    df.Flag("local"),
			Computed: df.Flag("compute"),
			Related:  df.Flag("related"),
			Unique:   df.Flag("unique"),
		},
	}
	switch df.Type {
	case "many2one", "one2many", "many2many":
		if strings.TrimSpace(df.Relation) == "" {
			return nil, schemaErr(model, df.Name, "%s field without relation", df.Type)
		}
	}
	switch df.Type {
	case "many2one":
		return &Many2One{base: b, Target: df.Relation, declInverse: df.Inverse}, nil
	case "one2many":
		nested := true
		if _, set := df.Options["nested"]; set {
			nested = df.Flag("nested")
		}
		return &One2Many{base: b, Target: df.Relation, Nested: nested, declInverse: df.Inverse}, nil
	case "many2many":
		return &Many2Many{base: b, Target: df.Relation, Table: df.RelationTable, Nested: df.Flag("nested"), declInverse: df.Inverse}, nil
	}
	t, ok := ParseScalarType(df.Type)
	if !ok {
		return nil, schemaErr(model, df.Name, "unknown field type %q", df.Type)
	}
	return &Scalar{base: b, Type: t}, nil
}

func (s *Schema) addSynthetic(target *Model, f Field) error {
	if _, exists := target.byName[f.Name()]; exists {
		return schemaErr(target.Name, f.Name(), "synthetic inverse collides with a declared field")
	}
	target.add(f)
	glog.V(2).Infof("schema: synthesized %s.%s (%s)", target.Name, f.Name(), f.Kind())
	return nil
}

// many2manyCandidates: поля модели in, которые могут быть обратными для f
func many2manyCandidates(in *Model, f *Many2Many) []*Many2Many {
	var out []*Many2Many
	for _, g := range in.fields {
		mm, ok := g.(*Many2Many)
		if !ok || mm == f || mm.attrs.Synthetic {
			continue
		}
		if mm.Target != f.model || mm.Table != f.Table {
			continue
		}
		if f.declInverse != "" && mm.name != f.declInverse {
			continue
		}
		if mm.declInverse != "" && mm.declInverse != f.name {
			continue
		}
		out = append(out, mm)
	}
	return out
}

func (s *Schema) pairMany2Many(f *Many2Many) error {
	target := s.models[f.Target]
	candidates := many2manyCandidates(target, f)
	if len(candidates) > 1 {
		return schemaErr(f.model, f.name, "many2many relation must have only one inverse, found %d on %s", len(candidates), f.Target)
	}
	if len(candidates) == 1 {
		inv := candidates[0]
		// неоднозначность с другой стороны: несколько полей источника подходят для inv
		if back := many2manyCandidates(s.models[f.model], inv); len(back) > 1 {
			return schemaErr(inv.model, inv.name, "many2many relation must have only one inverse, found %d on %s", len(back), inv.Target)
		}
		if inv.Inverse != nil {
			return schemaErr(f.model, f.name, "inverse %s.%s is already paired with %s", inv.model, inv.name, inv.Inverse.name)
		}
		f.Inverse, inv.Inverse = inv, f
		return nil
	}
	if f.declInverse != "" {
		if g, ok := target.byName[f.declInverse]; ok {
			return schemaErr(f.model, f.name, "inverse %s.%s is %s, not a matching many2many", f.Target, f.declInverse, g.Kind())
		}
	}
	syn := &Many2Many{
		base:    base{name: SyntheticName(f.model, f.name), model: f.Target, attrs: Attrs{Synthetic: true}},
		Target:  f.model,
		Table:   f.Table,
		Inverse: f,
	}
	if err := s.addSynthetic(target, syn); err != nil {
		return err
	}
	f.Inverse = syn
	return nil
}

func (s *Schema) pairOne2Many(f *One2Many) error {
	target := s.models[f.Target]
	if f.declInverse != "" {
		if g, ok := target.byName[f.declInverse]; ok {
			mo, isM2O := g.(*Many2One)
			if !isM2O || mo.Target != f.model {
				return schemaErr(f.model, f.name, "inverse %s.%s must be a many2one to %s", f.Target, f.declInverse, f.model)
			}
			if mo.Inverse != nil {
				return schemaErr(f.model, f.name, "inverse %s.%s is already paired with %s", mo.model, mo.name, mo.Inverse.name)
			}
			f.Inverse, mo.Inverse = mo, f
			return nil
		}
	}
	syn := &Many2One{
		base:    base{name: SyntheticName(f.model, f.name), model: f.Target, attrs: Attrs{Synthetic: true}},
		Target:  f.model,
		Inverse: f,
	}
	if err := s.addSynthetic(target, syn); err != nil {
		return err
	}
	f.Inverse = syn
	return nil
}

func (s *Schema) pairMany2One(f *Many2One) error {
	target := s.models[f.Target]
	syn := &One2Many{
		base:    base{name: SyntheticName(f.model, f.name), model: f.Target, attrs: Attrs{Synthetic: true}},
		Target:  f.model,
		Inverse: f,
	}
	if err := s.addSynthetic(target, syn); err != nil {
		return err
	}
	f.Inverse = syn
	return nil
}
