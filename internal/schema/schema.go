package schema

import "sort"

// Index: вторичный индекс модели
type Index struct {
	Field  string
	Unique bool // ключ → одна запись
	Many   bool // x2many: запись попадает в группу каждого связанного id
}

// Model: разрешённое описание одной модели
type Model struct {
	Name    string
	fields  []Field
	byName  map[string]Field
	indexes []Index
}

// Field возвращает поле по имени
func (m *Model) Field(name string) (Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Fields: все поля в порядке объявления, синтетические в конце
func (m *Model) Fields() []Field {
	return append([]Field(nil), m.fields...)
}

// Relational: только реляционные поля
func (m *Model) Relational() []Relational {
	var out []Relational
	for _, f := range m.fields {
		if r, ok := f.(Relational); ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) Indexes() []Index {
	return append([]Index(nil), m.indexes...)
}

// Index возвращает описание индекса по ключу
func (m *Model) Index(key string) (Index, bool) {
	for _, ix := range m.indexes {
		if ix.Field == key {
			return ix, true
		}
	}
	return Index{}, false
}

func (m *Model) add(f Field) {
	m.fields = append(m.fields, f)
	m.byName[f.Name()] = f
}

// Schema: результат Resolve; после построения не меняется
type Schema struct {
	models map[string]*Model
	order  []string
}

// Model возвращает модель по имени
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.models[name]
	return m, ok
}

// Names: имена моделей в порядке объявления
func (s *Schema) Names() []string {
	return append([]string(nil), s.order...)
}

// FieldSpec: плоское описание поля (для /meta и сравнения схем)
type FieldSpec struct {
	Model     string `json:"model"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Type      string `json:"type,omitempty"`
	Relation  string `json:"relation,omitempty"`
	Inverse   string `json:"inverse,omitempty"`
	Table     string `json:"relation_table,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Local     bool   `json:"local,omitempty"`
	Computed  bool   `json:"compute,omitempty"`
	Related   bool   `json:"related,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"`
	Nested    bool   `json:"nested,omitempty"`
}

// Describe: плоское описание поля
func Describe(f Field) FieldSpec {
	a := f.Attrs()
	fs := FieldSpec{
		Model:     f.Model(),
		Name:      f.Name(),
		Kind:      f.Kind().String(),
		Required:  a.Required,
		Local:     a.Local,
		Computed:  a.Computed,
		Related:   a.Related,
		Unique:    a.Unique,
		Synthetic: a.Synthetic,
	}
	switch x := f.(type) {
	case *Scalar:
		fs.Type = string(x.Type)
	case *Many2One:
		fs.Relation = x.Target
		if x.Inverse != nil {
			fs.Inverse = x.Inverse.Name()
		}
	case *One2Many:
		fs.Relation = x.Target
		fs.Nested = x.Nested
		if x.Inverse != nil {
			fs.Inverse = x.Inverse.Name()
		}
	case *Many2Many:
		fs.Relation = x.Target
		fs.Table = x.Table
		fs.Nested = x.Nested
		if x.Inverse != nil {
			fs.Inverse = x.Inverse.Name()
		}
	}
	return fs
}

// Describe: все поля всех моделей, отсортированные по (модель, поле)
func (s *Schema) Describe() []FieldSpec {
	var out []FieldSpec
	for _, name := range s.order {
		for _, f := range s.models[name].fields {
			out = append(out, Describe(f))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Name < out[j].Name
	})
	return out
}
