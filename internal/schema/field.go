package schema

import "fmt"

// Kind: вид поля
type Kind int

const (
	KindScalar Kind = iota
	KindMany2One
	KindOne2Many
	KindMany2Many
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMany2One:
		return "many2one"
	case KindOne2Many:
		return "one2many"
	case KindMany2Many:
		return "many2many"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ScalarType: нормализованный тип скалярного поля
type ScalarType string

const (
	TypeChar     ScalarType = "char"
	TypeInt      ScalarType = "int"
	TypeFloat    ScalarType = "float"
	TypeBool     ScalarType = "bool"
	TypeDate     ScalarType = "date"
	TypeDateTime ScalarType = "datetime"
	TypeJSON     ScalarType = "json"
	TypeID       ScalarType = "id"
)

// backend-имена типов → наши
var scalarAliases = map[string]ScalarType{
	"char":       TypeChar,
	"text":       TypeChar,
	"html":       TypeChar,
	"selection":  TypeChar,
	"string":     TypeChar,
	"int":        TypeInt,
	"integer":    TypeInt,
	"float":      TypeFloat,
	"monetary":   TypeFloat,
	"bool":       TypeBool,
	"boolean":    TypeBool,
	"date":       TypeDate,
	"datetime":   TypeDateTime,
	"json":       TypeJSON,
	"binary":     TypeJSON,
	"properties": TypeJSON,
	"id":         TypeID,
}

// ParseScalarType возвращает тип по backend-имени
func ParseScalarType(s string) (ScalarType, bool) {
	t, ok := scalarAliases[s]
	return t, ok
}

// Attrs: флаги, общие для всех видов полей
type Attrs struct {
	Required  bool
	Local     bool // живёт только на клиенте
	Computed  bool
	Related   bool
	Unique    bool
	Synthetic bool // обратное поле, созданное резолвером
}

// Backend: уходит ли поле на сервер при сериализации
func (a Attrs) Backend() bool {
	return !a.Local && !a.Computed && !a.Related && !a.Synthetic
}

// Field: закрытый набор вариантов: *Scalar, *Many2One, *One2Many, *Many2Many
type Field interface {
	Name() string
	Model() string
	Kind() Kind
	Attrs() Attrs
	sealed()
}

// Relational: общее для реляционных полей
type Relational interface {
	Field
	Relation() string
	InverseField() Relational
	IsMany() bool
}

type base struct {
	name  string
	model string
	attrs Attrs
}

func (b *base) Name() string  { return b.name }
func (b *base) Model() string { return b.model }
func (b *base) Attrs() Attrs  { return b.attrs }
func (b *base) sealed()       {}

type Scalar struct {
	base
	Type ScalarType
}

func (*Scalar) Kind() Kind { return KindScalar }

type Many2One struct {
	base
	Target  string
	Inverse *One2Many

	declInverse string
}

func (*Many2One) Kind() Kind                 { return KindMany2One }
func (f *Many2One) Relation() string         { return f.Target }
func (f *Many2One) InverseField() Relational { return f.Inverse }
func (*Many2One) IsMany() bool               { return false }

type One2Many struct {
	base
	Target  string
	Inverse *Many2One
	// Nested: при ORM-сериализации персистентные дочерние записи уходят как [1, id, vals]
	Nested bool

	declInverse string
}

func (*One2Many) Kind() Kind                 { return KindOne2Many }
func (f *One2Many) Relation() string         { return f.Target }
func (f *One2Many) InverseField() Relational { return f.Inverse }
func (*One2Many) IsMany() bool               { return true }

type Many2Many struct {
	base
	Target  string
	Table   string
	Inverse *Many2Many
	Nested  bool

	declInverse string
}

func (*Many2Many) Kind() Kind                 { return KindMany2Many }
func (f *Many2Many) Relation() string         { return f.Target }
func (f *Many2Many) InverseField() Relational { return f.Inverse }
func (*Many2Many) IsMany() bool               { return true }

// SyntheticName: имя обратного поля, созданного для Source.field
func SyntheticName(model, field string) string {
	return "<-" + model + "." + field
}
