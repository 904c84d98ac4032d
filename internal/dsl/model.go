package dsl

import "strings"

// Entity описывает модель (тип записей) из DSL, до резолва инверсий
type Entity struct {
	Name    string
	Fields  []Field
	Indexes []string // поля для вторичных индексов (indexes: a, b)
}

// Field описывает поле модели в "сыром" виде
type Field struct {
	Name          string
	Type          string            // char, int, float, bool, date, datetime, json, many2one, one2many, many2many ...
	Relation      string            // целевая модель для реляционных полей
	Inverse       string            // inverse_name, если объявлен
	RelationTable string            // только для many2many
	Options       map[string]string // required, local, compute, related, unique, index, nested
}

// Flag: опция-флаг без значения ("required") или явное true
func (f Field) Flag(name string) bool {
	if f.Options == nil {
		return false
	}
	v, ok := f.Options[name]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "true", "1", "yes":
		return true
	}
	return false
}

// Field ищет поле по имени
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Clone делает глубокую копию, чтобы резолв схемы никогда не трогал входные данные
func (e *Entity) Clone() *Entity {
	out := &Entity{
		Name:    e.Name,
		Fields:  make([]Field, 0, len(e.Fields)),
		Indexes: append([]string(nil), e.Indexes...),
	}
	for _, f := range e.Fields {
		cp := f
		if f.Options != nil {
			cp.Options = make(map[string]string, len(f.Options))
			for k, v := range f.Options {
				cp.Options[k] = v
			}
		}
		out.Fields = append(out.Fields, cp)
	}
	return out
}
