package dsl

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlField: форма описания поля в YAML
type yamlField struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Relation      string `yaml:"relation"`
	InverseName   string `yaml:"inverse_name"`
	RelationTable string `yaml:"relation_table"`
	Required      bool   `yaml:"required"`
	Local         bool   `yaml:"local"`
	Compute       any    `yaml:"compute"`
	Related       any    `yaml:"related"`
	Unique        bool   `yaml:"unique"`
	Index         bool   `yaml:"index"`
	Nested        *bool  `yaml:"nested"`
}

// ParseYAML читает модели вида
//
//	pos.order:
//	  name: {type: char, required: true}
//	  lines: {type: one2many, relation: pos.order.line, inverse_name: order_id}
//	  _indexes: [name]
//
// Порядок моделей и полей сохраняется (обход yaml.Node, а не map).
func ParseYAML(data []byte) ([]*Entity, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yaml: top level must be a mapping of models, got line %d", doc.Line)
	}

	var out []*Entity
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, body := doc.Content[i], doc.Content[i+1]
		e := &Entity{Name: key.Value}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("yaml: model %q must be a mapping (line %d)", e.Name, body.Line)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			fk, fv := body.Content[j], body.Content[j+1]
			if fk.Value == "_indexes" {
				var idx []string
				if err := fv.Decode(&idx); err != nil {
					return nil, fmt.Errorf("yaml: %s._indexes: %w", e.Name, err)
				}
				e.Indexes = append(e.Indexes, idx...)
				continue
			}
			f, err := decodeYAMLField(fk.Value, fv)
			if err != nil {
				return nil, fmt.Errorf("yaml: %s.%s: %w", e.Name, fk.Value, err)
			}
			e.Fields = append(e.Fields, f)
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeYAMLField(name string, node *yaml.Node) (Field, error) {
	var yf yamlField
	// короткая форма: "name: char"
	if node.Kind == yaml.ScalarNode {
		yf.Type = node.Value
	} else if err := node.Decode(&yf); err != nil {
		return Field{}, err
	}
	if yf.Name != "" && yf.Name != name {
		return Field{}, fmt.Errorf("name %q does not match key", yf.Name)
	}
	if strings.TrimSpace(yf.Type) == "" {
		return Field{}, fmt.Errorf("type is required")
	}

	f := Field{
		Name:          name,
		Type:          strings.ToLower(strings.TrimSpace(yf.Type)),
		Relation:      yf.Relation,
		Inverse:       yf.InverseName,
		RelationTable: yf.RelationTable,
		Options:       map[string]string{},
	}
	setFlag := func(k string, v bool) {
		if v {
			f.Options[k] = "true"
		}
	}
	setFlag("required", yf.Required)
	setFlag("local", yf.Local)
	setFlag("unique", yf.Unique)
	setFlag("index", yf.Index)
	setFlag("compute", truthy(yf.Compute))
	setFlag("related", truthy(yf.Related))
	if yf.Nested != nil {
		f.Options["nested"] = fmt.Sprint(*yf.Nested)
	}
	return f, nil
}

// compute/related в выгрузках бывают и строкой (имя метода/путь), и bool
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && !strings.EqualFold(x, "false")
	default:
		return true
	}
}
