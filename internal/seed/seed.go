package seed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset: файл с записями одной модели:
//
//	model: Partner
//	records:
//	  - {id: 1, name: ACME}
type Dataset struct {
	Model   string           `yaml:"model"`
	Records []map[string]any `yaml:"records"`
}

// LoadDir читает начальные данные из dir (*.yaml, *.yml, *.json) в формате
// rawDataByType: модель -> записи. Поддерживаемые формы файла:
//   - Dataset (model + records);
//   - список записей: модель: имя файла без расширения;
//   - словарь модель -> список записей.
//
// Записи одной модели из разных файлов склеиваются в порядке имён файлов.
func LoadDir(dir string) (map[string][]map[string]any, error) {
	result := make(map[string][]map[string]any)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !isDataFile(file.Name()) {
			continue
		}
		path := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		byModel, err := Parse(data, strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for model, rows := range byModel {
			result[model] = append(result[model], rows...)
		}
	}
	return result, nil
}

func isDataFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Parse разбирает один файл; JSON читается тем же YAML-декодером.
// fallback: имя модели для файла-списка.
func Parse(data []byte, fallback string) (map[string][]map[string]any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return map[string][]map[string]any{}, nil
	}
	doc := root.Content[0]

	switch doc.Kind {
	case yaml.SequenceNode:
		var rows []map[string]any
		if err := doc.Decode(&rows); err != nil {
			return nil, err
		}
		return map[string][]map[string]any{fallback: rows}, nil

	case yaml.MappingNode:
		if hasKey(doc, "records") {
			var ds Dataset
			if err := doc.Decode(&ds); err != nil {
				return nil, err
			}
			name := ds.Model
			if name == "" {
				name = fallback
			}
			return map[string][]map[string]any{name: ds.Records}, nil
		}
		var byModel map[string][]map[string]any
		if err := doc.Decode(&byModel); err != nil {
			return nil, fmt.Errorf("expected model -> records mapping: %w", err)
		}
		return byModel, nil
	}
	return nil, fmt.Errorf("unexpected document kind %v", doc.Kind)
}

func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}
