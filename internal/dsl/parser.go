package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	entityRe  = regexp.MustCompile(`^entity\s+([A-Za-z0-9_.]+)\s*:\s*$`)
	fieldRe   = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	relRe     = regexp.MustCompile(`^(many2one|one2many|many2many)\[([A-Za-z0-9_.]*)\]$`)
	indexesRe = regexp.MustCompile(`^\s*indexes\s*:\s*(.*)$`)
)

// parse: options tokenizer: делит "required relation_table='a b' inverse=order_id" на токены,
// не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDSL читает описание моделей в текстовом формате:
//
//	entity Order:
//	  name: char required
//	  lines: one2many[Line.order]
//	  indexes: name
func ParseDSL(r io.Reader) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &Entity{Name: m[1]}
			continue
		}
		if current == nil {
			// всё вне сущности игнорируем
			continue
		}

		if m := indexesRe.FindStringSubmatch(line); m != nil {
			body := m[1]
			if i := strings.IndexByte(body, '#'); i >= 0 {
				body = body[:i]
			}
			current.Indexes = append(current.Indexes, splitList(body)...)
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
		f, err := parseField(m[1], m[2], m[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		current.Fields = append(current.Fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		entities = append(entities, current)
	}
	return entities, nil
}

func parseField(name, rawType, tail string) (Field, error) {
	f := Field{
		Name:    name,
		Type:    strings.ToLower(rawType),
		Options: map[string]string{},
	}

	// --- опции после типа ---
	optsRaw := strings.TrimSpace(tail)
	if i := strings.IndexByte(optsRaw, '#'); i >= 0 {
		optsRaw = strings.TrimSpace(optsRaw[:i])
	}
	if strings.HasPrefix(strings.ToLower(optsRaw), "options:") {
		optsRaw = strings.TrimSpace(optsRaw[len("options:"):])
	}
	optsRaw = strings.ReplaceAll(optsRaw, ",", " ")

	for _, tok := range splitOptionTokens(optsRaw) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		// флаг без значения → "true"
		if !strings.Contains(tok, "=") {
			f.Options[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		v := unquote(strings.TrimSpace(kv[1]))
		switch k {
		case "inverse", "inverse_name":
			f.Inverse = v
		case "relation_table":
			f.RelationTable = v
		case "":
		default:
			f.Options[k] = v
		}
	}

	if strings.Contains(rawType, "[") {
		mm := relRe.FindStringSubmatch(strings.ToLower(rawType[:strings.IndexByte(rawType, '[')]) + rawType[strings.IndexByte(rawType, '['):])
		if mm == nil || mm[2] == "" {
			return Field{}, fmt.Errorf("field %q: bad relational type %q", name, rawType)
		}
		f.Type = mm[1]
		f.Relation = mm[2]
		// one2many[Target.inverse]: последний сегмент: inverse, если он не задан опцией
		if f.Type == "one2many" && f.Inverse == "" {
			if i := strings.LastIndexByte(f.Relation, '.'); i > 0 {
				f.Inverse = f.Relation[i+1:]
				f.Relation = f.Relation[:i]
			}
		}
	}
	return f, nil
}

// LoadEntities читает один файл описаний (.dsl или .yaml/.yml)
func LoadEntities(path string) ([]*Entity, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseYAML(data)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return ParseDSL(file)
	}
}

// LoadAllEntities обходит каталог и собирает все модели; порядок: лексикографический по файлам,
// внутри файла: порядок объявления
func LoadAllEntities(root string) ([]*Entity, error) {
	var result []*Entity
	seen := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".dsl", ".yaml", ".yml":
		default:
			return nil
		}

		ents, err := LoadEntities(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, e := range ents {
			if e == nil || e.Name == "" {
				return fmt.Errorf("empty entity name in %s", path)
			}
			if prev, exists := seen[e.Name]; exists {
				return fmt.Errorf("duplicate entity %q (files: %s, %s)", e.Name, prev, path)
			}
			seen[e.Name] = path
			result = append(result, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
