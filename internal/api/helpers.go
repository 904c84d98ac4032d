package api

import (
	"fmt"
	"strings"

	"relmodels/internal/models"
)

// flatten: запись в JSON-ответе. orm=true, payload для сервера (команды x2many),
// иначе все поля плюс клиентское состояние.
func flatten(m *models.Model, rec *models.Record, orm bool) map[string]any {
	out := m.Serialize(rec, models.SerializeOptions{ORM: orm})
	if orm {
		return out
	}
	if st := rec.SerializeState(); len(st) > 0 {
		// служебные ключи не перетирают поля модели
		if _, clash := out["_ui"]; !clash {
			out["_ui"] = st
		}
	}
	return out
}

func flattenAll(m *models.Model, recs []*models.Record, orm bool) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, flatten(m, r, orm))
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
