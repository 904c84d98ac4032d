package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"relmodels/internal/models"
	"relmodels/internal/schema"
)

// ==== Типы сортировки и параметров листинга ====

type SortKey struct {
	Field string
	Desc  bool
}

type ListParams struct {
	Limit   int
	Offset  int
	Sort    []SortKey
	Filters map[string][]string
	Q       string
	Nulls   string // "last" (default) | "first"
	ORM     bool
}

// служебные параметры, не являющиеся фильтрами
var reservedParams = map[string]bool{
	"q": true, "offset": true, "limit": true, "sort": true, "order": true,
	"_offset": true, "_limit": true, "_sort": true, "_order": true,
	"nulls": true, "orm": true, "by": true, "value": true,
}

// ==== Парсинг query-параметров ====

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseListParams(q url.Values) ListParams {
	limit := 50
	if lv := firstOf(q, "_limit", "limit"); lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n >= 0 && n <= 1000 {
			limit = n
		}
	}

	offset := 0
	if ov := firstOf(q, "_offset", "offset"); ov != "" {
		if n, err := strconv.Atoi(ov); err == nil && n >= 0 {
			offset = n
		}
	}

	var sortKeys []SortKey
	if sv := firstOf(q, "_sort", "sort"); sv != "" {
		for _, p := range strings.Split(sv, ",") {
			p = strings.TrimSpace(p)
			desc := strings.HasPrefix(p, "-")
			p = strings.TrimLeft(p, "+-")
			if p != "" {
				sortKeys = append(sortKeys, SortKey{Field: p, Desc: desc})
			}
		}
	}

	nulls := strings.ToLower(strings.TrimSpace(q.Get("nulls")))
	if nulls != "first" && nulls != "last" {
		nulls = "last"
	}

	filters := make(map[string][]string)
	for key, vals := range q {
		if reservedParams[key] {
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				clean = append(clean, v)
			}
		}
		if len(clean) > 0 {
			filters[key] = clean
		}
	}

	orm, _ := strconv.ParseBool(q.Get("orm"))
	return ListParams{
		Limit:   limit,
		Offset:  offset,
		Sort:    sortKeys,
		Filters: filters,
		Q:       q.Get("q"),
		Nulls:   nulls,
		ORM:     orm,
	}
}

// ==== Фильтрация ====

// fieldStrings: строковые представления значения поля (для x2many, по одному на id)
func fieldStrings(rec *models.Record, field string) []string {
	switch v := rec.Get(field).(type) {
	case nil:
		return nil
	case models.ID:
		if v.IsZero() {
			return nil
		}
		return []string{v.String()}
	case []models.ID:
		out := make([]string, len(v))
		for i, id := range v {
			out[i] = id.String()
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

// filterRecords: равенство по каждому известному полю (любое из значений),
// q: подстрока в любом char-поле без учёта регистра
func filterRecords(all []*models.Record, def *schema.Model, lp ListParams) []*models.Record {
	q := strings.ToLower(strings.TrimSpace(lp.Q))
	out := make([]*models.Record, 0, len(all))
next:
	for _, rec := range all {
		for field, want := range lp.Filters {
			if _, ok := def.Field(field); !ok {
				continue
			}
			if !anyMatch(fieldStrings(rec, field), want) {
				continue next
			}
		}
		if q != "" && !matchesQ(rec, def, q) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func anyMatch(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func matchesQ(rec *models.Record, def *schema.Model, q string) bool {
	for _, f := range def.Fields() {
		sc, ok := f.(*schema.Scalar)
		if !ok || sc.Type != schema.TypeChar {
			continue
		}
		if s, ok := rec.Get(f.Name()).(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// ==== Сортировка с политикой nulls ====

func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case models.ID:
		return t.IsZero()
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// сравнение двух записей по одному ключу с учётом nullsPolicy и направления
func cmpByKey(a, b *models.Record, key string, nullsPolicy string, desc bool) int {
	va, vb := a.Get(key), b.Get(key)
	na, nb := isNull(va), isNull(vb)

	if na && nb {
		return 0
	}
	if na != nb {
		if nullsPolicy == "last" {
			if na {
				return +1
			}
			return -1
		}
		if na {
			return -1
		}
		return +1
	}

	rel := 0
	fa, okA := asNumber(va)
	fb, okB := asNumber(vb)
	if okA && okB {
		switch {
		case fa < fb:
			rel = -1
		case fa > fb:
			rel = +1
		}
	} else {
		rel = strings.Compare(stringify(va), stringify(vb))
	}
	if desc {
		rel = -rel
	}
	return rel
}

// мультисортировка с учётом nullsPolicy
func sortRecordsMultiNulls(records []*models.Record, keys []SortKey, nullsPolicy string) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			if c := cmpByKey(records[i], records[j], k.Field, nullsPolicy, k.Desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func paginate(recs []*models.Record, lp ListParams) []*models.Record {
	start := lp.Offset
	if start > len(recs) {
		start = len(recs)
	}
	end := start + lp.Limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[start:end]
}
