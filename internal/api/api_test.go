package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
entity Order:
  name: char required
  lines: one2many[Line.order]
  partner: many2one[Partner] index
  indexes: name

entity Line:
  order: many2one[Order]
  qty: int
  product: char

entity Partner:
  name: char required
  ref: char unique
`

const testSeed = `
Partner:
  - {id: 1, name: ACME, ref: P1}
  - {id: 2, name: Globex, ref: P2}
Order:
  - {id: 10, name: first, partner: 1, lines: [100]}
  - {id: 11, name: second, partner: 2}
Line:
  - {id: 100, order: 10, qty: 3, product: tea}
`

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	seedDir := filepath.Join(dir, "seed")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.MkdirAll(seedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "shop.dsl"), []byte(testSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "shop.yaml"), []byte(testSeed), 0o644))

	boot := Bootstrap{SchemaDir: schemaDir, SeedDir: seedDir}
	ms, issues, err := boot.Build()
	require.NoError(t, err)
	require.Empty(t, issues)
	s := NewServer(ms, boot)
	return s, NewRouter(s)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestMeta(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]metaModelListItem](t, w)
	require.Len(t, list, 3)
	assert.Equal(t, metaModelListItem{Model: "Order", Fields: 4, Records: 2}, list[0])

	w = do(t, r, http.MethodGet, "/api/meta/partner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[map[string]any](t, w)
	assert.Equal(t, "Partner", meta["model"])
	var synthetic map[string]any
	for _, f := range meta["fields"].([]any) {
		if fm := f.(map[string]any); fm["name"] == "<-Order.partner" {
			synthetic = fm
		}
	}
	require.NotNil(t, synthetic)
	assert.Equal(t, "one2many", synthetic["kind"])
	assert.Equal(t, "partner", synthetic["inverse"])
	assert.Equal(t, true, synthetic["synthetic"])

	w = do(t, r, http.MethodGet, "/api/meta/Nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/_lint", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"issues": []}`, w.Body.String())
}

func TestListAndGet(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodGet, "/api/Order?_sort=-name", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0]["name"])
	assert.Equal(t, []any{float64(100)}, rows[1]["lines"])

	w = do(t, r, http.MethodGet, "/api/Order?partner=2", nil)
	rows = decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(11), rows[0]["id"])

	w = do(t, r, http.MethodGet, "/api/Order?by=partner&value=1", nil)
	rows = decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0]["name"])

	w = do(t, r, http.MethodGet, "/api/Partner?by=ref&value=P2", nil)
	rows = decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "Globex", rows[0]["name"])

	w = do(t, r, http.MethodGet, "/api/Order?by=nope&value=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrIndexMissing)

	w = do(t, r, http.MethodGet, "/api/Order?q=SEC&_limit=1", nil)
	rows = decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0]["name"])

	w = do(t, r, http.MethodGet, "/api/Order/_count?partner=1", nil)
	assert.JSONEq(t, `{"total": 1}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/Order/10?orm=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orm := decode[map[string]any](t, w)
	assert.Equal(t, []any{[]any{float64(1), float64(100), map[string]any{"qty": float64(3), "product": "tea"}}}, orm["lines"])

	w = do(t, r, http.MethodGet, "/api/Order/10/lines", nil)
	rows = decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "tea", rows[0]["product"])

	w = do(t, r, http.MethodGet, "/api/Order/10/name", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/Order/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodGet, "/api/Nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateUpdateDelete(t *testing.T) {
	s, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/Order", map[string]any{
		"name":    "third",
		"partner": 1,
		"lines":   []any{[]any{0, 0, map[string]any{"qty": 2, "product": "cake"}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "Order_1", created["id"])
	require.Len(t, created["lines"], 1)

	partner := s.Models().Model("Partner").Get(1)
	assert.Len(t, partner.Links("<-Order.partner"), 2)

	w = do(t, r, http.MethodPost, "/api/Order", map[string]any{"partner": 1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrRequired)

	w = do(t, r, http.MethodPost, "/api/Order", map[string]any{"name": "x", "partner": 404})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), ErrRefNotFound)

	w = do(t, r, http.MethodPatch, "/api/Order/Order_1", map[string]any{"name": "renamed", "partner": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "renamed", decode[map[string]any](t, w)["name"])
	assert.Len(t, partner.Links("<-Order.partner"), 1)

	w = do(t, r, http.MethodPatch, "/api/Line/100", map[string]any{"qty": "lots"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrTypeMismatch)

	w = do(t, r, http.MethodDelete, "/api/Partner/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": 1}`, w.Body.String())
	order := s.Models().Model("Order").Get(10)
	assert.True(t, order.Ref("partner").IsZero())

	w = do(t, r, http.MethodDelete, "/api/Partner/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/Line/_bulk", []map[string]any{{"qty": 1}, {"qty": "bad"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, s.Models().Model("Line").Len())

	w = do(t, r, http.MethodPost, "/api/Line/_bulk", []map[string]any{{"qty": 1}, {"qty": 2, "order": 11}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, s.Models().Model("Order").Get(11).Links("lines"), 1)
}

func TestLoadAndReplace(t *testing.T) {
	s, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/_load?serialized=1", map[string]any{
		"Line":  []any{map[string]any{"id": "Line_7", "order": "Order_3"}},
		"Order": []any{map[string]any{"id": "Order_3", "name": "restored"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"Line": ["Line_7"], "Order": ["Order_3"]}`, w.Body.String())
	ms := s.Models()
	assert.Equal(t, []any{"Line_7"}, toValues(ms.Model("Order").Get("Order_3").Links("lines")))

	w = do(t, r, http.MethodPost, "/api/Order", map[string]any{"name": "next"})
	assert.Equal(t, "Order_4", decode[map[string]any](t, w)["id"])

	w = do(t, r, http.MethodPost, "/api/_load", map[string]any{"Nope": []any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	ms.Model("Partner").Get(2).UIState()["pinned"] = true
	w = do(t, r, http.MethodPost, "/api/_replace/ref", map[string]any{
		"Partner": []any{map[string]any{"id": 20, "name": "Globex 2", "ref": "P2"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, ms.Model("Partner").Get(2))
	w = do(t, r, http.MethodGet, "/api/Partner/20", nil)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "Globex 2", got["name"])
	assert.Equal(t, map[string]any{"pinned": true}, got["_ui"])

	w = do(t, r, http.MethodPost, "/api/_replace/%3C-Order.partner", map[string]any{"Partner": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminReload(t *testing.T) {
	s, r := newTestServer(t)
	before := s.Models()

	w := do(t, r, http.MethodPost, "/api/_admin/reload", map[string]any{"schema_dir": filepath.Join(t.TempDir(), "missing")})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Same(t, before, s.Models())

	lintDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lintDir, "x.dsl"), []byte("entity Tag:\n  orders: many2many[Tag]\n"), 0o644))
	w = do(t, r, http.MethodPost, "/api/_admin/reload", map[string]any{"schema_dir": lintDir, "seed_dir": t.TempDir()})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "blocking issues")
	assert.Same(t, before, s.Models())

	w = do(t, r, http.MethodPost, "/api/_admin/reload", map[string]any{"schema_dir": lintDir, "seed_dir": t.TempDir(), "force": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotSame(t, before, s.Models())
	assert.Equal(t, []string{"Tag"}, s.Models().Names())

	w = do(t, r, http.MethodPost, "/api/_admin/reload", nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "lint issues of the kept schema still block")
}

func toValues[T interface{ Value() any }](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id.Value()
	}
	return out
}
