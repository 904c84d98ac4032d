package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a_partners.yaml", `
model: Partner
records:
  - {id: 1, name: ACME}
  - {id: 2, name: Globex}
`)
	write(t, dir, "Tag.json", `[{"id": 5, "name": "red"}]`)
	write(t, dir, "orders.yml", `
Order:
  - id: 1
    partner: 1
    lines:
      - [0, 0, {qty: 2}]
Partner:
  - {id: 3, name: Initech}
`)
	write(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	raw, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, raw, 3)

	require.Len(t, raw["Partner"], 3)
	assert.Equal(t, "ACME", raw["Partner"][0]["name"])
	assert.Equal(t, "Initech", raw["Partner"][2]["name"])
	assert.Equal(t, 5, raw["Tag"][0]["id"])

	order := raw["Order"][0]
	assert.Equal(t, 1, order["partner"])
	cmd := order["lines"].([]any)[0].([]any)
	assert.Equal(t, 0, cmd[0])
	assert.Equal(t, map[string]any{"qty": 2}, cmd[2])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("Order: 5"), "x")
	require.Error(t, err)
	_, err = Parse([]byte("just text"), "x")
	require.Error(t, err)

	out, err := Parse([]byte(""), "x")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	dir := t.TempDir()
	write(t, dir, "bad.yaml", "- {id: 1\n")
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}
