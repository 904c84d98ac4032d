package dsl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderDSL = `
# заказы
entity pos.order:
  name: char required
  lines: one2many[pos.order.line.order_id]
  partner_id: many2one[res.partner] index
  tag_ids: many2many[pos.tag] relation_table='order_tag_rel'
  note: char local   # только на клиенте
  indexes: name, partner_id

entity pos.order.line:
  order_id: many2one[pos.order]
  qty: float
`

func TestParseDSL(t *testing.T) {
	ents, err := ParseDSL(strings.NewReader(orderDSL))
	require.NoError(t, err)
	require.Len(t, ents, 2)

	order := ents[0]
	assert.Equal(t, "pos.order", order.Name)
	assert.Equal(t, []string{"name", "partner_id"}, order.Indexes)
	require.Len(t, order.Fields, 5)

	name, ok := order.Field("name")
	require.True(t, ok)
	assert.Equal(t, "char", name.Type)
	assert.True(t, name.Flag("required"))

	lines, _ := order.Field("lines")
	assert.Equal(t, "one2many", lines.Type)
	assert.Equal(t, "pos.order.line", lines.Relation)
	assert.Equal(t, "order_id", lines.Inverse)

	partner, _ := order.Field("partner_id")
	assert.Equal(t, "many2one", partner.Type)
	assert.Equal(t, "res.partner", partner.Relation)
	assert.True(t, partner.Flag("index"))

	tags, _ := order.Field("tag_ids")
	assert.Equal(t, "many2many", tags.Type)
	assert.Equal(t, "order_tag_rel", tags.RelationTable)

	note, _ := order.Field("note")
	assert.True(t, note.Flag("local"))
	assert.False(t, note.Flag("required"))

	assert.Equal(t, "pos.order.line", ents[1].Name)
}

func TestParseDSLExplicitInverseOption(t *testing.T) {
	ents, err := ParseDSL(strings.NewReader("entity A:\n  bs: one2many[B] inverse=a_id\n"))
	require.NoError(t, err)
	f, _ := ents[0].Field("bs")
	assert.Equal(t, "B", f.Relation)
	assert.Equal(t, "a_id", f.Inverse)
}

func TestParseDSLBadRelation(t *testing.T) {
	_, err := ParseDSL(strings.NewReader("entity A:\n  b: many2one[]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseYAMLKeepsOrder(t *testing.T) {
	src := `
Tag:
  posts: {type: many2many, relation: Post, relation_table: post_tag}
  label: char
Post:
  title: {type: char, required: true}
  tags: {type: many2many, relation: Tag, relation_table: post_tag, nested: false}
  total: {type: float, compute: _compute_total}
  _indexes: [title]
`
	ents, err := ParseYAML([]byte(src))
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "Tag", ents[0].Name)
	assert.Equal(t, "posts", ents[0].Fields[0].Name)
	assert.Equal(t, "label", ents[0].Fields[1].Name)
	assert.Equal(t, "char", ents[0].Fields[1].Type)

	post := ents[1]
	assert.Equal(t, []string{"title"}, post.Indexes)
	title, _ := post.Field("title")
	assert.True(t, title.Flag("required"))
	tags, _ := post.Field("tags")
	assert.Equal(t, "post_tag", tags.RelationTable)
	assert.Equal(t, "false", tags.Options["nested"])
	total, _ := post.Field("total")
	assert.True(t, total.Flag("compute"))
}

func TestParseYAMLNameMismatch(t *testing.T) {
	_, err := ParseYAML([]byte("A:\n  x: {name: y, type: char}\n"))
	require.Error(t, err)
}

func TestLoadAllEntities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dsl"), []byte("entity A:\n  name: char\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.yaml"), []byte("B:\n  a_id: {type: many2one, relation: A}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644))

	ents, err := LoadAllEntities(dir)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "A", ents[0].Name)
	assert.Equal(t, "B", ents[1].Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.dsl"), []byte("entity A:\n  x: int\n"), 0o644))
	_, err = LoadAllEntities(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity")
}

func TestCloneIsDeep(t *testing.T) {
	e := &Entity{Name: "A", Fields: []Field{{Name: "x", Type: "char", Options: map[string]string{"required": "true"}}}}
	c := e.Clone()
	c.Fields[0].Options["required"] = "false"
	c.Fields[0].Name = "y"
	assert.Equal(t, "true", e.Fields[0].Options["required"])
	assert.Equal(t, "x", e.Fields[0].Name)
}
