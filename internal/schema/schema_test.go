package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relmodels/internal/dsl"
)

func parse(t *testing.T, src string) []*dsl.Entity {
	t.Helper()
	ents, err := dsl.ParseDSL(strings.NewReader(src))
	require.NoError(t, err)
	return ents
}

func requireSchemaError(t *testing.T, err error) *SchemaError {
	t.Helper()
	require.Error(t, err)
	var se *SchemaError
	require.True(t, errors.As(err, &se), "want *SchemaError, got %T: %v", err, err)
	return se
}

func TestResolveOne2ManyPairsDeclaredMany2One(t *testing.T) {
	s, err := Resolve(parse(t, `
entity Order:
  lines: one2many[Line.order]
entity Line:
  order: many2one[Order]
`), nil)
	require.NoError(t, err)

	order, _ := s.Model("Order")
	line, _ := s.Model("Line")
	f, ok := order.Field("lines")
	require.True(t, ok)
	lines := f.(*One2Many)
	g, _ := line.Field("order")
	back := g.(*Many2One)

	assert.Same(t, back, lines.Inverse)
	assert.Same(t, lines, back.Inverse)
	assert.True(t, lines.Nested)
	// парные поля не порождают синтетику
	_, ok = line.Field(SyntheticName("Order", "lines"))
	assert.False(t, ok)
	_, ok = order.Field(SyntheticName("Line", "order"))
	assert.False(t, ok)
}

func TestResolveSynthesizesInverses(t *testing.T) {
	s, err := Resolve(parse(t, `
entity Partner:
  name: char
entity Order:
  partner: many2one[Partner]
  notes: one2many[Note]
entity Note:
  text: char
`), nil)
	require.NoError(t, err)

	partner, _ := s.Model("Partner")
	f, ok := partner.Field("<-Order.partner")
	require.True(t, ok)
	syn := f.(*One2Many)
	assert.True(t, syn.Attrs().Synthetic)
	assert.False(t, syn.Attrs().Backend())
	assert.Equal(t, "Order", syn.Target)
	assert.Equal(t, "partner", syn.Inverse.Name())

	note, _ := s.Model("Note")
	g, ok := note.Field("<-Order.notes")
	require.True(t, ok)
	assert.Equal(t, KindMany2One, g.Kind())

	// каждое реляционное поле имеет обратное, и оно указывает назад
	for _, name := range s.Names() {
		m, _ := s.Model(name)
		for _, r := range m.Relational() {
			inv := r.InverseField()
			require.NotNil(t, inv, "%s.%s", name, r.Name())
			assert.Equal(t, name, inv.Relation())
			assert.Equal(t, r.Name(), inv.InverseField().Name())
		}
	}
}

func TestResolveMany2Many(t *testing.T) {
	s, err := Resolve(parse(t, `
entity Tag:
  posts: many2many[Post] relation_table=post_tag
entity Post:
  tags: many2many[Tag] relation_table=post_tag
`), nil)
	require.NoError(t, err)
	tag, _ := s.Model("Tag")
	post, _ := s.Model("Post")
	a, _ := tag.Field("posts")
	b, _ := post.Field("tags")
	assert.Same(t, b, a.(*Many2Many).Inverse)
	assert.Same(t, a, b.(*Many2Many).Inverse)
}

func TestResolveMany2ManySelfReference(t *testing.T) {
	s, err := Resolve(parse(t, `
entity Cat:
  parents: many2many[Cat] relation_table=cat_rel
  children: many2many[Cat] relation_table=cat_rel
  related: many2many[Cat] relation_table=cat_other
`), nil)
	require.NoError(t, err)
	cat, _ := s.Model("Cat")
	p, _ := cat.Field("parents")
	c, _ := cat.Field("children")
	assert.Same(t, c, p.(*Many2Many).Inverse)
	r, _ := cat.Field("related")
	assert.Equal(t, "<-Cat.related", r.(*Many2Many).Inverse.Name())
}

func TestResolveMany2ManyAmbiguous(t *testing.T) {
	_, err := Resolve(parse(t, `
entity Tag:
  a: many2many[Post]
  b: many2many[Post]
entity Post:
  tags: many2many[Tag]
`), nil)
	se := requireSchemaError(t, err)
	assert.Contains(t, se.Message, "only one inverse")
}

func TestResolveErrors(t *testing.T) {
	cases := map[string]string{
		"unknown target": `
entity A:
  b: many2one[Missing]
`,
		"unknown type": `
entity A:
  x: decimal128
`,
		"duplicate field": `
entity A:
  x: char
  x: int
`,
		"inverse wrong kind": `
entity A:
  bs: one2many[B.name]
entity B:
  name: char
`,
		"synthetic collision": `
entity A:
  b: many2one[B]
entity B:
  <-A.b: char
`,
		"index on unknown field": `
entity A:
  indexes: nope
`,
		"relational id": `
entity A:
  id: many2one[A]
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			ents, perr := dsl.ParseDSL(strings.NewReader(src))
			if perr != nil {
				// имя поля "<-A.b" DSL не пропускает, собираем руками
				ents = []*dsl.Entity{
					{Name: "A", Fields: []dsl.Field{{Name: "b", Type: "many2one", Relation: "B"}}},
					{Name: "B", Fields: []dsl.Field{{Name: "<-A.b", Type: "char"}}},
				}
			}
			_, err := Resolve(ents, nil)
			requireSchemaError(t, err)
		})
	}
}

func TestResolveInverseAlreadyPaired(t *testing.T) {
	_, err := Resolve(parse(t, `
entity A:
  b1: one2many[B.a]
  b2: one2many[B.a]
entity B:
  a: many2one[A]
`), nil)
	se := requireSchemaError(t, err)
	assert.Contains(t, se.Message, "already paired")
}

func TestResolveIsPureAndDeterministic(t *testing.T) {
	ents := parse(t, `
entity Order:
  name: char required
  lines: one2many[Line.order]
  partner: many2one[Partner] index
  tags: many2many[Tag]
  indexes: name
entity Line:
  order: many2one[Order]
  product: many2one[Product]
entity Partner:
  name: char unique
entity Product:
  name: char
entity Tag:
  name: char
`)
	before := make([]*dsl.Entity, len(ents))
	for i, e := range ents {
		before[i] = e.Clone()
	}

	s1, err := Resolve(ents, map[string][]string{"Line": {"product"}})
	require.NoError(t, err)
	s2, err := Resolve(ents, map[string][]string{"Line": {"product"}})
	require.NoError(t, err)

	assert.Equal(t, s1.Describe(), s2.Describe())
	assert.Equal(t, before, ents, "input must not be mutated")

	order, _ := s1.Model("Order")
	var keys []string
	for _, ix := range order.Indexes() {
		keys = append(keys, ix.Field)
	}
	assert.Equal(t, []string{"id", "name", "partner"}, keys)
	idIx, _ := order.Index("id")
	assert.True(t, idIx.Unique)

	partner, _ := s1.Model("Partner")
	nameIx, ok := partner.Index("name")
	require.True(t, ok)
	assert.True(t, nameIx.Unique)

	line, _ := s1.Model("Line")
	_, ok = line.Index("product")
	assert.True(t, ok)
}

func TestResolveExtraIndexUnknownModel(t *testing.T) {
	_, err := Resolve(parse(t, "entity A:\n  x: char\n"), map[string][]string{"B": {"x"}})
	requireSchemaError(t, err)
}

func TestLint(t *testing.T) {
	s, err := Resolve(parse(t, `
entity A:
  total: float compute required
  bs: one2many[B] required
entity B:
  name: char
`), nil)
	require.NoError(t, err)
	codes := map[string]bool{}
	for _, is := range s.Lint() {
		codes[is.Code] = true
	}
	assert.True(t, codes["required_conflicts_compute"])
	assert.True(t, codes["required_x2many"])
}
