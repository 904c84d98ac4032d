package models

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkConsistency: каждая связь указывает на живую запись, и у той есть обратная связь
func checkConsistency(t *testing.T, ms *Models) {
	t.Helper()
	for _, name := range ms.Names() {
		m := ms.Model(name)
		for _, rec := range m.ReadAll() {
			require.False(t, rec.IsDeleted(), "%s is listed but deleted", rec)
			for _, f := range m.def.Relational() {
				for _, id := range rec.links(f) {
					target := ms.live(f.Relation(), id)
					require.NotNil(t, target, "%s.%s -> %s(%s) is dangling", rec, f.Name(), f.Relation(), id)
					require.True(t, target.Has(f.InverseField().Name(), rec.ID()),
						"%s.%s -> %s misses inverse %s", rec, f.Name(), target, f.InverseField().Name())
				}
			}
		}
	}
}

func pick(r *rand.Rand, recs []*Record) *Record {
	if len(recs) == 0 {
		return nil
	}
	return recs[r.Intn(len(recs))]
}

func TestRandomMutationsKeepInversesSymmetric(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 2024} {
		r := rand.New(rand.NewSource(seed))
		ms := newShop(t)
		orders, lines, tags := ms.Model("Order"), ms.Model("Line"), ms.Model("Tag")

		for step := 0; step < 300; step++ {
			err := ms.Batch(func() error {
				switch r.Intn(9) {
				case 0:
					_, err := orders.Create(map[string]any{"name": "o"})
					return err
				case 1:
					vals := map[string]any{"qty": r.Intn(5)}
					if o := pick(r, orders.ReadAll()); o != nil {
						vals["order"] = o
					}
					_, err := lines.Create(vals)
					return err
				case 2:
					vals := map[string]any{}
					if o := pick(r, orders.ReadAll()); o != nil && r.Intn(2) == 0 {
						vals["orders"] = []*Record{o}
					}
					_, err := tags.Create(vals)
					return err
				case 3:
					if l := pick(r, lines.ReadAll()); l != nil {
						var target any = false
						if o := pick(r, orders.ReadAll()); o != nil && r.Intn(3) > 0 {
							target = o
						}
						return l.Update(map[string]any{"order": target})
					}
				case 4:
					o, tg := pick(r, orders.ReadAll()), pick(r, tags.ReadAll())
					if o != nil && tg != nil {
						return ms.Link(o, "tags", tg)
					}
				case 5:
					o, tg := pick(r, orders.ReadAll()), pick(r, tags.ReadAll())
					if o != nil && tg != nil {
						return ms.Unlink(tg, "orders", o)
					}
				case 6:
					if o := pick(r, orders.ReadAll()); o != nil {
						o.Delete()
					}
				case 7:
					if l := pick(r, lines.ReadAll()); l != nil {
						l.Delete()
					}
				case 8:
					o, l := pick(r, orders.ReadAll()), pick(r, lines.ReadAll())
					if o != nil && l != nil {
						return o.Update(map[string]any{"lines": Add(l)})
					}
				}
				return nil
			})
			require.NoError(t, err, "seed %d step %d", seed, step)
			checkConsistency(t, ms)
		}
		assert.Equal(t, 0, ms.DanglingCount())
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	src := newShop(t)
	mustCreate(t, src.Model("Partner"), map[string]any{"id": 3, "name": "P"})
	mustCreate(t, src.Model("Tag"), map[string]any{"id": 5, "name": "t"})
	order := mustCreate(t, src.Model("Order"), map[string]any{
		"id":      1,
		"name":    "O",
		"partner": 3,
		"tags":    []any{5},
		"lines": []any{
			map[string]any{"id": 10, "qty": 2, "product": "x"},
			map[string]any{"id": 11, "qty": 3, "product": "y"},
		},
	})

	payload := order.Serialize(SerializeOptions{ORM: true})
	// через JSON, как по сети
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))

	dst := newShop(t)
	got, err := dst.Model("Order").Deserialize(wire)
	require.NoError(t, err)

	assert.Equal(t, order.ID(), got.ID())
	assert.Equal(t, "O", got.Get("name"))
	assert.Equal(t, Persisted(3), got.Ref("partner"))
	assert.Equal(t, []ID{Persisted(5)}, got.Links("tags"))
	assert.Equal(t, []ID{Persisted(10), Persisted(11)}, got.Links("lines"))
	for _, id := range got.Links("lines") {
		want, have := src.Model("Line").Get(id), dst.Model("Line").Get(id)
		require.NotNil(t, have)
		assert.Equal(t, want.Get("qty"), have.Get("qty"))
		assert.Equal(t, want.Get("product"), have.Get("product"))
		assert.Same(t, got, have.One("order"))
	}
	assert.Equal(t, payload, got.Serialize(SerializeOptions{ORM: true}))

	// цели появились позже: обратные стороны проставляются
	mustCreate(t, dst.Model("Partner"), map[string]any{"id": 3, "name": "P"})
	tag := mustCreate(t, dst.Model("Tag"), map[string]any{"id": 5})
	assert.Equal(t, []ID{got.ID()}, tag.Links("orders"))
	assert.Equal(t, []ID{got.ID()}, dst.Model("Partner").Get(3).Links("<-Order.partner"))
}

func TestSerializeBreaksCycles(t *testing.T) {
	ents := `
entity Node:
  name: char
  children: one2many[Node.parent]
  parent: many2one[Node]
`
	ms := newModels(t, ents)
	root := mustCreate(t, ms.Model("Node"), map[string]any{"name": "root"})
	child := mustCreate(t, ms.Model("Node"), map[string]any{"name": "child", "parent": root})
	mustCreate(t, ms.Model("Node"), map[string]any{"name": "leaf", "parent": child})

	out := root.Serialize(SerializeOptions{ORM: true})
	cmds := out["children"].([]any)
	require.Len(t, cmds, 1)
	nested := cmds[0].([]any)[2].(map[string]any)
	assert.Equal(t, "child", nested["name"])
	assert.NotContains(t, nested, "parent")
	leaf := nested["children"].([]any)[0].([]any)[2].(map[string]any)
	assert.Equal(t, "leaf", leaf["name"])
}

func TestIDParsingAndJSON(t *testing.T) {
	cases := []struct {
		in   any
		want ID
		ok   bool
	}{
		{nil, ID{}, true},
		{false, ID{}, true},
		{true, ID{}, false},
		{7, Persisted(7), true},
		{float64(7), Persisted(7), true},
		{7.5, ID{}, false},
		{-1, ID{}, false},
		{json.Number("12"), Persisted(12), true},
		{"Order_1", Local("Order_1"), true},
		{[]int{1}, ID{}, false},
	}
	for _, c := range cases {
		got, ok := ParseID(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}

	b, err := json.Marshal([]ID{Persisted(3), Local("x_1"), {}})
	require.NoError(t, err)
	assert.JSONEq(t, `[3, "x_1", false]`, string(b))

	var back []ID
	require.NoError(t, json.Unmarshal([]byte(`[3, "x_1", false, null]`), &back))
	assert.Equal(t, []ID{Persisted(3), Local("x_1"), {}, {}}, back)
	assert.Error(t, json.Unmarshal([]byte(`[-3]`), &back))
}

func TestAllocators(t *testing.T) {
	c := NewCounterAllocator()
	assert.Equal(t, Local("Order_1"), c.Next("Order"))
	assert.Equal(t, Local("Line_1"), c.Next("Line"))
	c.Observe("Order", Local("Order_41"))
	c.Observe("Order", Local("Line_99"))
	c.Observe("Order", Persisted(500))
	assert.Equal(t, Local("Order_42"), c.Next("Order"))
	assert.Equal(t, Local("Line_2"), c.Next("Line"))

	u := NewULIDAllocator()
	a, b := u.Next("Order"), u.Next("Order")
	assert.True(t, strings.HasPrefix(a.String(), "Order_"))
	assert.Len(t, a.String(), len("Order_")+26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a.String(), b.String())

	ms := newShop(t, WithAllocator(u))
	rec := mustCreate(t, ms.Model("Tag"), nil)
	assert.True(t, strings.HasPrefix(rec.ID().String(), "Tag_"))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "unable to get Order record by 'nope'", (&IndexError{Model: "Order", Key: "nope"}).Error())
	ms := newShop(t)
	_, err := ms.Records("Nope")
	var um *UnknownModelError
	require.ErrorAs(t, err, &um)
	rec := mustCreate(t, ms.Model("Order"), nil)
	_, err = ms.OnFieldChange(rec, []string{"nope"}, func() {})
	var uf *UnknownFieldError
	require.ErrorAs(t, err, &uf)
	_, err = ms.GetRelated(rec, "name")
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
}
