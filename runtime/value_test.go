package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyConversions(t *testing.T) {
	assert.Equal(t, KindNone, FromAny(nil).Kind())
	assert.Equal(t, KindBool, FromAny(true).Kind())
	assert.Equal(t, KindInt, FromAny(7).Kind())
	assert.Equal(t, KindFloat, FromAny(1.5).Kind())
	assert.Equal(t, KindString, FromAny("x").Kind())
	assert.Equal(t, KindSeq, FromAny([]int{1, 2}).Kind())
	assert.Equal(t, KindMap, FromAny(map[string]int{"a": 1}).Kind())
	assert.True(t, FromAny(SafeString("<b>")).IsSafe())

	ptr := &struct{ X int }{X: 3}
	v := FromAny(ptr)
	require.Equal(t, KindMap, v.Kind())
	x, ok := v.GetAttr("X")
	require.True(t, ok)
	i, _ := x.AsInt()
	assert.Equal(t, int64(3), i)
}

func TestFromAnyStructTags(t *testing.T) {
	type user struct {
		Name   string `json:"name"`
		Secret string `json:"-"`
		Plain  int
	}
	v := FromAny(user{Name: "ada", Secret: "s", Plain: 9})
	require.Equal(t, KindMap, v.Kind())
	assert.Equal(t, []string{"name", "Plain"}, v.MapKeys())
	_, ok := v.GetAttr("Secret")
	assert.False(t, ok)
}

func TestValueStringForms(t *testing.T) {
	assert.Equal(t, "", Undefined().String())
	assert.Equal(t, "none", None().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "1.0", Float(1).String())
	assert.Equal(t, "2.5", Float(2.5).String())
	assert.Equal(t, `["a", 1]`, Seq([]Value{String("a"), Int(1)}).String())
}

func TestValueTruthiness(t *testing.T) {
	assert.False(t, Undefined().IsTrue())
	assert.False(t, None().IsTrue())
	assert.False(t, Int(0).IsTrue())
	assert.False(t, String("").IsTrue())
	assert.False(t, Seq(nil).IsTrue())
	assert.True(t, Int(-1).IsTrue())
	assert.True(t, String("x").IsTrue())
	assert.True(t, Float(0.1).IsTrue())
}

func TestValueGetItem(t *testing.T) {
	seq := Seq([]Value{Int(1), Int(2), Int(3)})
	v, ok := seq.GetItem(Int(-1))
	require.True(t, ok)
	i, _ := v.AsInt()
	assert.Equal(t, int64(3), i)

	_, ok = seq.GetItem(Int(5))
	assert.False(t, ok)

	s := String("héllo")
	v, ok = s.GetItem(Int(1))
	require.True(t, ok)
	got, _ := v.AsString()
	assert.Equal(t, "é", got)
}

func TestValueLenCountsRunes(t *testing.T) {
	n, ok := String("héllo").Len()
	require.True(t, ok)
	assert.Equal(t, 5, n)
}

func TestMapOrderIsDeterministic(t *testing.T) {
	v := Map(map[string]Value{"b": Int(2), "a": Int(1), "c": Int(3)})
	assert.Equal(t, []string{"a", "b", "c"}, v.MapKeys())
}

func TestArithmeticOps(t *testing.T) {
	v, err := add(Int(1), Int(2))
	require.NoError(t, err)
	assert.Equal(t, "3", v.String())

	v, err = add(String("a"), String("b"))
	require.NoError(t, err)
	assert.Equal(t, "ab", v.String())

	v, err = add(Seq([]Value{Int(1)}), Seq([]Value{Int(2)}))
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", v.String())

	v, err = mul(String("ab"), Int(3))
	require.NoError(t, err)
	assert.Equal(t, "ababab", v.String())

	_, err = add(Int(1), String("x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidOperation))
}

func TestFloorDivAndModFollowFloorSemantics(t *testing.T) {
	v, err := floorDiv(Int(-7), Int(2))
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(-4), i)

	v, err = mod(Int(-7), Int(3))
	require.NoError(t, err)
	i, _ = v.AsInt()
	assert.Equal(t, int64(2), i)
}

func TestValuesEqualCrossKind(t *testing.T) {
	assert.True(t, valuesEqual(Int(1), Float(1)))
	assert.True(t, valuesEqual(String("x"), String("x")))
	assert.False(t, valuesEqual(Int(1), String("1")))
	assert.True(t, valuesEqual(
		Seq([]Value{Int(1), Int(2)}),
		Seq([]Value{Float(1), Int(2)}),
	))
}

func TestContains(t *testing.T) {
	ok, err := contains(String("ell"), String("hello"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = contains(Int(2), Seq([]Value{Int(1), Int(2)}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = contains(String("k"), Map(map[string]Value{"k": Int(1)}))
	require.NoError(t, err)
	assert.True(t, ok)
}
