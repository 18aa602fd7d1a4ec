package kiln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	out, err := RenderString("Hello {{ name }}!", map[string]any{"name": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Go!", out)
}

func TestEvalExpression(t *testing.T) {
	v, err := EvalExpression("40 + 2", nil)
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)
}

func TestUndeclaredVariables(t *testing.T) {
	vars, err := UndeclaredVariables("{{ a }}{% set b = 1 %}{{ b }}", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, vars)
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestNewIsIndependent(t *testing.T) {
	env := New()
	env.AddGlobal("answer", 42)
	out, err := env.RenderString("{{ answer }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	out, err = RenderString("[{{ answer }}]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
