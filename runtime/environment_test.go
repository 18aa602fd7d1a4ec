package runtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnlang/kiln/lexer"
)

func render(t *testing.T, source string, ctx any) string {
	t.Helper()
	out, err := New().RenderString(source, ctx)
	require.NoError(t, err)
	return out
}

func TestRenderBasics(t *testing.T) {
	assert.Equal(t, "Hello World!", render(t, "Hello {{ name }}!", map[string]any{"name": "World"}))
	assert.Equal(t, "42", render(t, "{{ 40 + 2 }}", nil))
	assert.Equal(t, "3.5", render(t, "{{ 7 / 2 }}", nil))
	assert.Equal(t, "3", render(t, "{{ 7 // 2 }}", nil))
	assert.Equal(t, "8", render(t, "{{ 2 ** 3 }}", nil))
	assert.Equal(t, "ab1", render(t, "{{ 'a' ~ 'b' ~ 1 }}", nil))
	assert.Equal(t, "1.0", render(t, "{{ 1.0 }}", nil))
	assert.Equal(t, "none", render(t, "{{ none }}", nil))
	assert.Equal(t, "", render(t, "{{ missing }}", nil))
}

func TestRenderControlFlow(t *testing.T) {
	assert.Equal(t, "yes", render(t, "{% if x > 1 %}yes{% else %}no{% endif %}", map[string]any{"x": 2}))
	assert.Equal(t, "b", render(t, "{% if x == 1 %}a{% elif x == 2 %}b{% else %}c{% endif %}", map[string]any{"x": 2}))
	assert.Equal(t, "123", render(t, "{% for i in [1, 2, 3] %}{{ i }}{% endfor %}", nil))
	assert.Equal(t, "empty", render(t, "{% for i in [] %}{{ i }}{% else %}empty{% endfor %}", nil))
	assert.Equal(t, "24", render(t, "{% for i in [1, 2, 3, 4] if i % 2 == 0 %}{{ i }}{% endfor %}", nil))
}

func TestRenderLoopVariable(t *testing.T) {
	out := render(t, "{% for c in ['a', 'b', 'c'] %}{{ loop.index }}:{{ c }}{% if not loop.last %},{% endif %}{% endfor %}", nil)
	assert.Equal(t, "1:a,2:b,3:c", out)

	out = render(t, "{% for x in [10, 20] %}{{ loop.revindex }}{{ loop.first }}{% endfor %}", nil)
	assert.Equal(t, "2true1false", out)
}

func TestRenderLoopFilterAffectsLength(t *testing.T) {
	out := render(t, "{% for i in [1, 2, 3, 4] if i != 2 %}{{ loop.length }}{% endfor %}", nil)
	assert.Equal(t, "333", out)
}

func TestRenderUnpacking(t *testing.T) {
	out := render(t, "{% for k, v in [['a', 1], ['b', 2]] %}{{ k }}={{ v }};{% endfor %}", nil)
	assert.Equal(t, "a=1;b=2;", out)
}

func TestRenderSet(t *testing.T) {
	assert.Equal(t, "42", render(t, "{% set x = 42 %}{{ x }}", nil))
	assert.Equal(t, "HELLO", render(t, "{% set x | upper %}hello{% endset %}{{ x }}", nil))
	assert.Equal(t, "a=1", render(t, "{% set a, b = [1, 2] %}a={{ a }}", nil))
}

func TestRenderFilterBlock(t *testing.T) {
	assert.Equal(t, "HELLO WORLD", render(t, "{% filter upper %}hello world{% endfilter %}", nil))
}

func TestRenderMacro(t *testing.T) {
	source := `{% macro greet(name, punct='!') %}Hello {{ name }}{{ punct }}{% endmacro %}{{ greet('World') }} {{ greet('You', punct='?') }}`
	assert.Equal(t, "Hello World! Hello You?", render(t, source, nil))
}

func TestRenderFiltersAndTests(t *testing.T) {
	assert.Equal(t, "HELLO", render(t, "{{ 'hello' | upper }}", nil))
	assert.Equal(t, "3", render(t, "{{ [1, 2, 3] | length }}", nil))
	assert.Equal(t, "fallback", render(t, "{{ missing | default('fallback') }}", nil))
	assert.Equal(t, "a-b", render(t, "{{ ['a', 'b'] | join('-') }}", nil))
	assert.Equal(t, "yes", render(t, "{% if 4 is even %}yes{% endif %}", nil))
	assert.Equal(t, "yes", render(t, "{% if x is not defined %}yes{% endif %}", nil))
	assert.Equal(t, "yes", render(t, "{% if 9 is divisibleby 3 %}yes{% endif %}", nil))
	assert.Equal(t, "[1, 2, 3]", render(t, "{{ [3, 1, 2] | sort }}", nil))
	assert.Equal(t, "6", render(t, "{{ [1, 2, 3] | sum }}", nil))
}

func TestRenderSubscriptAndSlice(t *testing.T) {
	ctx := map[string]any{"items": []any{10, 20, 30, 40}}
	assert.Equal(t, "10", render(t, "{{ items[0] }}", ctx))
	assert.Equal(t, "40", render(t, "{{ items[-1] }}", ctx))
	assert.Equal(t, "[20, 30]", render(t, "{{ items[1:3] }}", ctx))
	assert.Equal(t, "[40, 30, 20, 10]", render(t, "{{ items[::-1] }}", ctx))
	assert.Equal(t, "ell", render(t, "{{ 'hello'[1:4] }}", nil))
}

func TestRenderInheritance(t *testing.T) {
	env := New()
	env.AddTemplate("base.txt", "header {% block body %}base{% endblock %} footer")
	env.AddTemplate("child.txt", "{% extends 'base.txt' %}{% block body %}child{% endblock %}")

	tmpl, err := env.GetTemplate("child.txt")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "header child footer", out)
}

func TestRenderSuperChain(t *testing.T) {
	env := New()
	env.AddTemplate("a", "{% block b %}A{% endblock %}")
	env.AddTemplate("m", "{% extends 'a' %}{% block b %}M({{ super() }}){% endblock %}")
	env.AddTemplate("c", "{% extends 'm' %}{% block b %}C({{ super() }}){% endblock %}")

	tmpl, err := env.GetTemplate("c")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "C(M(A))", out)
}

func TestRenderCircularExtends(t *testing.T) {
	env := New()
	env.AddTemplate("a", "{% extends 'b' %}")
	env.AddTemplate("b", "{% extends 'a' %}")

	tmpl, err := env.GetTemplate("a")
	require.NoError(t, err)
	_, err = tmpl.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestRenderInclude(t *testing.T) {
	env := New()
	env.AddTemplate("partial", "[{{ x }}]")
	env.AddTemplate("page", "before {% include 'partial' %} after")

	tmpl, err := env.GetTemplate("page")
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]any{"x": 7})
	require.NoError(t, err)
	assert.Equal(t, "before [7] after", out)
}

func TestRenderIncludeIgnoreMissing(t *testing.T) {
	env := New()
	env.AddTemplate("page", "a{% include 'nope' ignore missing %}b")

	tmpl, err := env.GetTemplate("page")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", out)

	env.AddTemplate("strict", "{% include 'nope' %}")
	tmpl, err = env.GetTemplate("strict")
	require.NoError(t, err)
	_, err = tmpl.Render(nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, TemplateNotFound))
}

func TestRenderIncludeCandidates(t *testing.T) {
	env := New()
	env.AddTemplate("second", "found")
	env.AddTemplate("page", "{% include ['first', 'second'] %}")

	tmpl, err := env.GetTemplate("page")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "found", out)
}

func TestAutoEscapeByExtension(t *testing.T) {
	env := New()
	env.SetAutoEscapeCallback(DefaultAutoEscape)
	env.AddTemplate("page.html", "{{ payload }}")
	env.AddTemplate("page.txt", "{{ payload }}")

	ctx := map[string]any{"payload": "<b>&'\""}

	tmpl, err := env.GetTemplate("page.html")
	require.NoError(t, err)
	out, err := tmpl.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;&amp;&#x27;&quot;", out)

	tmpl, err = env.GetTemplate("page.txt")
	require.NoError(t, err)
	out, err = tmpl.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<b>&'\"", out)
}

func TestAutoEscapeSafeValues(t *testing.T) {
	env := New()
	env.SetAutoEscapeCallback(func(string) (AutoEscape, error) {
		return AutoEscape{Kind: AutoEscapeHTML}, nil
	})
	out, err := env.RenderString("{{ v }} {{ '<i>' | safe }}", map[string]any{"v": SafeString("<b>")})
	require.NoError(t, err)
	assert.Equal(t, "<b> <i>", out)
}

func TestAutoEscapeJSON(t *testing.T) {
	env := New()
	env.SetAutoEscapeCallback(DefaultAutoEscape)
	env.AddTemplate("out.json", `{"name": {{ name }}}`)

	tmpl, err := env.GetTemplate("out.json")
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]any{"name": `say "hi"`})
	require.NoError(t, err)
	assert.Equal(t, `{"name": "say \"hi\""}`, out)
}

func TestAutoEscapeCallbackFailure(t *testing.T) {
	sink := &CaptureSink{}
	env := New()
	env.SetSink(sink)
	env.SetAutoEscapeCallback(func(string) (AutoEscape, error) {
		return AutoEscape{}, errors.New("boom")
	})

	out, err := env.RenderString("{{ v }}", map[string]any{"v": "<x>"})
	require.NoError(t, err)
	assert.Equal(t, "<x>", out)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, NameString, entries[0].Template)
}

func TestFinalizer(t *testing.T) {
	env := New()
	env.SetFinalizer(func(_ *State, v Value) (Value, error) {
		if v.IsNone() || v.IsUndefined() {
			return String(""), nil
		}
		if i, ok := v.AsInt(); ok && v.Kind() == KindInt {
			return String(fmt.Sprintf("0x%x", i)), nil
		}
		return Undefined(), ErrNotApplicable
	})

	out, err := env.RenderString("{{ 255 }} {{ none }} {{ 'text' }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "0xff  text", out)
}

func TestFinalizerHexEncodesBytes(t *testing.T) {
	env := New()
	env.SetPlainFinalizer(func(v Value) (Value, error) {
		if v.Kind() == KindBytes {
			return String(fmt.Sprintf("%x", []byte(v.String()))), nil
		}
		return Undefined(), ErrNotApplicable
	})

	out, err := env.RenderString("{{ blob }} {{ 'plain' }}", map[string]any{"blob": []byte{0xde, 0xad}})
	require.NoError(t, err)
	assert.Equal(t, "dead plain", out)
}

func TestFinalizerError(t *testing.T) {
	env := New()
	env.SetPlainFinalizer(func(Value) (Value, error) {
		return Undefined(), errors.New("refused")
	})
	_, err := env.RenderString("{{ 1 }}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestUndefinedBehaviors(t *testing.T) {
	env := New()
	out, err := env.RenderString("[{{ missing }}]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	_, err = env.RenderString("{{ missing.attr }}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, UndefinedError))

	env.SetUndefinedBehavior(UndefinedChainable)
	out, err = env.RenderString("[{{ missing.deeply.nested }}]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	env.SetUndefinedBehavior(UndefinedStrict)
	_, err = env.RenderString("{{ missing }}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, UndefinedError))
	assert.Contains(t, err.Error(), "missing")
}

func TestStrictUndefinedSparesFiltersAndTests(t *testing.T) {
	env := New()
	env.SetUndefinedBehavior(UndefinedStrict)

	out, err := env.RenderString("{{ missing | default('ok') }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	out, err = env.RenderString("{% if missing is not defined %}absent{% endif %}", nil)
	require.NoError(t, err)
	assert.Equal(t, "absent", out)
}

func TestFuelExhaustion(t *testing.T) {
	env := New()
	env.SetFuel(50)
	_, err := env.RenderString("{% for i in range(10000) %}{{ i }}{% endfor %}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, OutOfFuel))

	env.SetFuel(0)
	_, err = env.RenderString("{% for i in range(1000) %}{{ i }}{% endfor %}", nil)
	require.NoError(t, err)
}

func TestCompatMode(t *testing.T) {
	env := New()
	_, err := env.RenderString("{{ 'hi'.upper() }}", nil)
	require.Error(t, err)

	env.SetCompatMode(true)
	out, err := env.RenderString("{{ 'hi'.upper() }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	out, err = env.RenderString("{{ d.get('x', 9) }} {{ d.items() }}", map[string]any{"d": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, `9 [["a", 1]]`, out)

	out, err = env.RenderString("{{ [1, 2, 2].count(2) }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestCustomDelimiters(t *testing.T) {
	env := New()
	syntax := lexer.DefaultSyntax()
	syntax.VariableStart = "${"
	syntax.VariableEnd = "}"
	syntax.BlockStart = "<%"
	syntax.BlockEnd = "%>"
	require.NoError(t, env.SetSyntax(syntax))

	out, err := env.RenderString("<% if true %>${ 40 + 2 }<% endif %>", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestBareBraceDelimiters(t *testing.T) {
	env := New()
	syntax := lexer.DefaultSyntax()
	syntax.BlockStart = "<%"
	syntax.BlockEnd = "%>"
	syntax.VariableStart = "{"
	syntax.VariableEnd = "}"
	syntax.CommentStart = "<!--"
	syntax.CommentEnd = "-->"
	require.NoError(t, env.SetSyntax(syntax))

	out, err := env.RenderString("<% if true %>{value}<% endif %><!-- x -->", map[string]any{"value": 42})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestSetSyntaxRejectsInvalid(t *testing.T) {
	env := New()
	bad := lexer.DefaultSyntax()
	bad.VariableStart = ""
	require.Error(t, env.SetSyntax(bad))

	// The previous configuration stays usable.
	out, err := env.RenderString("{{ 1 }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

func TestCustomFiltersTestsFunctions(t *testing.T) {
	env := New()
	env.AddPlainFilter("shout", func(v Value, _ Args) (Value, error) {
		return String(strings.ToUpper(v.String()) + "!"), nil
	})
	env.AddPlainTest("big", func(v Value, _ Args) (bool, error) {
		i, _ := v.AsInt()
		return i > 100, nil
	})
	env.AddPlainFunction("double", func(args Args) (Value, error) {
		i, _ := args.Arg(0).AsInt()
		return Int(i * 2), nil
	})
	env.AddGlobal("answer", 42)

	out, err := env.RenderString("{{ 'hey' | shout }} {{ 500 is big }} {{ double(21) }} {{ answer }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "HEY! true 42 42", out)
}

func TestStateAwareCallbacks(t *testing.T) {
	env := New()
	env.AddFilter("whereami", func(st *State, _ Value, _ Args) (Value, error) {
		return String(st.Name() + "/" + st.CurrentCall()), nil
	})
	out, err := env.RenderNamedString("here.txt", "{{ '' | whereami }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "here.txt/whereami", out)
}

func TestCacheLoadsOnce(t *testing.T) {
	var loads int
	env := New()
	env.SetLoader(func(name string) (string, error) {
		loads++
		return "v" + name, nil
	})

	for i := 0; i < 3; i++ {
		tmpl, err := env.GetTemplate("a")
		require.NoError(t, err)
		out, err := tmpl.Render(nil)
		require.NoError(t, err)
		assert.Equal(t, "va", out)
	}
	assert.Equal(t, 1, loads)

	env.Reload()
	_, err := env.GetTemplate("a")
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestSetLoaderClearsCache(t *testing.T) {
	env := New()
	env.SetLoader(func(string) (string, error) { return "one", nil })
	tmpl, err := env.GetTemplate("t")
	require.NoError(t, err)
	out, _ := tmpl.Render(nil)
	assert.Equal(t, "one", out)

	env.SetLoader(func(string) (string, error) { return "two", nil })
	tmpl, err = env.GetTemplate("t")
	require.NoError(t, err)
	out, _ = tmpl.Render(nil)
	assert.Equal(t, "two", out)
}

func TestAddTemplateSurvivesReload(t *testing.T) {
	env := New()
	env.AddTemplate("pinned", "pinned body")
	env.Reload()

	tmpl, err := env.GetTemplate("pinned")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "pinned body", out)

	env.RemoveTemplate("pinned")
	_, err = env.GetTemplate("pinned")
	require.Error(t, err)
	assert.True(t, IsKind(err, TemplateNotFound))
}

func TestReloadBeforeRender(t *testing.T) {
	source := "first"
	env := New()
	env.SetLoader(func(string) (string, error) { return source, nil })
	env.SetReloadBeforeRender(true)

	tmpl, err := env.GetTemplate("t")
	require.NoError(t, err)
	out, _ := tmpl.Render(nil)
	assert.Equal(t, "first", out)

	source = "second"
	tmpl, err = env.GetTemplate("t")
	require.NoError(t, err)
	out, _ = tmpl.Render(nil)
	assert.Equal(t, "second", out)
}

func TestFilesystemLoader(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/tpl/hello.txt", []byte("hello {{ name }}"), 0o644))

	env := New()
	env.SetLoader(FilesystemLoader(fsys, "/tpl"))

	tmpl, err := env.GetTemplate("hello.txt")
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]any{"name": "fs"})
	require.NoError(t, err)
	assert.Equal(t, "hello fs", out)

	_, err = env.GetTemplate("../outside")
	require.Error(t, err)
	assert.True(t, IsKind(err, TemplateNotFound))
}

func TestFilesystemLoaderRejectsTraversal(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/secret.txt", []byte("classified"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/tpl/secret.txt", []byte("public"), 0o644))

	env := New()
	env.SetLoader(FilesystemLoader(fsys, "/tpl"))

	// Even though /secret.txt exists, a ".." name never reaches it.
	for _, name := range []string{"../secret.txt", "a/../../secret.txt", ".."} {
		_, err := env.GetTemplate(name)
		require.Error(t, err, "name %q", name)
		assert.True(t, IsKind(err, TemplateNotFound), "name %q", name)
	}

	tmpl, err := env.GetTemplate("secret.txt")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "public", out)
}

func TestTemplateNotFoundKind(t *testing.T) {
	env := New()
	_, err := env.GetTemplate("ghost")
	require.Error(t, err)
	assert.True(t, IsKind(err, TemplateNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEvalExpression(t *testing.T) {
	env := New()
	v, err := env.EvalExpression("1 + 2 * 3", nil)
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(7), i)

	v, err = env.EvalExpression("user.name | upper", map[string]any{
		"user": map[string]any{"name": "ada"},
	})
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "ADA", s)
}

func TestUndeclaredVariables(t *testing.T) {
	env := New()
	vars, err := env.UndeclaredVariables("{% set a = 1 %}{{ a }}{{ b }}{{ c.d }}", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, vars)

	vars, err = env.UndeclaredVariables("{{ b }}{{ c.d }}", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c.d"}, vars)
}

func TestErrorReporting(t *testing.T) {
	env := New()
	_, err := env.RenderNamedString("bad.txt", "line one\n{{ 1 + }}", nil)
	require.Error(t, err)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, SyntaxError, derr.Kind)
	assert.Equal(t, "bad.txt", derr.Name)
	assert.Equal(t, 2, derr.Line())
	assert.Contains(t, derr.FullDescription(), ">")
	assert.NotContains(t, err.Error(), "line one")
}

func TestErrorExcerptWithoutConfiguration(t *testing.T) {
	env := New()
	_, err := env.EvalExpression("1 +", nil)
	require.Error(t, err)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Contains(t, derr.FullDescription(), "1 +")
	assert.Contains(t, derr.FullDescription(), "^")
	assert.NotContains(t, err.Error(), "^")
}

func TestInvalidOperationErrors(t *testing.T) {
	env := New()
	_, err := env.RenderString("{{ 1 + 'x' }}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidOperation))

	_, err = env.RenderString("{{ 1 / 0 }}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidOperation))

	_, err = env.RenderString("{{ [] < 'x' }}", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidOperation))
}

func TestRenderContextMustBeMap(t *testing.T) {
	env := New()
	_, err := env.RenderString("x", 42)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidOperation))
}

func TestConcurrentRendersStayConsistent(t *testing.T) {
	env := New()
	env.AddTemplate("t", "{{ v }}")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	configDone := make(chan struct{})

	// Reconfigure continuously while renders run. Every render must see a
	// consistent configuration snapshot and never fail.
	go func() {
		defer close(configDone)
		mode := UndefinedLenient
		for {
			select {
			case <-stop:
				return
			default:
			}
			env.SetUndefinedBehavior(mode)
			env.SetFuel(10000)
			env.SetFuel(0)
			if mode == UndefinedLenient {
				mode = UndefinedChainable
			} else {
				mode = UndefinedLenient
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tmpl, err := env.GetTemplate("t")
				if err != nil {
					t.Error(err)
					return
				}
				out, err := tmpl.Render(map[string]any{"v": j})
				if err != nil {
					t.Error(err)
					return
				}
				if out != fmt.Sprint(j) {
					t.Errorf("got %q, want %d", out, j)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	<-configDone
}

func TestConcurrentDelimiterSwapNeverMixes(t *testing.T) {
	env := New()
	custom := lexer.DefaultSyntax()
	custom.VariableStart = "${"
	custom.VariableEnd = "}"

	stop := make(chan struct{})
	configDone := make(chan struct{})
	go func() {
		defer close(configDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := env.SetSyntax(custom); err != nil {
				t.Error(err)
				return
			}
			if err := env.SetSyntax(lexer.DefaultSyntax()); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	// Under the default syntax this renders "42"; under the custom syntax
	// the whole source is literal text. Any other output means one render
	// mixed the two configurations.
	source := "{{ 40 + 2 }}"
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				out, err := env.RenderString(source, nil)
				if err != nil {
					t.Error(err)
					return
				}
				if out != "42" && out != source {
					t.Errorf("mixed-config render: %q", out)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-configDone
}
