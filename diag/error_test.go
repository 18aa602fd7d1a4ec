package diag

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorShortForm(t *testing.T) {
	err := Errorf(KindSyntax, "unexpected token").
		WithName("page.html").
		WithSpan(Span{StartLine: 3, StartCol: 4, EndLine: 3, EndCol: 9})

	got := err.Error()
	want := "syntax error: unexpected token (in page.html:3)"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if strings.Contains(got, ">") {
		t.Fatalf("short form must not contain the excerpt marker: %q", got)
	}
}

func TestFullDescriptionExcerpt(t *testing.T) {
	source := "a\nb\n{{ bad }}\nd\ne\nf"
	err := New(KindSyntax, "boom").
		WithName("t.txt").
		WithSource(source).
		WithSpan(Span{StartLine: 3, StartCol: 3, EndLine: 3, EndCol: 6})

	full := err.FullDescription()
	for _, want := range []string{"   3 > {{ bad }}", "   1 | a", "   5 | e", "^", "syntax error: boom"} {
		if !strings.Contains(full, want) {
			t.Errorf("FullDescription missing %q:\n%s", want, full)
		}
	}
	if strings.Contains(full, "f") && strings.Contains(full, "   6 |") {
		t.Errorf("excerpt window should stop two lines after the error:\n%s", full)
	}
}

func TestCaretAlignsWithColumn(t *testing.T) {
	err := New(KindSyntax, "boom").
		WithName("t.txt").
		WithSource("{{ bad }}").
		WithSpan(Span{StartLine: 1, StartCol: 4, EndLine: 1, EndCol: 7})

	full := err.FullDescription()
	// Column 4 is the "b" of "bad"; the caret run sits directly under it.
	if want := "     |    ^^^\n"; !strings.Contains(full, want) {
		t.Errorf("FullDescription missing %q:\n%s", want, full)
	}

	err = New(KindSyntax, "boom").
		WithSource("x").
		WithSpan(Span{StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 2})
	if want := "     | ^\n"; !strings.Contains(err.FullDescription(), want) {
		t.Errorf("caret for column 1 should sit under the first character:\n%s", err.FullDescription())
	}
}

func TestWithSpanKeepsFirst(t *testing.T) {
	err := New(KindRuntime, "x").
		WithSpan(Span{StartLine: 2}).
		WithSpan(Span{StartLine: 9})
	if err.Line() != 2 {
		t.Fatalf("Line() = %d, want 2", err.Line())
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := New(KindTemplateNotFound, "missing")
	wrapped := New(KindRuntime, "outer").WithCause(inner)

	if !IsKind(wrapped, KindRuntime) {
		t.Fatal("expected outer kind to match")
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("identity through errors.Is")
	}
	var target *Error
	if !errors.As(wrapped, &target) || target.Kind != KindRuntime {
		t.Fatal("errors.As should surface the outermost diagnostic")
	}
}
