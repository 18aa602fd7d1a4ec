package runtime

import (
	"encoding/json"
	"strings"
)

// AutoEscapeKind selects the escaping applied to template output.
type AutoEscapeKind int

const (
	AutoEscapeNone AutoEscapeKind = iota
	AutoEscapeHTML
	AutoEscapeJSON
	AutoEscapeCustom
)

// AutoEscape is the escaping decision for one render. Custom escaping
// carries a name the finalizer or a custom formatter can dispatch on.
type AutoEscape struct {
	Kind AutoEscapeKind
	Name string
}

func (a AutoEscape) String() string {
	switch a.Kind {
	case AutoEscapeHTML:
		return "html"
	case AutoEscapeJSON:
		return "json"
	case AutoEscapeCustom:
		return "custom(" + a.Name + ")"
	}
	return "none"
}

// AutoEscapeFunc decides escaping from the template name, once per render.
type AutoEscapeFunc func(name string) (AutoEscape, error)

// DefaultAutoEscape keys the decision on the file extension the way most
// engines do: html/htm/xml escape as HTML, json/json5 as JSON.
func DefaultAutoEscape(name string) (AutoEscape, error) {
	switch {
	case strings.HasSuffix(name, ".html"),
		strings.HasSuffix(name, ".htm"),
		strings.HasSuffix(name, ".xml"):
		return AutoEscape{Kind: AutoEscapeHTML}, nil
	case strings.HasSuffix(name, ".json"),
		strings.HasSuffix(name, ".json5"):
		return AutoEscape{Kind: AutoEscapeJSON}, nil
	}
	return AutoEscape{}, nil
}

// escapeHTML replaces the five HTML-significant characters.
func escapeHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeValue renders a value under the given escaping mode.
func escapeValue(v Value, mode AutoEscape) (string, error) {
	switch mode.Kind {
	case AutoEscapeHTML:
		if v.IsSafe() {
			return v.s, nil
		}
		return escapeHTML(v.String()), nil
	case AutoEscapeJSON:
		if v.IsSafe() {
			return v.s, nil
		}
		out, err := json.Marshal(valueToAny(v))
		if err != nil {
			return "", Errorf(RuntimeError, "cannot serialize value to json: %v", err)
		}
		return string(out), nil
	default:
		return v.String(), nil
	}
}

// valueToAny lowers a value into plain Go data for serialization.
func valueToAny(v Value) any {
	switch v.kind {
	case KindUndefined, KindNone:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return string(v.bs)
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = valueToAny(item)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m.keys))
		for _, k := range v.m.keys {
			item, _ := v.m.get(k)
			out[k] = valueToAny(item)
		}
		return out
	}
	return v.String()
}
