package runtime

import (
	"strings"
	"unicode"
)

// compatCall emulates a small set of Python convenience methods on strings,
// maps and sequences. It returns ErrNotApplicable when the method does not
// exist for the receiver kind, which callers treat as "no such method".
func compatCall(st *State, receiver Value, method string, args Args) (Value, error) {
	switch receiver.Kind() {
	case KindString:
		return compatStringCall(receiver.s, method, args)
	case KindMap:
		return compatMapCall(receiver, method, args)
	case KindSeq:
		return compatSeqCall(receiver, method, args)
	}
	return Undefined(), ErrNotApplicable
}

func compatStringCall(s, method string, args Args) (Value, error) {
	switch method {
	case "upper":
		return String(strings.ToUpper(s)), nil
	case "lower":
		return String(strings.ToLower(s)), nil
	case "strip":
		if cut, ok := args.Arg(0).AsString(); ok {
			return String(strings.Trim(s, cut)), nil
		}
		return String(strings.TrimSpace(s)), nil
	case "lstrip":
		if cut, ok := args.Arg(0).AsString(); ok {
			return String(strings.TrimLeft(s, cut)), nil
		}
		return String(strings.TrimLeftFunc(s, unicode.IsSpace)), nil
	case "rstrip":
		if cut, ok := args.Arg(0).AsString(); ok {
			return String(strings.TrimRight(s, cut)), nil
		}
		return String(strings.TrimRightFunc(s, unicode.IsSpace)), nil
	case "split":
		var parts []string
		if sep, ok := args.Arg(0).AsString(); ok {
			parts = strings.Split(s, sep)
		} else {
			parts = strings.Fields(s)
		}
		items := make([]Value, len(parts))
		for i, p := range parts {
			items[i] = String(p)
		}
		return Seq(items), nil
	case "startswith":
		prefix, ok := args.Arg(0).AsString()
		if !ok {
			return Undefined(), Errorf(InvalidOperation, "startswith expects a string argument")
		}
		return Bool(strings.HasPrefix(s, prefix)), nil
	case "endswith":
		suffix, ok := args.Arg(0).AsString()
		if !ok {
			return Undefined(), Errorf(InvalidOperation, "endswith expects a string argument")
		}
		return Bool(strings.HasSuffix(s, suffix)), nil
	case "replace":
		old, ok1 := args.Arg(0).AsString()
		new, ok2 := args.Arg(1).AsString()
		if !ok1 || !ok2 {
			return Undefined(), Errorf(InvalidOperation, "replace expects two string arguments")
		}
		n := -1
		if count, ok := args.Arg(2).AsInt(); ok {
			n = int(count)
		}
		return String(strings.Replace(s, old, new, n)), nil
	case "join":
		items, ok := args.Arg(0).Iter()
		if !ok {
			return Undefined(), Errorf(InvalidOperation, "join expects an iterable argument")
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = item.String()
		}
		return String(strings.Join(parts, s)), nil
	case "title":
		return String(titleCase(s)), nil
	case "capitalize":
		return String(capitalize(s)), nil
	case "find":
		sub, ok := args.Arg(0).AsString()
		if !ok {
			return Undefined(), Errorf(InvalidOperation, "find expects a string argument")
		}
		return Int(int64(strings.Index(s, sub))), nil
	case "count":
		sub, ok := args.Arg(0).AsString()
		if !ok {
			return Undefined(), Errorf(InvalidOperation, "count expects a string argument")
		}
		return Int(int64(strings.Count(s, sub))), nil
	}
	return Undefined(), ErrNotApplicable
}

func compatMapCall(m Value, method string, args Args) (Value, error) {
	switch method {
	case "get":
		key := args.Arg(0)
		if v, ok := m.GetItem(key); ok {
			return v, nil
		}
		fallback := args.Arg(1)
		if fallback.IsUndefined() {
			return None(), nil
		}
		return fallback, nil
	case "keys":
		keys := m.MapKeys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = String(k)
		}
		return Seq(items), nil
	case "values":
		keys := m.MapKeys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i], _ = m.GetAttr(k)
		}
		return Seq(items), nil
	case "items":
		keys := m.MapKeys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			v, _ := m.GetAttr(k)
			items[i] = Seq([]Value{String(k), v})
		}
		return Seq(items), nil
	}
	return Undefined(), ErrNotApplicable
}

func compatSeqCall(seq Value, method string, args Args) (Value, error) {
	switch method {
	case "count":
		needle := args.Arg(0)
		items, _ := seq.Iter()
		n := int64(0)
		for _, item := range items {
			if valuesEqual(item, needle) {
				n++
			}
		}
		return Int(n), nil
	case "index":
		needle := args.Arg(0)
		items, _ := seq.Iter()
		for i, item := range items {
			if valuesEqual(item, needle) {
				return Int(int64(i)), nil
			}
		}
		return Undefined(), Errorf(InvalidOperation, "value is not in the sequence")
	}
	return Undefined(), ErrNotApplicable
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	first := string(unicode.ToUpper(runes[0]))
	return first + strings.ToLower(string(runes[1:]))
}
