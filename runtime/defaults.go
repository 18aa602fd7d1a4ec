package runtime

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// registerBuiltins installs the default filters, tests and functions into
// a fresh registry.
func registerBuiltins(reg *registry) {
	reg.update(func(snap *registrySnapshot) {
		for name, fn := range builtinFilters() {
			snap.filters[name] = fn
		}
		for name, fn := range builtinTests() {
			snap.tests[name] = fn
		}
		for name, fn := range builtinFunctions() {
			snap.globals[name] = Func(name, fn)
		}
	})
}

func plainFilter(fn func(value Value, args Args) (Value, error)) FilterFunc {
	return func(_ *State, value Value, args Args) (Value, error) {
		return fn(value, args)
	}
}

func builtinFilters() map[string]FilterFunc {
	filters := map[string]FilterFunc{
		"escape": filterEscape,
		"e":      filterEscape,
		"upper": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(strings.ToUpper(v.String())), nil
		}),
		"lower": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(strings.ToLower(v.String())), nil
		}),
		"title": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(titleCase(v.String())), nil
		}),
		"capitalize": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(capitalize(v.String())), nil
		}),
		"trim": plainFilter(func(v Value, args Args) (Value, error) {
			if cut, ok := args.Arg(0).AsString(); ok {
				return String(strings.Trim(v.String(), cut)), nil
			}
			return String(strings.TrimSpace(v.String())), nil
		}),
		"replace": plainFilter(func(v Value, args Args) (Value, error) {
			old, ok1 := args.Arg(0).AsString()
			new, ok2 := args.Arg(1).AsString()
			if !ok1 || !ok2 {
				return Undefined(), Errorf(InvalidOperation, "replace expects two string arguments")
			}
			return String(strings.ReplaceAll(v.String(), old, new)), nil
		}),
		"length": filterLength,
		"count":  filterLength,
		"default": plainFilter(func(v Value, args Args) (Value, error) {
			fallback := args.Arg(0)
			if fallback.IsUndefined() {
				fallback = String("")
			}
			if v.IsUndefined() {
				return fallback, nil
			}
			// With a truthy second argument, falsy values fall back too.
			if args.Arg(1).IsTrue() && !v.IsTrue() {
				return fallback, nil
			}
			return v, nil
		}),
		"safe": plainFilter(func(v Value, _ Args) (Value, error) {
			return Safe(v.String()), nil
		}),
		"join": plainFilter(func(v Value, args Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot join value of type %s", v.Kind())
			}
			sep := ""
			if s, ok := args.Arg(0).AsString(); ok {
				sep = s
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = item.String()
			}
			return String(strings.Join(parts, sep)), nil
		}),
		"split": plainFilter(func(v Value, args Args) (Value, error) {
			var parts []string
			if sep, ok := args.Arg(0).AsString(); ok {
				parts = strings.Split(v.String(), sep)
			} else {
				parts = strings.Fields(v.String())
			}
			items := make([]Value, len(parts))
			for i, p := range parts {
				items[i] = String(p)
			}
			return Seq(items), nil
		}),
		"first": plainFilter(func(v Value, _ Args) (Value, error) {
			items, ok := v.Iter()
			if !ok || len(items) == 0 {
				return Undefined(), nil
			}
			return items[0], nil
		}),
		"last": plainFilter(func(v Value, _ Args) (Value, error) {
			items, ok := v.Iter()
			if !ok || len(items) == 0 {
				return Undefined(), nil
			}
			return items[len(items)-1], nil
		}),
		"reverse": plainFilter(func(v Value, _ Args) (Value, error) {
			if s, ok := v.AsString(); ok {
				runes := []rune(s)
				for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
					runes[i], runes[j] = runes[j], runes[i]
				}
				return String(string(runes)), nil
			}
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot reverse value of type %s", v.Kind())
			}
			out := make([]Value, len(items))
			for i, item := range items {
				out[len(items)-1-i] = item
			}
			return Seq(out), nil
		}),
		"sort": plainFilter(func(v Value, args Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot sort value of type %s", v.Kind())
			}
			out := make([]Value, len(items))
			copy(out, items)
			var sortErr error
			sort.SliceStable(out, func(i, j int) bool {
				c, err := compareValues(out[i], out[j])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				return c < 0
			})
			if sortErr != nil {
				return Undefined(), sortErr
			}
			if args.Get("reverse").IsTrue() {
				for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
					out[i], out[j] = out[j], out[i]
				}
			}
			return Seq(out), nil
		}),
		"unique": plainFilter(func(v Value, _ Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot deduplicate value of type %s", v.Kind())
			}
			var out []Value
			for _, item := range items {
				dup := false
				for _, prev := range out {
					if valuesEqual(prev, item) {
						dup = true
						break
					}
				}
				if !dup {
					out = append(out, item)
				}
			}
			return Seq(out), nil
		}),
		"min": plainFilter(func(v Value, _ Args) (Value, error) {
			return seqExtreme(v, -1)
		}),
		"max": plainFilter(func(v Value, _ Args) (Value, error) {
			return seqExtreme(v, 1)
		}),
		"sum": plainFilter(func(v Value, _ Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot sum value of type %s", v.Kind())
			}
			total := Int(0)
			for _, item := range items {
				next, err := add(total, item)
				if err != nil {
					return Undefined(), err
				}
				total = next
			}
			return total, nil
		}),
		"abs": plainFilter(func(v Value, _ Args) (Value, error) {
			switch v.Kind() {
			case KindInt:
				if v.i < 0 {
					return Int(-v.i), nil
				}
				return v, nil
			case KindFloat:
				return Float(math.Abs(v.f)), nil
			}
			return Undefined(), Errorf(InvalidOperation, "cannot take absolute value of %s", v.Kind())
		}),
		"round": plainFilter(func(v Value, args Args) (Value, error) {
			f, ok := v.AsFloat()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot round value of type %s", v.Kind())
			}
			digits := int64(0)
			if d, ok := args.Arg(0).AsInt(); ok {
				digits = d
			}
			scale := math.Pow(10, float64(digits))
			return Float(math.Round(f*scale) / scale), nil
		}),
		"int": plainFilter(func(v Value, _ Args) (Value, error) {
			if i, ok := v.AsInt(); ok {
				return Int(i), nil
			}
			if f, ok := v.AsFloat(); ok {
				return Int(int64(f)), nil
			}
			if s, ok := v.AsString(); ok {
				if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					return Int(i), nil
				}
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					return Int(int64(f)), nil
				}
			}
			return Undefined(), Errorf(InvalidOperation, "cannot convert %s to integer", v.Kind())
		}),
		"float": plainFilter(func(v Value, _ Args) (Value, error) {
			if f, ok := v.AsFloat(); ok {
				return Float(f), nil
			}
			if s, ok := v.AsString(); ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					return Float(f), nil
				}
			}
			return Undefined(), Errorf(InvalidOperation, "cannot convert %s to float", v.Kind())
		}),
		"string": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(v.String()), nil
		}),
		"list": plainFilter(func(v Value, _ Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot convert %s to list", v.Kind())
			}
			out := make([]Value, len(items))
			copy(out, items)
			return Seq(out), nil
		}),
		"items": plainFilter(func(v Value, _ Args) (Value, error) {
			if v.Kind() != KindMap {
				return Undefined(), Errorf(InvalidOperation, "items expects a map, got %s", v.Kind())
			}
			keys := v.MapKeys()
			out := make([]Value, len(keys))
			for i, k := range keys {
				item, _ := v.GetAttr(k)
				out[i] = Seq([]Value{String(k), item})
			}
			return Seq(out), nil
		}),
		"attr": plainFilter(func(v Value, args Args) (Value, error) {
			name, ok := args.Arg(0).AsString()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "attr expects a string argument")
			}
			out, _ := v.GetAttr(name)
			return out, nil
		}),
		"batch": plainFilter(func(v Value, args Args) (Value, error) {
			items, ok := v.Iter()
			if !ok {
				return Undefined(), Errorf(InvalidOperation, "cannot batch value of type %s", v.Kind())
			}
			size, ok := args.Arg(0).AsInt()
			if !ok || size < 1 {
				return Undefined(), Errorf(InvalidOperation, "batch expects a positive batch size")
			}
			fill := args.Arg(1)
			var out []Value
			for start := 0; start < len(items); start += int(size) {
				end := start + int(size)
				if end > len(items) {
					end = len(items)
				}
				chunk := make([]Value, end-start, int(size))
				copy(chunk, items[start:end])
				if !fill.IsUndefined() {
					for int64(len(chunk)) < size {
						chunk = append(chunk, fill)
					}
				}
				out = append(out, Seq(chunk))
			}
			return Seq(out), nil
		}),
		"dictsort": plainFilter(func(v Value, _ Args) (Value, error) {
			if v.Kind() != KindMap {
				return Undefined(), Errorf(InvalidOperation, "dictsort expects a map, got %s", v.Kind())
			}
			keys := append([]string(nil), v.MapKeys()...)
			sort.Strings(keys)
			out := make([]Value, len(keys))
			for i, k := range keys {
				item, _ := v.GetAttr(k)
				out[i] = Seq([]Value{String(k), item})
			}
			return Seq(out), nil
		}),
		"tojson": plainFilter(func(v Value, _ Args) (Value, error) {
			out, err := json.Marshal(valueToAny(v))
			if err != nil {
				return Undefined(), Errorf(RuntimeError, "cannot serialize value to json: %v", err)
			}
			return Safe(string(out)), nil
		}),
		"urlencode": plainFilter(func(v Value, _ Args) (Value, error) {
			return String(url.QueryEscape(v.String())), nil
		}),
	}
	filters["d"] = filters["default"]
	return filters
}

func filterEscape(st *State, v Value, _ Args) (Value, error) {
	if v.IsSafe() {
		return v, nil
	}
	mode := AutoEscape{Kind: AutoEscapeHTML}
	if st != nil && st.AutoEscape().Kind != AutoEscapeNone {
		mode = st.AutoEscape()
	}
	s, err := escapeValue(v, mode)
	if err != nil {
		return Undefined(), err
	}
	return Safe(s), nil
}

func filterLength(_ *State, v Value, _ Args) (Value, error) {
	n, ok := v.Len()
	if !ok {
		return Undefined(), Errorf(InvalidOperation, "value of type %s has no length", v.Kind())
	}
	return Int(int64(n)), nil
}

func seqExtreme(v Value, dir int) (Value, error) {
	items, ok := v.Iter()
	if !ok {
		return Undefined(), Errorf(InvalidOperation, "cannot compare items of %s", v.Kind())
	}
	if len(items) == 0 {
		return Undefined(), nil
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := compareValues(item, best)
		if err != nil {
			return Undefined(), err
		}
		if (dir > 0 && c > 0) || (dir < 0 && c < 0) {
			best = item
		}
	}
	return best, nil
}

func builtinTests() map[string]TestFunc {
	plainTest := func(fn func(v Value, args Args) (bool, error)) TestFunc {
		return func(_ *State, v Value, args Args) (bool, error) {
			return fn(v, args)
		}
	}
	tests := map[string]TestFunc{
		"defined": plainTest(func(v Value, _ Args) (bool, error) {
			return !v.IsUndefined(), nil
		}),
		"undefined": plainTest(func(v Value, _ Args) (bool, error) {
			return v.IsUndefined(), nil
		}),
		"none": plainTest(func(v Value, _ Args) (bool, error) {
			return v.IsNone(), nil
		}),
		"safe": plainTest(func(v Value, _ Args) (bool, error) {
			return v.IsSafe(), nil
		}),
		"boolean": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindBool, nil
		}),
		"true": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindBool && v.IsTrue(), nil
		}),
		"false": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindBool && !v.IsTrue(), nil
		}),
		"odd": plainTest(func(v Value, _ Args) (bool, error) {
			i, ok := v.AsInt()
			if !ok {
				return false, nil
			}
			return i%2 != 0, nil
		}),
		"even": plainTest(func(v Value, _ Args) (bool, error) {
			i, ok := v.AsInt()
			if !ok {
				return false, nil
			}
			return i%2 == 0, nil
		}),
		"divisibleby": plainTest(func(v Value, args Args) (bool, error) {
			i, ok1 := v.AsInt()
			d, ok2 := args.Arg(0).AsInt()
			if !ok1 || !ok2 || d == 0 {
				return false, nil
			}
			return i%d == 0, nil
		}),
		"number": plainTest(func(v Value, _ Args) (bool, error) {
			return v.IsNumber(), nil
		}),
		"integer": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindInt, nil
		}),
		"float": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindFloat, nil
		}),
		"string": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindString, nil
		}),
		"sequence": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindSeq, nil
		}),
		"mapping": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindMap, nil
		}),
		"iterable": plainTest(func(v Value, _ Args) (bool, error) {
			_, ok := v.Iter()
			return ok, nil
		}),
		"callable": plainTest(func(v Value, _ Args) (bool, error) {
			return v.Kind() == KindCallable, nil
		}),
		"startingwith": plainTest(func(v Value, args Args) (bool, error) {
			s, ok1 := v.AsString()
			prefix, ok2 := args.Arg(0).AsString()
			return ok1 && ok2 && strings.HasPrefix(s, prefix), nil
		}),
		"endingwith": plainTest(func(v Value, args Args) (bool, error) {
			s, ok1 := v.AsString()
			suffix, ok2 := args.Arg(0).AsString()
			return ok1 && ok2 && strings.HasSuffix(s, suffix), nil
		}),
		"eq": plainTest(func(v Value, args Args) (bool, error) {
			return valuesEqual(v, args.Arg(0)), nil
		}),
		"ne": plainTest(func(v Value, args Args) (bool, error) {
			return !valuesEqual(v, args.Arg(0)), nil
		}),
		"lt": plainTest(func(v Value, args Args) (bool, error) {
			c, err := compareValues(v, args.Arg(0))
			return c < 0, err
		}),
		"le": plainTest(func(v Value, args Args) (bool, error) {
			c, err := compareValues(v, args.Arg(0))
			return c <= 0, err
		}),
		"gt": plainTest(func(v Value, args Args) (bool, error) {
			c, err := compareValues(v, args.Arg(0))
			return c > 0, err
		}),
		"ge": plainTest(func(v Value, args Args) (bool, error) {
			c, err := compareValues(v, args.Arg(0))
			return c >= 0, err
		}),
		"in": plainTest(func(v Value, args Args) (bool, error) {
			return contains(v, args.Arg(0))
		}),
	}
	tests["equalto"] = tests["eq"]
	tests["lessthan"] = tests["lt"]
	tests["greaterthan"] = tests["gt"]
	return tests
}

func builtinFunctions() map[string]FunctionFunc {
	return map[string]FunctionFunc{
		"range": func(_ *State, args Args) (Value, error) {
			start, stop, step := int64(0), int64(0), int64(1)
			switch len(args.Positional) {
			case 1:
				s, ok := args.Arg(0).AsInt()
				if !ok {
					return Undefined(), Errorf(InvalidOperation, "range expects integer arguments")
				}
				stop = s
			case 2, 3:
				var ok1, ok2 bool
				start, ok1 = args.Arg(0).AsInt()
				stop, ok2 = args.Arg(1).AsInt()
				if !ok1 || !ok2 {
					return Undefined(), Errorf(InvalidOperation, "range expects integer arguments")
				}
				if len(args.Positional) == 3 {
					s, ok := args.Arg(2).AsInt()
					if !ok || s == 0 {
						return Undefined(), Errorf(InvalidOperation, "range step must be a nonzero integer")
					}
					step = s
				}
			default:
				return Undefined(), Errorf(InvalidOperation, "range expects 1 to 3 arguments")
			}
			var out []Value
			if step > 0 {
				for i := start; i < stop; i += step {
					out = append(out, Int(i))
				}
			} else {
				for i := start; i > stop; i += step {
					out = append(out, Int(i))
				}
			}
			return Seq(out), nil
		},
		"dict": func(_ *State, args Args) (Value, error) {
			vm := newValueMap()
			if len(args.Positional) > 0 {
				return Undefined(), Errorf(InvalidOperation, "dict takes only keyword arguments")
			}
			keys := make([]string, 0, len(args.Named))
			for k := range args.Named {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				vm.set(k, args.Named[k])
			}
			return mapValue(vm), nil
		},
	}
}
