package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindSeq
	KindMap
	KindCallable
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNone:      "none",
	KindBool:      "bool",
	KindInt:       "integer",
	KindFloat:     "float",
	KindString:    "string",
	KindBytes:     "bytes",
	KindSeq:       "sequence",
	KindMap:       "map",
	KindCallable:  "callable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Args carries call arguments to filters, tests and functions.
type Args struct {
	Positional []Value
	Named      map[string]Value
}

// Arg returns the positional argument at index or undefined.
func (a Args) Arg(i int) Value {
	if i < len(a.Positional) {
		return a.Positional[i]
	}
	return Undefined()
}

// Get returns a named argument or undefined.
func (a Args) Get(name string) Value {
	if v, ok := a.Named[name]; ok {
		return v
	}
	return Undefined()
}

// Callable is a value that can be invoked from templates. Macros and
// registered functions share this shape.
type Callable func(st *State, args Args) (Value, error)

// SafeString marks a Go string as pre-escaped when passed through FromAny.
type SafeString string

// Value is a tagged variant over the closed set of template value kinds.
// The zero Value is undefined.
type Value struct {
	kind     Kind
	b        bool
	i        int64
	f        float64
	s        string
	safe     bool
	bs       []byte
	seq      []Value
	m        *valueMap
	call     Callable
	callName string
}

// valueMap keeps insertion order so rendered maps are deterministic.
type valueMap struct {
	keys   []string
	values map[string]Value
}

func newValueMap() *valueMap {
	return &valueMap{values: map[string]Value{}}
}

func (m *valueMap) set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *valueMap) get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// None returns the none value.
func None() Value { return Value{kind: KindNone} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Safe wraps a string that must not be escaped again.
func Safe(s string) Value { return Value{kind: KindString, s: s, safe: true} }

// Bytes wraps a byte slice.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bs: b} }

// Seq wraps a slice of values.
func Seq(items []Value) Value { return Value{kind: KindSeq, seq: items} }

// Map builds a map value with deterministic (sorted) key order.
func Map(m map[string]Value) Value {
	vm := newValueMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vm.set(k, m[k])
	}
	return Value{kind: KindMap, m: vm}
}

func mapValue(vm *valueMap) Value { return Value{kind: KindMap, m: vm} }

// Func wraps a callable under a display name.
func Func(name string, call Callable) Value {
	return Value{kind: KindCallable, call: call, callName: name}
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNone reports whether the value is none.
func (v Value) IsNone() bool { return v.kind == KindNone }

// IsSafe reports whether the value is a string exempt from escaping.
func (v Value) IsSafe() bool { return v.kind == KindString && v.safe }

// IsNumber reports whether the value is an integer or float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsTrue implements template truthiness.
func (v Value) IsTrue() bool {
	switch v.kind {
	case KindUndefined, KindNone:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindBytes:
		return len(v.bs) > 0
	case KindSeq:
		return len(v.seq) > 0
	case KindMap:
		return len(v.m.keys) > 0
	case KindCallable:
		return true
	}
	return false
}

// AsInt returns the value as an integer when lossless.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == float64(int64(v.f)) {
			return int64(v.f), true
		}
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsFloat returns the value as a float.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// AsString returns the underlying string for string values.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString {
		return v.s, true
	}
	return "", false
}

// Len returns the length of countable values.
func (v Value) Len() (int, bool) {
	switch v.kind {
	case KindString:
		return utf8.RuneCountInString(v.s), true
	case KindBytes:
		return len(v.bs), true
	case KindSeq:
		return len(v.seq), true
	case KindMap:
		return len(v.m.keys), true
	}
	return 0, false
}

// String renders the value the way template output does.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return ""
	case KindNone:
		return "none"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	case KindBytes:
		return string(v.bs)
	case KindSeq, KindMap:
		return v.Repr()
	case KindCallable:
		return "<callable " + v.callName + ">"
	}
	return ""
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Integral floats keep a decimal point so they read as floats. NaN and
	// the infinities already contain an excluded letter.
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Repr renders the debug representation used inside containers.
func (v Value) Repr() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindString:
		return strconv.Quote(v.s)
	case KindSeq:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.Repr())
		}
		b.WriteByte(']')
		return b.String()
	case KindMap:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			item, _ := v.m.get(k)
			b.WriteString(item.Repr())
		}
		b.WriteByte('}')
		return b.String()
	default:
		return v.String()
	}
}

// GetAttr resolves dot access on map values.
func (v Value) GetAttr(name string) (Value, bool) {
	if v.kind == KindMap {
		return v.m.get(name)
	}
	return Undefined(), false
}

// GetItem resolves subscript access. Negative indexes count from the end.
func (v Value) GetItem(key Value) (Value, bool) {
	switch v.kind {
	case KindSeq:
		idx, ok := key.AsInt()
		if !ok {
			return Undefined(), false
		}
		if idx < 0 {
			idx += int64(len(v.seq))
		}
		if idx < 0 || idx >= int64(len(v.seq)) {
			return Undefined(), false
		}
		return v.seq[idx], true
	case KindMap:
		if s, ok := key.AsString(); ok {
			return v.m.get(s)
		}
		return v.m.get(key.String())
	case KindString:
		idx, ok := key.AsInt()
		if !ok {
			return Undefined(), false
		}
		runes := []rune(v.s)
		if idx < 0 {
			idx += int64(len(runes))
		}
		if idx < 0 || idx >= int64(len(runes)) {
			return Undefined(), false
		}
		return String(string(runes[idx])), true
	}
	return Undefined(), false
}

// Iter returns the items iteration visits: sequence elements, map keys or
// string characters.
func (v Value) Iter() ([]Value, bool) {
	switch v.kind {
	case KindSeq:
		return v.seq, true
	case KindMap:
		items := make([]Value, len(v.m.keys))
		for i, k := range v.m.keys {
			items[i] = String(k)
		}
		return items, true
	case KindString:
		var items []Value
		for _, r := range v.s {
			items = append(items, String(string(r)))
		}
		return items, true
	case KindUndefined:
		return nil, true
	}
	return nil, false
}

// MapKeys returns the keys of a map value in order.
func (v Value) MapKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	return v.m.keys
}

// CallableName returns the display name of a callable value.
func (v Value) CallableName() string { return v.callName }

// Call invokes callable values.
func (v Value) Call(st *State, args Args) (Value, error) {
	if v.kind != KindCallable {
		return Undefined(), Errorf(InvalidOperation, "value of type %s is not callable", v.kind)
	}
	return v.call(st, args)
}

// FromAny marshals a Go value into the template value model. This is the
// only place reflection happens; the evaluator works on Values exclusively.
func FromAny(v any) Value {
	switch v := v.(type) {
	case nil:
		return None()
	case Value:
		return v
	case SafeString:
		return Safe(string(v))
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Int(int64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return Int(int64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case string:
		return String(v)
	case []byte:
		return Bytes(v)
	case []Value:
		return Seq(v)
	case map[string]Value:
		return Map(v)
	case Callable:
		return Func("function", v)
	case func(*State, Args) (Value, error):
		return Func("function", v)
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = FromAny(item)
		}
		return Seq(items)
	case map[string]any:
		vm := newValueMap()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vm.set(k, FromAny(v[k]))
		}
		return mapValue(vm)
	case error:
		return String(v.Error())
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return None()
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return Seq(items)
	case reflect.Map:
		vm := newValueMap()
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			byKey[k] = iter.Value()
		}
		sort.Strings(keys)
		for _, k := range keys {
			vm.set(k, FromAny(byKey[k].Interface()))
		}
		return mapValue(vm)
	case reflect.Struct:
		return structValue(rv)
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.String:
		return String(rv.String())
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return String(s.String())
	}
	return String(fmt.Sprint(rv.Interface()))
}

// structValue exposes exported fields as map entries, honoring json tags
// for naming and omission.
func structValue(rv reflect.Value) Value {
	vm := newValueMap()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		vm.set(name, FromAny(rv.Field(i).Interface()))
	}
	return mapValue(vm)
}
