package runtime

import (
	"math"
	"strings"
)

// add implements `+`. Numbers add, strings and sequences concatenate.
func add(a, b Value) (Value, error) {
	if a.kind == KindString && b.kind == KindString {
		return String(a.s + b.s), nil
	}
	if a.kind == KindSeq && b.kind == KindSeq {
		items := make([]Value, 0, len(a.seq)+len(b.seq))
		items = append(items, a.seq...)
		items = append(items, b.seq...)
		return Seq(items), nil
	}
	return numericOp(a, b, "+",
		func(x, y int64) (int64, bool) { return x + y, true },
		func(x, y float64) float64 { return x + y },
	)
}

func sub(a, b Value) (Value, error) {
	return numericOp(a, b, "-",
		func(x, y int64) (int64, bool) { return x - y, true },
		func(x, y float64) float64 { return x - y },
	)
}

// mul implements `*`. A string times an integer repeats it.
func mul(a, b Value) (Value, error) {
	if a.kind == KindString && b.kind == KindInt {
		return repeatString(a.s, b.i)
	}
	if a.kind == KindInt && b.kind == KindString {
		return repeatString(b.s, a.i)
	}
	return numericOp(a, b, "*",
		func(x, y int64) (int64, bool) { return x * y, true },
		func(x, y float64) float64 { return x * y },
	)
}

func repeatString(s string, n int64) (Value, error) {
	if n < 0 {
		n = 0
	}
	if n > 10000 {
		return Undefined(), Errorf(InvalidOperation, "string repetition count %d is too large", n)
	}
	return String(strings.Repeat(s, int(n))), nil
}

// div implements `/`, which always yields a float.
func div(a, b Value) (Value, error) {
	x, okA := a.AsFloat()
	y, okB := b.AsFloat()
	if !okA || !okB {
		return Undefined(), opError("/", a, b)
	}
	if y == 0 {
		return Undefined(), Errorf(InvalidOperation, "division by zero")
	}
	return Float(x / y), nil
}

// floorDiv implements `//`.
func floorDiv(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Undefined(), Errorf(InvalidOperation, "division by zero")
		}
		q := a.i / b.i
		if (a.i%b.i != 0) && ((a.i < 0) != (b.i < 0)) {
			q--
		}
		return Int(q), nil
	}
	x, okA := a.AsFloat()
	y, okB := b.AsFloat()
	if !okA || !okB {
		return Undefined(), opError("//", a, b)
	}
	if y == 0 {
		return Undefined(), Errorf(InvalidOperation, "division by zero")
	}
	return Float(math.Floor(x / y)), nil
}

// mod implements `%` with Python-style sign semantics.
func mod(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Undefined(), Errorf(InvalidOperation, "division by zero")
		}
		r := a.i % b.i
		if r != 0 && ((r < 0) != (b.i < 0)) {
			r += b.i
		}
		return Int(r), nil
	}
	x, okA := a.AsFloat()
	y, okB := b.AsFloat()
	if !okA || !okB {
		return Undefined(), opError("%", a, b)
	}
	if y == 0 {
		return Undefined(), Errorf(InvalidOperation, "division by zero")
	}
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return Float(r), nil
}

func pow(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt && b.i >= 0 {
		result := int64(1)
		base := a.i
		for exp := b.i; exp > 0; exp >>= 1 {
			if exp&1 == 1 {
				result *= base
			}
			base *= base
		}
		return Int(result), nil
	}
	x, okA := a.AsFloat()
	y, okB := b.AsFloat()
	if !okA || !okB {
		return Undefined(), opError("**", a, b)
	}
	return Float(math.Pow(x, y)), nil
}

func neg(a Value) (Value, error) {
	switch a.kind {
	case KindInt:
		return Int(-a.i), nil
	case KindFloat:
		return Float(-a.f), nil
	}
	return Undefined(), Errorf(InvalidOperation, "cannot negate value of type %s", a.kind)
}

// concat implements `~`, which stringifies both sides.
func concat(a, b Value) Value {
	return String(a.String() + b.String())
}

func numericOp(a, b Value, op string, intFn func(int64, int64) (int64, bool), floatFn func(float64, float64) float64) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		if r, ok := intFn(a.i, b.i); ok {
			return Int(r), nil
		}
	}
	x, okA := a.AsFloat()
	y, okB := b.AsFloat()
	if !okA || !okB {
		return Undefined(), opError(op, a, b)
	}
	return Float(floatFn(x, y)), nil
}

func opError(op string, a, b Value) error {
	return Errorf(InvalidOperation,
		"unsupported operation: %s %s %s", a.kind, op, b.kind)
}

// valuesEqual implements `==` with numeric cross-kind comparison.
func valuesEqual(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return x == y
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNone:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindBytes:
		return string(a.bs) == string(b.bs)
	case KindSeq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !valuesEqual(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m.keys) != len(b.m.keys) {
			return false
		}
		for _, k := range a.m.keys {
			av, _ := a.m.get(k)
			bv, ok := b.m.get(k)
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// compareValues orders two values, returning a diagnostic for incomparable
// kinds.
func compareValues(a, b Value) (int, error) {
	if a.IsNumber() && b.IsNumber() {
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}
	if a.kind == KindBool && b.kind == KindBool {
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		return int(x - y), nil
	}
	if a.kind == KindSeq && b.kind == KindSeq {
		for i := 0; i < len(a.seq) && i < len(b.seq); i++ {
			c, err := compareValues(a.seq[i], b.seq[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return len(a.seq) - len(b.seq), nil
	}
	return 0, Errorf(InvalidOperation, "cannot compare %s with %s", a.kind, b.kind)
}

// contains implements `in`: substring, sequence membership or map key.
func contains(needle, haystack Value) (bool, error) {
	switch haystack.kind {
	case KindString:
		return strings.Contains(haystack.s, needle.String()), nil
	case KindSeq:
		for _, item := range haystack.seq {
			if valuesEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case KindMap:
		key := needle.String()
		_, ok := haystack.m.get(key)
		return ok, nil
	}
	return false, Errorf(InvalidOperation, "cannot check containment in value of type %s", haystack.kind)
}
