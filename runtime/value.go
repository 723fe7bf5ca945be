// Package runtime is the calling-convention contract shared by emitted code
// and its host: execution contexts, environments, function objects, the
// tail-call trampoline and the value operations emitted code calls into.
package runtime

import (
	"math"
	"strconv"
	"strings"
)

// Value is any script value. Numbers may arrive as any Go numeric kind;
// operations normalize them with ToNumber.
type Value = any

type sentinel struct{ name string }

func (s *sentinel) String() string { return s.name }

// Sentinel values.
var (
	Undefined     Value = &sentinel{"undefined"}
	Null          Value = &sentinel{"null"}
	Uninitialized Value = &sentinel{"uninitialized"}
)

// IsNumber reports whether v is a numeric value.
func IsNumber(v Value) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint16:
		return true
	}
	return false
}

// IsObject reports whether v is an object (including functions).
func IsObject(v Value) bool {
	_, ok := v.(ObjectLike)
	return ok
}

// Typeof implements the typeof operator.
func Typeof(v Value) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case Callable:
		return "function"
	case ObjectLike:
		return "object"
	case *sentinel:
		if x == Null {
			return "object"
		}
		return "undefined"
	}
	if IsNumber(v) {
		return "number"
	}
	return "object"
}

// ToNumber converts v to a float64.
func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint16:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return stringToNumber(x)
	case *sentinel:
		if x == Null {
			return 0
		}
		return math.NaN()
	case ObjectLike:
		return stringToNumber(ToString(v))
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if n, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
			return float64(n)
		}
		return math.NaN()
	}
	if strings.ContainsAny(s, "InfinityinfnaNx") {
		// strconv accepts "inf", "nan" and hex floats; script numbers do not.
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToBoolean converts v to a bool.
func ToBoolean(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case *sentinel:
		return false
	case ObjectLike:
		return true
	}
	f := ToNumber(v)
	return f != 0 && !math.IsNaN(f)
}

// ToString converts v to a string.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *sentinel:
		return x.name
	case Callable:
		return "function () { [native code] }"
	case *Object:
		if x.Class == "Array" {
			return arrayJoin(x)
		}
		if x.Class == "Error" {
			return ToString(x.Get("name")) + ": " + ToString(x.Get("message"))
		}
		return "[object Object]"
	}
	if IsNumber(v) {
		return NumberToString(ToNumber(v))
	}
	return "[object Object]"
}

// NumberToString formats a number the way scripts observe it.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// SameValue compares two values, treating NaN as equal to itself and
// distinguishing +0 from -0.
func SameValue(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		x, y := ToNumber(a), ToNumber(b)
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y && math.Signbit(x) == math.Signbit(y)
	}
	return StrictEquals(a, b)
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		return ToNumber(a) == ToNumber(b)
	}
	if a == nil {
		a = Undefined
	}
	if b == nil {
		b = Undefined
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return a == b
}

// LooseEquals implements == for the value kinds this engine models.
func LooseEquals(a, b Value) bool {
	if a == nil {
		a = Undefined
	}
	if b == nil {
		b = Undefined
	}
	nullish := func(v Value) bool { return v == Undefined || v == Null }
	switch {
	case nullish(a) || nullish(b):
		return nullish(a) && nullish(b)
	case IsObject(a) && IsObject(b):
		return a == b
	case IsObject(a):
		return LooseEquals(ToString(a), b)
	case IsObject(b):
		return LooseEquals(a, ToString(b))
	}
	_, as := a.(string)
	_, bs := b.(string)
	if as && bs {
		return a.(string) == b.(string)
	}
	return ToNumber(a) == ToNumber(b)
}

// Add implements the + operator.
func Add(a, b Value) Value {
	pa, pb := toPrimitive(a), toPrimitive(b)
	_, as := pa.(string)
	_, bs := pb.(string)
	if as || bs {
		return ToString(pa) + ToString(pb)
	}
	return ToNumber(pa) + ToNumber(pb)
}

func toPrimitive(v Value) Value {
	if IsObject(v) {
		return ToString(v)
	}
	return v
}

// Arithmetic operators on numbers.
func Sub(a, b Value) Value { return ToNumber(a) - ToNumber(b) }
func Mul(a, b Value) Value { return ToNumber(a) * ToNumber(b) }
func Div(a, b Value) Value { return ToNumber(a) / ToNumber(b) }
func Mod(a, b Value) Value { return math.Mod(ToNumber(a), ToNumber(b)) }
func Neg(a Value) Value    { return -ToNumber(a) }

// Compare implements the relational operators. op is one of "<", ">",
// "<=", ">=".
func Compare(op string, a, b Value) bool {
	pa, pb := toPrimitive(a), toPrimitive(b)
	if x, ok := pa.(string); ok {
		if y, ok := pb.(string); ok {
			switch op {
			case "<":
				return x < y
			case ">":
				return x > y
			case "<=":
				return x <= y
			case ">=":
				return x >= y
			}
		}
	}
	x, y := ToNumber(pa), ToNumber(pb)
	switch op {
	case "<":
		return x < y
	case ">":
		return x > y
	case "<=":
		return x <= y
	case ">=":
		return x >= y
	}
	panic("runtime: unknown comparison " + op)
}
