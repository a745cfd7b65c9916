package runtime

import "fmt"

// ValueType represents WASM value types
type ValueType int

const (
	ValueTypeI32 ValueType = iota
	ValueTypeI64
	ValueTypeF32
	ValueTypeF64
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// SignatureMatches reports whether fn has exactly the given parameter and
// result types.
func SignatureMatches(fn FunctionInstance, params, results []ValueType) bool {
	return equalTypes(fn.ParamTypes(), params) && equalTypes(fn.ResultTypes(), results)
}

// FormatSignature renders a signature as "(i32, i32) -> (i32)".
func FormatSignature(params, results []ValueType) string {
	return fmt.Sprintf("%s -> %s", formatTypes(params), formatTypes(results))
}

func equalTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatTypes(types []ValueType) string {
	s := "("
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s + ")"
}
