package pserial

import "math"

// Equal reports whether a and b are structurally equal: same kind, then
// recursively same payload. Doubles compare by bit pattern, so an
// identical NaN is equal to itself and -0 differs from 0. Array entry
// and struct field order are significant.
func Equal(a, b *Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindInt:
		return a.intVal == b.intVal
	case KindDouble:
		return math.Float64bits(a.floatVal) == math.Float64bits(b.floatVal)
	case KindStr:
		return a.strVal == b.strVal
	case KindArray:
		if len(a.arrVal) != len(b.arrVal) {
			return false
		}
		for i := range a.arrVal {
			if !Equal(a.arrVal[i].Key, b.arrVal[i].Key) || !Equal(a.arrVal[i].Value, b.arrVal[i].Value) {
				return false
			}
		}
		return true
	case KindStruct:
		sa, sb := a.structVal, b.structVal
		if sa.Name != sb.Name || len(sa.Fields) != len(sb.Fields) {
			return false
		}
		for i := range sa.Fields {
			if sa.Fields[i].Name != sb.Fields[i].Name || !Equal(sa.Fields[i].Value, sb.Fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
