package pserial

import (
	"math"
	"strconv"
)

// Exponent window for plain decimal layout. Outside it doubles are
// written as 1.5E+25 / 1.0E-5, the same switch PHP makes with
// serialize_precision=-1.
const (
	minPlainDecpt = -3
	maxPlainDecpt = 17
)

// appendDouble appends the shortest decimal that parses back to f.
// Integral values carry no fraction: 130000, not 1.3E+5.
func appendDouble(dst []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(dst, "NAN"...)
	case math.IsInf(f, 1):
		return append(dst, "INF"...)
	case math.IsInf(f, -1):
		return append(dst, "-INF"...)
	case f == 0:
		if math.Signbit(f) {
			return append(dst, "-0"...)
		}
		return append(dst, '0')
	}

	// Shortest round-trip digits: [-]d[.ddd]e±XX
	var scratch [32]byte
	s := strconv.AppendFloat(scratch[:0], f, 'e', -1, 64)
	if s[0] == '-' {
		dst = append(dst, '-')
		s = s[1:]
	}

	ePos := len(s) - 1
	for s[ePos] != 'e' {
		ePos--
	}
	exp, _ := strconv.Atoi(string(s[ePos+1:]))

	var digitBuf [24]byte
	digits := append(digitBuf[:0], s[0])
	if ePos > 2 {
		digits = append(digits, s[2:ePos]...)
	}

	// decpt is the position of the decimal point relative to digits
	decpt := exp + 1
	if decpt < minPlainDecpt || decpt > maxPlainDecpt {
		dst = append(dst, digits[0], '.')
		if len(digits) > 1 {
			dst = append(dst, digits[1:]...)
		} else {
			dst = append(dst, '0')
		}
		dst = append(dst, 'E')
		if exp < 0 {
			dst = append(dst, '-')
			exp = -exp
		} else {
			dst = append(dst, '+')
		}
		return strconv.AppendInt(dst, int64(exp), 10)
	}

	switch {
	case decpt <= 0:
		dst = append(dst, '0', '.')
		for i := 0; i < -decpt; i++ {
			dst = append(dst, '0')
		}
		dst = append(dst, digits...)
	case len(digits) <= decpt:
		dst = append(dst, digits...)
		for i := len(digits); i < decpt; i++ {
			dst = append(dst, '0')
		}
	default:
		dst = append(dst, digits[:decpt]...)
		dst = append(dst, '.')
		dst = append(dst, digits[decpt:]...)
	}
	return dst
}

// FormatDouble returns the wire spelling of f without the d: prefix.
func FormatDouble(f float64) string {
	return string(appendDouble(nil, f))
}

// parseDouble parses a double token. The lexical form is validated
// first so strconv's extras (hex floats, underscores, "Infinity")
// are not accepted.
func parseDouble(tok string) (float64, bool) {
	switch tok {
	case "INF":
		return math.Inf(1), true
	case "-INF":
		return math.Inf(-1), true
	case "NAN":
		return math.NaN(), true
	}
	if !isDoubleToken(tok) {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isDoubleToken matches -?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?
func isDoubleToken(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	intDigits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		intDigits++
	}
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			fracDigits++
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			i++
		}
		expDigits := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			expDigits++
		}
		if expDigits == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
