package transform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ToInt coerces a loosely typed count. Anything missing, unparseable or
// negative becomes 0. Fractions are truncated.
func ToInt(v interface{}) int {
	f := ToFloat(v)
	if f < 0 {
		return 0
	}
	return int(f)
}

// ToFloat coerces numbers, numeric strings and percentage strings such as
// "12,5 %" into a float. Anything else becomes 0.
func ToFloat(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, ok := parseNumber(n)
		if !ok {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ToDecimal coerces a money amount, rounded to cents.
func ToDecimal(v interface{}) decimal.Decimal {
	if s, ok := v.(string); ok {
		cleaned, ok := normalizeNumber(s)
		if !ok {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil || d.IsNegative() {
			return decimal.Zero
		}
		return d.Round(2)
	}

	f := ToFloat(v)
	if f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Round(2)
}

// Round2 rounds half away from zero to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func parseNumber(s string) (float64, bool) {
	cleaned, ok := normalizeNumber(s)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeNumber strips percent signs and every kind of space (the vendor
// uses NBSP and narrow NBSP as thousands separators and before "%"), then
// resolves the decimal separator.
func normalizeNumber(s string) (string, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '%', ' ', '\t', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return "", false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,5
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.5
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || isThousandsGroup(s, lastComma) {
			// 1,234,567 or 12,345
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// 12,5
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		// 1.234.567
		s = strings.ReplaceAll(s, ".", "")
	}

	return s, true
}

// isThousandsGroup reports whether the lone separator at i splits a 1-3 digit
// leading group from exactly three trailing digits, as in "12,345". A "0"
// leading group ("0,125") stays a decimal.
func isThousandsGroup(s string, i int) bool {
	head := strings.TrimPrefix(s[:i], "-")
	tail := s[i+1:]
	if len(tail) != 3 || len(head) == 0 || len(head) > 3 || head == "0" {
		return false
	}
	return allDigits(head) && allDigits(tail)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
