package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindText
	kindNumber
)

// Value is a typed entity value: either text or a number.
// The zero Value is empty.
type Value struct {
	kind valueKind
	text string
	num  float64
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: kindNumber, num: n} }

// IsZero reports whether v holds nothing.
func (v Value) IsZero() bool { return v.kind == kindNone }

// IsNumber reports whether v is numeric.
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// Text returns the text content, if v is text.
func (v Value) Text() (string, bool) { return v.text, v.kind == kindText }

// Number returns the numeric content, if v is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == kindNumber }

// Any returns the value as a plain Go value for query parameters.
// Whole numbers come back as int64.
func (v Value) Any() any {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53 {
			return int64(v.num)
		}
		return v.num
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// Equal reports whether two values have the same kind and content.
// Text compares case-insensitively.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindText:
		return strings.EqualFold(v.text, o.text)
	case kindNumber:
		return v.num == o.num
	}
	return true
}

// MarshalJSON encodes the value as a JSON string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// IsPlaceholder reports whether s carries no information.
func IsPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "nil", "unknown", "n/a", "na", "-",
		"any", "not specified", "not mentioned":
		return true
	}
	return false
}

// ParseValue validates a raw value (from rules or decoded oracle JSON) for f.
// Numeric fields accept numbers and numeric strings; text fields accept
// non-placeholder strings. Limit is clamped to [1, MaxLimit].
func ParseValue(f Field, raw any) (Value, error) {
	if raw == nil {
		return Value{}, fmt.Errorf("%s: null value", f)
	}
	if f.Numeric() {
		n, err := toNumber(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", f, err)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return Value{}, fmt.Errorf("%s: out of range: %v", f, n)
		}
		if f == FieldLimit {
			n = math.Trunc(n)
			if n < 1 {
				n = 1
			}
			if n > MaxLimit {
				n = MaxLimit
			}
		}
		return Number(n), nil
	}

	var s string
	switch t := raw.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	case float64, int, int64, json.Number:
		s = fmt.Sprint(t)
	default:
		return Value{}, fmt.Errorf("%s: unsupported type %T", f, raw)
	}
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return Value{}, fmt.Errorf("%s: placeholder %q", f, s)
	}
	return Text(s), nil
}

func toNumber(raw any) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if IsPlaceholder(s) {
			return 0, fmt.Errorf("placeholder %q", s)
		}
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("not a number: %T", raw)
}
