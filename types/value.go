// Package types contains shared domain types used across the switchboard gateway
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/switchboard/errors"
)

// Kind is the declared type of a sensor. Inbound values are parsed under it.
type Kind string

// Sensor kinds
const (
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindString Kind = "str"
	KindBool   Kind = "bool"
)

// DefaultKind is used when a sensor declares no type.
const DefaultKind = KindFloat

// ParseKind maps a configuration string to a Kind. An empty string yields DefaultKind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return DefaultKind, nil
	case KindFloat, KindInt, KindString, KindBool:
		return k, nil
	default:
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "Kind", "ParseKind",
			fmt.Sprintf("resolve sensor type %q", s))
	}
}

// Numeric reports whether values of this kind support increments.
func (k Kind) Numeric() bool {
	return k == KindFloat || k == KindInt
}

// Value is a tagged sensor value. The zero Value has no kind and is not valid.
type Value struct {
	kind Kind
	f    float64
	i    int64
	s    string
	b    bool
}

// FloatValue returns a float sensor value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// IntValue returns an int sensor value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// StringValue returns a str sensor value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// BoolValue returns a bool sensor value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ZeroValue returns the zero of kind k, used as the base for increments.
func ZeroValue(k Kind) Value {
	return Value{kind: k}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Interface returns the payload as a plain Go scalar.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindString:
		return v.s
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Float returns the value as a float64 for export. Strings are not exportable.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Add returns v + delta. Both must share the same numeric kind.
func (v Value) Add(delta Value) (Value, error) {
	if !v.kind.Numeric() {
		return Value{}, errors.WrapInvalid(errors.ErrNotIncrement, "Value", "Add",
			fmt.Sprintf("increment %s value", v.kind))
	}
	if delta.kind != v.kind {
		return Value{}, errors.WrapInvalid(errors.ErrInvalidValue, "Value", "Add",
			fmt.Sprintf("add %s delta to %s value", delta.kind, v.kind))
	}
	if v.kind == KindInt {
		sum := v.i + delta.i
		if (delta.i > 0 && sum < v.i) || (delta.i < 0 && sum > v.i) {
			return Value{}, errors.WrapInvalid(errors.ErrInvalidValue, "Value", "Add",
				fmt.Sprintf("add %d to %d overflows int", delta.i, v.i))
		}
		return IntValue(sum), nil
	}
	return FloatValue(v.f + delta.f), nil
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// String renders the payload the way it would appear in a form body.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its bare scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		// JSON has no representation for these
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Interface())
}

// ParseValue converts raw input into a Value of the given kind. raw may be a form
// string or any scalar produced by encoding/json or yaml.v3.
func ParseValue(kind Kind, raw any) (Value, error) {
	v, ok := parse(kind, raw)
	if !ok {
		return Value{}, errors.WrapInvalid(errors.ErrInvalidValue, "Value", "ParseValue",
			fmt.Sprintf("parse %v (%T) as %s", raw, raw, kind))
	}
	return v, nil
}

func parse(kind Kind, raw any) (Value, bool) {
	if s, isString := raw.(string); isString && kind != KindString {
		raw = strings.TrimSpace(s)
	}
	if n, isNumber := raw.(json.Number); isNumber {
		raw = n.String()
	}

	switch kind {
	case KindFloat:
		switch r := raw.(type) {
		case float64:
			return FloatValue(r), true
		case float32:
			return FloatValue(float64(r)), true
		case int:
			return FloatValue(float64(r)), true
		case int64:
			return FloatValue(float64(r)), true
		case uint64:
			return FloatValue(float64(r)), true
		case string:
			f, err := strconv.ParseFloat(r, 64)
			return FloatValue(f), err == nil
		}
	case KindInt:
		switch r := raw.(type) {
		case int:
			return IntValue(int64(r)), true
		case int64:
			return IntValue(r), true
		case uint64:
			if r > math.MaxInt64 {
				return Value{}, false
			}
			return IntValue(int64(r)), true
		case float64:
			// float64(MaxInt64) rounds up to 2^63, which int64 cannot hold
			if r != math.Trunc(r) || r >= math.MaxInt64 || r < math.MinInt64 {
				return Value{}, false
			}
			return IntValue(int64(r)), true
		case string:
			i, err := strconv.ParseInt(r, 10, 64)
			return IntValue(i), err == nil
		}
	case KindBool:
		switch r := raw.(type) {
		case bool:
			return BoolValue(r), true
		case int:
			return BoolValue(r != 0), r == 0 || r == 1
		case int64:
			return BoolValue(r != 0), r == 0 || r == 1
		case float64:
			return BoolValue(r != 0), r == 0 || r == 1
		case string:
			b, err := strconv.ParseBool(strings.ToLower(r))
			return BoolValue(b), err == nil
		}
	case KindString:
		switch r := raw.(type) {
		case string:
			return StringValue(r), true
		case bool, int, int64, uint64, float64:
			return StringValue(fmt.Sprint(r)), true
		}
	}
	return Value{}, false
}
