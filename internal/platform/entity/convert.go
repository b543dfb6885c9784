package entity

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"
)

// TextFilter rewrites string values before they are stored.
type TextFilter func(string) string

// convert turns a decoded JSON value into a value assignable to c.
func convert(c *Column, raw interface{}, filter TextFilter) (reflect.Value, error) {
	if raw == nil {
		if c.Type.Kind() == reflect.Ptr {
			return reflect.Zero(c.Type), nil
		}
		return reflect.Value{}, invalid(c.Name, "must not be null")
	}
	if c.Type.Kind() == reflect.Ptr {
		v, err := convertScalar(c.Name, c.Type.Elem(), raw, filter)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(c.Type.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	return convertScalar(c.Name, c.Type, raw, filter)
}

func convertScalar(name string, t reflect.Type, raw interface{}, filter TextFilter) (reflect.Value, error) {
	if t == timeType {
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, invalid(name, "must be an RFC 3339 timestamp")
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return reflect.Value{}, invalid(name, "must be an RFC 3339 timestamp")
		}
		return reflect.ValueOf(ts), nil
	}

	switch t.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, invalid(name, "must be a string")
		}
		if filter != nil {
			s = filter(s)
		}
		return reflect.ValueOf(s).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(raw)
		if !ok {
			return reflect.Value{}, invalid(name, "must be an integer")
		}
		v := reflect.New(t).Elem()
		if v.OverflowInt(n) {
			return reflect.Value{}, invalid(name, "out of range")
		}
		v.SetInt(n)
		return v, nil

	case reflect.Float32, reflect.Float64:
		var f float64
		switch x := raw.(type) {
		case json.Number:
			var err error
			if f, err = x.Float64(); err != nil {
				return reflect.Value{}, invalid(name, "must be a number")
			}
		case float64:
			f = x
		case int64:
			f = float64(x)
		case int:
			f = float64(x)
		default:
			return reflect.Value{}, invalid(name, "must be a number")
		}
		return reflect.ValueOf(f).Convert(t), nil

	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return reflect.Value{}, invalid(name, "must be a boolean")
		}
		return reflect.ValueOf(b).Convert(t), nil
	}
	return reflect.Value{}, invalid(name, "unsupported column type %s", t)
}

// toInt64 accepts the integer shapes produced by JSONLoads and by Go callers.
func toInt64(raw interface{}) (int64, bool) {
	switch x := raw.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(x)
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

// floatToInt64 accepts integral floats such as 7.0 inside the int64 range.
func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// blank reports whether a required column received no usable value.
func blank(v reflect.Value) bool {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.String {
		return strings.TrimSpace(v.String()) == ""
	}
	return false
}
