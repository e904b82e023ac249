package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Built-in types. Object is the root of the hierarchy.
var (
	Object    *Type
	Number    *Type
	Integer   *Type
	String    *Type
	Boolean   *Type
	Timestamp *Type
	Duration  *Type
)

var errNotNumeric = errors.New("not a number")

func init() {
	Object = builtin(Spec{
		Name: "object",
		Is:   func(v any) bool { return v != nil },
	})
	Object.parent = nil
	Number = builtin(Spec{
		Name:      "number",
		Is:        isNumeric,
		Normalize: func(v any) any { f, _ := toFloat(v); return f },
		Arithmetic: &Arithmetic{
			Zero: func() any { return float64(0) },
			Add: func(a, b any) (any, error) {
				return floatOp(a, b, func(x, y float64) float64 { return x + y })
			},
			Subtract: func(a, b any) (any, error) {
				return floatOp(a, b, func(x, y float64) float64 { return x - y })
			},
		},
	})
	Number.arith.Delta = Number
	Integer = builtin(Spec{
		Name:      "integer",
		Parent:    Number,
		Is:        isInteger,
		Normalize: func(v any) any { i, _ := toInt(v); return i },
		Arithmetic: &Arithmetic{
			Zero: func() any { return int64(0) },
			Add: func(a, b any) (any, error) {
				return intOp(a, b, func(x, y int64) int64 { return x + y })
			},
			Subtract: func(a, b any) (any, error) {
				return intOp(a, b, func(x, y int64) int64 { return x - y })
			},
		},
	})
	Integer.arith.Delta = Integer
	String = builtin(Spec{
		Name: "string",
		Is:   func(v any) bool { _, ok := v.(string); return ok },
	})
	Boolean = builtin(Spec{
		Name: "boolean",
		Is:   func(v any) bool { _, ok := v.(bool); return ok },
	})
	Duration = builtin(Spec{
		Name: "duration",
		Is:   func(v any) bool { _, ok := v.(time.Duration); return ok },
		Arithmetic: &Arithmetic{
			Zero: func() any { return time.Duration(0) },
			Add: func(a, b any) (any, error) {
				return a.(time.Duration) + b.(time.Duration), nil
			},
			Subtract: func(a, b any) (any, error) {
				return a.(time.Duration) - b.(time.Duration), nil
			},
		},
	})
	Duration.arith.Delta = Duration
	Timestamp = builtin(Spec{
		Name: "timestamp",
		Is:   func(v any) bool { _, ok := v.(time.Time); return ok },
		Arithmetic: &Arithmetic{
			Delta: Duration,
			Add: func(a, b any) (any, error) {
				return a.(time.Time).Add(b.(time.Duration)), nil
			},
			Subtract: func(a, b any) (any, error) {
				return a.(time.Time).Add(-b.(time.Duration)), nil
			},
		},
	})
}

func builtin(s Spec) *Type {
	if s.Parent == nil {
		s.Parent = Object
	}
	t := newType(s)
	t.builtin = true
	return t
}

func builtins() []*Type {
	return []*Type{Object, Number, Integer, String, Boolean, Timestamp, Duration}
}

type convKey struct{ from, to *Type }

func builtinConverters() map[convKey]ConverterFunc {
	return map[convKey]ConverterFunc{
		{String, Number}: func(v any) (any, bool) {
			f, err := strconv.ParseFloat(strings.TrimSpace(v.(string)), 64)
			if err != nil || math.IsNaN(f) {
				return nil, false
			}
			return f, true
		},
		{String, Integer}: func(v any) (any, bool) {
			i, err := strconv.ParseInt(strings.TrimSpace(v.(string)), 10, 64)
			return i, err == nil
		},
		{String, Boolean}: func(v any) (any, bool) {
			switch strings.ToLower(strings.TrimSpace(v.(string))) {
			case "true", "yes", "on":
				return true, true
			case "false", "no", "off":
				return false, true
			}
			return nil, false
		},
		{String, Timestamp}: func(v any) (any, bool) {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(v.(string)))
			return ts, err == nil
		},
		{String, Duration}: func(v any) (any, bool) {
			d, err := time.ParseDuration(strings.TrimSpace(v.(string)))
			return d, err == nil
		},
		{Number, Integer}: func(v any) (any, bool) {
			f, ok := toFloat(v)
			if !ok || f != math.Trunc(f) || f >= 0x1p63 || f < -0x1p63 {
				return nil, false
			}
			return int64(f), true
		},
		{Number, String}: func(v any) (any, bool) {
			if i, ok := toInt(v); ok && isInteger(v) {
				return strconv.FormatInt(i, 10), true
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, false
			}
			return strconv.FormatFloat(f, 'f', -1, 64), true
		},
		{Boolean, String}: func(v any) (any, bool) {
			return strconv.FormatBool(v.(bool)), true
		},
		{Timestamp, String}: func(v any) (any, bool) {
			return v.(time.Time).Format(time.RFC3339), true
		},
		{Duration, String}: func(v any) (any, bool) {
			return v.(time.Duration).String(), true
		},
	}
}

func isNumeric(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func isInteger(v any) bool {
	_, ok := toInt(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		// Values above MaxInt64 would wrap negative.
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func floatOp(a, b any, op func(x, y float64) float64) (any, error) {
	x, ok1 := toFloat(a)
	y, ok2 := toFloat(b)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%v, %v: %w", a, b, errNotNumeric)
	}
	return op(x, y), nil
}

func intOp(a, b any, op func(x, y int64) int64) (any, error) {
	x, ok1 := toInt(a)
	y, ok2 := toInt(b)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%v, %v: %w", a, b, errNotNumeric)
	}
	return op(x, y), nil
}
