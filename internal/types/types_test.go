package types

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCoerce_NumberFromStrings(t *testing.T) {
	r := NewRegistry()
	got := r.Coerce([]any{"5", "abc", 2, float32(1.5)}, Number)
	want := []any{float64(5), float64(2), float64(1.5)}
	if len(got) != len(want) {
		t.Fatalf("Coerce() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Coerce()[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestCoerce_NoneConvertible(t *testing.T) {
	r := NewRegistry()
	got := r.Coerce([]any{"abc", nil, true}, Number)
	if got == nil {
		t.Fatal("Coerce() returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("Coerce() = %v, want empty", got)
	}
}

func TestCoerce_ToString(t *testing.T) {
	r := NewRegistry()
	for _, tc := range []struct {
		name string
		in   any
		want string
	}{
		{name: "float", in: 2.5, want: "2.5"},
		{name: "whole float", in: float64(3), want: "3"},
		{name: "int64", in: int64(42), want: "42"},
		{name: "bool", in: true, want: "true"},
		{name: "duration", in: 90 * time.Second, want: "1m30s"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.CoerceOne(tc.in, String)
			if !ok {
				t.Fatalf("CoerceOne(%v) failed", tc.in)
			}
			if got != tc.want {
				t.Errorf("CoerceOne(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoerce_IntegerRejectsFraction(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.CoerceOne(2.5, Integer); ok {
		t.Error("2.5 converted to integer, want failure")
	}
	got, ok := r.CoerceOne(float64(4), Integer)
	if !ok || got != int64(4) {
		t.Errorf("CoerceOne(4.0, integer) = %v, %v; want 4, true", got, ok)
	}
}

func TestCoerce_IntegerRange(t *testing.T) {
	r := NewRegistry()
	for _, tc := range []struct {
		name string
		in   any
		want any
		ok   bool
	}{
		{"LargestFloatBelowLimit", float64(1 << 62), int64(1 << 62), true},
		{"FloatAtLimit", 0x1p63, nil, false},
		{"NegativeFloatAtLimit", -0x1p63, int64(math.MinInt64), true},
		{"NegativeFloatPastLimit", -0x1p64, nil, false},
		{"Uint64MaxInt", uint64(math.MaxInt64), int64(math.MaxInt64), true},
		{"Uint64Overflow", uint64(math.MaxUint64), nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.CoerceOne(tc.in, Integer)
			if ok != tc.ok || (ok && got != tc.want) {
				t.Errorf("CoerceOne(%v, integer) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
	if Integer.Accepts(uint64(math.MaxUint64)) {
		t.Error("integer accepts a uint64 above MaxInt64")
	}
}

func TestTypeOf_MostSpecific(t *testing.T) {
	r := NewRegistry()
	for _, tc := range []struct {
		in   any
		want *Type
	}{
		{in: int64(1), want: Integer},
		{in: 1.5, want: Number},
		{in: "x", want: String},
		{in: time.Now(), want: Timestamp},
		{in: time.Second, want: Duration},
		{in: struct{}{}, want: Object},
		{in: nil, want: nil},
	} {
		if got := r.TypeOf(tc.in); got != tc.want {
			t.Errorf("TypeOf(%#v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCommonSuper(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   []*Type
		want *Type
	}{
		{name: "empty", in: nil, want: Object},
		{name: "same", in: []*Type{String, String}, want: String},
		{name: "parent", in: []*Type{Integer, Number}, want: Number},
		{name: "unrelated", in: []*Type{String, Number}, want: Object},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommonSuper(tc.in...); got != tc.want {
				t.Errorf("CommonSuper() = %v, want %v", got, tc.want)
			}
		})
	}
}

type point struct{ x, y int }

func TestRegister_CustomTypeAndConverter(t *testing.T) {
	r := NewRegistry()
	pt, err := r.Register(Spec{
		Name: "point",
		Is:   func(v any) bool { _, ok := v.(point); return ok },
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, plural, ok := r.ParseTypeName("points"); !ok || !plural || got != pt {
		t.Fatalf("ParseTypeName(points) = %v, %v, %v", got, plural, ok)
	}
	if _, err := r.Register(Spec{Name: "Point", Is: pt.is}); !errors.Is(err, ErrTypeExists) {
		t.Fatalf("duplicate Register error = %v, want ErrTypeExists", err)
	}

	if err := r.RegisterConverter(pt, String, func(v any) (any, bool) { return "pt", true }); err != nil {
		t.Fatalf("RegisterConverter: %v", err)
	}
	if got, ok := r.CoerceOne(point{1, 2}, String); !ok || got != "pt" {
		t.Fatalf("CoerceOne(point) = %v, %v", got, ok)
	}

	if err := r.Unregister(pt); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := r.CoerceOne(point{1, 2}, String); ok {
		t.Error("converter survived Unregister")
	}
	if _, _, ok := r.ParseTypeName("point"); ok {
		t.Error("type still resolvable after Unregister")
	}
}

func TestUnregister_Builtin(t *testing.T) {
	r := NewRegistry()
	if err := r.Unregister(Number); !errors.Is(err, ErrBuiltinType) {
		t.Fatalf("Unregister(number) = %v, want ErrBuiltinType", err)
	}
}

func TestArithmetic_Timestamp(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := Timestamp.Arithmetic().Add(base, time.Hour)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !got.(time.Time).Equal(base.Add(time.Hour)) {
		t.Errorf("Add = %v, want %v", got, base.Add(time.Hour))
	}
	if Timestamp.Arithmetic().Delta != Duration {
		t.Errorf("timestamp delta = %v, want duration", Timestamp.Arithmetic().Delta)
	}
}

func TestEqual(t *testing.T) {
	if !Equal(int64(5), float64(5)) {
		t.Error("Equal(5, 5.0) = false")
	}
	if Equal("5", 5) {
		t.Error(`Equal("5", 5) = true`)
	}
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !Equal(a, a.In(time.FixedZone("x", 3600))) {
		t.Error("Equal on same instant in different zones = false")
	}
}

func TestParseChangeMode(t *testing.T) {
	for in, want := range map[string]ChangeMode{
		"set": Set, "ADD": Add, "remove-all": RemoveAll, "remove_all": RemoveAll, "reset": Reset,
	} {
		got, ok := ParseChangeMode(in)
		if !ok || got != want {
			t.Errorf("ParseChangeMode(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseChangeMode("bogus"); ok {
		t.Error("ParseChangeMode(bogus) succeeded")
	}
}
