package model

import (
	"errors"
	"math"
	"testing"

	"github.com/alfredjeanlab/structs/internal/types"
)

func newStruct(t *testing.T, tmpl *Template, initial map[string]Expression) *Struct {
	t.Helper()
	s, err := NewStruct("st-test", tmpl, Background(), initial, types.NewRegistry())
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func checkKeys(t *testing.T, s *Struct, tmpl *Template) {
	t.Helper()
	keys := s.Keys()
	if len(keys) != tmpl.Len() {
		t.Fatalf("struct holds %d keys, template has %d fields", len(keys), tmpl.Len())
	}
	for _, k := range keys {
		f := tmpl.Field(k.Name)
		if f == nil || f.Key() != k {
			t.Errorf("key %+v does not match template field %v", k, f)
		}
		if k.Single && len(s.Value(f)) > 1 {
			t.Errorf("single field %s holds %d values", k.Name, len(s.Value(f)))
		}
	}
}

func TestNewStruct_KeysMatchTemplate(t *testing.T) {
	tmpl := mustTemplate(t, "message",
		mustField(t, "sender", types.String, true, ""),
		mustField(t, "attachments", types.Object, false, ""),
		mustField(t, "count", types.Number, true, ""),
	)
	s := newStruct(t, tmpl, nil)
	checkKeys(t, s, tmpl)
	for _, f := range tmpl.Fields() {
		if v := s.Value(f); v == nil || len(v) != 0 {
			t.Errorf("%s = %#v, want empty", f.Name(), v)
		}
	}
}

func TestNewStruct_InitialValues(t *testing.T) {
	x, _ := NewFieldWithDefault("x", types.Number, true, Literal(1.0))
	y, _ := NewFieldWithDefault("y", types.Number, true, Literal(2.0))
	z, _ := NewFieldWithDefault("z", types.Number, true, Literal(3.0))
	tmpl := mustTemplate(t, "vec", x, y, z)

	s := newStruct(t, tmpl, map[string]Expression{
		"X": Literal("10"),  // coerced
		"y": Literal("abc"), // not convertible, falls back to default
	})
	checkKeys(t, s, tmpl)
	for name, want := range map[string]float64{"x": 10, "y": 2, "z": 3} {
		got := s.ValueOf(name)
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s = %v, want [%v]", name, got, want)
		}
	}
}

func TestNewStruct_RejectsUnknownAndDynamicInitialValues(t *testing.T) {
	length, _ := NewFieldWithDefault("length", types.Number, true, Literal(0.0), Dynamic)
	tmpl := mustTemplate(t, "vec", mustField(t, "x", types.Number, true, ""), length)

	_, err := NewStruct("", tmpl, nil, map[string]Expression{"nope": Literal(1)}, nil)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v, want ErrUnknownField", err)
	}
	_, err = NewStruct("", tmpl, nil, map[string]Expression{"length": Literal(1)}, nil)
	if !errors.Is(err, ErrInitialDynamic) {
		t.Errorf("dynamic field error = %v, want ErrInitialDynamic", err)
	}
}

func TestStruct_ResolveDynamic(t *testing.T) {
	x := mustField(t, "x", types.Number, true, "")
	y := mustField(t, "y", types.Number, true, "")
	length, _ := NewFieldWithDefault("length", types.Number, true, ExprFunc(func(ctx *EvalContext) ([]any, error) {
		sx := ctx.Self.ValueOf("x")
		sy := ctx.Self.ValueOf("y")
		if len(sx) == 0 || len(sy) == 0 {
			return nil, nil
		}
		return []any{math.Hypot(sx[0].(float64), sy[0].(float64))}, nil
	}), Dynamic)
	tmpl := mustTemplate(t, "vec", x, y, length)
	s := newStruct(t, tmpl, nil)

	if err := s.SetValue(x, []any{3.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetValue(y, []any{4.0}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resolve(length, nil)
	if err != nil || len(got) != 1 || got[0] != 5.0 {
		t.Fatalf("Resolve(length) = %v, %v; want [5]", got, err)
	}
	if err := s.SetValue(x, []any{6.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetValue(y, []any{8.0}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Resolve(length, nil)
	if len(got) != 1 || got[0] != 10.0 {
		t.Fatalf("Resolve(length) after update = %v, want [10]", got)
	}
}

func TestStruct_ResolveCycle(t *testing.T) {
	var a *Field
	a, _ = NewFieldWithDefault("a", types.Number, true, ExprFunc(func(ctx *EvalContext) ([]any, error) {
		return ctx.Self.Resolve(a, ctx)
	}), Dynamic)
	tmpl := mustTemplate(t, "loop", a)
	s := newStruct(t, tmpl, nil)
	if _, err := s.Resolve(a, nil); !errors.Is(err, ErrCyclicDynamic) {
		t.Fatalf("Resolve error = %v, want ErrCyclicDynamic", err)
	}
}

func TestStruct_SetValueChecks(t *testing.T) {
	x := mustField(t, "x", types.Number, true, "")
	tmpl := mustTemplate(t, "p", x)
	s := newStruct(t, tmpl, nil)

	if err := s.SetValue(x, []any{1.0, 2.0}); !errors.Is(err, ErrTooManyValues) {
		t.Errorf("SetValue(two values) = %v, want ErrTooManyValues", err)
	}
	stale := mustField(t, "x", types.String, true, "")
	if err := s.SetValue(stale, []any{"a"}); !errors.Is(err, ErrFieldNotHeld) {
		t.Errorf("SetValue(stale field) = %v, want ErrFieldNotHeld", err)
	}
	if err := s.SetValue(x, nil); err != nil {
		t.Fatal(err)
	}
	if v := s.Value(x); v == nil || len(v) != 0 {
		t.Errorf("after SetValue(nil) value = %#v, want empty", v)
	}
	checkKeys(t, s, tmpl)
}

func TestStruct_IsOfAndClone(t *testing.T) {
	x := mustField(t, "x", types.Number, false, "")
	tmpl := mustTemplate(t, "Bag", x)
	s := newStruct(t, tmpl, nil)
	_ = s.SetValue(x, []any{1.0, 2.0})

	if !s.IsOf("BAG") || s.IsOf("other") {
		t.Error("IsOf mismatch")
	}
	c := s.Clone("st-copy")
	_ = c.SetValue(x, []any{9.0})
	if got := s.Value(x); len(got) != 2 {
		t.Errorf("clone shares value arrays with original: %v", got)
	}
	if c.ID() != "st-copy" || c.Template() != tmpl {
		t.Errorf("clone = %s/%v", c.ID(), c.Template())
	}
}

func TestMigrate_SameTemplateIsNoop(t *testing.T) {
	x := mustField(t, "x", types.Number, true, "")
	tmpl := mustTemplate(t, "p", x)
	s := newStruct(t, tmpl, nil)
	_ = s.SetValue(x, []any{7.0})
	if s.Migrate(tmpl) {
		t.Error("Migrate(same) reported destructive")
	}
	if got := s.Value(x); len(got) != 1 || got[0] != 7.0 {
		t.Errorf("value = %v, want [7]", got)
	}
}

func TestMigrate_DynamicStoredSwitch(t *testing.T) {
	computed, _ := NewFieldWithDefault("n", types.Number, true, Literal(4.0), Dynamic)
	stored, _ := NewFieldWithDefault("n", types.Number, true, Literal(9.0))
	dyn := mustTemplate(t, "p", computed)
	plain := mustTemplate(t, "p", stored)

	s := newStruct(t, dyn, nil)
	if !s.Migrate(plain) {
		t.Error("dynamic -> stored reported non-destructive")
	}
	if got := s.ValueOf("n"); len(got) != 1 || got[0] != 9.0 {
		t.Errorf("after dynamic -> stored n = %v, want [9]", got)
	}

	_ = s.SetValue(stored, []any{5.0})
	if !s.Migrate(mustTemplate(t, "p", computed)) {
		t.Error("stored -> dynamic reported non-destructive")
	}
	if got := s.ValueOf("n"); len(got) != 0 {
		t.Errorf("after stored -> dynamic stored n = %v, want []", got)
	}
}

func TestMigrate(t *testing.T) {
	t1 := mustTemplate(t, "p",
		mustField(t, "x", types.Number, true, ""),
		mustField(t, "y", types.Number, true, ""),
	)
	ydef, _ := NewFieldWithDefault("y", types.String, true, Literal("fresh"))
	zdef, _ := NewFieldWithDefault("z", types.Number, true, Literal(0.0))

	for _, tc := range []struct {
		name            string
		next            *Template
		wantDestructive bool
		want            map[string][]any
	}{
		{
			name:            "identical fields",
			next:            mustTemplate(t, "p", mustField(t, "x", types.Number, true, ""), mustField(t, "y", types.Number, true, "")),
			wantDestructive: false,
			want:            map[string][]any{"x": {1.0}, "y": {2.0}},
		},
		{
			name:            "type change",
			next:            mustTemplate(t, "p", mustField(t, "x", types.Number, true, ""), ydef),
			wantDestructive: true,
			want:            map[string][]any{"x": {1.0}, "y": {"fresh"}},
		},
		{
			name:            "arity change",
			next:            mustTemplate(t, "p", mustField(t, "x", types.Number, false, ""), mustField(t, "y", types.Number, true, "")),
			wantDestructive: true,
			want:            map[string][]any{"x": {}, "y": {2.0}},
		},
		{
			name:            "field removed",
			next:            mustTemplate(t, "p", mustField(t, "x", types.Number, true, "")),
			wantDestructive: true,
			want:            map[string][]any{"x": {1.0}},
		},
		{
			name:            "field added",
			next:            mustTemplate(t, "p", mustField(t, "x", types.Number, true, ""), mustField(t, "y", types.Number, true, ""), zdef),
			wantDestructive: false,
			want:            map[string][]any{"x": {1.0}, "y": {2.0}, "z": {0.0}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newStruct(t, t1, map[string]Expression{"x": Literal(1.0), "y": Literal(2.0)})
			if got := s.Migrate(tc.next); got != tc.wantDestructive {
				t.Errorf("Migrate() destructive = %v, want %v", got, tc.wantDestructive)
			}
			if s.Template() != tc.next {
				t.Fatal("template not replaced")
			}
			checkKeys(t, s, tc.next)
			for name, want := range tc.want {
				got := s.ValueOf(name)
				if len(got) != len(want) {
					t.Errorf("%s = %v, want %v", name, got, want)
					continue
				}
				for i := range want {
					if got[i] != want[i] {
						t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
					}
				}
			}
		})
	}
}
