package model

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/structs/internal/types"
)

// stubParser resolves sources from a fixed table.
type stubParser map[string]Expression

func (p stubParser) ParseExpression(src string, want *types.Type) (Expression, error) {
	if e, ok := p[src]; ok {
		return e, nil
	}
	return nil, errors.New("cannot understand " + src)
}

func mustField(t *testing.T, name string, typ *types.Type, single bool, src string, mods ...Modifier) *Field {
	t.Helper()
	f, err := NewField(name, typ, single, src, mods...)
	if err != nil {
		t.Fatalf("NewField(%q): %v", name, err)
	}
	return f
}

func TestNewField_NormalizesName(t *testing.T) {
	f := mustField(t, "  Player Name ", types.String, true, "")
	if f.Name() != "player name" {
		t.Errorf("Name() = %q, want %q", f.Name(), "player name")
	}
}

func TestNewField_DynamicImpliesConstant(t *testing.T) {
	f := mustField(t, "length", types.Number, true, "1", Dynamic)
	if !f.Constant() || !f.Dynamic() {
		t.Errorf("modifiers = %v, want constant dynamic", f.Modifiers())
	}
}

func TestNewField_DynamicRequiresDefault(t *testing.T) {
	_, err := NewField("length", types.Number, true, "", Dynamic)
	if !errors.Is(err, ErrDynamicWithoutDefault) {
		t.Fatalf("NewField error = %v, want ErrDynamicWithoutDefault", err)
	}
	_, err = NewFieldWithDefault("length", types.Number, true, nil, Dynamic)
	if !errors.Is(err, ErrDynamicWithoutDefault) {
		t.Fatalf("NewFieldWithDefault error = %v, want ErrDynamicWithoutDefault", err)
	}
}

func TestNewField_EmptyName(t *testing.T) {
	if _, err := NewField("  ", types.String, true, ""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("error = %v, want ErrEmptyName", err)
	}
}

func TestField_DefaultValueWithoutDefault(t *testing.T) {
	f := mustField(t, "x", types.Number, true, "")
	got := f.DefaultValue(Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("DefaultValue() = %#v, want empty non-nil", got)
	}
}

func TestField_ParseDefault(t *testing.T) {
	f := mustField(t, "rank", types.String, true, `"Member"`)
	if f.HasDefault() {
		t.Fatal("default resolved before ParseDefault")
	}
	p := stubParser{`"Member"`: Literal("Member")}
	if err := f.ParseDefault(p); err != nil {
		t.Fatalf("ParseDefault: %v", err)
	}
	got := f.DefaultValue(nil)
	if len(got) != 1 || got[0] != "Member" {
		t.Errorf("DefaultValue() = %v, want [Member]", got)
	}
}

func TestField_ParseDefaultFailureLeavesEmptyDefault(t *testing.T) {
	f := mustField(t, "rank", types.String, true, "garbage(")
	err := f.ParseDefault(stubParser{})
	if !errors.Is(err, ErrInvalidDefault) {
		t.Fatalf("ParseDefault error = %v, want ErrInvalidDefault", err)
	}
	if got := f.DefaultValue(nil); len(got) != 0 {
		t.Errorf("DefaultValue() after failure = %v, want empty", got)
	}
	// Resolution happens once.
	if err := f.ParseDefault(stubParser{"garbage(": Literal("x")}); err != nil {
		t.Errorf("second ParseDefault = %v, want nil", err)
	}
	if f.HasDefault() {
		t.Error("second ParseDefault resolved the default")
	}
}

func TestField_SingleDefaultClamped(t *testing.T) {
	f, err := NewFieldWithDefault("x", types.Number, true, Literal(1.0, 2.0))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.DefaultValue(nil); len(got) != 1 {
		t.Errorf("DefaultValue() = %v, want one value", got)
	}
}

func TestField_DefaultValueSwallowsErrors(t *testing.T) {
	f, err := NewFieldWithDefault("x", types.Number, true, ExprFunc(func(*EvalContext) ([]any, error) {
		return nil, errors.New("boom")
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.DefaultValue(nil); got == nil || len(got) != 0 {
		t.Errorf("DefaultValue() = %#v, want empty", got)
	}
	if _, err := f.EvalDefault(nil); err == nil {
		t.Error("EvalDefault() error = nil, want error")
	}
}

func TestField_TypeDefault(t *testing.T) {
	r := types.NewRegistry()
	flag, err := r.Register(types.Spec{
		Name:    "flag",
		Is:      func(v any) bool { _, ok := v.(bool); return ok },
		Default: func() []any { return []any{false} },
	})
	if err != nil {
		t.Fatal(err)
	}
	f := mustField(t, "enabled", flag, true, "")
	if got := f.DefaultValue(nil); len(got) != 1 || got[0] != false {
		t.Errorf("DefaultValue() = %v, want [false]", got)
	}
}

func TestField_Equal(t *testing.T) {
	a := mustField(t, "x", types.Number, true, "")
	for _, tc := range []struct {
		name string
		b    *Field
		want bool
	}{
		{name: "same shape", b: mustField(t, "X", types.Number, true, "5"), want: true},
		{name: "constant ignored", b: mustField(t, "x", types.Number, true, "", Constant), want: true},
		{name: "type differs", b: mustField(t, "x", types.String, true, ""), want: false},
		{name: "arity differs", b: mustField(t, "x", types.Number, false, ""), want: false},
		{name: "name differs", b: mustField(t, "y", types.Number, true, ""), want: false},
		{name: "nil", b: nil, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestField_String(t *testing.T) {
	for _, tc := range []struct {
		f    *Field
		want string
	}{
		{mustField(t, "x", types.Number, true, ""), "field 'x' (number)"},
		{mustField(t, "tags", types.String, false, "", Constant), "constant field 'tags' (strings)"},
		{mustField(t, "len", types.Number, true, "1", Dynamic), "dynamic field 'len' (number)"},
	} {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
