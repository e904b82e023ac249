package script

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/types"
)

func TestRewriteArrows(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"this->x", "this.x"},
		{"this->x + this->y", "this.x + this.y"},
		{`"a->b" + this->c`, `"a->b" + this.c`},
		{`'it\'s->' + this->c`, `'it\'s->' + this.c`},
		{"x - 1 > 0", "x - 1 > 0"},
	} {
		if got := rewriteArrows(tc.in); got != tc.want {
			t.Errorf("rewriteArrows(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEvaluate_Results(t *testing.T) {
	p := NewParser(types.NewRegistry())
	for _, tc := range []struct {
		src  string
		want *types.Type
		out  []any
	}{
		{"1 + 2", types.Number, []any{3.0}},
		{`"5"`, types.Number, []any{5.0}},
		{`["1", "x", 3]`, types.Integer, []any{int64(1), int64(3)}},
		{"nil", types.String, []any{}},
		{"sqrt(16)", types.Number, []any{4.0}},
		{"pow(2, 10)", types.Integer, []any{int64(1024)}},
		{`concat("a", 1, true)`, types.String, []any{"a1true"}},
		{`upper("abc")`, types.String, []any{"ABC"}},
		{"2 ^ 3", nil, []any{8.0}},
	} {
		e, err := p.ParseExpression(tc.src, tc.want)
		if err != nil {
			t.Fatalf("ParseExpression(%q): %v", tc.src, err)
		}
		got, err := e.Evaluate(nil)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tc.src, err)
		}
		if len(got) != len(tc.out) {
			t.Fatalf("Evaluate(%q) = %v, want %v", tc.src, got, tc.out)
		}
		for i := range got {
			if !types.Equal(got[i], tc.out[i]) {
				t.Errorf("Evaluate(%q)[%d] = %v (%T), want %v", tc.src, i, got[i], got[i], tc.out[i])
			}
		}
		if e.String() != tc.src {
			t.Errorf("String() = %q, want %q", e.String(), tc.src)
		}
	}
}

func TestParseExpression_Errors(t *testing.T) {
	p := NewParser(nil)
	if _, err := p.ParseExpression("  ", types.Number); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty source error = %v, want ErrEmpty", err)
	}
	if _, err := p.ParseExpression("1 +", types.Number); err == nil {
		t.Error("malformed source compiled")
	}
	e, err := p.ParseExpression("sqrt(1, 2)", types.Number)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(nil); err == nil {
		t.Error("sqrt(1, 2) evaluated without error")
	}
}

func TestEvaluate_ContextVariables(t *testing.T) {
	p := NewParser(types.NewRegistry())
	e, err := p.ParseExpression(`concat(event, ":", player)`, types.String)
	if err != nil {
		t.Fatal(err)
	}
	ctx := &model.EvalContext{Name: "join", Vars: map[string]any{"player": "ann"}}
	got, err := e.Evaluate(ctx)
	if err != nil || len(got) != 1 || got[0] != "join:ann" {
		t.Fatalf("Evaluate = %v, %v; want [join:ann]", got, err)
	}
}

func vectorTemplate(t *testing.T, p *Parser, lengthSrc string) *model.Template {
	t.Helper()
	mk := func(name string, typ *types.Type, single bool, src string, mods ...model.Modifier) *model.Field {
		f, err := model.NewField(name, typ, single, src, mods...)
		if err != nil {
			t.Fatal(err)
		}
		return f
	}
	tmpl, err := model.NewTemplate("vector2", []*model.Field{
		mk("x", types.Number, true, "0"),
		mk("y", types.Number, true, "0"),
		mk("tags", types.String, false, ""),
		mk("length", types.Number, true, lengthSrc, model.Dynamic),
		mk("label", types.String, true, `concat("len=", this->length, " tags=", len(this->tags))`, model.Dynamic),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tmpl.ParseFields(p); err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func TestDynamicFields_ThisBinding(t *testing.T) {
	reg := types.NewRegistry()
	p := NewParser(reg)
	tmpl := vectorTemplate(t, p, "sqrt(this->x^2 + this->y^2)")
	s, err := model.NewStruct("st-1", tmpl, nil, map[string]model.Expression{
		"x":    model.Literal(3.0),
		"y":    model.Literal(4.0),
		"tags": model.Literal("a", "b"),
	}, reg)
	if err != nil {
		t.Fatal(err)
	}

	length, err := s.Resolve(tmpl.Field("length"), nil)
	if err != nil || len(length) != 1 || length[0] != 5.0 {
		t.Fatalf("length = %v, %v; want [5]", length, err)
	}
	// label refers to the dynamic length, computed on demand.
	label, err := s.Resolve(tmpl.Field("label"), nil)
	if err != nil || len(label) != 1 || label[0] != "len=5 tags=2" {
		t.Fatalf("label = %v, %v", label, err)
	}

	_ = s.SetValue(tmpl.Field("x"), []any{6.0})
	_ = s.SetValue(tmpl.Field("y"), []any{8.0})
	length, _ = s.Resolve(tmpl.Field("length"), nil)
	if len(length) != 1 || length[0] != 10.0 {
		t.Fatalf("length after update = %v, want [10]", length)
	}
}

func TestDynamicFields_Cycle(t *testing.T) {
	reg := types.NewRegistry()
	p := NewParser(reg)
	tmpl := vectorTemplate(t, p, "this->label == nil ? 0 : 1")
	s, err := model.NewStruct("st-1", tmpl, nil, nil, reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(tmpl.Field("length"), nil); !errors.Is(err, model.ErrCyclicDynamic) {
		t.Fatalf("Resolve error = %v, want ErrCyclicDynamic", err)
	}
}
