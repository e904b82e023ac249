// Package access implements field access on structs whose template is not
// known until the access runs. An Access is resolved once against every
// template defining the field name and then applied to concrete structs,
// looking the field up in each struct's own template.
package access

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/types"
)

// FieldFinder returns the fields matching pred, grouped by template.
type FieldFinder interface {
	FieldsMatching(pred func(*model.Field) bool) map[*model.Template][]*model.Field
}

// Candidate is one (template, field) pair an access may apply to.
type Candidate struct {
	Template *model.Template
	Field    *model.Field
}

// Access is a resolved field reference.
type Access struct {
	name       string
	finder     FieldFinder
	coercer    types.Coercer
	candidates []Candidate
}

// Resolve binds name against every template that currently defines it. It
// fails with ErrNoSuchField when none does.
func Resolve(name string, finder FieldFinder, c types.Coercer) (*Access, error) {
	a := &Access{
		name:    strings.ToLower(strings.TrimSpace(name)),
		finder:  finder,
		coercer: c,
	}
	if err := a.Refresh(); err != nil {
		return nil, err
	}
	return a, nil
}

// Refresh re-resolves the access against the current templates.
func (a *Access) Refresh() error {
	matches := a.finder.FieldsMatching(func(f *model.Field) bool { return f.Name() == a.name })
	cands := make([]Candidate, 0, len(matches))
	for t, fs := range matches {
		for _, f := range fs {
			cands = append(cands, Candidate{Template: t, Field: f})
		}
	}
	if len(cands) == 0 {
		return &Error{Op: "resolve", Field: a.name, Code: CodeNoSuchField, Err: ErrNoSuchField}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Template.Name() < cands[j].Template.Name() })
	a.candidates = cands
	return nil
}

// Name returns the lowercase field name.
func (a *Access) Name() string { return a.name }

// Candidates returns the (template, field) pairs ordered by template name.
func (a *Access) Candidates() []Candidate {
	return append([]Candidate(nil), a.candidates...)
}

// ReturnTypes returns the distinct candidate field types.
func (a *Access) ReturnTypes() []*types.Type {
	var out []*types.Type
	seen := make(map[*types.Type]bool)
	for _, c := range a.candidates {
		if t := c.Field.Type(); !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ReturnType is the common supertype of every candidate field type.
func (a *Access) ReturnType() *types.Type {
	return types.CommonSuper(a.ReturnTypes()...)
}

// Single guesses whether the access yields at most one value. It is false
// only when every candidate is multi-valued.
func (a *Access) Single() bool {
	for _, c := range a.candidates {
		if c.Field.Single() {
			return true
		}
	}
	return false
}

// AllConstant reports whether every candidate is constant.
func (a *Access) AllConstant() bool {
	for _, c := range a.candidates {
		if !c.Field.Constant() {
			return false
		}
	}
	return true
}

// AcceptChange checks at binding time whether mode can apply to at least
// one candidate. The error reports why the first candidate refuses.
func (a *Access) AcceptChange(mode types.ChangeMode) error {
	var first *Error
	for _, c := range a.candidates {
		err := allowed(c.Field, mode)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
			first.Template = c.Template.Name()
		}
	}
	if first == nil {
		return nil
	}
	return first
}

func allowed(f *model.Field, mode types.ChangeMode) *Error {
	op := mode.String()
	switch {
	case f.Dynamic():
		return &Error{Op: op, Field: f.Name(), Code: CodeDynamicField, Err: ErrDynamicField}
	case f.Constant() && mode != types.Reset:
		return &Error{Op: op, Field: f.Name(), Code: CodeConstantField, Err: ErrConstantField}
	}
	if f.Single() && (mode == types.Add || mode == types.Remove) {
		t := f.Type()
		if t.Arithmetic() == nil && t.Changer() == nil {
			return &Error{Op: op, Field: f.Name(), Code: CodeUnsupportedChange,
				Err: fmt.Errorf("%w: %s values cannot be added or removed", ErrUnsupportedChange, t.Name())}
		}
	}
	return nil
}

// Get returns the value of the field in s's own template. Dynamic fields
// are evaluated. Values that no candidate type accepts are coerced to the
// return type; if that fails the access reports schema drift.
func (a *Access) Get(ctx *model.EvalContext, s *model.Struct) ([]any, error) {
	f, err := a.field("get", s)
	if err != nil {
		return nil, err
	}
	vals, err := s.Resolve(f, ctx)
	if err != nil {
		return nil, a.errorf("get", s, CodeEvaluation, err)
	}
	rt := a.ReturnType()
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if a.candidateAccepts(v) {
			out = append(out, v)
			continue
		}
		conv := a.coerce([]any{v}, rt)
		if len(conv) != 1 {
			e := a.errorf("get", s, CodeSchemaDrift,
				fmt.Errorf("%w: %v is not %s", ErrSchemaDrift, v, rt.NameFor(a.Single())))
			e.Hint = reloadHint
			return nil, e
		}
		out = append(out, conv[0])
	}
	return out, nil
}

// Result describes an applied change.
type Result struct {
	Values   []any    // values stored after the change
	Ignored  int      // inputs dropped because they could not be converted
	Warnings []string // one entry per dropped input group
}

// Change applies mode with delta to the field of s. On error s is left
// unmodified.
func (a *Access) Change(ctx *model.EvalContext, s *model.Struct, mode types.ChangeMode, delta []any) (Result, error) {
	op := mode.String()
	f, err := a.field(op, s)
	if err != nil {
		return Result{}, err
	}
	if e := allowed(f, mode); e != nil {
		e.Template = s.Template().Name()
		return Result{}, e
	}

	var res Result
	cur := s.Value(f)
	var next []any
	switch mode {
	case types.Reset:
		if err := s.Reset(f, ctx); err != nil {
			return Result{}, a.errorf(op, s, CodeFieldNotFound, err)
		}
		res.Values = s.Value(f)
		return res, nil
	case types.Delete:
		next = []any{}
	case types.Set:
		next, err = a.convert(op, s, f, f.Type(), delta, &res)
		if err != nil {
			return Result{}, err
		}
		if f.Single() && len(next) > 1 {
			return Result{}, a.errorf(op, s, CodeMultipleValues,
				fmt.Errorf("%w: got %d values", ErrMultipleValues, len(next)))
		}
	case types.Add, types.Remove, types.RemoveAll:
		if f.Single() {
			next, err = a.changeSingle(op, s, f, cur, delta, mode, &res)
		} else {
			next, err = a.changeMulti(op, s, f, cur, delta, mode, &res)
		}
		if err != nil {
			return Result{}, err
		}
	default:
		return Result{}, a.errorf(op, s, CodeUnsupportedChange, ErrUnsupportedChange)
	}

	if err := s.SetValue(f, next); err != nil {
		return Result{}, a.errorf(op, s, CodeMultipleValues, err)
	}
	res.Values = s.Value(f)
	return res, nil
}

func (a *Access) changeMulti(op string, s *model.Struct, f *model.Field, cur, delta []any, mode types.ChangeMode, res *Result) ([]any, error) {
	conv, err := a.convert(op, s, f, f.Type(), delta, res)
	if err != nil {
		return nil, err
	}
	switch mode {
	case types.Add:
		return append(cur, conv...), nil
	case types.Remove:
		for _, d := range conv {
			for i, v := range cur {
				if types.Equal(v, d) {
					cur = append(cur[:i], cur[i+1:]...)
					break
				}
			}
		}
		return cur, nil
	default:
		return removeAll(cur, conv), nil
	}
}

// changeSingle adds to or removes from a single value: first with the
// type's arithmetic, then with its changer. remove all without either
// clears the value when it equals one of the inputs.
func (a *Access) changeSingle(op string, s *model.Struct, f *model.Field, cur, delta []any, mode types.ChangeMode, res *Result) ([]any, error) {
	t := f.Type()
	if ar := t.Arithmetic(); ar != nil && mode != types.RemoveAll {
		if out, ok := a.arithmetic(op, s, f, ar, cur, delta, mode, res); ok {
			return out, nil
		}
	}
	if ch := t.Changer(); ch != nil {
		out, err := ch(append([]any(nil), cur...), delta, mode)
		if err == nil {
			out = a.coerce(out, t)
			if len(out) > 1 {
				return nil, a.errorf(op, s, CodeMultipleValues,
					fmt.Errorf("%w: %s handler produced %d values", ErrMultipleValues, t.Name(), len(out)))
			}
			return out, nil
		}
		slog.Debug("access: type change handler failed", "type", t.Name(), "mode", op, "err", err)
	}
	if mode == types.RemoveAll {
		conv, err := a.convert(op, s, f, t, delta, res)
		if err != nil {
			return nil, err
		}
		return removeAll(cur, conv), nil
	}
	verb := "add %v to"
	if mode == types.Remove {
		verb = "remove %v from"
	}
	return nil, a.errorf(op, s, CodeUnsupportedChange,
		fmt.Errorf("%w: cannot "+verb+" %s", ErrUnsupportedChange, delta, f))
}

// arithmetic folds the converted inputs into the current value. It reports
// false when no input converts to the delta type, the field is empty and
// the type has no zero, or an operation fails.
func (a *Access) arithmetic(op string, s *model.Struct, f *model.Field, ar *types.Arithmetic, cur, delta []any, mode types.ChangeMode, res *Result) ([]any, bool) {
	dt := ar.Delta
	if dt == nil {
		dt = f.Type()
	}
	ds := a.coerce(delta, dt)
	if len(ds) == 0 {
		return nil, false
	}
	var acc any
	switch {
	case len(cur) > 0:
		acc = cur[0]
	case ar.Zero != nil:
		acc = ar.Zero()
	default:
		return nil, false
	}
	fn := ar.Add
	if mode == types.Remove {
		fn = ar.Subtract
	}
	for _, d := range ds {
		next, err := fn(acc, d)
		if err != nil {
			slog.Debug("access: arithmetic failed", "type", f.Type().Name(), "mode", op, "err", err)
			return nil, false
		}
		acc = next
	}
	if !f.Type().Accepts(acc) {
		return nil, false
	}
	a.dropped(op, s, f, len(delta)-len(ds), dt, res)
	return []any{f.Type().Normalize(acc)}, true
}

// convert coerces delta to t, recording dropped inputs. It fails when
// inputs were supplied but none converted.
func (a *Access) convert(op string, s *model.Struct, f *model.Field, t *types.Type, delta []any, res *Result) ([]any, error) {
	conv := a.coerce(delta, t)
	if len(delta) > 0 && len(conv) == 0 {
		return nil, a.errorf(op, s, CodeInvalidType,
			fmt.Errorf("%w: none of %v is %s", ErrInvalidType, delta, t.Name()))
	}
	a.dropped(op, s, f, len(delta)-len(conv), t, res)
	return conv, nil
}

func (a *Access) dropped(op string, s *model.Struct, f *model.Field, n int, t *types.Type, res *Result) {
	if n <= 0 {
		return
	}
	msg := fmt.Sprintf("%d value(s) ignored: not convertible to %s", n, t.Name())
	res.Ignored += n
	res.Warnings = append(res.Warnings, msg)
	slog.Warn("access: ignored values", "op", op, "field", f.Name(),
		"template", s.Template().Name(), "ignored", n, "type", t.Name())
}

func removeAll(cur, del []any) []any {
	out := cur[:0]
	for _, v := range cur {
		keep := true
		for _, d := range del {
			if types.Equal(v, d) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, v)
		}
	}
	return out
}

func (a *Access) field(op string, s *model.Struct) (*model.Field, error) {
	f := s.Field(a.name)
	if f == nil {
		e := a.errorf(op, s, CodeFieldNotFound, ErrFieldNotFound)
		e.Hint = reloadHint
		return nil, e
	}
	return f, nil
}

func (a *Access) candidateAccepts(v any) bool {
	for _, c := range a.candidates {
		if c.Field.Type().Accepts(v) {
			return true
		}
	}
	return false
}

func (a *Access) coerce(vals []any, t *types.Type) []any {
	if a.coercer == nil {
		out := make([]any, 0, len(vals))
		for _, v := range vals {
			if t.Accepts(v) {
				out = append(out, t.Normalize(v))
			}
		}
		return out
	}
	return a.coercer.Coerce(vals, t)
}

func (a *Access) errorf(op string, s *model.Struct, code string, err error) *Error {
	return &Error{Op: op, Field: a.name, Template: s.Template().Name(), Code: code, Err: err}
}
