package model

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alfredjeanlab/structs/internal/types"
)

// Struct is a live instance of a template. Its value map always holds
// exactly one entry per field of its current template; absent values are
// empty arrays, never nil.
type Struct struct {
	id       string
	template *Template
	values   map[FieldKey][]any
}

// NewStruct builds a struct of template t. Initial values, keyed by field
// name, are evaluated in ctx and coerced to the field type; a field whose
// initial value is missing, fails to evaluate or cannot be coerced gets its
// default instead. Unknown or dynamic fields in initial are rejected.
func NewStruct(id string, t *Template, ctx *EvalContext, initial map[string]Expression, c types.Coercer) (*Struct, error) {
	if t == nil {
		return nil, fmt.Errorf("creating struct: nil template")
	}
	ve := ValidationError{Template: t.name}
	for name := range initial {
		f := t.Field(name)
		switch {
		case f == nil:
			ve.Add(name, fmt.Errorf("field '%s' does not exist in %s: %w", name, t, ErrUnknownField))
		case f.Dynamic():
			ve.Add(name, fmt.Errorf("%s: %w", f, ErrInitialDynamic))
		}
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	byName := make(map[string]Expression, len(initial))
	for name, e := range initial {
		byName[normalizeName(name)] = e
	}

	s := &Struct{id: id, template: t, values: make(map[FieldKey][]any, t.Len())}
	for _, f := range t.order {
		vals, ok := s.initialValue(f, ctx, byName[f.name], c)
		if !ok {
			vals = f.initial(ctx)
		}
		s.values[f.Key()] = vals
	}
	return s, nil
}

func (s *Struct) initialValue(f *Field, ctx *EvalContext, e Expression, c types.Coercer) ([]any, bool) {
	if e == nil {
		return nil, false
	}
	vals, err := e.Evaluate(ctx)
	if err != nil {
		slog.Warn("struct: initial value failed, using default",
			"template", s.template.name, "field", f.name, "err", err)
		return nil, false
	}
	if c != nil && len(vals) > 0 {
		conv := c.Coerce(vals, f.typ)
		if len(conv) == 0 {
			slog.Warn("struct: initial value has wrong type, using default",
				"template", s.template.name, "field", f.name, "type", f.typ.Name())
			return nil, false
		}
		vals = conv
	}
	if vals == nil {
		vals = []any{}
	}
	if f.single && len(vals) > 1 {
		slog.Warn("struct: single field given multiple initial values, keeping the first",
			"template", s.template.name, "field", f.name, "count", len(vals))
		vals = vals[:1]
	}
	return vals, true
}

// ID returns the struct's printable identifier.
func (s *Struct) ID() string { return s.id }

// Template returns the struct's current template.
func (s *Struct) Template() *Template { return s.template }

// Field returns the field with the given name from the current template.
func (s *Struct) Field(name string) *Field { return s.template.Field(name) }

// IsOf reports whether the struct was made from the named template.
func (s *Struct) IsOf(templateName string) bool {
	return strings.EqualFold(s.template.name, strings.TrimSpace(templateName))
}

// Value returns a copy of the stored values for f, or nil if the struct does
// not hold f. Dynamic fields store nothing; use Resolve to compute them.
func (s *Struct) Value(f *Field) []any {
	vals, ok := s.values[f.Key()]
	if !ok {
		return nil
	}
	return append([]any{}, vals...)
}

// ValueOf returns the stored values of the named field.
func (s *Struct) ValueOf(name string) []any {
	f := s.Field(name)
	if f == nil {
		return nil
	}
	return s.Value(f)
}

// Resolve returns the value of f, evaluating dynamic fields with `this`
// bound to s.
func (s *Struct) Resolve(f *Field, ctx *EvalContext) ([]any, error) {
	if !s.holds(f) {
		return nil, fmt.Errorf("%s of %s: %w", f, s, ErrFieldNotHeld)
	}
	if !f.Dynamic() {
		return s.Value(f), nil
	}
	child := ctx.Bind(s)
	if !child.enter(s, f.name) {
		return nil, fmt.Errorf("%s of %s: %w", f, s, ErrCyclicDynamic)
	}
	defer child.leave(s, f.name)
	return f.EvalDefault(child)
}

func (s *Struct) holds(f *Field) bool {
	if f == nil {
		return false
	}
	_, ok := s.values[f.Key()]
	return ok
}

// SetValue replaces the values of f. A nil slice stores an empty array.
func (s *Struct) SetValue(f *Field, vals []any) error {
	if !s.holds(f) {
		return fmt.Errorf("%s of %s: %w", f, s, ErrFieldNotHeld)
	}
	if f.single && len(vals) > 1 {
		return fmt.Errorf("%s of %s: %w", f, s, ErrTooManyValues)
	}
	s.values[f.Key()] = append([]any{}, vals...)
	return nil
}

// Reset restores the default value of f, evaluated in ctx.
func (s *Struct) Reset(f *Field, ctx *EvalContext) error {
	if !s.holds(f) {
		return fmt.Errorf("%s of %s: %w", f, s, ErrFieldNotHeld)
	}
	s.values[f.Key()] = f.initial(ctx)
	return nil
}

// Keys returns the keys of the value map ordered by field name.
func (s *Struct) Keys() []FieldKey {
	keys := make([]FieldKey, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// Snapshot returns every field's value by name, computing dynamic fields in
// ctx. Dynamic fields that fail to evaluate are reported as empty.
func (s *Struct) Snapshot(ctx *EvalContext) map[string][]any {
	out := make(map[string][]any, len(s.values))
	for _, f := range s.template.order {
		vals, err := s.Resolve(f, ctx)
		if err != nil {
			slog.Debug("struct: snapshot skipped field", "field", f.name, "err", err)
			vals = []any{}
		}
		out[f.name] = vals
	}
	return out
}

// Clone returns a copy of s with its own value arrays. The values
// themselves are shared.
func (s *Struct) Clone(id string) *Struct {
	c := &Struct{id: id, template: s.template, values: make(map[FieldKey][]any, len(s.values))}
	for k, v := range s.values {
		c.values[k] = append([]any{}, v...)
	}
	return c
}

// Migrate rebinds the struct to newTemplate, keeping the values of fields
// whose structural key is unchanged. Fields that disappear are dropped.
// Fields whose type or arity changed, or that switched between dynamic and
// stored, get their new default. Both cases make the migration destructive.
// New fields get their default without being destructive.
func (s *Struct) Migrate(newTemplate *Template) bool {
	if newTemplate == s.template {
		return false
	}
	destructive := false
	for k := range s.values {
		if !newTemplate.HasField(k.Name) {
			delete(s.values, k)
			destructive = true
		}
	}
	ctx := Background()
	for _, nf := range newTemplate.order {
		old := s.template.Field(nf.name)
		switch {
		case old == nil:
			s.values[nf.Key()] = nf.initial(ctx)
		case old.Key() == nf.Key() && old.Dynamic() != nf.Dynamic():
			s.values[nf.Key()] = nf.initial(ctx)
			destructive = true
		case old.Key() == nf.Key():
			if _, ok := s.values[nf.Key()]; !ok {
				s.values[nf.Key()] = nf.initial(ctx)
			}
		default:
			delete(s.values, old.Key())
			s.values[nf.Key()] = nf.initial(ctx)
			destructive = true
		}
	}
	s.template = newTemplate
	return destructive
}

func (s *Struct) String() string {
	return s.template.name + " struct"
}
