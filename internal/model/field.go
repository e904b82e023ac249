package model

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alfredjeanlab/structs/internal/types"
)

// Modifier is a bit set of field modifiers.
type Modifier uint8

const (
	// Constant fields accept no writes after struct creation.
	Constant Modifier = 1 << iota
	// Dynamic fields re-evaluate their default on every read. Dynamic
	// implies Constant.
	Dynamic
)

func (m Modifier) String() string {
	var parts []string
	if m&Constant != 0 {
		parts = append(parts, "constant")
	}
	if m&Dynamic != 0 {
		parts = append(parts, "dynamic")
	}
	return strings.Join(parts, " ")
}

// FieldKey is the structural identity of a field: two fields with the same
// key hold interchangeable values.
type FieldKey struct {
	Name   string
	Type   *types.Type
	Single bool
}

// Field is one typed slot of a template. Fields are shared by every struct
// of the same template generation and are immutable once their default has
// been parsed.
type Field struct {
	name       string
	typ        *types.Type
	single     bool
	mods       Modifier
	defaultSrc string
	def        Expression
	parsed     bool
}

var (
	internMu   sync.Mutex
	internPool = map[string]string{}
)

// normalizeName lowercases and interns a field or template name.
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	internMu.Lock()
	defer internMu.Unlock()
	if v, ok := internPool[s]; ok {
		return v
	}
	internPool[s] = s
	return s
}

// NewField creates a field whose default is given as expression source to be
// resolved later by ParseDefault. An empty defaultSrc means no explicit
// default; the type's implicit default is used if it has one.
func NewField(name string, typ *types.Type, single bool, defaultSrc string, mods ...Modifier) (*Field, error) {
	f, err := newField(name, typ, single, mods)
	if err != nil {
		return nil, err
	}
	f.defaultSrc = strings.TrimSpace(defaultSrc)
	if f.defaultSrc == "" {
		if f.Dynamic() {
			return nil, fmt.Errorf("field %q: %w", f.name, ErrDynamicWithoutDefault)
		}
		if typ.HasDefault() {
			f.def = typeDefault{typ}
		}
		f.parsed = true
	}
	return f, nil
}

// NewFieldWithDefault creates a field with an already resolved default
// expression. def may be nil for fields without a default.
func NewFieldWithDefault(name string, typ *types.Type, single bool, def Expression, mods ...Modifier) (*Field, error) {
	f, err := newField(name, typ, single, mods)
	if err != nil {
		return nil, err
	}
	if def == nil {
		if f.Dynamic() {
			return nil, fmt.Errorf("field %q: %w", f.name, ErrDynamicWithoutDefault)
		}
		if typ.HasDefault() {
			def = typeDefault{typ}
		}
	}
	f.def = def
	f.parsed = true
	return f, nil
}

func newField(name string, typ *types.Type, single bool, mods []Modifier) (*Field, error) {
	n := normalizeName(name)
	if n == "" {
		return nil, fmt.Errorf("field: %w", ErrEmptyName)
	}
	if typ == nil {
		return nil, fmt.Errorf("field %q: %w", n, types.ErrUnknownType)
	}
	var m Modifier
	for _, mod := range mods {
		m |= mod
	}
	if m&Dynamic != 0 {
		m |= Constant
	}
	return &Field{name: n, typ: typ, single: single, mods: m}, nil
}

// ParseDefault resolves the field's default expression. It runs at most
// once; on failure the field stays usable with an empty default.
func (f *Field) ParseDefault(p ExprParser) error {
	if f.parsed {
		return nil
	}
	f.parsed = true
	if p == nil {
		return fmt.Errorf("%s: %w", f, ErrNoParser)
	}
	e, err := p.ParseExpression(f.defaultSrc, f.typ)
	if err != nil {
		return fmt.Errorf("%w for %s: '%s': %w", ErrInvalidDefault, f, f.defaultSrc, err)
	}
	f.def = e
	return nil
}

// EvalDefault evaluates the default expression. The result is never nil and
// holds at most one value for single fields.
func (f *Field) EvalDefault(ctx *EvalContext) ([]any, error) {
	if f.def == nil {
		return []any{}, nil
	}
	vals, err := f.def.Evaluate(ctx)
	if err != nil {
		return []any{}, fmt.Errorf("evaluating default of %s: %w", f, err)
	}
	if vals == nil {
		return []any{}, nil
	}
	if f.single && len(vals) > 1 {
		vals = vals[:1]
	}
	return vals, nil
}

// DefaultValue evaluates the default expression, logging and returning an
// empty array on failure.
func (f *Field) DefaultValue(ctx *EvalContext) []any {
	vals, err := f.EvalDefault(ctx)
	if err != nil {
		slog.Warn("field: default evaluation failed", "field", f.name, "err", err)
	}
	return vals
}

// initial is the value a struct stores for f when it is created or migrated.
// Dynamic fields store nothing; they are computed on read.
func (f *Field) initial(ctx *EvalContext) []any {
	if f.Dynamic() {
		return []any{}
	}
	return f.DefaultValue(ctx)
}

// Name returns the lowercase field name.
func (f *Field) Name() string { return f.name }

// Type returns the field's value type.
func (f *Field) Type() *types.Type { return f.typ }

// Single reports whether the field holds at most one value.
func (f *Field) Single() bool { return f.single }

// Modifiers returns the field's modifier set.
func (f *Field) Modifiers() Modifier { return f.mods }

// Constant reports whether the field rejects writes.
func (f *Field) Constant() bool { return f.mods&Constant != 0 }

// Dynamic reports whether the field is recomputed on every read.
func (f *Field) Dynamic() bool { return f.mods&Dynamic != 0 }

// DefaultSource returns the unparsed default expression.
func (f *Field) DefaultSource() string { return f.defaultSrc }

// HasDefault reports whether the field has a resolved default.
func (f *Field) HasDefault() bool { return f.def != nil }

// Key returns the structural identity of the field.
func (f *Field) Key() FieldKey {
	return FieldKey{Name: f.name, Type: f.typ, Single: f.single}
}

// Equal reports whether two fields are structurally the same.
func (f *Field) Equal(o *Field) bool {
	return o != nil && f.Key() == o.Key()
}

func (f *Field) String() string {
	var b strings.Builder
	if f.Constant() && !f.Dynamic() {
		b.WriteString("constant ")
	}
	if f.Dynamic() {
		b.WriteString("dynamic ")
	}
	fmt.Fprintf(&b, "field '%s' (%s)", f.name, f.typ.NameFor(f.single))
	return b.String()
}
