// Package types describes the host-level value types that template fields
// are declared with, and the registry that converts values between them.
//
// A *Type is an opaque descriptor compared by identity. Built-in types are
// package-level values shared by every Registry; types registered at runtime
// (for example the tag of a struct template) belong to one Registry.
package types

import (
	"strings"
)

// ChangeMode identifies a mutating field operation.
type ChangeMode int

const (
	Set ChangeMode = iota
	Add
	Remove
	RemoveAll
	Delete
	Reset
)

var changeModeNames = [...]string{
	Set:       "set",
	Add:       "add",
	Remove:    "remove",
	RemoveAll: "remove all",
	Delete:    "delete",
	Reset:     "reset",
}

func (m ChangeMode) String() string {
	if m < 0 || int(m) >= len(changeModeNames) {
		return "unknown"
	}
	return changeModeNames[m]
}

// ParseChangeMode maps a mode name ("set", "remove-all", ...) to a ChangeMode.
func ParseChangeMode(s string) (ChangeMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	for i, name := range changeModeNames {
		if name == s {
			return ChangeMode(i), true
		}
	}
	return 0, false
}

// Arithmetic lets single-valued fields of a type be added to and subtracted
// from. Delta is the type of the operand; Zero, when set, stands in for an
// empty field.
type Arithmetic struct {
	Delta    *Type
	Zero     func() any
	Add      func(a, b any) (any, error)
	Subtract func(a, b any) (any, error)
}

// Changer is a type's own handler for add/remove on a value that has no
// arithmetic. It returns the new value array.
type Changer func(current, delta []any, mode ChangeMode) ([]any, error)

// ConverterFunc converts a value to another type, reporting false when the
// value cannot be converted.
type ConverterFunc func(v any) (any, bool)

// Spec describes a type to register.
type Spec struct {
	Name       string
	Plural     string // defaults to Name + "s"
	Parent     *Type  // defaults to Object
	Is         func(v any) bool
	Normalize  func(v any) any
	Default    func() []any
	Arithmetic *Arithmetic
	Changer    Changer
}

// Type is a host-level value type.
type Type struct {
	name      string
	plural    string
	parent    *Type
	is        func(any) bool
	normalize func(any) any
	defaultFn func() []any
	arith     *Arithmetic
	changer   Changer
	builtin   bool
}

func newType(s Spec) *Type {
	name := strings.ToLower(strings.TrimSpace(s.Name))
	plural := strings.ToLower(strings.TrimSpace(s.Plural))
	if plural == "" {
		plural = name + "s"
	}
	return &Type{
		name:      name,
		plural:    plural,
		parent:    s.Parent,
		is:        s.Is,
		normalize: s.Normalize,
		defaultFn: s.Default,
		arith:     s.Arithmetic,
		changer:   s.Changer,
	}
}

// Name returns the type's lowercase code name.
func (t *Type) Name() string { return t.name }

// Plural returns the plural form of the type's name.
func (t *Type) Plural() string { return t.plural }

// NameFor returns the singular or plural name.
func (t *Type) NameFor(single bool) string {
	if single {
		return t.name
	}
	return t.plural
}

// Parent returns the supertype, or nil for Object.
func (t *Type) Parent() *Type { return t.parent }

// Builtin reports whether t is one of the package-level types.
func (t *Type) Builtin() bool { return t.builtin }

// Arithmetic returns the type's arithmetic, or nil.
func (t *Type) Arithmetic() *Arithmetic { return t.arith }

// Changer returns the type's change handler, or nil.
func (t *Type) Changer() Changer { return t.changer }

// IsA reports whether t is other or descends from it.
func (t *Type) IsA(other *Type) bool {
	for c := t; c != nil; c = c.parent {
		if c == other {
			return true
		}
	}
	return false
}

// Accepts reports whether v is a value of this type.
func (t *Type) Accepts(v any) bool {
	if v == nil || t.is == nil {
		return false
	}
	return t.is(v)
}

// Normalize returns the stored representation of an accepted value.
func (t *Type) Normalize(v any) any {
	if t.normalize == nil {
		return v
	}
	return t.normalize(v)
}

// Default evaluates the type's implicit default. It returns nil when the
// type has none.
func (t *Type) Default() []any {
	if t.defaultFn == nil {
		return nil
	}
	return t.defaultFn()
}

// HasDefault reports whether the type supplies an implicit default.
func (t *Type) HasDefault() bool { return t.defaultFn != nil }

func (t *Type) depth() int {
	n := 0
	for c := t.parent; c != nil; c = c.parent {
		n++
	}
	return n
}

func (t *Type) String() string { return t.name }

// CommonSuper returns the nearest common ancestor of the given types. It
// returns Object when there is none or no types are given.
func CommonSuper(ts ...*Type) *Type {
	if len(ts) == 0 {
		return Object
	}
	cand := ts[0]
	for cand != nil {
		all := true
		for _, t := range ts[1:] {
			if !t.IsA(cand) {
				all = false
				break
			}
		}
		if all {
			return cand
		}
		cand = cand.parent
	}
	return Object
}
