package types

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

var (
	ErrTypeExists  = errors.New("type already registered")
	ErrUnknownType = errors.New("unknown type")
	ErrBuiltinType = errors.New("built-in types cannot be unregistered")
	ErrInvalidType = errors.New("invalid type")
)

// TypeRegistry is the surface an embedding host provides so that templates
// gain first-class type identity and conversions.
type TypeRegistry interface {
	Register(s Spec) (*Type, error)
	Unregister(t *Type) error
	RegisterConverter(from, to *Type, fn ConverterFunc) error
	UnregisterConverters(t *Type)
	ParseTypeName(name string) (t *Type, plural bool, ok bool)
}

// Coercer converts values to a target type.
type Coercer interface {
	Coerce(values []any, target *Type) []any
}

// Registry holds the known types and the converters between them. It is not
// safe for concurrent use.
type Registry struct {
	byName     map[string]*Type
	byPlural   map[string]*Type
	converters map[convKey]ConverterFunc
}

var _ TypeRegistry = (*Registry)(nil)

// NewRegistry returns a registry holding the built-in types and converters.
func NewRegistry() *Registry {
	r := &Registry{
		byName:     make(map[string]*Type),
		byPlural:   make(map[string]*Type),
		converters: builtinConverters(),
	}
	for _, t := range builtins() {
		r.byName[t.name] = t
		r.byPlural[t.plural] = t
	}
	return r
}

// Register adds a new type.
func (r *Registry) Register(s Spec) (*Type, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("registering type: %w: empty name", ErrInvalidType)
	}
	if s.Is == nil {
		return nil, fmt.Errorf("registering type %q: %w: no membership predicate", s.Name, ErrInvalidType)
	}
	if s.Parent == nil {
		s.Parent = Object
	}
	t := newType(s)
	if r.taken(t.name) || r.taken(t.plural) {
		return nil, fmt.Errorf("registering type %q: %w", t.name, ErrTypeExists)
	}
	r.byName[t.name] = t
	r.byPlural[t.plural] = t
	return t, nil
}

func (r *Registry) taken(name string) bool {
	_, a := r.byName[name]
	_, b := r.byPlural[name]
	return a || b
}

// Unregister removes a runtime type together with every converter from or
// to it.
func (r *Registry) Unregister(t *Type) error {
	if t == nil {
		return fmt.Errorf("unregistering type: %w", ErrUnknownType)
	}
	if t.builtin {
		return fmt.Errorf("unregistering %q: %w", t.name, ErrBuiltinType)
	}
	if r.byName[t.name] != t {
		return fmt.Errorf("unregistering %q: %w", t.name, ErrUnknownType)
	}
	delete(r.byName, t.name)
	delete(r.byPlural, t.plural)
	r.UnregisterConverters(t)
	return nil
}

// RegisterConverter installs a conversion between two registered types,
// replacing any existing one.
func (r *Registry) RegisterConverter(from, to *Type, fn ConverterFunc) error {
	if fn == nil {
		return fmt.Errorf("registering converter: %w: nil function", ErrInvalidType)
	}
	for _, t := range []*Type{from, to} {
		if t == nil || r.byName[t.name] != t {
			return fmt.Errorf("registering converter: %w: %v", ErrUnknownType, t)
		}
	}
	r.converters[convKey{from, to}] = fn
	return nil
}

// UnregisterConverters drops every converter from or to t.
func (r *Registry) UnregisterConverters(t *Type) {
	for k := range r.converters {
		if k.from == t || k.to == t {
			delete(r.converters, k)
		}
	}
}

// UnregisterConvertersFrom removes the conversions whose source is t,
// keeping those that convert to it.
func (r *Registry) UnregisterConvertersFrom(t *Type) {
	for k := range r.converters {
		if k.from == t {
			delete(r.converters, k)
		}
	}
}

// Lookup returns the type with the given singular code name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// ParseTypeName resolves a singular or plural type name as written in a
// declaration.
func (r *Registry) ParseTypeName(name string) (*Type, bool, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if t, ok := r.byName[name]; ok {
		return t, false, true
	}
	if t, ok := r.byPlural[name]; ok {
		return t, true, true
	}
	return nil, false, false
}

// Types returns every registered type ordered by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// TypeOf returns the most specific registered type accepting v, or nil.
func (r *Registry) TypeOf(v any) *Type {
	if v == nil {
		return nil
	}
	var best *Type
	for _, t := range r.byName {
		if !t.Accepts(v) {
			continue
		}
		if best == nil || t.depth() > best.depth() || (t.depth() == best.depth() && t.name < best.name) {
			best = t
		}
	}
	return best
}

// Coerce returns the elements of values that are, or can be converted to,
// the target type. Elements that cannot be converted are dropped, so the
// result may be shorter than the input; it is never nil.
func (r *Registry) Coerce(values []any, target *Type) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if c, ok := r.CoerceOne(v, target); ok {
			out = append(out, c)
		}
	}
	return out
}

// CoerceOne converts a single value to target.
func (r *Registry) CoerceOne(v any, target *Type) (any, bool) {
	if v == nil || target == nil {
		return nil, false
	}
	if target.Accepts(v) {
		return target.Normalize(v), true
	}
	for src := r.TypeOf(v); src != nil; src = src.parent {
		fn, ok := r.converters[convKey{src, target}]
		if !ok {
			continue
		}
		c, ok := fn(v)
		if ok && target.Accepts(c) {
			return target.Normalize(c), true
		}
	}
	return nil, false
}

// Equal reports whether two values are the same for the purpose of removing
// them from a field. Numbers compare by value regardless of representation.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
