package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alfredjeanlab/structs/internal/types"
)

// Template is a named collection of uniquely named fields. A template is
// usable once ParseFields has succeeded.
type Template struct {
	name     string
	fields   map[string]*Field
	order    []*Field
	typ      *types.Type
	parsed   bool
	parseErr error
}

// TemplateOption configures a template at construction.
type TemplateOption func(*Template)

// WithType attaches the opaque type tag that identifies structs of the
// template to the host's type system.
func WithType(t *types.Type) TemplateOption {
	return func(tmpl *Template) { tmpl.typ = t }
}

// NewTemplate creates a template. Field names must be unique ignoring case.
func NewTemplate(name string, fields []*Field, opts ...TemplateOption) (*Template, error) {
	t := &Template{
		name:   normalizeName(name),
		fields: make(map[string]*Field, len(fields)),
	}
	ve := ValidationError{Template: t.name}
	if t.name == "" {
		ve.Add("name", ErrEmptyName)
	}
	for _, f := range fields {
		if f == nil {
			continue
		}
		if _, dup := t.fields[f.name]; dup {
			ve.Add(f.name, fmt.Errorf("field name '%s': %w", f.name, ErrDuplicateField))
			continue
		}
		t.fields[f.name] = f
		t.order = append(t.order, f)
	}
	if ve.HasErrors() {
		return nil, &ve
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ParseFields resolves every field's default expression. All failures are
// reported together; any failure leaves the template unusable.
func (t *Template) ParseFields(p ExprParser) error {
	if t.parseErr != nil {
		return t.parseErr
	}
	if t.parsed {
		return nil
	}
	ve := ValidationError{Template: t.name}
	for _, f := range t.order {
		if err := f.ParseDefault(p); err != nil {
			ve.Add(f.name, err)
		}
	}
	if ve.HasErrors() {
		t.parseErr = &ve
		return t.parseErr
	}
	t.parsed = true
	return nil
}

// Parsed reports whether ParseFields succeeded.
func (t *Template) Parsed() bool { return t.parsed }

// Name returns the lowercase template name.
func (t *Template) Name() string { return t.name }

// Type returns the template's type tag, or nil.
func (t *Template) Type() *types.Type { return t.typ }

// Fields returns the fields in declaration order.
func (t *Template) Fields() []*Field {
	return append([]*Field(nil), t.order...)
}

// Names returns the field names in declaration order.
func (t *Template) Names() []string {
	out := make([]string, len(t.order))
	for i, f := range t.order {
		out[i] = f.name
	}
	return out
}

// Len returns the number of fields.
func (t *Template) Len() int { return len(t.order) }

// Field returns the field with the given name, ignoring case, or nil.
func (t *Template) Field(name string) *Field {
	return t.fields[strings.ToLower(strings.TrimSpace(name))]
}

// HasField reports whether the template has a field with the given name.
func (t *Template) HasField(name string) bool {
	return t.Field(name) != nil
}

// HasFieldOf reports whether the template has a field with the given name
// whose type accepts values of typ.
func (t *Template) HasFieldOf(name string, typ *types.Type) bool {
	f := t.Field(name)
	return f != nil && typ != nil && typ.IsA(f.typ)
}

// Fingerprint returns a stable hash of the template's name and structural
// field keys.
func (t *Template) Fingerprint() string {
	keys := make([]string, len(t.order))
	for i, f := range t.order {
		keys[i] = fmt.Sprintf("%s:%s:%t:%s", f.name, f.typ.Name(), f.single, f.mods)
	}
	sort.Strings(keys)
	h := sha256.New()
	io.WriteString(h, t.name)
	for _, k := range keys {
		io.WriteString(h, "\n")
		io.WriteString(h, k)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (t *Template) String() string {
	return "template '" + t.name + "'"
}
