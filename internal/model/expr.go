package model

import (
	"fmt"

	"github.com/alfredjeanlab/structs/internal/types"
)

// Expression is a host-language expression producing a value array.
type Expression interface {
	Evaluate(ctx *EvalContext) ([]any, error)
	String() string
}

// ExprParser resolves expression source text, as written in a template
// declaration, into an Expression whose results are of type want.
type ExprParser interface {
	ParseExpression(src string, want *types.Type) (Expression, error)
}

// EvalContext is the host event an expression is evaluated in. Self is the
// struct bound to `this`, if any.
type EvalContext struct {
	Name string
	Self *Struct
	Vars map[string]any

	active map[activeKey]struct{}
}

type activeKey struct {
	s     *Struct
	field string
}

// Background returns the context-free context used when no triggering event
// exists, such as while reparenting structs.
func Background() *EvalContext {
	return &EvalContext{Name: "background"}
}

// ForStruct returns a context with `this` bound to s.
func ForStruct(s *Struct) *EvalContext {
	return &EvalContext{Name: "struct", Self: s}
}

// Bind returns a child context with `this` bound to s. The child shares the
// parent's variables and its record of dynamic fields under evaluation.
func (c *EvalContext) Bind(s *Struct) *EvalContext {
	if c == nil {
		return ForStruct(s)
	}
	if c.active == nil {
		c.active = make(map[activeKey]struct{})
	}
	return &EvalContext{Name: c.Name, Self: s, Vars: c.Vars, active: c.active}
}

func (c *EvalContext) enter(s *Struct, field string) bool {
	if c.active == nil {
		c.active = make(map[activeKey]struct{})
	}
	k := activeKey{s, field}
	if _, busy := c.active[k]; busy {
		return false
	}
	c.active[k] = struct{}{}
	return true
}

func (c *EvalContext) leave(s *Struct, field string) {
	delete(c.active, activeKey{s, field})
}

type literal []any

// Literal returns an expression that always yields values.
func Literal(values ...any) Expression { return literal(values) }

func (l literal) Evaluate(*EvalContext) ([]any, error) {
	return append([]any{}, l...), nil
}

func (l literal) String() string {
	if len(l) == 1 {
		return fmt.Sprint(l[0])
	}
	return fmt.Sprint([]any(l))
}

// ExprFunc adapts a Go function to an Expression.
type ExprFunc func(ctx *EvalContext) ([]any, error)

func (f ExprFunc) Evaluate(ctx *EvalContext) ([]any, error) { return f(ctx) }

func (f ExprFunc) String() string { return "<func>" }

type typeDefault struct{ t *types.Type }

func (d typeDefault) Evaluate(*EvalContext) ([]any, error) { return d.t.Default(), nil }

func (d typeDefault) String() string { return "default " + d.t.Name() }
