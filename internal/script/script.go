// Package script compiles the expressions written in template declarations
// (field defaults, dynamic fields and converters) with expr-lang/expr.
//
// Expressions see `this`, the struct being evaluated, as a map from field
// name to value: single fields map to their value or nil, multi-valued
// fields to a list. `this->x` is accepted as a spelling of `this.x`.
// Context variables are visible by name and `event` holds the context name.
package script

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/types"
)

var (
	ErrEmpty = errors.New("empty expression")
	ErrArgs  = errors.New("wrong arguments")
)

var thisRef = regexp.MustCompile(`\bthis\.([A-Za-z_][A-Za-z0-9_]*)`)

// Parser compiles expressions. It implements model.ExprParser.
type Parser struct {
	coercer types.Coercer
	opts    []expr.Option
}

var _ model.ExprParser = (*Parser)(nil)

// NewParser returns a parser whose results are coerced with c.
func NewParser(c types.Coercer) *Parser {
	return &Parser{
		coercer: c,
		opts: []expr.Option{
			expr.AllowUndefinedVariables(),
			expr.Function("sqrt", sqrt),
			expr.Function("pow", pow),
			// concat joins scalars into a string here, not arrays.
			expr.DisableBuiltin("concat"),
			expr.Function("concat", concat),
		},
	}
}

// ParseExpression compiles src into an expression whose results are
// coerced to want. A nil want keeps results as they are.
func (p *Parser) ParseExpression(src string, want *types.Type) (model.Expression, error) {
	prog, err := p.Compile(src)
	if err != nil {
		return nil, err
	}
	prog.want = want
	return prog, nil
}

// Compile compiles src without a result type.
func (p *Parser) Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrEmpty
	}
	code := rewriteArrows(src)
	prog, err := expr.Compile(code, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", src, err)
	}
	var refs []string
	for _, m := range thisRef.FindAllStringSubmatch(code, -1) {
		refs = append(refs, strings.ToLower(m[1]))
	}
	return &Program{src: src, prog: prog, coercer: p.coercer, refs: refs}, nil
}

// Program is a compiled expression.
type Program struct {
	src     string
	prog    *vm.Program
	want    *types.Type
	coercer types.Coercer
	refs    []string
}

// Run evaluates the program and returns its raw result.
func (p *Program) Run(ctx *model.EvalContext) (any, error) {
	if ctx == nil {
		ctx = model.Background()
	}
	env, err := p.env(ctx)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(p.prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", p.src, err)
	}
	return out, nil
}

// Evaluate runs the program and flattens the result into a value array
// coerced to the program's result type.
func (p *Program) Evaluate(ctx *model.EvalContext) ([]any, error) {
	out, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	vals := flatten(out)
	if p.want != nil && p.coercer != nil {
		vals = p.coercer.Coerce(vals, p.want)
	}
	return vals, nil
}

func (p *Program) String() string { return p.src }

func (p *Program) env(ctx *model.EvalContext) (map[string]any, error) {
	env := make(map[string]any, len(ctx.Vars)+2)
	for k, v := range ctx.Vars {
		env[k] = v
	}
	env["event"] = ctx.Name
	if ctx.Self == nil {
		return env, nil
	}
	this, err := p.this(ctx)
	if err != nil {
		return nil, err
	}
	env["this"] = this
	return env, nil
}

// this maps the bound struct's fields to values. Dynamic fields are
// computed only when the program refers to them.
func (p *Program) this(ctx *model.EvalContext) (map[string]any, error) {
	s := ctx.Self
	fields := s.Template().Fields()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Dynamic() && !p.refers(f.Name()) {
			continue
		}
		vals, err := s.Resolve(f, ctx)
		if err != nil {
			return nil, err
		}
		if f.Single() {
			if len(vals) > 0 {
				m[f.Name()] = vals[0]
			} else {
				m[f.Name()] = nil
			}
			continue
		}
		m[f.Name()] = vals
	}
	return m, nil
}

func (p *Program) refers(name string) bool {
	for _, r := range p.refs {
		if r == name {
			return true
		}
	}
	return false
}

// rewriteArrows turns `->` outside string literals into `.`.
func rewriteArrows(src string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(src) {
				b.WriteByte(c)
				i++
				c = src[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '-' && i+1 < len(src) && src[i+1] == '>':
			b.WriteByte('.')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func flatten(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{}
	case []any:
		out := make([]any, 0, len(x))
		for _, e := range x {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	case string, []byte:
		return []any{x}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, 0, rv.Len())
		for i := range rv.Len() {
			out = append(out, rv.Index(i).Interface())
		}
		return out
	}
	return []any{v}
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func sqrt(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("sqrt: %w: want 1, got %d", ErrArgs, len(params))
	}
	f, ok := toFloat(params[0])
	if !ok {
		return nil, fmt.Errorf("sqrt: %w: %v is not a number", ErrArgs, params[0])
	}
	return math.Sqrt(f), nil
}

func pow(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("pow: %w: want 2, got %d", ErrArgs, len(params))
	}
	x, ok1 := toFloat(params[0])
	y, ok2 := toFloat(params[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("pow: %w: %v, %v", ErrArgs, params[0], params[1])
	}
	return math.Pow(x, y), nil
}

func concat(params ...any) (any, error) {
	var b strings.Builder
	for _, p := range params {
		if p != nil {
			fmt.Fprint(&b, p)
		}
	}
	return b.String(), nil
}
