package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alfredjeanlab/structs/internal/access"
	"github.com/alfredjeanlab/structs/internal/decl"
	"github.com/alfredjeanlab/structs/internal/host"
	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/registry"
	"github.com/alfredjeanlab/structs/internal/types"
)

// Outcome is what one step produced.
type Outcome struct {
	Step     int          `json:"step"`
	Op       string       `json:"op"`
	Struct   string       `json:"struct,omitempty"`
	Values   []any        `json:"values,omitempty"`
	Ignored  int          `json:"ignored,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Count    int          `json:"count"`
	Code     string       `json:"code,omitempty"`
	Error    string       `json:"error,omitempty"`
	Status   *host.Status `json:"status,omitempty"`
}

// Runner executes scenarios against a host. Names bound with `as` persist
// across runs of the same runner.
type Runner struct {
	host  *host.Host
	dir   string
	names map[string]registry.Handle
}

// NewRunner returns a runner resolving relative declaration files against
// dir.
func NewRunner(h *host.Host, dir string) *Runner {
	return &Runner{host: h, dir: dir, names: make(map[string]registry.Handle)}
}

// Run executes every step in order. It stops at the first step that fails
// unexpectedly or misses an expectation, returning the outcomes so far.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]Outcome, error) {
	var outcomes []Outcome
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, err := r.step(st)
		out.Step = i + 1
		out.Op = st.Op
		if err != nil {
			out.Error = err.Error()
			if ae, ok := access.AsError(err); ok {
				out.Code = ae.Code
			}
		}
		outcomes = append(outcomes, out)
		if err := check(st, out, err); err != nil {
			slog.Debug("scenario: step failed", "scenario", sc.Name, "step", i+1, "op", st.Op, "err", err)
			return outcomes, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
	}
	slog.Debug("scenario: completed", "scenario", sc.Name, "steps", len(sc.Steps))
	return outcomes, nil
}

func check(st Step, out Outcome, err error) error {
	if st.Error != "" {
		if err == nil {
			return fmt.Errorf("%w: want error %q, got none", ErrExpectation, st.Error)
		}
		if out.Code != st.Error && !strings.Contains(err.Error(), st.Error) {
			return fmt.Errorf("%w: want error %q, got %v", ErrExpectation, st.Error, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if st.Expect != nil && !equalValues(out.Values, st.Expect) {
		return fmt.Errorf("%w: values %v, want %v", ErrExpectation, out.Values, st.Expect)
	}
	if st.Count != nil && out.Count != *st.Count {
		return fmt.Errorf("%w: count %d, want %d", ErrExpectation, out.Count, *st.Count)
	}
	return nil
}

func equalValues(got, want []any) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !types.Equal(got[i], want[i]) {
			return false
		}
	}
	return true
}

func (r *Runner) step(st Step) (Outcome, error) {
	if st.Op == OpStatus {
		status := r.host.Status()
		return Outcome{Status: &status, Count: status.Arena.Live}, nil
	}
	var out Outcome
	err := r.host.Do(func(s *host.Session) error {
		var err error
		out, err = r.apply(s, st)
		return err
	})
	return out, err
}

func (r *Runner) apply(s *host.Session, st Step) (Outcome, error) {
	switch st.Op {
	case OpLoad:
		return r.load(s, st)
	case OpUnload:
		if st.Source == "" && st.File == "" {
			return Outcome{}, fmt.Errorf("%w: source", ErrMissingArg)
		}
		return Outcome{Count: s.Loader().Unload(r.source(st))}, nil
	case OpCreate:
		return r.create(s, st)
	case OpCopy:
		src, err := r.lookup(s, st.Struct)
		if err != nil {
			return Outcome{}, err
		}
		c, err := s.Structs().Copy(src)
		if err != nil {
			return Outcome{}, err
		}
		r.bind(s, st.As, c)
		return Outcome{Struct: c.ID(), Count: 1}, nil
	case OpDiscard:
		target, err := r.lookup(s, st.Struct)
		if err != nil {
			return Outcome{}, err
		}
		out := Outcome{Struct: target.ID()}
		if s.Structs().DeleteStruct(target) {
			out.Count = 1
		}
		return out, nil
	case OpRelease:
		h, ok := r.names[st.Struct]
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %q", ErrUnboundName, st.Struct)
		}
		out := Outcome{}
		if s.Structs().Release(h) {
			out.Count = 1
		}
		return out, nil
	case OpSweep:
		return Outcome{Count: s.Structs().Sweep()}, nil
	case OpResolve:
		if st.Field == "" {
			return Outcome{}, fmt.Errorf("%w: field", ErrMissingArg)
		}
		a, err := s.Resolve(st.Field)
		if err != nil {
			return Outcome{}, err
		}
		var names []any
		for _, t := range a.ReturnTypes() {
			names = append(names, t.Name())
		}
		return Outcome{Values: names, Count: len(a.Candidates())}, nil
	case OpGet:
		target, a, err := r.target(s, st)
		if err != nil {
			return Outcome{}, err
		}
		vals, err := a.Get(r.context(st, target), target)
		return Outcome{Struct: target.ID(), Values: vals, Count: len(vals)}, err
	case OpEval:
		return r.eval(s, st)
	}
	mode, ok := types.ParseChangeMode(st.Op)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownOp, st.Op)
	}
	return r.change(s, st, mode)
}

func (r *Runner) load(s *host.Session, st Step) (Outcome, error) {
	var data []byte
	switch {
	case st.Decl != "":
		if st.Source == "" {
			return Outcome{}, fmt.Errorf("%w: source for inline declarations", ErrMissingArg)
		}
		data = []byte(st.Decl)
	case st.File != "":
		var err error
		if data, err = os.ReadFile(r.path(st.File)); err != nil {
			return Outcome{}, fmt.Errorf("loading %s: %w", st.File, err)
		}
	default:
		return Outcome{}, fmt.Errorf("%w: decl or file", ErrMissingArg)
	}
	source := r.source(st)
	f, err := r.format(st, source)
	if err != nil {
		return Outcome{}, err
	}
	rep, err := s.Loader().LoadBytes(source, data, f)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Count: len(rep.Loaded), Warnings: rep.Warnings}
	for _, name := range rep.Loaded {
		out.Values = append(out.Values, name)
	}
	return out, rep.Err()
}

func (r *Runner) format(st Step, source string) (decl.Format, error) {
	switch strings.ToLower(st.Format) {
	case "toml":
		return decl.TOML, nil
	case "yaml", "yml":
		return decl.YAML, nil
	case "":
		return decl.FormatFor(source)
	}
	return 0, fmt.Errorf("%w: %q", decl.ErrUnknownFormat, st.Format)
}

func (r *Runner) create(s *host.Session, st Step) (Outcome, error) {
	tmpl, ok := s.Templates().Template(st.Template)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, st.Template)
	}
	initial := make(map[string]model.Expression, len(st.Initial)+len(st.Exprs))
	for name, v := range st.Initial {
		initial[name] = model.Literal(valueList(v)...)
	}
	for name, src := range st.Exprs {
		e, err := s.Parser().ParseExpression(src, nil)
		if err != nil {
			return Outcome{}, fmt.Errorf("initial value of %s: %w", name, err)
		}
		initial[name] = e
	}
	created, err := s.Structs().CreateStruct(tmpl, r.context(st, nil), initial)
	if err != nil {
		return Outcome{}, err
	}
	r.bind(s, st.As, created)
	return Outcome{Struct: created.ID(), Count: 1}, nil
}

func (r *Runner) change(s *host.Session, st Step, mode types.ChangeMode) (Outcome, error) {
	target, a, err := r.target(s, st)
	if err != nil {
		return Outcome{}, err
	}
	if err := a.AcceptChange(mode); err != nil {
		return Outcome{Struct: target.ID()}, err
	}
	res, err := a.Change(r.context(st, target), target, mode, st.Values)
	return Outcome{
		Struct:   target.ID(),
		Values:   res.Values,
		Ignored:  res.Ignored,
		Warnings: res.Warnings,
		Count:    len(res.Values),
	}, err
}

func (r *Runner) eval(s *host.Session, st Step) (Outcome, error) {
	if st.Expr == "" {
		return Outcome{}, fmt.Errorf("%w: expr", ErrMissingArg)
	}
	var self *model.Struct
	if st.Struct != "" {
		var err error
		if self, err = r.lookup(s, st.Struct); err != nil {
			return Outcome{}, err
		}
	}
	e, err := s.Parser().ParseExpression(st.Expr, nil)
	if err != nil {
		return Outcome{}, err
	}
	vals, err := e.Evaluate(r.context(st, self))
	return Outcome{Values: vals, Count: len(vals)}, err
}

func (r *Runner) target(s *host.Session, st Step) (*model.Struct, *access.Access, error) {
	if st.Field == "" {
		return nil, nil, fmt.Errorf("%w: field", ErrMissingArg)
	}
	target, err := r.lookup(s, st.Struct)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.Resolve(st.Field)
	if err != nil {
		return nil, nil, err
	}
	return target, a, nil
}

func (r *Runner) lookup(s *host.Session, name string) (*model.Struct, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: struct", ErrMissingArg)
	}
	h, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnboundName, name)
	}
	target, ok := s.Structs().Lookup(h)
	if !ok {
		return nil, fmt.Errorf("%s (%s): %w", name, h, registry.ErrUnknownStruct)
	}
	return target, nil
}

func (r *Runner) bind(s *host.Session, name string, target *model.Struct) {
	if name == "" {
		return
	}
	if h, ok := s.Structs().HandleOf(target); ok {
		r.names[name] = h
	}
}

func (r *Runner) context(st Step, self *model.Struct) *model.EvalContext {
	name := st.Event
	if name == "" {
		name = "scenario"
	}
	return &model.EvalContext{Name: name, Self: self, Vars: st.Vars}
}

func (r *Runner) source(st Step) string {
	if st.Source != "" {
		return st.Source
	}
	return filepath.Clean(r.path(st.File))
}

func (r *Runner) path(p string) string {
	if filepath.IsAbs(p) || r.dir == "" {
		return p
	}
	return filepath.Join(r.dir, p)
}

// valueList expands a YAML sequence into individual values.
func valueList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

// IsExpectation reports whether err is a missed expectation rather than a
// malformed or failing step.
func IsExpectation(err error) bool { return errors.Is(err, ErrExpectation) }
