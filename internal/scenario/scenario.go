// Package scenario runs scripted sessions against a host: declarations are
// loaded and reloaded, structs are created and released, and fields are
// read and changed the way a script would, with optional expectations on
// every step.
//
//	name: reload keeps x
//	steps:
//	  - op: load
//	    source: vec.toml
//	    decl: |
//	      [[template]]
//	      name = "vector2"
//	      fields = ["x: number = 0"]
//	  - {op: create, template: vector2, as: v, initial: {x: 3}}
//	  - {op: add, struct: v, field: x, values: [2]}
//	  - {op: get, struct: v, field: x, expect: [5]}
//	  - {op: set, struct: v, field: x, values: [a], error: invalid_type}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownOp       = errors.New("unknown step")
	ErrMissingArg      = errors.New("missing argument")
	ErrUnboundName     = errors.New("no struct bound to name")
	ErrUnknownTemplate = errors.New("no active template by that name")
	ErrExpectation     = errors.New("expectation failed")
	ErrNoSteps         = errors.New("scenario has no steps")
)

// Ops understood by the runner. Change modes ("set", "add", "remove",
// "remove-all", "delete", "reset") are ops too.
const (
	OpLoad    = "load"
	OpUnload  = "unload"
	OpCreate  = "create"
	OpCopy    = "copy"
	OpDiscard = "discard"
	OpRelease = "release"
	OpGet     = "get"
	OpResolve = "resolve"
	OpEval    = "eval"
	OpSweep   = "sweep"
	OpStatus  = "status"
)

// Scenario is a named list of steps.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// load / unload: declarations come inline (Decl, in Format) or from
	// File, resolved against the scenario's directory.
	Source string `yaml:"source,omitempty"`
	File   string `yaml:"file,omitempty"`
	Decl   string `yaml:"decl,omitempty"`
	Format string `yaml:"format,omitempty"`

	// create: Initial holds literal values, Exprs expression sources.
	Template string            `yaml:"template,omitempty"`
	Initial  map[string]any    `yaml:"initial,omitempty"`
	Exprs    map[string]string `yaml:"exprs,omitempty"`

	Struct string `yaml:"struct,omitempty"`
	As     string `yaml:"as,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Values []any  `yaml:"values,omitempty"`
	Expr   string `yaml:"expr,omitempty"`

	// Event and Vars make up the evaluation context.
	Event string         `yaml:"event,omitempty"`
	Vars  map[string]any `yaml:"vars,omitempty"`

	// Expect lists the values a get, change or eval must produce; Error
	// is the access error code (or error text fragment) the step must
	// fail with. Count checks the number a step reports, such as
	// structs swept or templates loaded.
	Expect []any  `yaml:"expect,omitempty"`
	Error  string `yaml:"error,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
}

// Parse decodes a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoSteps
		}
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, ErrNoSteps
	}
	for i, st := range sc.Steps {
		if st.Op == "" {
			return nil, fmt.Errorf("step %d: %w: op", i+1, ErrMissingArg)
		}
	}
	return &sc, nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}
