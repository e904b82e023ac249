// Package decl reads template declarations from TOML or YAML files and
// loads them into a template manager, replacing earlier declarations from
// the same source.
package decl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat = errors.New("unknown declaration format")
	ErrInvalidField  = errors.New("invalid field")
	ErrUnknownKeys   = errors.New("unknown keys")
)

// Format is a declaration file syntax.
type Format int

const (
	TOML Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "toml"
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// File is one declaration file.
//
//	[[template]]
//	name = "vector2"
//	fields = ["x: number = 0", "dynamic length: number = sqrt(this->x^2)"]
//	[template.converts]
//	string = "concat(this->x)"
type File struct {
	Templates []Template `toml:"template" yaml:"templates"`
}

// Template declares one template. Converts maps a target type name to the
// expression converting a struct of the template to it.
type Template struct {
	Name     string            `toml:"name" yaml:"name"`
	Fields   []string          `toml:"fields" yaml:"fields"`
	Converts map[string]string `toml:"converts" yaml:"converts"`
}

// ConvertTargets returns the converter target names in sorted order.
func (t Template) ConvertTargets() []string {
	out := make([]string, 0, len(t.Converts))
	for k := range t.Converts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse decodes data. Unknown keys are an error in both formats.
func Parse(data []byte, f Format) (*File, error) {
	var file File
	switch f {
	case TOML:
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("decoding toml: %w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return nil, ErrUnknownFormat
	}
	return &file, nil
}

// FieldLine is a parsed field declaration:
//
//	[const[ant] ][dynamic ]name: type[ = default]
type FieldLine struct {
	Name     string
	Type     string
	Constant bool
	Dynamic  bool
	Default  string
}

var fieldLine = regexp.MustCompile(`(?i)^(const(?:ant)?\s+)?(dynamic\s+)?([\w ]+?)\s*:\s*([\w ]+?)\s*(?:=\s*(.+?))?\s*$`)

// ParseFieldLine parses one entry of a template's field list.
func ParseFieldLine(line string) (FieldLine, error) {
	m := fieldLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return FieldLine{}, fmt.Errorf("%w: %q", ErrInvalidField, line)
	}
	fl := FieldLine{
		Constant: m[1] != "",
		Dynamic:  m[2] != "",
		Name:     strings.ToLower(strings.TrimSpace(m[3])),
		Type:     strings.TrimSpace(m[4]),
		Default:  m[5],
	}
	if fl.Name == "" {
		return FieldLine{}, fmt.Errorf("%w: %q: empty name", ErrInvalidField, line)
	}
	return fl, nil
}
