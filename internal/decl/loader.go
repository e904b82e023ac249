package decl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/registry"
	"github.com/alfredjeanlab/structs/internal/script"
	"github.com/alfredjeanlab/structs/internal/types"
)

var (
	ErrDuplicateTemplate = errors.New("template name is already taken")
	ErrNoFields          = errors.New("templates must have at least one field")
	ErrUnknownFieldType  = errors.New("unknown field type")
	ErrInvalidConverter  = errors.New("invalid converter")
)

// Report is the outcome of loading one source. Errors hold one
// *model.ValidationError per rejected template.
type Report struct {
	Source   string
	Loaded   []string
	Errors   []error
	Warnings []string
	Unloaded int
}

// Err joins the report's errors.
func (r *Report) Err() error { return errors.Join(r.Errors...) }

type loaded struct {
	tmpl *model.Template
	tag  *types.Type
}

// Loader owns the templates declared by each source.
type Loader struct {
	types   *types.Registry
	parser  *script.Parser
	tm      *registry.TemplateManager
	pub     events.Publisher
	sources map[string][]loaded
}

// NewLoader returns a loader registering types in reg and templates in tm.
func NewLoader(reg *types.Registry, p *script.Parser, tm *registry.TemplateManager, pub events.Publisher) *Loader {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Loader{types: reg, parser: p, tm: tm, pub: pub, sources: make(map[string][]loaded)}
}

// Sources returns the sources with loaded templates, sorted.
func (l *Loader) Sources() []string {
	out := make([]string, 0, len(l.sources))
	for s := range l.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Templates returns the names of the templates loaded from source.
func (l *Loader) Templates(source string) []string {
	var out []string
	for _, ld := range l.sources[source] {
		out = append(out, ld.tmpl.Name())
	}
	return out
}

// LoadPaths loads every declaration file named, descending one level into
// directories. Files of unknown format inside directories are skipped.
func (l *Loader) LoadPaths(paths ...string) ([]*Report, error) {
	var reports []*Report
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return reports, fmt.Errorf("loading %s: %w", p, err)
		}
		files := []string{p}
		if info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return reports, fmt.Errorf("reading %s: %w", p, err)
			}
			files = files[:0]
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if _, err := FormatFor(e.Name()); err == nil {
					files = append(files, filepath.Join(p, e.Name()))
				}
			}
		}
		for _, f := range files {
			r, err := l.LoadFile(f)
			if err != nil {
				return reports, err
			}
			reports = append(reports, r)
		}
	}
	return reports, nil
}

// LoadFile loads a declaration file, replacing what the same path loaded
// before.
func (l *Loader) LoadFile(path string) (*Report, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return l.LoadBytes(filepath.Clean(path), data, f)
}

// LoadBytes loads declarations from data on behalf of source. A file that
// cannot be decoded changes nothing. Otherwise the templates previously
// loaded from source are removed first, orphaning their structs, and the
// new ones are added, reparenting them. Templates with definition errors
// are skipped and reported; the others still load.
func (l *Loader) LoadBytes(source string, data []byte, f Format) (*Report, error) {
	file, err := Parse(data, f)
	if err != nil {
		l.publish(events.TopicDeclFailed, events.DeclFailed{Source: source, Errors: []string{err.Error()}})
		return nil, fmt.Errorf("loading %s: %w", source, err)
	}
	r := &Report{Source: source}
	prev := l.unload(source)
	r.Unloaded = len(prev)

	// A name declared again keeps its tag, so fields typed with it keep
	// their key and reparenting does not reset them. Its converters are
	// declared anew.
	kept := make(map[string]*types.Type, len(prev))
	for _, ld := range prev {
		l.types.UnregisterConvertersFrom(ld.tag)
		kept[ld.tmpl.Name()] = ld.tag
	}

	// Every tag is registered before any field is typed, so templates in
	// one file can refer to each other.
	tags := make([]*types.Type, len(file.Templates))
	errs := make([]*model.ValidationError, len(file.Templates))
	seen := make(map[string]bool)
	for i, td := range file.Templates {
		name := strings.ToLower(strings.TrimSpace(td.Name))
		errs[i] = &model.ValidationError{Template: name}
		switch {
		case name == "":
			errs[i].Add("name", model.ErrEmptyName)
			continue
		case seen[name]:
			errs[i].Add("name", fmt.Errorf("struct by the name of %s: %w", name, ErrDuplicateTemplate))
			continue
		}
		seen[name] = true
		if _, taken := l.tm.Template(name); taken {
			errs[i].Add("name", fmt.Errorf("struct by the name of %s: %w", name, ErrDuplicateTemplate))
			continue
		}
		if tag, ok := kept[name]; ok {
			delete(kept, name)
			tags[i] = tag
			continue
		}
		tag, err := l.types.Register(structTypeSpec(name))
		if err != nil {
			errs[i].Add("name", err)
			continue
		}
		tags[i] = tag
	}
	for _, tag := range kept {
		l.dropTag(tag)
	}

	var added []loaded
	for i, td := range file.Templates {
		ve := errs[i]
		if tags[i] == nil {
			r.Errors = append(r.Errors, ve)
			continue
		}
		tmpl := l.build(td, tags[i], ve, r)
		if tmpl == nil {
			l.dropTag(tags[i])
			r.Errors = append(r.Errors, ve)
			continue
		}
		added = append(added, loaded{tmpl: tmpl, tag: tags[i]})
	}

	// Converters are registered after every template of the file parsed so
	// that they may convert to sibling templates.
	for i, td := range file.Templates {
		if tags[i] == nil || len(td.Converts) == 0 {
			continue
		}
		if !l.active(added, tags[i]) {
			continue
		}
		l.registerConverters(td, tags[i], r)
	}

	for _, ld := range added {
		r.Loaded = append(r.Loaded, ld.tmpl.Name())
	}
	if len(added) > 0 {
		l.sources[source] = added
	}
	if len(r.Errors) > 0 {
		msgs := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			msgs[i] = e.Error()
		}
		slog.Warn("decl: templates rejected", "source", source, "errors", len(r.Errors))
		l.publish(events.TopicDeclFailed, events.DeclFailed{Source: source, Errors: msgs})
	}
	slog.Info("decl: loaded", "source", source, "templates", len(r.Loaded), "unloaded", r.Unloaded)
	l.publish(events.TopicDeclLoaded, events.DeclLoaded{Source: source, Templates: r.Loaded})
	return r, nil
}

// Unload removes every template loaded from source, orphaning its
// structs, and unregisters their type tags. It returns the number of
// templates removed.
func (l *Loader) Unload(source string) int {
	prev := l.unload(source)
	for _, ld := range prev {
		l.dropTag(ld.tag)
	}
	return len(prev)
}

// unload removes the templates of source, keeping their tags registered.
func (l *Loader) unload(source string) []loaded {
	prev := l.sources[source]
	delete(l.sources, source)
	for _, ld := range prev {
		l.tm.RemoveTemplate(ld.tmpl)
	}
	return prev
}

// build turns a declaration into a parsed, registered template. It returns
// nil after recording the failures in ve.
func (l *Loader) build(td Template, tag *types.Type, ve *model.ValidationError, r *Report) *model.Template {
	if len(td.Fields) == 0 {
		ve.Add("fields", ErrNoFields)
		return nil
	}
	var fields []*model.Field
	for _, line := range td.Fields {
		fl, err := ParseFieldLine(line)
		if err != nil {
			ve.Add(line, err)
			continue
		}
		if fl.Constant && fl.Dynamic {
			msg := fmt.Sprintf("%s: field '%s' is dynamic and therefore already constant", ve.Template, fl.Name)
			slog.Warn("decl: redundant modifier", "template", ve.Template, "field", fl.Name)
			r.Warnings = append(r.Warnings, msg)
		}
		typ, plural, ok := l.types.ParseTypeName(fl.Type)
		if !ok {
			ve.Add(fl.Name, fmt.Errorf("%w: %s", ErrUnknownFieldType, fl.Type))
			continue
		}
		var mods []model.Modifier
		if fl.Constant {
			mods = append(mods, model.Constant)
		}
		if fl.Dynamic {
			mods = append(mods, model.Dynamic)
		}
		f, err := model.NewField(fl.Name, typ, !plural, fl.Default, mods...)
		if err != nil {
			ve.Add(fl.Name, err)
			continue
		}
		fields = append(fields, f)
	}
	if ve.HasErrors() {
		return nil
	}
	tmpl, err := model.NewTemplate(ve.Template, fields, model.WithType(tag))
	if err != nil {
		var tve *model.ValidationError
		if errors.As(err, &tve) {
			ve.Errors = append(ve.Errors, tve.Errors...)
		} else {
			ve.Add("template", err)
		}
		return nil
	}
	if err := tmpl.ParseFields(l.parser); err != nil {
		var tve *model.ValidationError
		if errors.As(err, &tve) {
			ve.Errors = append(ve.Errors, tve.Errors...)
		} else {
			ve.Add("template", err)
		}
		return nil
	}
	if !l.tm.AddTemplate(tmpl) {
		ve.Add("name", fmt.Errorf("struct by the name of %s: %w", tmpl.Name(), ErrDuplicateTemplate))
		return nil
	}
	return tmpl
}

// registerConverters compiles the converters of td. A bad converter is
// reported without deactivating the template.
func (l *Loader) registerConverters(td Template, tag *types.Type, r *Report) {
	ve := &model.ValidationError{Template: tag.Name()}
	for _, target := range td.ConvertTargets() {
		src := td.Converts[target]
		to, _, ok := l.types.ParseTypeName(target)
		if !ok {
			ve.Add("converts "+target, fmt.Errorf("%w: unknown target type %s", ErrInvalidConverter, target))
			continue
		}
		e, err := l.parser.ParseExpression(src, to)
		if err != nil {
			ve.Add("converts "+target, fmt.Errorf("%w: %w", ErrInvalidConverter, err))
			continue
		}
		fn := func(v any) (any, bool) {
			s, ok := v.(*model.Struct)
			if !ok {
				return nil, false
			}
			out, err := e.Evaluate(model.ForStruct(s))
			if err != nil || len(out) == 0 {
				slog.Debug("decl: converter produced nothing", "from", tag.Name(), "to", to.Name(), "err", err)
				return nil, false
			}
			return out[0], true
		}
		if err := l.types.RegisterConverter(tag, to, fn); err != nil {
			ve.Add("converts "+target, err)
		}
	}
	if ve.HasErrors() {
		r.Errors = append(r.Errors, ve)
	}
}

func (l *Loader) active(added []loaded, tag *types.Type) bool {
	for _, ld := range added {
		if ld.tag == tag {
			return true
		}
	}
	return false
}

func (l *Loader) dropTag(tag *types.Type) {
	if err := l.types.Unregister(tag); err != nil {
		slog.Debug("decl: unregistering type tag", "type", tag.Name(), "err", err)
	}
}

func (l *Loader) publish(topic string, ev any) {
	if err := l.pub.Publish(context.Background(), topic, ev); err != nil {
		slog.Warn("decl: publishing event failed", "topic", topic, "err", err)
	}
}

// structTypeSpec describes the type tag of a template: the values of the
// type are the structs made from a template of that name.
func structTypeSpec(name string) types.Spec {
	return types.Spec{
		Name:   name,
		Plural: name + "s",
		Is: func(v any) bool {
			s, ok := v.(*model.Struct)
			return ok && s.IsOf(name)
		},
	}
}
