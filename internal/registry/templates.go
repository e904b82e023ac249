package registry

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/model"
)

// TemplateManager owns the active templates by name. Adding and removing a
// template are the only triggers of the struct manager's orphan and
// reparent protocol.
type TemplateManager struct {
	structs     *StructManager
	templates   map[string]*model.Template
	generations map[string]int
}

// NewTemplateManager returns a manager driving sm. Lifecycle events go to
// sm's publisher.
func NewTemplateManager(sm *StructManager) *TemplateManager {
	return &TemplateManager{
		structs:     sm,
		templates:   make(map[string]*model.Template),
		generations: make(map[string]int),
	}
}

// Structs returns the struct manager driven by tm.
func (tm *TemplateManager) Structs() *StructManager { return tm.structs }

// AddTemplate registers t and revives any structs orphaned under its name.
// It returns false, changing nothing, when a template of the same name is
// already registered or t has not been parsed.
func (tm *TemplateManager) AddTemplate(t *model.Template) bool {
	if t == nil {
		return false
	}
	if !t.Parsed() {
		slog.Warn("registry: template rejected", "template", t.Name(), "reason", "not parsed")
		tm.structs.publish(events.TopicTemplateRejected, events.TemplateRejected{Template: t.Name(), Reason: "not parsed"})
		return false
	}
	if _, dup := tm.templates[t.Name()]; dup {
		slog.Warn("registry: template rejected", "template", t.Name(), "reason", "name taken")
		tm.structs.publish(events.TopicTemplateRejected, events.TemplateRejected{Template: t.Name(), Reason: "name taken"})
		return false
	}
	tm.templates[t.Name()] = t
	tm.generations[t.Name()]++
	slog.Debug("registry: template added", "template", t.Name(), "generation", tm.generations[t.Name()])
	tm.structs.publish(events.TopicTemplateAdded, events.TemplateAdded{
		Template:    t.Name(),
		Fields:      t.Names(),
		Fingerprint: t.Fingerprint(),
		Generation:  tm.generations[t.Name()],
	})
	tm.structs.ReparentStructs(t)
	return true
}

// RemoveTemplate unregisters t and orphans its structs. It does nothing
// unless t itself is the template registered under its name.
func (tm *TemplateManager) RemoveTemplate(t *model.Template) bool {
	if t == nil || tm.templates[t.Name()] != t {
		return false
	}
	delete(tm.templates, t.Name())
	slog.Debug("registry: template removed", "template", t.Name())
	tm.structs.publish(events.TopicTemplateRemoved, events.TemplateRemoved{Template: t.Name()})
	tm.structs.OrphanStructs(t)
	return true
}

// Template returns the registered template with the given name.
func (tm *TemplateManager) Template(name string) (*model.Template, bool) {
	t, ok := tm.templates[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Templates returns the registered templates ordered by name.
func (tm *TemplateManager) Templates() []*model.Template {
	out := make([]*model.Template, 0, len(tm.templates))
	for _, t := range tm.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Generation returns how many times a template of the given name has been
// added.
func (tm *TemplateManager) Generation(name string) int {
	return tm.generations[strings.ToLower(strings.TrimSpace(name))]
}

// FieldsMatching collects, per registered template, the fields accepted by
// pred. Templates without a match are omitted.
func (tm *TemplateManager) FieldsMatching(pred func(*model.Field) bool) map[*model.Template][]*model.Field {
	out := make(map[*model.Template][]*model.Field)
	for _, t := range tm.templates {
		for _, f := range t.Fields() {
			if pred(f) {
				out[t] = append(out[t], f)
			}
		}
	}
	return out
}

// FieldsNamed is FieldsMatching for a case-insensitive field name.
func (tm *TemplateManager) FieldsNamed(name string) map[*model.Template][]*model.Field {
	name = strings.ToLower(strings.TrimSpace(name))
	return tm.FieldsMatching(func(f *model.Field) bool { return f.Name() == name })
}
