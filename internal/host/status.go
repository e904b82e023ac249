package host

import "github.com/alfredjeanlab/structs/internal/registry"

// TemplateStatus describes one active template.
type TemplateStatus struct {
	Name        string   `json:"name"`
	Generation  int      `json:"generation"`
	Fingerprint string   `json:"fingerprint"`
	Fields      []string `json:"fields"`
	Structs     int      `json:"structs"`
}

// Status is a snapshot of a host.
type Status struct {
	Templates []TemplateStatus `json:"templates"`
	Sources   []string         `json:"sources"`
	Orphans   map[string]int   `json:"orphans,omitempty"`
	Arena     registry.Stats   `json:"arena"`
}

// Status returns a snapshot of the host's templates and arena. Orphans
// counts the orphaned structs of every template name that has any and is
// declared by no active template.
func (h *Host) Status() Status {
	var st Status
	_ = h.Do(func(s *Session) error {
		for _, t := range s.templates.Templates() {
			fields := make([]string, 0, t.Len())
			for _, f := range t.Fields() {
				fields = append(fields, f.String())
			}
			st.Templates = append(st.Templates, TemplateStatus{
				Name:        t.Name(),
				Generation:  s.templates.Generation(t.Name()),
				Fingerprint: t.Fingerprint(),
				Fields:      fields,
				Structs:     len(s.structs.Structs(t)),
			})
		}
		st.Sources = s.loader.Sources()
		for _, name := range s.structs.OrphanNames() {
			if n := len(s.structs.Orphans(name)); n > 0 {
				if st.Orphans == nil {
					st.Orphans = make(map[string]int)
				}
				st.Orphans[name] = n
			}
		}
		st.Arena = s.structs.Stats()
		return nil
	})
	return st
}
