// Package host bundles the type registry, the expression parser, both
// registries and the declaration loader into the unit a scripting host
// embeds. The registries are not safe for concurrent use; a Host
// serializes every access behind one lock.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/structs/internal/access"
	"github.com/alfredjeanlab/structs/internal/config"
	"github.com/alfredjeanlab/structs/internal/decl"
	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/registry"
	"github.com/alfredjeanlab/structs/internal/script"
	"github.com/alfredjeanlab/structs/internal/types"
)

// Host owns one set of registries.
type Host struct {
	mu    sync.Mutex
	sess  *Session
	pub   events.Publisher
	paths []string

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Session is the view of a host while its lock is held. It must not be
// retained after the function it was passed to returns.
type Session struct {
	types     *types.Registry
	parser    *script.Parser
	structs   *registry.StructManager
	templates *registry.TemplateManager
	loader    *decl.Loader
}

type options struct {
	pub      events.Publisher
	idPrefix string
	paths    []string
}

// Option configures a Host.
type Option func(*options)

// WithPublisher sends lifecycle events to p. The host closes p on Close.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.pub = p }
}

// WithIDPrefix sets the prefix of generated struct ids.
func WithIDPrefix(prefix string) Option {
	return func(o *options) { o.idPrefix = prefix }
}

// WithTemplatePaths sets the declaration files and directories read by
// LoadTemplates.
func WithTemplatePaths(paths ...string) Option {
	return func(o *options) { o.paths = paths }
}

// New returns a host with empty registries.
func New(opts ...Option) *Host {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pub == nil {
		o.pub = &events.NoopPublisher{}
	}
	reg := types.NewRegistry()
	smOpts := []registry.Option{registry.WithCoercer(reg), registry.WithPublisher(o.pub)}
	if o.idPrefix != "" {
		smOpts = append(smOpts, registry.WithIDPrefix(o.idPrefix))
	}
	sm := registry.NewStructManager(smOpts...)
	tm := registry.NewTemplateManager(sm)
	parser := script.NewParser(reg)
	return &Host{
		pub:   o.pub,
		paths: o.paths,
		sess: &Session{
			types:     reg,
			parser:    parser,
			structs:   sm,
			templates: tm,
			loader:    decl.NewLoader(reg, parser, tm, o.pub),
		},
	}
}

// FromConfig builds a host from cfg, connecting to NATS when a URL is set.
func FromConfig(cfg *config.Config) (*Host, error) {
	opts := []Option{WithIDPrefix(cfg.IDPrefix), WithTemplatePaths(cfg.TemplatePaths...)}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		slog.Info("host: publishing events", "nats_url", cfg.NATSURL)
		opts = append(opts, WithPublisher(pub))
	}
	return New(opts...), nil
}

// Do runs fn with the host locked.
func (h *Host) Do(fn func(*Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.sess)
}

// LoadTemplates loads the configured template paths. Definition errors are
// in the reports; the error is for paths that could not be read.
func (h *Host) LoadTemplates() ([]*decl.Report, error) {
	if len(h.paths) == 0 {
		return nil, nil
	}
	var reports []*decl.Report
	err := h.Do(func(s *Session) error {
		var err error
		reports, err = s.loader.LoadPaths(h.paths...)
		return err
	})
	return reports, err
}

// Close stops the sweeper and closes the publisher.
func (h *Host) Close() error {
	h.StopSweeper()
	var errs []error
	if f, ok := h.pub.(interface{ Flush() error }); ok {
		errs = append(errs, f.Flush())
	}
	errs = append(errs, h.pub.Close())
	return errors.Join(errs...)
}

// Types returns the type registry.
func (s *Session) Types() *types.Registry { return s.types }

// Parser returns the expression parser.
func (s *Session) Parser() *script.Parser { return s.parser }

// Structs returns the struct manager.
func (s *Session) Structs() *registry.StructManager { return s.structs }

// Templates returns the template manager.
func (s *Session) Templates() *registry.TemplateManager { return s.templates }

// Loader returns the declaration loader.
func (s *Session) Loader() *decl.Loader { return s.loader }

// Resolve builds a field access for name against the active templates.
func (s *Session) Resolve(name string) (*access.Access, error) {
	return access.Resolve(name, s.templates, s.types)
}
