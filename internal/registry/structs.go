// Package registry tracks live structs and the templates they are made from.
// The struct manager is an arena of generation-stamped slots; the template
// manager owns the name → template table and drives the orphan/reparent
// protocol on every add and remove.
//
// Neither manager is safe for concurrent use. Both tolerate being read
// while expressions run during reparenting.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/idgen"
	"github.com/alfredjeanlab/structs/internal/model"
	"github.com/alfredjeanlab/structs/internal/types"
)

var (
	ErrTemplateNotReady = errors.New("template has not been parsed")
	ErrUnknownStruct    = errors.New("struct is not managed or was released")
)

// Handle addresses a struct in the arena. A handle is valid while the
// generation of its slot matches; the zero Handle is never valid.
type Handle struct {
	Index uint32
	Gen   uint32
}

func (h Handle) String() string { return fmt.Sprintf("#%d.%d", h.Index, h.Gen) }

type slot struct {
	s      *model.Struct
	gen    uint32
	orphan bool
}

type handleSet map[Handle]struct{}

// Stats summarizes the arena after pruning dead membership entries.
type Stats struct {
	Live         int `json:"live"`
	Free         int `json:"free"`
	Active       int `json:"active"`
	Orphaned     int `json:"orphaned"`
	ActiveSets   int `json:"active_sets"`
	OrphanedSets int `json:"orphaned_sets"`
}

// StructManager owns every struct. Structs are ACTIVE under the template
// they were made from or ORPHANED under the name of a removed template.
// Membership sets hold handles, not structs: a released handle stays in
// its set until the next enumeration prunes it.
type StructManager struct {
	slots    []slot
	free     []uint32
	index    map[*model.Struct]Handle
	byID     map[string]Handle
	active   map[*model.Template]handleSet
	orphaned map[string]handleSet

	coercer types.Coercer
	pub     events.Publisher
	ids     idgen.Generator
}

// Option configures a StructManager.
type Option func(*StructManager)

// WithCoercer sets the coercer used for initial values.
func WithCoercer(c types.Coercer) Option {
	return func(m *StructManager) { m.coercer = c }
}

// WithPublisher sets the publisher for lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(m *StructManager) { m.pub = p }
}

// WithIDPrefix sets the prefix of generated struct ids.
func WithIDPrefix(prefix string) Option {
	return func(m *StructManager) { m.ids.Prefix = prefix }
}

// NewStructManager returns an empty manager.
func NewStructManager(opts ...Option) *StructManager {
	m := &StructManager{
		// Slot 0 is reserved so the zero Handle is never valid.
		slots:    make([]slot, 1),
		index:    make(map[*model.Struct]Handle),
		byID:     make(map[string]Handle),
		active:   make(map[*model.Template]handleSet),
		orphaned: make(map[string]handleSet),
		pub:      &events.NoopPublisher{},
	}
	m.ids.Prefix = idgen.DefaultPrefix
	for _, opt := range opts {
		opt(m)
	}
	m.ids.InUse = func(id string) bool {
		_, taken := m.byID[id]
		return taken
	}
	return m
}

// CreateStruct builds a struct of t and registers it as active under t.
func (m *StructManager) CreateStruct(t *model.Template, ctx *model.EvalContext, initial map[string]model.Expression) (*model.Struct, error) {
	if t == nil || !t.Parsed() {
		return nil, fmt.Errorf("creating struct of %v: %w", t, ErrTemplateNotReady)
	}
	id, err := m.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("creating struct of %s: %w", t, err)
	}
	s, err := model.NewStruct(id, t, ctx, initial, m.coercer)
	if err != nil {
		return nil, fmt.Errorf("creating struct of %s: %w", t, err)
	}
	h := m.alloc(s)
	m.join(h, s, false)
	slog.Debug("registry: struct created", "id", id, "template", t.Name(), "handle", h)
	m.publish(events.TopicStructCreated, events.StructCreated{ID: id, Template: t.Name()})
	return s, nil
}

// Copy registers a clone of s in the same state (active or orphaned) as s.
func (m *StructManager) Copy(s *model.Struct) (*model.Struct, error) {
	h, ok := m.index[s]
	if !ok {
		return nil, fmt.Errorf("copying %v: %w", s, ErrUnknownStruct)
	}
	id, err := m.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("copying %s: %w", s, err)
	}
	c := s.Clone(id)
	ch := m.alloc(c)
	m.join(ch, c, m.slots[h.Index].orphan)
	m.publish(events.TopicStructCopied, events.StructCopied{ID: id, SourceID: s.ID(), Template: s.Template().Name()})
	return c, nil
}

// DeleteStruct removes s from its set, dropping the set when it empties,
// and frees its slot. It reports whether s was managed.
func (m *StructManager) DeleteStruct(s *model.Struct) bool {
	h, ok := m.index[s]
	if !ok {
		return false
	}
	sl := m.slots[h.Index]
	if sl.orphan {
		name := s.Template().Name()
		if set := m.orphaned[name]; set != nil {
			delete(set, h)
			if len(set) == 0 {
				delete(m.orphaned, name)
			}
		}
	} else if set := m.active[s.Template()]; set != nil {
		delete(set, h)
		if len(set) == 0 {
			delete(m.active, s.Template())
		}
	}
	m.release(h)
	m.publish(events.TopicStructDeleted, events.StructDeleted{ID: s.ID(), Template: s.Template().Name()})
	return true
}

// Release invalidates h. Its membership entry is pruned lazily.
func (m *StructManager) Release(h Handle) bool {
	if _, ok := m.Lookup(h); !ok {
		return false
	}
	m.release(h)
	return true
}

// Lookup returns the struct addressed by h, if h is still valid.
func (m *StructManager) Lookup(h Handle) (*model.Struct, bool) {
	if h.Index == 0 || int(h.Index) >= len(m.slots) {
		return nil, false
	}
	sl := m.slots[h.Index]
	if sl.s == nil || sl.gen != h.Gen {
		return nil, false
	}
	return sl.s, true
}

// LookupID returns the live struct with the given id.
func (m *StructManager) LookupID(id string) (*model.Struct, bool) {
	h, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return m.Lookup(h)
}

// HandleOf returns the handle of a managed struct.
func (m *StructManager) HandleOf(s *model.Struct) (Handle, bool) {
	h, ok := m.index[s]
	return h, ok
}

// IsOrphaned reports whether s is waiting for a template of its name.
func (m *StructManager) IsOrphaned(s *model.Struct) bool {
	h, ok := m.index[s]
	return ok && m.slots[h.Index].orphan
}

// Structs returns the live active structs of t ordered by creation slot.
func (m *StructManager) Structs(t *model.Template) []*model.Struct {
	return m.members(m.prune(m.active[t]))
}

// Orphans returns the live orphaned structs waiting under name.
func (m *StructManager) Orphans(name string) []*model.Struct {
	return m.members(m.prune(m.orphaned[name]))
}

// OrphanNames returns the template names with an orphaned set, sorted.
// Sets may hold only released handles until the next Sweep.
func (m *StructManager) OrphanNames() []string {
	out := make([]string, 0, len(m.orphaned))
	for name := range m.orphaned {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OrphanStructs moves the whole active set of t to the orphaned set of its
// name, merging with orphans already waiting there. It returns the number
// of live structs moved.
func (m *StructManager) OrphanStructs(t *model.Template) int {
	set := m.prune(m.active[t])
	delete(m.active, t)
	if len(set) == 0 {
		return 0
	}
	for h := range set {
		m.slots[h.Index].orphan = true
	}
	name := t.Name()
	if existing := m.orphaned[name]; existing != nil {
		for h := range set {
			existing[h] = struct{}{}
		}
	} else {
		m.orphaned[name] = set
	}
	slog.Info("registry: structs orphaned", "template", name, "count", len(set))
	m.publish(events.TopicStructsOrphaned, events.StructsOrphaned{Template: name, Count: len(set)})
	return len(set)
}

// ReparentStructs migrates every struct orphaned under t's name to t and
// makes them active under t. It reports whether any migration lost data;
// loss is logged once for the whole batch.
func (m *StructManager) ReparentStructs(t *model.Template) bool {
	name := t.Name()
	set := m.prune(m.orphaned[name])
	if len(set) == 0 {
		delete(m.orphaned, name)
		return false
	}
	// The batch stays in the orphaned set until every migration has run, so
	// expressions evaluated during migration see each struct in exactly one
	// set.
	batch := m.members(set)
	var lost []string
	for _, s := range batch {
		if s.Migrate(t) {
			lost = append(lost, s.ID())
		}
	}
	for _, s := range batch {
		h, ok := m.index[s]
		if !ok {
			continue // released during migration
		}
		delete(set, h)
		m.join(h, s, false)
	}
	if len(m.prune(m.orphaned[name])) == 0 {
		delete(m.orphaned, name)
	}
	destructive := len(lost) > 0
	if destructive {
		slog.Warn("registry: reparenting lost data; fields were removed or changed type",
			"template", name, "structs", len(lost), "of", len(batch))
		m.publish(events.TopicMigrationLossy, events.MigrationLossy{Template: name, Count: len(lost), IDs: lost})
	}
	slog.Info("registry: structs reparented", "template", name, "count", len(batch), "destructive", destructive)
	m.publish(events.TopicStructsReparented, events.StructsReparented{Template: name, Count: len(batch), Destructive: destructive})
	return destructive
}

// Sweep prunes dead handles from every membership set and drops sets that
// become empty. It returns the number of entries removed.
func (m *StructManager) Sweep() int {
	removed := 0
	for t, set := range m.active {
		removed += m.pruneCount(set)
		if len(set) == 0 {
			delete(m.active, t)
		}
	}
	for name, set := range m.orphaned {
		removed += m.pruneCount(set)
		if len(set) == 0 {
			delete(m.orphaned, name)
		}
	}
	if removed > 0 {
		slog.Debug("registry: swept released structs", "removed", removed)
	}
	return removed
}

// Stats sweeps and then reports arena occupancy.
func (m *StructManager) Stats() Stats {
	m.Sweep()
	st := Stats{
		Live:         len(m.index),
		Free:         len(m.free),
		ActiveSets:   len(m.active),
		OrphanedSets: len(m.orphaned),
	}
	for _, set := range m.active {
		st.Active += len(set)
	}
	for _, set := range m.orphaned {
		st.Orphaned += len(set)
	}
	return st
}

// Scope returns a scope whose structs are released when it closes.
func (m *StructManager) Scope() *Scope {
	return &Scope{m: m}
}

func (m *StructManager) alloc(s *model.Struct) Handle {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, slot{})
		idx = uint32(len(m.slots) - 1)
	}
	sl := &m.slots[idx]
	sl.gen++
	sl.s = s
	sl.orphan = false
	h := Handle{Index: idx, Gen: sl.gen}
	m.index[s] = h
	m.byID[s.ID()] = h
	return h
}

func (m *StructManager) release(h Handle) {
	sl := &m.slots[h.Index]
	delete(m.index, sl.s)
	delete(m.byID, sl.s.ID())
	sl.s = nil
	sl.orphan = false
	sl.gen++
	m.free = append(m.free, h.Index)
}

func (m *StructManager) join(h Handle, s *model.Struct, orphan bool) {
	m.slots[h.Index].orphan = orphan
	if orphan {
		name := s.Template().Name()
		if m.orphaned[name] == nil {
			m.orphaned[name] = make(handleSet)
		}
		m.orphaned[name][h] = struct{}{}
		return
	}
	t := s.Template()
	if m.active[t] == nil {
		m.active[t] = make(handleSet)
	}
	m.active[t][h] = struct{}{}
}

func (m *StructManager) live(h Handle) bool {
	_, ok := m.Lookup(h)
	return ok
}

func (m *StructManager) pruneCount(set handleSet) int {
	n := 0
	for h := range set {
		if !m.live(h) {
			delete(set, h)
			n++
		}
	}
	return n
}

func (m *StructManager) prune(set handleSet) handleSet {
	m.pruneCount(set)
	return set
}

func (m *StructManager) members(set handleSet) []*model.Struct {
	hs := make([]Handle, 0, len(set))
	for h := range set {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Index < hs[j].Index })
	out := make([]*model.Struct, 0, len(hs))
	for _, h := range hs {
		if s, ok := m.Lookup(h); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *StructManager) publish(topic string, ev any) {
	if err := m.pub.Publish(context.Background(), topic, ev); err != nil {
		slog.Warn("registry: publishing event failed", "topic", topic, "err", err)
	}
}

// Scope owns the structs created through it. Closing the scope releases
// them, invalidating their handles.
type Scope struct {
	m       *StructManager
	handles []Handle
	closed  bool
}

// CreateStruct creates a struct owned by the scope.
func (sc *Scope) CreateStruct(t *model.Template, ctx *model.EvalContext, initial map[string]model.Expression) (*model.Struct, error) {
	if sc.closed {
		return nil, errors.New("registry: scope is closed")
	}
	s, err := sc.m.CreateStruct(t, ctx, initial)
	if err != nil {
		return nil, err
	}
	sc.handles = append(sc.handles, sc.m.index[s])
	return s, nil
}

// Adopt transfers ownership of an existing struct to the scope.
func (sc *Scope) Adopt(s *model.Struct) bool {
	h, ok := sc.m.HandleOf(s)
	if !ok || sc.closed {
		return false
	}
	sc.handles = append(sc.handles, h)
	return true
}

// Close releases every struct still owned by the scope and returns how many
// were released.
func (sc *Scope) Close() int {
	if sc.closed {
		return 0
	}
	sc.closed = true
	n := 0
	for _, h := range sc.handles {
		if sc.m.Release(h) {
			n++
		}
	}
	sc.handles = nil
	return n
}
