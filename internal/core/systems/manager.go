package systems

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
)

var (
	ErrSystemExists   = errors.New("system already registered")
	ErrSystemNotFound = errors.New("system not found")
)

type registered struct {
	system  System
	seq     int
	enabled bool
	stats   Metrics
}

// Manager orchestrates registered systems: execution order, enablement and
// per-system timing. It is driven by the world's tick goroutine and is not
// safe for concurrent use.
type Manager struct {
	logger  log.Log
	metrics *metrics.Metrics

	byName map[string]*registered
	phases map[ExecutionPhase][]*registered
	seq    int
}

func NewManager(logger log.Log, m *metrics.Metrics) *Manager {
	return &Manager{
		logger:  log.OrNop(logger).Named("systems"),
		metrics: m,
		byName:  make(map[string]*registered),
		phases:  make(map[ExecutionPhase][]*registered),
	}
}

func (m *Manager) Register(s System) error {
	name := s.Name()
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrSystemExists)
	}
	m.seq++
	r := &registered{system: s, seq: m.seq, enabled: true}
	m.byName[name] = r

	list := append(m.phases[s.Phase()], r)
	slices.SortStableFunc(list, func(a, b *registered) int {
		if a.system.Priority() != b.system.Priority() {
			return int(b.system.Priority()) - int(a.system.Priority())
		}
		return a.seq - b.seq
	})
	m.phases[s.Phase()] = list

	m.logger.Debug("system registered",
		log.String("system", name),
		log.Stringer("phase", s.Phase()),
		log.Int("priority", int(s.Priority())),
	)
	return nil
}

func (m *Manager) Unregister(name string) error {
	r, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("unregister %q: %w", name, ErrSystemNotFound)
	}
	delete(m.byName, name)
	phase := r.system.Phase()
	m.phases[phase] = slices.DeleteFunc(m.phases[phase], func(x *registered) bool { return x == r })
	return nil
}

func (m *Manager) Get(name string) (System, bool) {
	r, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return r.system, true
}

func (m *Manager) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

func (m *Manager) SetEnabled(name string, enabled bool) error {
	r, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("enable %q: %w", name, ErrSystemNotFound)
	}
	r.enabled = enabled
	return nil
}

func (m *Manager) Enabled(name string) bool {
	r, ok := m.byName[name]
	return ok && r.enabled
}

// ExecutionOrder returns system names in the order one tick runs them.
func (m *Manager) ExecutionOrder() []string {
	var names []string
	for _, p := range Phases {
		for _, r := range m.phases[p] {
			names = append(names, r.system.Name())
		}
	}
	return names
}

// Metrics returns the timing collected for name.
func (m *Manager) Metrics(name string) (Metrics, bool) {
	r, ok := m.byName[name]
	if !ok {
		return Metrics{}, false
	}
	return r.stats, true
}

// RunPhase runs the enabled systems of phase. A failing system does not stop
// the others; failures are joined into the returned error.
func (m *Manager) RunPhase(ctx context.Context, phase ExecutionPhase, dt float64) error {
	var errs []error
	for _, r := range m.phases[phase] {
		if !r.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := r.system.FixedUpdate(ctx, dt)
		d := time.Since(start)

		r.stats.observe(d, err)
		m.metrics.ObserveSystem(r.system.Name(), d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.system.Name(), err))
		}
	}
	return errors.Join(errs...)
}
