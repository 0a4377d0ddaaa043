package physics

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/zeusync/simcore/internal/core/events"
	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/systems/collision"
	"github.com/zeusync/simcore/pkg/geom"
)

var ErrNilTransform = errors.New("physics: body has no transform")

// Config holds the solver parameters.
type Config struct {
	Gravity geom.Vec2 `yaml:"gravity"`
	// Iterations is the number of impulse passes per Resolve. Positional
	// correction is applied once, on the first pass.
	Iterations int `yaml:"iterations"`
}

func DefaultConfig() Config {
	return Config{Iterations: 1}
}

func (c Config) Validate() error {
	var errs []error
	if !c.Gravity.IsFinite() {
		errs = append(errs, fmt.Errorf("physics: gravity must be finite"))
	}
	if c.Iterations < 1 {
		errs = append(errs, fmt.Errorf("physics: iterations must be >= 1, got %d", c.Iterations))
	}
	return errors.Join(errs...)
}

// Stage names where an instability was detected.
const (
	StageIntegrate = "integrate"
	StageResolve   = "resolve"
)

// Instability reports a body that produced non-finite state and was frozen.
type Instability struct {
	Entity   models.EntityID
	Stage    string
	Position geom.Vec2 // restored position
	Velocity geom.Vec2 // offending velocity
}

type state struct {
	body      *models.RigidBody
	transform *models.Transform
}

// System integrates rigid bodies and resolves collision manifolds. Body and
// transform pointers belong to the caller's component store; the system mutates
// them in place.
type System struct {
	cfg     Config
	logger  log.Log
	metrics *metrics.Metrics

	bodies map[models.EntityID]state
	order  []models.EntityID
	dirty  bool

	reports *events.Queue[Instability]
}

func New(cfg Config, logger log.Log, m *metrics.Metrics) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &System{
		cfg:     cfg,
		logger:  log.OrNop(logger).Named("physics"),
		metrics: m,
		bodies:  make(map[models.EntityID]state),
		reports: events.NewQueue[Instability](8),
	}, nil
}

func (s *System) Config() Config { return s.cfg }

// Instabilities exposes frozen-body reports; drain once per tick.
func (s *System) Instabilities() *events.Queue[Instability] { return s.reports }

// AddBody starts simulating body, moving t.
func (s *System) AddBody(id models.EntityID, body *models.RigidBody, t *models.Transform) error {
	if _, ok := s.bodies[id]; ok {
		return fmt.Errorf("add body %s: %w", id, models.ErrAlreadyRegistered)
	}
	if t == nil {
		return fmt.Errorf("add body %s: %w", id, ErrNilTransform)
	}
	if err := body.Validate(); err != nil {
		return fmt.Errorf("add body %s: %w", id, err)
	}
	s.bodies[id] = state{body: body, transform: t}
	s.dirty = true
	return nil
}

func (s *System) RemoveBody(id models.EntityID) error {
	if _, ok := s.bodies[id]; !ok {
		return fmt.Errorf("remove body %s: %w", id, models.ErrEntityNotFound)
	}
	delete(s.bodies, id)
	s.dirty = true
	return nil
}

// Body returns the simulated body for id.
func (s *System) Body(id models.EntityID) (*models.RigidBody, bool) {
	st, ok := s.bodies[id]
	return st.body, ok
}

func (s *System) Len() int { return len(s.bodies) }

// Velocity implements collision.MotionSource.
func (s *System) Velocity(id models.EntityID) (geom.Vec2, bool) {
	st, ok := s.bodies[id]
	if !ok || st.body.Type == models.BodyStatic {
		return geom.Vec2{}, false
	}
	return st.body.Velocity, true
}

// SetVelocity overrides the velocity of a kinematic or dynamic body.
func (s *System) SetVelocity(id models.EntityID, v geom.Vec2) error {
	st, ok := s.bodies[id]
	if !ok {
		return fmt.Errorf("set velocity %s: %w", id, models.ErrEntityNotFound)
	}
	if !v.IsFinite() {
		return fmt.Errorf("set velocity %s: %w: non-finite velocity", id, models.ErrInvalidBody)
	}
	if st.body.Type == models.BodyStatic || st.body.Unstable {
		return nil
	}
	st.body.Velocity = freeze(st.body, v)
	return nil
}

func (s *System) ids() []models.EntityID {
	if s.dirty {
		s.order = s.order[:0]
		for id := range s.bodies {
			s.order = append(s.order, id)
		}
		slices.Sort(s.order)
		s.dirty = false
	}
	return s.order
}

// Integrate advances every body by dt and returns the ids whose position changed,
// in ascending order.
func (s *System) Integrate(dt float64) []models.EntityID {
	var moved []models.EntityID
	for _, id := range s.ids() {
		st := s.bodies[id]
		b, t := st.body, st.transform
		prev := t.Position

		switch b.Type {
		case models.BodyStatic:
			b.Force = geom.Vec2{}
			continue
		case models.BodyKinematic:
			b.Velocity = freeze(b, b.Velocity)
		case models.BodyDynamic:
			if b.Unstable {
				b.Force = geom.Vec2{}
				continue
			}
			total := b.Force.Add(s.cfg.Gravity.Scale(b.Mass))
			v := b.Velocity.Add(total.Scale(dt / b.Mass))
			v = v.Scale(math.Max(0, 1-b.Drag*dt))
			b.Velocity = freeze(b, v)
		}
		b.Force = geom.Vec2{}
		t.Position = t.Position.Add(b.Velocity.Scale(dt))

		if !b.Velocity.IsFinite() || !t.Position.IsFinite() {
			s.destabilize(id, st, prev, StageIntegrate)
			continue
		}
		if t.Position != prev {
			moved = append(moved, id)
		}
	}
	return moved
}

// Resolve separates solid contacts and applies restitution impulses. Colliders
// without a body, static, kinematic and unstable bodies have infinite mass. The
// returned ids had their position corrected, in ascending order.
func (s *System) Resolve(contacts []collision.Contact) []models.EntityID {
	if len(contacts) == 0 {
		return nil
	}
	touched := make(map[models.EntityID]geom.Vec2)
	for pass := 0; pass < s.cfg.Iterations; pass++ {
		for _, c := range contacts {
			if c.Trigger {
				continue
			}
			a, aok := s.bodies[c.A]
			b, bok := s.bodies[c.B]
			invA, invB := a.body.InverseMass(), b.body.InverseMass()
			invSum := invA + invB
			if invSum == 0 {
				continue
			}
			if pass == 0 {
				corr := c.Normal.Scale(c.Depth / invSum)
				if aok && invA > 0 {
					s.shift(touched, c.A, a, corr.Scale(-invA))
				}
				if bok && invB > 0 {
					s.shift(touched, c.B, b, corr.Scale(invB))
				}
			}
			s.impulse(c, a, b, invA, invB)
		}
	}

	moved := make([]models.EntityID, 0, len(touched))
	for id := range touched {
		moved = append(moved, id)
	}
	slices.Sort(moved)

	out := moved[:0]
	for _, id := range moved {
		st := s.bodies[id]
		if !st.body.Velocity.IsFinite() || !st.transform.Position.IsFinite() {
			s.destabilize(id, st, touched[id], StageResolve)
		}
		if st.transform.Position != touched[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *System) shift(touched map[models.EntityID]geom.Vec2, id models.EntityID, st state, d geom.Vec2) {
	if _, ok := touched[id]; !ok {
		touched[id] = st.transform.Position
	}
	if st.body.FreezeX {
		d.X = 0
	}
	if st.body.FreezeY {
		d.Y = 0
	}
	st.transform.Position = st.transform.Position.Add(d)
}

func (s *System) impulse(c collision.Contact, a, b state, invA, invB float64) {
	var va, vb geom.Vec2
	e := 1.0
	if a.body != nil {
		va = a.body.Velocity
		e = a.body.Restitution
	}
	if b.body != nil {
		vb = b.body.Velocity
		if a.body == nil || b.body.Restitution < e {
			e = b.body.Restitution
		}
	}
	vn := vb.Sub(va).Dot(c.Normal)
	if vn > 0 {
		return
	}
	j := -(1 + e) * vn / (invA + invB)
	impulse := c.Normal.Scale(j)
	if invA > 0 {
		a.body.Velocity = freeze(a.body, va.Sub(impulse.Scale(invA)))
	}
	if invB > 0 {
		b.body.Velocity = freeze(b.body, vb.Add(impulse.Scale(invB)))
	}
}

func (s *System) destabilize(id models.EntityID, st state, restore geom.Vec2, stage string) {
	bad := st.body.Velocity
	st.transform.Position = restore
	st.body.Velocity = geom.Vec2{}
	st.body.Force = geom.Vec2{}
	st.body.Unstable = true

	s.reports.Push(Instability{Entity: id, Stage: stage, Position: restore, Velocity: bad})
	s.metrics.Instability()
	s.logger.Warn("body frozen after non-finite state",
		log.Stringer("entity", id),
		log.String("stage", stage),
		log.Float64("vx", bad.X),
		log.Float64("vy", bad.Y),
	)
}

func freeze(b *models.RigidBody, v geom.Vec2) geom.Vec2 {
	if b.FreezeX {
		v.X = 0
	}
	if b.FreezeY {
		v.Y = 0
	}
	return v
}
