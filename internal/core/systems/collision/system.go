package collision

import (
	"fmt"
	"slices"

	"github.com/zeusync/simcore/internal/core/events"
	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/systems/spatial"
	"github.com/zeusync/simcore/pkg/geom"
)

// MotionSource supplies the velocity used to widen a collider's broad-phase box.
type MotionSource interface {
	Velocity(id models.EntityID) (geom.Vec2, bool)
}

// Contact is a solid or trigger overlap between A and B (A < B). Normal points
// from A towards B.
type Contact struct {
	A       models.EntityID
	B       models.EntityID
	Normal  geom.Vec2
	Depth   float64
	Trigger bool
}

func (c Contact) Pair() models.Pair { return models.Pair{A: c.A, B: c.B} }

type entry struct {
	collider  models.Collider
	transform models.Transform
	center    geom.Vec2
	bounds    geom.AABB
}

func (e *entry) place(t models.Transform) {
	e.transform = t
	e.center = e.collider.Center(t)
	e.bounds = e.collider.Bounds(t)
}

// System owns collider registration, the broad-phase index and the contact
// lifecycle. It is driven once per (sub)step by Step and is not safe for
// concurrent use.
type System struct {
	logger  log.Log
	metrics *metrics.Metrics

	index   *spatial.Quadtree
	entries map[models.EntityID]*entry

	active      []models.EntityID
	activeDirty bool

	prev   map[models.Pair]Contact
	queue  *events.Queue[Event]
	tested map[models.Pair]struct{}
	cands  []models.EntityID

	staticVersion uint64
}

func New(cfg spatial.Config, logger log.Log, m *metrics.Metrics) (*System, error) {
	index, err := spatial.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("collision: %w", err)
	}
	return &System{
		logger:  log.OrNop(logger).Named("collision"),
		metrics: m,
		index:   index,
		entries: make(map[models.EntityID]*entry),
		prev:    make(map[models.Pair]Contact),
		queue:   events.NewQueue[Event](64),
		tested:  make(map[models.Pair]struct{}),
	}, nil
}

// Register validates the collider and indexes it. Degenerate geometry is rejected.
func (s *System) Register(id models.EntityID, c models.Collider, t models.Transform) error {
	if _, ok := s.entries[id]; ok {
		return fmt.Errorf("register %s: %w", id, models.ErrAlreadyRegistered)
	}
	if err := c.Validate(); err != nil {
		s.logger.Debug("collider rejected", log.Stringer("entity", id), log.Error(err))
		return fmt.Errorf("register %s: %w", id, err)
	}
	if !t.Position.IsFinite() {
		return fmt.Errorf("register %s: %w: non-finite position", id, models.ErrInvalidGeometry)
	}

	e := &entry{collider: c}
	e.place(t)
	if err := s.index.Insert(id, e.bounds); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	s.entries[id] = e
	if c.Static {
		s.staticVersion++
	} else {
		s.activeDirty = true
	}
	return nil
}

// Unregister removes the collider. Pairs it took part in emit Exit on the next Step.
func (s *System) Unregister(id models.EntityID) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("unregister %s: %w", id, models.ErrEntityNotFound)
	}
	if err := s.index.Remove(id); err != nil {
		return fmt.Errorf("unregister %s: %w", id, err)
	}
	delete(s.entries, id)
	if e.collider.Static {
		s.staticVersion++
	} else {
		s.activeDirty = true
	}
	return nil
}

// OnMove re-indexes the collider at its new transform.
func (s *System) OnMove(id models.EntityID, t models.Transform) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, models.ErrEntityNotFound)
	}
	if !t.Position.IsFinite() {
		return fmt.Errorf("move %s: %w: non-finite position", id, models.ErrInvalidGeometry)
	}
	if e.transform == t {
		return nil
	}
	e.place(t)
	if err := s.index.Update(id, e.bounds); err != nil {
		return fmt.Errorf("move %s: %w", id, err)
	}
	if e.collider.Static {
		s.staticVersion++
	}
	return nil
}

// Collider returns the registered collider for id.
func (s *System) Collider(id models.EntityID) (models.Collider, bool) {
	e, ok := s.entries[id]
	if !ok {
		return models.Collider{}, false
	}
	return e.collider, true
}

// Len returns the number of registered colliders.
func (s *System) Len() int { return len(s.entries) }

// Events exposes the contact event queue; drain it once per tick.
func (s *System) Events() *events.Queue[Event] { return s.queue }

// ActiveContacts returns the number of pairs overlapping after the last Step.
func (s *System) ActiveContacts() int { return len(s.prev) }

// Touching reports whether a and b overlapped in the last Step.
func (s *System) Touching(a, b models.EntityID) bool {
	_, ok := s.prev[models.MakePair(a, b)]
	return ok
}

// StaticVersion changes whenever static geometry is added, removed or moved.
func (s *System) StaticVersion() uint64 { return s.staticVersion }

// IndexStats exposes the broad-phase statistics.
func (s *System) IndexStats() spatial.Statistics { return s.index.Stats() }

// EachStatic visits static, non-trigger colliders in ascending id order.
func (s *System) EachStatic(fn func(id models.EntityID, c models.Collider, t models.Transform)) {
	ids := make([]models.EntityID, 0, len(s.entries))
	for id, e := range s.entries {
		if e.collider.Static && !e.collider.IsTrigger {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		e := s.entries[id]
		fn(id, e.collider, e.transform)
	}
}

// QueryRegion returns ids whose bounding boxes intersect region and whose layer
// is in mask, in ascending order.
func (s *System) QueryRegion(region geom.AABB, mask uint32) []models.EntityID {
	cands := s.index.Query(region, nil)
	out := cands[:0]
	for _, id := range cands {
		if s.entries[id].collider.Layer&mask != 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (s *System) activeIDs() []models.EntityID {
	if !s.activeDirty {
		return s.active
	}
	s.active = s.active[:0]
	for id, e := range s.entries {
		if !e.collider.Static {
			s.active = append(s.active, id)
		}
	}
	slices.Sort(s.active)
	s.activeDirty = false
	return s.active
}

// Step detects overlaps for the current transforms, pushes Enter/Stay/Exit events
// and returns the solid contacts in pair order. motion may be nil.
func (s *System) Step(dt float64, motion MotionSource) []Contact {
	if s.index.NeedsRebuild() {
		s.index.Rebuild()
		s.metrics.QuadtreeRebuild()
		s.logger.Debug("spatial index rebuilt", log.Int("items", s.index.Len()))
	}

	current := make(map[models.Pair]Contact, len(s.prev))
	clear(s.tested)

	for _, id := range s.activeIDs() {
		e := s.entries[id]
		region := e.bounds
		if motion != nil {
			if v, ok := motion.Velocity(id); ok && v.IsFinite() {
				region = region.Sweep(v.Scale(dt))
			}
		}

		s.cands = s.index.Query(region, s.cands[:0])
		for _, other := range s.cands {
			if other == id {
				continue
			}
			pair := models.MakePair(id, other)
			if _, seen := s.tested[pair]; seen {
				continue
			}
			s.tested[pair] = struct{}{}

			a, b := s.entries[pair.A], s.entries[pair.B]
			if !models.CanCollide(a.collider, b.collider) {
				continue
			}
			m, ok := Test(a.collider.Shape, a.center, b.collider.Shape, b.center)
			if !ok {
				continue
			}
			current[pair] = Contact{
				A:       pair.A,
				B:       pair.B,
				Normal:  m.Normal,
				Depth:   m.Depth,
				Trigger: a.collider.IsTrigger || b.collider.IsTrigger,
			}
		}
	}

	solid := s.diff(current)
	s.prev = current
	s.metrics.SetActiveContacts(len(current))
	return solid
}

func (s *System) diff(current map[models.Pair]Contact) []Contact {
	pairs := make([]models.Pair, 0, len(current))
	for p := range current {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, comparePairs)

	solid := make([]Contact, 0, len(pairs))
	for _, p := range pairs {
		c := current[p]
		kind := EventEnter
		if _, ok := s.prev[p]; ok {
			kind = EventStay
		}
		s.emit(kind, c)
		if !c.Trigger {
			solid = append(solid, c)
		}
	}

	exits := make([]models.Pair, 0)
	for p := range s.prev {
		if _, ok := current[p]; !ok {
			exits = append(exits, p)
		}
	}
	slices.SortFunc(exits, comparePairs)
	for _, p := range exits {
		s.emit(EventExit, s.prev[p])
	}
	return solid
}

func (s *System) emit(kind EventKind, c Contact) {
	s.queue.Push(Event{Kind: kind, Contact: c})
	s.metrics.CollisionEvent(kind.String())
}

func comparePairs(a, b models.Pair) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
