package world

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/simcore/internal/core/events"
	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/systems"
	"github.com/zeusync/simcore/internal/core/systems/collision"
	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/internal/core/systems/pathfinding"
	"github.com/zeusync/simcore/internal/core/systems/physics"
	"github.com/zeusync/simcore/internal/core/systems/steering"
	"github.com/zeusync/simcore/pkg/geom"
)

// Entity is the component data handed to Spawn. Collider and Body are optional;
// the world keeps its own copies.
type Entity struct {
	Transform models.Transform
	Collider  *models.Collider
	Body      *models.RigidBody
}

// Summary describes one finished tick.
type Summary struct {
	Tick          uint64        `json:"tick"`
	SimTime       float64       `json:"sim_time"`
	Entities      int           `json:"entities"`
	Contacts      int           `json:"contacts"`
	Events        int           `json:"events"`
	Instabilities int           `json:"instabilities"`
	PendingPaths  int           `json:"pending_paths"`
	NavVersion    uint64        `json:"nav_version"`
	Hash          uint64        `json:"hash"`
	Duration      time.Duration `json:"duration_ns"`
}

// World owns the component stores of the spatial core and runs its systems in
// a fixed phase order: input (navigation sync, path searches, steering), then
// collision and physics once per substep, then consume (event dispatch).
// A World is driven by one goroutine; none of its methods are safe for
// concurrent use.
type World struct {
	cfg     Config
	logger  log.Log
	metrics *metrics.Metrics

	collision *collision.System
	physics   *physics.System
	grid      *navigation.Grid
	paths     *pathfinding.System
	steering  *steering.System
	systems   *systems.Manager

	collisions    *events.Dispatcher[collision.Event]
	instabilities *events.Dispatcher[physics.Instability]
	ticks         *events.Dispatcher[Summary]

	transforms map[models.EntityID]*models.Transform
	bodies     map[models.EntityID]*models.RigidBody
	colliders  map[models.EntityID]struct{}
	ids        []models.EntityID
	idsDirty   bool

	contacts   []collision.Contact
	navVersion uint64
	navBuilt   bool

	tick        uint64
	accumulator time.Duration
	paused      bool

	tickEvents        int
	tickInstabilities int
}

func New(cfg Config, logger log.Log, m *metrics.Metrics) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = log.OrNop(logger)

	w := &World{
		cfg:           cfg,
		logger:        logger.Named("world"),
		metrics:       m,
		systems:       systems.NewManager(logger, m),
		collisions:    events.NewDispatcher(collision.KindOf),
		instabilities: events.NewDispatcher(func(i physics.Instability) string { return i.Stage }),
		ticks:         events.NewDispatcher(func(Summary) string { return "tick" }),
		transforms:    make(map[models.EntityID]*models.Transform),
		bodies:        make(map[models.EntityID]*models.RigidBody),
		colliders:     make(map[models.EntityID]struct{}),
	}

	var err error
	if w.collision, err = collision.New(cfg.Spatial, logger, m); err != nil {
		return nil, err
	}
	if w.physics, err = physics.New(cfg.Physics, logger, m); err != nil {
		return nil, err
	}
	if w.grid, err = navigation.New(cfg.Navigation); err != nil {
		return nil, err
	}
	if w.paths, err = pathfinding.New(cfg.Pathfinding, w.grid, logger, m); err != nil {
		return nil, err
	}
	if w.steering, err = steering.New(cfg.Steering, w.paths, w.physics, w, logger); err != nil {
		return nil, err
	}

	builtin := []systems.System{
		systems.Func{SystemName: "navigation", SystemPhase: systems.PhaseInput, SystemPriority: systems.PriorityHighest, Fn: w.syncNavigation},
		systems.Func{SystemName: "pathfinding", SystemPhase: systems.PhaseInput, SystemPriority: systems.PriorityHigh, Fn: w.updatePaths},
		w.steering,
		systems.Func{SystemName: "collision", SystemPhase: systems.PhaseCollision, SystemPriority: systems.PriorityNormal, Fn: w.collide},
		systems.Func{SystemName: "physics", SystemPhase: systems.PhasePhysics, SystemPriority: systems.PriorityNormal, Fn: w.simulate},
		systems.Func{SystemName: "events", SystemPhase: systems.PhaseConsume, SystemPriority: systems.PriorityHighest, Fn: w.consume},
	}
	for _, s := range builtin {
		if err := w.systems.Register(s); err != nil {
			return nil, err
		}
	}

	w.logger.Info("world created",
		log.Duration("fixed_delta", cfg.FixedDelta),
		log.Int("substeps", cfg.Substeps),
		log.Int("grid_width", cfg.Navigation.Width),
		log.Int("grid_height", cfg.Navigation.Height),
	)
	return w, nil
}

func (w *World) Config() Config                   { return w.cfg }
func (w *World) Collision() *collision.System     { return w.collision }
func (w *World) Physics() *physics.System         { return w.physics }
func (w *World) Grid() *navigation.Grid           { return w.grid }
func (w *World) Paths() *pathfinding.System       { return w.paths }
func (w *World) Steering() *steering.System       { return w.steering }
func (w *World) Systems() *systems.Manager        { return w.systems }
func (w *World) Tick() uint64                     { return w.tick }
func (w *World) Len() int                         { return len(w.transforms) }
func (w *World) Paused() bool                     { return w.paused }
func (w *World) SetPaused(paused bool)            { w.paused = paused }
func (w *World) Contacts() []collision.Contact    { return w.contacts }
func (w *World) SimTime() time.Duration           { return time.Duration(w.tick) * w.cfg.FixedDelta }
func (w *World) AddSystem(s systems.System) error { return w.systems.Register(s) }

// SubscribeCollisions registers handler for collision events of kind ("enter",
// "stay", "exit", or "" for all). Handlers run after the tick's phases.
func (w *World) SubscribeCollisions(kind string, handler events.Handler[collision.Event]) *events.Subscription {
	return w.collisions.Subscribe(kind, handler)
}

// SubscribeInstabilities registers handler for frozen-body reports.
func (w *World) SubscribeInstabilities(handler events.Handler[physics.Instability]) *events.Subscription {
	return w.instabilities.Subscribe("", handler)
}

// SubscribeTicks registers handler for a Summary after every tick.
func (w *World) SubscribeTicks(handler events.Handler[Summary]) *events.Subscription {
	return w.ticks.Subscribe("", handler)
}

// Spawn adds id with its components. A collider on a static body is marked
// static. On error nothing is registered.
func (w *World) Spawn(id models.EntityID, e Entity) error {
	if _, ok := w.transforms[id]; ok {
		return fmt.Errorf("spawn %s: %w", id, models.ErrAlreadyRegistered)
	}
	if !e.Transform.Position.IsFinite() || math.IsNaN(e.Transform.Rotation) {
		return fmt.Errorf("spawn %s: %w: non-finite transform", id, models.ErrInvalidGeometry)
	}
	t := new(models.Transform)
	*t = e.Transform

	var body *models.RigidBody
	if e.Body != nil {
		body = new(models.RigidBody)
		*body = *e.Body
		if err := w.physics.AddBody(id, body, t); err != nil {
			return fmt.Errorf("spawn: %w", err)
		}
	}
	if e.Collider != nil {
		c := *e.Collider
		if body != nil {
			c.Static = body.Type == models.BodyStatic
		}
		if err := w.collision.Register(id, c, *t); err != nil {
			if body != nil {
				_ = w.physics.RemoveBody(id)
			}
			return fmt.Errorf("spawn: %w", err)
		}
		w.colliders[id] = struct{}{}
	}

	w.transforms[id] = t
	if body != nil {
		w.bodies[id] = body
	}
	w.idsDirty = true
	return nil
}

// Despawn removes id from every system and cancels its path request. Exit
// events for its contacts are delivered with the next tick.
func (w *World) Despawn(id models.EntityID) error {
	if _, ok := w.transforms[id]; !ok {
		return fmt.Errorf("despawn %s: %w", id, models.ErrEntityNotFound)
	}
	w.steering.Remove(id)
	w.paths.Cancel(id)

	var errs []error
	if _, ok := w.colliders[id]; ok {
		errs = append(errs, w.collision.Unregister(id))
		delete(w.colliders, id)
	}
	if _, ok := w.bodies[id]; ok {
		errs = append(errs, w.physics.RemoveBody(id))
		delete(w.bodies, id)
	}
	delete(w.transforms, id)
	w.idsDirty = true
	return errors.Join(errs...)
}

func (w *World) Transform(id models.EntityID) (models.Transform, bool) {
	t, ok := w.transforms[id]
	if !ok {
		return models.Transform{}, false
	}
	return *t, true
}

// Position implements steering.Positions.
func (w *World) Position(id models.EntityID) (geom.Vec2, bool) {
	t, ok := w.transforms[id]
	if !ok {
		return geom.Vec2{}, false
	}
	return t.Position, true
}

// Body returns the live rigid body of id, e.g. to apply forces.
func (w *World) Body(id models.EntityID) (*models.RigidBody, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

// SetPosition teleports id and re-indexes its collider.
func (w *World) SetPosition(id models.EntityID, p geom.Vec2) error {
	t, ok := w.transforms[id]
	if !ok {
		return fmt.Errorf("set position %s: %w", id, models.ErrEntityNotFound)
	}
	if !p.IsFinite() {
		return fmt.Errorf("set position %s: %w: non-finite position", id, models.ErrInvalidGeometry)
	}
	t.Position = p
	if _, ok := w.colliders[id]; ok {
		return w.collision.OnMove(id, *t)
	}
	return nil
}

// ApplyTiles loads level walkability into the navigation grid.
func (w *World) ApplyTiles(ts navigation.TileSource) error { return w.grid.ApplyTiles(ts) }

// SetGoal sends id along a path to goal; see steering.System.SetGoal.
func (w *World) SetGoal(id models.EntityID, goal geom.Vec2, speed float64) error {
	if _, ok := w.transforms[id]; !ok {
		return fmt.Errorf("set goal %s: %w", id, models.ErrEntityNotFound)
	}
	w.SyncNavigation()
	return w.steering.SetGoal(id, goal, speed)
}

// SyncNavigation rebuilds the grid now when static colliders changed since the
// last rebuild. Step does this at the start of every tick.
func (w *World) SyncNavigation() { _ = w.syncNavigation(context.Background(), 0) }

func (w *World) sortedIDs() []models.EntityID {
	if w.idsDirty {
		w.ids = w.ids[:0]
		for id := range w.transforms {
			w.ids = append(w.ids, id)
		}
		slices.Sort(w.ids)
		w.idsDirty = false
	}
	return w.ids
}

func (w *World) syncNavigation(context.Context, float64) error {
	version := w.collision.StaticVersion()
	if w.navBuilt && version == w.navVersion {
		return nil
	}
	start := time.Now()
	blocked := w.grid.Rebuild(w.collision)
	w.navVersion, w.navBuilt = version, true
	w.metrics.NavGridRebuild()
	w.logger.Debug("navigation grid rebuilt",
		log.Uint64("static_version", version),
		log.Uint64("grid_version", w.grid.Version()),
		log.Int("blocked", blocked),
		log.Duration("took", time.Since(start)),
	)
	return nil
}

func (w *World) updatePaths(context.Context, float64) error {
	_, err := w.paths.Update()
	return err
}

func (w *World) collide(_ context.Context, dt float64) error {
	w.contacts = w.collision.Step(dt, w.physics)
	return nil
}

// simulate resolves the contacts of this substep, integrates, and re-indexes
// every collider whose transform changed.
func (w *World) simulate(_ context.Context, dt float64) error {
	corrected := w.physics.Resolve(w.contacts)
	moved := w.physics.Integrate(dt)

	var errs []error
	for _, id := range mergeSorted(corrected, moved) {
		if _, ok := w.colliders[id]; !ok {
			continue
		}
		if err := w.collision.OnMove(id, *w.transforms[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *World) consume(context.Context, float64) error {
	evs := w.collision.Events().Drain()
	reports := w.physics.Instabilities().Drain()
	w.tickEvents, w.tickInstabilities = len(evs), len(reports)
	return errors.Join(
		w.collisions.Dispatch(evs),
		w.instabilities.Dispatch(reports),
	)
}

// Step runs one fixed tick. Errors from individual systems are joined and
// returned; the tick still completes.
func (w *World) Step(ctx context.Context) error {
	start := time.Now()
	w.tick++
	ctx = log.ContextWithTick(ctx, w.tick)

	dt := w.cfg.FixedDelta.Seconds()
	sub := dt / float64(w.cfg.Substeps)

	var errs []error
	run := func(phase systems.ExecutionPhase, d float64) {
		if err := w.systems.RunPhase(ctx, phase, d); err != nil {
			errs = append(errs, fmt.Errorf("%s phase: %w", phase, err))
		}
	}
	run(systems.PhaseInput, dt)
	for i := 0; i < w.cfg.Substeps; i++ {
		run(systems.PhaseCollision, sub)
		run(systems.PhasePhysics, sub)
	}
	run(systems.PhaseConsume, dt)

	took := time.Since(start)
	w.metrics.ObserveTick(took)

	if w.ticks.Subscribers() > 0 {
		if err := w.ticks.Dispatch([]Summary{w.summary(took)}); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil && ctx.Err() == nil {
		w.logger.WithContext(ctx).Warn("tick finished with errors", log.Error(err))
	}
	return err
}

func (w *World) summary(took time.Duration) Summary {
	return Summary{
		Tick:          w.tick,
		SimTime:       w.SimTime().Seconds(),
		Entities:      len(w.transforms),
		Contacts:      w.collision.ActiveContacts(),
		Events:        w.tickEvents,
		Instabilities: w.tickInstabilities,
		PendingPaths:  w.paths.Pending(),
		NavVersion:    w.grid.Version(),
		Hash:          w.StateHash(),
		Duration:      took,
	}
}

// Advance feeds elapsed wall time into the fixed-step accumulator and runs the
// ticks it covers, at most MaxCatchUp; time beyond that is dropped. It returns
// the number of ticks run.
func (w *World) Advance(ctx context.Context, elapsed time.Duration) (int, error) {
	if w.paused {
		return 0, nil
	}
	fixed := w.cfg.FixedDelta
	w.accumulator += elapsed

	var errs []error
	n := 0
	for w.accumulator >= fixed && n < w.cfg.MaxCatchUp {
		if err := w.Step(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return n, ctxErr
			}
			errs = append(errs, err)
		}
		w.accumulator -= fixed
		n++
	}
	if w.accumulator >= fixed {
		w.logger.Debug("simulation falling behind, dropping time",
			log.Duration("dropped", w.accumulator-w.accumulator%fixed),
			log.Uint64("tick", w.tick),
		)
		w.accumulator %= fixed
	}
	return n, errors.Join(errs...)
}

// Run drives the world in real time until ctx is cancelled.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FixedDelta)
	defer ticker.Stop()

	w.logger.Info("simulation started", log.Duration("fixed_delta", w.cfg.FixedDelta))
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("simulation stopped", log.Uint64("tick", w.tick))
			return nil
		case now := <-ticker.C:
			_, err := w.Advance(ctx, now.Sub(last))
			last = now
			if err != nil && ctx.Err() != nil {
				w.logger.Info("simulation stopped", log.Uint64("tick", w.tick))
				return nil
			}
		}
	}
}

// StateHash fingerprints the tick counter and every entity's transform and
// velocity in id order. Two worlds fed the same inputs hash equal.
func (w *World) StateHash() uint64 {
	h := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	put(w.tick)
	for _, id := range w.sortedIDs() {
		t := w.transforms[id]
		put(uint64(id))
		put(math.Float64bits(t.Position.X))
		put(math.Float64bits(t.Position.Y))
		put(math.Float64bits(t.Rotation))
		if b, ok := w.bodies[id]; ok {
			put(math.Float64bits(b.Velocity.X))
			put(math.Float64bits(b.Velocity.Y))
		}
	}
	return h.Sum64()
}

// Close stops the pathfinding workers.
func (w *World) Close() error {
	return w.paths.Close()
}

func mergeSorted(a, b []models.EntityID) []models.EntityID {
	out := make([]models.EntityID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
