package main

import (
	"math/rand/v2"

	"github.com/zeusync/simcore/internal/core/events"
	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/systems/collision"
	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/internal/core/systems/physics"
	"github.com/zeusync/simcore/internal/core/systems/steering"
	"github.com/zeusync/simcore/internal/core/world"
	"github.com/zeusync/simcore/pkg/geom"
)

const agentRadius = 4

// demo populates a world with a walled maze and agents that walk to random
// walkable cells, picking a new goal whenever they arrive or give up.
type demo struct {
	world  *world.World
	rng    *rand.Rand
	agents []models.EntityID
	logger log.Log
	subs   []*events.Subscription
}

func newDemo(w *world.World, agents int, seed uint64, logger log.Log) (*demo, error) {
	d := &demo{
		world:  w,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger.Named("demo"),
	}
	next := models.EntityID(1)
	for _, b := range d.walls() {
		if err := w.Spawn(next, wallEntity(b)); err != nil {
			return nil, err
		}
		next++
	}
	w.SyncNavigation()
	for i := 0; i < agents; i++ {
		pos, ok := d.randomWalkable()
		if !ok {
			break
		}
		if err := w.Spawn(next, agentEntity(pos)); err != nil {
			return nil, err
		}
		d.agents = append(d.agents, next)
		if err := d.wander(next); err != nil {
			return nil, err
		}
		next++
	}

	d.subs = append(d.subs,
		w.SubscribeTicks(d.onTick),
		w.SubscribeCollisions(collision.EventEnter.String(), func(e collision.Event) error {
			d.logger.Debug("contact", log.Stringer("a", e.A), log.Stringer("b", e.B), log.Float64("depth", e.Depth))
			return nil
		}),
		w.SubscribeInstabilities(func(i physics.Instability) error {
			d.logger.Warn("unstable body", log.Stringer("entity", i.Entity))
			return nil
		}),
	)
	d.logger.Info("scenario ready", log.Int("agents", len(d.agents)))
	return d, nil
}

func (d *demo) Close() {
	for _, s := range d.subs {
		s.Cancel()
	}
}

// walls returns a ring around the grid plus a few interior bars with gaps.
func (d *demo) walls() []geom.AABB {
	g := d.world.Grid()
	size := g.CellSize()
	b := geom.AABB{Min: g.Origin(), Max: g.Origin().Add(geom.V(float64(g.Width())*size, float64(g.Height())*size))}
	const t = 8
	out := []geom.AABB{
		geom.Box(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+t),
		geom.Box(b.Min.X, b.Max.Y-t, b.Max.X, b.Max.Y),
		geom.Box(b.Min.X, b.Min.Y, b.Min.X+t, b.Max.Y),
		geom.Box(b.Max.X-t, b.Min.Y, b.Max.X, b.Max.Y),
	}
	w, h := b.Width(), b.Height()
	for i := 1; i <= 3; i++ {
		x := b.Min.X + w*float64(i)/4
		gap := b.Min.Y + h*(0.2+0.6*d.rng.Float64())
		out = append(out,
			geom.Box(x-t/2, b.Min.Y, x+t/2, gap-h/16),
			geom.Box(x-t/2, gap+h/16, x+t/2, b.Max.Y),
		)
	}
	return out
}

func (d *demo) randomWalkable() (geom.Vec2, bool) {
	g := d.world.Grid()
	for range 64 {
		c := navigation.C(d.rng.IntN(g.Width()), d.rng.IntN(g.Height()))
		if g.Walkable(c) {
			return g.CellToWorld(c), true
		}
	}
	return geom.Vec2{}, false
}

func (d *demo) wander(id models.EntityID) error {
	goal, ok := d.randomWalkable()
	if !ok {
		return nil
	}
	return d.world.SetGoal(id, goal, 0)
}

func (d *demo) onTick(world.Summary) error {
	for _, id := range d.agents {
		state, ok := d.world.Steering().State(id)
		if !ok || (state != steering.StateArrived && state != steering.StateIdle) {
			continue
		}
		if err := d.wander(id); err != nil {
			return err
		}
	}
	return nil
}

func wallEntity(b geom.AABB) world.Entity {
	return world.Entity{
		Transform: models.Transform{Position: b.Center()},
		Collider: &models.Collider{
			Shape: models.Box(b.Width()/2, b.Height()/2),
			Layer: models.LayerStatic,
			Mask:  models.LayerAll,
		},
		Body: &models.RigidBody{Type: models.BodyStatic},
	}
}

func agentEntity(pos geom.Vec2) world.Entity {
	return world.Entity{
		Transform: models.Transform{Position: pos},
		Collider: &models.Collider{
			Shape: models.Circle(agentRadius),
			Layer: models.LayerActor,
			Mask:  models.LayerStatic | models.LayerActor,
		},
		Body: &models.RigidBody{Type: models.BodyKinematic, Mass: 1},
	}
}
