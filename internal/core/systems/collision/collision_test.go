package collision

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/systems/spatial"
	"github.com/zeusync/simcore/pkg/geom"
)

type velocities map[models.EntityID]geom.Vec2

func (v velocities) Velocity(id models.EntityID) (geom.Vec2, bool) {
	vel, ok := v[id]
	return vel, ok
}

func newSystem(t *testing.T) *System {
	t.Helper()
	cfg := spatial.DefaultConfig()
	cfg.Bounds = geom.Box(-200, -200, 200, 200)
	s, err := New(cfg, log.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func solid(shape models.Shape) models.Collider {
	return models.Collider{Shape: shape, Layer: models.LayerDefault, Mask: models.LayerAll}
}

func at(x, y float64) models.Transform { return models.Transform{Position: geom.V(x, y)} }

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func TestNarrowPhase(t *testing.T) {
	tests := []struct {
		name   string
		a      models.Shape
		pa     geom.Vec2
		b      models.Shape
		pb     geom.Vec2
		hit    bool
		normal geom.Vec2
		depth  float64
	}{
		{"box box x axis", models.Box(1, 1), geom.V(0, 0), models.Box(1, 1), geom.V(1.5, 0.2), true, geom.V(1, 0), 0.5},
		{"box box y axis", models.Box(2, 1), geom.V(0, 0), models.Box(2, 1), geom.V(0.5, -1.5), true, geom.V(0, -1), 0.5},
		{"box box touching", models.Box(1, 1), geom.V(0, 0), models.Box(1, 1), geom.V(2, 0), false, geom.Vec2{}, 0},
		{"circle circle", models.Circle(5), geom.V(0, 0), models.Circle(5), geom.V(8, 0), true, geom.V(1, 0), 2},
		{"circle circle apart", models.Circle(1), geom.V(0, 0), models.Circle(1), geom.V(3, 0), false, geom.Vec2{}, 0},
		{"circle circle coincident", models.Circle(1), geom.V(4, 4), models.Circle(2), geom.V(4, 4), true, geom.V(1, 0), 3},
		{"box circle side", models.Box(1, 1), geom.V(0, 0), models.Circle(1), geom.V(0, 1.5), true, geom.V(0, 1), 0.5},
		{"circle box side", models.Circle(1), geom.V(0, 1.5), models.Box(1, 1), geom.V(0, 0), true, geom.V(0, -1), 0.5},
		{"box circle corner miss", models.Box(1, 1), geom.V(0, 0), models.Circle(1), geom.V(1.8, 1.8), false, geom.Vec2{}, 0},
		{"box circle inside", models.Box(2, 2), geom.V(0, 0), models.Circle(0.5), geom.V(1.5, 0), true, geom.V(1, 0), 1},
		{"box point", models.Box(1, 1), geom.V(0, 0), models.Point(), geom.V(0.75, 0), true, geom.V(1, 0), 0.25},
		{"point box", models.Point(), geom.V(0, -0.75), models.Box(1, 1), geom.V(0, 0), true, geom.V(0, 1), 0.25},
		{"circle point", models.Circle(2), geom.V(0, 0), models.Point(), geom.V(0, 1), true, geom.V(0, 1), 1},
		{"point outside circle", models.Point(), geom.V(3, 0), models.Circle(2), geom.V(0, 0), false, geom.Vec2{}, 0},
		{"point point", models.Point(), geom.V(1, 1), models.Point(), geom.V(1, 1), false, geom.Vec2{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Test(tt.a, tt.pa, tt.b, tt.pb)
			require.Equal(t, tt.hit, ok)
			if !tt.hit {
				return
			}
			assert.True(t, m.Normal.ApproxEqual(tt.normal, 1e-9), "normal %+v", m.Normal)
			assert.InDelta(t, tt.depth, m.Depth, 1e-9)
		})
	}
}

func TestNarrowPhaseNeverHitsDisjointBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shapes := []models.Shape{models.Box(1, 2), models.Circle(1.5), models.Point(), models.Box(0.5, 0.5), models.Circle(0.3)}
	for i := 0; i < 5000; i++ {
		a, b := shapes[rng.Intn(len(shapes))], shapes[rng.Intn(len(shapes))]
		pa := geom.V(rng.Float64()*10, rng.Float64()*10)
		pb := geom.V(rng.Float64()*10, rng.Float64()*10)
		if a.Bounds(pa).Intersects(b.Bounds(pb)) {
			continue
		}
		_, ok := Test(a, pa, b, pb)
		require.False(t, ok, "%s at %+v vs %s at %+v", a.Kind, pa, b.Kind, pb)
	}
}

func TestNarrowPhaseNormalSeparates(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	shapes := []models.Shape{models.Box(1, 2), models.Circle(1.5), models.Box(0.5, 0.5), models.Circle(0.7)}
	for i := 0; i < 2000; i++ {
		a, b := shapes[rng.Intn(len(shapes))], shapes[rng.Intn(len(shapes))]
		pa := geom.V(rng.Float64()*4, rng.Float64()*4)
		pb := geom.V(rng.Float64()*4, rng.Float64()*4)
		m, ok := Test(a, pa, b, pb)
		if !ok {
			continue
		}
		require.InDelta(t, 1, m.Normal.Len(), 1e-9)
		require.Greater(t, m.Depth, 0.0)

		moved := pb.Add(m.Normal.Scale(m.Depth + 1e-6))
		_, still := Test(a, pa, b, moved)
		assert.False(t, still, "%s at %+v vs %s at %+v not separated by %+v", a.Kind, pa, b.Kind, pb, m)
	}
}

func TestContainsAndOverlapsBox(t *testing.T) {
	assert.True(t, ContainsPoint(models.Box(1, 1), geom.V(0, 0), geom.V(1, 1)))
	assert.False(t, ContainsPoint(models.Box(1, 1), geom.V(0, 0), geom.V(1.01, 0)))
	assert.True(t, ContainsPoint(models.Circle(1), geom.V(0, 0), geom.V(0, 1)))
	assert.True(t, ContainsPoint(models.Point(), geom.V(2, 2), geom.V(2, 2)))

	cell := geom.Box(1, 1, 2, 2)
	assert.True(t, OverlapsBox(models.Circle(0.5), geom.V(0.8, 1.5), cell))
	assert.False(t, OverlapsBox(models.Box(0.5, 0.5), geom.V(0.5, 1.5), cell), "shared edge only")
}

func TestRegisterRejectsDegenerateGeometry(t *testing.T) {
	s := newSystem(t)

	tests := []struct {
		name string
		c    models.Collider
		want error
	}{
		{"zero radius", solid(models.Circle(0)), models.ErrInvalidGeometry},
		{"negative radius", solid(models.Circle(-1)), models.ErrInvalidGeometry},
		{"zero area box", solid(models.Box(1, 0)), models.ErrInvalidGeometry},
		{"nan extents", solid(models.Box(math.NaN(), 1)), models.ErrInvalidGeometry},
		{"no layer", models.Collider{Shape: models.Circle(1)}, models.ErrInvalidCollider},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Register(models.EntityID(i+1), tt.c, at(0, 0))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, s.Len())

	require.NoError(t, s.Register(1, solid(models.Circle(1)), at(0, 0)))
	assert.ErrorIs(t, s.Register(1, solid(models.Circle(1)), at(0, 0)), models.ErrAlreadyRegistered)
	assert.ErrorIs(t, s.OnMove(9, at(0, 0)), models.ErrEntityNotFound)
	assert.ErrorIs(t, s.Unregister(9), models.ErrEntityNotFound)
	assert.ErrorIs(t, s.OnMove(1, at(math.Inf(1), 0)), models.ErrInvalidGeometry)
}

func TestContactLifecycle(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Register(1, solid(models.Circle(1)), at(0, 0)))
	require.NoError(t, s.Register(2, solid(models.Circle(1)), at(5, 0)))

	var seen []Event
	xs := []float64{5, 1.5, 1.2, 1.0, 3, 3}
	for _, x := range xs {
		require.NoError(t, s.OnMove(2, at(x, 0)))
		s.Step(1.0/60, nil)
		seen = append(seen, s.Events().Drain()...)
	}

	assert.Equal(t, []EventKind{EventEnter, EventStay, EventStay, EventExit}, kinds(seen))
	for _, e := range seen {
		assert.Equal(t, models.EntityID(1), e.A)
		assert.Equal(t, models.EntityID(2), e.B)
	}
	assert.False(t, s.Touching(1, 2))
}

func TestContactsSortedAndNormalFromAToB(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Register(7, solid(models.Box(1, 1)), at(0, 0)))
	require.NoError(t, s.Register(3, solid(models.Box(1, 1)), at(1.5, 0)))
	require.NoError(t, s.Register(5, solid(models.Box(1, 1)), at(-1.5, 0)))

	contacts := s.Step(0, nil)
	require.Len(t, contacts, 2)
	assert.Equal(t, models.Pair{A: 3, B: 7}, contacts[0].Pair())
	assert.Equal(t, models.Pair{A: 5, B: 7}, contacts[1].Pair())

	// 3 sits right of 7, so A->B points left.
	assert.Equal(t, geom.V(-1, 0), contacts[0].Normal)
	assert.Equal(t, geom.V(1, 0), contacts[1].Normal)
	assert.Equal(t, 2, s.ActiveContacts())
}

func TestTriggersEmitEventsOnly(t *testing.T) {
	s := newSystem(t)
	trigger := solid(models.Box(2, 2))
	trigger.IsTrigger = true
	require.NoError(t, s.Register(1, trigger, at(0, 0)))
	require.NoError(t, s.Register(2, solid(models.Circle(1)), at(1, 0)))

	contacts := s.Step(0, nil)
	assert.Empty(t, contacts)
	evs := s.Events().Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventEnter, evs[0].Kind)
	assert.True(t, evs[0].Trigger)
}

func TestLayerFilterIsSymmetric(t *testing.T) {
	s := newSystem(t)
	actor := models.Collider{Shape: models.Circle(1), Layer: models.LayerActor, Mask: models.LayerStatic}
	projectile := models.Collider{Shape: models.Circle(1), Layer: models.LayerProjectile, Mask: models.LayerAll}
	require.NoError(t, s.Register(1, actor, at(0, 0)))
	require.NoError(t, s.Register(2, projectile, at(0.5, 0)))

	assert.Empty(t, s.Step(0, nil), "actor mask excludes projectiles")
	assert.Zero(t, s.Events().Len())

	wall := models.Collider{Shape: models.Box(1, 1), Layer: models.LayerStatic, Mask: models.LayerActor, Static: true}
	require.NoError(t, s.Register(3, wall, at(-1, 0)))
	contacts := s.Step(0, nil)
	require.Len(t, contacts, 1)
	assert.Equal(t, models.Pair{A: 1, B: 3}, contacts[0].Pair())
}

func TestStaticCollidersDoNotPairWithEachOther(t *testing.T) {
	s := newSystem(t)
	wall := solid(models.Box(1, 1))
	wall.Static = true
	require.NoError(t, s.Register(1, wall, at(0, 0)))
	require.NoError(t, s.Register(2, wall, at(1, 0)))

	assert.Empty(t, s.Step(0, nil))
	assert.Equal(t, uint64(2), s.StaticVersion())

	var ids []models.EntityID
	s.EachStatic(func(id models.EntityID, _ models.Collider, _ models.Transform) { ids = append(ids, id) })
	assert.Equal(t, []models.EntityID{1, 2}, ids)

	require.NoError(t, s.OnMove(2, at(3, 0)))
	assert.Equal(t, uint64(3), s.StaticVersion())
	require.NoError(t, s.Unregister(1))
	assert.Equal(t, uint64(4), s.StaticVersion())
}

func TestUnregisterEmitsExit(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Register(1, solid(models.Circle(1)), at(0, 0)))
	require.NoError(t, s.Register(2, solid(models.Circle(1)), at(1, 0)))
	s.Step(0, nil)
	s.Events().Drain()

	require.NoError(t, s.Unregister(2))
	s.Step(0, nil)
	evs := s.Events().Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventExit, evs[0].Kind)
}

func TestSweptQueryUsesMotion(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Register(1, solid(models.Circle(1)), at(0, 0)))
	require.NoError(t, s.Register(2, solid(models.Circle(1)), at(1.5, 0)))

	// widening the query must not produce contacts the narrow phase rejects
	far := velocities{1: geom.V(600, 0)}
	require.NoError(t, s.OnMove(2, at(20, 0)))
	assert.Empty(t, s.Step(1.0/60, far))
}

func TestQueryRegion(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.Register(4, models.Collider{Shape: models.Circle(1), Layer: models.LayerActor, Mask: models.LayerAll}, at(0, 0)))
	require.NoError(t, s.Register(2, models.Collider{Shape: models.Circle(1), Layer: models.LayerSensor, Mask: models.LayerAll}, at(1, 0)))
	require.NoError(t, s.Register(9, solid(models.Circle(1)), at(50, 50)))

	assert.Equal(t, []models.EntityID{2, 4}, s.QueryRegion(geom.Box(-2, -2, 2, 2), models.LayerAll))
	assert.Equal(t, []models.EntityID{4}, s.QueryRegion(geom.Box(-2, -2, 2, 2), models.LayerActor))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "enter", EventEnter.String())
	assert.Equal(t, "stay", KindOf(Event{Kind: EventStay}))
	assert.Equal(t, "exit", EventExit.String())
}
