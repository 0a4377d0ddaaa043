package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/systems/collision"
	"github.com/zeusync/simcore/internal/core/systems/spatial"
	"github.com/zeusync/simcore/pkg/geom"
)

const eps = 1e-9

func newSystem(t *testing.T, cfg Config) *System {
	t.Helper()
	s, err := New(cfg, log.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func dynamic(mass float64, v geom.Vec2) *models.RigidBody {
	return &models.RigidBody{Type: models.BodyDynamic, Mass: mass, Velocity: v, Restitution: 1}
}

func kineticEnergy(bodies ...*models.RigidBody) float64 {
	var e float64
	for _, b := range bodies {
		e += 0.5 * b.Mass * b.Velocity.LenSq()
	}
	return e
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	err := Config{Gravity: geom.V(math.NaN(), 0)}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gravity")
	assert.Contains(t, err.Error(), "iterations")
}

func TestAddBody(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	tr := &models.Transform{}

	assert.ErrorIs(t, s.AddBody(1, dynamic(0, geom.Vec2{}), tr), models.ErrInvalidBody)
	assert.ErrorIs(t, s.AddBody(1, dynamic(1, geom.Vec2{}), nil), ErrNilTransform)
	bad := dynamic(1, geom.Vec2{})
	bad.Restitution = 2
	assert.ErrorIs(t, s.AddBody(1, bad, tr), models.ErrInvalidBody)

	require.NoError(t, s.AddBody(1, dynamic(1, geom.Vec2{}), tr))
	assert.ErrorIs(t, s.AddBody(1, dynamic(1, geom.Vec2{}), tr), models.ErrAlreadyRegistered)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.RemoveBody(1))
	assert.ErrorIs(t, s.RemoveBody(1), models.ErrEntityNotFound)
}

func TestIntegrate(t *testing.T) {
	tests := []struct {
		name    string
		body    models.RigidBody
		gravity geom.Vec2
		dt      float64
		wantVel geom.Vec2
		wantPos geom.Vec2
	}{
		{
			name:    "constant velocity",
			body:    models.RigidBody{Type: models.BodyDynamic, Mass: 2, Velocity: geom.V(3, -1)},
			dt:      0.5,
			wantVel: geom.V(3, -1),
			wantPos: geom.V(1.5, -0.5),
		},
		{
			name:    "force and gravity",
			body:    models.RigidBody{Type: models.BodyDynamic, Mass: 2, Force: geom.V(4, 0)},
			gravity: geom.V(0, -10),
			dt:      1,
			wantVel: geom.V(2, -10),
			wantPos: geom.V(2, -10),
		},
		{
			name:    "drag",
			body:    models.RigidBody{Type: models.BodyDynamic, Mass: 1, Velocity: geom.V(10, 0), Drag: 0.5},
			dt:      1,
			wantVel: geom.V(5, 0),
			wantPos: geom.V(5, 0),
		},
		{
			name:    "drag clamps at zero",
			body:    models.RigidBody{Type: models.BodyDynamic, Mass: 1, Velocity: geom.V(10, 0), Drag: 4},
			dt:      1,
			wantVel: geom.Vec2{},
			wantPos: geom.Vec2{},
		},
		{
			name:    "freeze y",
			body:    models.RigidBody{Type: models.BodyDynamic, Mass: 1, Velocity: geom.V(1, 1), FreezeY: true},
			gravity: geom.V(0, -10),
			dt:      1,
			wantVel: geom.V(1, 0),
			wantPos: geom.V(1, 0),
		},
		{
			name:    "kinematic ignores gravity and force",
			body:    models.RigidBody{Type: models.BodyKinematic, Velocity: geom.V(0, 2), Force: geom.V(100, 0)},
			gravity: geom.V(0, -10),
			dt:      1,
			wantVel: geom.V(0, 2),
			wantPos: geom.V(0, 2),
		},
		{
			name:    "static never moves",
			body:    models.RigidBody{Type: models.BodyStatic, Velocity: geom.V(5, 5)},
			gravity: geom.V(0, -10),
			dt:      1,
			wantVel: geom.V(5, 5),
			wantPos: geom.Vec2{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSystem(t, Config{Gravity: tt.gravity, Iterations: 1})
			body := tt.body
			tr := &models.Transform{}
			require.NoError(t, s.AddBody(1, &body, tr))

			moved := s.Integrate(tt.dt)
			assert.True(t, body.Velocity.ApproxEqual(tt.wantVel, eps), "velocity %+v", body.Velocity)
			assert.True(t, tr.Position.ApproxEqual(tt.wantPos, eps), "position %+v", tr.Position)
			assert.True(t, body.Force.IsZero(), "force is cleared")
			assert.Equal(t, !tt.wantPos.IsZero(), len(moved) == 1)
		})
	}
}

func TestHeadOnEqualMassSwapsVelocities(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	a, b := dynamic(1, geom.V(10, 0)), dynamic(1, geom.V(-10, 0))
	ta, tb := &models.Transform{Position: geom.V(-4.9, 0)}, &models.Transform{Position: geom.V(4.9, 0)}
	require.NoError(t, s.AddBody(1, a, ta))
	require.NoError(t, s.AddBody(2, b, tb))

	m, ok := collision.Test(models.Circle(5), ta.Position, models.Circle(5), tb.Position)
	require.True(t, ok)
	before := kineticEnergy(a, b)

	moved := s.Resolve([]collision.Contact{{A: 1, B: 2, Normal: m.Normal, Depth: m.Depth}})

	assert.InDelta(t, -10, a.Velocity.X, eps)
	assert.InDelta(t, 10, b.Velocity.X, eps)
	assert.InDelta(t, before, kineticEnergy(a, b), eps)
	assert.Equal(t, []models.EntityID{1, 2}, moved)
	assert.InDelta(t, 10, ta.Position.Dist(tb.Position), eps, "penetration fully resolved")
}

func TestElasticCollisionThroughCollisionSystem(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	cs, err := collision.New(spatial.DefaultConfig(), log.NewNop(), nil)
	require.NoError(t, err)

	circle := models.Collider{Shape: models.Circle(5), Layer: models.LayerActor, Mask: models.LayerAll}
	a, b := dynamic(1, geom.V(10, 0)), dynamic(1, geom.V(-10, 0))
	ta, tb := &models.Transform{Position: geom.V(100, 100)}, &models.Transform{Position: geom.V(115, 100)}
	require.NoError(t, s.AddBody(1, a, ta))
	require.NoError(t, s.AddBody(2, b, tb))
	require.NoError(t, cs.Register(1, circle, *ta))
	require.NoError(t, cs.Register(2, circle, *tb))

	before := kineticEnergy(a, b)
	dt := 1.0 / 60
	for i := 0; i < 120; i++ {
		s.Resolve(cs.Step(dt, s))
		for _, id := range s.Integrate(dt) {
			st := s.bodies[id]
			require.NoError(t, cs.OnMove(id, *st.transform))
		}
	}

	assert.InDelta(t, before, kineticEnergy(a, b), 1e-6)
	assert.Less(t, a.Velocity.X, 0.0)
	assert.Greater(t, b.Velocity.X, 0.0)
}

func TestStaticAndKinematicAreImmovable(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	wall := &models.RigidBody{Type: models.BodyStatic, Restitution: 0.5}
	pusher := &models.RigidBody{Type: models.BodyKinematic, Velocity: geom.V(-3, 0), Restitution: 0.5}
	ball := dynamic(2, geom.V(4, 0))
	ball.Restitution = 0.5

	tw, tp, tb := &models.Transform{Position: geom.V(10, 0)}, &models.Transform{Position: geom.V(-10, 0)}, &models.Transform{}
	require.NoError(t, s.AddBody(1, wall, tw))
	require.NoError(t, s.AddBody(2, pusher, tp))
	require.NoError(t, s.AddBody(3, ball, tb))

	// ball (3) hits the wall (1) moving towards it; normal points 1 -> 3
	moved := s.Resolve([]collision.Contact{{A: 1, B: 3, Normal: geom.V(-1, 0), Depth: 0.5}})
	assert.Equal(t, []models.EntityID{3}, moved)
	assert.Equal(t, geom.V(10, 0), tw.Position)
	assert.InDelta(t, -0.5, tb.Position.X, eps)
	assert.InDelta(t, -2, ball.Velocity.X, eps)

	// kinematic-static pairs are skipped entirely
	assert.Empty(t, s.Resolve([]collision.Contact{{A: 1, B: 2, Normal: geom.V(-1, 0), Depth: 1}}))
	assert.Equal(t, geom.V(-3, 0), pusher.Velocity)
}

func TestColliderWithoutBodyActsAsStatic(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	ball := dynamic(1, geom.V(0, -5))
	ball.Restitution = 0
	tb := &models.Transform{Position: geom.V(0, 0.5)}
	require.NoError(t, s.AddBody(2, ball, tb))

	// entity 1 is a floor collider with no rigid body, below the ball
	s.Resolve([]collision.Contact{{A: 1, B: 2, Normal: geom.V(0, 1), Depth: 0.5}})
	assert.InDelta(t, 1.0, tb.Position.Y, eps)
	assert.InDelta(t, 0, ball.Velocity.Y, eps)
}

func TestSeparatingContactsKeepVelocity(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	a, b := dynamic(1, geom.V(-1, 0)), dynamic(1, geom.V(1, 0))
	require.NoError(t, s.AddBody(1, a, &models.Transform{}))
	require.NoError(t, s.AddBody(2, b, &models.Transform{Position: geom.V(1, 0)}))

	s.Resolve([]collision.Contact{{A: 1, B: 2, Normal: geom.V(1, 0), Depth: 0.2}})
	assert.Equal(t, geom.V(-1, 0), a.Velocity)
	assert.Equal(t, geom.V(1, 0), b.Velocity)
}

func TestFreezeBlocksCorrection(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	b := dynamic(1, geom.V(-2, 0))
	b.FreezeX = true
	tr := &models.Transform{}
	require.NoError(t, s.AddBody(2, b, tr))

	assert.Empty(t, s.Resolve([]collision.Contact{{A: 1, B: 2, Normal: geom.V(1, 0), Depth: 1}}))
	assert.Equal(t, geom.Vec2{}, tr.Position)
	assert.Zero(t, b.Velocity.X)
}

func TestNonFiniteBodyIsFrozenAndReported(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	runaway := dynamic(1, geom.V(math.MaxFloat64, 0))
	runaway.Force = geom.V(math.MaxFloat64, 0)
	tr := &models.Transform{Position: geom.V(3, 4)}
	healthy := dynamic(1, geom.V(1, 0))
	th := &models.Transform{}
	require.NoError(t, s.AddBody(1, runaway, tr))
	require.NoError(t, s.AddBody(2, healthy, th))

	moved := s.Integrate(1)
	assert.Equal(t, []models.EntityID{2}, moved, "tick continues for other bodies")
	assert.True(t, runaway.Unstable)
	assert.True(t, runaway.Velocity.IsZero())
	assert.Equal(t, geom.V(3, 4), tr.Position)
	assert.Zero(t, runaway.InverseMass())

	reports := s.Instabilities().Drain()
	require.Len(t, reports, 1)
	assert.Equal(t, models.EntityID(1), reports[0].Entity)
	assert.Equal(t, StageIntegrate, reports[0].Stage)

	assert.Equal(t, []models.EntityID{2}, s.Integrate(1))
	assert.Equal(t, geom.V(3, 4), tr.Position, "frozen body stays put")
	assert.NoError(t, s.SetVelocity(1, geom.V(1, 1)))
	assert.True(t, runaway.Velocity.IsZero())
}

func TestVelocitySource(t *testing.T) {
	s := newSystem(t, DefaultConfig())
	require.NoError(t, s.AddBody(1, &models.RigidBody{Type: models.BodyStatic}, &models.Transform{}))
	require.NoError(t, s.AddBody(2, dynamic(1, geom.V(2, 3)), &models.Transform{}))

	_, ok := s.Velocity(1)
	assert.False(t, ok)
	v, ok := s.Velocity(2)
	require.True(t, ok)
	assert.Equal(t, geom.V(2, 3), v)

	require.NoError(t, s.SetVelocity(2, geom.V(-1, 0)))
	v, _ = s.Velocity(2)
	assert.Equal(t, geom.V(-1, 0), v)
	assert.ErrorIs(t, s.SetVelocity(2, geom.V(math.NaN(), 0)), models.ErrInvalidBody)
	assert.ErrorIs(t, s.SetVelocity(9, geom.Vec2{}), models.ErrEntityNotFound)
}
