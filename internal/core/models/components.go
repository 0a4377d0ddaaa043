package models

import (
	"fmt"
	"math"

	"github.com/zeusync/simcore/pkg/geom"
)

// Transform provides spatial information for an entity.
type Transform struct {
	Position geom.Vec2 `json:"position" yaml:"position"`
	Rotation float64   `json:"rotation" yaml:"rotation"`
}

// ShapeKind tags the payload carried by Shape.
type ShapeKind uint8

const (
	ShapeAABB ShapeKind = iota
	ShapeCircle
	ShapePoint
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeAABB:
		return "aabb"
	case ShapeCircle:
		return "circle"
	case ShapePoint:
		return "point"
	default:
		return fmt.Sprintf("shape(%d)", uint8(k))
	}
}

// Shape is a tagged variant; only the field matching Kind is meaningful.
// Rotation is not applied: boxes stay axis-aligned.
type Shape struct {
	Kind        ShapeKind `json:"kind" yaml:"kind"`
	HalfExtents geom.Vec2 `json:"half_extents,omitempty" yaml:"half_extents,omitempty"`
	Radius      float64   `json:"radius,omitempty" yaml:"radius,omitempty"`
}

func Box(halfW, halfH float64) Shape {
	return Shape{Kind: ShapeAABB, HalfExtents: geom.V(halfW, halfH)}
}
func Circle(radius float64) Shape { return Shape{Kind: ShapeCircle, Radius: radius} }
func Point() Shape                { return Shape{Kind: ShapePoint} }

// Bounds returns the shape's bounding box centered on c.
func (s Shape) Bounds(c geom.Vec2) geom.AABB {
	switch s.Kind {
	case ShapeAABB:
		return geom.BoxAround(c, s.HalfExtents)
	case ShapeCircle:
		return geom.BoxAround(c, geom.V(s.Radius, s.Radius))
	default:
		return geom.AABB{Min: c, Max: c}
	}
}

// Validate rejects degenerate geometry.
func (s Shape) Validate() error {
	switch s.Kind {
	case ShapeAABB:
		h := s.HalfExtents
		if !h.IsFinite() || h.X <= 0 || h.Y <= 0 {
			return fmt.Errorf("%w: box half extents %.4g x %.4g", ErrInvalidGeometry, h.X, h.Y)
		}
	case ShapeCircle:
		if math.IsNaN(s.Radius) || math.IsInf(s.Radius, 0) || s.Radius <= 0 {
			return fmt.Errorf("%w: circle radius %.4g", ErrInvalidGeometry, s.Radius)
		}
	case ShapePoint:
	default:
		return fmt.Errorf("%w: unknown shape kind %d", ErrInvalidGeometry, s.Kind)
	}
	return nil
}

// Layer bits. Any uint32 bit may be used; these are conventional names.
const (
	LayerDefault uint32 = 1 << iota
	LayerStatic
	LayerActor
	LayerProjectile
	LayerSensor

	LayerAll uint32 = math.MaxUint32
)

// Collider attaches a shape to an entity's transform.
type Collider struct {
	Shape  Shape     `json:"shape" yaml:"shape"`
	Offset geom.Vec2 `json:"offset,omitempty" yaml:"offset,omitempty"`
	// Layer is the category bit of this collider; Mask the categories it interacts with.
	Layer     uint32 `json:"layer" yaml:"layer"`
	Mask      uint32 `json:"mask" yaml:"mask"`
	IsTrigger bool   `json:"is_trigger,omitempty" yaml:"is_trigger,omitempty"`
	// Static colliders never initiate broad-phase queries and feed the navigation grid.
	Static bool `json:"static,omitempty" yaml:"static,omitempty"`
}

// Center returns the world-space shape center for the given transform.
func (c Collider) Center(t Transform) geom.Vec2 { return t.Position.Add(c.Offset) }

// Bounds returns the world-space bounding box for the given transform.
func (c Collider) Bounds(t Transform) geom.AABB { return c.Shape.Bounds(c.Center(t)) }

// Validate checks shape geometry and that the collider belongs to at least one layer.
func (c Collider) Validate() error {
	if err := c.Shape.Validate(); err != nil {
		return err
	}
	if !c.Offset.IsFinite() {
		return fmt.Errorf("%w: non-finite offset", ErrInvalidGeometry)
	}
	if c.Layer == 0 {
		return fmt.Errorf("%w: collider has no layer", ErrInvalidCollider)
	}
	return nil
}

// CanCollide applies the symmetric layer/mask filter.
func CanCollide(a, b Collider) bool {
	return a.Mask&b.Layer != 0 && b.Mask&a.Layer != 0
}

// BodyType selects how a rigid body participates in the simulation.
type BodyType uint8

const (
	BodyStatic BodyType = iota
	BodyKinematic
	BodyDynamic
)

func (t BodyType) String() string {
	switch t {
	case BodyStatic:
		return "static"
	case BodyKinematic:
		return "kinematic"
	case BodyDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("body(%d)", uint8(t))
	}
}

// RigidBody holds the motion state integrated by the physics system.
type RigidBody struct {
	Type        BodyType  `json:"type" yaml:"type"`
	Mass        float64   `json:"mass" yaml:"mass"`
	Velocity    geom.Vec2 `json:"velocity" yaml:"velocity"`
	Force       geom.Vec2 `json:"force" yaml:"force"`
	Drag        float64   `json:"drag" yaml:"drag"`
	Restitution float64   `json:"restitution" yaml:"restitution"`
	FreezeX     bool      `json:"freeze_x,omitempty" yaml:"freeze_x,omitempty"`
	FreezeY     bool      `json:"freeze_y,omitempty" yaml:"freeze_y,omitempty"`
	// Unstable is set when the body produced a non-finite state and was frozen.
	Unstable bool `json:"unstable,omitempty" yaml:"unstable,omitempty"`
}

// InverseMass is zero for anything collision response cannot move.
func (b *RigidBody) InverseMass() float64 {
	if b == nil || b.Type != BodyDynamic || b.Unstable || b.Mass <= 0 {
		return 0
	}
	return 1 / b.Mass
}

// AddForce accumulates a force until the next integration step.
func (b *RigidBody) AddForce(f geom.Vec2) { b.Force = b.Force.Add(f) }

// Validate checks body parameters.
func (b *RigidBody) Validate() error {
	if b.Type > BodyDynamic {
		return fmt.Errorf("%w: unknown body type %d", ErrInvalidBody, b.Type)
	}
	if b.Type == BodyDynamic && (!(b.Mass > 0) || math.IsInf(b.Mass, 0)) {
		return fmt.Errorf("%w: dynamic body mass %.4g", ErrInvalidBody, b.Mass)
	}
	if b.Restitution < 0 || b.Restitution > 1 || math.IsNaN(b.Restitution) {
		return fmt.Errorf("%w: restitution %.4g outside [0,1]", ErrInvalidBody, b.Restitution)
	}
	if b.Drag < 0 || math.IsNaN(b.Drag) {
		return fmt.Errorf("%w: negative drag %.4g", ErrInvalidBody, b.Drag)
	}
	if !b.Velocity.IsFinite() || !b.Force.IsFinite() {
		return fmt.Errorf("%w: non-finite motion state", ErrInvalidBody)
	}
	return nil
}
