package collision

import (
	"math"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/pkg/geom"
)

// Manifold describes how to separate two overlapping shapes: moving B by
// Normal*Depth (or A by the opposite) resolves the overlap.
type Manifold struct {
	Normal geom.Vec2
	Depth  float64
}

var (
	axisX = geom.V(1, 0)
	axisY = geom.V(0, 1)
)

// Test runs the exact overlap test for shape a centered at pa against shape b
// centered at pb. Touching shapes do not overlap. Two points never collide.
func Test(a models.Shape, pa geom.Vec2, b models.Shape, pb geom.Vec2) (Manifold, bool) {
	switch a.Kind {
	case models.ShapeAABB:
		switch b.Kind {
		case models.ShapeAABB:
			return boxBox(pa, a.HalfExtents, pb, b.HalfExtents)
		case models.ShapeCircle:
			return boxCircle(geom.BoxAround(pa, a.HalfExtents), pb, b.Radius)
		case models.ShapePoint:
			return boxPoint(geom.BoxAround(pa, a.HalfExtents), pb)
		}
	case models.ShapeCircle:
		switch b.Kind {
		case models.ShapeAABB:
			return flip(boxCircle(geom.BoxAround(pb, b.HalfExtents), pa, a.Radius))
		case models.ShapeCircle:
			return circleCircle(pa, a.Radius, pb, b.Radius)
		case models.ShapePoint:
			return circlePoint(pa, a.Radius, pb)
		}
	case models.ShapePoint:
		switch b.Kind {
		case models.ShapeAABB:
			return flip(boxPoint(geom.BoxAround(pb, b.HalfExtents), pa))
		case models.ShapeCircle:
			return flip(circlePoint(pb, b.Radius, pa))
		}
	}
	return Manifold{}, false
}

// ContainsPoint reports whether p lies inside shape s centered at c, edges included.
func ContainsPoint(s models.Shape, c, p geom.Vec2) bool {
	switch s.Kind {
	case models.ShapeAABB:
		return geom.BoxAround(c, s.HalfExtents).ContainsPoint(p)
	case models.ShapeCircle:
		return c.DistSq(p) <= s.Radius*s.Radius
	default:
		return c == p
	}
}

// OverlapsBox reports whether shape s centered at c overlaps box r with positive area.
func OverlapsBox(s models.Shape, c geom.Vec2, r geom.AABB) bool {
	_, ok := Test(s, c, models.Box(r.Width()/2, r.Height()/2), r.Center())
	return ok
}

func flip(m Manifold, ok bool) (Manifold, bool) {
	if !ok {
		return m, false
	}
	return Manifold{Normal: m.Normal.Neg(), Depth: m.Depth}, true
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func boxBox(pa, ha, pb, hb geom.Vec2) (Manifold, bool) {
	d := pb.Sub(pa)
	ox := ha.X + hb.X - math.Abs(d.X)
	if ox <= 0 {
		return Manifold{}, false
	}
	oy := ha.Y + hb.Y - math.Abs(d.Y)
	if oy <= 0 {
		return Manifold{}, false
	}
	if ox < oy {
		return Manifold{Normal: axisX.Scale(sign(d.X)), Depth: ox}, true
	}
	return Manifold{Normal: axisY.Scale(sign(d.Y)), Depth: oy}, true
}

// nearestFace returns the outward normal of the face of box closest to the
// interior point p, and the distance to it.
func nearestFace(box geom.AABB, p geom.Vec2) (geom.Vec2, float64) {
	normal, dist := axisX.Neg(), p.X-box.Min.X
	if d := box.Max.X - p.X; d < dist {
		normal, dist = axisX, d
	}
	if d := p.Y - box.Min.Y; d < dist {
		normal, dist = axisY.Neg(), d
	}
	if d := box.Max.Y - p.Y; d < dist {
		normal, dist = axisY, d
	}
	return normal, dist
}

func boxPoint(box geom.AABB, p geom.Vec2) (Manifold, bool) {
	if !box.ContainsPoint(p) {
		return Manifold{}, false
	}
	normal, dist := nearestFace(box, p)
	if dist <= 0 {
		return Manifold{}, false
	}
	return Manifold{Normal: normal, Depth: dist}, true
}

func boxCircle(box geom.AABB, c geom.Vec2, r float64) (Manifold, bool) {
	if box.ContainsPoint(c) {
		normal, dist := nearestFace(box, c)
		return Manifold{Normal: normal, Depth: dist + r}, true
	}
	delta := c.Sub(box.ClosestPoint(c))
	distSq := delta.LenSq()
	if distSq >= r*r {
		return Manifold{}, false
	}
	dist := math.Sqrt(distSq)
	return Manifold{Normal: delta.Scale(1 / dist), Depth: r - dist}, true
}

func circleCircle(pa geom.Vec2, ra float64, pb geom.Vec2, rb float64) (Manifold, bool) {
	d := pb.Sub(pa)
	r := ra + rb
	distSq := d.LenSq()
	if distSq >= r*r {
		return Manifold{}, false
	}
	if distSq == 0 {
		return Manifold{Normal: axisX, Depth: r}, true
	}
	dist := math.Sqrt(distSq)
	return Manifold{Normal: d.Scale(1 / dist), Depth: r - dist}, true
}

func circlePoint(c geom.Vec2, r float64, p geom.Vec2) (Manifold, bool) {
	return circleCircle(c, r, p, 0)
}
