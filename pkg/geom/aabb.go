package geom

import "math"

// AABB is an axis-aligned bounding box. Min is inclusive of the lower-left corner
// and Max of the upper-right one.
type AABB struct {
	Min Vec2 `json:"min" yaml:"min"`
	Max Vec2 `json:"max" yaml:"max"`
}

// Box builds an AABB from its corner coordinates.
func Box(minX, minY, maxX, maxY float64) AABB {
	return AABB{Min: Vec2{minX, minY}, Max: Vec2{maxX, maxY}}
}

// BoxAround returns the box centered on c with the given half extents.
func BoxAround(c, half Vec2) AABB {
	return AABB{Min: c.Sub(half), Max: c.Add(half)}
}

func (b AABB) Width() float64  { return b.Max.X - b.Min.X }
func (b AABB) Height() float64 { return b.Max.Y - b.Min.Y }
func (b AABB) Area() float64   { return b.Width() * b.Height() }
func (b AABB) Center() Vec2    { return Vec2{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2} }
func (b AABB) HalfSize() Vec2  { return Vec2{b.Width() / 2, b.Height() / 2} }

// Intersects reports whether the boxes overlap or touch.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	return o.Min.X >= b.Min.X && o.Max.X <= b.Max.X &&
		o.Min.Y >= b.Min.Y && o.Max.Y <= b.Max.Y
}

// ContainsPoint reports whether p lies inside b, edges included.
func (b AABB) ContainsPoint(p Vec2) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Union returns the smallest box enclosing both.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: Vec2{math.Min(b.Min.X, o.Min.X), math.Min(b.Min.Y, o.Min.Y)},
		Max: Vec2{math.Max(b.Max.X, o.Max.X), math.Max(b.Max.Y, o.Max.Y)},
	}
}

// Grow expands every side by margin.
func (b AABB) Grow(margin float64) AABB {
	m := Vec2{margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Sweep extends the box in the direction of displacement d so it covers both the
// current and the displaced position.
func (b AABB) Sweep(d Vec2) AABB {
	out := b
	if d.X < 0 {
		out.Min.X += d.X
	} else {
		out.Max.X += d.X
	}
	if d.Y < 0 {
		out.Min.Y += d.Y
	} else {
		out.Max.Y += d.Y
	}
	return out
}

// Translate moves the box by d.
func (b AABB) Translate(d Vec2) AABB {
	return AABB{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// ClosestPoint clamps p into the box.
func (b AABB) ClosestPoint(p Vec2) Vec2 {
	return Vec2{Clamp(p.X, b.Min.X, b.Max.X), Clamp(p.Y, b.Min.Y, b.Max.Y)}
}

// Quadrants splits the box into NW, NE, SW, SE children, in that order.
// Y grows downwards, matching screen space.
func (b AABB) Quadrants() [4]AABB {
	c := b.Center()
	return [4]AABB{
		{Min: b.Min, Max: c},
		{Min: Vec2{c.X, b.Min.Y}, Max: Vec2{b.Max.X, c.Y}},
		{Min: Vec2{b.Min.X, c.Y}, Max: Vec2{c.X, b.Max.Y}},
		{Min: c, Max: b.Max},
	}
}

// IsValid reports whether all coordinates are finite and Min does not exceed Max.
func (b AABB) IsValid() bool {
	return b.Min.IsFinite() && b.Max.IsFinite() && b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y
}
