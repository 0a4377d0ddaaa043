package navigation

import "math"

// Traverse visits every cell the segment from a to b passes through, in order,
// until fn returns false. Coordinates are in cell units: cell (x, y) spans
// [x, x+1) x [y, y+1). When the segment crosses a cell corner exactly, both cells
// sharing that corner are visited before the diagonal one.
func Traverse(ax, ay, bx, by float64, fn func(Cell) bool) {
	x, y := int(math.Floor(ax)), int(math.Floor(ay))
	tx, ty := int(math.Floor(bx)), int(math.Floor(by))

	if !fn(C(x, y)) {
		return
	}

	dx, dy := bx-ax, by-ay
	stepX, stepY := 1, 1
	if dx < 0 {
		stepX, dx = -1, -dx
	}
	if dy < 0 {
		stepY, dy = -1, -dy
	}

	tMaxX, tDeltaX := math.Inf(1), math.Inf(1)
	if dx > 0 {
		tDeltaX = 1 / dx
		if stepX > 0 {
			tMaxX = (float64(x+1) - ax) * tDeltaX
		} else {
			tMaxX = (ax - float64(x)) * tDeltaX
		}
	}
	tMaxY, tDeltaY := math.Inf(1), math.Inf(1)
	if dy > 0 {
		tDeltaY = 1 / dy
		if stepY > 0 {
			tMaxY = (float64(y+1) - ay) * tDeltaY
		} else {
			tMaxY = (ay - float64(y)) * tDeltaY
		}
	}

	for x != tx || y != ty {
		switch {
		case tMaxX < tMaxY:
			if x == tx {
				y += stepY
				tMaxY += tDeltaY
				break
			}
			x += stepX
			tMaxX += tDeltaX
		case tMaxX > tMaxY:
			if y == ty {
				x += stepX
				tMaxX += tDeltaX
				break
			}
			y += stepY
			tMaxY += tDeltaY
		default:
			if x != tx && y != ty {
				if !fn(C(x+stepX, y)) || !fn(C(x, y+stepY)) {
					return
				}
				x += stepX
				y += stepY
				tMaxX += tDeltaX
				tMaxY += tDeltaY
				break
			}
			if x != tx {
				x += stepX
				tMaxX += tDeltaX
			} else {
				y += stepY
				tMaxY += tDeltaY
			}
		}
		if !fn(C(x, y)) {
			return
		}
	}
}

// LineOfSight reports whether the straight segment between the centers of a and
// b crosses only walkable cells.
func LineOfSight(v View, a, b Cell) bool {
	ok := true
	Traverse(float64(a.X)+0.5, float64(a.Y)+0.5, float64(b.X)+0.5, float64(b.Y)+0.5, func(c Cell) bool {
		ok = v.Walkable(c)
		return ok
	})
	return ok
}
