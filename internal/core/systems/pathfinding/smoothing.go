package pathfinding

import (
	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/pkg/geom"
)

// Smooth string-pulls a cell route: from each kept cell it skips ahead to the
// farthest later cell still in straight line of sight over walkable cells. The
// first and last cells are always kept. Cell costs are not considered, so a
// smoothed route may cross pricier cells than the raw one.
func Smooth(v navigation.View, cells []navigation.Cell) []navigation.Cell {
	if len(cells) <= 2 {
		return append([]navigation.Cell(nil), cells...)
	}
	out := []navigation.Cell{cells[0]}
	anchor := 0
	for i := 2; i < len(cells); i++ {
		if !navigation.LineOfSight(v, cells[anchor], cells[i]) {
			anchor = i - 1
			out = append(out, cells[anchor])
		}
	}
	return append(out, cells[len(cells)-1])
}

func waypoints(v navigation.View, cells []navigation.Cell) []geom.Vec2 {
	out := make([]geom.Vec2, len(cells))
	for i, c := range cells {
		out[i] = v.CellToWorld(c)
	}
	return out
}
