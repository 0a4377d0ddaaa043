package pathfinding

import (
	"math"

	"github.com/zeusync/simcore/internal/core/systems/navigation"
)

// Heuristic estimates the remaining cost between two cells. Its name is part of
// the cache key, so two heuristics with the same name must agree.
//
// Admissibility on grids with cost >= 1: Euclidean, Diagonal and Chebyshev never
// overestimate with either connectivity; Manhattan only with 4-connected moves.
// Custom heuristics that overestimate forfeit the optimality of the result.
type Heuristic struct {
	name     string
	estimate func(a, b navigation.Cell) float64
}

func (h Heuristic) Name() string { return h.name }

func (h Heuristic) Estimate(a, b navigation.Cell) float64 { return h.estimate(a, b) }

func (h Heuristic) valid() bool { return h.name != "" && h.estimate != nil }

// CustomHeuristic wraps fn under name.
func CustomHeuristic(name string, fn func(a, b navigation.Cell) float64) Heuristic {
	return Heuristic{name: name, estimate: fn}
}

func deltas(a, b navigation.Cell) (float64, float64) {
	return math.Abs(float64(a.X - b.X)), math.Abs(float64(a.Y - b.Y))
}

var (
	Manhattan = Heuristic{name: "manhattan", estimate: func(a, b navigation.Cell) float64 {
		dx, dy := deltas(a, b)
		return dx + dy
	}}

	Euclidean = Heuristic{name: "euclidean", estimate: func(a, b navigation.Cell) float64 {
		dx, dy := deltas(a, b)
		return math.Hypot(dx, dy)
	}}

	// Diagonal is the octile distance.
	Diagonal = Heuristic{name: "diagonal", estimate: func(a, b navigation.Cell) float64 {
		dx, dy := deltas(a, b)
		return math.Max(dx, dy) + (math.Sqrt2-1)*math.Min(dx, dy)
	}}

	Chebyshev = Heuristic{name: "chebyshev", estimate: func(a, b navigation.Cell) float64 {
		dx, dy := deltas(a, b)
		return math.Max(dx, dy)
	}}
)

// HeuristicByName resolves the built-in heuristics; "octile" is an alias of Diagonal.
func HeuristicByName(name string) (Heuristic, bool) {
	switch name {
	case Manhattan.name:
		return Manhattan, true
	case Euclidean.name:
		return Euclidean, true
	case Diagonal.name, "octile":
		return Diagonal, true
	case Chebyshev.name:
		return Chebyshev, true
	}
	return Heuristic{}, false
}
