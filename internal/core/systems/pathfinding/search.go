package pathfinding

import (
	"fmt"
	"math"
	"slices"

	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/pkg/generic"
	"github.com/zeusync/simcore/pkg/geom"
	"github.com/zeusync/simcore/pkg/sequence"
)

// Status of a path query.
type Status uint8

const (
	StatusPending Status = iota
	StatusFound
	StatusNotFound
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Result of a search. Cells is the raw A* route including start and goal;
// Waypoints is the string-pulled route in world space. Results handed out by
// the cache share their slices and must not be modified.
type Result struct {
	Status     Status
	Start      navigation.Cell
	Goal       navigation.Cell
	Cells      []navigation.Cell
	Waypoints  []geom.Vec2
	Cost       float64
	Expansions int
	// Exhausted is set when the search hit MaxExpansions before finding a route.
	Exhausted bool
	// Version of the grid the search ran against.
	Version uint64
	Cached  bool
}

func (r Result) Found() bool { return r.Status == StatusFound }

type node struct {
	idx int32
	f   float64
	h   float64
	seq uint64
}

// lower f first, then lower h, then earlier insertion.
func nodeLess(a, b node) bool {
	if a.f != b.f {
		return a.f < b.f
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.seq < b.seq
}

const (
	nodeUnseen uint8 = iota
	nodeOpen
	nodeClosed
)

type scratch struct {
	g      []float64
	parent []int32
	state  []uint8
	items  []*sequence.PriorityItem[node]
	open   *sequence.PriorityQueue[node]
}

func (s *scratch) prepare(n int) {
	if cap(s.state) < n {
		s.g = make([]float64, n)
		s.parent = make([]int32, n)
		s.state = make([]uint8, n)
		s.items = make([]*sequence.PriorityItem[node], n)
		return
	}
	s.g, s.parent = s.g[:n], s.parent[:n]
	s.state, s.items = s.state[:n], s.items[:n]
	clear(s.state)
}

var scratchPool = generic.NewPool(
	func() *scratch { return &scratch{open: sequence.NewPriorityQueue(nodeLess)} },
	func(s *scratch) {
		s.open.Reset()
		clear(s.items[:cap(s.items)])
	},
)

type offset struct {
	dx, dy int
}

var (
	orthogonal = []offset{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal   = []offset{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
)

// search is a resumable A* run over one grid view.
type search struct {
	view     navigation.View
	start    navigation.Cell
	goal     navigation.Cell
	h        Heuristic
	diagonal bool
	limit    int

	sc         *scratch
	width      int
	seq        uint64
	expansions int
	done       bool
	result     Result
}

func newSearch(view navigation.View, start, goal navigation.Cell, h Heuristic, diagonal bool, limit int) *search {
	s := &search{
		view:     view,
		start:    start,
		goal:     goal,
		h:        h,
		diagonal: diagonal,
		limit:    limit,
		width:    view.Width(),
		result:   Result{Start: start, Goal: goal, Version: view.Version()},
	}

	switch {
	case start == goal:
		s.result.Cells = []navigation.Cell{start}
		s.finish(StatusFound)
		return s
	case !view.Walkable(goal):
		s.finish(StatusNotFound)
		return s
	}

	s.sc = scratchPool.Get()
	s.sc.prepare(view.Width() * view.Height())
	si := s.index(start)
	s.sc.g[si] = 0
	s.sc.parent[si] = -1
	s.push(si, 0)
	return s
}

func (s *search) index(c navigation.Cell) int32 { return int32(c.Y*s.width + c.X) }

func (s *search) cell(i int32) navigation.Cell {
	return navigation.C(int(i)%s.width, int(i)/s.width)
}

func (s *search) push(i int32, g float64) {
	h := s.h.Estimate(s.cell(i), s.goal)
	s.seq++
	n := node{idx: i, f: g + h, h: h, seq: s.seq}
	if s.sc.state[i] == nodeOpen {
		s.sc.open.Update(s.sc.items[i], n)
		return
	}
	s.sc.state[i] = nodeOpen
	s.sc.items[i] = s.sc.open.Enqueue(n)
}

// step expands up to budget nodes (budget <= 0 means no limit) and reports
// whether the search finished and how many nodes it expanded.
func (s *search) step(budget int) (bool, int) {
	used := 0
	for !s.done && (budget <= 0 || used < budget) {
		cur, ok := s.sc.open.Dequeue()
		if !ok {
			s.finish(StatusNotFound)
			break
		}
		c := s.cell(cur.idx)
		if c == s.goal {
			s.result.Cells = s.trace(cur.idx)
			s.result.Cost = s.sc.g[cur.idx]
			s.finish(StatusFound)
			break
		}
		if s.limit > 0 && s.expansions >= s.limit {
			s.result.Exhausted = true
			s.finish(StatusNotFound)
			break
		}
		s.sc.state[cur.idx] = nodeClosed
		s.expansions++
		used++
		s.expand(c, cur.idx)
	}
	return s.done, used
}

func (s *search) expand(c navigation.Cell, ci int32) {
	g := s.sc.g[ci]
	for _, o := range orthogonal {
		s.relax(ci, navigation.C(c.X+o.dx, c.Y+o.dy), g, 1)
	}
	if !s.diagonal {
		return
	}
	for _, o := range diagonal {
		// no cutting corners: both orthogonal neighbours must be open
		if !s.view.Walkable(navigation.C(c.X+o.dx, c.Y)) || !s.view.Walkable(navigation.C(c.X, c.Y+o.dy)) {
			continue
		}
		s.relax(ci, navigation.C(c.X+o.dx, c.Y+o.dy), g, math.Sqrt2)
	}
}

func (s *search) relax(from int32, n navigation.Cell, g, scale float64) {
	if !s.view.Walkable(n) {
		return
	}
	ni := s.index(n)
	state := s.sc.state[ni]
	if state == nodeClosed {
		return
	}
	ng := g + s.view.Cost(n)*scale
	if state == nodeOpen && ng >= s.sc.g[ni] {
		return
	}
	s.sc.g[ni] = ng
	s.sc.parent[ni] = from
	s.push(ni, ng)
}

func (s *search) trace(i int32) []navigation.Cell {
	var cells []navigation.Cell
	for ; i >= 0; i = s.sc.parent[i] {
		cells = append(cells, s.cell(i))
	}
	slices.Reverse(cells)
	return cells
}

func (s *search) finish(status Status) {
	s.done = true
	s.result.Status = status
	s.result.Expansions = s.expansions
	if status == StatusFound {
		s.result.Waypoints = waypoints(s.view, Smooth(s.view, s.result.Cells))
	}
	s.release()
}

// release returns the scratch buffers; the search cannot be stepped afterwards.
func (s *search) release() {
	if s.sc != nil {
		scratchPool.Put(s.sc)
		s.sc = nil
	}
	if !s.done {
		s.done = true
		s.result.Status = StatusCancelled
		s.result.Expansions = s.expansions
	}
}
