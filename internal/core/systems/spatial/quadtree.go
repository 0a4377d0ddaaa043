package spatial

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/pkg/geom"
)

var (
	ErrAlreadyIndexed = errors.New("entity already indexed")
	ErrNotIndexed     = errors.New("entity not indexed")
	ErrInvalidBounds  = errors.New("invalid bounding box")
)

// Config sizes the tree.
type Config struct {
	Bounds   geom.AABB `yaml:"bounds"`
	Capacity int       `yaml:"capacity"`
	MaxDepth int       `yaml:"max_depth"`
	// RebuildFactor scales Capacity into the overflow threshold used by NeedsRebuild.
	RebuildFactor int `yaml:"rebuild_factor"`
}

func DefaultConfig() Config {
	return Config{
		Bounds:        geom.Box(0, 0, 1024, 1024),
		Capacity:      8,
		MaxDepth:      6,
		RebuildFactor: 4,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !c.Bounds.IsValid() || c.Bounds.Area() <= 0 {
		errs = append(errs, fmt.Errorf("spatial: bounds must have positive area"))
	}
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("spatial: capacity must be >= 1, got %d", c.Capacity))
	}
	if c.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("spatial: max depth must be >= 0, got %d", c.MaxDepth))
	}
	if c.RebuildFactor < 1 {
		errs = append(errs, fmt.Errorf("spatial: rebuild factor must be >= 1, got %d", c.RebuildFactor))
	}
	return errors.Join(errs...)
}

// Statistics provides information about spatial partitioning state.
type Statistics struct {
	Nodes         int
	Items         int
	DeepestLevel  int
	Leaves        int
	EmptyLeaves   int
	OverflowItems int // items held by max-depth nodes
}

const noNode int32 = -1

type item struct {
	id     models.EntityID
	bounds geom.AABB
}

// node children are allocated as a contiguous block of four starting at firstChild,
// ordered NW, NE, SW, SE.
type node struct {
	bounds     geom.AABB
	depth      int
	firstChild int32
	items      []item
}

func (n *node) leaf() bool { return n.firstChild == noNode }

// Quadtree maps bounding boxes to entity ids. Nodes live in an arena addressed by
// index and every entity records only the index of the node holding it.
//
// Items that straddle a quadrant boundary stay at the parent. Nodes at MaxDepth
// never split and fall back to a linear scan, so coincident geometry cannot
// recurse without bound. Items outside Bounds are kept at the root.
type Quadtree struct {
	cfg   Config
	nodes []node
	where map[models.EntityID]int32
}

func New(cfg Config) (*Quadtree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q := &Quadtree{cfg: cfg, where: make(map[models.EntityID]int32)}
	q.reset()
	return q, nil
}

func (q *Quadtree) reset() {
	q.nodes = q.nodes[:0]
	q.nodes = append(q.nodes, node{bounds: q.cfg.Bounds, firstChild: noNode})
}

func (q *Quadtree) Config() Config { return q.cfg }

// Len returns the number of indexed entities.
func (q *Quadtree) Len() int { return len(q.where) }

// Contains reports whether id is indexed.
func (q *Quadtree) Contains(id models.EntityID) bool {
	_, ok := q.where[id]
	return ok
}

// Bounds returns the box stored for id.
func (q *Quadtree) Bounds(id models.EntityID) (geom.AABB, bool) {
	n, ok := q.where[id]
	if !ok {
		return geom.AABB{}, false
	}
	for _, it := range q.nodes[n].items {
		if it.id == id {
			return it.bounds, true
		}
	}
	return geom.AABB{}, false
}

// Insert indexes id under bounds.
func (q *Quadtree) Insert(id models.EntityID, bounds geom.AABB) error {
	if _, ok := q.where[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyIndexed, id)
	}
	if !bounds.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidBounds, id)
	}
	q.insertAt(0, item{id: id, bounds: bounds})
	return nil
}

func (q *Quadtree) insertAt(n int32, it item) {
	for !q.nodes[n].leaf() {
		c := q.childContaining(n, it.bounds)
		if c == noNode {
			break
		}
		n = c
	}
	q.nodes[n].items = append(q.nodes[n].items, it)
	q.where[it.id] = n

	nd := &q.nodes[n]
	if nd.leaf() && len(nd.items) > q.cfg.Capacity && nd.depth < q.cfg.MaxDepth {
		q.split(n)
	}
}

func (q *Quadtree) childContaining(n int32, b geom.AABB) int32 {
	first := q.nodes[n].firstChild
	for i := int32(0); i < 4; i++ {
		if q.nodes[first+i].bounds.Contains(b) {
			return first + i
		}
	}
	return noNode
}

func (q *Quadtree) split(n int32) {
	quads := q.nodes[n].bounds.Quadrants()
	depth := q.nodes[n].depth + 1
	first := int32(len(q.nodes))
	for _, b := range quads {
		q.nodes = append(q.nodes, node{bounds: b, depth: depth, firstChild: noNode})
	}
	q.nodes[n].firstChild = first

	items := q.nodes[n].items
	q.nodes[n].items = nil
	kept := make([]item, 0, len(items))
	for _, it := range items {
		if c := q.childContaining(n, it.bounds); c != noNode {
			q.insertAt(c, it)
			continue
		}
		kept = append(kept, it)
		q.where[it.id] = n
	}
	q.nodes[n].items = append(q.nodes[n].items, kept...)
}

// Remove drops id from the index. Emptied quadrants are left in place until Rebuild.
func (q *Quadtree) Remove(id models.EntityID) error {
	n, ok := q.where[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotIndexed, id)
	}
	items := q.nodes[n].items
	for i, it := range items {
		if it.id == id {
			q.nodes[n].items = slices.Delete(items, i, i+1)
			break
		}
	}
	delete(q.where, id)
	return nil
}

// Update re-indexes id after it moved.
func (q *Quadtree) Update(id models.EntityID, bounds geom.AABB) error {
	n, ok := q.where[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotIndexed, id)
	}
	if !bounds.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidBounds, id)
	}
	nd := &q.nodes[n]
	if nd.bounds.Contains(bounds) && (nd.leaf() || q.childContaining(n, bounds) == noNode) {
		for i := range nd.items {
			if nd.items[i].id == id {
				nd.items[i].bounds = bounds
				return nil
			}
		}
	}
	if err := q.Remove(id); err != nil {
		return err
	}
	q.insertAt(0, item{id: id, bounds: bounds})
	return nil
}

// Query appends to out every id whose box intersects region. The result is a
// candidate set: callers still run exact shape tests.
func (q *Quadtree) Query(region geom.AABB, out []models.EntityID) []models.EntityID {
	var stackBuf [32]int32
	stack := append(stackBuf[:0], 0)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nd := &q.nodes[n]
		for _, it := range nd.items {
			if it.bounds.Intersects(region) {
				out = append(out, it.id)
			}
		}
		if nd.leaf() {
			continue
		}
		for i := int32(3); i >= 0; i-- {
			c := nd.firstChild + i
			if q.nodes[c].bounds.Intersects(region) {
				stack = append(stack, c)
			}
		}
	}
	return out
}

// Rebuild reconstructs the tree from the indexed items, merging empty quadrants.
func (q *Quadtree) Rebuild() {
	all := make([]item, 0, len(q.where))
	for i := range q.nodes {
		all = append(all, q.nodes[i].items...)
	}
	slices.SortFunc(all, func(a, b item) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	q.reset()
	for _, it := range all {
		q.insertAt(0, it)
	}
}

// NeedsRebuild reports whether max-depth nodes hold more than Capacity*RebuildFactor
// items, or whether most leaves went empty after removals.
func (q *Quadtree) NeedsRebuild() bool {
	s := q.Stats()
	if s.OverflowItems > q.cfg.Capacity*q.cfg.RebuildFactor {
		return true
	}
	return s.Leaves > 4*q.cfg.RebuildFactor && s.EmptyLeaves*4 > s.Leaves*3
}

// Stats walks the arena.
func (q *Quadtree) Stats() Statistics {
	s := Statistics{Nodes: len(q.nodes), Items: len(q.where)}
	for i := range q.nodes {
		nd := &q.nodes[i]
		if nd.depth > s.DeepestLevel {
			s.DeepestLevel = nd.depth
		}
		if nd.leaf() {
			s.Leaves++
			if len(nd.items) == 0 {
				s.EmptyLeaves++
			}
		}
		if nd.depth >= q.cfg.MaxDepth {
			s.OverflowItems += len(nd.items)
		}
	}
	return s
}
