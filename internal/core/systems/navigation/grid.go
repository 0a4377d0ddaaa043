package navigation

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/systems/collision"
	"github.com/zeusync/simcore/pkg/geom"
)

var (
	ErrOutOfBounds  = errors.New("cell out of bounds")
	ErrInvalidCost  = errors.New("cell cost must be finite and >= 1")
	ErrSizeMismatch = errors.New("tile source size does not match grid")
)

// Cell addresses a grid cell by column and row.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func C(x, y int) Cell { return Cell{X: x, Y: y} }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// SampleRule decides when a static collider blocks a cell.
type SampleRule string

const (
	// SampleCenter blocks cells whose center lies inside a collider.
	SampleCenter SampleRule = "center"
	// SampleOverlap blocks cells whose rectangle overlaps a collider with positive area.
	SampleOverlap SampleRule = "overlap"
)

func (r SampleRule) Valid() bool { return r == SampleCenter || r == SampleOverlap }

type Config struct {
	Origin   geom.Vec2  `yaml:"origin"`
	CellSize float64    `yaml:"cell_size"`
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Sampling SampleRule `yaml:"sampling"`
}

func DefaultConfig() Config {
	return Config{CellSize: 16, Width: 64, Height: 64, Sampling: SampleCenter}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.CellSize > 0) || math.IsInf(c.CellSize, 0) {
		errs = append(errs, fmt.Errorf("navigation: cell size must be positive, got %g", c.CellSize))
	}
	if c.Width < 1 || c.Height < 1 {
		errs = append(errs, fmt.Errorf("navigation: grid must be at least 1x1, got %dx%d", c.Width, c.Height))
	}
	if !c.Origin.IsFinite() {
		errs = append(errs, fmt.Errorf("navigation: origin must be finite"))
	}
	if !c.Sampling.Valid() {
		errs = append(errs, fmt.Errorf("navigation: unknown sampling rule %q", c.Sampling))
	}
	return errors.Join(errs...)
}

// View is the read side of a grid; both the live Grid and its Snapshots
// implement it.
type View interface {
	Width() int
	Height() int
	InBounds(c Cell) bool
	Walkable(c Cell) bool
	Cost(c Cell) float64
	Version() uint64
	CellToWorld(c Cell) geom.Vec2
	WorldToCell(p geom.Vec2) (Cell, bool)
}

// StaticSource enumerates static, non-trigger colliders.
type StaticSource interface {
	EachStatic(fn func(id models.EntityID, c models.Collider, t models.Transform))
}

// TileSource is a walkability/cost projection of level data owned elsewhere.
type TileSource interface {
	Size() (width, height int)
	Tile(x, y int) (walkable bool, cost float64)
}

type layout struct {
	origin   geom.Vec2
	cellSize float64
	width    int
	height   int
}

func (l layout) Width() int           { return l.width }
func (l layout) Height() int          { return l.height }
func (l layout) CellSize() float64    { return l.cellSize }
func (l layout) Origin() geom.Vec2    { return l.origin }
func (l layout) index(c Cell) int     { return c.Y*l.width + c.X }
func (l layout) InBounds(c Cell) bool { return c.X >= 0 && c.Y >= 0 && c.X < l.width && c.Y < l.height }

// CellToWorld returns the world-space center of c.
func (l layout) CellToWorld(c Cell) geom.Vec2 {
	return geom.V(
		l.origin.X+(float64(c.X)+0.5)*l.cellSize,
		l.origin.Y+(float64(c.Y)+0.5)*l.cellSize,
	)
}

// WorldToCell returns the cell containing p and whether it lies on the grid.
func (l layout) WorldToCell(p geom.Vec2) (Cell, bool) {
	c := Cell{
		X: int(math.Floor((p.X - l.origin.X) / l.cellSize)),
		Y: int(math.Floor((p.Y - l.origin.Y) / l.cellSize)),
	}
	return c, l.InBounds(c)
}

// CellBounds returns the world-space rectangle of c.
func (l layout) CellBounds(c Cell) geom.AABB {
	lo := geom.V(l.origin.X+float64(c.X)*l.cellSize, l.origin.Y+float64(c.Y)*l.cellSize)
	return geom.AABB{Min: lo, Max: lo.Add(geom.V(l.cellSize, l.cellSize))}
}

func (l layout) clampRange(b geom.AABB) (lo, hi Cell) {
	lo, _ = l.WorldToCell(b.Min)
	hi, _ = l.WorldToCell(b.Max)
	lo.X, lo.Y = max(lo.X, 0), max(lo.Y, 0)
	hi.X, hi.Y = min(hi.X, l.width-1), min(hi.Y, l.height-1)
	return lo, hi
}

// Grid is the mutable navigation grid. A cell is walkable when its base layer
// (tiles, SetWalkable) allows it and no static collider blocks it. Every write
// increments Version. Grid is owned by the world's tick; other goroutines read
// Snapshots.
type Grid struct {
	layout
	rule    SampleRule
	base    []bool
	static  []bool
	cost    []float64
	version uint64
}

var (
	_ View = (*Grid)(nil)
	_ View = (*Snapshot)(nil)
)

func New(cfg Config) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Width * cfg.Height
	g := &Grid{
		layout: layout{origin: cfg.Origin, cellSize: cfg.CellSize, width: cfg.Width, height: cfg.Height},
		rule:   cfg.Sampling,
		base:   make([]bool, n),
		static: make([]bool, n),
		cost:   make([]float64, n),
	}
	g.fill()
	return g, nil
}

func (g *Grid) fill() {
	for i := range g.base {
		g.base[i] = true
		g.static[i] = false
		g.cost[i] = 1
	}
}

func (g *Grid) Version() uint64 { return g.version }

// Rule returns the sampling rule used by Rebuild.
func (g *Grid) Rule() SampleRule { return g.rule }

// Walkable is false outside the grid.
func (g *Grid) Walkable(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	i := g.index(c)
	return g.base[i] && !g.static[i]
}

// Cost is +Inf outside the grid.
func (g *Grid) Cost(c Cell) float64 {
	if !g.InBounds(c) {
		return math.Inf(1)
	}
	return g.cost[g.index(c)]
}

func (g *Grid) SetWalkable(c Cell, walkable bool) error {
	if !g.InBounds(c) {
		return fmt.Errorf("set walkable %s: %w", c, ErrOutOfBounds)
	}
	g.base[g.index(c)] = walkable
	g.version++
	return nil
}

func (g *Grid) SetCost(c Cell, cost float64) error {
	if !g.InBounds(c) {
		return fmt.Errorf("set cost %s: %w", c, ErrOutOfBounds)
	}
	if !validCost(cost) {
		return fmt.Errorf("set cost %s: %w, got %g", c, ErrInvalidCost, cost)
	}
	g.cost[g.index(c)] = cost
	g.version++
	return nil
}

// Reset makes every cell walkable with cost 1 and clears the static overlay.
func (g *Grid) Reset() {
	g.fill()
	g.version++
}

// ApplyTiles replaces the base layer and costs with the tile projection.
func (g *Grid) ApplyTiles(ts TileSource) error {
	w, h := ts.Size()
	if w != g.width || h != g.height {
		return fmt.Errorf("%w: tiles %dx%d, grid %dx%d", ErrSizeMismatch, w, h, g.width, g.height)
	}
	base := make([]bool, len(g.base))
	cost := make([]float64, len(g.cost))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			walkable, c := ts.Tile(x, y)
			if !validCost(c) {
				return fmt.Errorf("tile %s: %w, got %g", C(x, y), ErrInvalidCost, c)
			}
			i := g.index(C(x, y))
			base[i], cost[i] = walkable, c
		}
	}
	g.base, g.cost = base, cost
	g.version++
	return nil
}

// Rebuild recomputes the static overlay from src using the configured rule.
func (g *Grid) Rebuild(src StaticSource) int { return g.RebuildFromStatic(src, g.rule) }

// RebuildFromStatic recomputes the static overlay from src and returns the
// number of cells it blocks.
func (g *Grid) RebuildFromStatic(src StaticSource, rule SampleRule) int {
	clear(g.static)
	src.EachStatic(func(_ models.EntityID, c models.Collider, t models.Transform) {
		center := c.Center(t)
		lo, hi := g.clampRange(c.Bounds(t))
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				cell := C(x, y)
				i := g.index(cell)
				if g.static[i] {
					continue
				}
				switch rule {
				case SampleOverlap:
					g.static[i] = collision.OverlapsBox(c.Shape, center, g.CellBounds(cell))
				default:
					g.static[i] = collision.ContainsPoint(c.Shape, center, g.CellToWorld(cell))
				}
			}
		}
	})
	g.version++

	blocked := 0
	for _, b := range g.static {
		if b {
			blocked++
		}
	}
	return blocked
}

// Blocked counts cells that are not walkable.
func (g *Grid) Blocked() int {
	n := 0
	for i := range g.base {
		if !g.base[i] || g.static[i] {
			n++
		}
	}
	return n
}

// Snapshot returns an immutable copy tagged with the current version.
func (g *Grid) Snapshot() *Snapshot {
	s := &Snapshot{
		layout:   g.layout,
		walkable: make([]bool, len(g.base)),
		cost:     make([]float64, len(g.cost)),
		version:  g.version,
	}
	for i := range g.base {
		s.walkable[i] = g.base[i] && !g.static[i]
	}
	copy(s.cost, g.cost)
	return s
}

// Snapshot is a read-only grid safe for concurrent use.
type Snapshot struct {
	layout
	walkable []bool
	cost     []float64
	version  uint64
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Walkable(c Cell) bool {
	return s.InBounds(c) && s.walkable[s.index(c)]
}

func (s *Snapshot) Cost(c Cell) float64 {
	if !s.InBounds(c) {
		return math.Inf(1)
	}
	return s.cost[s.index(c)]
}

func validCost(c float64) bool { return c >= 1 && !math.IsInf(c, 0) }
