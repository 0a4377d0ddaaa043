package pathfinding

import "github.com/zeusync/simcore/pkg/geom"

// Path is a consumer's copy of a found route with a cursor into its waypoints.
// It is tied to the grid version it was computed against.
type Path struct {
	Waypoints []geom.Vec2
	Cursor    int
	Version   uint64
}

func NewPath(r Result) *Path {
	return &Path{
		Waypoints: append([]geom.Vec2(nil), r.Waypoints...),
		Version:   r.Version,
	}
}

// Current returns the waypoint being approached.
func (p *Path) Current() (geom.Vec2, bool) {
	if p.Done() {
		return geom.Vec2{}, false
	}
	return p.Waypoints[p.Cursor], true
}

// Advance moves the cursor to the next waypoint and reports whether one remains.
func (p *Path) Advance() bool {
	if p.Cursor < len(p.Waypoints) {
		p.Cursor++
	}
	return !p.Done()
}

func (p *Path) Done() bool { return p.Cursor >= len(p.Waypoints) }

// Remaining returns the waypoints not yet reached.
func (p *Path) Remaining() []geom.Vec2 {
	if p.Done() {
		return nil
	}
	return p.Waypoints[p.Cursor:]
}

// Stale reports whether the grid changed since the path was computed; stale
// paths must be re-requested.
func (p *Path) Stale(version uint64) bool { return p.Version != version }
