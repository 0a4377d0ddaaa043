package steering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/systems"
	"github.com/zeusync/simcore/internal/core/systems/pathfinding"
	"github.com/zeusync/simcore/pkg/geom"
)

var ErrUnknownAgent = errors.New("steering: unknown agent")

type Config struct {
	// Speed is used for agents that do not set their own.
	Speed float64 `yaml:"speed"`
	// ArriveRadius is how close an agent must get before a waypoint counts as reached.
	ArriveRadius float64 `yaml:"arrive_radius"`
	// RetryTicks is how long an agent waits after a failed search before asking again.
	RetryTicks int `yaml:"retry_ticks"`
}

func DefaultConfig() Config {
	return Config{Speed: 64, ArriveRadius: 2, RetryTicks: 30}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.Speed > 0) || math.IsInf(c.Speed, 0) {
		errs = append(errs, fmt.Errorf("steering: speed must be positive, got %g", c.Speed))
	}
	if c.ArriveRadius < 0 || math.IsNaN(c.ArriveRadius) {
		errs = append(errs, fmt.Errorf("steering: arrive radius must be >= 0, got %g", c.ArriveRadius))
	}
	if c.RetryTicks < 1 {
		errs = append(errs, fmt.Errorf("steering: retry ticks must be >= 1, got %d", c.RetryTicks))
	}
	return errors.Join(errs...)
}

// State of an agent's path following.
type State uint8

const (
	StateIdle State = iota
	StateRequesting
	StateFollowing
	StateWaiting
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateFollowing:
		return "following"
	case StateWaiting:
		return "waiting"
	case StateArrived:
		return "arrived"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Body is the motion side steering drives; physics.System implements it.
type Body interface {
	SetVelocity(id models.EntityID, v geom.Vec2) error
}

// Positions resolves where an agent currently is.
type Positions interface {
	Position(id models.EntityID) (geom.Vec2, bool)
}

type agent struct {
	goal   geom.Vec2
	speed  float64
	state  State
	handle *pathfinding.Handle
	path   *pathfinding.Path
	wait   int
}

// System moves agents along paths from the pathfinding service. It requests a
// route when a goal is set, follows the string-pulled waypoints by overriding
// body velocity, re-requests when the grid version moved past the path, and
// backs off for RetryTicks when no route exists.
type System struct {
	cfg       Config
	paths     *pathfinding.System
	body      Body
	positions Positions
	heuristic pathfinding.Heuristic
	logger    log.Log

	agents map[models.EntityID]*agent
	order  []models.EntityID
}

var _ systems.System = (*System)(nil)

func New(cfg Config, paths *pathfinding.System, body Body, positions Positions, logger log.Log) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &System{
		cfg:       cfg,
		paths:     paths,
		body:      body,
		positions: positions,
		heuristic: paths.Config().DefaultHeuristic(),
		logger:    log.OrNop(logger).Named("steering"),
		agents:    make(map[models.EntityID]*agent),
	}, nil
}

func (s *System) Name() string                  { return "steering" }
func (s *System) Phase() systems.ExecutionPhase { return systems.PhaseInput }
func (s *System) Priority() systems.Priority    { return systems.PriorityNormal }

// SetGoal sends id towards goal at speed (Config.Speed when speed <= 0),
// replacing any previous goal.
func (s *System) SetGoal(id models.EntityID, goal geom.Vec2, speed float64) error {
	if !goal.IsFinite() {
		return fmt.Errorf("set goal %s: %w", id, models.ErrInvalidGeometry)
	}
	if speed <= 0 {
		speed = s.cfg.Speed
	}
	a, ok := s.agents[id]
	if !ok {
		a = &agent{}
		s.agents[id] = a
		s.order = append(s.order, id)
		slices.Sort(s.order)
	}
	a.goal, a.speed = goal, speed
	a.path, a.handle = nil, nil
	a.state = StateRequesting
	s.request(id, a)
	return nil
}

// Stop halts id and forgets its goal.
func (s *System) Stop(id models.EntityID) error {
	a, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("stop %s: %w", id, ErrUnknownAgent)
	}
	s.paths.Cancel(id)
	a.handle, a.path = nil, nil
	a.state = StateIdle
	return s.halt(id)
}

// Remove forgets id and cancels its pending search.
func (s *System) Remove(id models.EntityID) {
	if _, ok := s.agents[id]; !ok {
		return
	}
	s.paths.Cancel(id)
	delete(s.agents, id)
	s.order = slices.DeleteFunc(s.order, func(x models.EntityID) bool { return x == id })
}

func (s *System) State(id models.EntityID) (State, bool) {
	a, ok := s.agents[id]
	if !ok {
		return StateIdle, false
	}
	return a.state, true
}

// Path returns the route id is following.
func (s *System) Path(id models.EntityID) (*pathfinding.Path, bool) {
	a, ok := s.agents[id]
	if !ok || a.path == nil {
		return nil, false
	}
	return a.path, true
}

func (s *System) Len() int { return len(s.agents) }

func (s *System) FixedUpdate(_ context.Context, dt float64) error {
	var errs []error
	for _, id := range s.order {
		if err := s.steer(id, s.agents[id], dt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *System) request(id models.EntityID, a *agent) {
	a.state = StateRequesting
	pos, ok := s.positions.Position(id)
	if !ok {
		a.state = StateIdle
		return
	}
	grid := s.paths.Grid()
	start, okStart := grid.WorldToCell(pos)
	goal, okGoal := grid.WorldToCell(a.goal)
	if !okStart || !okGoal {
		s.logger.Debug("agent outside navigation grid",
			log.Stringer("entity", id),
			log.Stringer("start", start),
			log.Stringer("goal", goal),
		)
		s.backOff(a)
		return
	}
	h, err := s.paths.Request(id, start, goal, s.heuristic)
	if err != nil {
		s.logger.Warn("path request rejected", log.Stringer("entity", id), log.Error(err))
		s.backOff(a)
		return
	}
	a.handle = h
}

func (s *System) backOff(a *agent) {
	a.handle, a.path = nil, nil
	a.state = StateWaiting
	a.wait = s.cfg.RetryTicks
}

func (s *System) halt(id models.EntityID) error {
	if err := s.body.SetVelocity(id, geom.Vec2{}); err != nil && !errors.Is(err, models.ErrEntityNotFound) {
		return err
	}
	return nil
}

func (s *System) steer(id models.EntityID, a *agent, dt float64) error {
	switch a.state {
	case StateRequesting:
		if a.handle == nil {
			s.request(id, a)
			return s.halt(id)
		}
		switch a.handle.Status() {
		case pathfinding.StatusPending:
			return s.halt(id)
		case pathfinding.StatusFound:
			a.path, _ = a.handle.Path()
			a.handle = nil
			a.state = StateFollowing
		case pathfinding.StatusNotFound:
			s.logger.Debug("no route", log.Stringer("entity", id))
			s.backOff(a)
			return s.halt(id)
		default:
			s.request(id, a)
			return s.halt(id)
		}
	case StateWaiting:
		a.wait--
		if a.wait <= 0 {
			s.request(id, a)
		}
		return s.halt(id)
	case StateFollowing:
	default:
		return nil
	}

	if a.path.Stale(s.paths.Grid().Version()) {
		s.request(id, a)
		return s.halt(id)
	}
	return s.follow(id, a, dt)
}

func (s *System) follow(id models.EntityID, a *agent, dt float64) error {
	pos, ok := s.positions.Position(id)
	if !ok {
		return nil
	}
	for {
		wp, ok := a.path.Current()
		if !ok {
			a.state = StateArrived
			return s.halt(id)
		}
		to := wp.Sub(pos)
		dist := to.Len()
		if dist > s.cfg.ArriveRadius {
			speed := a.speed
			if dt > 0 {
				// land on the waypoint instead of stepping past it
				speed = min(speed, dist/dt)
			}
			return s.body.SetVelocity(id, to.Scale(speed/dist))
		}
		a.path.Advance()
	}
}
