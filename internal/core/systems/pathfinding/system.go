package pathfinding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zeusync/simcore/internal/core/models"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/pkg/concurrent"
	"github.com/zeusync/simcore/pkg/geom"
)

var (
	ErrInvalidHeuristic = errors.New("pathfinding: heuristic has no name or estimate")
	ErrClosed           = errors.New("pathfinding: system closed")
)

type Config struct {
	// Diagonal enables 8-connected moves at cost*√2 without corner cutting.
	Diagonal bool `yaml:"diagonal"`
	// MaxExpansions caps a single search; 0 disables the cap.
	MaxExpansions int `yaml:"max_expansions"`
	// FrameBudget is the number of node expansions Update may spend per call
	// when searches run on the caller's goroutine.
	FrameBudget int `yaml:"frame_budget"`
	CacheSize   int `yaml:"cache_size"`
	// Workers > 0 moves searches onto a worker pool reading grid snapshots.
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
	// Heuristic names the default heuristic used by path consumers.
	Heuristic string `yaml:"heuristic"`
}

func DefaultConfig() Config {
	return Config{
		MaxExpansions: 20000,
		FrameBudget:   2000,
		CacheSize:     256,
		QueueSize:     64,
		Heuristic:     Manhattan.Name(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxExpansions < 0 {
		errs = append(errs, fmt.Errorf("pathfinding: max expansions must be >= 0, got %d", c.MaxExpansions))
	}
	if c.FrameBudget < 1 {
		errs = append(errs, fmt.Errorf("pathfinding: frame budget must be >= 1, got %d", c.FrameBudget))
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("pathfinding: cache size must be >= 1, got %d", c.CacheSize))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("pathfinding: workers must be >= 0, got %d", c.Workers))
	}
	if c.Workers > 0 && c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("pathfinding: queue size must be >= 1 with workers, got %d", c.QueueSize))
	}
	if _, ok := HeuristicByName(c.Heuristic); !ok {
		errs = append(errs, fmt.Errorf("pathfinding: unknown heuristic %q", c.Heuristic))
	}
	return errors.Join(errs...)
}

// DefaultHeuristic resolves Config.Heuristic.
func (c Config) DefaultHeuristic() Heuristic {
	h, ok := HeuristicByName(c.Heuristic)
	if !ok {
		return Manhattan
	}
	return h
}

type cacheKey struct {
	start     navigation.Cell
	goal      navigation.Cell
	heuristic string
	diagonal  bool
	version   uint64
}

// Handle tracks one asynchronous request. Its state only changes inside
// Request, Cancel and Update; other goroutines may wait on Done.
type Handle struct {
	id        uuid.UUID
	owner     models.EntityID
	start     navigation.Cell
	goal      navigation.Cell
	heuristic Heuristic

	cancelled atomic.Bool
	done      chan struct{}

	mu     sync.Mutex
	status Status
	result Result
}

func newHandle(owner models.EntityID, start, goal navigation.Cell, h Heuristic) *Handle {
	return &Handle{
		id:        uuid.New(),
		owner:     owner,
		start:     start,
		goal:      goal,
		heuristic: h,
		done:      make(chan struct{}),
	}
}

func (h *Handle) ID() uuid.UUID          { return h.id }
func (h *Handle) Owner() models.EntityID { return h.owner }
func (h *Handle) Goal() navigation.Cell  { return h.goal }
func (h *Handle) Done() <-chan struct{}  { return h.done }
func (h *Handle) Heuristic() Heuristic   { return h.heuristic }
func (h *Handle) Start() navigation.Cell { return h.start }
func (h *Handle) isCancelled() bool      { return h.cancelled.Load() }

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the outcome once the handle left StatusPending.
func (h *Handle) Result() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.status != StatusPending
}

// Path returns a fresh Path when the request found a route.
func (h *Handle) Path() (*Path, bool) {
	r, ok := h.Result()
	if !ok || !r.Found() {
		return nil, false
	}
	return NewPath(r), true
}

func (h *Handle) resolve(r Result) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusPending {
		return false
	}
	h.status, h.result = r.Status, r
	close(h.done)
	return true
}

func (h *Handle) cancel() {
	h.cancelled.Store(true)
	h.resolve(Result{Status: StatusCancelled, Start: h.start, Goal: h.goal})
}

type job struct {
	handle *Handle
	view   navigation.View
}

type jobResult struct {
	handle *Handle
	result Result
}

// System answers path queries against a navigation grid. Synchronous queries go
// through FindPath; asynchronous ones through Request and are advanced by
// Update once per tick. Only the latest request per owner is honored.
type System struct {
	cfg     Config
	grid    *navigation.Grid
	logger  log.Log
	metrics *metrics.Metrics
	cache   *lru.Cache[cacheKey, Result]

	latest map[models.EntityID]*Handle
	queue  []*Handle

	active       *search
	activeHandle *Handle

	pool     *concurrent.Pool[job]
	results  chan jobResult
	inflight int
	snapshot *navigation.Snapshot
	closed   bool
}

func New(cfg Config, grid *navigation.Grid, logger log.Log, m *metrics.Metrics) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[cacheKey, Result](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("pathfinding: %w", err)
	}
	s := &System{
		cfg:     cfg,
		grid:    grid,
		logger:  log.OrNop(logger).Named("pathfinding"),
		metrics: m,
		cache:   cache,
		latest:  make(map[models.EntityID]*Handle),
	}
	if cfg.Workers > 0 {
		s.results = make(chan jobResult, cfg.QueueSize+cfg.Workers)
		s.pool = concurrent.NewPool(context.Background(), cfg.Workers, cfg.QueueSize, s.work)
	}
	return s, nil
}

func (s *System) Config() Config { return s.cfg }

func (s *System) Grid() *navigation.Grid { return s.grid }

// CacheLen returns the number of cached results, stale versions included.
func (s *System) CacheLen() int { return s.cache.Len() }

func (s *System) key(start, goal navigation.Cell, h Heuristic, version uint64) cacheKey {
	return cacheKey{start: start, goal: goal, heuristic: h.Name(), diagonal: s.cfg.Diagonal, version: version}
}

func (s *System) validate(start, goal navigation.Cell, h Heuristic) error {
	if !h.valid() {
		return ErrInvalidHeuristic
	}
	if !s.grid.InBounds(start) {
		return fmt.Errorf("start %s: %w", start, navigation.ErrOutOfBounds)
	}
	if !s.grid.InBounds(goal) {
		return fmt.Errorf("goal %s: %w", goal, navigation.ErrOutOfBounds)
	}
	return nil
}

func (s *System) lookup(k cacheKey) (Result, bool) {
	r, ok := s.cache.Get(k)
	s.metrics.PathCache(ok)
	if ok {
		r.Cached = true
	}
	return r, ok
}

func (s *System) store(k cacheKey, r Result) {
	if r.Status == StatusFound || r.Status == StatusNotFound {
		s.cache.Add(k, r)
	}
}

func (s *System) record(r Result) {
	s.metrics.PathSearch(r.Status.String(), r.Expansions)
	s.logger.Debug("path search finished",
		log.String("status", r.Status.String()),
		log.Stringer("start", r.Start),
		log.Stringer("goal", r.Goal),
		log.Int("expansions", r.Expansions),
		log.Float64("cost", r.Cost),
		log.Uint64("version", r.Version),
	)
}

// FindPath runs A* to completion on the live grid. A missing route is reported
// as StatusNotFound, not as an error.
func (s *System) FindPath(start, goal navigation.Cell, h Heuristic) (Result, error) {
	if err := s.validate(start, goal, h); err != nil {
		return Result{}, err
	}
	k := s.key(start, goal, h, s.grid.Version())
	if r, ok := s.lookup(k); ok {
		return r, nil
	}
	sr := newSearch(s.grid, start, goal, h, s.cfg.Diagonal, s.cfg.MaxExpansions)
	sr.step(0)
	s.store(k, sr.result)
	s.record(sr.result)
	return sr.result, nil
}

// FindPathWorld maps world positions to cells and calls FindPath.
func (s *System) FindPathWorld(from, to geom.Vec2, h Heuristic) (Result, error) {
	start, ok := s.grid.WorldToCell(from)
	if !ok {
		return Result{}, fmt.Errorf("start %s: %w", start, navigation.ErrOutOfBounds)
	}
	goal, ok := s.grid.WorldToCell(to)
	if !ok {
		return Result{}, fmt.Errorf("goal %s: %w", goal, navigation.ErrOutOfBounds)
	}
	return s.FindPath(start, goal, h)
}

// Request queues a search for owner, cancelling the owner's previous request.
// Cache hits and trivial queries resolve before Request returns.
func (s *System) Request(owner models.EntityID, start, goal navigation.Cell, h Heuristic) (*Handle, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.validate(start, goal, h); err != nil {
		return nil, err
	}
	s.Cancel(owner)

	handle := newHandle(owner, start, goal, h)
	k := s.key(start, goal, h, s.grid.Version())
	if r, ok := s.lookup(k); ok {
		handle.resolve(r)
		return handle, nil
	}
	if start == goal || !s.grid.Walkable(goal) {
		sr := newSearch(s.grid, start, goal, h, s.cfg.Diagonal, s.cfg.MaxExpansions)
		s.store(k, sr.result)
		handle.resolve(sr.result)
		return handle, nil
	}

	s.latest[owner] = handle
	s.queue = append(s.queue, handle)
	s.metrics.SetPendingPaths(s.Pending())
	return handle, nil
}

// Cancel drops the owner's pending request, e.g. when the entity is destroyed.
func (s *System) Cancel(owner models.EntityID) bool {
	h, ok := s.latest[owner]
	if !ok {
		return false
	}
	delete(s.latest, owner)
	if h.Status() != StatusPending {
		return false
	}
	h.cancel()
	if s.activeHandle == h {
		s.active.release()
		s.active, s.activeHandle = nil, nil
	}
	return true
}

// Pending returns the number of unresolved requests.
func (s *System) Pending() int {
	n := 0
	for _, h := range s.latest {
		if h.Status() == StatusPending {
			n++
		}
	}
	return n
}

// Update advances pending requests. Without workers it spends at most
// FrameBudget node expansions on the caller's goroutine; with workers it
// collects finished searches and hands queued ones to the pool. It never blocks
// on a search. It returns the number of requests resolved.
func (s *System) Update() (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var resolved int
	var err error
	if s.pool != nil {
		resolved, err = s.updateWorkers()
	} else {
		resolved = s.updateInline()
	}
	s.metrics.SetPendingPaths(s.Pending())
	return resolved, err
}

func (s *System) complete(h *Handle, r Result) bool {
	s.store(s.key(h.start, h.goal, h.heuristic, r.Version), r)
	s.record(r)
	if s.latest[h.owner] == h {
		delete(s.latest, h.owner)
	}
	return h.resolve(r)
}

func (s *System) updateInline() int {
	resolved := 0
	budget := s.cfg.FrameBudget
	for budget > 0 && len(s.queue) > 0 {
		head := s.queue[0]
		if head.isCancelled() {
			s.queue = s.queue[1:]
			continue
		}
		if s.activeHandle != head || s.active.result.Version != s.grid.Version() {
			if s.active != nil {
				s.active.release()
			}
			s.active = newSearch(s.grid, head.start, head.goal, head.heuristic, s.cfg.Diagonal, s.cfg.MaxExpansions)
			s.activeHandle = head
		}
		done, used := s.active.step(budget)
		budget -= used
		if !done {
			break
		}
		if s.complete(head, s.active.result) {
			resolved++
		}
		s.active, s.activeHandle = nil, nil
		s.queue = s.queue[1:]
	}
	return resolved
}

func (s *System) updateWorkers() (int, error) {
	resolved := 0
	for drained := false; !drained; {
		select {
		case jr := <-s.results:
			s.inflight--
			if jr.handle.isCancelled() || jr.result.Status == StatusCancelled {
				continue
			}
			if jr.result.Version != s.grid.Version() {
				// searched a snapshot the grid has since moved past
				s.store(s.key(jr.handle.start, jr.handle.goal, jr.handle.heuristic, jr.result.Version), jr.result)
				s.queue = append([]*Handle{jr.handle}, s.queue...)
				continue
			}
			if s.complete(jr.handle, jr.result) {
				resolved++
			}
		default:
			drained = true
		}
	}

	if len(s.queue) == 0 {
		return resolved, nil
	}
	if s.snapshot == nil || s.snapshot.Version() != s.grid.Version() {
		s.snapshot = s.grid.Snapshot()
	}
	for len(s.queue) > 0 && s.inflight < cap(s.results) {
		head := s.queue[0]
		if head.isCancelled() {
			s.queue = s.queue[1:]
			continue
		}
		ok, err := s.pool.TrySubmit(job{handle: head, view: s.snapshot})
		if err != nil {
			return resolved, fmt.Errorf("submit path search: %w", err)
		}
		if !ok {
			break
		}
		s.inflight++
		s.queue = s.queue[1:]
	}
	return resolved, nil
}

// searchSlice bounds how long a worker runs before checking for cancellation.
const searchSlice = 256

func (s *System) work(ctx context.Context, j job) error {
	h := j.handle
	sr := newSearch(j.view, h.start, h.goal, h.heuristic, s.cfg.Diagonal, s.cfg.MaxExpansions)
	for done := sr.done; !done; {
		if h.isCancelled() || ctx.Err() != nil {
			sr.release()
			break
		}
		done, _ = sr.step(searchSlice)
	}
	s.results <- jobResult{handle: h, result: sr.result}
	return nil
}

// Close cancels pending requests and stops the worker pool.
func (s *System) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for owner := range s.latest {
		s.Cancel(owner)
	}
	s.queue = nil
	if s.active != nil {
		s.active.release()
		s.active, s.activeHandle = nil, nil
	}
	if s.pool != nil {
		return s.pool.Stop()
	}
	return nil
}
