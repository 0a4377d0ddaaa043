package systems

import (
	"context"
	"fmt"
	"time"
)

// System is one stage of the fixed simulation tick. Systems run in phase order;
// within a phase higher priorities run first and equal priorities keep their
// registration order.
type System interface {
	Name() string
	Phase() ExecutionPhase
	Priority() Priority
	FixedUpdate(ctx context.Context, dt float64) error
}

// Priority defines execution order within a phase.
type Priority uint16

const (
	PriorityLowest  Priority = 200
	PriorityLow     Priority = 500
	PriorityNormal  Priority = 600
	PriorityHigh    Priority = 1000
	PriorityHighest Priority = 1300
)

// ExecutionPhase defines when a system runs within a tick. Collision and
// physics repeat once per substep; the other phases run once per tick.
type ExecutionPhase uint8

const (
	PhaseInput ExecutionPhase = iota
	PhaseCollision
	PhasePhysics
	PhaseConsume
)

// Phases lists every phase in execution order.
var Phases = []ExecutionPhase{PhaseInput, PhaseCollision, PhasePhysics, PhaseConsume}

func (p ExecutionPhase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseCollision:
		return "collision"
	case PhasePhysics:
		return "physics"
	case PhaseConsume:
		return "consume"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Metrics provides runtime metrics for a system
type Metrics struct {
	ExecutionCount     uint64
	TotalExecutionTime time.Duration
	MaxExecutionTime   time.Duration
	LastExecutionTime  time.Duration
	ErrorCount         uint64
	LastError          error
}

func (m *Metrics) observe(d time.Duration, err error) {
	m.ExecutionCount++
	m.TotalExecutionTime += d
	m.LastExecutionTime = d
	m.MaxExecutionTime = max(m.MaxExecutionTime, d)
	if err != nil {
		m.ErrorCount++
		m.LastError = err
	}
}

func (m Metrics) AverageExecutionTime() time.Duration {
	if m.ExecutionCount == 0 {
		return 0
	}
	return m.TotalExecutionTime / time.Duration(m.ExecutionCount)
}

// Func adapts a function into a System.
type Func struct {
	SystemName     string
	SystemPhase    ExecutionPhase
	SystemPriority Priority
	Fn             func(ctx context.Context, dt float64) error
}

var _ System = Func{}

func (f Func) Name() string          { return f.SystemName }
func (f Func) Phase() ExecutionPhase { return f.SystemPhase }
func (f Func) Priority() Priority    { return f.SystemPriority }

func (f Func) FixedUpdate(ctx context.Context, dt float64) error { return f.Fn(ctx, dt) }
