package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/simcore/internal/core/systems/navigation"
	"github.com/zeusync/simcore/internal/core/systems/pathfinding"
	"github.com/zeusync/simcore/internal/core/systems/physics"
	"github.com/zeusync/simcore/internal/core/systems/spatial"
	"github.com/zeusync/simcore/internal/core/systems/steering"
)

// Config holds the tick parameters and every system's configuration.
type Config struct {
	// FixedDelta is the simulated time per tick.
	FixedDelta time.Duration `yaml:"fixed_delta"`
	// Substeps splits each tick's collision and physics phases into shorter steps.
	Substeps int `yaml:"substeps"`
	// MaxCatchUp caps the ticks Advance runs for one call; surplus time is dropped.
	MaxCatchUp int `yaml:"max_catch_up"`

	Spatial     spatial.Config     `yaml:"spatial"`
	Physics     physics.Config     `yaml:"physics"`
	Navigation  navigation.Config  `yaml:"navigation"`
	Pathfinding pathfinding.Config `yaml:"pathfinding"`
	Steering    steering.Config    `yaml:"steering"`
}

func DefaultConfig() Config {
	return Config{
		FixedDelta:  time.Second / 60,
		Substeps:    1,
		MaxCatchUp:  5,
		Spatial:     spatial.DefaultConfig(),
		Physics:     physics.DefaultConfig(),
		Navigation:  navigation.DefaultConfig(),
		Pathfinding: pathfinding.DefaultConfig(),
		Steering:    steering.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.FixedDelta <= 0 {
		errs = append(errs, fmt.Errorf("world: fixed delta must be positive, got %s", c.FixedDelta))
	}
	if c.Substeps < 1 {
		errs = append(errs, fmt.Errorf("world: substeps must be >= 1, got %d", c.Substeps))
	}
	if c.MaxCatchUp < 1 {
		errs = append(errs, fmt.Errorf("world: max catch up must be >= 1, got %d", c.MaxCatchUp))
	}
	errs = append(errs,
		c.Spatial.Validate(),
		c.Physics.Validate(),
		c.Navigation.Validate(),
		c.Pathfinding.Validate(),
		c.Steering.Validate(),
	)
	return errors.Join(errs...)
}
