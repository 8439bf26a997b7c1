package controller

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/wsn-simulator/core"
)

// ErrInvalidConfig indicates a configuration value outside its domain.
var ErrInvalidConfig = errors.New("invalid controller config")

// Config describes one simulated field.
type Config struct {
	// NodeCount is the number of sensors, excluding the controller.
	NodeCount     int     `mapstructure:"node_count" yaml:"node_count"`
	InitialEnergy float64 `mapstructure:"initial_energy" yaml:"initial_energy"`
	// CoverageK is the ECCKN coverage degree.
	CoverageK int `mapstructure:"coverage_k" yaml:"coverage_k"`
	// FieldSize bounds sensor coordinates to [1, FieldSize).
	FieldSize          int           `mapstructure:"field_size" yaml:"field_size"`
	ControllerPosition core.Position `mapstructure:"controller_position" yaml:"controller_position"`
	ControllerEnergy   float64       `mapstructure:"controller_energy" yaml:"controller_energy"`
	Seed               uint64        `mapstructure:"seed" yaml:"seed"`

	Energy              core.EnergyModel `mapstructure:"energy" yaml:"energy"`
	ControllerReplenish float64          `mapstructure:"controller_replenish" yaml:"controller_replenish"`
	// ControllerBaseLoad is deducted from the controller every round.
	ControllerBaseLoad float64 `mapstructure:"controller_base_load" yaml:"controller_base_load"`

	MaxPlacementAttempts int `mapstructure:"max_placement_attempts" yaml:"max_placement_attempts"`
}

// DefaultConfig returns a 150-sensor field of 200x200 with the controller
// in the centre.
func DefaultConfig() Config {
	return Config{
		NodeCount:            150,
		InitialEnergy:        100001,
		CoverageK:            1,
		FieldSize:            200,
		ControllerPosition:   core.Position{X: 100, Y: 100},
		ControllerEnergy:     100001,
		Seed:                 1,
		Energy:               core.DefaultEnergyModel(),
		ControllerReplenish:  core.DefaultControllerReplenish,
		MaxPlacementAttempts: 100,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.NodeCount < 0:
		return fmt.Errorf("%w: node_count must not be negative, got %d", ErrInvalidConfig, c.NodeCount)
	case c.CoverageK < 1:
		return fmt.Errorf("%w: coverage_k: %w", ErrInvalidConfig, core.ErrInvalidCoverage)
	case c.FieldSize < 2:
		return fmt.Errorf("%w: field_size must be at least 2, got %d", ErrInvalidConfig, c.FieldSize)
	case !finiteNonNegative(c.InitialEnergy):
		return fmt.Errorf("%w: initial_energy must be finite and non-negative", ErrInvalidConfig)
	case !finiteNonNegative(c.ControllerEnergy):
		return fmt.Errorf("%w: controller_energy must be finite and non-negative", ErrInvalidConfig)
	case !c.ControllerPosition.Valid():
		return fmt.Errorf("%w: controller_position: %w", ErrInvalidConfig, core.ErrInvalidPosition)
	case !finiteNonNegative(c.Energy.ElectronicsCost) || !finiteNonNegative(c.Energy.AmplifierCost):
		return fmt.Errorf("%w: energy costs must be finite and non-negative", ErrInvalidConfig)
	case !finiteNonNegative(c.ControllerReplenish) || !finiteNonNegative(c.ControllerBaseLoad):
		return fmt.Errorf("%w: controller replenish and base load must be finite and non-negative", ErrInvalidConfig)
	case c.MaxPlacementAttempts < 1:
		return fmt.Errorf("%w: max_placement_attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxPlacementAttempts)
	}
	if capacity := c.gridCapacity(); c.NodeCount > capacity {
		return fmt.Errorf("%w: %d sensors do not fit on %d grid points", ErrInvalidConfig, c.NodeCount, capacity)
	}
	return nil
}

// gridCapacity counts the integer points a sensor may take. A controller
// sitting on one of them takes it out of the pool.
func (c Config) gridCapacity() int {
	capacity := (c.FieldSize - 1) * (c.FieldSize - 1)
	if c.onGrid(c.ControllerPosition.X) && c.onGrid(c.ControllerPosition.Y) {
		capacity--
	}
	return capacity
}

func (c Config) onGrid(v float64) bool {
	return v == math.Trunc(v) && v >= 1 && v < float64(c.FieldSize)
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
