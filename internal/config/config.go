// Package config loads the simulator configuration from an optional YAML
// file and WSN_-prefixed environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/harvest"
	"github.com/signalsfoundry/wsn-simulator/internal/controller"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
	"github.com/signalsfoundry/wsn-simulator/timectrl"
)

// EnvPrefix prefixes every environment override, e.g. WSN_SIMULATION_NODE_COUNT.
const EnvPrefix = "WSN"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// File is the complete on-disk configuration.
type File struct {
	Simulation Simulation                  `mapstructure:"simulation" yaml:"simulation"`
	Energy     core.EnergyModel            `mapstructure:"energy" yaml:"energy"`
	Harvest    Harvest                     `mapstructure:"harvest" yaml:"harvest"`
	Logging    logging.Config              `mapstructure:"logging" yaml:"logging"`
	Metrics    Metrics                     `mapstructure:"metrics" yaml:"metrics"`
	Tracing    observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Report     Report                      `mapstructure:"report" yaml:"report"`
	Server     Server                      `mapstructure:"server" yaml:"server"`
}

// Simulation sizes the field and paces the run.
type Simulation struct {
	NodeCount            int            `mapstructure:"node_count" yaml:"node_count"`
	InitialEnergy        float64        `mapstructure:"initial_energy" yaml:"initial_energy"`
	CoverageK            int            `mapstructure:"coverage_k" yaml:"coverage_k"`
	FieldSize            int            `mapstructure:"field_size" yaml:"field_size"`
	Seed                 uint64         `mapstructure:"seed" yaml:"seed"`
	MaxPlacementAttempts int            `mapstructure:"max_placement_attempts" yaml:"max_placement_attempts"`
	Controller           ControllerNode `mapstructure:"controller" yaml:"controller"`

	// Rounds bounds the run; 0 runs until every sensor is dead.
	Rounds int `mapstructure:"rounds" yaml:"rounds"`
	// Clock is realtime or accelerated.
	Clock         string        `mapstructure:"clock" yaml:"clock"`
	RoundInterval time.Duration `mapstructure:"round_interval" yaml:"round_interval"`
}

// ControllerNode places and powers the controller.
type ControllerNode struct {
	X         float64 `mapstructure:"x" yaml:"x"`
	Y         float64 `mapstructure:"y" yaml:"y"`
	Energy    float64 `mapstructure:"energy" yaml:"energy"`
	Replenish float64 `mapstructure:"replenish" yaml:"replenish"`
	BaseLoad  float64 `mapstructure:"base_load" yaml:"base_load"`
}

// Harvest selects the controller's ambient energy source.
type Harvest struct {
	// Source is none, constant or photovoltaic.
	Source string `mapstructure:"source" yaml:"source"`
	// Constant is the per-round increment of the constant source.
	Constant         float64 `mapstructure:"constant" yaml:"constant"`
	PanelArea        float64 `mapstructure:"panel_area" yaml:"panel_area"`
	MaxRadiance      float64 `mapstructure:"max_radiance" yaml:"max_radiance"`
	PanelYield       float64 `mapstructure:"panel_yield" yaml:"panel_yield"`
	PerformanceRatio float64 `mapstructure:"performance_ratio" yaml:"performance_ratio"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Report configures the per-round sinks. Empty paths disable a sink.
type Report struct {
	// Dir receives alive.txt, isolated.txt, dead.txt and sleeping.txt.
	Dir         string `mapstructure:"dir" yaml:"dir"`
	EnergyTable string `mapstructure:"energy_table" yaml:"energy_table"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	// TopologyDOT receives the final feasible topology in Graphviz format.
	TopologyDOT string `mapstructure:"topology_dot" yaml:"topology_dot"`
}

// Server configures the serve command.
type Server struct {
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
}

// Default mirrors controller.DefaultConfig and runs ten accelerated rounds.
func Default() File {
	cc := controller.DefaultConfig()
	return File{
		Simulation: Simulation{
			NodeCount:            cc.NodeCount,
			InitialEnergy:        cc.InitialEnergy,
			CoverageK:            cc.CoverageK,
			FieldSize:            cc.FieldSize,
			Seed:                 cc.Seed,
			MaxPlacementAttempts: cc.MaxPlacementAttempts,
			Controller: ControllerNode{
				X:         cc.ControllerPosition.X,
				Y:         cc.ControllerPosition.Y,
				Energy:    cc.ControllerEnergy,
				Replenish: cc.ControllerReplenish,
				BaseLoad:  cc.ControllerBaseLoad,
			},
			Rounds:        10,
			Clock:         timectrl.Accelerated.String(),
			RoundInterval: time.Second,
		},
		Energy: cc.Energy,
		Harvest: Harvest{
			Source:           "none",
			PanelArea:        1,
			MaxRadiance:      harvest.DefaultMaxRadiance,
			PanelYield:       harvest.DefaultPanelYield,
			PerformanceRatio: harvest.DefaultPerformanceRatio,
		},
		Logging: logging.Config{Level: "info", Format: "text"},
		Metrics: Metrics{Enabled: true},
		Tracing: observability.DefaultTracingConfig(),
		Report: Report{
			Dir: "out",
		},
		Server: Server{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
	}
}

// Load layers the defaults, the YAML file at path (if non-empty) and the
// environment, in increasing precedence.
func Load(path string) (File, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return File{}, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return File{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return File{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return File{}, fmt.Errorf("decode config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks the sections the simulator cannot run without.
func (f File) Validate() error {
	if err := f.ControllerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: simulation: %w", ErrInvalid, err)
	}
	if f.Simulation.Rounds < 0 {
		return fmt.Errorf("%w: simulation.rounds must not be negative", ErrInvalid)
	}
	mode, err := timectrl.ParseMode(f.Simulation.Clock)
	if err != nil {
		return fmt.Errorf("%w: simulation.clock: %w", ErrInvalid, err)
	}
	if mode == timectrl.RealTime && f.Simulation.RoundInterval <= 0 {
		return fmt.Errorf("%w: simulation.round_interval must be positive for the realtime clock", ErrInvalid)
	}
	if _, err := f.Harvest.NewSource(); err != nil {
		return fmt.Errorf("%w: harvest: %w", ErrInvalid, err)
	}
	if f.Tracing.SampleRatio < 0 || f.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be within [0, 1]", ErrInvalid)
	}
	return nil
}

// ControllerConfig converts the simulation and energy sections.
func (f File) ControllerConfig() controller.Config {
	s := f.Simulation
	return controller.Config{
		NodeCount:            s.NodeCount,
		InitialEnergy:        s.InitialEnergy,
		CoverageK:            s.CoverageK,
		FieldSize:            s.FieldSize,
		ControllerPosition:   core.Position{X: s.Controller.X, Y: s.Controller.Y},
		ControllerEnergy:     s.Controller.Energy,
		Seed:                 s.Seed,
		Energy:               f.Energy,
		ControllerReplenish:  s.Controller.Replenish,
		ControllerBaseLoad:   s.Controller.BaseLoad,
		MaxPlacementAttempts: s.MaxPlacementAttempts,
	}
}

// ClockMode parses Simulation.Clock. Validate has already rejected bad values.
func (f File) ClockMode() timectrl.Mode {
	mode, _ := timectrl.ParseMode(f.Simulation.Clock)
	return mode
}

// NewSource builds the configured harvest source.
func (h Harvest) NewSource() (harvest.Source, error) {
	switch strings.ToLower(h.Source) {
	case "", "none":
		return harvest.None, nil
	case "constant":
		if h.Constant < 0 {
			return nil, fmt.Errorf("constant increment must not be negative, got %v", h.Constant)
		}
		return harvest.Constant(h.Constant), nil
	case "photovoltaic", "pv":
		if h.PanelArea <= 0 {
			return nil, fmt.Errorf("panel_area must be positive, got %v", h.PanelArea)
		}
		pv := harvest.NewPhotovoltaic(h.PanelArea)
		pv.MaxRadiance = h.MaxRadiance
		pv.PanelYield = h.PanelYield
		pv.PerformanceRatio = h.PerformanceRatio
		return pv, nil
	default:
		return nil, fmt.Errorf("unknown source %q", h.Source)
	}
}

// WriteYAML encodes f with two-space indentation.
func (f File) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
