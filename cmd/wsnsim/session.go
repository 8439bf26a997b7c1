package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/wsn-simulator/internal/config"
	"github.com/signalsfoundry/wsn-simulator/internal/controller"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
	"github.com/signalsfoundry/wsn-simulator/internal/report"
	"github.com/signalsfoundry/wsn-simulator/internal/sim/state"
	"github.com/signalsfoundry/wsn-simulator/internal/visualization"
	"github.com/signalsfoundry/wsn-simulator/model"
	"github.com/signalsfoundry/wsn-simulator/timectrl"
)

func loadConfig(cmd *cobra.Command) (config.File, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// session is one simulation run and everything observing it.
type session struct {
	cfg       config.File
	log       logging.Logger
	runID     string
	ctrl      *controller.Controller
	recorder  *observability.SimulationRecorder
	telemetry *state.TelemetryState
	sinks     report.Multi
	clock     *timectrl.RoundClock

	// observers are told about every published round, after telemetry.
	observers []func(stats model.RoundStats, exhausted bool)
}

func newSession(ctx context.Context, cfg config.File, log logging.Logger) (*session, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx, runLog := logging.WithRunLogger(ctx, log)
	s := &session{
		cfg:       cfg,
		log:       runLog,
		runID:     logging.RunIDFromContext(ctx),
		telemetry: state.NewTelemetryState(0),
	}

	if cfg.Metrics.Enabled {
		recorder, err := observability.NewSimulationRecorder(prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("initialise metrics: %w", err)
		}
		s.recorder = recorder
	}

	source, err := cfg.Harvest.NewSource()
	if err != nil {
		return nil, err
	}
	opts := []controller.Option{
		controller.WithLogger(runLog),
		controller.WithEnergySource(source),
	}
	if s.recorder != nil {
		opts = append(opts, controller.WithRecorder(s.recorder))
	}
	ctrl, err := controller.New(cfg.ControllerConfig(), opts...)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl

	if err := s.openSinks(ctx); err != nil {
		s.sinks.Close()
		return nil, err
	}

	s.clock = timectrl.NewRoundClock(cfg.Simulation.RoundInterval, cfg.ClockMode())
	s.clock.AddListener(s.step)
	return s, nil
}

func (s *session) openSinks(ctx context.Context) error {
	rep := s.cfg.Report
	if rep.Dir != "" {
		series, err := report.NewSeriesWriter(rep.Dir)
		if err != nil {
			return err
		}
		s.sinks = append(s.sinks, series)
	}
	if rep.EnergyTable != "" {
		if err := ensureParent(rep.EnergyTable); err != nil {
			return err
		}
		table, err := report.NewEnergyTable(rep.EnergyTable)
		if err != nil {
			return err
		}
		s.sinks = append(s.sinks, table)
	}
	if rep.SQLitePath != "" {
		if err := ensureParent(rep.SQLitePath); err != nil {
			return err
		}
		store, err := report.NewSQLiteStore(ctx, rep.SQLitePath, report.RunInfo{
			ID:        s.runID,
			StartedAt: time.Now(),
			NodeCount: s.cfg.Simulation.NodeCount,
			CoverageK: s.cfg.Simulation.CoverageK,
			Seed:      s.cfg.Simulation.Seed,
		})
		if err != nil {
			return err
		}
		s.sinks = append(s.sinks, store)
	}
	return nil
}

// step is the round listener: advance, persist, publish.
func (s *session) step(ctx context.Context, _ int) error {
	stats, err := s.ctrl.AdvanceRound(ctx)
	if err != nil {
		return err
	}
	sim := s.ctrl.State()
	nodes := sim.Snapshot()
	if err := s.sinks.WriteRound(ctx, stats, nodes); err != nil {
		return fmt.Errorf("write round %d: %w", stats.Round, err)
	}

	exhausted := s.ctrl.Exhausted()
	s.telemetry.Publish(stats, nodes, sim.Edges(), exhausted)
	for _, fn := range s.observers {
		fn(stats, exhausted)
	}
	if exhausted {
		s.log.Info(ctx, "every sensor is dead", logging.Int("round", stats.Round))
		return timectrl.ErrStop
	}
	return nil
}

// simulate drives the clock to completion and closes the sinks.
func (s *session) simulate(ctx context.Context) error {
	s.log.Info(ctx, "simulation starting",
		logging.Int("nodes", s.cfg.Simulation.NodeCount),
		logging.Int("coverage_k", s.cfg.Simulation.CoverageK),
		logging.Int("max_rounds", s.cfg.Simulation.Rounds),
		logging.String("clock", s.clock.Mode.String()),
	)
	runErr := <-s.clock.Start(ctx, s.cfg.Simulation.Rounds)
	if err := s.sinks.Close(); err != nil {
		s.log.Warn(ctx, "closing report sinks", logging.Err(err))
	}
	if runErr != nil {
		return runErr
	}
	stats := s.ctrl.Stats()
	s.log.Info(ctx, "simulation finished",
		logging.Int("rounds", s.ctrl.Round()),
		logging.Int("alive", stats.Alive),
		logging.Float("controller_energy", stats.ControllerEnergy),
	)
	return nil
}

// writeTopology renders the last feasible topology to path.
func (s *session) writeTopology(path string) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	sim := s.ctrl.State()
	name := fmt.Sprintf("round_%d", s.ctrl.Round())
	if err := visualization.RenderDOT(f, name, sim.Snapshot(), sim.Edges()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// withTracing initialises tracing for the duration of fn.
func withTracing(ctx context.Context, cfg config.File, log logging.Logger, fn func() error) error {
	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("initialise tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)
	return fn()
}
