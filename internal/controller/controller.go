// Package controller sequences the rounds of a sensor network simulation:
// neighbour discovery, routing, duty cycling, data collection and energy
// bookkeeping, in that order.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/harvest"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
	"github.com/signalsfoundry/wsn-simulator/internal/sim/state"
	"github.com/signalsfoundry/wsn-simulator/model"
)

var (
	// ErrPlacementExhausted is returned when no duplicate-free population
	// was drawn within MaxPlacementAttempts.
	ErrPlacementExhausted = errors.New("could not place sensors at unique positions")
	// ErrBeaconDone is returned when the beacon phase is requested twice.
	ErrBeaconDone = errors.New("beacon phase already ran")
)

// MetricsRecorder receives per-round simulation metrics.
// *observability.SimulationRecorder satisfies it.
type MetricsRecorder interface {
	state.PopulationMetricsRecorder
	ObserveRound(stats model.RoundStats)
	ObservePathComputation(d time.Duration)
	AddDecisions(reason string, n int)
	AddStateChanges(slept, woken int)
	AddTransmissions(phase, result string, n int)
}

var _ MetricsRecorder = (*observability.SimulationRecorder)(nil)

type options struct {
	positions []core.Position
	source    harvest.Source
	log       logging.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer
}

// Option customises Controller construction.
type Option func(*options)

// WithPositions places sensors at explicit positions instead of drawing
// NodeCount random ones. Duplicates are an error since they cannot be
// redrawn.
func WithPositions(positions ...core.Position) Option {
	return func(o *options) {
		o.positions = append([]core.Position(nil), positions...)
	}
}

// WithEnergySource sets the controller's harvesting source. The default
// is harvest.None.
func WithEnergySource(src harvest.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithLogger sets the structured logger.
func WithLogger(log logging.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithRecorder attaches a metrics recorder. It also receives the
// population gauges from the simulation state.
func WithRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer overrides the tracer used for round spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// Controller owns one simulation run. It is not safe for concurrent use;
// publish results to other goroutines through state.TelemetryState.
type Controller struct {
	cfg       Config
	state     *state.SimulationState
	scheduler *core.DutyCycleScheduler
	source    harvest.Source
	log       logging.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer

	beaconDone bool
	history    []model.RoundStats
}

// New validates cfg, places the population and builds the full topology.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		source: harvest.None,
		log:    logging.Noop(),
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.source == nil {
		o.source = harvest.None
	}
	if o.log == nil {
		o.log = logging.Noop()
	}

	scheduler, err := core.NewDutyCycleScheduler(cfg.CoverageK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	positions := o.positions
	attempts := 0
	if positions == nil {
		rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1))
		positions, attempts, err = placeSensors(cfg, rng)
		if err != nil {
			return nil, err
		}
	}

	controllerNode, err := core.NewSensorNode(cfg.ControllerPosition, cfg.ControllerEnergy,
		core.AsController(),
		core.WithEnergyModel(cfg.Energy),
		core.WithReplenish(cfg.ControllerReplenish),
	)
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	sensors := make([]*core.SensorNode, 0, len(positions))
	for _, p := range positions {
		n, err := core.NewSensorNode(p, cfg.InitialEnergy, core.WithEnergyModel(cfg.Energy))
		if err != nil {
			return nil, fmt.Errorf("create sensor: %w", err)
		}
		sensors = append(sensors, n)
	}

	var stateOpts []state.SimulationStateOption
	if o.metrics != nil {
		stateOpts = append(stateOpts, state.WithMetricsRecorder(o.metrics))
	}
	st, err := state.NewSimulationState(controllerNode, sensors, o.log, stateOpts...)
	if err != nil {
		return nil, err
	}

	o.log.Info(context.Background(), "population placed",
		logging.Int("sensors", len(sensors)),
		logging.Int("coverage_k", cfg.CoverageK),
		logging.Int("placement_attempts", attempts),
		logging.String("controller", controllerNode.ID().String()),
	)

	return &Controller{
		cfg:       cfg,
		state:     st,
		scheduler: scheduler,
		source:    o.source,
		log:       o.log,
		metrics:   o.metrics,
		tracer:    o.tracer,
	}, nil
}

// placeSensors draws integer positions in [1, FieldSize) and redraws the
// whole population while any identity collides, including with the
// controller.
func placeSensors(cfg Config, rng *rand.Rand) ([]core.Position, int, error) {
	span := cfg.FieldSize - 1
	for attempt := 1; attempt <= cfg.MaxPlacementAttempts; attempt++ {
		positions := make([]core.Position, cfg.NodeCount)
		seen := map[core.NodeID]bool{cfg.ControllerPosition.ID(): true}
		unique := true
		for i := range positions {
			p := core.Position{
				X: float64(rng.IntN(span) + 1),
				Y: float64(rng.IntN(span) + 1),
			}
			positions[i] = p
			if seen[p.ID()] {
				unique = false
			}
			seen[p.ID()] = true
		}
		if unique {
			return positions, attempt, nil
		}
	}
	return nil, cfg.MaxPlacementAttempts, fmt.Errorf("%w: %d sensors after %d attempts",
		ErrPlacementExhausted, cfg.NodeCount, cfg.MaxPlacementAttempts)
}

// RunBeaconPhase performs the one-time neighbour discovery pass. Each
// sensor forwards toward the controller along the full-graph shortest
// path, farthest sensors first, and every node then wakes up.
func (c *Controller) RunBeaconPhase(ctx context.Context) error {
	if c.beaconDone {
		return ErrBeaconDone
	}
	ctx, span := c.tracer.Start(ctx, "controller.BeaconPhase")
	defer span.End()

	routes, err := c.state.FullRoutes()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("beacon routes: %w", err)
	}
	c.assignTargets(routes, c.state.FullTopology(), core.PhaseBeacon)
	delivered, failed := c.transmitAll(core.PhaseBeacon)
	for _, n := range c.state.Nodes() {
		n.WakeUp()
	}
	c.beaconDone = true

	span.SetAttributes(
		attribute.Int("beacon.delivered", delivered),
		attribute.Int("beacon.failed", failed),
	)
	c.log.Info(ctx, "beacon phase complete",
		logging.Int("delivered", delivered),
		logging.Int("failed", failed),
	)
	return nil
}

// AdvanceRound runs one full round and returns its statistics. The beacon
// phase runs first if it has not run yet.
func (c *Controller) AdvanceRound(ctx context.Context) (model.RoundStats, error) {
	start := time.Now()
	index := c.state.Round()
	ctx, span := c.tracer.Start(ctx, "controller.AdvanceRound",
		trace.WithAttributes(attribute.Int("round", index)))
	defer span.End()

	fail := func(err error) (model.RoundStats, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.RoundStats{}, err
	}

	if !c.beaconDone {
		if err := c.RunBeaconPhase(ctx); err != nil {
			return fail(err)
		}
	}

	routing, err := c.rebuild(ctx)
	if err != nil {
		return fail(err)
	}
	c.assignTargets(routing.Routes, routing.Feasible, core.PhaseMain)

	applied := c.dutyCycle(ctx)

	delivered, failed := c.transmitAll(core.PhaseMain)

	ctrl := c.state.Controller()
	ctrl.ApplyEnergy(c.source.NextIncrement() - c.cfg.ControllerBaseLoad)

	for _, n := range c.state.Nodes() {
		n.RecomputeProperties()
	}

	stats := c.snapshot(index)
	stats.Delivered = delivered
	stats.Failed = failed
	stats.Slept = applied.Slept
	stats.Woken = applied.Woken
	stats.Elapsed = time.Since(start)

	c.state.CompleteRound()
	c.history = append(c.history, stats)
	if c.metrics != nil {
		c.metrics.ObserveRound(stats)
	}

	span.SetAttributes(
		attribute.Int("nodes.alive", stats.Alive),
		attribute.Int("nodes.sleeping", stats.Sleeping),
		attribute.Int("nodes.dead", stats.Dead),
	)
	c.log.Info(ctx, "round complete",
		logging.Int("round", index),
		logging.Int("alive", stats.Alive),
		logging.Int("isolated", stats.Isolated),
		logging.Int("dead", stats.Dead),
		logging.Int("sleeping", stats.Sleeping),
		logging.Float("controller_energy", stats.ControllerEnergy),
		logging.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

func (c *Controller) rebuild(ctx context.Context) (state.RoutingSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "topology.Rebuild")
	defer span.End()

	snap, err := c.state.RebuildRouting(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state.RoutingSnapshot{}, err
	}
	if c.metrics != nil {
		c.metrics.ObservePathComputation(snap.Elapsed)
	}
	span.SetAttributes(
		attribute.Int("topology.feasible_edges", snap.Feasible.EdgeCount()),
		attribute.Int("topology.routes", len(snap.Routes)),
	)
	return snap, nil
}

func (c *Controller) dutyCycle(ctx context.Context) core.ApplyResult {
	_, span := c.tracer.Start(ctx, "dutycycle.Plan")
	defer span.End()

	view := c.state.View()
	plan := c.scheduler.Plan(c.state.Sensors(), view)
	applied := c.scheduler.Apply(plan, view.Lookup)

	reasons := make(map[core.DecisionReason]int)
	for _, d := range plan {
		reasons[d.Reason]++
	}
	if c.metrics != nil {
		for reason, n := range reasons {
			c.metrics.AddDecisions(string(reason), n)
		}
		c.metrics.AddStateChanges(applied.Slept, applied.Woken)
	}
	span.SetAttributes(
		attribute.Int("dutycycle.slept", applied.Slept),
		attribute.Int("dutycycle.woken", applied.Woken),
	)
	return applied
}

// assignTargets points every sensor at the node before it on its route
// from the controller. Sensors without a route lose their target.
func (c *Controller) assignTargets(routes map[core.NodeID]core.Route, topo *core.Topology, phase core.Phase) {
	for _, n := range c.state.Sensors() {
		route, ok := routes[n.ID()]
		if !ok {
			n.AssignTarget(nil, 0, phase)
			continue
		}
		hop, ok := route.NextHopToSource()
		if !ok {
			n.AssignTarget(nil, 0, phase)
			continue
		}
		target, _ := c.state.Node(hop)
		distance, _ := topo.Weight(n.ID(), hop)
		n.AssignTarget(target, distance, phase)
	}
}

// transmitAll sends the phase's data from every sensor, farthest first.
func (c *Controller) transmitAll(phase core.Phase) (delivered, failed int) {
	for _, n := range c.state.Sensors() {
		switch n.Transmit(phase) {
		case core.TransmitDelivered:
			delivered++
		case core.TransmitFailed:
			failed++
		}
	}
	if c.metrics != nil {
		c.metrics.AddTransmissions(phase.String(), core.TransmitDelivered.String(), delivered)
		c.metrics.AddTransmissions(phase.String(), core.TransmitFailed.String(), failed)
	}
	return delivered, failed
}

func (c *Controller) snapshot(round int) model.RoundStats {
	counts := c.state.Counts()
	feasible := c.state.FeasibleTopology()
	return model.RoundStats{
		Round:            round,
		Alive:            counts.Alive,
		Isolated:         counts.Isolated,
		Dead:             counts.Dead,
		Sleeping:         counts.Asleep,
		ControllerEnergy: c.state.Controller().Energy(),
		ResidualEnergy:   c.state.ResidualEnergy(),
		FeasibleEdges:    feasible.EdgeCount(),
		Reachable:        counts.Reachable,
		Components:       len(feasible.Components()),
	}
}

// Stats returns the current population statistics. Round is the number of
// completed rounds.
func (c *Controller) Stats() model.RoundStats {
	return c.snapshot(c.state.Round())
}

// Round returns the number of completed rounds.
func (c *Controller) Round() int { return c.state.Round() }

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// FeasibleTopology returns the feasible topology of the last round.
func (c *Controller) FeasibleTopology() *core.Topology { return c.state.FeasibleTopology() }

// Positions returns every node's position keyed by identity.
func (c *Controller) Positions() map[core.NodeID]core.Position { return c.state.Positions() }

// Energies returns every node's remaining energy keyed by identity.
func (c *Controller) Energies() map[core.NodeID]float64 { return c.state.Energies() }

// History returns a copy of the statistics of every completed round.
func (c *Controller) History() []model.RoundStats {
	return append([]model.RoundStats(nil), c.history...)
}

// Exhausted reports whether every sensor is dead.
func (c *Controller) Exhausted() bool {
	return c.state.Counts().Alive == 0
}

// State exposes the simulation context for read-only consumers such as
// report sinks and the status API.
func (c *Controller) State() *state.SimulationState { return c.state }
