// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/model"
)

// Re-export core sentinel errors so callers can depend on state.*
// instead of core.* directly if they want to.
var (
	// ErrDuplicateNode indicates two nodes share a position identity.
	ErrDuplicateNode = core.ErrDuplicateNode
	// ErrUnknownNode indicates a requested node is not part of the population.
	ErrUnknownNode = core.ErrUnknownNode
	// ErrNoController indicates the population has no controller node.
	ErrNoController = errors.New("population has no controller")
	// ErrNotController indicates a sensor was passed where the controller was expected.
	ErrNotController = errors.New("node is not a controller")
)

// SimulationState owns the node population and the derived topologies for
// one simulation run. It is driven from a single goroutine; share data
// with other goroutines through Snapshot.
type SimulationState struct {
	// nodes holds the sensors ordered farthest-first from the controller,
	// followed by the controller itself.
	nodes      []*core.SensorNode
	byID       map[core.NodeID]*core.SensorNode
	controller *core.SensorNode

	// full is built once; feasible and routes are rebuilt every round.
	full     *core.Topology
	feasible *core.Topology
	routes   map[core.NodeID]core.Route

	round int

	// log is an optional structured logger for state-level events.
	log logging.Logger

	// metrics is an optional recorder for Prometheus-friendly gauges.
	metrics PopulationMetricsRecorder
}

// PopulationMetricsRecorder receives count updates for the node population.
type PopulationMetricsRecorder interface {
	SetNodeCounts(alive, asleep, dead, isolated int)
}

// NodeCounts summarises the sensor population. The controller is excluded.
type NodeCounts struct {
	Alive     int
	Awake     int
	Asleep    int
	Dead      int
	Isolated  int
	Reachable int
}

// RoutingSnapshot is the outcome of one routing rebuild.
type RoutingSnapshot struct {
	Feasible *core.Topology
	Routes   map[core.NodeID]core.Route
	Elapsed  time.Duration
}

// SimulationStateOption customises SimulationState construction.
type SimulationStateOption func(*SimulationState)

// WithMetricsRecorder attaches an optional metrics recorder for node counts.
func WithMetricsRecorder(m PopulationMetricsRecorder) SimulationStateOption {
	return func(s *SimulationState) {
		s.metrics = m
	}
}

// NewSimulationState orders the sensors farthest-first from the controller
// and builds the full topology over the whole population.
func NewSimulationState(controller *core.SensorNode, sensors []*core.SensorNode, log logging.Logger, opts ...SimulationStateOption) (*SimulationState, error) {
	if controller == nil {
		return nil, ErrNoController
	}
	if !controller.IsController() {
		return nil, fmt.Errorf("%w: %s", ErrNotController, controller.ID())
	}
	if log == nil {
		log = logging.Noop()
	}

	ordered := make([]*core.SensorNode, 0, len(sensors)+1)
	for _, n := range sensors {
		if n == nil {
			continue
		}
		if n.IsController() {
			return nil, fmt.Errorf("%w: second controller %s", ErrDuplicateNode, n.ID())
		}
		ordered = append(ordered, n)
	}
	origin := controller.Position()
	sort.SliceStable(ordered, func(i, j int) bool {
		return core.FartherFrom(origin, ordered[i].Position(), ordered[j].Position())
	})
	ordered = append(ordered, controller)

	full, err := core.BuildFullTopology(ordered)
	if err != nil {
		return nil, err
	}

	s := &SimulationState{
		nodes:      ordered,
		byID:       make(map[core.NodeID]*core.SensorNode, len(ordered)),
		controller: controller,
		full:       full,
		routes:     make(map[core.NodeID]core.Route),
		log:        log,
	}
	for _, n := range ordered {
		s.byID[n.ID()] = n
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.feasible = core.DeriveFeasibleTopology(full, s.Lookup())
	s.updateMetrics()
	return s, nil
}

// Nodes returns every node, sensors farthest-first then the controller.
// The slice is a copy; the nodes are shared.
func (s *SimulationState) Nodes() []*core.SensorNode {
	return append([]*core.SensorNode(nil), s.nodes...)
}

// Sensors returns the non-controller nodes, farthest-first.
func (s *SimulationState) Sensors() []*core.SensorNode {
	return append([]*core.SensorNode(nil), s.nodes[:len(s.nodes)-1]...)
}

// Node looks up a node by identity.
func (s *SimulationState) Node(id core.NodeID) (*core.SensorNode, bool) {
	n, ok := s.byID[id]
	return n, ok
}

// Lookup adapts Node to core.NodeLookup.
func (s *SimulationState) Lookup() core.NodeLookup {
	return func(id core.NodeID) *core.SensorNode {
		return s.byID[id]
	}
}

// Controller returns the controller node.
func (s *SimulationState) Controller() *core.SensorNode { return s.controller }

// FullTopology returns the immutable full topology.
func (s *SimulationState) FullTopology() *core.Topology { return s.full }

// FeasibleTopology returns the feasible topology from the last rebuild.
func (s *SimulationState) FeasibleTopology() *core.Topology { return s.feasible }

// Routes returns the controller-sourced routes from the last rebuild.
func (s *SimulationState) Routes() map[core.NodeID]core.Route { return s.routes }

// Round returns the number of completed rounds.
func (s *SimulationState) Round() int { return s.round }

// CompleteRound increments the round counter and returns the new value.
func (s *SimulationState) CompleteRound() int {
	s.round++
	return s.round
}

// View returns the snapshot the duty-cycle scheduler decides against.
func (s *SimulationState) View() core.DutyCycleView {
	return core.DutyCycleView{Full: s.full, Feasible: s.feasible, Lookup: s.Lookup(), Root: s.controller.ID()}
}

// FullRoutes computes controller-sourced shortest paths over the full
// topology. It is used for beacon targets.
func (s *SimulationState) FullRoutes() (map[core.NodeID]core.Route, error) {
	return s.full.ShortestPaths(s.controller.ID())
}

// RebuildRouting derives a fresh feasible topology from the full one and
// recomputes controller-sourced shortest paths over it.
func (s *SimulationState) RebuildRouting(ctx context.Context) (RoutingSnapshot, error) {
	start := time.Now()
	feasible := core.DeriveFeasibleTopology(s.full, s.Lookup())
	routes, err := feasible.ShortestPaths(s.controller.ID())
	if err != nil {
		return RoutingSnapshot{}, fmt.Errorf("shortest paths from controller: %w", err)
	}
	s.feasible = feasible
	s.routes = routes

	snap := RoutingSnapshot{Feasible: feasible, Routes: routes, Elapsed: time.Since(start)}
	s.log.Debug(ctx, "routing rebuilt",
		logging.Int("round", s.round),
		logging.Int("feasible_edges", feasible.EdgeCount()),
		logging.Int("reachable", len(routes)-1),
		logging.Duration("elapsed", snap.Elapsed),
	)
	return snap, nil
}

// Counts tallies the sensor population and pushes the result to the
// metrics recorder.
func (s *SimulationState) Counts() NodeCounts {
	c := s.counts()
	if s.metrics != nil {
		s.metrics.SetNodeCounts(c.Alive, c.Asleep, c.Dead, c.Isolated)
	}
	return c
}

func (s *SimulationState) counts() NodeCounts {
	var c NodeCounts
	for _, n := range s.nodes {
		if n.IsController() {
			continue
		}
		switch n.State() {
		case core.StateDead:
			c.Dead++
		case core.StateAsleep:
			c.Asleep++
			c.Alive++
		default:
			if n.State() == core.StateAwake {
				c.Awake++
			}
			c.Alive++
		}
		if n.IsIsolated() && !n.IsDead() {
			c.Isolated++
		}
		if _, ok := s.routes[n.ID()]; ok && !n.IsDead() {
			c.Reachable++
		}
	}
	return c
}

func (s *SimulationState) updateMetrics() {
	if s.metrics == nil {
		return
	}
	c := s.counts()
	s.metrics.SetNodeCounts(c.Alive, c.Asleep, c.Dead, c.Isolated)
}

// ResidualEnergy sums the remaining energy of living sensors.
func (s *SimulationState) ResidualEnergy() float64 {
	total := 0.0
	for _, n := range s.nodes {
		if n.IsController() || n.IsDead() {
			continue
		}
		total += n.Energy()
	}
	return total
}

// Positions returns every node's position keyed by identity.
func (s *SimulationState) Positions() map[core.NodeID]core.Position {
	out := make(map[core.NodeID]core.Position, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID()] = n.Position()
	}
	return out
}

// Energies returns every node's remaining energy keyed by identity.
func (s *SimulationState) Energies() map[core.NodeID]float64 {
	out := make(map[core.NodeID]float64, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID()] = n.Energy()
	}
	return out
}

// Snapshot copies every node into a read-only form, in population order.
func (s *SimulationState) Snapshot() []model.NodeSnapshot {
	out := make([]model.NodeSnapshot, 0, len(s.nodes))
	for _, n := range s.nodes {
		pos := n.Position()
		snap := model.NodeSnapshot{
			ID:         n.ID().String(),
			X:          pos.X,
			Y:          pos.Y,
			Energy:     n.Energy(),
			State:      n.State().String(),
			Controller: n.IsController(),
			Isolated:   n.IsIsolated(),
			LoadFactor: n.LoadFactor(core.PhaseMain),
		}
		if target, ok := n.ForwardingTarget(core.PhaseMain); ok {
			snap.Target = target.String()
		}
		out = append(out, snap)
	}
	return out
}

// Edges returns the feasible edges from the last rebuild.
func (s *SimulationState) Edges() []model.EdgeSnapshot {
	edges := s.feasible.Edges()
	out := make([]model.EdgeSnapshot, 0, len(edges))
	for _, e := range edges {
		out = append(out, model.EdgeSnapshot{A: e.A.String(), B: e.B.String(), Weight: e.Weight})
	}
	return out
}
