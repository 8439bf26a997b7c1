package state

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
)

func TestNewSimulationStateOrdersFarthestFirst(t *testing.T) {
	s := newLineState(t, 100, 10, 30, 20)

	nodes := s.Nodes()
	want := []core.NodeID{"(30, 0)", "(20, 0)", "(10, 0)", "(0, 0)"}
	if len(nodes) != len(want) {
		t.Fatalf("len(Nodes) = %d, want %d", len(nodes), len(want))
	}
	for i, n := range nodes {
		if n.ID() != want[i] {
			t.Fatalf("Nodes()[%d] = %s, want %s", i, n.ID(), want[i])
		}
	}
	if got := len(s.Sensors()); got != 3 {
		t.Fatalf("len(Sensors) = %d, want 3", got)
	}
	if !s.Controller().IsController() {
		t.Fatalf("Controller() is not the controller")
	}
	if got := s.FullTopology().EdgeCount(); got != 6 {
		t.Fatalf("full topology edges = %d, want 6", got)
	}
}

func TestNewSimulationStateRejectsBadPopulation(t *testing.T) {
	sensor := newNode(t, 1, 1, 10)
	if _, err := NewSimulationState(nil, nil, nil); !errors.Is(err, ErrNoController) {
		t.Fatalf("expected ErrNoController, got %v", err)
	}
	if _, err := NewSimulationState(sensor, nil, nil); !errors.Is(err, ErrNotController) {
		t.Fatalf("expected ErrNotController, got %v", err)
	}

	ctrl := newNode(t, 0, 0, 10, core.AsController())
	dup := newNode(t, 1, 1, 20)
	if _, err := NewSimulationState(ctrl, []*core.SensorNode{sensor, dup}, logging.Noop()); !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestRebuildRoutingTracksNodeStates(t *testing.T) {
	s := newLineState(t, 1000, 10, 20)
	ctx := context.Background()

	snap, err := s.RebuildRouting(ctx)
	if err != nil {
		t.Fatalf("RebuildRouting: %v", err)
	}
	if snap.Feasible.EdgeCount() != 0 {
		t.Fatalf("INIT nodes must not form feasible edges, got %d", snap.Feasible.EdgeCount())
	}
	if len(snap.Routes) != 1 {
		t.Fatalf("only the controller should be routed, got %d", len(snap.Routes))
	}

	wakeAll(s)
	snap, err = s.RebuildRouting(ctx)
	if err != nil {
		t.Fatalf("RebuildRouting: %v", err)
	}
	if snap.Feasible.EdgeCount() != 3 {
		t.Fatalf("feasible edges = %d, want 3", snap.Feasible.EdgeCount())
	}
	if s.FeasibleTopology() != snap.Feasible {
		t.Fatalf("state should keep the rebuilt feasible topology")
	}
	if r := s.Routes()["(20, 0)"]; r.Hops() != 2 {
		t.Fatalf("route to (20, 0) = %v, want two hops", r.Path)
	}
	if got := len(s.Edges()); got != 3 {
		t.Fatalf("Edges() = %d, want 3", got)
	}
}

func TestCountsExcludeController(t *testing.T) {
	s := newLineState(t, 1000, 10, 20, 30)
	n10, _ := s.Node("(10, 0)")
	n20, _ := s.Node("(20, 0)")
	n30, _ := s.Node("(30, 0)")
	s.Controller().RecomputeProperties()
	n10.WakeUp()
	n20.Sleep()
	n30.WakeUp()
	n30.SetEnergy(0)
	n30.RecomputeProperties()

	if _, err := s.RebuildRouting(context.Background()); err != nil {
		t.Fatalf("RebuildRouting: %v", err)
	}
	c := s.Counts()
	if c.Alive != 2 || c.Awake != 1 || c.Asleep != 1 || c.Dead != 1 {
		t.Fatalf("counts = %+v", c)
	}
	if c.Reachable != 1 {
		t.Fatalf("reachable = %d, want 1", c.Reachable)
	}
	if c.Isolated != 0 {
		t.Fatalf("isolated = %d, want 0 (dead sensors count as dead only)", c.Isolated)
	}
	if got := s.ResidualEnergy(); got != 2000 {
		t.Fatalf("residual energy = %v, want 2000", got)
	}
}

func TestCountsSkipIsolationOfDeadSensors(t *testing.T) {
	s := newLineState(t, 10, 10, 20)
	n10, _ := s.Node("(10, 0)")
	n20, _ := s.Node("(20, 0)")
	wakeAll(s)
	n10.AssignTarget(s.Controller(), 10, core.PhaseMain)
	n20.AssignTarget(n10, 10, core.PhaseMain)

	// Both sends fail; n20 then dies before its properties are recomputed.
	n10.Transmit(core.PhaseMain)
	n20.Transmit(core.PhaseMain)
	n20.MarkDead()
	if !n20.IsIsolated() {
		t.Fatalf("failed sender should carry the isolated flag")
	}

	c := s.Counts()
	if c.Dead != 1 || c.Isolated != 1 {
		t.Fatalf("counts = %+v, want 1 dead and only the live sender isolated", c)
	}
}

func TestSnapshotCopiesNodes(t *testing.T) {
	s := newLineState(t, 50, 10)
	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(Snapshot) = %d, want 2", len(snap))
	}
	if snap[0].ID != "(10, 0)" || snap[0].Energy != 50 || snap[0].State != "init" {
		t.Fatalf("sensor snapshot = %+v", snap[0])
	}
	if !snap[1].Controller {
		t.Fatalf("last snapshot should be the controller")
	}

	if got := s.Positions()["(10, 0)"]; got.X != 10 {
		t.Fatalf("Positions() = %+v", got)
	}
	if got := s.Energies()["(10, 0)"]; got != 50 {
		t.Fatalf("Energies() = %v", got)
	}
}

func TestCompleteRound(t *testing.T) {
	s := newLineState(t, 50, 10)
	if s.Round() != 0 {
		t.Fatalf("initial round = %d", s.Round())
	}
	if got := s.CompleteRound(); got != 1 || s.Round() != 1 {
		t.Fatalf("CompleteRound = %d, Round = %d", got, s.Round())
	}
}
