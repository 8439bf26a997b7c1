package core

import (
	"errors"
	"math"
	"testing"
)

func newTestNode(t *testing.T, x, y, energy float64, opts ...NodeOption) *SensorNode {
	t.Helper()
	n, err := NewSensorNode(Position{X: x, Y: y}, energy, opts...)
	if err != nil {
		t.Fatalf("NewSensorNode(%v, %v): %v", x, y, err)
	}
	return n
}

func TestNewSensorNodeRejectsInvalidInput(t *testing.T) {
	if _, err := NewSensorNode(Position{X: math.NaN(), Y: 0}, 10); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if _, err := NewSensorNode(Position{X: 0, Y: 0}, -1); !errors.Is(err, ErrInvalidEnergy) {
		t.Fatalf("expected ErrInvalidEnergy, got %v", err)
	}
}

func TestNewSensorNodeDefaults(t *testing.T) {
	n := newTestNode(t, 10, 0, 100)

	if n.State() != StateInit {
		t.Fatalf("initial state = %v, want init", n.State())
	}
	if n.LoadFactor(PhaseBeacon) != 1 || n.LoadFactor(PhaseMain) != 1 {
		t.Fatalf("initial load factors = %d/%d, want 1/1", n.LoadFactor(PhaseBeacon), n.LoadFactor(PhaseMain))
	}
	if _, ok := n.ForwardingTarget(PhaseMain); ok {
		t.Fatalf("new node should have no target")
	}
	if n.ID() != "(10, 0)" {
		t.Fatalf("ID = %s", n.ID())
	}
}

func TestStateMachineTransitions(t *testing.T) {
	n := newTestNode(t, 1, 1, 100)

	if n.MarkDead() {
		t.Fatalf("INIT -> DEAD must be ignored")
	}
	if n.State() != StateInit {
		t.Fatalf("state = %v after ignored MarkDead", n.State())
	}
	if !n.Sleep() {
		t.Fatalf("INIT -> ASLEEP should change state")
	}
	if !n.WakeUp() {
		t.Fatalf("ASLEEP -> AWAKE should change state")
	}
	if n.WakeUp() {
		t.Fatalf("AWAKE -> AWAKE should not report a change")
	}
	if !n.MarkDead() {
		t.Fatalf("AWAKE -> DEAD should change state")
	}
	if n.WakeUp() || n.Sleep() {
		t.Fatalf("DEAD must be absorbing")
	}
	if n.State() != StateDead {
		t.Fatalf("state = %v, want dead", n.State())
	}
}

func TestCanTransitionTable(t *testing.T) {
	all := []NodeState{StateInit, StateAwake, StateAsleep, StateDead}
	allowed := map[[2]NodeState]bool{
		{StateInit, StateAwake}:    true,
		{StateInit, StateAsleep}:   true,
		{StateAwake, StateAwake}:   true,
		{StateAwake, StateAsleep}:  true,
		{StateAwake, StateDead}:    true,
		{StateAsleep, StateAwake}:  true,
		{StateAsleep, StateAsleep}: true,
		{StateAsleep, StateDead}:   true,
		{StateDead, StateDead}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]NodeState{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%v, %v) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransmitDeliversAndReports(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1000, AsController())
	n := newTestNode(t, 3, 4, 100)
	n.WakeUp()
	ctrl.WakeUp()

	n.AssignTarget(ctrl, 5, PhaseMain)
	if res := n.Transmit(PhaseMain); res != TransmitDelivered {
		t.Fatalf("Transmit = %v, want delivered", res)
	}
	// cost = 1*1 + 1*1*25
	if got := n.Energy(); got != 74 {
		t.Fatalf("sender energy = %v, want 74", got)
	}
	// controller pays 1 to receive, then is replenished
	if got := ctrl.Energy(); got != 1000-1+DefaultControllerReplenish {
		t.Fatalf("controller energy = %v", got)
	}

	ctrl.RecomputeProperties()
	reports := ctrl.NeighborReports(PhaseMain)
	if got, ok := reports[n.ID()]; !ok || got != 74 {
		t.Fatalf("controller reports = %v, want %s=74", reports, n.ID())
	}
}

func TestDeadNodeIsNotIsolated(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1000, AsController())
	n := newTestNode(t, 3, 4, 30)
	n.WakeUp()
	n.AssignTarget(ctrl, 5, PhaseMain)
	n.RecomputeProperties()
	if n.IsIsolated() {
		t.Fatalf("node with a target should not be isolated")
	}

	n.SetEnergy(0)
	n.RecomputeProperties()
	if !n.IsDead() {
		t.Fatalf("state = %v, want dead", n.State())
	}
	if n.IsIsolated() {
		t.Fatalf("a dead node must not be reported as isolated")
	}
	n.RecomputeProperties()
	if n.IsIsolated() {
		t.Fatalf("isolation must stay clear on later rounds")
	}
}

func TestTransmitFailureSetsIsolated(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1000, AsController())
	n := newTestNode(t, 3, 4, 10)
	n.WakeUp()
	n.AssignTarget(ctrl, 5, PhaseMain)

	if res := n.Transmit(PhaseMain); res != TransmitFailed {
		t.Fatalf("Transmit = %v, want failed", res)
	}
	if n.Energy() != 10 {
		t.Fatalf("failed transmission must not charge energy, got %v", n.Energy())
	}
	if !n.IsIsolated() {
		t.Fatalf("failed sender should be isolated")
	}
	if len(ctrl.NeighborReports(PhaseMain)) != 0 {
		t.Fatalf("nothing should have been delivered")
	}

	n.RecomputeProperties()
	if !n.IsIsolated() {
		t.Fatalf("isolation from a failed send must survive recompute")
	}
	n.RecomputeProperties()
	if n.IsIsolated() {
		t.Fatalf("isolation should clear once the node has a target and no failure")
	}
}

func TestTransmitSkipsWhenIneligible(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1000, AsController())
	asleep := newTestNode(t, 1, 0, 100)
	asleep.Sleep()
	asleep.AssignTarget(ctrl, 1, PhaseMain)
	asleep.AssignTarget(ctrl, 1, PhaseBeacon)

	if res := asleep.Transmit(PhaseMain); res != TransmitSkipped {
		t.Fatalf("asleep main transmit = %v, want skipped", res)
	}
	if res := asleep.Transmit(PhaseBeacon); res != TransmitDelivered {
		t.Fatalf("asleep beacon transmit = %v, want delivered", res)
	}

	ctrl.AssignTarget(asleep, 1, PhaseMain)
	if _, ok := ctrl.ForwardingTarget(PhaseMain); ok {
		t.Fatalf("controller must never get a forwarding target")
	}
	if res := ctrl.Transmit(PhaseMain); res != TransmitSkipped {
		t.Fatalf("controller transmit = %v, want skipped", res)
	}

	lonely := newTestNode(t, 2, 0, 100)
	lonely.WakeUp()
	if res := lonely.Transmit(PhaseMain); res != TransmitSkipped {
		t.Fatalf("untargeted transmit = %v, want skipped", res)
	}
}

func TestReceiveIgnoredWhenDead(t *testing.T) {
	n := newTestNode(t, 1, 0, 1)
	n.WakeUp()
	n.SetEnergy(0)
	n.RecomputeProperties()
	if !n.IsDead() {
		t.Fatalf("node with zero energy should be dead after recompute")
	}

	n.Receive(Payload{Sender: "(2, 0)", EnergyRank: 5}, PhaseMain)
	if n.Energy() != 0 {
		t.Fatalf("dead node must not pay receive cost, energy = %v", n.Energy())
	}
	n.RecomputeProperties()
	if len(n.NeighborReports(PhaseMain)) != 0 {
		t.Fatalf("dead node must not record reports")
	}
}

func TestRecomputeLoadFactorCountsDistinctSenders(t *testing.T) {
	relay := newTestNode(t, 5, 0, 1000)
	relay.WakeUp()

	relay.Receive(Payload{Sender: "(6, 0)", EnergyRank: 1}, PhaseMain)
	relay.Receive(Payload{Sender: "(7, 0)", EnergyRank: 2}, PhaseMain)
	relay.Receive(Payload{Sender: "(6, 0)", EnergyRank: 3}, PhaseMain)
	relay.RecomputeProperties()

	if got := relay.LoadFactor(PhaseMain); got != 2 {
		t.Fatalf("load factor = %d, want 2", got)
	}
	if got := relay.NeighborReports(PhaseMain)["(6, 0)"]; got != 3 {
		t.Fatalf("latest report for (6, 0) = %v, want 3", got)
	}

	relay.RecomputeProperties()
	if got := relay.LoadFactor(PhaseMain); got != 0 {
		t.Fatalf("load factor after a silent round = %d, want 0", got)
	}
	if got := relay.TransmissionCost(PhaseMain, 10); got != 0 {
		t.Fatalf("zero-load transmission cost = %v, want 0", got)
	}
}

func TestControllerRecomputeStaysAwake(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 0, AsController())
	ctrl.RecomputeProperties()

	if ctrl.State() != StateAwake {
		t.Fatalf("controller state = %v, want awake", ctrl.State())
	}
	if ctrl.IsIsolated() {
		t.Fatalf("controller is never isolated")
	}
}

func TestCanAfford(t *testing.T) {
	n := newTestNode(t, 0, 0, 26)
	if !n.CanAfford(5) {
		t.Fatalf("26 J should afford cost 26")
	}
	if n.CanAfford(5.01) {
		t.Fatalf("26 J should not afford distance 5.01")
	}
}

func TestEnergyModelCosts(t *testing.T) {
	m := EnergyModel{ElectronicsCost: 2, AmplifierCost: 0.5}
	if got := m.TransmitCost(3, 4); got != 2*3+0.5*3*16 {
		t.Fatalf("TransmitCost = %v", got)
	}
	if got := m.ReceiveCost(3); got != 6 {
		t.Fatalf("ReceiveCost = %v", got)
	}
}
