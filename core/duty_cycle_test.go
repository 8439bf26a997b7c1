package core

import (
	"errors"
	"testing"
)

func viewOf(t *testing.T, nodes ...*SensorNode) DutyCycleView {
	t.Helper()
	full, err := BuildFullTopology(nodes)
	if err != nil {
		t.Fatalf("BuildFullTopology: %v", err)
	}
	lookup := lookupOf(nodes...)
	return DutyCycleView{Full: full, Feasible: DeriveFeasibleTopology(full, lookup), Lookup: lookup}
}

func newScheduler(t *testing.T, k int) *DutyCycleScheduler {
	t.Helper()
	s, err := NewDutyCycleScheduler(k)
	if err != nil {
		t.Fatalf("NewDutyCycleScheduler(%d): %v", k, err)
	}
	return s
}

func TestNewDutyCycleSchedulerRejectsZeroK(t *testing.T) {
	if _, err := NewDutyCycleScheduler(0); !errors.Is(err, ErrInvalidCoverage) {
		t.Fatalf("expected ErrInvalidCoverage, got %v", err)
	}
}

func TestDecideExemptsControllerAndDead(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1000, AsController())
	dead := newTestNode(t, 1, 0, 0)
	dead.WakeUp()
	dead.RecomputeProperties()
	other := newTestNode(t, 2, 0, 1000)
	awakeAll(ctrl, other)

	s := newScheduler(t, 1)
	view := viewOf(t, ctrl, dead, other)
	for _, n := range []*SensorNode{ctrl, dead} {
		d := s.Decide(n, view)
		if d.Sleep || d.Reason != ReasonExempt {
			t.Fatalf("%s: decision = %+v, want exempt", n.ID(), d)
		}
	}
}

func TestDecideRedundantNodeSleeps(t *testing.T) {
	u := newTestNode(t, 0, 0, 100)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	awakeAll(u, v1, v2)

	d := newScheduler(t, 1).Decide(u, viewOf(t, u, v1, v2))
	if !d.Sleep || d.Reason != ReasonRedundant {
		t.Fatalf("decision = %+v, want redundant sleep", d)
	}
}

func TestDecideHighestEnergyStaysAwake(t *testing.T) {
	u := newTestNode(t, 0, 0, 5000)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	awakeAll(u, v1, v2)

	d := newScheduler(t, 1).Decide(u, viewOf(t, u, v1, v2))
	if d.Sleep || d.Reason != ReasonNoRedundancy {
		t.Fatalf("decision = %+v, want no_redundancy", d)
	}
}

func TestDecideEqualEnergyIsNotEligible(t *testing.T) {
	u := newTestNode(t, 0, 0, 1000)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	awakeAll(u, v1, v2)

	d := newScheduler(t, 1).Decide(u, viewOf(t, u, v1, v2))
	if d.Sleep {
		t.Fatalf("equal-energy neighbours must not let u sleep: %+v", d)
	}
}

func TestDecideLowCoverage(t *testing.T) {
	u := newTestNode(t, 0, 0, 100)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	awakeAll(u, v1)
	v2.Sleep()

	d := newScheduler(t, 2).Decide(u, viewOf(t, u, v1, v2))
	if d.Sleep || d.Reason != ReasonLowCoverage {
		t.Fatalf("decision = %+v, want low_coverage", d)
	}
}

func TestDecideFragileNeighbor(t *testing.T) {
	u := newTestNode(t, 0, 0, 100)
	a := newTestNode(t, 1, 0, 1000)
	b := newTestNode(t, 0, 1, 1000)
	c := newTestNode(t, 1, 1, 1000)
	awakeAll(a, b)
	u.Sleep()
	c.Sleep()

	// u sees two awake neighbours, but a only sees b.
	d := newScheduler(t, 2).Decide(u, viewOf(t, u, a, b, c))
	if d.Sleep || d.Reason != ReasonFragileNeighbor {
		t.Fatalf("decision = %+v, want fragile_neighbor", d)
	}
}

func TestDecideNoCoverage(t *testing.T) {
	u := newTestNode(t, 0, 0, 10)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	x := newTestNode(t, 2, 2, 5)
	awakeAll(u, v1, v2, x)

	d := newScheduler(t, 2).Decide(u, viewOf(t, u, v1, v2, x))
	if d.Sleep || d.Reason != ReasonNoCoverage {
		t.Fatalf("decision = %+v, want no_coverage", d)
	}
}

func TestDecideIgnoresControllerAsEligible(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1e9, AsController())
	mid := newTestNode(t, 10, 0, 100)
	far := newTestNode(t, 20, 0, 1000)
	awakeAll(ctrl, mid, far)

	d := newScheduler(t, 1).Decide(mid, viewOf(t, ctrl, mid, far))
	if d.Sleep {
		t.Fatalf("a relay with a single non-controller eligible neighbour must stay awake: %+v", d)
	}
}

func TestPlanDoesNotMutateAndApplyDoes(t *testing.T) {
	u := newTestNode(t, 0, 0, 100)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	awakeAll(u, v1, v2)

	s := newScheduler(t, 1)
	view := viewOf(t, u, v1, v2)
	plan := s.Plan([]*SensorNode{u, v1, v2}, view)
	if len(plan) != 3 {
		t.Fatalf("plan has %d decisions, want 3", len(plan))
	}
	if !u.IsAwake() {
		t.Fatalf("Plan must not change node state")
	}

	res := s.Apply(plan, view.Lookup)
	if res.Slept != 1 || res.Woken != 0 {
		t.Fatalf("Apply = %+v, want 1 slept", res)
	}
	if !u.IsAsleep() || !v1.IsAwake() || !v2.IsAwake() {
		t.Fatalf("states after apply: u=%v v1=%v v2=%v", u.State(), v1.State(), v2.State())
	}
}

func TestSleepingRedundantNodeStaysAsleep(t *testing.T) {
	u := newTestNode(t, 0, 0, 100)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	v3 := newTestNode(t, 1, 1, 1000)
	awakeAll(v1, v2, v3)
	u.Sleep()

	s := newScheduler(t, 1)
	view := viewOf(t, u, v1, v2, v3)
	if view.Feasible.Degree(u.ID()) != 0 {
		t.Fatalf("a sleeping node has no feasible links")
	}
	d := s.Decide(u, view)
	if !d.Sleep || d.Reason != ReasonRedundant {
		t.Fatalf("decision = %+v, want redundant sleep", d)
	}
	if res := s.Apply([]Decision{d}, view.Lookup); res.Woken != 0 || !u.IsAsleep() {
		t.Fatalf("Apply = %+v, state = %v; want still asleep", res, u.State())
	}
}

func TestSleepingNodeWithoutAffordableLinksWakes(t *testing.T) {
	u := newTestNode(t, 0, 0, 1)
	v1 := newTestNode(t, 1, 0, 1000)
	v2 := newTestNode(t, 0, 1, 1000)
	v3 := newTestNode(t, 1, 1, 1000)
	awakeAll(v1, v2, v3)
	u.Sleep()

	s := newScheduler(t, 1)
	view := viewOf(t, u, v1, v2, v3)
	d := s.Decide(u, view)
	if d.Sleep || d.Reason != ReasonNoCoverage {
		t.Fatalf("decision = %+v, want no_coverage", d)
	}
	if res := s.Apply([]Decision{d}, view.Lookup); res.Woken != 1 || !u.IsAwake() {
		t.Fatalf("Apply = %+v, state = %v; want woken", res, u.State())
	}
}

func TestPlanSeesEarlierDecisions(t *testing.T) {
	a := newTestNode(t, 0, 0, 100)
	b := newTestNode(t, 1, 0, 200)
	v1 := newTestNode(t, 0, 1, 1000)
	v2 := newTestNode(t, 1, 1, 1000)
	nodes := []*SensorNode{a, b, v1, v2}
	awakeAll(nodes...)

	s := newScheduler(t, 2)
	view := viewOf(t, nodes...)

	// Judged alone against the all-awake snapshot, both a and b look redundant.
	for _, n := range []*SensorNode{a, b} {
		if d := s.Decide(n, view); !d.Sleep {
			t.Fatalf("%s: decision = %+v, want sleep on the initial snapshot", n.ID(), d)
		}
	}

	plan := s.Plan(nodes, view)
	if !plan[0].Sleep {
		t.Fatalf("a decision = %+v, want sleep", plan[0])
	}
	if plan[1].Sleep || plan[1].Reason != ReasonFragileNeighbor {
		t.Fatalf("b decision = %+v, want fragile_neighbor once a sleeps", plan[1])
	}
	if !a.IsAwake() {
		t.Fatalf("Plan must not change node state")
	}

	if res := s.Apply(plan, view.Lookup); res.Slept != 1 {
		t.Fatalf("Apply = %+v, want exactly 1 slept", res)
	}
	check := viewOf(t, nodes...)
	for _, n := range nodes {
		if got := check.awakeCount(n.ID()); got < s.K() {
			t.Fatalf("%s keeps %d awake neighbours, want at least %d", n.ID(), got, s.K())
		}
	}
}

func TestDecideKeepsRelayCarryingAwakeSensors(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1e9, AsController())
	relay := newTestNode(t, 10, 0, 150)
	f := newTestNode(t, 20, 0, 300)
	g := newTestNode(t, 20, 1, 300)
	awakeAll(ctrl, relay, f, g)

	s := newScheduler(t, 1)
	view := viewOf(t, ctrl, relay, f, g)
	if view.Feasible.HasEdge(ctrl.ID(), f.ID()) || view.Feasible.HasEdge(ctrl.ID(), g.ID()) {
		t.Fatalf("far sensors must depend on the relay")
	}

	if d := s.Decide(relay, view); !d.Sleep {
		t.Fatalf("without a root the relay looks redundant: %+v", d)
	}
	view.Root = ctrl.ID()
	d := s.Decide(relay, view)
	if d.Sleep || d.Reason != ReasonCutsRoute {
		t.Fatalf("decision = %+v, want cuts_route", d)
	}

	s.Apply(s.Plan([]*SensorNode{f, g, relay}, view), view.Lookup)
	reach := awakeReach(viewOf(t, ctrl, relay, f, g), ctrl.ID(), "")
	for _, n := range []*SensorNode{relay, f, g} {
		if n.IsAwake() && !reach[n.ID()] {
			t.Fatalf("%s is awake but cut off from the controller", n.ID())
		}
	}
}

func TestDecideKeepsForwardingTarget(t *testing.T) {
	ctrl := newTestNode(t, 0, 0, 1e9, AsController())
	u := newTestNode(t, 10, 0, 100)
	v1 := newTestNode(t, 11, 0, 1000)
	v2 := newTestNode(t, 10, 1, 1000)
	x := newTestNode(t, 20, 0, 1000)
	awakeAll(ctrl, u, v1, v2, x)

	s := newScheduler(t, 1)
	view := viewOf(t, ctrl, u, v1, v2, x)
	view.Root = ctrl.ID()
	if d := s.Decide(u, view); !d.Sleep {
		t.Fatalf("decision = %+v, want sleep while nobody forwards through u", d)
	}

	x.AssignTarget(u, 10, PhaseMain)
	d := s.Decide(u, view)
	if d.Sleep || d.Reason != ReasonCutsRoute {
		t.Fatalf("decision = %+v, want cuts_route while x forwards through u", d)
	}
}

func topologyOf(ids []NodeID, edges ...[2]int) *Topology {
	t := newTopology(ids)
	for _, e := range edges {
		t.setEdge(int64(e[0]), int64(e[1]), 1)
	}
	return t
}

func TestRedundantThroughCommonNeighbors(t *testing.T) {
	newView := func(nodes []*SensorNode, feasible ...[2]int) DutyCycleView {
		ids := make([]NodeID, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID()
		}
		return DutyCycleView{
			Full:     topologyOf(ids, [2]int{0, 1}, [2]int{0, 2}),
			Feasible: topologyOf(ids, feasible...),
			Lookup:   lookupOf(nodes...),
		}
	}
	s := newScheduler(t, 1)

	tests := []struct {
		name     string
		c1Energy float64
		feasible [][2]int
		want     bool
	}{
		{"two common one stronger", 100, [][2]int{{1, 3}, {2, 3}, {1, 4}, {2, 4}}, true},
		{"two common none stronger", 5, [][2]int{{1, 3}, {2, 3}, {1, 4}, {2, 4}}, false},
		{"single common", 100, [][2]int{{1, 3}, {2, 3}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := newTestNode(t, 0, 0, 10)
			v1 := newTestNode(t, 5, 0, 100)
			v2 := newTestNode(t, -5, 0, 100)
			c1 := newTestNode(t, 0, 5, tc.c1Energy)
			c2 := newTestNode(t, 0, -5, 5)
			nodes := []*SensorNode{u, v1, v2, c1, c2}
			awakeAll(nodes...)

			view := newView(nodes, tc.feasible...)
			if view.Feasible.HasEdge(v1.ID(), v2.ID()) {
				t.Fatalf("v1 and v2 must not be linked directly")
			}
			if got := s.redundant(u, []NodeID{v1.ID(), v2.ID()}, view); got != tc.want {
				t.Fatalf("redundant = %v, want %v", got, tc.want)
			}
		})
	}
}
