package core

import (
	"errors"
	"fmt"
)

// ErrInvalidCoverage is returned when the coverage degree k is below 1.
var ErrInvalidCoverage = errors.New("coverage degree must be at least 1")

// DecisionReason explains the outcome of a duty-cycle decision. Values are
// stable and used as metric labels.
type DecisionReason string

const (
	ReasonLowCoverage     DecisionReason = "low_coverage"
	ReasonFragileNeighbor DecisionReason = "fragile_neighbor"
	ReasonNoRedundancy    DecisionReason = "no_redundancy"
	ReasonNoCoverage      DecisionReason = "no_coverage"
	ReasonCutsRoute       DecisionReason = "cuts_route"
	ReasonRedundant       DecisionReason = "redundant"
	ReasonExempt          DecisionReason = "exempt"
)

// Decision is the scheduler's verdict for one node.
type Decision struct {
	Node   NodeID
	Sleep  bool
	Reason DecisionReason
}

// DutyCycleView is the snapshot a decision is taken against.
type DutyCycleView struct {
	Full     *Topology
	Feasible *Topology
	Lookup   NodeLookup

	// Root is the controller. When set, a node whose sleep would cut an
	// awake sensor off from Root stays awake.
	Root NodeID

	// pending holds the outcome of decisions already taken in this pass:
	// true for nodes that will be awake, false for nodes that will sleep.
	pending map[NodeID]bool
}

// awake reports whether id is awake once the pending decisions apply.
func (v DutyCycleView) awake(id NodeID) bool {
	if awake, ok := v.pending[id]; ok {
		return awake
	}
	n := v.Lookup(id)
	return n != nil && n.IsAwake()
}

// linked reports whether a and b share a feasible edge and both stay awake.
func (v DutyCycleView) linked(a, b NodeID) bool {
	return v.Feasible.HasEdge(a, b) && v.awake(a) && v.awake(b)
}

// awakeNeighbors returns the feasible neighbours of id that stay awake.
func (v DutyCycleView) awakeNeighbors(id NodeID) []NodeID {
	if !v.awake(id) {
		return nil
	}
	var out []NodeID
	for _, nb := range v.Feasible.Neighbors(id) {
		if v.awake(nb) {
			out = append(out, nb)
		}
	}
	return out
}

func (v DutyCycleView) awakeCount(id NodeID) int {
	count := 0
	for _, nb := range v.Full.Neighbors(id) {
		if v.awake(nb) {
			count++
		}
	}
	return count
}

// reachableNeighbors returns the awake nodes u could exchange data with if
// it were awake: full-graph neighbours whose edge passes the admission test
// at both ends. For an awake node this is its awake feasible neighbourhood;
// for a sleeping one it is the neighbourhood it would rejoin on waking.
func (v DutyCycleView) reachableNeighbors(u *SensorNode) []NodeID {
	var out []NodeID
	for _, id := range v.Full.Neighbors(u.ID()) {
		if !v.awake(id) {
			continue
		}
		w := v.Lookup(id)
		d, _ := v.Full.Weight(u.ID(), id)
		if w != nil && u.CanAfford(d) && w.CanAfford(d) {
			out = append(out, id)
		}
	}
	return out
}

// DutyCycleScheduler implements energy-consumed-uniformity connected
// k-neighbourhood (ECCKN) sleep scheduling.
type DutyCycleScheduler struct {
	k int
}

// NewDutyCycleScheduler returns a scheduler that keeps at least k awake
// neighbours around every node.
func NewDutyCycleScheduler(k int) (*DutyCycleScheduler, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCoverage, k)
	}
	return &DutyCycleScheduler{k: k}, nil
}

// K returns the coverage degree.
func (s *DutyCycleScheduler) K() int { return s.k }

// Decide evaluates node u. It never mutates state.
func (s *DutyCycleScheduler) Decide(u *SensorNode, view DutyCycleView) Decision {
	d := Decision{Node: u.ID()}
	if u.IsController() || u.IsDead() {
		d.Reason = ReasonExempt
		return d
	}

	neighbors := view.Full.Neighbors(u.ID())
	if view.awakeCount(u.ID()) < s.k {
		d.Reason = ReasonLowCoverage
		return d
	}
	// Every neighbour must keep k awake neighbours once u is gone.
	self := 0
	if view.awake(u.ID()) {
		self = 1
	}
	for _, v := range neighbors {
		if view.awakeCount(v)-self < s.k {
			d.Reason = ReasonFragileNeighbor
			return d
		}
	}

	eligible := make([]NodeID, 0, len(neighbors))
	inEligible := make(map[NodeID]bool, len(neighbors))
	for _, v := range neighbors {
		n := view.Lookup(v)
		if n == nil || n.IsController() || n.IsDead() {
			continue
		}
		if n.Energy() > u.Energy() {
			eligible = append(eligible, v)
			inEligible[v] = true
		}
	}

	if !s.redundant(u, eligible, view) {
		d.Reason = ReasonNoRedundancy
		return d
	}
	if !s.covered(view.reachableNeighbors(u), inEligible, view) {
		d.Reason = ReasonNoCoverage
		return d
	}
	if cutsRoute(u.ID(), view) {
		d.Reason = ReasonCutsRoute
		return d
	}
	d.Sleep = true
	d.Reason = ReasonRedundant
	return d
}

// redundant reports whether two higher-energy neighbours of u stay linked
// without u, directly or through more than one common awake neighbour.
func (s *DutyCycleScheduler) redundant(u *SensorNode, eligible []NodeID, view DutyCycleView) bool {
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			v1, v2 := eligible[i], eligible[j]
			if view.linked(v1, v2) {
				return true
			}
			common := commonNeighbors(view, v1, v2, u.ID())
			if len(common) <= 1 {
				continue
			}
			for _, c := range common {
				n := view.Lookup(c)
				if n != nil && !n.IsController() && n.Energy() > u.Energy() {
					return true
				}
			}
		}
	}
	return false
}

// covered reports whether some neighbour w of u sees at least k eligible
// nodes in the feasible graph.
func (s *DutyCycleScheduler) covered(neighbors []NodeID, inEligible map[NodeID]bool, view DutyCycleView) bool {
	for _, w := range neighbors {
		count := 0
		for _, x := range view.awakeNeighbors(w) {
			if inEligible[x] {
				count++
			}
		}
		if count >= s.k {
			return true
		}
	}
	return false
}

func commonNeighbors(view DutyCycleView, a, b, exclude NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	for _, x := range view.awakeNeighbors(a) {
		seen[x] = true
	}
	var out []NodeID
	for _, x := range view.awakeNeighbors(b) {
		if seen[x] && x != exclude {
			out = append(out, x)
		}
	}
	return out
}

// cutsRoute reports whether u must stay awake to carry other sensors: an
// awake sensor forwards through u this round, or some awake sensor that
// reaches view.Root over awake feasible links would lose every such path
// without u.
func cutsRoute(u NodeID, view DutyCycleView) bool {
	if view.Root == "" || u == view.Root || !view.awake(u) {
		return false
	}
	for _, id := range view.Full.NodeIDs() {
		if id == u || !view.awake(id) {
			continue
		}
		if n := view.Lookup(id); n != nil {
			if target, ok := n.ForwardingTarget(PhaseMain); ok && target == u {
				return true
			}
		}
	}

	with := awakeReach(view, view.Root, "")
	if !with[u] {
		return false
	}
	without := awakeReach(view, view.Root, u)
	for id := range with {
		if id != u && !without[id] {
			return true
		}
	}
	return false
}

// awakeReach walks awake feasible links breadth-first from root, never
// entering skip.
func awakeReach(view DutyCycleView, root, skip NodeID) map[NodeID]bool {
	seen := map[NodeID]bool{root: true}
	queue := []NodeID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, nb := range view.awakeNeighbors(id) {
			if nb == skip || seen[nb] {
				continue
			}
			seen[nb] = true
			queue = append(queue, nb)
		}
	}
	return seen
}

// Plan decides every node in order without touching node state. Each
// decision sees the outcome of the ones before it, so callers pass the
// population farthest-first.
func (s *DutyCycleScheduler) Plan(nodes []*SensorNode, view DutyCycleView) []Decision {
	view.pending = make(map[NodeID]bool, len(nodes))
	out := make([]Decision, 0, len(nodes))
	for _, n := range nodes {
		d := s.Decide(n, view)
		if d.Reason != ReasonExempt {
			view.pending[n.ID()] = !d.Sleep
		}
		out = append(out, d)
	}
	return out
}

// ApplyResult counts the transitions performed by Apply.
type ApplyResult struct {
	Slept int
	Woken int
}

// Apply performs the planned transitions. Exempt decisions are skipped.
func (s *DutyCycleScheduler) Apply(decisions []Decision, lookup NodeLookup) ApplyResult {
	var res ApplyResult
	for _, d := range decisions {
		if d.Reason == ReasonExempt {
			continue
		}
		n := lookup(d.Node)
		if n == nil {
			continue
		}
		if d.Sleep {
			if n.Sleep() {
				res.Slept++
			}
			continue
		}
		if n.WakeUp() {
			res.Woken++
		}
	}
	return res
}
