package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPosition indicates a node position with a non-finite coordinate.
	ErrInvalidPosition = errors.New("invalid node position")
	// ErrInvalidEnergy indicates a negative or non-finite initial energy budget.
	ErrInvalidEnergy = errors.New("invalid initial energy")
)

// DefaultControllerReplenish is the energy credited to the controller after
// every receive. It models the controller's constant external supply.
const DefaultControllerReplenish = 200001.0

// Payload is what a sender delivers to its target: who it is and how much
// energy it has left after paying for the transmission.
type Payload struct {
	Sender     NodeID
	EnergyRank float64
}

// TransmitResult describes the outcome of a Transmit call. None of the
// outcomes is an error; a failed transmission is the network's only form
// of backpressure.
type TransmitResult int

const (
	// TransmitSkipped means the node was not eligible to send (dead,
	// controller, no target, or asleep for main data).
	TransmitSkipped TransmitResult = iota
	// TransmitDelivered means the cost was paid and the target received.
	TransmitDelivered
	// TransmitFailed means the node could not afford the cost.
	TransmitFailed
)

// String returns a lowercase label for metrics.
func (r TransmitResult) String() string {
	switch r {
	case TransmitDelivered:
		return "delivered"
	case TransmitFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// phaseLink holds the per-phase forwarding state of a node.
type phaseLink struct {
	target   *SensorNode
	distance float64
	load     int
	// reports maps sender -> reported energy for the current round.
	reports map[NodeID]float64
}

// SensorNode is a battery-powered field node (or the controller). All
// mutation of a node goes through its own methods; peers only reach it via
// Receive.
type SensorNode struct {
	id         NodeID
	position   Position
	controller bool
	model      EnergyModel
	replenish  float64

	energy   float64
	state    NodeState
	isolated bool
	// sendFailed records a failed main transmission in the current round.
	sendFailed bool

	beacon phaseLink
	main   phaseLink
	// lastMainReports is the main-phase report map of the last completed round.
	lastMainReports map[NodeID]float64
}

// NodeOption customises SensorNode construction.
type NodeOption func(*SensorNode)

// AsController marks the node as the network's single controller.
func AsController() NodeOption {
	return func(n *SensorNode) {
		n.controller = true
	}
}

// WithEnergyModel overrides the default unit radio costs.
func WithEnergyModel(m EnergyModel) NodeOption {
	return func(n *SensorNode) {
		n.model = m
	}
}

// WithReplenish sets the amount credited to a controller after each receive.
func WithReplenish(amount float64) NodeOption {
	return func(n *SensorNode) {
		n.replenish = amount
	}
}

// NewSensorNode constructs a node in StateInit at the given position.
func NewSensorNode(pos Position, energy float64, opts ...NodeOption) (*SensorNode, error) {
	if !pos.Valid() {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, pos.X, pos.Y)
	}
	if energy < 0 || energy != energy {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnergy, energy)
	}
	n := &SensorNode{
		id:              pos.ID(),
		position:        pos,
		model:           DefaultEnergyModel(),
		replenish:       DefaultControllerReplenish,
		energy:          energy,
		state:           StateInit,
		beacon:          phaseLink{load: 1, reports: make(map[NodeID]float64)},
		main:            phaseLink{load: 1, reports: make(map[NodeID]float64)},
		lastMainReports: make(map[NodeID]float64),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// ID returns the node's position-derived identity.
func (n *SensorNode) ID() NodeID { return n.id }

// Position returns the node's immutable position.
func (n *SensorNode) Position() Position { return n.position }

// Energy returns the remaining energy budget (energy rank).
func (n *SensorNode) Energy() float64 { return n.energy }

// State returns the current lifecycle state.
func (n *SensorNode) State() NodeState { return n.state }

// IsController reports whether this node is the controller.
func (n *SensorNode) IsController() bool { return n.controller }

// IsIsolated reports whether the node currently has no usable forwarding
// target or failed to afford its last transmission.
func (n *SensorNode) IsIsolated() bool { return n.isolated }

// IsAwake reports whether the node is in StateAwake.
func (n *SensorNode) IsAwake() bool { return n.state == StateAwake }

// IsAsleep reports whether the node is in StateAsleep.
func (n *SensorNode) IsAsleep() bool { return n.state == StateAsleep }

// IsDead reports whether the node is in StateDead.
func (n *SensorNode) IsDead() bool { return n.state == StateDead }

// EnergyModel returns the radio cost model used by this node.
func (n *SensorNode) EnergyModel() EnergyModel { return n.model }

// DistanceTo returns the Euclidean distance to another node.
func (n *SensorNode) DistanceTo(other *SensorNode) float64 {
	return n.position.DistanceTo(other.position)
}

func (n *SensorNode) link(phase Phase) *phaseLink {
	if phase == PhaseBeacon {
		return &n.beacon
	}
	return &n.main
}

// LoadFactor returns the load used to price transmissions in the phase.
func (n *SensorNode) LoadFactor(phase Phase) int { return n.link(phase).load }

// ForwardingTarget returns the phase's next hop, if any.
func (n *SensorNode) ForwardingTarget(phase Phase) (NodeID, bool) {
	l := n.link(phase)
	if l.target == nil {
		return "", false
	}
	return l.target.id, true
}

// ForwardingDistance returns the distance to the phase's next hop.
func (n *SensorNode) ForwardingDistance(phase Phase) float64 { return n.link(phase).distance }

// TransmissionCost prices one transmission at the phase's current load.
func (n *SensorNode) TransmissionCost(phase Phase, distance float64) float64 {
	return n.model.TransmitCost(n.link(phase).load, distance)
}

// CanAfford reports whether one main-phase transmission over distance fits
// in the remaining budget.
func (n *SensorNode) CanAfford(distance float64) bool {
	return n.TransmissionCost(PhaseMain, distance) <= n.energy
}

// NeighborReports returns a copy of the sender -> energy reports for the
// phase. For the main phase this is the last completed round.
func (n *SensorNode) NeighborReports(phase Phase) map[NodeID]float64 {
	src := n.beacon.reports
	if phase == PhaseMain {
		src = n.lastMainReports
	}
	out := make(map[NodeID]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (n *SensorNode) transition(to NodeState) bool {
	if !CanTransition(n.state, to) || n.state == to {
		return false
	}
	n.state = to
	return true
}

// WakeUp attempts a transition to StateAwake and reports whether the state changed.
func (n *SensorNode) WakeUp() bool { return n.transition(StateAwake) }

// Sleep attempts a transition to StateAsleep and reports whether the state changed.
func (n *SensorNode) Sleep() bool { return n.transition(StateAsleep) }

// MarkDead attempts a transition to StateDead and reports whether the state changed.
func (n *SensorNode) MarkDead() bool { return n.transition(StateDead) }

// ApplyEnergy adds delta (which may be negative) to the energy budget.
func (n *SensorNode) ApplyEnergy(delta float64) {
	n.energy += delta
}

// SetEnergy overwrites the energy budget. It exists for scenario setup.
func (n *SensorNode) SetEnergy(energy float64) {
	n.energy = energy
}

// AssignTarget sets the phase's next hop. A nil target clears it. Dead
// nodes and the controller never forward, so the call is ignored for them.
func (n *SensorNode) AssignTarget(target *SensorNode, distance float64, phase Phase) {
	if n.state == StateDead || n.controller {
		return
	}
	l := n.link(phase)
	if target == nil {
		l.target = nil
		l.distance = 0
		return
	}
	l.target = target
	l.distance = distance
}

// Transmit sends this node's data for the phase to its target. Main data
// is only sent while awake; beacon data is sent regardless of state.
func (n *SensorNode) Transmit(phase Phase) TransmitResult {
	if n.state == StateDead || n.controller {
		return TransmitSkipped
	}
	l := n.link(phase)
	if l.target == nil {
		return TransmitSkipped
	}
	if phase == PhaseMain && n.state != StateAwake {
		return TransmitSkipped
	}

	cost := n.model.TransmitCost(l.load, l.distance)
	if cost > n.energy {
		n.isolated = true
		if phase == PhaseMain {
			n.sendFailed = true
		}
		return TransmitFailed
	}
	n.energy -= cost
	l.target.Receive(Payload{Sender: n.id, EnergyRank: n.energy}, phase)
	return TransmitDelivered
}

// Receive accepts a payload for the phase, paying the receive cost at the
// node's current load and recording the sender's reported energy.
func (n *SensorNode) Receive(p Payload, phase Phase) {
	if n.state == StateDead {
		return
	}
	l := n.link(phase)
	n.energy -= n.model.ReceiveCost(l.load)
	l.reports[p.Sender] = p.EnergyRank
	if n.controller {
		n.energy += n.replenish
	}
}

// RecomputeProperties refreshes per-round derived properties. It is called
// once per round after all transmissions.
func (n *SensorNode) RecomputeProperties() {
	if n.controller {
		n.isolated = false
		n.state = StateAwake
		n.rollMainReports()
		return
	}

	n.isolated = n.main.target == nil || n.sendFailed
	n.sendFailed = false
	n.main.load = len(n.main.reports)
	n.rollMainReports()

	if n.energy <= 0 {
		n.MarkDead()
	}
	if n.state == StateDead {
		n.isolated = false
	}
}

func (n *SensorNode) rollMainReports() {
	n.lastMainReports = n.main.reports
	n.main.reports = make(map[NodeID]float64)
}

// String implements fmt.Stringer.
func (n *SensorNode) String() string {
	return fmt.Sprintf("%s[%s %.1fJ]", n.id, n.state, n.energy)
}
