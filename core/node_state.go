package core

// NodeState is the lifecycle state of a sensor node.
type NodeState int

const (
	StateInit   NodeState = iota // Constructed, not yet scheduled
	StateAwake                   // Radio on; routes and relays data
	StateAsleep                  // Powered down by the duty-cycle scheduler
	StateDead                    // Energy exhausted; absorbing
)

// String returns a lowercase label suitable for logs and metric labels.
func (s NodeState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwake:
		return "awake"
	case StateAsleep:
		return "asleep"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// validTransitions lists, for every state, the states it may move to.
// Requests outside this table are ignored rather than rejected.
var validTransitions = map[NodeState]map[NodeState]bool{
	StateInit: {
		StateAwake:  true,
		StateAsleep: true,
	},
	StateAwake: {
		StateAwake:  true,
		StateAsleep: true,
		StateDead:   true,
	},
	StateAsleep: {
		StateAwake:  true,
		StateAsleep: true,
		StateDead:   true,
	},
	StateDead: {
		StateDead: true,
	},
}

// CanTransition reports whether from -> to is an edge of the node state machine.
func CanTransition(from, to NodeState) bool {
	return validTransitions[from][to]
}

// Phase selects which of a node's two transmission channels is in use.
type Phase int

const (
	// PhaseBeacon is the one-time neighbour discovery exchange.
	PhaseBeacon Phase = iota
	// PhaseMain carries per-round sensed data toward the controller.
	PhaseMain
)

// String returns a lowercase label for the phase.
func (p Phase) String() string {
	if p == PhaseBeacon {
		return "beacon"
	}
	return "main"
}
