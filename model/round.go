package model

import "time"

// RoundStats summarises the network after one simulation round.
// Counts cover sensors only; the controller is reported separately.
type RoundStats struct {
	Round    int `json:"round"`
	Alive    int `json:"alive"`
	Isolated int `json:"isolated"`
	Dead     int `json:"dead"`
	Sleeping int `json:"sleeping"`

	ControllerEnergy float64 `json:"controller_energy"`
	ResidualEnergy   float64 `json:"residual_energy"`

	FeasibleEdges int `json:"feasible_edges"`
	// Reachable counts sensors with a feasible route to the controller.
	Reachable  int `json:"reachable"`
	Components int `json:"components"`

	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Slept     int `json:"slept"`
	Woken     int `json:"woken"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Sensors returns the number of non-controller nodes covered by the stats.
func (s RoundStats) Sensors() int {
	return s.Alive + s.Dead
}

// NodeSnapshot is a read-only copy of one node at the end of a round.
// Sinks and HTTP handlers consume it instead of live nodes.
type NodeSnapshot struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Energy     float64 `json:"energy"`
	State      string  `json:"state"`
	Controller bool    `json:"controller,omitempty"`
	Isolated   bool    `json:"isolated"`
	LoadFactor int     `json:"load_factor"`

	// Target is the main-phase next hop; empty when the node has none.
	Target string `json:"target,omitempty"`
}

// EdgeSnapshot is one feasible link at the end of a round.
type EdgeSnapshot struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}
