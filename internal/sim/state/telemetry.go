package state

import (
	"sync"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// DefaultHistoryLimit bounds the number of rounds TelemetryState retains.
const DefaultHistoryLimit = 10000

// TelemetryState is a concurrency-safe store of published round results.
// The simulation goroutine publishes; HTTP handlers read copies.
type TelemetryState struct {
	mu        sync.RWMutex
	limit     int
	history   []model.RoundStats
	nodes     []model.NodeSnapshot
	byID      map[string]int
	edges     []model.EdgeSnapshot
	exhausted bool
}

// NewTelemetryState creates a store that keeps at most limit rounds of
// history. A non-positive limit selects DefaultHistoryLimit.
func NewTelemetryState(limit int) *TelemetryState {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &TelemetryState{
		limit: limit,
		byID:  make(map[string]int),
	}
}

// Publish stores the results of one round. Slices are copied so callers
// may reuse them.
func (t *TelemetryState) Publish(stats model.RoundStats, nodes []model.NodeSnapshot, edges []model.EdgeSnapshot, exhausted bool) {
	nodesCopy := append([]model.NodeSnapshot(nil), nodes...)
	edgesCopy := append([]model.EdgeSnapshot(nil), edges...)
	byID := make(map[string]int, len(nodesCopy))
	for i, n := range nodesCopy {
		byID[n.ID] = i
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, stats)
	if over := len(t.history) - t.limit; over > 0 {
		t.history = append([]model.RoundStats(nil), t.history[over:]...)
	}
	t.nodes = nodesCopy
	t.byID = byID
	t.edges = edgesCopy
	t.exhausted = exhausted
}

// Latest returns the most recent round, if any.
func (t *TelemetryState) Latest() (model.RoundStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.history) == 0 {
		return model.RoundStats{}, false
	}
	return t.history[len(t.history)-1], true
}

// History returns a copy of the retained rounds, oldest first.
func (t *TelemetryState) History() []model.RoundStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.RoundStats(nil), t.history...)
}

// Nodes returns a copy of the latest node snapshots.
func (t *TelemetryState) Nodes() []model.NodeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.NodeSnapshot(nil), t.nodes...)
}

// Node returns the latest snapshot of one node.
func (t *TelemetryState) Node(id string) (model.NodeSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.byID[id]
	if !ok {
		return model.NodeSnapshot{}, false
	}
	return t.nodes[i], true
}

// Edges returns a copy of the latest feasible edges.
func (t *TelemetryState) Edges() []model.EdgeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.EdgeSnapshot(nil), t.edges...)
}

// Exhausted reports whether the last published round had no living sensor.
func (t *TelemetryState) Exhausted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exhausted
}
