package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// SimulationRecorder fans simulation events out to the network and
// scheduler collectors. A nil recorder is valid and records nothing.
type SimulationRecorder struct {
	Network   *NetworkCollector
	Scheduler *SchedulerCollector
}

// NewSimulationRecorder registers both collectors against reg.
func NewSimulationRecorder(reg prometheus.Registerer) (*SimulationRecorder, error) {
	network, err := NewNetworkCollector(reg)
	if err != nil {
		return nil, err
	}
	scheduler, err := NewSchedulerCollector(reg)
	if err != nil {
		return nil, err
	}
	return &SimulationRecorder{Network: network, Scheduler: scheduler}, nil
}

func (r *SimulationRecorder) ObserveRound(stats model.RoundStats) {
	if r == nil {
		return
	}
	r.Network.ObserveRound(stats)
}

func (r *SimulationRecorder) ObservePathComputation(d time.Duration) {
	if r == nil {
		return
	}
	r.Scheduler.ObservePathComputation(d)
}

func (r *SimulationRecorder) AddDecisions(reason string, n int) {
	if r == nil {
		return
	}
	r.Scheduler.AddDecisions(reason, n)
}

func (r *SimulationRecorder) AddStateChanges(slept, woken int) {
	if r == nil {
		return
	}
	r.Scheduler.AddStateChanges(slept, woken)
}

func (r *SimulationRecorder) AddTransmissions(phase, result string, n int) {
	if r == nil {
		return
	}
	r.Network.AddTransmissions(phase, result, n)
}

// SetNodeCounts lets the simulation state drive the node gauges directly.
func (r *SimulationRecorder) SetNodeCounts(alive, asleep, dead, isolated int) {
	if r == nil {
		return
	}
	r.Network.SetNodeCounts(alive, asleep, dead, isolated)
}

// Handler exposes /metrics for the shared registry.
func (r *SimulationRecorder) Handler() http.Handler {
	if r == nil {
		return (*NetworkCollector)(nil).Handler()
	}
	return r.Network.Handler()
}
