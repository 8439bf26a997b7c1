package state

import (
	"testing"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
)

type countsSnapshot struct {
	alive    int
	asleep   int
	dead     int
	isolated int
}

type stubMetricsRecorder struct {
	records []countsSnapshot
}

func (r *stubMetricsRecorder) SetNodeCounts(alive, asleep, dead, isolated int) {
	r.records = append(r.records, countsSnapshot{
		alive:    alive,
		asleep:   asleep,
		dead:     dead,
		isolated: isolated,
	})
}

func (r *stubMetricsRecorder) last() countsSnapshot {
	if len(r.records) == 0 {
		return countsSnapshot{}
	}
	return r.records[len(r.records)-1]
}

func TestSimulationStateMetricsRecorder(t *testing.T) {
	recorder := &stubMetricsRecorder{}
	ctrl := newNode(t, 0, 0, 1e6, core.AsController())
	a := newNode(t, 5, 0, 100)
	b := newNode(t, 0, 5, 100)

	s, err := NewSimulationState(ctrl, []*core.SensorNode{a, b}, logging.Noop(), WithMetricsRecorder(recorder))
	if err != nil {
		t.Fatalf("NewSimulationState: %v", err)
	}
	assertCounts(t, recorder.last(), countsSnapshot{alive: 2})

	a.Sleep()
	b.WakeUp()
	s.Counts()
	assertCounts(t, recorder.last(), countsSnapshot{alive: 2, asleep: 1})

	b.SetEnergy(0)
	b.RecomputeProperties()
	s.Counts()
	assertCounts(t, recorder.last(), countsSnapshot{alive: 1, asleep: 1, dead: 1, isolated: 1})
}

func assertCounts(t *testing.T, got, want countsSnapshot) {
	t.Helper()
	if got != want {
		t.Fatalf("metrics counts = %+v, want %+v", got, want)
	}
}
