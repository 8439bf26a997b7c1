package state

import (
	"testing"

	"github.com/signalsfoundry/wsn-simulator/core"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
)

func newNode(t *testing.T, x, y, energy float64, opts ...core.NodeOption) *core.SensorNode {
	t.Helper()
	n, err := core.NewSensorNode(core.Position{X: x, Y: y}, energy, opts...)
	if err != nil {
		t.Fatalf("NewSensorNode(%v, %v) error = %v", x, y, err)
	}
	return n
}

// newLineState builds a controller at the origin and sensors on the x axis.
func newLineState(t *testing.T, energy float64, xs ...float64) *SimulationState {
	t.Helper()
	ctrl := newNode(t, 0, 0, 1e6, core.AsController())
	sensors := make([]*core.SensorNode, 0, len(xs))
	for _, x := range xs {
		sensors = append(sensors, newNode(t, x, 0, energy))
	}
	s, err := NewSimulationState(ctrl, sensors, logging.Noop())
	if err != nil {
		t.Fatalf("NewSimulationState() error = %v", err)
	}
	return s
}

func wakeAll(s *SimulationState) {
	for _, n := range s.Nodes() {
		n.WakeUp()
	}
}
