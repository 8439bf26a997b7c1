package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes routing and duty-cycle metrics.
type SchedulerCollector struct {
	PathComputationDuration prometheus.Histogram
	SleepDecisions          *prometheus.CounterVec
	StateChanges            *prometheus.CounterVec
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pathHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wsn_path_computation_duration_seconds",
		Help:    "Duration of feasible-topology rebuilds including shortest-path computation.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	pathHistogram, err := registerHistogram(reg, pathHistogram, "wsn_path_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsn_sleep_decisions_total",
		Help: "Duty-cycle decisions, labeled by reason.",
	}, []string{"reason"})
	decisions, err = registerCounterVec(reg, decisions, "wsn_sleep_decisions_total")
	if err != nil {
		return nil, err
	}

	changes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsn_state_changes_total",
		Help: "Node state transitions applied by the duty-cycle scheduler, labeled by target state.",
	}, []string{"to"})
	changes, err = registerCounterVec(reg, changes, "wsn_state_changes_total")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		PathComputationDuration: pathHistogram,
		SleepDecisions:          decisions,
		StateChanges:            changes,
	}, nil
}

// ObservePathComputation records a path computation duration measurement.
func (c *SchedulerCollector) ObservePathComputation(d time.Duration) {
	if c == nil || c.PathComputationDuration == nil {
		return
	}
	c.PathComputationDuration.Observe(d.Seconds())
}

// AddDecisions adds n decisions with the given reason.
func (c *SchedulerCollector) AddDecisions(reason string, n int) {
	if c == nil || c.SleepDecisions == nil || n <= 0 {
		return
	}
	c.SleepDecisions.WithLabelValues(reason).Add(float64(n))
}

// AddStateChanges records slept and woken transitions.
func (c *SchedulerCollector) AddStateChanges(slept, woken int) {
	if c == nil || c.StateChanges == nil {
		return
	}
	if slept > 0 {
		c.StateChanges.WithLabelValues("asleep").Add(float64(slept))
	}
	if woken > 0 {
		c.StateChanges.WithLabelValues("awake").Add(float64(woken))
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
