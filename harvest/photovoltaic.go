// Package harvest provides ambient energy sources for the controller.
package harvest

import "math"

const (
	// DefaultMaxRadiance is the peak hourly radiance in W/m², for an
	// east-facing panel at 83 degrees in a tropical location.
	DefaultMaxRadiance = 501.9
	// DefaultPanelYield is the panel efficiency.
	DefaultPanelYield = 0.15
	// DefaultPerformanceRatio accounts for system losses.
	DefaultPerformanceRatio = 0.75

	hoursPerDay    = 24
	secondsPerHour = 3600
)

// Source yields an energy increment each time it is polled, once per round.
type Source interface {
	NextIncrement() float64
}

// Photovoltaic models a solar panel over a 24-hour sinusoidal day. Each
// call to NextIncrement advances one hour.
type Photovoltaic struct {
	Area             float64
	MaxRadiance      float64
	PanelYield       float64
	PerformanceRatio float64

	hour int
}

// NewPhotovoltaic returns a panel of the given area with default
// radiance, yield and performance ratio, starting at hour 0.
func NewPhotovoltaic(area float64) *Photovoltaic {
	return &Photovoltaic{
		Area:             area,
		MaxRadiance:      DefaultMaxRadiance,
		PanelYield:       DefaultPanelYield,
		PerformanceRatio: DefaultPerformanceRatio,
	}
}

// Hour returns the hour of day produced by the last NextIncrement call.
func (p *Photovoltaic) Hour() int { return p.hour }

// Radiance returns the radiance for the current hour.
func (p *Photovoltaic) Radiance() float64 {
	return p.MaxRadiance * math.Abs(math.Sin(float64(p.hour)*math.Pi/hoursPerDay))
}

// NextIncrement advances the clock by one hour, wrapping at 24, then
// returns the energy in joules harvested over that hour.
func (p *Photovoltaic) NextIncrement() float64 {
	p.hour = (p.hour + 1) % hoursPerDay
	return p.Area * p.PanelYield * p.PerformanceRatio * p.Radiance() * secondsPerHour
}

// Constant is a source that always yields the same amount.
type Constant float64

// NextIncrement implements Source.
func (c Constant) NextIncrement() float64 { return float64(c) }

// None is a source that never yields energy.
var None Source = Constant(0)
