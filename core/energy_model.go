package core

// EnergyModel is the first-order radio model: a fixed electronics cost per
// unit of load plus a free-space amplifier term that grows with d².
type EnergyModel struct {
	// ElectronicsCost is charged per unit of load on both transmit and receive.
	ElectronicsCost float64 `json:"electronics_cost" yaml:"electronics_cost" mapstructure:"electronics_cost"`
	// AmplifierCost scales the d² path-loss term on transmit.
	AmplifierCost float64 `json:"amplifier_cost" yaml:"amplifier_cost" mapstructure:"amplifier_cost"`
}

// DefaultEnergyModel returns unit electronics and amplifier costs.
func DefaultEnergyModel() EnergyModel {
	return EnergyModel{ElectronicsCost: 1, AmplifierCost: 1}
}

// TransmitCost returns the energy needed to send load units over distance.
func (m EnergyModel) TransmitCost(load int, distance float64) float64 {
	l := float64(load)
	return m.ElectronicsCost*l + m.AmplifierCost*l*distance*distance
}

// ReceiveCost returns the energy needed to receive load units.
func (m EnergyModel) ReceiveCost(load int) float64 {
	return m.ElectronicsCost * float64(load)
}
