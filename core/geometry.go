package core

import (
	"fmt"
	"math"
)

// Position is a planar field coordinate. Sensor identities are derived
// from it, so a node's position never changes after construction.
type Position struct {
	X, Y float64
}

// DistanceTo returns the straight-line distance between two points.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Valid reports whether both coordinates are finite.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// ID derives the stable node identity for a position, e.g. "(10, 0)".
func (p Position) ID() NodeID {
	return NodeID(fmt.Sprintf("(%g, %g)", p.X, p.Y))
}

// NodeID identifies a sensor node. It is derived from the node's position
// and is therefore unique across a valid population.
type NodeID string

// String returns the raw identifier.
func (id NodeID) String() string { return string(id) }

// FartherFrom orders two positions by decreasing distance from origin,
// breaking ties on identity so the ordering is total and deterministic.
// It reports whether a sorts before b.
func FartherFrom(origin, a, b Position) bool {
	da := a.DistanceTo(origin)
	db := b.DistanceTo(origin)
	if da != db {
		return da > db
	}
	return a.ID() < b.ID()
}
