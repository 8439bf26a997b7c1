package core

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var (
	// ErrDuplicateNode is returned when two nodes share a position identity.
	ErrDuplicateNode = errors.New("duplicate node identity")
	// ErrUnknownNode is returned for queries against an absent node.
	ErrUnknownNode = errors.New("unknown node")
)

// Edge is an undirected weighted link. A is always the lower NodeID.
type Edge struct {
	A      NodeID
	B      NodeID
	Weight float64
}

// NodeLookup resolves a NodeID to its live node. It returns nil for
// unknown identities.
type NodeLookup func(NodeID) *SensorNode

// Topology is an undirected weighted graph over node identities. The full
// topology is built once from the population; feasible topologies are
// derived from it every round and never modified in place.
type Topology struct {
	g     *simple.WeightedUndirectedGraph
	ids   []NodeID
	index map[NodeID]int64
}

func newTopology(ids []NodeID) *Topology {
	t := &Topology{
		g:     simple.NewWeightedUndirectedGraph(0, 0),
		ids:   append([]NodeID(nil), ids...),
		index: make(map[NodeID]int64, len(ids)),
	}
	for i, id := range t.ids {
		t.index[id] = int64(i)
		t.g.AddNode(simple.Node(int64(i)))
	}
	return t
}

func (t *Topology) setEdge(a, b int64, w float64) {
	t.g.SetWeightedEdge(t.g.NewWeightedEdge(simple.Node(a), simple.Node(b), w))
}

// BuildFullTopology connects every unordered pair of nodes with an edge
// weighted by their Euclidean distance.
func BuildFullTopology(nodes []*SensorNode) (*Topology, error) {
	ids := make([]NodeID, 0, len(nodes))
	seen := make(map[NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
		}
		seen[n.ID()] = struct{}{}
		ids = append(ids, n.ID())
	}

	t := newTopology(ids)
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			t.setEdge(int64(i), int64(j), nodes[i].DistanceTo(nodes[j]))
		}
	}
	return t, nil
}

// DeriveFeasibleTopology keeps the edges of full whose endpoints are both
// awake and can each afford one main-phase transmission over the edge.
func DeriveFeasibleTopology(full *Topology, lookup NodeLookup) *Topology {
	t := newTopology(full.ids)
	edges := full.g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		a := lookup(full.ids[e.From().ID()])
		b := lookup(full.ids[e.To().ID()])
		if a == nil || b == nil {
			continue
		}
		w := e.Weight()
		if !a.IsAwake() || !b.IsAwake() {
			continue
		}
		if !a.CanAfford(w) || !b.CanAfford(w) {
			continue
		}
		t.setEdge(e.From().ID(), e.To().ID(), w)
	}
	return t
}

// Len returns the number of nodes.
func (t *Topology) Len() int { return len(t.ids) }

// NodeIDs returns the node identities in insertion order.
func (t *Topology) NodeIDs() []NodeID {
	return append([]NodeID(nil), t.ids...)
}

// Contains reports whether id is a node of the graph.
func (t *Topology) Contains(id NodeID) bool {
	_, ok := t.index[id]
	return ok
}

// Neighbors returns the sorted neighbours of id. Unknown nodes have none.
func (t *Topology) Neighbors(id NodeID) []NodeID {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []NodeID
	it := t.g.From(i)
	for it.Next() {
		out = append(out, t.ids[it.Node().ID()])
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Degree returns the number of neighbours of id.
func (t *Topology) Degree(id NodeID) int {
	i, ok := t.index[id]
	if !ok {
		return 0
	}
	return t.g.From(i).Len()
}

// HasEdge reports whether a and b are linked.
func (t *Topology) HasEdge(a, b NodeID) bool {
	i, ok := t.index[a]
	j, ok2 := t.index[b]
	if !ok || !ok2 || i == j {
		return false
	}
	return t.g.HasEdgeBetween(i, j)
}

// Weight returns the weight of the edge between a and b.
func (t *Topology) Weight(a, b NodeID) (float64, bool) {
	if !t.HasEdge(a, b) {
		return 0, false
	}
	return t.g.Weight(t.index[a], t.index[b])
}

// Edges returns every edge ordered by (A, B).
func (t *Topology) Edges() []Edge {
	var out []Edge
	it := t.g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		a, b := t.ids[e.From().ID()], t.ids[e.To().ID()]
		if b < a {
			a, b = b, a
		}
		out = append(out, Edge{A: a, B: b, Weight: e.Weight()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// EdgeCount returns the number of edges.
func (t *Topology) EdgeCount() int {
	return t.g.WeightedEdges().Len()
}

// Components returns the connected components, each sorted, ordered by
// their first member.
func (t *Topology) Components() [][]NodeID {
	cc := topo.ConnectedComponents(t.g)
	out := make([][]NodeID, 0, len(cc))
	for _, comp := range cc {
		ids := make([]NodeID, 0, len(comp))
		for _, n := range comp {
			ids = append(ids, t.ids[n.ID()])
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		out = append(out, ids)
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// Graph exposes the underlying gonum graph and the id mapping for callers
// that want to run gonum algorithms directly.
func (t *Topology) Graph() (graph.WeightedUndirected, func(NodeID) (int64, bool)) {
	return t.g, func(id NodeID) (int64, bool) {
		i, ok := t.index[id]
		return i, ok
	}
}
