// Package visualization renders network snapshots for external tools.
package visualization

import (
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// Fill colours by node state.
var stateColors = map[string]string{
	"init":   "white",
	"awake":  "palegreen",
	"asleep": "lightgrey",
	"dead":   "salmon",
}

type attrs []encoding.Attribute

func (a attrs) Attributes() []encoding.Attribute { return a }

type dotNode struct {
	id    int64
	name  string
	attrs attrs
}

func (n dotNode) ID() int64                        { return n.id }
func (n dotNode) DOTID() string                    { return n.name }
func (n dotNode) Attributes() []encoding.Attribute { return n.attrs }

type dotEdge struct {
	from, to graph.Node
	weight   float64
}

func (e dotEdge) From() graph.Node         { return e.from }
func (e dotEdge) To() graph.Node           { return e.to }
func (e dotEdge) Weight() float64          { return e.weight }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: e.to, to: e.from, weight: e.weight} }
func (e dotEdge) Attributes() []encoding.Attribute {
	return attrs{{Key: "label", Value: strconv.FormatFloat(e.weight, 'f', 1, 64)}}
}

type dotGraph struct {
	*simple.WeightedUndirectedGraph
}

func (dotGraph) DOTAttributers() (g, n, e encoding.Attributer) {
	return attrs{{Key: "layout", Value: "neato"}, {Key: "overlap", Value: "false"}},
		attrs{{Key: "style", Value: "filled"}, {Key: "fontsize", Value: "8"}},
		attrs{{Key: "fontsize", Value: "6"}}
}

// RenderDOT writes the nodes and edges as an undirected Graphviz graph with
// pinned positions. Edges naming an unknown node are an error.
func RenderDOT(w io.Writer, name string, nodes []model.NodeSnapshot, edges []model.EdgeSnapshot) error {
	g := dotGraph{simple.NewWeightedUndirectedGraph(0, 0)}
	byID := make(map[string]dotNode, len(nodes))
	for i, n := range nodes {
		color, ok := stateColors[n.State]
		if !ok {
			color = "white"
		}
		shape := "circle"
		if n.Controller {
			shape = "doublecircle"
		}
		dn := dotNode{
			id:   int64(i),
			name: n.ID,
			attrs: attrs{
				{Key: "pos", Value: fmt.Sprintf("\"%g,%g!\"", n.X, n.Y)},
				{Key: "fillcolor", Value: color},
				{Key: "shape", Value: shape},
				{Key: "tooltip", Value: fmt.Sprintf("\"%.1f J\"", n.Energy)},
			},
		}
		byID[n.ID] = dn
		g.AddNode(dn)
	}
	for _, e := range edges {
		a, ok := byID[e.A]
		if !ok {
			return fmt.Errorf("edge %s-%s: unknown node %s", e.A, e.B, e.A)
		}
		b, ok := byID[e.B]
		if !ok {
			return fmt.Errorf("edge %s-%s: unknown node %s", e.A, e.B, e.B)
		}
		g.SetWeightedEdge(dotEdge{from: a, to: b, weight: e.Weight})
	}

	out, err := dot.Marshal(g, name, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dot: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
