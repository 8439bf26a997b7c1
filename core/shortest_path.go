package core

import (
	"container/heap"
	"fmt"
	"math"
)

// tieEpsilon is the tolerance under which two cumulative path weights are
// treated as equal.
const tieEpsilon = 1e-9

// Route is a shortest path from a source to one reachable node. Path starts
// with the source and ends with the destination.
type Route struct {
	Path   []NodeID
	Weight float64
}

// Hops returns the number of edges in the route.
func (r Route) Hops() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// NextHopToSource returns the node adjacent to the destination on the way
// back to the source. It is false for the source's own route.
func (r Route) NextHopToSource() (NodeID, bool) {
	if len(r.Path) < 2 {
		return "", false
	}
	return r.Path[len(r.Path)-2], true
}

type pathItem struct {
	node int64
	dist float64
	hops int
}

type pathQueue []pathItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)   { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// ShortestPaths runs Dijkstra from source and returns a route for every
// reachable node, the source included. Equal-weight alternatives prefer
// more hops, then the lower predecessor identity, so results are
// deterministic.
func (t *Topology) ShortestPaths(source NodeID) (map[NodeID]Route, error) {
	src, ok := t.index[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, source)
	}

	n := len(t.ids)
	dist := make([]float64, n)
	hops := make([]int, n)
	prev := make([]int64, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	q := &pathQueue{{node: src}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(pathItem)
		u := cur.node
		if done[u] {
			continue
		}
		done[u] = true

		it := t.g.From(u)
		for it.Next() {
			v := it.Node().ID()
			if done[v] {
				continue
			}
			w, _ := t.g.Weight(u, v)
			nd := dist[u] + w
			nh := hops[u] + 1
			if !t.better(nd, nh, u, dist[v], hops[v], prev[v]) {
				continue
			}
			dist[v] = nd
			hops[v] = nh
			prev[v] = u
			heap.Push(q, pathItem{node: v, dist: nd, hops: nh})
		}
	}

	routes := make(map[NodeID]Route)
	for i := 0; i < n; i++ {
		if math.IsInf(dist[i], 1) {
			continue
		}
		var rev []NodeID
		for at := int64(i); at != -1; at = prev[at] {
			rev = append(rev, t.ids[at])
		}
		p := make([]NodeID, len(rev))
		for k := range rev {
			p[k] = rev[len(rev)-1-k]
		}
		routes[t.ids[i]] = Route{Path: p, Weight: dist[i]}
	}
	return routes, nil
}

// better reports whether a candidate (dist, hops, via) should replace the
// current best (curDist, curHops, curPrev) for a node.
func (t *Topology) better(dist float64, hops int, via int64, curDist float64, curHops int, curPrev int64) bool {
	if math.IsInf(curDist, 1) {
		return true
	}
	if dist < curDist-tieEpsilon {
		return true
	}
	if dist > curDist+tieEpsilon {
		return false
	}
	if hops != curHops {
		return hops > curHops
	}
	return curPrev == -1 || t.ids[via] < t.ids[curPrev]
}

// Route returns the shortest route from source to target.
func (t *Topology) Route(source, target NodeID) (Route, bool, error) {
	if !t.Contains(target) {
		return Route{}, false, fmt.Errorf("%w: %s", ErrUnknownNode, target)
	}
	routes, err := t.ShortestPaths(source)
	if err != nil {
		return Route{}, false, err
	}
	r, ok := routes[target]
	return r, ok, nil
}
