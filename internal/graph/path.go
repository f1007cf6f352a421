package graph

import (
	"container/heap"
	"math"
)

type pqItem struct {
	node int
	dist float64
}

type pathQueue []pqItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist == q[j].dist {
		return q[i].node < q[j].node
	}
	return q[i].dist < q[j].dist
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)   { *q = append(*q, x.(pqItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPath returns the lowest-cost node sequence from src to dst, where
// each edge costs 1/weight. Edges with weight <= 0 are not traversable.
// It returns false when either node is unknown or dst is unreachable.
func ShortestPath(g *Graph, src, dst string) ([]string, bool) {
	s, ok := g.Index(src)
	if !ok {
		return nil, false
	}
	t, ok := g.Index(dst)
	if !ok {
		return nil, false
	}
	if s == t {
		return []string{src}, true
	}

	dist := make([]float64, g.Len())
	prev := make([]int, g.Len())
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[s] = 0

	q := &pathQueue{{node: s}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(pqItem)
		if cur.dist > dist[cur.node] {
			continue
		}
		if cur.node == t {
			break
		}
		for _, he := range g.Neighbors(cur.node) {
			w := g.Edge(he.Edge).Weight
			if w <= 0 {
				continue
			}
			nd := cur.dist + 1/w
			if nd < dist[he.To] {
				dist[he.To] = nd
				prev[he.To] = cur.node
				heap.Push(q, pqItem{node: he.To, dist: nd})
			}
		}
	}

	if math.IsInf(dist[t], 1) {
		return nil, false
	}

	var rev []int
	for at := t; at != -1; at = prev[at] {
		rev = append(rev, at)
	}
	path := make([]string, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = g.ID(idx)
	}
	return path, true
}
