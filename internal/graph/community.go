package graph

import (
	"errors"
	"fmt"
	"sort"
)

// Detector partitions a graph into groups of node IDs.
type Detector interface {
	Detect(g *Graph) ([][]string, error)
}

// ErrDegenerate is returned by Partition's checks when a detector produced
// no multi-member group for a graph that has edges.
var ErrDegenerate = errors.New("community detection produced no groups")

// Partition runs d over g and falls back to connected components when d
// fails, panics, or returns a degenerate result. The returned groups have
// at least two members each, members sorted by ID, and are ordered by size
// (largest first) then by smallest member ID. fallback carries the reason
// d was abandoned and is nil when d's result was used.
func Partition(g *Graph, d Detector) (groups [][]string, fallback error) {
	groups, fallback = safeDetect(g, d)
	if fallback == nil {
		groups = normalize(groups)
		if len(groups) == 0 && g.EdgeCount() > 0 {
			fallback = ErrDegenerate
		}
	}
	if fallback != nil {
		groups, _ = ConnectedComponents{}.Detect(g)
		groups = normalize(groups)
	}
	return groups, fallback
}

func safeDetect(g *Graph, d Detector) (groups [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			groups = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Detect(g)
}

func normalize(groups [][]string) [][]string {
	out := make([][]string, 0, len(groups))
	for _, grp := range groups {
		if len(grp) < 2 {
			continue
		}
		members := append([]string(nil), grp...)
		sort.Strings(members)
		out = append(out, members)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// ConnectedComponents groups nodes reachable from each other.
type ConnectedComponents struct{}

func (ConnectedComponents) Detect(g *Graph) ([][]string, error) {
	seen := make([]bool, g.Len())
	var groups [][]string
	for start := 0; start < g.Len(); start++ {
		if seen[start] {
			continue
		}
		var comp []string
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, g.ID(n))
			for _, he := range g.Neighbors(n) {
				if !seen[he.To] {
					seen[he.To] = true
					stack = append(stack, he.To)
				}
			}
		}
		groups = append(groups, comp)
	}
	return groups, nil
}

// Louvain is weighted modularity maximization by local moving and
// aggregation. Nodes are visited in arena order so results are repeatable.
type Louvain struct {
	MaxLevels int     // 0 means 32
	MinGain   float64 // 0 means 1e-10
}

type wedge struct {
	to int
	w  float64
}

// level is one aggregation step: every node is a community of the level below.
type level struct {
	adj  [][]wedge
	self []float64
	k    []float64
	m2   float64
}

func newLevel(g *Graph) *level {
	n := g.Len()
	lv := &level{
		adj:  make([][]wedge, n),
		self: make([]float64, n),
		k:    make([]float64, n),
	}
	for _, e := range g.Edges() {
		s, _ := g.Index(e.Source)
		t, _ := g.Index(e.Target)
		lv.adj[s] = append(lv.adj[s], wedge{t, e.Weight})
		lv.adj[t] = append(lv.adj[t], wedge{s, e.Weight})
	}
	lv.finish()
	return lv
}

func (lv *level) finish() {
	lv.m2 = 0
	for i := range lv.adj {
		sort.Slice(lv.adj[i], func(a, b int) bool { return lv.adj[i][a].to < lv.adj[i][b].to })
		k := 2 * lv.self[i]
		for _, e := range lv.adj[i] {
			k += e.w
		}
		lv.k[i] = k
		lv.m2 += k
	}
}

// move runs local moving to a fixed point and reports whether any node
// changed community.
func (lv *level) move(minGain float64) ([]int, bool) {
	n := len(lv.adj)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = lv.k[i]
	}

	moved := false
	for pass := 0; pass < 1000; pass++ {
		improved := false
		for i := 0; i < n; i++ {
			ci := comm[i]
			links := make(map[int]float64)
			var order []int
			for _, e := range lv.adj[i] {
				c := comm[e.to]
				if _, ok := links[c]; !ok {
					order = append(order, c)
				}
				links[c] += e.w
			}
			sort.Ints(order)

			tot[ci] -= lv.k[i]
			best := ci
			bestGain := links[ci] - tot[ci]*lv.k[i]/lv.m2
			for _, c := range order {
				if c == ci {
					continue
				}
				gain := links[c] - tot[c]*lv.k[i]/lv.m2
				if gain > bestGain+minGain {
					best, bestGain = c, gain
				}
			}
			tot[best] += lv.k[i]
			if best != ci {
				comm[i] = best
				improved = true
				moved = true
			}
		}
		if !improved {
			break
		}
	}
	return comm, moved
}

// renumber maps community labels to 0..k-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

func (lv *level) aggregate(comm []int, k int) *level {
	next := &level{
		adj:  make([][]wedge, k),
		self: make([]float64, k),
		k:    make([]float64, k),
	}
	acc := make([]map[int]float64, k)
	for i := range acc {
		acc[i] = make(map[int]float64)
	}
	for i, ci := range comm {
		next.self[ci] += lv.self[i]
		for _, e := range lv.adj[i] {
			if e.to <= i {
				continue
			}
			cj := comm[e.to]
			if ci == cj {
				next.self[ci] += e.w
				continue
			}
			acc[ci][cj] += e.w
			acc[cj][ci] += e.w
		}
	}
	for c, m := range acc {
		for to, w := range m {
			next.adj[c] = append(next.adj[c], wedge{to, w})
		}
	}
	next.finish()
	return next
}

func (l Louvain) Detect(g *Graph) ([][]string, error) {
	n := g.Len()
	if n == 0 {
		return nil, nil
	}
	maxLevels := l.MaxLevels
	if maxLevels <= 0 {
		maxLevels = 32
	}
	minGain := l.MinGain
	if minGain <= 0 {
		minGain = 1e-10
	}

	member := make([]int, n)
	for i := range member {
		member[i] = i
	}

	lv := newLevel(g)
	if lv.m2 <= 0 {
		return singletons(g), nil
	}

	for depth := 0; depth < maxLevels; depth++ {
		comm, moved := lv.move(minGain)
		if !moved {
			break
		}
		comm, k := renumber(comm)
		for i := range member {
			member[i] = comm[member[i]]
		}
		if k == len(lv.adj) {
			break
		}
		lv = lv.aggregate(comm, k)
	}

	_, k := renumber(member)
	groups := make([][]string, 0, k)
	slot := make(map[int]int)
	for i, c := range member {
		idx, ok := slot[c]
		if !ok {
			idx = len(groups)
			slot[c] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], g.ID(i))
	}
	return groups, nil
}

func singletons(g *Graph) [][]string {
	groups := make([][]string, g.Len())
	for i := range groups {
		groups[i] = []string{g.ID(i)}
	}
	return groups
}

// Modularity scores a partition of g. Nodes missing from groups count as
// singletons.
func Modularity(g *Graph, groups [][]string) float64 {
	comm := make([]int, g.Len())
	for i := range comm {
		comm[i] = -1 - i
	}
	for c, grp := range groups {
		for _, id := range grp {
			if i, ok := g.Index(id); ok {
				comm[i] = c
			}
		}
	}

	var m float64
	deg := make([]float64, g.Len())
	for _, e := range g.Edges() {
		m += e.Weight
		s, _ := g.Index(e.Source)
		t, _ := g.Index(e.Target)
		deg[s] += e.Weight
		deg[t] += e.Weight
	}
	if m == 0 {
		return 0
	}

	in := make(map[int]float64)
	tot := make(map[int]float64)
	for _, e := range g.Edges() {
		s, _ := g.Index(e.Source)
		t, _ := g.Index(e.Target)
		if comm[s] == comm[t] {
			in[comm[s]] += e.Weight
		}
	}
	for i, d := range deg {
		tot[comm[i]] += d
	}

	var q float64
	for c, t := range tot {
		q += in[c]/m - (t/(2*m))*(t/(2*m))
	}
	return q
}
