// Package graph holds the in-memory relationship graph and the algorithms
// run over it: community detection and weighted shortest paths.
//
// Nodes live in a dense arena. Callers address them by string ID; the
// algorithms work on integer indices into the arena.
package graph

// Edge is an undirected weighted edge between two node IDs.
type Edge struct {
	Source string
	Target string
	Weight float64
}

// HalfEdge is one side of an adjacency entry: the neighbor index and the
// index of the edge in the graph's edge list.
type HalfEdge struct {
	To   int
	Edge int
}

// Graph is an undirected weighted graph with at most one edge per pair.
type Graph struct {
	ids   []string
	index map[string]int
	adj   [][]HalfEdge
	edges []Edge
	pairs map[[2]int]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		pairs: make(map[[2]int]int),
	}
}

// Build creates a graph with the given nodes, in order, followed by the
// edges. Edge endpoints not already present are added as they are seen.
func Build(nodes []string, edges []Edge) *Graph {
	g := New()
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g
}

// AddNode registers id and returns its index. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.adj = append(g.adj, nil)
	return i
}

// AddEdge inserts e. Self-loops are ignored; for a pair that already has an
// edge the stronger weight wins.
func (g *Graph) AddEdge(e Edge) {
	if e.Source == e.Target {
		return
	}
	s, t := g.AddNode(e.Source), g.AddNode(e.Target)
	key := [2]int{min(s, t), max(s, t)}
	if idx, ok := g.pairs[key]; ok {
		if e.Weight > g.edges[idx].Weight {
			g.edges[idx].Weight = e.Weight
		}
		return
	}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.pairs[key] = idx
	g.adj[s] = append(g.adj[s], HalfEdge{To: t, Edge: idx})
	g.adj[t] = append(g.adj[t], HalfEdge{To: s, Edge: idx})
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// ID returns the node ID at index i.
func (g *Graph) ID(i int) string { return g.ids[i] }

// Index returns the arena index of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Neighbors returns the adjacency list of node i.
func (g *Graph) Neighbors(i int) []HalfEdge { return g.adj[i] }

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// Nodes returns all node IDs in insertion order.
func (g *Graph) Nodes() []string { return g.ids }
