package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTriangles is two dense triangles joined by one weak bridge.
func twoTriangles() *Graph {
	return Build(nil, []Edge{
		{Source: "a1", Target: "a2", Weight: 0.9},
		{Source: "a2", Target: "a3", Weight: 0.9},
		{Source: "a1", Target: "a3", Weight: 0.9},
		{Source: "b1", Target: "b2", Weight: 0.8},
		{Source: "b2", Target: "b3", Weight: 0.8},
		{Source: "b1", Target: "b3", Weight: 0.8},
		{Source: "a3", Target: "b1", Weight: 0.1},
	})
}

func TestLouvainSeparatesTriangles(t *testing.T) {
	groups, err := Louvain{}.Detect(twoTriangles())
	require.NoError(t, err)

	groups = normalize(groups)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a1", "a2", "a3"}, groups[0])
	assert.Equal(t, []string{"b1", "b2", "b3"}, groups[1])
}

func TestLouvainBeatsSingleCommunity(t *testing.T) {
	g := twoTriangles()
	groups, err := Louvain{}.Detect(g)
	require.NoError(t, err)

	all := [][]string{g.Nodes()}
	assert.Greater(t, Modularity(g, groups), Modularity(g, all))
}

func TestLouvainDeterministic(t *testing.T) {
	var first [][]string
	for i := 0; i < 5; i++ {
		groups, err := Louvain{}.Detect(twoTriangles())
		require.NoError(t, err)
		if first == nil {
			first = groups
			continue
		}
		assert.Equal(t, first, groups)
	}
}

func TestLouvainNoEdges(t *testing.T) {
	g := Build([]string{"a", "b"}, nil)
	groups, err := Louvain{}.Detect(g)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Empty(t, normalize(groups))
}

func TestLouvainEmptyGraph(t *testing.T) {
	groups, err := Louvain{}.Detect(New())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestConnectedComponents(t *testing.T) {
	g := Build([]string{"a", "b", "c", "d", "e"}, []Edge{
		{Source: "a", Target: "b", Weight: 0.6},
		{Source: "b", Target: "c", Weight: 0.6},
		{Source: "d", Target: "e", Weight: 0.6},
	})

	groups, err := ConnectedComponents{}.Detect(g)
	require.NoError(t, err)
	groups = normalize(groups)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0])
	assert.Equal(t, []string{"d", "e"}, groups[1])
}

type failingDetector struct{ err error }

func (f failingDetector) Detect(*Graph) ([][]string, error) { return nil, f.err }

type panickingDetector struct{}

func (panickingDetector) Detect(*Graph) ([][]string, error) { panic("boom") }

type singletonDetector struct{}

func (singletonDetector) Detect(g *Graph) ([][]string, error) { return singletons(g), nil }

func TestPartitionFallsBackOnError(t *testing.T) {
	g := twoTriangles()
	cause := errors.New("no convergence")

	groups, fallback := Partition(g, failingDetector{err: cause})
	assert.ErrorIs(t, fallback, cause)
	require.Len(t, groups, 1, "bridge joins everything into one component")
	assert.Len(t, groups[0], 6)
}

func TestPartitionFallsBackOnPanic(t *testing.T) {
	groups, fallback := Partition(twoTriangles(), panickingDetector{})
	require.Error(t, fallback)
	assert.Contains(t, fallback.Error(), "boom")
	assert.Len(t, groups, 1)
}

func TestPartitionFallsBackOnDegenerate(t *testing.T) {
	groups, fallback := Partition(twoTriangles(), singletonDetector{})
	assert.ErrorIs(t, fallback, ErrDegenerate)
	assert.Len(t, groups, 1)
}

func TestPartitionUsesDetector(t *testing.T) {
	groups, fallback := Partition(twoTriangles(), Louvain{})
	assert.NoError(t, fallback)
	assert.Len(t, groups, 2)
}

func TestPartitionDropsSingletonsAndOrders(t *testing.T) {
	g := Build([]string{"z", "y", "x", "q", "p", "lonely"}, []Edge{
		{Source: "z", Target: "y", Weight: 0.9},
		{Source: "q", Target: "p", Weight: 0.9},
		{Source: "p", Target: "x", Weight: 0.9},
	})

	groups, fallback := Partition(g, ConnectedComponents{})
	require.NoError(t, fallback)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"p", "q", "x"}, groups[0])
	assert.Equal(t, []string{"y", "z"}, groups[1])
}

func TestPartitionNoEdges(t *testing.T) {
	groups, fallback := Partition(Build([]string{"a", "b"}, nil), Louvain{})
	assert.NoError(t, fallback)
	assert.Empty(t, groups)
}

func TestModularity(t *testing.T) {
	g := Build(nil, []Edge{{Source: "a", Target: "b", Weight: 1}})

	// Both in one community: in/m = 1, tot/2m = 1 -> Q = 0.
	assert.InDelta(t, 0.0, Modularity(g, [][]string{{"a", "b"}}), 1e-9)
	// Split: no internal edges, each tot/2m = 0.5 -> Q = -0.5.
	assert.InDelta(t, -0.5, Modularity(g, [][]string{{"a"}, {"b"}}), 1e-9)
}
