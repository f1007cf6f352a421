package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/constellation/internal/store"
)

// Time ranges accepted by Graph.
const (
	RangeAll   = "all"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// ParseTimeRange normalizes a range name. Empty means all; anything
// unrecognised means month.
func ParseTimeRange(s string) (name string, window time.Duration) {
	switch s {
	case "", RangeAll:
		return RangeAll, 0
	case RangeWeek:
		return RangeWeek, 7 * 24 * time.Hour
	case RangeYear:
		return RangeYear, 365 * 24 * time.Hour
	default:
		return RangeMonth, 30 * 24 * time.Hour
	}
}

// GraphOpts filters the graph view.
type GraphOpts struct {
	MinStrength     float64
	IncludeClusters bool
	TimeRange       string
}

type GraphNode struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	FullText  string    `json:"full_text"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []string  `json:"tags"`
	Keywords  []string  `json:"keywords"`
}

type GraphEdge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Strength float64  `json:"strength"`
	Type     string   `json:"type"`
	Reasons  []string `json:"reasons"`
}

type GraphCluster struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Theme        string   `json:"theme"`
	MemberIDs    []string `json:"memory_ids"`
	Keywords     []string `json:"keywords"`
	Summary      string   `json:"summary"`
	DominantMood string   `json:"dominant_mood"`
	Size         int      `json:"size"`
}

type GraphStats struct {
	TotalMemories    int     `json:"total_memories"`
	TotalConnections int     `json:"total_connections"`
	AvgStrength      float64 `json:"avg_connection_strength"`
	TimeRange        string  `json:"time_range"`
	ClustersCount    int     `json:"clusters_count"`
}

// GraphView is an owner's graph as served to clients.
type GraphView struct {
	Nodes    []GraphNode    `json:"nodes"`
	Edges    []GraphEdge    `json:"edges"`
	Clusters []GraphCluster `json:"clusters"`
	Stats    GraphStats     `json:"stats"`
}

// Preview truncates text to n characters, marking the cut with "...".
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// Graph returns the owner's entries in the time range and the edges among
// them at or above opts.MinStrength. When any edge is returned, only
// entries touching an edge are listed.
func (e *Engine) Graph(ctx context.Context, owner string, opts GraphOpts) (*GraphView, error) {
	rangeName, window := ParseTimeRange(opts.TimeRange)
	var since time.Time
	if window > 0 {
		since = time.Now().Add(-window)
	}

	entries, err := e.DB.ListEntries(ctx, owner, since)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	rels, err := e.DB.ListRelationships(ctx, owner, opts.MinStrength)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	inRange := make(map[string]bool, len(entries))
	for _, en := range entries {
		inRange[en.ID] = true
	}

	view := &GraphView{Nodes: []GraphNode{}, Edges: []GraphEdge{}, Clusters: []GraphCluster{}}
	linked := make(map[string]bool)
	var total float64
	for _, r := range rels {
		if !inRange[r.SourceID] || !inRange[r.TargetID] {
			continue
		}
		linked[r.SourceID], linked[r.TargetID] = true, true
		total += r.Strength
		view.Edges = append(view.Edges, GraphEdge{
			ID:       r.ID,
			Source:   r.SourceID,
			Target:   r.TargetID,
			Strength: r.Strength,
			Type:     r.Type,
			Reasons:  r.Reasons,
		})
	}

	for _, en := range entries {
		if len(view.Edges) > 0 && !linked[en.ID] {
			continue
		}
		view.Nodes = append(view.Nodes, graphNode(en))
	}

	if opts.IncludeClusters {
		clusters, err := e.DB.ListClusters(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		for _, c := range clusters {
			view.Clusters = append(view.Clusters, ClusterView(c))
		}
	}

	view.Stats = GraphStats{
		TotalMemories:    len(view.Nodes),
		TotalConnections: len(view.Edges),
		TimeRange:        rangeName,
		ClustersCount:    len(view.Clusters),
	}
	if n := len(view.Edges); n > 0 {
		view.Stats.AvgStrength = math.Round(total/float64(n)*100) / 100
	}
	return view, nil
}

// ClusterView converts a stored cluster for clients.
func ClusterView(c store.Cluster) GraphCluster {
	return GraphCluster{
		ID:           c.ID,
		Name:         c.Name,
		Theme:        c.Theme,
		MemberIDs:    c.MemberIDs,
		Keywords:     c.Keywords,
		Summary:      c.Summary,
		DominantMood: c.DominantMood,
		Size:         len(c.MemberIDs),
	}
}

func graphNode(en store.Entry) GraphNode {
	keywords := en.Entities
	if keywords == nil {
		keywords = []string{}
	}
	tags := en.Tags
	if tags == nil {
		tags = []string{}
	}
	return GraphNode{
		ID:        en.ID,
		Text:      Preview(en.Content, 100),
		FullText:  en.Content,
		Mood:      en.Mood,
		CreatedAt: en.CreatedAt,
		Tags:      tags,
		Keywords:  keywords,
	}
}
