package engine

import (
	"fmt"
	"time"
)

// Signal weights and cutoffs.
const (
	semanticCutoff  = 0.7
	semanticWeight  = 0.4
	sameDayBonus    = 0.4
	nearbyBonus     = 0.2
	nearbyDays      = 7
	entityWeight    = 0.15
	entityCap       = 0.3
	moodBonus       = 0.1
	tagWeight       = 0.1
	DefaultMinScore = 0.3
)

// Features is what the scorer knows about one entry. Embedding may be nil.
type Features struct {
	ID        string
	CreatedAt time.Time
	Mood      string
	Tags      map[string]bool
	Entities  map[string]bool
	Embedding []float64
}

// Score is the outcome of comparing two entries.
type Score struct {
	Strength float64
	Type     RelationType
	Reasons  []string
}

// ScorePair evaluates the five signals in fixed order: semantic, temporal,
// entity overlap, mood, tags. Entity overlap always sets the type; semantic
// and temporal only set it while it is still RelationRelated. The result is
// clamped to 1.0. Every signal is symmetric in a and b.
func ScorePair(a, b *Features) Score {
	s := Score{Type: RelationRelated, Reasons: []string{}}

	if sim := CosineSimilarity(a.Embedding, b.Embedding); sim > semanticCutoff {
		s.Strength += sim * semanticWeight
		s.Reasons = append(s.Reasons, "semantic_similarity")
		if s.Type == RelationRelated {
			s.Type = RelationSemantic
		}
	}

	switch days := dayDiff(a.CreatedAt, b.CreatedAt); {
	case days == 0:
		s.Strength += sameDayBonus
		s.Reasons = append(s.Reasons, "same_day")
		if s.Type == RelationRelated {
			s.Type = RelationTemporal
		}
	case days < nearbyDays:
		s.Strength += nearbyBonus
		s.Reasons = append(s.Reasons, "temporal_proximity")
		if s.Type == RelationRelated {
			s.Type = RelationTemporal
		}
	}

	if n := overlap(a.Entities, b.Entities); n > 0 {
		s.Strength += min(float64(n)*entityWeight, entityCap)
		s.Type = RelationEntityBased
		s.Reasons = append(s.Reasons, fmt.Sprintf("shared_entities:%d", n))
	}

	if a.Mood == b.Mood {
		s.Strength += moodBonus
		s.Reasons = append(s.Reasons, "same_mood")
	}

	if n := overlap(a.Tags, b.Tags); n > 0 {
		s.Strength += float64(n) * tagWeight
		s.Reasons = append(s.Reasons, fmt.Sprintf("shared_tags:%d", n))
	}

	s.Strength = min(s.Strength, 1.0)
	return s
}

// above reports v > threshold, ignoring the float error of summed bonuses
// (0.2 + 0.1 is not 0.3).
func above(v, threshold float64) bool {
	return v > threshold+1e-9
}

// dayDiff is the whole number of days between two instants, ignoring order.
func dayDiff(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

func overlap(a, b map[string]bool) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
