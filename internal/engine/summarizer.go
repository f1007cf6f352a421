package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/constellation/internal/store"
)

const maxKeywords = 10

type themeVocab struct {
	name  string
	words map[string]bool
}

// Checked in order; the first vocabulary sharing a keyword names the theme.
var themes = []themeVocab{
	{"Work", toSet([]string{"work", "office", "meeting", "project", "colleague", "boss", "job"})},
	{"Travel", toSet([]string{"travel", "trip", "vacation", "flight", "hotel", "visit", "tourist"})},
	{"Family", toSet([]string{"family", "mom", "dad", "sister", "brother", "parent", "child"})},
	{"Friends", toSet([]string{"friend", "buddy", "pal", "hangout", "party", "fun"})},
	{"Health", toSet([]string{"health", "exercise", "gym", "doctor", "medical", "fitness", "wellness"})},
}

// Summarizer turns a group of entries into a named, themed cluster.
type Summarizer struct {
	Extractor EntityExtractor
}

// Summarize builds the cluster record for members. index is the group's
// position in the run and only affects the name.
func (s *Summarizer) Summarize(ctx context.Context, members []store.Entry, index int) store.Cluster {
	keywords := s.keywords(ctx, members)
	mood := DominantMood(members)
	theme := DetectTheme(keywords, mood)

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	summary := fmt.Sprintf("A collection of %d memories related to %s", len(members), strings.ToLower(theme))
	if len(keywords) > 0 {
		summary += ", featuring " + strings.Join(keywords[:min(3, len(keywords))], ", ")
	}

	return store.Cluster{
		Name:         fmt.Sprintf("%s Memories #%d", theme, index+1),
		Theme:        theme,
		MemberIDs:    ids,
		Keywords:     keywords,
		Summary:      summary,
		DominantMood: mood,
	}
}

// keywords returns the most frequent terms across members, ties broken by
// first appearance.
func (s *Summarizer) keywords(ctx context.Context, members []store.Entry) []string {
	if s.Extractor == nil {
		return []string{}
	}

	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.Content
	}
	joined := strings.Join(texts, " ")

	var terms []string
	var err error
	if te, ok := s.Extractor.(TermExtractor); ok {
		terms, err = te.ExtractTerms(ctx, joined)
	} else {
		terms, err = s.Extractor.Extract(ctx, joined)
	}
	if err != nil {
		log.Warn().Err(err).Int("members", len(members)).Msg("cluster keyword extraction failed")
	}
	return TopTerms(terms, maxKeywords)
}

// TopTerms returns up to n distinct terms by descending frequency. Ties keep
// first-seen order.
func TopTerms(terms []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, t := range terms {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

// DominantMood returns the most common mood, ties broken by first appearance.
func DominantMood(members []store.Entry) string {
	counts := make(map[string]int)
	best, bestCount := store.MoodNeutral, 0
	for _, m := range members {
		counts[m.Mood]++
	}
	for _, m := range members {
		if c := counts[m.Mood]; c > bestCount {
			best, bestCount = m.Mood, c
		}
	}
	return best
}

// DetectTheme matches keywords against the theme vocabularies, falling back
// on mood.
func DetectTheme(keywords []string, mood string) string {
	for _, th := range themes {
		for _, k := range keywords {
			if th.words[strings.ToLower(k)] {
				return th.name
			}
		}
	}
	switch mood {
	case store.MoodHappy:
		return "Joy"
	case store.MoodSad:
		return "Reflection"
	default:
		return "Life"
	}
}
