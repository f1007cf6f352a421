package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/constellation/internal/llm"
)

// EntityExtractor returns the distinct lowercased entities of a text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// TermExtractor is implemented by extractors that can report every
// occurrence of a term, in text order, rather than the distinct set.
type TermExtractor interface {
	ExtractTerms(ctx context.Context, text string) ([]string, error)
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "always": true,
	"because": true, "been": true, "before": true, "being": true, "could": true,
	"does": true, "doing": true, "done": true, "down": true, "each": true,
	"even": true, "every": true, "felt": true, "from": true, "going": true,
	"good": true, "great": true, "have": true, "having": true, "here": true,
	"into": true, "just": true, "know": true, "last": true, "like": true,
	"made": true, "make": true, "many": true, "more": true, "most": true,
	"much": true, "must": true, "never": true, "next": true, "only": true,
	"other": true, "over": true, "really": true, "said": true, "same": true,
	"should": true, "since": true, "some": true, "still": true, "such": true,
	"than": true, "that": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "thing": true, "things": true,
	"think": true, "this": true, "those": true, "through": true, "time": true,
	"today": true, "took": true, "very": true, "want": true, "were": true,
	"went": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true, "your": true,
	"the": true, "and": true, "but": true, "for": true, "are": true,
	"was": true, "has": true, "had": true, "our": true, "its": true,
}

// HeuristicExtractor approximates named entities and salient nouns without a
// model: capitalized words inside a sentence, plus any word longer than three
// letters that is not a stopword.
type HeuristicExtractor struct{}

func (HeuristicExtractor) ExtractTerms(_ context.Context, text string) ([]string, error) {
	var terms []string
	sentenceStart := true
	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		endsSentence := strings.ContainsAny(raw[max(len(raw)-1, 0):], ".!?")
		if word == "" {
			sentenceStart = sentenceStart || endsSentence
			continue
		}
		lower := strings.ToLower(word)
		proper := !sentenceStart && unicode.IsUpper([]rune(word)[0]) && len([]rune(word)) > 1
		noun := len([]rune(lower)) > 3 && !stopwords[lower]
		if (proper && !stopwords[lower]) || noun {
			terms = append(terms, lower)
		}
		sentenceStart = endsSentence
	}
	return terms, nil
}

func (h HeuristicExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	terms, err := h.ExtractTerms(ctx, text)
	if err != nil {
		return nil, err
	}
	return dedupe(terms), nil
}

// LLMExtractor asks a language model for entities. When the model call or
// its output fails and Fallback is set, Fallback's result is used instead.
type LLMExtractor struct {
	Client   llm.Client
	Fallback EntityExtractor
}

func (l *LLMExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	entities, err := l.extract(ctx, text)
	if err == nil {
		return entities, nil
	}
	if l.Fallback == nil {
		return nil, err
	}
	log.Debug().Err(err).Msg("llm entity extraction failed, using fallback")
	return l.Fallback.Extract(ctx, text)
}

// ExtractTerms reports each extracted entity once per mention in text, so
// frequencies reflect the text rather than the model's distinct list.
func (l *LLMExtractor) ExtractTerms(ctx context.Context, text string) ([]string, error) {
	entities, err := l.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	var terms []string
	for _, ent := range entities {
		for range max(countMentions(lower, ent), 1) {
			terms = append(terms, ent)
		}
	}
	return terms, nil
}

// countMentions counts occurrences of term in text that are not part of a
// longer word.
func countMentions(text, term string) int {
	n := 0
	for i := 0; term != ""; {
		j := strings.Index(text[i:], term)
		if j < 0 {
			break
		}
		start, end := i+j, i+j+len(term)
		if !wordRune(text[:start], true) && !wordRune(text[end:], false) {
			n++
		}
		i = end
	}
	return n
}

// wordRune reports whether the rune at the end (or start) of s is a letter
// or digit.
func wordRune(s string, last bool) bool {
	if s == "" {
		return false
	}
	var r rune
	if last {
		r, _ = utf8.DecodeLastRuneInString(s)
	} else {
		r, _ = utf8.DecodeRuneInString(s)
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *LLMExtractor) extract(ctx context.Context, text string) ([]string, error) {
	resp, err := l.Client.Complete(ctx, llm.EntityExtractionPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("llm entities: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llm entities: empty response")
	}
	items, err := llm.ParseStringArray(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("llm entities: %w", err)
	}
	var out []string
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if len([]rune(it)) > 1 {
			out = append(out, it)
		}
	}
	return dedupe(out), nil
}

// dedupe keeps the first occurrence of each item and never returns nil.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
