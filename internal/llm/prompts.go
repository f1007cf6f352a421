package llm

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// EntityExtractionPrompt asks for the people, places, organizations and
// salient nouns in one journal entry.
func EntityExtractionPrompt(text string) string {
	return fmt.Sprintf(`You extract entities from personal journal entries.

ENTRY:
%s

List the named entities (people, places, organizations, events) and the
important nouns in the entry.

Rules:
- Lowercase every item
- Nouns must be longer than 3 characters
- No duplicates, no pronouns, no verbs
- Return ONLY a JSON array of strings, no other text

Example: ["maria", "paris", "museum", "birthday"]

If there is nothing to extract, return: []`, text)
}

// ParseStringArray decodes a JSON string array from model output, tolerating
// markdown code fences and leading prose.
func ParseStringArray(content string) ([]string, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var out []string
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	return out, nil
}
