package engine

import (
	"errors"
	"fmt"
)

// RelationType classifies why two entries are related.
type RelationType string

const (
	RelationSemantic    RelationType = "semantic"
	RelationTemporal    RelationType = "temporal"
	RelationEntityBased RelationType = "entity_based"
	RelationManual      RelationType = "manual"
	RelationRelated     RelationType = "related"
)

// ErrInvalidRelationType is returned for a type outside the closed set.
var ErrInvalidRelationType = errors.New("invalid relationship type")

// ParseRelationType validates s. An empty string yields RelationManual.
func ParseRelationType(s string) (RelationType, error) {
	switch t := RelationType(s); t {
	case "":
		return RelationManual, nil
	case RelationSemantic, RelationTemporal, RelationEntityBased, RelationManual, RelationRelated:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRelationType, s)
	}
}

func (t RelationType) String() string { return string(t) }
