package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// QuizAssembly is an ordered, optionally weighted selection of bank items.
type QuizAssembly struct {
	ID           string      `yaml:"id"`
	Title        string      `yaml:"title,omitempty"`
	Instructions string      `yaml:"instructions,omitempty"`
	Entries      []QuizEntry `yaml:"items"`
	Pick         *int        `yaml:"pick,omitempty"`
	Seed         *int64      `yaml:"seed,omitempty"`
}

// DisplayTitle returns the title, falling back to the id.
func (q QuizAssembly) DisplayTitle() string {
	switch {
	case q.Title != "":
		return q.Title
	case q.ID != "":
		return q.ID
	default:
		return "Quiz"
	}
}

// QuizEntry references one bank item. In YAML it is either a bare id or a
// mapping with id and points.
type QuizEntry struct {
	ItemID         string `yaml:"id"`
	PointsOverride *int   `yaml:"points,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *QuizEntry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		e.ItemID = value.Value
		e.PointsOverride = nil
		return nil
	case yaml.MappingNode:
		type plain QuizEntry
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		if p.ItemID == "" {
			return fmt.Errorf("line %d: quiz entry without id", value.Line)
		}
		*e = QuizEntry(p)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported quiz entry", value.Line)
	}
}

// MarshalYAML writes entries without an override as bare ids.
func (e QuizEntry) MarshalYAML() (any, error) {
	if e.PointsOverride == nil {
		return e.ItemID, nil
	}
	type plain QuizEntry
	return plain(e), nil
}
