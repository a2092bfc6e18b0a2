package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// itemDoc is the flat on-disk layout of an item file. The key order here is
// the key order of written files.
type itemDoc struct {
	ID             string           `yaml:"id" json:"id"`
	Version        int              `yaml:"version,omitempty" json:"version,omitempty"`
	Type           ItemType         `yaml:"type" json:"type"`
	Points         int              `yaml:"points,omitempty" json:"points,omitempty"`
	Topic          string           `yaml:"topic,omitempty" json:"topic,omitempty"`
	Difficulty     Difficulty       `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	Tags           []string         `yaml:"tags" json:"tags"`
	Stem           string           `yaml:"stem" json:"stem"`
	Choices        []Choice         `yaml:"choices,omitempty" json:"choices,omitempty"`
	ShuffleChoices *bool            `yaml:"shuffle_choices,omitempty" json:"shuffle_choices,omitempty"`
	Answer         any              `yaml:"answer,omitempty" json:"answer,omitempty"`
	Tolerance      *float64         `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Unit           string           `yaml:"unit,omitempty" json:"unit,omitempty"`
	Answers        []AcceptedAnswer `yaml:"answers,omitempty" json:"answers,omitempty"`
	Feedback       *Feedback        `yaml:"feedback,omitempty" json:"feedback,omitempty"`
	Solution       string           `yaml:"solution,omitempty" json:"solution,omitempty"`
	Author         string           `yaml:"author,omitempty" json:"author,omitempty"`
	License        string           `yaml:"license,omitempty" json:"license,omitempty"`
}

func (it Item) toDoc() itemDoc {
	d := itemDoc{
		ID:         it.ID,
		Version:    it.Version,
		Type:       it.Type,
		Points:     it.Points,
		Topic:      it.Topic,
		Difficulty: it.Difficulty,
		Tags:       it.Tags,
		Stem:       it.Stem,
		Feedback:   it.Feedback,
		Solution:   it.Solution,
		Author:     it.Author,
		License:    it.License,
	}
	switch b := it.Body.(type) {
	case *MultipleChoice:
		d.Choices = b.Choices
		d.ShuffleChoices = b.Shuffle
	case *TrueFalse:
		d.Answer = b.Answer
	case *Numeric:
		d.Answer = b.Answer
		d.Tolerance = b.Tolerance
		d.Unit = b.Unit
	case *ShortAnswer:
		d.Answers = b.Answers
	}
	return d
}

func (d itemDoc) toItem() (Item, error) {
	it := Item{
		ID:         d.ID,
		Version:    d.Version,
		Type:       d.Type,
		Points:     d.Points,
		Topic:      d.Topic,
		Difficulty: d.Difficulty,
		Tags:       d.Tags,
		Stem:       d.Stem,
		Feedback:   d.Feedback,
		Solution:   d.Solution,
		Author:     d.Author,
		License:    d.License,
	}
	switch d.Type {
	case TypeMCQOne, TypeMCQMulti:
		it.Body = &MultipleChoice{Choices: d.Choices, Shuffle: d.ShuffleChoices}
	case TypeTrueFalse:
		v, err := boolAnswer(d.Answer)
		if err != nil {
			return it, structural(d.ID, "answer: "+err.Error())
		}
		it.Body = &TrueFalse{Answer: v}
	case TypeNumeric:
		v, err := numberAnswer(d.Answer)
		if err != nil {
			return it, structural(d.ID, "answer: "+err.Error())
		}
		it.Body = &Numeric{Answer: v, Tolerance: d.Tolerance, Unit: d.Unit}
	case TypeShortAnswer:
		it.Body = &ShortAnswer{Answers: d.Answers}
	}
	return it, nil
}

func boolAnswer(v any) (bool, error) {
	switch a := v.(type) {
	case bool:
		return a, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(a))
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", a)
		}
		return b, nil
	case nil:
		return false, fmt.Errorf("required")
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func numberAnswer(v any) (float64, error) {
	switch a := v.(type) {
	case float64:
		return a, nil
	case int:
		return float64(a), nil
	case int64:
		return float64(a), nil
	case uint64:
		return float64(a), nil
	case json.Number:
		return a.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", a)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("required")
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (it Item) MarshalYAML() (any, error) {
	return it.toDoc(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (it *Item) UnmarshalYAML(value *yaml.Node) error {
	var d itemDoc
	if err := value.Decode(&d); err != nil {
		return err
	}
	out, err := d.toItem()
	if err != nil {
		return err
	}
	*it = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.toDoc())
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var d itemDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	out, err := d.toItem()
	if err != nil {
		return err
	}
	*it = out
	return nil
}
