package model

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func sampleItems() []Item {
	return []Item{
		{
			ID: "alg.001", Version: 1, Type: TypeMCQOne, Points: 2, Topic: "Algebra",
			Difficulty: DifficultyEasy, Tags: []string{"linear"}, Stem: "Solve $x+1=2$.",
			Body: &MultipleChoice{
				Choices: []Choice{{Text: "1", Correct: true}, {Text: "2"}, {Text: "3", Weight: Float64(50)}},
				Shuffle: Bool(false),
			},
			Feedback: &Feedback{Correct: "Yes.", Incorrect: "No."},
			Solution: "Subtract 1.\nDone.",
		},
		{ID: "alg.002", Type: TypeTrueFalse, Points: 1, Tags: []string{}, Stem: "2 > 1", Body: &TrueFalse{Answer: false}},
		{ID: "alg.003", Type: TypeNumeric, Points: 1, Stem: "pi?", Body: &Numeric{Answer: 3.14, Tolerance: Float64(0.01), Unit: "rad"}},
		{ID: "alg.004", Type: TypeNumeric, Points: 1, Stem: "42?", Body: &Numeric{Answer: 42}},
		{
			ID: "alg.005", Type: TypeShortAnswer, Points: 3, Stem: "Animal?",
			Body: &ShortAnswer{Answers: []AcceptedAnswer{
				{Text: "cat", Score: Float64(1)},
				{Text: "^feline$", Regex: true, CaseSensitive: true, Score: Float64(0.5)},
			}},
		},
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	for _, it := range sampleItems() {
		t.Run(it.ID, func(t *testing.T) {
			data, err := yaml.Marshal(it)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got Item
			if err := yaml.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v\n%s", err, data)
			}
			if got.ID != it.ID || got.Type != it.Type {
				t.Errorf("header mismatch: got %s/%s, want %s/%s", got.ID, got.Type, it.ID, it.Type)
			}
			if !reflect.DeepEqual(got.Body, it.Body) {
				t.Errorf("body mismatch:\n got %#v\nwant %#v\n%s", got.Body, it.Body, data)
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for _, it := range sampleItems() {
		data, err := json.Marshal(it)
		if err != nil {
			t.Fatalf("Marshal %s: %v", it.ID, err)
		}
		var got Item
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal %s: %v", it.ID, err)
		}
		if !reflect.DeepEqual(got.Body, it.Body) {
			t.Errorf("%s: body mismatch: got %#v, want %#v", it.ID, got.Body, it.Body)
		}
	}
}

func TestFalseAnswerIsWritten(t *testing.T) {
	data, err := yaml.Marshal(Item{ID: "x", Type: TypeTrueFalse, Stem: "s", Body: &TrueFalse{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "answer: false") {
		t.Errorf("expected explicit false answer, got:\n%s", data)
	}
}

func TestDecodeAnswerKinds(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    Body
		wantErr bool
	}{
		{"int numeric", "id: a\ntype: numeric\nstem: s\nanswer: 42\n", &Numeric{Answer: 42}, false},
		{"string bool", "id: a\ntype: true_false\nstem: s\nanswer: \"true\"\n", &TrueFalse{Answer: true}, false},
		{"missing bool", "id: a\ntype: true_false\nstem: s\n", nil, true},
		{"bool on numeric", "id: a\ntype: numeric\nstem: s\nanswer: yes\n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var it Item
			err := yaml.Unmarshal([]byte(tt.doc), &it)
			if tt.wantErr {
				var serr *StructuralError
				if !errors.As(err, &serr) {
					t.Fatalf("expected StructuralError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(it.Body, tt.want) {
				t.Errorf("got %#v, want %#v", it.Body, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := sampleItems()
	for _, it := range valid {
		if err := Validate(it); err != nil {
			t.Errorf("Validate(%s): unexpected error: %v", it.ID, err)
		}
	}

	tests := []struct {
		name    string
		item    Item
		wantMsg string
	}{
		{"no correct choice", Item{ID: "a", Type: TypeMCQOne, Points: 1, Stem: "s",
			Body: &MultipleChoice{Choices: []Choice{{Text: "x"}, {Text: "y"}}}}, "exactly one correct"},
		{"two correct on mcq_one", Item{ID: "a", Type: TypeMCQOne, Points: 1, Stem: "s",
			Body: &MultipleChoice{Choices: []Choice{{Text: "x", Correct: true}, {Text: "y", Correct: true}}}}, "exactly one correct"},
		{"multi without correct", Item{ID: "a", Type: TypeMCQMulti, Points: 1, Stem: "s",
			Body: &MultipleChoice{Choices: []Choice{{Text: "x"}, {Text: "y"}}}}, "at least one correct"},
		{"one choice", Item{ID: "a", Type: TypeMCQOne, Points: 1, Stem: "s",
			Body: &MultipleChoice{Choices: []Choice{{Text: "x", Correct: true}}}}, "choices: needs at least 2"},
		{"empty stem", Item{ID: "a", Type: TypeTrueFalse, Points: 1, Stem: "  ", Body: &TrueFalse{}}, "stem: required"},
		{"bad type", Item{ID: "a", Type: "essay", Points: 1, Stem: "s"}, "type: must be one of"},
		{"zero points", Item{ID: "a", Type: TypeTrueFalse, Stem: "s", Body: &TrueFalse{}}, "points: must be >= 1"},
		{"negative tolerance", Item{ID: "a", Type: TypeNumeric, Points: 1, Stem: "s",
			Body: &Numeric{Answer: 1, Tolerance: Float64(-1)}}, "tolerance"},
		{"nan answer", Item{ID: "a", Type: TypeNumeric, Points: 1, Stem: "s",
			Body: &Numeric{Answer: math.NaN()}}, "answer: must be a finite number"},
		{"infinite tolerance", Item{ID: "a", Type: TypeNumeric, Points: 1, Stem: "s",
			Body: &Numeric{Answer: 1, Tolerance: Float64(math.Inf(1))}}, "tolerance: must be a finite number"},
		{"score above one", Item{ID: "a", Type: TypeShortAnswer, Points: 1, Stem: "s",
			Body: &ShortAnswer{Answers: []AcceptedAnswer{{Text: "x", Score: Float64(2)}}}}, "score: must be <= 1"},
		{"no answers", Item{ID: "a", Type: TypeShortAnswer, Points: 1, Stem: "s", Body: &ShortAnswer{}}, "answers"},
		{"payload mismatch", Item{ID: "a", Type: TypeNumeric, Points: 1, Stem: "s", Body: &TrueFalse{}}, "boolean answer on numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.item)
			var serr *StructuralError
			if !errors.As(err, &serr) {
				t.Fatalf("expected StructuralError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleItems()[0]
	c := orig.Clone()
	c.Points = 10
	c.Tags[0] = "changed"
	c.Choices().Choices[0].Text = "changed"
	*c.Choices().Choices[2].Weight = 1
	c.Feedback.Correct = "changed"

	if orig.Points != 2 || orig.Tags[0] != "linear" {
		t.Error("clone shares header state with original")
	}
	if orig.Choices().Choices[0].Text != "1" || *orig.Choices().Choices[2].Weight != 50 {
		t.Error("clone shares choices with original")
	}
	if orig.Feedback.Correct != "Yes." {
		t.Error("clone shares feedback with original")
	}
}

func TestQuizEntryDecode(t *testing.T) {
	doc := `
id: quiz-1
title: Week 1
pick: 2
items:
  - alg.001
  - id: alg.002
    points: 5
`
	var q QuizAssembly
	if err := yaml.Unmarshal([]byte(doc), &q); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(q.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(q.Entries))
	}
	if q.Entries[0].ItemID != "alg.001" || q.Entries[0].PointsOverride != nil {
		t.Errorf("unexpected first entry: %+v", q.Entries[0])
	}
	if q.Entries[1].ItemID != "alg.002" || q.Entries[1].PointsOverride == nil || *q.Entries[1].PointsOverride != 5 {
		t.Errorf("unexpected second entry: %+v", q.Entries[1])
	}
	if q.Pick == nil || *q.Pick != 2 {
		t.Errorf("expected pick 2, got %v", q.Pick)
	}
	if q.DisplayTitle() != "Week 1" {
		t.Errorf("DisplayTitle() = %q", q.DisplayTitle())
	}

	var bad QuizAssembly
	if err := yaml.Unmarshal([]byte("items:\n  - points: 3\n"), &bad); err == nil {
		t.Error("expected error for entry without id")
	}
}

func TestLetter(t *testing.T) {
	for i, want := range map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"} {
		if got := Letter(i); got != want {
			t.Errorf("Letter(%d) = %q, want %q", i, got, want)
		}
	}
}
