package importer

import (
	"context"
	"reflect"
	"testing"

	"github.com/pavelanni/quizbank/internal/model"
)

func parseGIFT(t *testing.T, src string, opts Options) []model.Item {
	t.Helper()
	items, err := ParseGIFT(context.Background(), []byte(src), opts)
	if err != nil {
		t.Fatalf("ParseGIFT: %v", err)
	}
	return items
}

func TestGIFTChoices(t *testing.T) {
	items := parseGIFT(t, "Q{=A~B~C}", Options{})
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Type != model.TypeMCQOne || it.Stem != "Q" {
		t.Errorf("got type %s stem %q", it.Type, it.Stem)
	}
	want := []model.Choice{{Text: "A", Correct: true}, {Text: "B"}, {Text: "C"}}
	if got := it.Choices().Choices; !reflect.DeepEqual(got, want) {
		t.Errorf("choices = %#v, want %#v", got, want)
	}
	if it.Choices().Shuffle != nil {
		t.Error("shuffle flag set without an explicit option")
	}
}

func TestGIFTShortAnswer(t *testing.T) {
	items := parseGIFT(t, "Q{=cat=dog}", Options{})
	if len(items) != 1 || items[0].Type != model.TypeShortAnswer {
		t.Fatalf("expected one short_answer item, got %+v", items)
	}
	sa := items[0].Body.(*model.ShortAnswer)
	want := []model.AcceptedAnswer{{Text: "cat"}, {Text: "dog"}}
	if !reflect.DeepEqual(sa.Answers, want) {
		t.Errorf("answers = %#v, want %#v", sa.Answers, want)
	}

	items = parseGIFT(t, "Q{=cat ~=dog}", Options{})
	if len(items) != 1 || len(items[0].Body.(*model.ShortAnswer).Answers) != 2 {
		t.Errorf("tilde separated short answers not parsed: %+v", items)
	}
}

func TestGIFTTrueFalse(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"Q{T}", true},
		{"Q{F}", false},
		{"Q{TRUE}", true},
		{"Q{FALSE}", false},
		{"Q{true}", true},
		{"Q{ f }", false},
		{"Q{TRUE#Right, it is.}", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			items := parseGIFT(t, tt.src, Options{})
			if len(items) != 1 || items[0].Type != model.TypeTrueFalse {
				t.Fatalf("expected one true_false item, got %+v", items)
			}
			if got := items[0].Body.(*model.TrueFalse).Answer; got != tt.want {
				t.Errorf("answer = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGIFTNumeric(t *testing.T) {
	tests := []struct {
		src     string
		answer  float64
		tol     *float64
		skipped bool
	}{
		{"Q{#42:0.5}", 42, model.Float64(0.5), false},
		{"Q{#42}", 42, nil, false},
		{"Q{#1..3}", 2, model.Float64(1), false},
		{"Q{#=3.14:0.01#Close enough =3:0.5}", 3.14, model.Float64(0.01), false},
		{"Q{#abc}", 0, nil, true},
		{"Q{#1:-2}", 0, nil, true},
		{"Q{#NaN}", 0, nil, true},
		{"Q{#Inf:1}", 0, nil, true},
		{"Q{#+Inf}", 0, nil, true},
		{"Q{#1:NaN}", 0, nil, true},
		{"Q{#-inf..3}", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			items := parseGIFT(t, tt.src, Options{})
			if tt.skipped {
				if len(items) != 0 {
					t.Fatalf("expected block to be skipped, got %+v", items)
				}
				return
			}
			if len(items) != 1 || items[0].Type != model.TypeNumeric {
				t.Fatalf("expected one numeric item, got %+v", items)
			}
			num := items[0].Body.(*model.Numeric)
			if num.Answer != tt.answer || !reflect.DeepEqual(num.Tolerance, tt.tol) {
				t.Errorf("got %v ± %v, want %v ± %v", num.Answer, num.Tolerance, tt.answer, tt.tol)
			}
		})
	}
}

func TestGIFTWeightsAndMulti(t *testing.T) {
	items := parseGIFT(t, "Q{%50%A~%100%B~C}\n\nR{=A~=B~C}", Options{})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0].Choices().Choices
	if items[0].Type != model.TypeMCQOne {
		t.Errorf("first item type = %s", items[0].Type)
	}
	if first[0].Correct || first[0].Weight == nil || *first[0].Weight != 50 {
		t.Errorf("partial choice = %+v", first[0])
	}
	if !first[1].Correct {
		t.Errorf("100%% choice should be correct: %+v", first[1])
	}
	if items[1].Type != model.TypeMCQMulti {
		t.Errorf("second item type = %s, want mcq_multi", items[1].Type)
	}
}

func TestGIFTSyntax(t *testing.T) {
	src := `// a comment line
::Geography::What is the capital of France?{
  =Paris#Yes
  ~Lyon#No
  ~Marseille
}

[markdown]Escaped \{braces\} and \~tilde{=a\~b~c}

Unterminated{=x~y`
	items := parseGIFT(t, src, Options{})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Topic != "Geography" || items[0].Stem != "What is the capital of France?" {
		t.Errorf("title handling: topic %q stem %q", items[0].Topic, items[0].Stem)
	}
	want := []model.Choice{{Text: "Paris", Correct: true}, {Text: "Lyon"}, {Text: "Marseille"}}
	if got := items[0].Choices().Choices; !reflect.DeepEqual(got, want) {
		t.Errorf("choices = %#v", got)
	}
	if items[1].Stem != "Escaped {braces} and ~tilde" {
		t.Errorf("stem = %q", items[1].Stem)
	}
	if got := items[1].Choices().Choices[0].Text; got != "a~b" {
		t.Errorf("escaped tilde choice = %q", got)
	}

	items = parseGIFT(t, "::Title::Q{T}", Options{Topic: "Physics"})
	if items[0].Topic != "Physics" {
		t.Errorf("explicit topic overridden by title: %q", items[0].Topic)
	}
}

func TestGIFTSkips(t *testing.T) {
	src := "Q{}\n\nR{=A~B}\n\n   \n\nS{~}"
	items := parseGIFT(t, src, Options{})
	if len(items) != 1 || items[0].Stem != "R" {
		t.Errorf("expected only R to survive, got %+v", items)
	}
}

func TestGIFTInheritsOptions(t *testing.T) {
	opts := Options{
		DefaultPoints:  3,
		Topic:          "Algebra",
		Difficulty:     model.DifficultyHard,
		Tags:           []string{"Week One", "linear"},
		Author:         "jdoe",
		License:        "CC-BY-4.0",
		ShuffleChoices: model.Bool(false),
	}
	items := parseGIFT(t, "Q{=A~B}\nR{T}", opts)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Points != 3 || it.Topic != "Algebra" || it.Difficulty != model.DifficultyHard ||
			it.Author != "jdoe" || it.License != "CC-BY-4.0" {
			t.Errorf("options not inherited: %+v", it)
		}
		if !reflect.DeepEqual(it.Tags, []string{"week-one", "linear"}) {
			t.Errorf("tags = %v", it.Tags)
		}
		if it.ID != "" {
			t.Errorf("importer assigned an id: %q", it.ID)
		}
	}
	if s := items[0].Choices().Shuffle; s == nil || *s {
		t.Errorf("explicit shuffle option not copied: %v", s)
	}
}
