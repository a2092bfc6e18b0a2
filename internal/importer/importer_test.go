package importer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(render.Passthrough{})
	want := []string{"aiken", "csv", "gift", "json", "moodlexml"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if _, err := r.Lookup("GIFT"); err != nil {
		t.Errorf("Lookup is not case-insensitive: %v", err)
	}
	_, err := r.Lookup("docx")
	if !errors.Is(err, ErrUnknownFormat) || !strings.Contains(err.Error(), "gift") {
		t.Errorf("unknown format error should list known formats, got %v", err)
	}

	r.Register("lines", func(_ context.Context, src []byte, opts Options) ([]model.Item, error) {
		var items []model.Item
		for _, l := range strings.Split(strings.TrimSpace(string(src)), "\n") {
			it := opts.base(model.TypeTrueFalse, l)
			it.Body = &model.TrueFalse{Answer: true}
			items = append(items, it)
		}
		return items, nil
	})
	items, err := r.Import(context.Background(), "lines", []byte("a\nb"), Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(items) != 2 || items[1].Stem != "b" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Linear Algebra", "linear-algebra"},
		{"  Café au lait ", "cafe-au-lait"},
		{"C++ & Go!", "c--go"},
		{"???", "item"},
		{"", "item"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in, 50); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := Slugify("abcdefgh", 3); got != "abc" {
		t.Errorf("Slugify truncation = %q", got)
	}
	if got := (Options{}).IDPrefix(); got != "imported" {
		t.Errorf("IDPrefix without topic = %q", got)
	}
	if got := (Options{Topic: "Linear Algebra"}).IDPrefix(); got != "linear-algebra" {
		t.Errorf("IDPrefix = %q", got)
	}
	if got := CoerceTags(nil); got == nil || len(got) != 0 {
		t.Errorf("CoerceTags(nil) = %#v, want empty non-nil", got)
	}
	if got := ParseTagList("Week 1, vectors"); !reflect.DeepEqual(got, []string{"week", "1", "vectors"}) {
		t.Errorf("ParseTagList = %v", got)
	}
}

func TestParseAiken(t *testing.T) {
	src := `What is 2+2?
A. 3
B. 4
ANSWER: B

Broken question
A. x
B. y

Is Go compiled?
A) yes
B) no
answer: a

Out of range
A. one
B. two
ANSWER: D
`
	items, err := ParseAiken(context.Background(), []byte(src), Options{DefaultPoints: 2})
	if err != nil {
		t.Fatalf("ParseAiken: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Stem != "What is 2+2?" || items[0].Points != 2 {
		t.Errorf("first item = %+v", items[0])
	}
	if got := items[0].Choices().CorrectIndexes(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("correct indexes = %v", got)
	}
	if got := items[1].Choices().Choices[0]; got.Text != "yes" || !got.Correct {
		t.Errorf("lower-case answer line not honoured: %+v", got)
	}
}

func TestParseCSV(t *testing.T) {
	src := "\ufefftype,question,choiceA,choiceB,choiceC,correct,answer,tolerance,unit,answers,points,tags,solution\n" +
		"mcq_multi,Pick primes,2,3,4,\"A,B\",,,,,2,\"math, primes\",Two and three.\n" +
		"true_false,Sky is blue,,,,,yes,,,,,,\n" +
		"numeric,g?,,,,,9.81,0.1,m/s^2,,,,\n" +
		"short_answer,Animal?,,,,,,,,\"[\"\"cat\"\",\"\"feline\"\"]\",,,\n" +
		"short_answer,Colour?,,,,,,,,\"[{\"\"text\"\":\"\"red\"\",\"\"score\"\":0.5}]\",,,\n" +
		"essay,Write something,,,,,,,,,,,\n" +
		",,,,,,,,,,,,\n"
	opts := Options{CSVColumnMap: map[string]string{"stem": "question"}, Topic: "Science"}
	items, err := ParseCSV(context.Background(), []byte(src), opts)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}

	mc := items[0]
	if mc.Type != model.TypeMCQMulti || mc.Points != 2 || mc.Solution != "Two and three." {
		t.Errorf("mcq row = %+v", mc)
	}
	if got := mc.Choices().CorrectIndexes(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("correct indexes = %v", got)
	}
	if !reflect.DeepEqual(mc.Tags, []string{"math", "primes"}) {
		t.Errorf("tags = %v", mc.Tags)
	}
	if mc.Topic != "Science" {
		t.Errorf("topic = %q", mc.Topic)
	}
	if !items[1].Body.(*model.TrueFalse).Answer {
		t.Error("true_false answer should be true")
	}
	num := items[2].Body.(*model.Numeric)
	if num.Answer != 9.81 || num.Tolerance == nil || *num.Tolerance != 0.1 || num.Unit != "m/s^2" {
		t.Errorf("numeric row = %+v", num)
	}
	sa := items[3].Body.(*model.ShortAnswer)
	if len(sa.Answers) != 2 || sa.Answers[1].Text != "feline" || sa.Answers[0].Score != nil {
		t.Errorf("string answers = %+v", sa.Answers)
	}
	sa = items[4].Body.(*model.ShortAnswer)
	if len(sa.Answers) != 1 || sa.Answers[0].Credit() != 0.5 {
		t.Errorf("object answers = %+v", sa.Answers)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad number", "type,stem,answer\nnumeric,Q,ten\n", "row 2"},
		{"bad answers", "type,stem,answers\nshort_answer,Q,{oops\n", "not a JSON list"},
		{"bad points", "type,stem,points,choiceA,choiceB,correct\nmcq_one,Q,x,a,b,A\n", "points"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(context.Background(), []byte(tt.src), Options{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

const moodleSample = `<?xml version="1.0" encoding="UTF-8"?>
<quiz>
  <question type="category">
    <category><text>$course$/Default</text></category>
  </question>
  <question type="multichoice">
    <name><text>Capital</text></name>
    <questiontext format="html"><text><![CDATA[<p>Capital of <b>France</b>?</p>]]></text></questiontext>
    <generalfeedback format="html"><text><![CDATA[<p>Paris is the capital.</p>]]></text></generalfeedback>
    <defaultgrade>2.0000000</defaultgrade>
    <single>true</single>
    <shuffleanswers>0</shuffleanswers>
    <answer fraction="100" format="html"><text>Paris</text></answer>
    <answer fraction="50" format="html"><text>Paris, France</text></answer>
    <answer fraction="0" format="html"><text>Lyon</text></answer>
  </question>
  <question type="multichoice">
    <questiontext format="html"><text>Even numbers?</text></questiontext>
    <single>false</single>
    <answer fraction="50"><text>2</text></answer>
    <answer fraction="50"><text>4</text></answer>
    <answer fraction="-100"><text>5</text></answer>
  </question>
  <question type="truefalse">
    <questiontext format="html"><text>The earth is flat.</text></questiontext>
    <answer fraction="0"><text>true</text></answer>
    <answer fraction="100"><text>false</text></answer>
  </question>
  <question type="shortanswer">
    <questiontext format="html"><text>Name a pet.</text></questiontext>
    <usecase>1</usecase>
    <answer fraction="100"><text>cat</text></answer>
    <answer fraction="50"><text>kitty</text></answer>
  </question>
  <question type="numerical">
    <questiontext format="html"><text>Pi?</text></questiontext>
    <answer fraction="50"><text>3</text><tolerance>0</tolerance></answer>
    <answer fraction="100"><text>3.14</text><tolerance>0.01</tolerance></answer>
  </question>
  <question type="essay">
    <questiontext format="html"><text>Discuss.</text></questiontext>
  </question>
</quiz>`

func TestMoodleXML(t *testing.T) {
	items, err := MoodleXML(render.Passthrough{})(context.Background(), []byte(moodleSample), Options{DefaultPoints: 1})
	if err != nil {
		t.Fatalf("MoodleXML: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}

	single := items[0]
	if single.Type != model.TypeMCQOne || single.Stem != "Capital of France?" || single.Points != 2 {
		t.Errorf("single choice item = %+v", single)
	}
	if single.Solution != "Paris is the capital." {
		t.Errorf("solution = %q", single.Solution)
	}
	mc := single.Choices()
	if got := mc.CorrectIndexes(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("single choice correct indexes = %v", got)
	}
	if w := mc.Choices[1].Weight; w == nil || *w != 50 {
		t.Errorf("partial weight not kept: %v", w)
	}
	if mc.Shuffle == nil || *mc.Shuffle {
		t.Errorf("shuffleanswers not mapped: %v", mc.Shuffle)
	}

	if items[1].Type != model.TypeMCQMulti || !reflect.DeepEqual(items[1].Choices().CorrectIndexes(), []int{0, 1}) {
		t.Errorf("multi item = %+v", items[1])
	}
	if items[2].Body.(*model.TrueFalse).Answer {
		t.Error("truefalse answer should be false")
	}
	sa := items[3].Body.(*model.ShortAnswer)
	if len(sa.Answers) != 2 || !sa.Answers[0].CaseSensitive || sa.Answers[1].Credit() != 0.5 {
		t.Errorf("short answers = %+v", sa.Answers)
	}
	num := items[4].Body.(*model.Numeric)
	if num.Answer != 3.14 || num.Tolerance == nil || *num.Tolerance != 0.01 {
		t.Errorf("numeric = %+v", num)
	}
	for _, it := range items {
		if err := model.Validate(withDefaults(it)); err != nil {
			t.Errorf("imported item invalid: %v", err)
		}
	}
}

func TestParseJSON(t *testing.T) {
	src := `[
	  {"type": "true_false", "stem": "Go has generics.", "answer": true, "tags": ["Go Lang"]},
	  {"stem": "Pick one", "choices": [{"text": "a", "correct": true}, {"text": "b"}], "points": 4},
	  "not an object"
	]`
	opts := Options{DefaultPoints: 2, Author: "jdoe", ShuffleChoices: model.Bool(true)}
	items, err := ParseJSON(context.Background(), []byte(src), opts)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Points != 2 || items[0].Author != "jdoe" || items[0].Topic != DefaultTopic {
		t.Errorf("defaults not applied: %+v", items[0])
	}
	if !reflect.DeepEqual(items[0].Tags, []string{"go-lang"}) {
		t.Errorf("tags = %v", items[0].Tags)
	}
	if items[1].Type != model.TypeMCQOne || items[1].Points != 4 {
		t.Errorf("second item = %+v", items[1])
	}
	if s := items[1].Choices().Shuffle; s == nil || !*s {
		t.Errorf("shuffle default not applied: %v", s)
	}

	single, err := ParseJSON(context.Background(), []byte(`{"type":"numeric","stem":"x","answer":"2.5"}`), Options{})
	if err != nil {
		t.Fatalf("ParseJSON object: %v", err)
	}
	if len(single) != 1 || single[0].Body.(*model.Numeric).Answer != 2.5 {
		t.Errorf("single object = %+v", single)
	}

	if _, err := ParseJSON(context.Background(), []byte(`{"type":"true_false","stem":"x"}`), Options{}); err == nil {
		t.Error("expected error for true_false without answer")
	}
}

// withDefaults fills the fields the finalizer would set, for validation.
func withDefaults(it model.Item) model.Item {
	it.ID = "x.001"
	if it.Points == 0 {
		it.Points = 1
	}
	return it
}
