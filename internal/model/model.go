package model

// ItemType is the discriminant of the item union.
type ItemType string

const (
	TypeMCQOne      ItemType = "mcq_one"
	TypeMCQMulti    ItemType = "mcq_multi"
	TypeTrueFalse   ItemType = "true_false"
	TypeNumeric     ItemType = "numeric"
	TypeShortAnswer ItemType = "short_answer"
)

// ItemTypes lists every supported item type in schema order.
var ItemTypes = []ItemType{TypeMCQOne, TypeMCQMulti, TypeTrueFalse, TypeNumeric, TypeShortAnswer}

// Valid reports whether t is one of the closed set of item types.
func (t ItemType) Valid() bool {
	for _, v := range ItemTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Feedback holds optional per-outcome markup.
type Feedback struct {
	Correct   string `yaml:"correct,omitempty" json:"correct,omitempty"`
	Incorrect string `yaml:"incorrect,omitempty" json:"incorrect,omitempty"`
}

// Item is one question of the bank. Common fields live here; the type-specific
// part is carried by Body, whose concrete type must agree with Type.
type Item struct {
	ID         string
	Version    int
	Type       ItemType
	Points     int // 0 means unset
	Topic      string
	Difficulty Difficulty
	Tags       []string // nil means unset
	Stem       string
	Author     string
	License    string
	Solution   string
	Feedback   *Feedback
	Body       Body
}

// Body is the sealed set of type-specific payloads.
type Body interface {
	kind() bodyKind
}

type bodyKind int

const (
	kindChoices bodyKind = iota
	kindTrueFalse
	kindNumeric
	kindShortAnswer
)

// Choice is one option of a multiple-choice item. Weight keeps a partial-credit
// annotation (percent) when the source format carried one.
type Choice struct {
	Text    string   `yaml:"text" json:"text" validate:"required"`
	Correct bool     `yaml:"correct,omitempty" json:"correct,omitempty"`
	Weight  *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// MultipleChoice is the payload of mcq_one and mcq_multi items.
type MultipleChoice struct {
	Choices []Choice `validate:"min=2,dive"`
	Shuffle *bool    // nil means unset
}

func (*MultipleChoice) kind() bodyKind { return kindChoices }

// CorrectIndexes returns the positions of the choices marked correct.
func (m *MultipleChoice) CorrectIndexes() []int {
	var idx []int
	for i, c := range m.Choices {
		if c.Correct {
			idx = append(idx, i)
		}
	}
	return idx
}

// TrueFalse is the payload of true_false items.
type TrueFalse struct {
	Answer bool
}

func (*TrueFalse) kind() bodyKind { return kindTrueFalse }

// Numeric is the payload of numeric items.
type Numeric struct {
	Answer    float64
	Tolerance *float64 `validate:"omitempty,gte=0"`
	Unit      string
}

func (*Numeric) kind() bodyKind { return kindNumeric }

// AcceptedAnswer is one accepted response of a short-answer item.
type AcceptedAnswer struct {
	Text          string   `yaml:"text" json:"text" validate:"required"`
	Regex         bool     `yaml:"regex,omitempty" json:"regex,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive" json:"case_sensitive"`
	Score         *float64 `yaml:"score,omitempty" json:"score,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Credit returns the answer's score, defaulting to full credit.
func (a AcceptedAnswer) Credit() float64 {
	if a.Score == nil {
		return 1
	}
	return *a.Score
}

// ShortAnswer is the payload of short_answer items.
type ShortAnswer struct {
	Answers []AcceptedAnswer `validate:"min=1,dive"`
}

func (*ShortAnswer) kind() bodyKind { return kindShortAnswer }

// Choices returns the multiple-choice payload, or nil for other item types.
func (it *Item) Choices() *MultipleChoice {
	mc, _ := it.Body.(*MultipleChoice)
	return mc
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Tags != nil {
		out.Tags = append([]string{}, it.Tags...)
	}
	if it.Feedback != nil {
		fb := *it.Feedback
		out.Feedback = &fb
	}
	switch b := it.Body.(type) {
	case *MultipleChoice:
		mc := &MultipleChoice{Choices: make([]Choice, len(b.Choices))}
		for i, c := range b.Choices {
			mc.Choices[i] = c
			if c.Weight != nil {
				w := *c.Weight
				mc.Choices[i].Weight = &w
			}
		}
		if b.Shuffle != nil {
			s := *b.Shuffle
			mc.Shuffle = &s
		}
		out.Body = mc
	case *TrueFalse:
		tf := *b
		out.Body = &tf
	case *Numeric:
		n := *b
		if b.Tolerance != nil {
			tol := *b.Tolerance
			n.Tolerance = &tol
		}
		out.Body = &n
	case *ShortAnswer:
		sa := &ShortAnswer{Answers: make([]AcceptedAnswer, len(b.Answers))}
		for i, a := range b.Answers {
			sa.Answers[i] = a
			if a.Score != nil {
				s := *a.Score
				sa.Answers[i].Score = &s
			}
		}
		out.Body = sa
	}
	return out
}

// Letter returns the label of the choice at position i: A..Z, then AA, AB, ...
func Letter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return Letter(i/26-1) + string(rune('A'+i%26))
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
