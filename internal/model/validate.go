package model

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// itemHeader mirrors the common fields the item schema constrains.
type itemHeader struct {
	ID         string `yaml:"id" validate:"required"`
	Type       string `yaml:"type" validate:"required,oneof=mcq_one mcq_multi true_false numeric short_answer"`
	Points     int    `yaml:"points" validate:"min=1"`
	Difficulty string `yaml:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Stem       string `yaml:"stem" validate:"required"`
}

// Validate checks an item against the published item schema and the
// per-type invariants. All problems are collected into one *StructuralError.
func Validate(it Item) error {
	var problems []string
	problems = append(problems, structProblems(itemHeader{
		ID:         it.ID,
		Type:       string(it.Type),
		Points:     it.Points,
		Difficulty: string(it.Difficulty),
		Stem:       strings.TrimSpace(it.Stem),
	})...)

	if it.Type.Valid() {
		problems = append(problems, bodyProblems(it)...)
	}
	if len(problems) > 0 {
		return structural(it.ID, problems...)
	}
	return nil
}

func bodyProblems(it Item) []string {
	if it.Body == nil {
		return []string{fmt.Sprintf("%s item has no %s", it.Type, payloadField(it.Type))}
	}
	var problems []string
	switch b := it.Body.(type) {
	case *MultipleChoice:
		if it.Type != TypeMCQOne && it.Type != TypeMCQMulti {
			return []string{fmt.Sprintf("choices payload on %s item", it.Type)}
		}
		problems = append(problems, structProblems(b)...)
		correct := len(b.CorrectIndexes())
		if it.Type == TypeMCQOne && correct != 1 {
			problems = append(problems, fmt.Sprintf("choices: mcq_one needs exactly one correct choice, has %d", correct))
		}
		if it.Type == TypeMCQMulti && correct < 1 {
			problems = append(problems, "choices: mcq_multi needs at least one correct choice")
		}
	case *TrueFalse:
		if it.Type != TypeTrueFalse {
			return []string{fmt.Sprintf("boolean answer on %s item", it.Type)}
		}
	case *Numeric:
		if it.Type != TypeNumeric {
			return []string{fmt.Sprintf("numeric answer on %s item", it.Type)}
		}
		problems = append(problems, structProblems(b)...)
		if !finite(b.Answer) {
			problems = append(problems, "answer: must be a finite number")
		}
		if b.Tolerance != nil && !finite(*b.Tolerance) {
			problems = append(problems, "tolerance: must be a finite number")
		}
	case *ShortAnswer:
		if it.Type != TypeShortAnswer {
			return []string{fmt.Sprintf("answers payload on %s item", it.Type)}
		}
		problems = append(problems, structProblems(b)...)
	}
	return problems
}

func payloadField(t ItemType) string {
	switch t {
	case TypeMCQOne, TypeMCQMulti:
		return "choices"
	case TypeShortAnswer:
		return "answers"
	default:
		return "answer"
	}
}

func structProblems(s any) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	path = strings.ToLower(path[:1]) + path[1:]
	switch fe.Tag() {
	case "required":
		return path + ": required"
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", path, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s: needs at least %s entries", path, fe.Param())
		}
		return fmt.Sprintf("%s: must be >= %s", path, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: must be >= %s", path, fe.Param())
	case "lte":
		return fmt.Sprintf("%s: must be <= %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", path, fe.Tag())
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
