// Package qti builds QTI 1.2 assessment packages for Canvas-style LMS import.
package qti

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

var (
	errNoCorrect   = errors.New("no correct choice")
	errNoAnswers   = errors.New("no usable short answers")
	errUnsupported = errors.New("unsupported item body")
)

// Canvas question_type values per item type.
var canvasTypes = map[model.ItemType]string{
	model.TypeMCQOne:      "multiple_choice_question",
	model.TypeMCQMulti:    "multiple_answers_question",
	model.TypeTrueFalse:   "true_false_question",
	model.TypeNumeric:     "numerical_question",
	model.TypeShortAnswer: "short_answer_question",
}

// Builder turns items into QTI items. Markup is rendered to HTML with Conv.
type Builder struct {
	Conv render.Converter
}

// NewBuilder returns a builder rendering through conv.
func NewBuilder(conv render.Converter) *Builder {
	return &Builder{Conv: conv}
}

// Build converts items in order. An item that fails is skipped and recorded
// in the package; the build fails only when nothing survives.
func (b *Builder) Build(ctx context.Context, title string, items []model.Item) (*Package, error) {
	pkg := &Package{Title: title}
	for _, it := range items {
		q, err := b.BuildItem(ctx, it)
		if err != nil {
			slog.Warn("skipping item", "id", it.ID, "reason", err)
			pkg.Skipped = append(pkg.Skipped, &model.SkipError{ItemID: it.ID, Reason: err})
			continue
		}
		pkg.Items = append(pkg.Items, q)
	}
	if len(pkg.Items) == 0 {
		return nil, fmt.Errorf("build qti %q: %d skipped: %w", title, len(pkg.Skipped), model.ErrExhausted)
	}
	if err := pkg.encode(); err != nil {
		return nil, err
	}
	slog.Info("built qti assessment", "title", title, "items", len(pkg.Items), "skipped", len(pkg.Skipped))
	return pkg, nil
}

// BuildItem converts one item. Items without points are scored out of 1.
func (b *Builder) BuildItem(ctx context.Context, it model.Item) (*Item, error) {
	if it.Points <= 0 {
		it.Points = 1
	}
	if err := model.Validate(it); err != nil {
		return nil, err
	}

	r := htmlRenderer{ctx: ctx, conv: b.Conv, id: it.ID}
	stem, err := r.html("stem", it.Stem)
	if err != nil {
		return nil, err
	}
	fb, err := r.feedback(it)
	if err != nil {
		return nil, err
	}

	title := it.Topic
	if title == "" {
		title = it.ID
	}
	points := float64(it.Points)
	q := &Item{
		Ident: it.ID,
		Title: title,
		Metadata: []MetaField{
			{Label: "question_type", Entry: canvasTypes[it.Type]},
			{Label: "points_possible", Entry: formatNumber(points)},
		},
		Presentation: Presentation{Material: htmlMaterial(stem)},
		Resprocessing: Resprocessing{Outcomes: Outcomes{Decvar: Decvar{
			VarName: scoreVar, VarType: "Decimal", MinValue: "0", MaxValue: formatNumber(points),
		}}},
		Feedback: fb.blocks,
	}

	switch body := it.Body.(type) {
	case *model.MultipleChoice:
		err = buildChoice(q, it.Type, body, &r, fb, points)
	case *model.TrueFalse:
		buildTrueFalse(q, body, fb, points)
	case *model.Numeric:
		buildNumeric(q, body, fb, points)
	case *model.ShortAnswer:
		err = buildShortAnswer(q, it.ID, body, fb, points)
	default:
		err = errUnsupported
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

type htmlRenderer struct {
	ctx  context.Context
	conv render.Converter
	id   string
}

func (r *htmlRenderer) html(field, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	out, err := r.conv.Convert(r.ctx, text, render.HTML)
	if err != nil {
		return "", fmt.Errorf("render %s of item %s: %w", field, r.id, err)
	}
	return out, nil
}

// feedbackSet is the rendered itemfeedback blocks and which of them exist.
type feedbackSet struct {
	blocks                      []ItemFeedback
	correct, incorrect, general bool
}

func (r *htmlRenderer) feedback(it model.Item) (feedbackSet, error) {
	var fs feedbackSet
	add := func(ident, field, text string) (bool, error) {
		html, err := r.html(field, text)
		if err != nil || html == "" {
			return false, err
		}
		fs.blocks = append(fs.blocks, ItemFeedback{Ident: ident, View: "All", Material: htmlMaterial(html)})
		return true, nil
	}
	var err error
	if it.Feedback != nil {
		if fs.correct, err = add(fbCorrect, "feedback.correct", it.Feedback.Correct); err != nil {
			return fs, err
		}
		if fs.incorrect, err = add(fbIncorrect, "feedback.incorrect", it.Feedback.Incorrect); err != nil {
			return fs, err
		}
	}
	if fs.general, err = add(fbGeneral, "solution", it.Solution); err != nil {
		return fs, err
	}
	return fs, nil
}

// display returns the feedback links for a branch. The solution block is
// linked from every branch.
func (fs feedbackSet) display(correct bool) []DisplayFeedback {
	var out []DisplayFeedback
	switch {
	case correct && fs.correct:
		out = append(out, DisplayFeedback{FeedbackType: "Response", LinkRefID: fbCorrect})
	case !correct && fs.incorrect:
		out = append(out, DisplayFeedback{FeedbackType: "Response", LinkRefID: fbIncorrect})
	}
	if fs.general {
		out = append(out, DisplayFeedback{FeedbackType: "Solution", LinkRefID: fbGeneral})
	}
	return out
}

func branch(cond Condition, score float64, display []DisplayFeedback) RespCondition {
	return RespCondition{
		Continue: "No",
		Var:      ConditionVar{Conditions: []Condition{cond}},
		SetVar:   SetVar{VarName: scoreVar, Action: "Set", Value: formatNumber(score)},
		Display:  display,
	}
}

// scoreAll adds the full-credit branch for cond and the zero-credit fallback.
func scoreAll(q *Item, cond Condition, fb feedbackSet, points float64) {
	q.Resprocessing.Conditions = append(q.Resprocessing.Conditions,
		branch(cond, points, fb.display(true)),
		branch(other(), 0, fb.display(false)),
	)
}

func buildChoice(q *Item, t model.ItemType, mc *model.MultipleChoice, r *htmlRenderer, fb feedbackSet, points float64) error {
	correct := mc.CorrectIndexes()
	if len(correct) == 0 {
		return errNoCorrect
	}
	shuffle := "Yes"
	if mc.Shuffle != nil && !*mc.Shuffle {
		shuffle = "No"
	}
	card := "Single"
	if t == model.TypeMCQMulti {
		card = "Multiple"
	}

	labels := make([]ResponseLabel, len(mc.Choices))
	for i, c := range mc.Choices {
		html, err := r.html(fmt.Sprintf("choices[%d]", i), c.Text)
		if err != nil {
			return err
		}
		labels[i] = ResponseLabel{Ident: model.Letter(i), Material: htmlMaterial(html)}
	}
	q.Presentation.ResponseLid = &ResponseLid{
		Ident:        responseID,
		Rcardinality: card,
		RenderChoice: RenderChoice{Shuffle: shuffle, Labels: labels},
	}

	if t == model.TypeMCQOne {
		scoreAll(q, varEqual(model.Letter(correct[0])), fb, points)
		return nil
	}
	// Exact set match: every correct letter selected and every other one not.
	conds := make([]Condition, len(mc.Choices))
	for i, c := range mc.Choices {
		if c.Correct {
			conds[i] = varEqual(model.Letter(i))
		} else {
			conds[i] = not(varEqual(model.Letter(i)))
		}
	}
	scoreAll(q, and(conds...), fb, points)
	return nil
}

func buildTrueFalse(q *Item, tf *model.TrueFalse, fb feedbackSet, points float64) {
	q.Presentation.ResponseLid = &ResponseLid{
		Ident:        responseID,
		Rcardinality: "Single",
		RenderChoice: RenderChoice{Shuffle: "No", Labels: []ResponseLabel{
			{Ident: "A", Material: htmlMaterial("True")},
			{Ident: "B", Material: htmlMaterial("False")},
		}},
	}
	want := "B"
	if tf.Answer {
		want = "A"
	}
	scoreAll(q, varEqual(want), fb, points)
}

func buildNumeric(q *Item, num *model.Numeric, fb feedbackSet, points float64) {
	q.Presentation.ResponseStr = &ResponseStr{
		Ident:        responseID,
		Rcardinality: "Single",
		RenderFib:    RenderFib{FibType: "Decimal", Label: FibLabel{Ident: "answer1", RShuffle: "No"}},
	}
	cond := varEqual(formatNumber(num.Answer))
	if num.Tolerance != nil && *num.Tolerance > 0 {
		tol := *num.Tolerance
		cond = and(varGTE(formatNumber(roundBound(num.Answer-tol))), varLTE(formatNumber(roundBound(num.Answer+tol))))
	}
	scoreAll(q, cond, fb, points)
}

func buildShortAnswer(q *Item, id string, sa *model.ShortAnswer, fb feedbackSet, points float64) error {
	answers := usableAnswers(id, sa.Answers)
	if len(answers) == 0 {
		return errNoAnswers
	}
	q.Presentation.ResponseStr = &ResponseStr{
		Ident:        responseID,
		Rcardinality: "Single",
		RenderFib:    RenderFib{FibType: "String", Label: FibLabel{Ident: "answer1", RShuffle: "No"}},
	}
	for _, a := range answers {
		credit := clamp01(a.Credit())
		cond := varEqual(a.Text)
		cond.Case = "No"
		if a.CaseSensitive {
			cond.Case = "Yes"
		}
		q.Resprocessing.Conditions = append(q.Resprocessing.Conditions,
			branch(cond, points*credit, fb.display(credit > 0)))
	}
	q.Resprocessing.Conditions = append(q.Resprocessing.Conditions, branch(other(), 0, fb.display(false)))
	return nil
}

// usableAnswers drops regex answers, falls back to the first answer as a
// literal when nothing is left, orders by descending credit and keeps only
// the first (highest) entry for a repeated text.
func usableAnswers(id string, in []model.AcceptedAnswer) []model.AcceptedAnswer {
	var out []model.AcceptedAnswer
	for _, a := range in {
		if !a.Regex {
			out = append(out, a)
		}
	}
	if len(out) == 0 && len(in) > 0 {
		a := in[0]
		a.Text = stripRegexMarkers(a.Text)
		a.Regex = false
		slog.Warn("short answer has only regex answers, using first as literal", "id", id, "text", a.Text)
		if strings.TrimSpace(a.Text) == "" {
			return nil
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(x, y model.AcceptedAnswer) int {
		return cmp.Compare(y.Credit(), x.Credit())
	})

	seen := make(map[string]bool, len(out))
	kept := out[:0]
	for _, a := range out {
		key := a.Text
		if !a.CaseSensitive {
			key = strings.ToLower(key)
		}
		if seen[key] {
			slog.Warn("duplicate short answer, keeping highest score", "id", id, "text", a.Text)
			continue
		}
		seen[key] = true
		kept = append(kept, a)
	}
	return kept
}

func stripRegexMarkers(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "^")
	s = strings.TrimSuffix(s, "$")
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// roundBound drops floating point noise from a computed range bound.
func roundBound(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// formatNumber writes v in its shortest decimal form: 42, 0.5, 9.99.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
