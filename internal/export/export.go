// Package export renders a resolved quiz as a linear Markdown, LaTeX or
// Typst document followed by an answer key.
package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"text/template"

	appI18n "github.com/pavelanni/quizbank/internal/i18n"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

// Format is a document target.
type Format string

const (
	Markdown Format = "md"
	LaTeX    Format = "latex"
	Typst    Format = "typst"
)

// Formats lists the supported document targets.
var Formats = []Format{Markdown, LaTeX, Typst}

// Ext returns the conventional file extension of the format.
func (f Format) Ext() string {
	switch f {
	case LaTeX:
		return ".tex"
	case Typst:
		return ".typ"
	default:
		return ".md"
	}
}

// ParseFormat maps a name such as "md", "markdown", "tex" or "typ" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return Markdown, nil
	case "latex", "tex":
		return LaTeX, nil
	case "typst", "typ":
		return Typst, nil
	}
	return "", fmt.Errorf("unknown document format %q (known: md, latex, typst)", s)
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Format]*template.Template
)

func load() error {
	loadOnce.Do(func() {
		templates = make(map[Format]*template.Template)
		for f, name := range map[Format]string{
			Markdown: "quiz.md.tmpl",
			LaTeX:    "quiz.tex.tmpl",
			Typst:    "quiz.typ.tmpl",
		} {
			t, err := template.New(name).ParseFS(templateFS, "templates/"+name)
			if err != nil {
				loadErr = fmt.Errorf("parse template %s: %w", name, err)
				return
			}
			templates[f] = t
		}
	})
	return loadErr
}

// Result is a rendered document and the items left out of it.
type Result struct {
	Data    []byte
	Items   int
	Skipped []*model.SkipError
}

// Exporter renders documents. Markup fields go through Conv for LaTeX and
// Typst; Markdown output keeps the authoring markup as is.
type Exporter struct {
	Conv render.Converter
}

// New returns an exporter rendering markup through conv.
func New(conv render.Converter) *Exporter {
	return &Exporter{Conv: conv}
}

type labels struct {
	AnswerKey string
	Solution  string
}

type choiceLine struct {
	Letter string
	Text   string
}

type question struct {
	N        int
	Points   string
	Stem     string
	Choices  []choiceLine
	Hint     string
	Answer   string
	Solution string
}

type document struct {
	Title        string
	Instructions string
	Questions    []question
	Labels       labels
}

// Render builds the document for the resolved items of asm. Labels follow
// the localizer carried by ctx. An item whose markup cannot be converted is
// skipped; rendering fails when no item survives.
func (e *Exporter) Render(ctx context.Context, f Format, asm *model.QuizAssembly, items []model.Item) (*Result, error) {
	if err := load(); err != nil {
		return nil, err
	}
	tmpl, ok := templates[f]
	if !ok {
		return nil, fmt.Errorf("render document: unknown format %q", f)
	}

	conv := e.converter(ctx, f)
	title, err := conv(asm.DisplayTitle())
	if err != nil {
		return nil, fmt.Errorf("render title: %w", err)
	}
	if f == Markdown {
		title = strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(title)
	}
	instructions, err := conv(asm.Instructions)
	if err != nil {
		return nil, fmt.Errorf("render instructions: %w", err)
	}

	doc := document{
		Title:        title,
		Instructions: instructions,
		Labels: labels{
			AnswerKey: appI18n.T(ctx, "AnswerKey"),
			Solution:  appI18n.T(ctx, "Solution"),
		},
	}
	res := &Result{}
	for _, it := range items {
		q, err := e.question(ctx, conv, len(doc.Questions)+1, it)
		if err != nil {
			slog.Warn("skipping item", "id", it.ID, "format", f, "reason", err)
			res.Skipped = append(res.Skipped, &model.SkipError{ItemID: it.ID, Reason: err})
			continue
		}
		doc.Questions = append(doc.Questions, q)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("render %s document: %d skipped: %w", f, len(res.Skipped), model.ErrExhausted)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("execute %s template: %w", f, err)
	}
	res.Data = buf.Bytes()
	res.Items = len(doc.Questions)
	return res, nil
}

type convertFunc func(text string) (string, error)

func (e *Exporter) converter(ctx context.Context, f Format) convertFunc {
	var to render.Format
	switch f {
	case LaTeX:
		to = render.LaTeX
	case Typst:
		to = render.Typst
	default:
		return func(text string) (string, error) {
			return strings.TrimRight(text, " \t\r\n"), nil
		}
	}
	return func(text string) (string, error) {
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		out, err := e.Conv.Convert(ctx, text, to)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(out, " \t\r\n"), nil
	}
}

func (e *Exporter) question(ctx context.Context, conv convertFunc, n int, it model.Item) (question, error) {
	q := question{N: n, Points: appI18n.Tp(ctx, "Points", it.Points)}
	field := func(name, text string) (string, error) {
		out, err := conv(text)
		if err != nil {
			return "", fmt.Errorf("render %s of item %s: %w", name, it.ID, err)
		}
		return out, nil
	}

	var err error
	if q.Stem, err = field("stem", it.Stem); err != nil {
		return q, err
	}
	switch body := it.Body.(type) {
	case *model.MultipleChoice:
		for i, c := range body.Choices {
			text, err := field(fmt.Sprintf("choices[%d]", i), c.Text)
			if err != nil {
				return q, err
			}
			q.Choices = append(q.Choices, choiceLine{Letter: model.Letter(i), Text: text})
		}
		if it.Type == model.TypeMCQMulti {
			q.Hint = appI18n.T(ctx, "SelectAll")
		} else {
			q.Hint = appI18n.T(ctx, "SelectOne")
		}
	case *model.TrueFalse:
		q.Choices = []choiceLine{
			{Letter: "A", Text: appI18n.T(ctx, "True")},
			{Letter: "B", Text: appI18n.T(ctx, "False")},
		}
	case *model.Numeric:
		if body.Unit != "" {
			q.Hint = appI18n.Td(ctx, "NumericHintUnit", map[string]any{"Unit": body.Unit})
		} else {
			q.Hint = appI18n.T(ctx, "NumericHint")
		}
	case *model.ShortAnswer:
		q.Hint = appI18n.T(ctx, "ShortAnswerHint")
	}

	if q.Answer, err = field("answer", AnswerSummary(ctx, it)); err != nil {
		return q, err
	}
	if q.Solution, err = field("solution", strings.TrimSpace(it.Solution)); err != nil {
		return q, err
	}
	return q, nil
}

// maxShownAnswers bounds the accepted answers listed in the answer key.
const maxShownAnswers = 3

// AnswerSummary is the answer-key line of an item: the correct letters, the
// boolean, the value with tolerance and unit, or the first accepted answers.
// Items without a usable answer yield "?".
func AnswerSummary(ctx context.Context, it model.Item) string {
	switch body := it.Body.(type) {
	case *model.MultipleChoice:
		var letters []string
		for _, i := range body.CorrectIndexes() {
			letters = append(letters, model.Letter(i))
		}
		if len(letters) == 0 {
			return "?"
		}
		if it.Type == model.TypeMCQOne {
			return letters[0]
		}
		return strings.Join(letters, ", ")
	case *model.TrueFalse:
		if body.Answer {
			return appI18n.T(ctx, "True")
		}
		return appI18n.T(ctx, "False")
	case *model.Numeric:
		parts := []string{strconv.FormatFloat(body.Answer, 'f', -1, 64)}
		if body.Tolerance != nil {
			parts = append(parts, "±"+strconv.FormatFloat(*body.Tolerance, 'f', -1, 64))
		}
		if body.Unit != "" {
			parts = append(parts, body.Unit)
		}
		return strings.Join(parts, " ")
	case *model.ShortAnswer:
		if len(body.Answers) == 0 {
			return "?"
		}
		var shown []string
		for _, a := range body.Answers[:min(len(body.Answers), maxShownAnswers)] {
			if a.Regex {
				shown = append(shown, "/"+a.Text+"/")
			} else {
				shown = append(shown, a.Text)
			}
		}
		more := ""
		if len(body.Answers) > maxShownAnswers {
			more = " ..."
		}
		return strings.Join(shown, "; ") + more
	}
	return "?"
}
