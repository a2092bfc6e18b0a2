package importer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

type moodleQuiz struct {
	XMLName   xml.Name         `xml:"quiz"`
	Questions []moodleQuestion `xml:"question"`
}

type moodleText struct {
	Format string `xml:"format,attr"`
	Text   string `xml:"text"`
}

type moodleQuestion struct {
	Type            string         `xml:"type,attr"`
	Name            moodleText     `xml:"name"`
	QuestionText    moodleText     `xml:"questiontext"`
	GeneralFeedback moodleText     `xml:"generalfeedback"`
	CorrectFeedback moodleText     `xml:"correctfeedback"`
	IncorrectFb     moodleText     `xml:"incorrectfeedback"`
	DefaultGrade    string         `xml:"defaultgrade"`
	Single          string         `xml:"single"`
	ShuffleAnswers  string         `xml:"shuffleanswers"`
	UseCase         string         `xml:"usecase"`
	Answers         []moodleAnswer `xml:"answer"`
}

type moodleAnswer struct {
	Fraction      string `xml:"fraction,attr"`
	CaseSensitive string `xml:"casesensitive,attr"`
	Text          string `xml:"text"`
	Tolerance     string `xml:"tolerance"`
}

func (a moodleAnswer) fraction(def float64) float64 {
	f, ok := parseFinite(a.Fraction)
	if !ok {
		return def
	}
	return f
}

// MoodleXML returns the importer for Moodle question bank XML. HTML text is
// converted back to authoring markup with conv.
func MoodleXML(conv render.Converter) Func {
	return func(ctx context.Context, src []byte, opts Options) ([]model.Item, error) {
		var quiz moodleQuiz
		dec := xml.NewDecoder(bytes.NewReader(src))
		if err := dec.Decode(&quiz); err != nil {
			return nil, fmt.Errorf("decode moodle xml: %w", err)
		}
		m := moodleImporter{conv: conv}
		var items []model.Item
		for n, q := range quiz.Questions {
			it, err := m.item(ctx, q, opts)
			if err != nil {
				return nil, fmt.Errorf("question %d: %w", n+1, err)
			}
			if it == nil {
				if q.Type != "category" {
					slog.Warn("skipping moodle question", "question", n+1, "type", q.Type)
				}
				continue
			}
			items = append(items, *it)
		}
		return items, nil
	}
}

type moodleImporter struct {
	conv render.Converter
}

func (m moodleImporter) markup(ctx context.Context, html string) (string, error) {
	html = strings.TrimSpace(html)
	if html == "" {
		return "", nil
	}
	out, err := m.conv.Convert(ctx, html, render.Markdown)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (m moodleImporter) item(ctx context.Context, q moodleQuestion, opts Options) (*model.Item, error) {
	stem, err := m.markup(ctx, q.QuestionText.Text)
	if err != nil {
		return nil, fmt.Errorf("convert question text: %w", err)
	}
	if g, ok := parseFinite(q.DefaultGrade); ok && g >= 1 {
		opts.DefaultPoints = int(g)
	}
	if opts.ShuffleChoices == nil && q.ShuffleAnswers != "" {
		opts.ShuffleChoices = model.Bool(toBool(q.ShuffleAnswers))
	}

	var it model.Item
	switch q.Type {
	case "multichoice":
		it, err = m.multichoice(ctx, q, stem, opts)
	case "truefalse":
		it = opts.base(model.TypeTrueFalse, stem)
		answer := false
		for _, a := range q.Answers {
			if a.fraction(0) > 0 {
				answer = strings.EqualFold(strings.TrimSpace(render.StripTags(a.Text)), "true")
				break
			}
		}
		it.Body = &model.TrueFalse{Answer: answer}
	case "shortanswer":
		it = opts.base(model.TypeShortAnswer, stem)
		sa := &model.ShortAnswer{}
		for _, a := range q.Answers {
			txt := strings.TrimSpace(a.Text)
			if txt == "" {
				continue
			}
			cs := a.CaseSensitive
			if cs == "" {
				cs = q.UseCase
			}
			frac := a.fraction(100)
			if frac > 1 {
				frac /= 100
			}
			sa.Answers = append(sa.Answers, model.AcceptedAnswer{
				Text:          txt,
				CaseSensitive: strings.TrimSpace(cs) == "1",
				Score:         model.Float64(frac),
			})
		}
		if len(sa.Answers) == 0 {
			return nil, nil
		}
		it.Body = sa
	case "numerical":
		it = opts.base(model.TypeNumeric, stem)
		var best *model.Numeric
		bestFrac := 0.0
		for _, a := range q.Answers {
			v, ok := parseFinite(a.Text)
			if !ok {
				continue
			}
			frac := a.fraction(100)
			if best != nil && frac <= bestFrac {
				continue
			}
			best, bestFrac = &model.Numeric{Answer: v}, frac
			if tol, ok := parseFinite(a.Tolerance); ok && tol >= 0 {
				best.Tolerance = model.Float64(tol)
			}
		}
		if best == nil {
			return nil, nil
		}
		it.Body = best
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if it.Body == nil {
		return nil, nil
	}

	if it.Solution, err = m.markup(ctx, q.GeneralFeedback.Text); err != nil {
		return nil, fmt.Errorf("convert general feedback: %w", err)
	}
	fc, err := m.markup(ctx, q.CorrectFeedback.Text)
	if err != nil {
		return nil, fmt.Errorf("convert correct feedback: %w", err)
	}
	fi, err := m.markup(ctx, q.IncorrectFb.Text)
	if err != nil {
		return nil, fmt.Errorf("convert incorrect feedback: %w", err)
	}
	if fc != "" || fi != "" {
		it.Feedback = &model.Feedback{Correct: fc, Incorrect: fi}
	}
	return &it, nil
}

// multichoice maps answer fractions onto choices. A single-answer question
// marks only its highest-fraction answer correct; lower positive fractions
// are kept as weights.
func (m moodleImporter) multichoice(ctx context.Context, q moodleQuestion, stem string, opts Options) (model.Item, error) {
	single := strings.EqualFold(strings.TrimSpace(q.Single), "true")
	var choices []model.Choice
	best, correct := 0.0, 0
	for _, a := range q.Answers {
		txt, err := m.markup(ctx, a.Text)
		if err != nil {
			return model.Item{}, fmt.Errorf("convert answer text: %w", err)
		}
		if txt == "" {
			continue
		}
		frac := a.fraction(0)
		c := model.Choice{Text: txt, Correct: frac > 0}
		if frac > 0 && frac < 100 {
			c.Weight = model.Float64(frac)
		}
		if frac > best {
			best = frac
		}
		choices = append(choices, c)
	}
	if len(choices) == 0 {
		return model.Item{}, nil
	}

	if single {
		for i := range choices {
			w := 100.0
			if choices[i].Weight != nil {
				w = *choices[i].Weight
			}
			choices[i].Correct = choices[i].Correct && w == best && correct == 0
			if choices[i].Correct {
				correct++
			}
		}
	} else {
		for _, c := range choices {
			if c.Correct {
				correct++
			}
		}
	}

	t := model.TypeMCQOne
	if !single && correct > 1 {
		t = model.TypeMCQMulti
	}
	it := opts.base(t, stem)
	it.Body = &model.MultipleChoice{Choices: choices, Shuffle: opts.shuffle()}
	return it, nil
}
