package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	appI18n "github.com/pavelanni/quizbank/internal/i18n"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

func sampleItems() []model.Item {
	return []model.Item{
		{ID: "geo.001", Type: model.TypeMCQOne, Points: 2, Stem: "Capital of **France**?", Solution: "Because.",
			Body: &model.MultipleChoice{Choices: []model.Choice{{Text: "Paris", Correct: true}, {Text: "Lyon"}}}},
		{ID: "geo.002", Type: model.TypeMCQMulti, Points: 1, Stem: "Rivers?",
			Body: &model.MultipleChoice{Choices: []model.Choice{{Text: "Seine", Correct: true}, {Text: "Alps"}, {Text: "Loire", Correct: true}}}},
		{ID: "geo.003", Type: model.TypeTrueFalse, Points: 1, Stem: "Paris is in France.", Body: &model.TrueFalse{Answer: true}},
		{ID: "phy.001", Type: model.TypeNumeric, Points: 1, Stem: "g?",
			Body: &model.Numeric{Answer: 9.81, Tolerance: model.Float64(0.05), Unit: "m/s^2"}},
		{ID: "bio.001", Type: model.TypeShortAnswer, Points: 1, Stem: "Name the animal.",
			Body: &model.ShortAnswer{Answers: []model.AcceptedAnswer{
				{Text: "cat"}, {Text: "fel.*", Regex: true}, {Text: "kitty"}, {Text: "puss"},
			}}},
	}
}

func renderDoc(t *testing.T, ctx context.Context, conv render.Converter, f Format, items []model.Item) string {
	t.Helper()
	asm := &model.QuizAssembly{ID: "quiz-1", Title: "Week <1>", Instructions: "Answer all."}
	res, err := New(conv).Render(ctx, f, asm, items)
	if err != nil {
		t.Fatalf("Render(%s): %v", f, err)
	}
	if res.Items != len(items) || len(res.Skipped) != 0 {
		t.Fatalf("Render(%s): %d items, %d skipped", f, res.Items, len(res.Skipped))
	}
	return string(res.Data)
}

func TestMarkdown(t *testing.T) {
	out := renderDoc(t, context.Background(), render.Passthrough{}, Markdown, sampleItems())
	for _, want := range []string{
		"# Week &lt;1&gt;\n\nAnswer all.\n\n### 1. (2 pts)\n\nCapital of **France**?\n\n- A. Paris\n- B. Lyon\n\n_Select one answer._\n",
		"_Select all that apply._",
		"### 3. (1 pt)\n\nParis is in France.\n\n- A. True\n- B. False\n\n### 4.",
		"_Enter a number in m/s^2._",
		"_Write a short answer._",
		"---\n\n## Answer key\n\n1. **A**\n    - Because.\n2. **A, C**\n3. **True**\n",
		"4. **9.81 ±0.05 m/s^2**\n",
		"5. **cat; /fel.*/; kitty ...**\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestLaTeX(t *testing.T) {
	out := renderDoc(t, context.Background(), render.Passthrough{}, LaTeX, sampleItems()[:2])
	for _, want := range []string{
		`\documentclass[11pt]{article}`,
		`\noindent\textbf{1. (2 pts)}`,
		"\\begin{enumerate}[label=\\Alph*.]\n\\item Paris\n\\item Lyon\n\\end{enumerate}",
		`\emph{Select one answer.}`,
		`\section*{Answer key}`,
		"\\item \\textbf{A}\n\\begin{itemize}\n\\item \\textit{Solution:} Because.\n\\end{itemize}",
		`\item \textbf{A, C}`,
		`\end{document}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("latex output missing %q:\n%s", want, out)
		}
	}
}

func TestTypst(t *testing.T) {
	items := sampleItems()[:1]
	items[0].Stem = "Capital of **France** {city}?"
	out := renderDoc(t, context.Background(), render.Passthrough{}, Typst, items)
	for _, want := range []string{
		"#set page(margin: 1in)\n\n= Week <1>",
		"=== 1. (2 pts)\nCapital of *France* \\{city\\}?\n",
		"== Answer key\n\n1. *A*\n    - Because.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("typst output missing %q:\n%s", want, out)
		}
	}
}

func TestLocalizedLabels(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	ctx := appI18n.WithLang(context.Background(), "ru")
	out := renderDoc(t, ctx, render.Passthrough{}, Markdown, sampleItems()[:3])
	for _, want := range []string{"(2 балла)", "(1 балл)", "## Ответы", "3. **Верно**", "- A. Верно"} {
		if !strings.Contains(out, want) {
			t.Errorf("russian output missing %q:\n%s", want, out)
		}
	}
}

type failOn struct{ text string }

func (f failOn) Convert(_ context.Context, text string, to render.Format) (string, error) {
	if strings.Contains(text, f.text) {
		return "", &render.Error{Format: to, Err: render.ErrUnavailable}
	}
	return text, nil
}

func TestRenderFailureSkipsItem(t *testing.T) {
	asm := &model.QuizAssembly{Title: "T"}
	res, err := New(failOn{text: "Rivers"}).Render(context.Background(), LaTeX, asm, sampleItems())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Items != 4 || len(res.Skipped) != 1 || res.Skipped[0].ItemID != "geo.002" {
		t.Fatalf("got %d items, skipped %+v", res.Items, res.Skipped)
	}
	if !errors.Is(res.Skipped[0], render.ErrUnavailable) {
		t.Errorf("skip reason = %v", res.Skipped[0].Reason)
	}
	// Numbering stays consecutive after a skip.
	if !strings.Contains(string(res.Data), `\noindent\textbf{2. (1 pt)}`+"\n\nParis is in France.") {
		t.Errorf("question numbering not consecutive:\n%s", res.Data)
	}

	_, err = New(failOn{text: "?"}).Render(context.Background(), LaTeX, asm, sampleItems()[:2])
	if !errors.Is(err, model.ErrExhausted) {
		t.Errorf("Render = %v, want ErrExhausted", err)
	}
}

func TestAnswerSummary(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		item model.Item
		want string
	}{
		{"no correct choice", model.Item{Type: model.TypeMCQOne,
			Body: &model.MultipleChoice{Choices: []model.Choice{{Text: "a"}, {Text: "b"}}}}, "?"},
		{"false", model.Item{Type: model.TypeTrueFalse, Body: &model.TrueFalse{}}, "False"},
		{"exact numeric", model.Item{Type: model.TypeNumeric, Body: &model.Numeric{Answer: 42}}, "42"},
		{"zero tolerance shown", model.Item{Type: model.TypeNumeric,
			Body: &model.Numeric{Answer: 1.5, Tolerance: model.Float64(0)}}, "1.5 ±0"},
		{"three answers", model.Item{Type: model.TypeShortAnswer, Body: &model.ShortAnswer{
			Answers: []model.AcceptedAnswer{{Text: "a"}, {Text: "b"}, {Text: "c"}}}}, "a; b; c"},
		{"no body", model.Item{Type: model.TypeNumeric}, "?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnswerSummary(ctx, tt.item); got != tt.want {
				t.Errorf("AnswerSummary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"md": Markdown, "Markdown": Markdown, "tex": LaTeX, "typ": Typst} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Error("expected error for unknown format")
	}
	if LaTeX.Ext() != ".tex" || Typst.Ext() != ".typ" || Markdown.Ext() != ".md" {
		t.Error("unexpected extensions")
	}
}
