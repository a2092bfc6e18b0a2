package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
)

var (
	errNoBody        = errors.New("no answer section")
	errNoAnswers     = errors.New("no accepted answers")
	errNoChoices     = errors.New("no choices")
	giftTrueFalse    = regexp.MustCompile(`(?i)^(t|true|f|false)[.!]?$`)
	giftPartialScore = regexp.MustCompile(`^%(-?\d+(?:\.\d+)?)%\s*`)
	giftFormatTag    = regexp.MustCompile(`^\[(html|moodle|plain|markdown)\]\s*`)
)

// ParseGIFT parses GIFT text. Blocks that do not form a recognizable
// question are skipped and logged; they never produce partial items.
func ParseGIFT(_ context.Context, src []byte, opts Options) ([]model.Item, error) {
	text := stripGIFTComments(string(src))
	var items []model.Item
	for n, block := range splitGIFTBlocks(text) {
		it, err := parseGIFTBlock(block, opts)
		if err != nil {
			slog.Warn("skipping GIFT block", "block", n+1, "reason", err, "text", abbreviate(block, 60))
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func stripGIFTComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "//") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// splitGIFTBlocks returns, in source order, every run of text from its first
// non-blank character through the closing brace that brings the depth back
// to zero. Escaped braces do not count, a stray closing brace at depth zero
// is ordinary text, and an unterminated trailing region is dropped.
func splitGIFTBlocks(text string) []string {
	var blocks []string
	depth, start := 0, -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
				continue
			}
			start = i
		}
		switch {
		case c == '\\':
			i++
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
			if depth == 0 {
				blocks = append(blocks, text[start:i+1])
				start = -1
			}
		}
	}
	return blocks
}

func parseGIFTBlock(block string, opts Options) (model.Item, error) {
	open := indexUnescaped(block, '{')
	if open < 0 || !strings.HasSuffix(block, "}") {
		return model.Item{}, errNoBody
	}
	title, stem := splitGIFTTitle(strings.TrimSpace(block[:open]))
	body := strings.TrimSpace(block[open+1 : len(block)-1])

	if opts.Topic == "" && title != "" {
		opts.Topic = title
	}

	if it, ok := giftTrueFalseItem(body, stem, opts); ok {
		return it, nil
	}
	if strings.HasPrefix(body, "#") {
		return giftNumericItem(body, stem, opts)
	}

	segments := splitTopLevel(body, '~')
	if allPrefixed(segments, "=") {
		return giftShortAnswerItem(segments, stem, opts)
	}
	return giftChoiceItem(segments, stem, opts)
}

func splitGIFTTitle(s string) (title, stem string) {
	if strings.HasPrefix(s, "::") {
		if end := strings.Index(s[2:], "::"); end >= 0 {
			title = strings.TrimSpace(s[2 : 2+end])
			s = strings.TrimSpace(s[2+end+2:])
		}
	}
	s = giftFormatTag.ReplaceAllString(s, "")
	return unescapeGIFT(title), unescapeGIFT(s)
}

func giftTrueFalseItem(body, stem string, opts Options) (model.Item, bool) {
	token := strings.TrimSpace(cutUnescaped(body, '#'))
	if !giftTrueFalse.MatchString(token) {
		return model.Item{}, false
	}
	it := opts.base(model.TypeTrueFalse, stem)
	it.Body = &model.TrueFalse{Answer: strings.HasPrefix(strings.ToLower(token), "t")}
	return it, true
}

func giftNumericItem(body, stem string, opts Options) (model.Item, error) {
	spec := strings.TrimSpace(body[1:])
	spec = strings.TrimSpace(strings.TrimPrefix(spec, "="))
	// Only the first answer of a multi-answer numeric question is kept.
	if i := indexAnyUnescaped(spec, "=~#"); i >= 0 {
		spec = strings.TrimSpace(spec[:i])
	}

	num := &model.Numeric{}
	if lo, hi, ok := strings.Cut(spec, ".."); ok {
		min, err := parseGIFTNumber(lo)
		if err != nil {
			return model.Item{}, err
		}
		max, err := parseGIFTNumber(hi)
		if err != nil {
			return model.Item{}, err
		}
		if max < min {
			return model.Item{}, fmt.Errorf("numeric range %s has max below min", spec)
		}
		num.Answer = (min + max) / 2
		num.Tolerance = model.Float64((max - min) / 2)
	} else {
		value, tol, hasTol := strings.Cut(spec, ":")
		v, err := parseGIFTNumber(value)
		if err != nil {
			return model.Item{}, err
		}
		num.Answer = v
		if hasTol && strings.TrimSpace(tol) != "" {
			t, err := parseGIFTNumber(tol)
			if err != nil {
				return model.Item{}, err
			}
			if t < 0 {
				return model.Item{}, fmt.Errorf("negative tolerance %v", t)
			}
			num.Tolerance = model.Float64(t)
		}
	}

	it := opts.base(model.TypeNumeric, stem)
	it.Body = num
	return it, nil
}

func parseGIFTNumber(s string) (float64, error) {
	v, ok := parseFinite(s)
	if !ok {
		return 0, fmt.Errorf("malformed number %q", strings.TrimSpace(s))
	}
	return v, nil
}

func giftShortAnswerItem(segments []string, stem string, opts Options) (model.Item, error) {
	var answers []model.AcceptedAnswer
	for _, seg := range segments {
		for _, part := range splitTopLevel(strings.TrimSpace(seg), '=') {
			txt := strings.TrimSpace(unescapeGIFT(cutUnescaped(part, '#')))
			if txt == "" {
				continue
			}
			answers = append(answers, model.AcceptedAnswer{Text: txt, CaseSensitive: false})
		}
	}
	if len(answers) == 0 {
		return model.Item{}, errNoAnswers
	}
	it := opts.base(model.TypeShortAnswer, stem)
	it.Body = &model.ShortAnswer{Answers: answers}
	return it, nil
}

func giftChoiceItem(segments []string, stem string, opts Options) (model.Item, error) {
	var choices []model.Choice
	correct := 0
	for _, seg := range segments {
		tok := strings.TrimSpace(cutUnescaped(seg, '#'))
		if tok == "" {
			continue
		}
		var c model.Choice
		switch {
		case strings.HasPrefix(tok, "="):
			c = model.Choice{Text: tok[1:], Correct: true}
		case giftPartialScore.MatchString(tok):
			m := giftPartialScore.FindStringSubmatchIndex(tok)
			w, err := strconv.ParseFloat(tok[m[2]:m[3]], 64)
			if err != nil {
				return model.Item{}, fmt.Errorf("malformed weight in %q", tok)
			}
			c = model.Choice{Text: tok[m[1]:], Weight: model.Float64(w), Correct: w == 100}
		default:
			c = model.Choice{Text: tok}
		}
		c.Text = strings.TrimSpace(unescapeGIFT(c.Text))
		if c.Text == "" {
			continue
		}
		if c.Correct {
			correct++
		}
		choices = append(choices, c)
	}
	if len(choices) == 0 {
		return model.Item{}, errNoChoices
	}

	t := model.TypeMCQOne
	if correct > 1 {
		t = model.TypeMCQMulti
	}
	it := opts.base(t, stem)
	it.Body = &model.MultipleChoice{Choices: choices, Shuffle: opts.shuffle()}
	return it, nil
}

func allPrefixed(segments []string, prefix string) bool {
	n := 0
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, prefix) {
			return false
		}
		n++
	}
	return n > 0
}

// splitTopLevel splits s on sep where sep is neither escaped nor nested in braces.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			i++
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		case c == sep && depth == 0:
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	return append(out, s[last:])
}

func indexUnescaped(s string, c byte) int {
	return indexAnyUnescaped(s, string(c))
}

func indexAnyUnescaped(s, chars string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if strings.IndexByte(chars, s[i]) >= 0 {
			return i
		}
	}
	return -1
}

// cutUnescaped returns s up to the first unescaped c.
func cutUnescaped(s string, c byte) string {
	if i := indexUnescaped(s, c); i >= 0 {
		return s[:i]
	}
	return s
}

var giftUnescaper = strings.NewReplacer(
	`\~`, "~", `\=`, "=", `\#`, "#", `\{`, "{", `\}`, "}", `\:`, ":", `\n`, "\n", `\\`, `\`,
)

func unescapeGIFT(s string) string {
	return giftUnescaper.Replace(s)
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
