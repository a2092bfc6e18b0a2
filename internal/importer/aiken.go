package importer

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
)

var (
	aikenChoice = regexp.MustCompile(`^([A-Z])[.)]\s+(.+)$`)
	aikenAnswer = regexp.MustCompile(`(?i)^ANSWER\s*:\s*([A-Z])\s*$`)
)

// ParseAiken parses the Aiken format: a question line, lettered choice lines
// and an "ANSWER: X" line. Blocks without a usable answer line are skipped.
func ParseAiken(_ context.Context, src []byte, opts Options) ([]model.Item, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var items []model.Item
	i := 0
	for i < len(lines) {
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}
		start := i + 1
		stem := strings.TrimSpace(lines[i])
		i++

		var choices []model.Choice
		for i < len(lines) {
			m := aikenChoice.FindStringSubmatch(strings.TrimSpace(lines[i]))
			if m == nil {
				break
			}
			choices = append(choices, model.Choice{Text: strings.TrimSpace(m[2])})
			i++
		}

		var m []string
		if i < len(lines) {
			m = aikenAnswer.FindStringSubmatch(strings.TrimSpace(lines[i]))
		}
		if m == nil {
			slog.Warn("skipping Aiken block", "line", start, "reason", "missing ANSWER line")
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
				i++
			}
			continue
		}
		i++

		idx := int(strings.ToUpper(m[1])[0] - 'A')
		if idx >= len(choices) {
			slog.Warn("skipping Aiken block", "line", start, "reason", "answer "+m[1]+" has no matching choice")
			continue
		}
		choices[idx].Correct = true

		it := opts.base(model.TypeMCQOne, stem)
		it.Body = &model.MultipleChoice{Choices: choices, Shuffle: opts.shuffle()}
		items = append(items, it)
	}
	return items, nil
}
