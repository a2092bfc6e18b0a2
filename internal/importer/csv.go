package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
)

var (
	utf8BOM        = []byte{0xEF, 0xBB, 0xBF}
	letterSplitter = regexp.MustCompile(`[,;\s]+`)
	csvChoiceCols  = []string{"choiceA", "choiceB", "choiceC", "choiceD", "choiceE"}
)

// csvRow resolves logical column names through the column map.
type csvRow struct {
	header map[string]int
	colMap map[string]string
	fields []string
}

func (r csvRow) get(key string) string {
	name := key
	if mapped, ok := r.colMap[key]; ok {
		name = mapped
	}
	i, ok := r.header[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// ParseCSV parses a header-driven CSV file. Logical column names can be
// remapped with Options.CSVColumnMap. Rows without a stem are ignored.
func ParseCSV(_ context.Context, src []byte, opts Options) ([]model.Item, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(src, utf8BOM)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header := make(map[string]int, len(head))
	for i, h := range head {
		header[strings.TrimSpace(h)] = i
	}

	var items []model.Item
	for rowNum := 2; ; rowNum++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}
		row := csvRow{header: header, colMap: opts.CSVColumnMap, fields: fields}
		if row.get("stem") == "" {
			continue
		}
		it, err := csvItem(row, opts)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", rowNum, err)
		}
		if it == nil {
			slog.Warn("skipping csv row", "row", rowNum, "type", row.get("type"))
			continue
		}
		items = append(items, *it)
	}
	return items, nil
}

func csvItem(row csvRow, opts Options) (*model.Item, error) {
	t := model.ItemType(strings.ToLower(row.get("type")))
	if t == "" {
		t = model.TypeMCQOne
	}
	if !t.Valid() {
		return nil, nil
	}

	if p := row.get("points"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("points %q is not an integer", p)
		}
		opts.DefaultPoints = n
	}
	if topic := row.get("topic"); topic != "" {
		opts.Topic = topic
	}
	if d := row.get("difficulty"); d != "" {
		opts.Difficulty = model.Difficulty(strings.ToLower(d))
	}
	if tags := row.get("tags"); tags != "" {
		opts.Tags = ParseTagList(tags)
	}

	it := opts.base(t, row.get("stem"))
	it.ID = row.get("id")

	switch t {
	case model.TypeMCQOne, model.TypeMCQMulti:
		correct := map[string]bool{}
		for _, l := range letterSplitter.Split(strings.ToUpper(row.get("correct")), -1) {
			if l != "" {
				correct[l] = true
			}
		}
		var choices []model.Choice
		for i, col := range csvChoiceCols {
			txt := row.get(col)
			if txt == "" {
				continue
			}
			choices = append(choices, model.Choice{Text: txt, Correct: correct[model.Letter(i)]})
		}
		if len(choices) == 0 {
			return nil, nil
		}
		it.Body = &model.MultipleChoice{Choices: choices, Shuffle: opts.shuffle()}
	case model.TypeTrueFalse:
		ans := row.get("answer")
		if ans == "" {
			ans = row.get("correct")
		}
		it.Body = &model.TrueFalse{Answer: toBool(ans)}
	case model.TypeNumeric:
		num := &model.Numeric{Unit: row.get("unit")}
		if a := row.get("answer"); a != "" {
			v, ok := parseFinite(a)
			if !ok {
				return nil, fmt.Errorf("answer %q is not a number", a)
			}
			num.Answer = v
		}
		if tol := row.get("tolerance"); tol != "" {
			v, ok := parseFinite(tol)
			if !ok {
				return nil, fmt.Errorf("tolerance %q is not a number", tol)
			}
			num.Tolerance = model.Float64(v)
		}
		it.Body = num
	case model.TypeShortAnswer:
		answers, err := csvAnswers(row.get("answers"))
		if err != nil {
			return nil, err
		}
		it.Body = &model.ShortAnswer{Answers: answers}
	}

	fc, fi := row.get("feedback_correct"), row.get("feedback_incorrect")
	if fc != "" || fi != "" {
		it.Feedback = &model.Feedback{Correct: fc, Incorrect: fi}
	}
	it.Solution = row.get("solution")
	return &it, nil
}

// csvAnswers decodes the answers column: a JSON list of answer objects or of
// plain strings.
func csvAnswers(raw string) ([]model.AcceptedAnswer, error) {
	if raw == "" {
		return nil, nil
	}
	var answers []model.AcceptedAnswer
	if err := json.Unmarshal([]byte(raw), &answers); err == nil {
		return answers, nil
	}
	var texts []string
	if err := json.Unmarshal([]byte(raw), &texts); err != nil {
		return nil, fmt.Errorf("answers is not a JSON list: %w", err)
	}
	answers = answers[:0]
	for _, t := range texts {
		answers = append(answers, model.AcceptedAnswer{Text: t})
	}
	return answers, nil
}

func toBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
