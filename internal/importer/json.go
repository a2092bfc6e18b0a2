package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/quizbank/internal/model"
)

// ParseJSON reads a single item object or a list of them. Keys the document
// leaves out are filled from the options before decoding.
func ParseJSON(_ context.Context, src []byte, opts Options) ([]model.Item, error) {
	src = bytes.TrimSpace(bytes.TrimPrefix(src, utf8BOM))
	var raws []json.RawMessage
	if bytes.HasPrefix(src, []byte("[")) {
		if err := json.Unmarshal(src, &raws); err != nil {
			return nil, fmt.Errorf("decode json list: %w", err)
		}
	} else {
		raws = []json.RawMessage{src}
	}

	var items []model.Item
	for n, raw := range raws {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			continue
		}
		defaults := opts.base(model.TypeMCQOne, "")
		setDefault(fields, "version", defaults.Version)
		setDefault(fields, "type", defaults.Type)
		setDefault(fields, "topic", defaults.Topic)
		setDefault(fields, "tags", defaults.Tags)
		setDefault(fields, "stem", "")
		if defaults.Points > 0 {
			setDefault(fields, "points", defaults.Points)
		}
		if defaults.Difficulty != "" {
			setDefault(fields, "difficulty", defaults.Difficulty)
		}
		if defaults.Author != "" {
			setDefault(fields, "author", defaults.Author)
		}
		if defaults.License != "" {
			setDefault(fields, "license", defaults.License)
		}
		if opts.ShuffleChoices != nil {
			setDefault(fields, "shuffle_choices", *opts.ShuffleChoices)
		}

		doc, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", n+1, err)
		}
		var it model.Item
		if err := json.Unmarshal(doc, &it); err != nil {
			return nil, fmt.Errorf("item %d: %w", n+1, err)
		}
		it.Tags = CoerceTags(it.Tags)
		items = append(items, it)
	}
	return items, nil
}

func setDefault(fields map[string]json.RawMessage, key string, v any) {
	if cur, ok := fields[key]; ok && string(cur) != "null" {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fields[key] = b
}
