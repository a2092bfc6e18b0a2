// Package importer converts external quiz formats into canonical items.
package importer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/render"
)

// DefaultTopic is used when neither the source nor the options name a topic.
const DefaultTopic = "Imported"

// Options are the import settings shared by every format.
type Options struct {
	DefaultPoints int
	Topic         string
	Difficulty    model.Difficulty
	Tags          []string
	Author        string
	License       string
	// ShuffleChoices is copied onto multiple-choice items only when set.
	ShuffleChoices *bool
	// CSVColumnMap maps logical column names to header names in the file.
	CSVColumnMap map[string]string
}

func (o Options) topic() string {
	if o.Topic == "" {
		return DefaultTopic
	}
	return o.Topic
}

// IDPrefix is the default id prefix for items imported with these options:
// the slug of the topic.
func (o Options) IDPrefix() string {
	return Slugify(o.topic(), 20)
}

// base returns an item carrying the option-derived fields.
func (o Options) base(t model.ItemType, stem string) model.Item {
	return model.Item{
		Version:    1,
		Type:       t,
		Points:     o.DefaultPoints,
		Topic:      o.topic(),
		Difficulty: o.Difficulty,
		Tags:       CoerceTags(o.Tags),
		Stem:       stem,
		Author:     o.Author,
		License:    o.License,
	}
}

func (o Options) shuffle() *bool {
	if o.ShuffleChoices == nil {
		return nil
	}
	return model.Bool(*o.ShuffleChoices)
}

// ErrUnknownFormat is returned for a format name nothing is registered under.
var ErrUnknownFormat = errors.New("unknown format")

// Func converts one source document into items.
type Func func(ctx context.Context, src []byte, opts Options) ([]model.Item, error)

// Registry is the table of available import formats.
type Registry struct {
	formats map[string]Func
}

// NewRegistry returns a registry with every built-in format. conv is used by
// formats whose source text is HTML.
func NewRegistry(conv render.Converter) *Registry {
	r := &Registry{formats: make(map[string]Func)}
	r.Register("gift", ParseGIFT)
	r.Register("aiken", ParseAiken)
	r.Register("csv", ParseCSV)
	r.Register("json", ParseJSON)
	r.Register("moodlexml", MoodleXML(conv))
	return r
}

// Register adds or replaces a format.
func (r *Registry) Register(name string, fn Func) {
	r.formats[strings.ToLower(name)] = fn
}

// Lookup returns the importer for name.
func (r *Registry) Lookup(name string) (Func, error) {
	fn, ok := r.formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownFormat, name, strings.Join(r.Names(), ", "))
	}
	return fn, nil
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.formats))
	for n := range r.formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Import runs the named importer.
func (r *Registry) Import(ctx context.Context, format string, src []byte, opts Options) ([]model.Item, error) {
	fn, err := r.Lookup(format)
	if err != nil {
		return nil, err
	}
	items, err := fn(ctx, src, opts)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", format, err)
	}
	return items, nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9\-]+`)
	tagSeparators = regexp.MustCompile(`[,\s]+`)
)

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lower-cases s, folds accents, joins words with dashes and drops
// everything outside [a-z0-9-]. An empty result becomes "item".
func Slugify(s string, maxLen int) string {
	folded, _, err := transform.String(stripMarks, s)
	if err == nil {
		s = folded
	}
	s = whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	if s == "" {
		return "item"
	}
	return s
}

// CoerceTags slugifies every tag and drops blank ones. The result is never nil.
func CoerceTags(raw []string) []string {
	tags := []string{}
	for _, t := range raw {
		if strings.TrimSpace(t) == "" {
			continue
		}
		tags = append(tags, Slugify(t, 50))
	}
	return tags
}

// ParseTagList splits a comma or whitespace separated tag string.
func ParseTagList(s string) []string {
	return CoerceTags(tagSeparators.Split(s, -1))
}

// parseFinite parses a decimal number, rejecting NaN and infinities.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
