// Package views holds the HTML components of the preview server.
package views

//go:generate templ generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
)

type basePathKey struct{}

// WithBasePath stores the URL prefix links are built under.
func WithBasePath(ctx context.Context, p string) context.Context {
	return context.WithValue(ctx, basePathKey{}, p)
}

func link(ctx context.Context, path string) string {
	p, _ := ctx.Value(basePathKey{}).(string)
	return p + path
}

// Filter is the list page query.
type Filter struct {
	Topic      string
	Difficulty string
	Tag        string
}

// Choice is one rendered option of a previewed item.
type Choice struct {
	Letter string
	HTML   string
}

// Preview is an item with its markup rendered to HTML.
type Preview struct {
	Item     model.Item
	Stem     string
	Choices  []Choice
	Solution string
	Answer   string
}

var difficulties = []string{
	string(model.DifficultyEasy),
	string(model.DifficultyMedium),
	string(model.DifficultyHard),
}

func inputType(it model.Item) string {
	if it.Type == model.TypeMCQMulti {
		return "checkbox"
	}
	return "radio"
}

func metaLine(it model.Item) string {
	s := fmt.Sprintf("%s · %s · %s", it.Type, it.Topic, it.Difficulty)
	if len(it.Tags) > 0 {
		s += " · " + strings.Join(it.Tags, ", ")
	}
	return s
}

func scoreText(score float64, points int) string {
	return fmt.Sprintf("%g / %d", score, points)
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
