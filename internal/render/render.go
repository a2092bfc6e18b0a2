// Package render converts authoring markup (GitHub-flavoured Markdown with
// $...$ math) into the formats exporters embed.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// Format is a conversion target.
type Format string

const (
	HTML  Format = "html"
	LaTeX Format = "latex"
	Typst Format = "typst"
	Plain Format = "plain"
	// Markdown is the reverse direction: HTML in, authoring markup out.
	Markdown Format = "markdown"
)

// ErrUnavailable means the external converter could not be run at all.
var ErrUnavailable = errors.New("converter unavailable")

// Error is a failed conversion.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert to %s: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Converter turns markup into the given format.
type Converter interface {
	Convert(ctx context.Context, text string, to Format) (string, error)
}

const sourceDialect = "gfm+tex_math_dollars"

// Pandoc shells out to the pandoc binary.
type Pandoc struct {
	// Binary defaults to "pandoc" on PATH.
	Binary string
	// Math is the HTML math option, "--mathjax" unless set.
	Math string
}

// NewPandoc returns a Pandoc converter using the binary on PATH.
func NewPandoc() *Pandoc {
	return &Pandoc{Binary: "pandoc", Math: "--mathjax"}
}

// Options identifies the converter configuration for cache keys.
func (p *Pandoc) Options() string {
	return p.binary() + " " + p.Math
}

func (p *Pandoc) binary() string {
	if p.Binary == "" {
		return "pandoc"
	}
	return p.Binary
}

// Convert implements Converter.
func (p *Pandoc) Convert(ctx context.Context, text string, to Format) (string, error) {
	switch to {
	case Typst:
		return ToTypst(text), nil
	case Markdown:
		out, err := p.run(ctx, text, "html", sourceDialect, "--wrap=none")
		if errors.Is(err, ErrUnavailable) {
			slog.Debug("pandoc unavailable, stripping tags", "error", err)
			return StripTags(text), nil
		}
		if err != nil {
			return "", &Error{Format: to, Err: err}
		}
		return strings.TrimSpace(out), nil
	case HTML, LaTeX, Plain:
		args := []string{}
		if to == HTML && p.Math != "" {
			args = append(args, p.Math)
		}
		out, err := p.run(ctx, text, sourceDialect, string(to), args...)
		if err != nil {
			return "", &Error{Format: to, Err: err}
		}
		return out, nil
	default:
		return "", &Error{Format: to, Err: errors.New("unsupported target format")}
	}
}

func (p *Pandoc) run(ctx context.Context, text, from, to string, extra ...string) (string, error) {
	bin, err := exec.LookPath(p.binary())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	args := append([]string{"-f", from, "-t", to}, extra...)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pandoc %s->%s: %w: %s", from, to, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Passthrough performs no real conversion. HTML output wraps non-empty text
// in a paragraph; every other format returns the input.
type Passthrough struct{}

// Convert implements Converter.
func (Passthrough) Convert(_ context.Context, text string, to Format) (string, error) {
	switch to {
	case HTML:
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		return "<p>" + text + "</p>", nil
	case Typst:
		return ToTypst(text), nil
	case Markdown:
		return StripTags(text), nil
	default:
		return text, nil
	}
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	trailingSpaceLine = regexp.MustCompile(`[ \t]+\n`)
	mdStrongStar      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdStrongUnderline = regexp.MustCompile(`__(.+?)__`)
)

// StripTags removes HTML tags and trailing whitespace before newlines.
func StripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, "")
	return strings.TrimSpace(trailingSpaceLine.ReplaceAllString(text, "\n"))
}

// ToTypst normalizes markup for Typst: strong emphasis becomes single
// asterisks and braces are escaped. Emphasis and code spans are valid as-is.
func ToTypst(s string) string {
	if s == "" {
		return ""
	}
	s = mdStrongStar.ReplaceAllString(s, "*$1*")
	s = mdStrongUnderline.ReplaceAllString(s, "*$1*")
	s = strings.ReplaceAll(s, "{", `\{`)
	s = strings.ReplaceAll(s, "}", `\}`)
	return strings.TrimRight(s, " \t\n")
}
