package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type countingConverter struct {
	calls int
	fail  bool
}

func (c *countingConverter) Convert(_ context.Context, text string, to Format) (string, error) {
	c.calls++
	if c.fail {
		return "", &Error{Format: to, Err: errors.New("boom")}
	}
	return fmt.Sprintf("%s:%s", to, text), nil
}

func TestCacheMemoizes(t *testing.T) {
	next := &countingConverter{}
	c := NewCache(next, "opts", 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := c.Convert(ctx, "**x**", HTML)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		if out != "html:**x**" {
			t.Errorf("unexpected output %q", out)
		}
	}
	if next.calls != 1 {
		t.Errorf("expected 1 underlying call, got %d", next.calls)
	}

	// Same text, different format is a distinct key.
	if _, err := c.Convert(ctx, "**x**", LaTeX); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("expected 2 underlying calls, got %d", next.calls)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	next := &countingConverter{}
	c := NewCache(next, "", 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		if _, err := c.Convert(ctx, s, HTML); err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	// "a" was evicted, so it costs another call.
	if _, err := c.Convert(ctx, "a", HTML); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if next.calls != 4 {
		t.Errorf("expected 4 calls, got %d", next.calls)
	}
	// "c" is still cached.
	if _, err := c.Convert(ctx, "c", HTML); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if next.calls != 4 {
		t.Errorf("expected cached hit for c, calls = %d", next.calls)
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d", c.Len())
	}
}

func TestCacheKeepsRecentlyUsed(t *testing.T) {
	next := &countingConverter{}
	c := NewCache(next, "", 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "a", "c"} {
		if _, err := c.Convert(ctx, s, HTML); err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	// The hit on "a" made "b" the oldest entry.
	if _, err := c.Convert(ctx, "a", HTML); err != nil {
		t.Fatal(err)
	}
	if next.calls != 3 {
		t.Errorf("expected a to stay cached, calls = %d", next.calls)
	}
	if _, err := c.Convert(ctx, "b", HTML); err != nil {
		t.Fatal(err)
	}
	if next.calls != 4 {
		t.Errorf("expected b to be evicted, calls = %d", next.calls)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	next := &countingConverter{fail: true}
	c := NewCache(next, "", 2)
	for i := 0; i < 2; i++ {
		_, err := c.Convert(context.Background(), "x", HTML)
		var rerr *Error
		if !errors.As(err, &rerr) {
			t.Fatalf("expected *Error, got %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("expected failures to be retried, calls = %d", next.calls)
	}
}

func TestPandocMissingBinary(t *testing.T) {
	p := &Pandoc{Binary: "definitely-not-a-pandoc-binary"}
	_, err := p.Convert(context.Background(), "x", HTML)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Format != HTML {
		t.Errorf("expected *Error for html, got %v", err)
	}

	// HTML to markup falls back to stripping tags.
	out, err := p.Convert(context.Background(), "<p>Hello <b>world</b></p>", Markdown)
	if err != nil {
		t.Fatalf("Convert markdown: %v", err)
	}
	if out != "Hello world" {
		t.Errorf("got %q", out)
	}
}

func TestToTypst(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"**bold** and __also__", "*bold* and *also*"},
		{"set {a, b}\n\n", `set \{a, b\}`},
		{"_emph_ `code`", "_emph_ `code`"},
	}
	for _, tt := range tests {
		if got := ToTypst(tt.in); got != tt.want {
			t.Errorf("ToTypst(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPassthrough(t *testing.T) {
	out, _ := Passthrough{}.Convert(context.Background(), "x", HTML)
	if out != "<p>x</p>" {
		t.Errorf("got %q", out)
	}
	out, _ = Passthrough{}.Convert(context.Background(), "  ", HTML)
	if out != "" {
		t.Errorf("expected empty html for blank input, got %q", out)
	}
}
