package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizbank/internal/bank"
	"github.com/pavelanni/quizbank/internal/export"
	"github.com/pavelanni/quizbank/internal/handler/views"
	appI18n "github.com/pavelanni/quizbank/internal/i18n"
	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/qti"
	"github.com/pavelanni/quizbank/internal/render"
	"github.com/pavelanni/quizbank/internal/store"
)

// Config holds the server settings that do not come from the bank.
type Config struct {
	BasePath      string
	Seed          int64
	ImportOptions importer.Options
	MaxBodyBytes  int64
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	bank     *bank.Bank
	registry *importer.Registry
	conv     render.Converter
	scorer   *qti.Builder
	config   Config
}

// New creates a new Handler. conv renders markup for previews and exports;
// scoring builds items without rendering.
func New(s *store.Store, b *bank.Bank, reg *importer.Registry, conv render.Converter, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Handler{
		store:    s,
		bank:     b,
		registry: reg,
		conv:     conv,
		scorer:   qti.NewBuilder(render.Passthrough{}),
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/items/{id}", h.handleItemPage)
	r.Post("/items/{id}/try", h.handleTryAnswer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/formats", h.handleFormats)
		r.Get("/topics", h.handleTopics)
		r.Get("/items", h.handleListItems)
		r.Get("/items/{id}", h.handleGetItem)
		r.Post("/items/{id}/score", h.handleScore)
		r.Post("/import/{format}", h.handleImport)
		r.Post("/qti", h.handleBuildQTI)
		r.Post("/export/{format}", h.handleExport)
	})
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := views.WithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func filterFrom(r *http.Request) views.Filter {
	q := r.URL.Query()
	return views.Filter{
		Topic:      q.Get("topic"),
		Difficulty: q.Get("difficulty"),
		Tag:        q.Get("tag"),
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r)
	rows, err := h.listItems(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	topics, err := h.store.ListDistinctTopics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(rows, topics, f).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) listItems(f views.Filter) ([]store.ItemRow, error) {
	if f.Tag == "" {
		return h.store.ListItemsFiltered(f.Difficulty, f.Topic)
	}
	rows, err := h.store.ListItemsByTag(f.Tag)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, r := range rows {
		if (f.Topic == "" || r.Topic == f.Topic) && (f.Difficulty == "" || string(r.Difficulty) == f.Difficulty) {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (h *Handler) handleItemPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, err := h.bank.Get(id)
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if err := views.NotFoundPage(id).Render(r.Context(), w); err != nil {
			slog.Error("render error", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ItemPage(h.preview(r.Context(), it)).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// preview renders an item's markup to HTML. A field the converter rejects
// is shown as escaped source text.
func (h *Handler) preview(ctx context.Context, it model.Item) views.Preview {
	html := func(field, text string) string {
		if strings.TrimSpace(text) == "" {
			return ""
		}
		out, err := h.conv.Convert(ctx, text, render.HTML)
		if err != nil {
			slog.Warn("preview render failed", "id", it.ID, "field", field, "error", err)
			return "<pre>" + escape(text) + "</pre>"
		}
		return out
	}

	p := views.Preview{
		Item:     it,
		Stem:     html("stem", it.Stem),
		Solution: html("solution", it.Solution),
		Answer:   export.AnswerSummary(ctx, it),
	}
	switch body := it.Body.(type) {
	case *model.MultipleChoice:
		for i, c := range body.Choices {
			p.Choices = append(p.Choices, views.Choice{Letter: model.Letter(i), HTML: html("choice", c.Text)})
		}
	case *model.TrueFalse:
		p.Choices = []views.Choice{
			{Letter: "A", HTML: escape(appI18n.T(ctx, "True"))},
			{Letter: "B", HTML: escape(appI18n.T(ctx, "False"))},
		}
	}
	return p
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;").Replace(s)
}

func (h *Handler) handleTryAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	score, it, err := h.score(r, id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ScoreResult(id, score, it.Points).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// score evaluates the form's response values against the item's QTI
// response processing.
func (h *Handler) score(r *http.Request, id string) (float64, model.Item, error) {
	it, err := h.bank.Get(id)
	if err != nil {
		return 0, it, err
	}
	if err := r.ParseForm(); err != nil {
		return 0, it, &requestError{err}
	}
	q, err := h.scorer.BuildItem(r.Context(), it)
	if err != nil {
		return 0, it, err
	}
	return qti.Evaluate(q, r.Form["response"]...), it, nil
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func statusFor(err error) int {
	var (
		reqErr    *requestError
		structErr *model.StructuralError
	)
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.Is(err, importer.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.As(err, &structErr), errors.Is(err, model.ErrExhausted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
