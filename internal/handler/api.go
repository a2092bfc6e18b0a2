package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizbank/internal/bank"
	"github.com/pavelanni/quizbank/internal/export"
	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/qti"
	"github.com/pavelanni/quizbank/internal/quiz"
)

// SkippedHeader carries the number of items left out of a built document.
const SkippedHeader = "X-Quizbank-Skipped"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type itemSummary struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Points     int      `json:"points"`
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty"`
	Tags       []string `json:"tags"`
	Stem       string   `json:"stem"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	rows, err := h.listItems(filterFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]itemSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, itemSummary{
			ID:         row.ID,
			Type:       string(row.Type),
			Points:     row.Points,
			Topic:      row.Topic,
			Difficulty: string(row.Difficulty),
			Tags:       row.Tags,
			Stem:       row.Stem,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.bank.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"import": h.registry.Names(),
		"export": append([]export.Format{"qti"}, export.Formats...),
	})
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	sum, err := h.store.Summarize()
	if err != nil {
		writeError(w, err)
		return
	}
	type topic struct {
		Topic  string         `json:"topic"`
		Items  int            `json:"items"`
		Points int            `json:"points"`
		ByType map[string]int `json:"by_type"`
	}
	out := make([]topic, 0, len(sum))
	for _, s := range sum {
		t := topic{Topic: s.Topic, Items: s.Total, Points: s.Points, ByType: map[string]int{}}
		for k, v := range s.ByType {
			t.ByType[string(k)] = v
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	score, it, err := h.score(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "score": score, "points": it.Points})
}

// readSource returns the uploaded document: the "source" file of a
// multipart form, or the raw request body.
func (h *Handler) readSource(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.config.MaxBodyBytes); err != nil {
			return nil, "", &requestError{fmt.Errorf("parse upload: %w", err)}
		}
		file, header, err := r.FormFile("source")
		if err != nil {
			return nil, "", &requestError{fmt.Errorf("no source file uploaded: %w", err)}
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", &requestError{fmt.Errorf("read upload: %w", err)}
		}
		return data, header.Filename, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", &requestError{fmt.Errorf("read body: %w", err)}
	}
	return data, "", nil
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	data, filename, err := h.readSource(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	opts := h.config.ImportOptions
	if v := q.Get("topic"); v != "" {
		opts.Topic = v
	}
	if v := q.Get("tags"); v != "" {
		opts.Tags = importer.ParseTagList(v)
	}
	start := 1
	if v := q.Get("start"); v != "" {
		if start, err = strconv.Atoi(v); err != nil || start < 0 {
			writeError(w, &requestError{fmt.Errorf("invalid start %q", v)})
			return
		}
	}
	prefix := q.Get("prefix")
	if prefix == "" {
		prefix = opts.IDPrefix()
	}

	res, err := bank.Import(r.Context(), h.registry, bank.ImportRequest{
		Format:   format,
		Source:   data,
		Options:  opts,
		IDPrefix: prefix,
		Start:    start,
	})
	if err != nil && !errors.Is(err, model.ErrExhausted) {
		err = &requestError{err}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"items": res.Items, "next": res.Next}
	if filename != "" {
		// The ledger is keyed by absolute path, so an upload is matched by content.
		hashBytes := sha256.Sum256(data)
		path, err := h.store.ImportedFileByHash(hex.EncodeToString(hashBytes[:]))
		if err != nil {
			slog.Error("failed to check import status", "error", err)
		}
		resp["previously_imported"] = path != ""
	}
	slog.Info("imported via api", "format", format, "filename", filename, "count", len(res.Items))
	writeJSON(w, http.StatusOK, resp)
}

// resolveQuiz decodes a quiz from the request body and resolves it against
// the bank.
func (h *Handler) resolveQuiz(w http.ResponseWriter, r *http.Request) (*model.QuizAssembly, []model.Item, error) {
	data, _, err := h.readSource(w, r)
	if err != nil {
		return nil, nil, err
	}
	asm, err := quiz.ParseAssembly(data)
	var structErr *model.StructuralError
	if err != nil && !errors.As(err, &structErr) {
		return nil, nil, &requestError{err}
	}
	if err != nil {
		return nil, nil, err
	}
	seed := h.config.Seed
	if v := r.URL.Query().Get("seed"); v != "" {
		if seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, nil, &requestError{fmt.Errorf("invalid seed %q", v)}
		}
	}
	items, err := quiz.Resolve(asm, h.bank, quiz.Seed(asm, seed))
	if err != nil {
		return nil, nil, err
	}
	return asm, items, nil
}

func (h *Handler) handleBuildQTI(w http.ResponseWriter, r *http.Request) {
	asm, items, err := h.resolveQuiz(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg, err := qti.NewBuilder(h.conv).Build(r.Context(), asm.DisplayTitle(), items)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := pkg.WriteZip(&buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", importer.Slugify(asm.DisplayTitle(), 50)+"-qti.zip"))
	w.Header().Set(SkippedHeader, strconv.Itoa(len(pkg.Skipped)))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, &requestError{err})
		return
	}
	asm, items, err := h.resolveQuiz(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := export.New(h.conv).Render(r.Context(), f, asm, items)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(SkippedHeader, strconv.Itoa(len(res.Skipped)))
	_, _ = w.Write(res.Data)
}
