package bank

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
)

// ImportRequest describes one run of the import pipeline.
type ImportRequest struct {
	Format   string
	Source   []byte
	Options  importer.Options
	IDPrefix string
	Start    int
	// OutDir receives one file per item. Empty means nothing is written.
	OutDir string
}

// ImportResult reports what an import produced.
type ImportResult struct {
	Items []model.Item
	Paths []string
	Next  int
}

// Import runs the named importer over the source, finalizes the items and
// writes them to OutDir. Zero parsed items is model.ErrExhausted.
func Import(ctx context.Context, reg *importer.Registry, req ImportRequest) (*ImportResult, error) {
	items, err := reg.Import(ctx, req.Format, req.Source, req.Options)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("import %s: no items parsed: %w", req.Format, model.ErrExhausted)
	}

	res := &ImportResult{Items: items}
	res.Next = Finalize(items, req.IDPrefix, req.Start)
	for _, it := range items {
		if err := model.Validate(it); err != nil {
			slog.Warn("imported item does not pass validation", "id", it.ID, "reason", err)
		}
	}
	if req.OutDir == "" {
		return res, nil
	}
	for i, it := range items {
		path, err := WriteItem(req.OutDir, it, req.Start+i)
		if err != nil {
			return nil, err
		}
		slog.Info("wrote item", "id", it.ID, "path", path)
		res.Paths = append(res.Paths, path)
	}
	return res, nil
}
