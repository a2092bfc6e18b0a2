// Package bank reads and writes the on-disk question bank: one YAML file per
// item, collected under a directory tree.
package bank

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelanni/quizbank/internal/model"
)

// Bank is an in-memory index of items keyed by id.
type Bank struct {
	items map[string]model.Item
	paths map[string]string
}

// New returns a bank holding items. Later duplicates of an id are ignored.
func New(items ...model.Item) *Bank {
	b := &Bank{items: make(map[string]model.Item), paths: make(map[string]string)}
	for _, it := range items {
		b.add(it, "")
	}
	return b
}

func (b *Bank) add(it model.Item, path string) bool {
	if _, dup := b.items[it.ID]; dup {
		return false
	}
	b.items[it.ID] = it
	if path != "" {
		b.paths[it.ID] = path
	}
	return true
}

// Load walks dir for *.yaml and *.yml files and indexes every item found.
// Files that fail to decode, and YAML documents that are not items (quiz
// files), are logged and skipped. The first file seen for an id wins.
func Load(dir string) (*Bank, error) {
	b := New()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk bank %s: %w", dir, err)
	}
	sort.Strings(files)

	for _, path := range files {
		it, err := ReadItem(path)
		if err != nil {
			slog.Warn("skipping unreadable item file", "path", path, "error", err)
			continue
		}
		if it.ID == "" || it.Type == "" {
			slog.Debug("skipping non-item file", "path", path)
			continue
		}
		if !b.add(it, path) {
			slog.Warn("duplicate item id, keeping first", "id", it.ID, "path", path, "first", b.paths[it.ID])
		}
	}
	slog.Debug("loaded bank", "dir", dir, "items", len(b.items))
	return b, nil
}

// Get returns the item with id. Missing ids wrap model.ErrNotFound.
func (b *Bank) Get(id string) (model.Item, error) {
	it, ok := b.items[id]
	if !ok {
		return model.Item{}, fmt.Errorf("item %q: %w", id, model.ErrNotFound)
	}
	return it, nil
}

// Path returns the file an item was loaded from, or "".
func (b *Bank) Path(id string) string {
	return b.paths[id]
}

// IDs returns every id in the bank, sorted.
func (b *Bank) IDs() []string {
	ids := make([]string, 0, len(b.items))
	for id := range b.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Items returns every item in id order.
func (b *Bank) Items() []model.Item {
	out := make([]model.Item, 0, len(b.items))
	for _, id := range b.IDs() {
		out = append(out, b.items[id])
	}
	return out
}

// Len returns the number of items.
func (b *Bank) Len() int {
	return len(b.items)
}
