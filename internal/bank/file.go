package bank

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
)

// ReadItem decodes one item file.
func ReadItem(path string) (model.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Item{}, fmt.Errorf("read item: %w", err)
	}
	var it model.Item
	if err := yaml.Unmarshal(data, &it); err != nil {
		return model.Item{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return it, nil
}

// FileName returns the file name an item is written under:
// q-<topic or id slug>-<index:03d>.yaml.
func FileName(it model.Item, index int) string {
	base := it.Topic
	if strings.TrimSpace(base) == "" {
		base = it.ID
	}
	return fmt.Sprintf("q-%s-%03d.yaml", importer.Slugify(base, 50), index)
}

// WriteItem encodes it into dir and returns the written path. An existing
// file of the same name is replaced.
func WriteItem(dir string, it model.Item, index int) (string, error) {
	data, err := Encode(it)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bank dir: %w", err)
	}
	path := filepath.Join(dir, FileName(it, index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write item: %w", err)
	}
	return path, nil
}

// Encode renders an item as YAML. Multi-line strings use literal block style
// so stems and solutions stay readable in the file.
func Encode(it model.Item) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(it); err != nil {
		return nil, fmt.Errorf("encode item %s: %w", it.ID, err)
	}
	literalBlocks(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("encode item %s: %w", it.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode item %s: %w", it.ID, err)
	}
	return buf.Bytes(), nil
}

func literalBlocks(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" && strings.Contains(n.Value, "\n") {
		n.Value = strings.TrimRight(n.Value, "\n")
		n.Style = yaml.LiteralStyle
	}
	for _, c := range n.Content {
		literalBlocks(c)
	}
}
