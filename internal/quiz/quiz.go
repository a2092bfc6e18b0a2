// Package quiz resolves quiz assemblies against the bank.
package quiz

import (
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/quizbank/internal/model"
)

// DefaultSeed is used when neither the quiz file nor the caller names a seed.
const DefaultSeed int64 = 42

// Lookup is the part of the bank the assembler needs.
type Lookup interface {
	Get(id string) (model.Item, error)
}

// LoadAssembly reads a quiz file.
func LoadAssembly(path string) (*model.QuizAssembly, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz: %w", err)
	}
	return ParseAssembly(data)
}

// ParseAssembly decodes quiz YAML. A quiz without entries is a structural error.
func ParseAssembly(data []byte) (*model.QuizAssembly, error) {
	var asm model.QuizAssembly
	if err := yaml.Unmarshal(data, &asm); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}
	if len(asm.Entries) == 0 {
		return nil, &model.StructuralError{ItemID: asm.DisplayTitle(), Problems: []string{"items: quiz lists no items"}}
	}
	if asm.Pick != nil && *asm.Pick < 0 {
		return nil, &model.StructuralError{ItemID: asm.DisplayTitle(), Problems: []string{"pick: must be >= 0"}}
	}
	var problems []string
	for i, e := range asm.Entries {
		if e.PointsOverride != nil && *e.PointsOverride < 1 {
			problems = append(problems, fmt.Sprintf("items[%d].points: must be >= 1", i))
		}
	}
	if len(problems) > 0 {
		return nil, &model.StructuralError{ItemID: asm.DisplayTitle(), Problems: problems}
	}
	return &asm, nil
}

// Seed returns the quiz's own seed if it has one, else fallback.
func Seed(asm *model.QuizAssembly, fallback int64) int64 {
	if asm.Seed != nil {
		return *asm.Seed
	}
	return fallback
}

// Resolve looks up every entry in order, applies point overrides to private
// copies and then samples. Any missing id aborts the whole assembly.
func Resolve(asm *model.QuizAssembly, bank Lookup, seed int64) ([]model.Item, error) {
	items := make([]model.Item, 0, len(asm.Entries))
	for _, e := range asm.Entries {
		it, err := bank.Get(e.ItemID)
		if err != nil {
			return nil, fmt.Errorf("resolve quiz %s: %w", asm.DisplayTitle(), err)
		}
		if e.PointsOverride != nil {
			it = it.Clone()
			it.Points = *e.PointsOverride
		}
		items = append(items, it)
	}
	pick := -1
	if asm.Pick != nil {
		pick = *asm.Pick
	}
	return Sample(items, pick, seed), nil
}

// Sample draws pick items uniformly without replacement. The draw depends
// only on the seed and the input order. A negative pick, or one at least
// len(items), returns items unchanged.
func Sample(items []model.Item, pick int, seed int64) []model.Item {
	if pick < 0 || pick >= len(items) {
		return items
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	// Partial Fisher-Yates: the first pick slots end up holding the sample.
	for i := 0; i < pick; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]model.Item, pick)
	for i := range out {
		out[i] = items[idx[i]]
	}
	return out
}
