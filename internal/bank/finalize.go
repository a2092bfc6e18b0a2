package bank

import (
	"fmt"

	"github.com/pavelanni/quizbank/internal/model"
)

// Finalize assigns ids and fills defaults on items that lack them. Ids are
// "{idPrefix}.{n:03d}" with n counting up from start, one per item that had
// no id. Fields an item already carries are never changed. It returns the
// next unused sequence number.
func Finalize(items []model.Item, idPrefix string, start int) int {
	n := start
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = fmt.Sprintf("%s.%03d", idPrefix, n)
			n++
		}
		if it.Points == 0 {
			it.Points = 1
		}
		if it.Difficulty == "" {
			it.Difficulty = model.DifficultyEasy
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		if mc := it.Choices(); mc != nil && mc.Shuffle == nil {
			mc.Shuffle = model.Bool(true)
		}
	}
	return n
}
