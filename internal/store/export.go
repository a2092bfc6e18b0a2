package store

import (
	"fmt"

	"github.com/pavelanni/quizbank/internal/model"
)

// TopicSummary counts the indexed items of one topic per item type.
type TopicSummary struct {
	Topic  string
	Total  int
	Points int
	ByType map[model.ItemType]int
}

// Summarize groups the index by topic, in alphabetical order.
func (s *Store) Summarize() ([]TopicSummary, error) {
	rows, err := s.db.Query(
		`SELECT topic, type, COUNT(*), SUM(points) FROM items GROUP BY topic, type ORDER BY topic, type`,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize index: %w", err)
	}
	defer rows.Close()

	var out []TopicSummary
	for rows.Next() {
		var (
			topic  string
			typ    model.ItemType
			count  int
			points int
		)
		if err := rows.Scan(&topic, &typ, &count, &points); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Topic != topic {
			out = append(out, TopicSummary{Topic: topic, ByType: map[model.ItemType]int{}})
		}
		ts := &out[len(out)-1]
		ts.Total += count
		ts.Points += points
		ts.ByType[typ] = count
	}
	return out, rows.Err()
}
