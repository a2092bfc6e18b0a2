package store

import (
	"database/sql"
	"strconv"
	"time"
)

// IndexInfo describes the last reindex of the bank.
type IndexInfo struct {
	BankDir   string
	IndexedAt time.Time
	Items     int
}

// SetMetadata upserts a key-value pair in the bank_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO bank_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM bank_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetIndexInfo stores all IndexInfo fields as metadata rows.
func (s *Store) SetIndexInfo(info IndexInfo) error {
	pairs := []struct{ k, v string }{
		{"bank_dir", info.BankDir},
		{"indexed_at", info.IndexedAt.UTC().Format(time.RFC3339)},
		{"items", strconv.Itoa(info.Items)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetIndexInfo reads all IndexInfo fields from metadata. A bank that was
// never indexed yields the zero value.
func (s *Store) GetIndexInfo() (IndexInfo, error) {
	var info IndexInfo
	var err error

	if info.BankDir, err = s.GetMetadata("bank_dir"); err != nil {
		return info, err
	}
	at, err := s.GetMetadata("indexed_at")
	if err != nil {
		return info, err
	}
	if at != "" {
		if info.IndexedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return info, err
		}
	}
	n, err := s.GetMetadata("items")
	if err != nil {
		return info, err
	}
	if n != "" {
		if info.Items, err = strconv.Atoi(n); err != nil {
			return info, err
		}
	}
	return info, nil
}
