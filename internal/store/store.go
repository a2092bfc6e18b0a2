package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/quizbank/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// ItemRow is the indexed summary of one bank item.
type ItemRow struct {
	ID         string
	Type       model.ItemType
	Points     int
	Topic      string
	Difficulty model.Difficulty
	Tags       []string
	Stem       string
	Path       string
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 1,
		topic TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		stem TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS items_topic ON items(topic);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		items INTEGER NOT NULL DEFAULT 0,
		imported_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS imported_files_hash ON imported_files(hash);

	CREATE TABLE IF NOT EXISTS bank_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Reindex replaces the item index with the given items. pathOf reports the
// file each item was read from and may be nil.
func (s *Store) Reindex(items []model.Item, pathOf func(id string) string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	for _, it := range items {
		tags, err := json.Marshal(nonNil(it.Tags))
		if err != nil {
			return 0, fmt.Errorf("encode tags of %s: %w", it.ID, err)
		}
		var path string
		if pathOf != nil {
			path = pathOf(it.ID)
		}
		_, err = tx.Exec(
			`INSERT INTO items (id, type, points, topic, difficulty, tags, stem, path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.Type, it.Points, it.Topic, it.Difficulty, string(tags), it.Stem, path,
		)
		if err != nil {
			return 0, fmt.Errorf("index item %s: %w", it.ID, err)
		}
	}
	return len(items), tx.Commit()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

const itemColumns = `id, type, points, topic, difficulty, tags, stem, path`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (ItemRow, error) {
	var r ItemRow
	var tags string
	if err := sc.Scan(&r.ID, &r.Type, &r.Points, &r.Topic, &r.Difficulty, &tags, &r.Stem, &r.Path); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return r, fmt.Errorf("decode tags of %s: %w", r.ID, err)
	}
	return r, nil
}

// ListItems returns all indexed items ordered by id.
func (s *Store) ListItems() ([]ItemRow, error) {
	return s.ListItemsFiltered("", "")
}

// ListItemsFiltered returns items matching the given filters.
// Empty strings mean no filtering on that field.
func (s *Store) ListItemsFiltered(difficulty string, topic string) ([]ItemRow, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any
	if difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ItemRow
	for rows.Next() {
		r, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// ListItemsByTag returns items carrying the given tag.
func (s *Store) ListItemsByTag(tag string) ([]ItemRow, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items
		 WHERE EXISTS (SELECT 1 FROM json_each(items.tags) WHERE json_each.value = ?)
		 ORDER BY id`, strings.ToLower(tag),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ItemRow
	for rows.Next() {
		r, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// GetItem returns an indexed item by id.
func (s *Store) GetItem(id string) (ItemRow, error) {
	return scanItem(s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
}

// ItemCount returns the number of indexed items.
func (s *Store) ItemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// ListDistinctTopics returns the indexed topics in alphabetical order.
func (s *Store) ListDistinctTopics() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT topic FROM items ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// GetImportedFileHash returns the content hash recorded for a source file,
// or an empty string if it was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ImportedFileByHash returns the path of a ledger entry whose recorded hash
// matches, or an empty string if no source with that content was imported.
// Callers that only know a file's name and content, like an upload, use this
// instead of GetImportedFileHash since ledger paths are absolute.
func (s *Store) ImportedFileByHash(hash string) (string, error) {
	var path string
	err := s.db.QueryRow(
		`SELECT path FROM imported_files WHERE hash = ? ORDER BY imported_at DESC LIMIT 1`, hash,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return path, err
}

// SetImportedFileHash records that a source file with the given hash was
// imported, producing count items.
func (s *Store) SetImportedFileHash(path, hash string, count int) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, items, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, items = ?, imported_at = ?`,
		path, hash, count, time.Now(), hash, count, time.Now(),
	)
	return err
}
