// Package store caches NLP results in sqlite, keyed by content hash. It is
// the in-process stand-in for the persistence collaborator: the orchestrator
// talks to it only through the nlp.Store interface.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"personae/internal/nlp"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS results (
    content_hash TEXT PRIMARY KEY,
    filename TEXT,
    created_at TEXT,
    payload TEXT
);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(contentHash string) (*nlp.Result, bool, error) {
	row := s.db.QueryRow(`SELECT payload FROM results WHERE content_hash = ?`, contentHash)
	var payload string
	if err := row.Scan(&payload); err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("scan result: %w", err)
	}
	var res nlp.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, false, fmt.Errorf("decode result payload: %w", err)
	}
	return &res, true, nil
}

func (s *Store) Put(contentHash, filename string, res *nlp.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO results(content_hash, filename, created_at, payload) VALUES(?,?,?,?)
		 ON CONFLICT(content_hash) DO UPDATE SET filename=excluded.filename, created_at=excluded.created_at, payload=excluded.payload`,
		contentHash, filename, time.Now().Format(time.RFC3339), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Delete(contentHash string) error {
	if _, err := s.db.Exec(`DELETE FROM results WHERE content_hash = ?`, contentHash); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// Count reports how many results are cached.
func (s *Store) Count() (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM results`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return n, nil
}
