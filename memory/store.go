// Package memory implements the optional semantic-recall store backing
// POST /api/memory/semantic-recall (spec.md §4.8, §12.4): a
// modernc.org/sqlite FTS5 table of recall entries, indexed out-of-band
// from the on-disk memory notes file, queried with an FTS5 MATCH and
// optionally re-ranked by the Anthropic API.
//
// Grounded on govega/serve/store_sqlite.go's modernc.org/sqlite wiring
// (database/sql, WAL mode, schema-in-Init) trimmed from that file's
// several orchestration tables down to the one recall-entry table this
// module needs.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one semantic-recall search hit.
type Entry struct {
	ID        string
	ChatID    string
	Text      string
	CreatedAt time.Time
}

// Store is a FTS5-backed recall index over notes text.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("clawless/memory: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("clawless/memory: enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recall_entries (
		id         TEXT PRIMARY KEY,
		chat_id    TEXT NOT NULL DEFAULT '',
		text       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS recall_entries_fts USING fts5(
		text, content='recall_entries', content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS recall_entries_ai AFTER INSERT ON recall_entries BEGIN
		INSERT INTO recall_entries_fts(rowid, text) VALUES (new.rowid, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS recall_entries_ad AFTER DELETE ON recall_entries BEGIN
		INSERT INTO recall_entries_fts(recall_entries_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
	END;

	CREATE TRIGGER IF NOT EXISTS recall_entries_au AFTER UPDATE ON recall_entries BEGIN
		INSERT INTO recall_entries_fts(recall_entries_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		INSERT INTO recall_entries_fts(rowid, text) VALUES (new.rowid, new.text);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert indexes one line of notes text under id, replacing any prior
// entry with the same id.
func (s *Store) Upsert(ctx context.Context, id, chatID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recall_entries (id, chat_id, text, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id, text=excluded.text`,
		id, chatID, text, time.Now())
	return err
}

// Search returns up to limit entries whose text matches query via FTS5,
// most relevant first. query is escaped into a quoted FTS phrase, so
// arbitrary recall input cannot break out into FTS5 query syntax.
func (s *Store) Search(ctx context.Context, query, chatID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.chat_id, e.text, e.created_at
		FROM recall_entries_fts f
		JOIN recall_entries e ON e.rowid = f.rowid
		WHERE f.text MATCH ? AND (? = '' OR e.chat_id = ?)
		ORDER BY rank
		LIMIT ?`,
		ftsPhrase(query), chatID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("clawless/memory: search: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("clawless/memory: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ftsPhrase quotes query as a single FTS5 phrase so embedded operators
// (AND, OR, -, *, ") in free-form recall input are treated as literal
// text rather than query syntax.
func ftsPhrase(query string) string {
	escaped := ""
	for _, r := range query {
		if r == '"' {
			escaped += `""`
			continue
		}
		escaped += string(r)
	}
	return `"` + escaped + `"`
}
