// Package store keeps the daily tally in SQLite so a restart does not lose
// the day's counts.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/discord-voice-wordtally/internal/tally"
	"github.com/discord-voice-wordtally/internal/words"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tally_users (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	seq          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tally_words (
	user_id TEXT NOT NULL REFERENCES tally_users(user_id) ON DELETE CASCADE,
	word    TEXT NOT NULL,
	count   INTEGER NOT NULL,
	seq     INTEGER NOT NULL,
	PRIMARY KEY (user_id, word)
);
`

// Store is a tally.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ tally.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the aggregator already serializes access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns users and their words in the order they were first added.
func (s *Store) Load(ctx context.Context) ([]tally.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id, u.display_name, w.word, w.count
		FROM tally_users u
		LEFT JOIN tally_words w ON w.user_id = u.user_id
		ORDER BY u.seq ASC, w.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tally: %w", err)
	}
	defer rows.Close()

	var out []tally.Entry
	for rows.Next() {
		var userID, name string
		var word sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&userID, &name, &word, &count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].UserID != userID {
			out = append(out, tally.Entry{UserID: userID, Name: name})
		}
		if word.Valid {
			last := &out[len(out)-1]
			last.Words = append(last.Words, words.WordCount{Word: word.String, Count: int(count.Int64)})
		}
	}
	return out, rows.Err()
}

// Save replaces the stored tally with entries.
func (s *Store) Save(ctx context.Context, entries []tally.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	userStmt, err := tx.PrepareContext(ctx, `INSERT INTO tally_users (user_id, display_name, seq) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare users: %w", err)
	}
	defer userStmt.Close()
	wordStmt, err := tx.PrepareContext(ctx, `INSERT INTO tally_words (user_id, word, count, seq) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare words: %w", err)
	}
	defer wordStmt.Close()

	for i, e := range entries {
		if _, err := userStmt.ExecContext(ctx, e.UserID, e.Name, i); err != nil {
			return fmt.Errorf("insert user %s: %w", e.UserID, err)
		}
		for j, wc := range e.Words {
			if _, err := wordStmt.ExecContext(ctx, e.UserID, wc.Word, wc.Count, j); err != nil {
				return fmt.Errorf("insert word for %s: %w", e.UserID, err)
			}
		}
	}
	return tx.Commit()
}

// Clear removes every stored entry.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tally_words`); err != nil {
		return fmt.Errorf("clear words: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tally_users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}
