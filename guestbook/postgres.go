package guestbook

import (
	"context"
	"database/sql"
	"time"

	"github.com/kjk/guestbook/log"

	_ "github.com/lib/pq"
)

const createEntryTableSQL = `CREATE TABLE IF NOT EXISTS "entry" (
	"id"        SERIAL PRIMARY KEY,
	"author"    TEXT NOT NULL,
	"comment"   TEXT NOT NULL,
	"posted_at" TIMESTAMPTZ NOT NULL
)`

// PostgresStore is a guestbook stored in "entry" table in Postgres.
// Postgres handles concurrent appends.
type PostgresStore struct {
	db *sql.DB
	// for queries
	Timeout time.Duration
}

// OpenPostgres connects to the database and creates the "entry" table
// if it doesn't exist
func OpenPostgres(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{
		db:      db,
		Timeout: time.Second * 10,
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err = db.ExecContext(ctx, createEntryTableSQL); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Timeout)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) listEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT "author", "comment", "posted_at"
		FROM "entry"
		ORDER BY "posted_at" DESC, "id" DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Author, &e.Comment, &e.PostedAt); err != nil {
			return nil, err
		}
		e.PostedAt = e.PostedAt.Local()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// List returns all entries, newest first.
// Database errors are logged and result in an empty list.
func (s *PostgresStore) List() []Entry {
	ctx, cancel := s.ctx()
	defer cancel()
	entries, err := s.listEntries(ctx)
	if err != nil {
		log.Errorf("guestbook: listing entries failed with '%s'\n", err)
		return []Entry{}
	}
	return entries
}

func (s *PostgresStore) Append(author, comment string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO "entry" ("author", "comment", "posted_at") VALUES ($1, $2, $3)`,
		author, comment, timestampNow())
	if err != nil {
		return err
	}
	log.Event("guestbook_append", "backend", "postgres")
	return nil
}
