package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoint_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	saved_at TEXT NOT NULL,
	total_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoint_records (
	page INTEGER NOT NULL,
	position INTEGER NOT NULL,
	record_key TEXT NOT NULL PRIMARY KEY,
	url TEXT,
	fields TEXT,
	UNIQUE(page, position)
);
`

// SQLite stores snapshots in a local SQLite database. Each Save replaces the
// previous snapshot inside one transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the checkpoint database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save implements crawler.Checkpointer.
func (s *SQLite) Save(ctx context.Context, snap crawler.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", crawler.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM checkpoint_records`); err != nil {
		return fmt.Errorf("%w: clear records: %w", crawler.ErrPersistence, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoint_meta (id, saved_at, total_count) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at, total_count = excluded.total_count`,
		snap.Timestamp.UTC().Format(time.RFC3339Nano), snap.TotalCount,
	); err != nil {
		return fmt.Errorf("%w: write meta: %w", crawler.ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checkpoint_records (page, position, record_key, url, fields) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", crawler.ErrPersistence, err)
	}
	defer func() { _ = stmt.Close() }()

	state, err := crawler.RestoreState(snap)
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	for _, page := range state.PageNumbers() {
		for pos, rec := range state.Page(page) {
			var fields []byte
			if len(rec.Fields) > 0 {
				if fields, err = json.Marshal(rec.Fields); err != nil {
					return fmt.Errorf("%w: encode fields: %w", crawler.ErrPersistence, err)
				}
			}
			if _, err = stmt.ExecContext(ctx, page, pos, rec.Key, rec.URL, string(fields)); err != nil {
				return fmt.Errorf("%w: insert record %q: %w", crawler.ErrPersistence, rec.Key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", crawler.ErrPersistence, err)
	}
	return nil
}

// Load reads the stored snapshot.
func (s *SQLite) Load(ctx context.Context) (crawler.Snapshot, error) {
	var (
		savedAt string
		total   int
	)
	err := s.db.QueryRowContext(ctx, `SELECT saved_at, total_count FROM checkpoint_meta WHERE id = 1`).Scan(&savedAt, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Snapshot{}, ErrNoCheckpoint
	}
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("read meta: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("parse saved_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT page, record_key, url, fields FROM checkpoint_records ORDER BY page, position`)
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := crawler.Snapshot{Timestamp: ts, TotalCount: total, Pages: map[string][]crawler.Record{}}
	for rows.Next() {
		var (
			page   int
			rec    crawler.Record
			url    sql.NullString
			fields sql.NullString
		)
		if err := rows.Scan(&page, &rec.Key, &url, &fields); err != nil {
			return crawler.Snapshot{}, fmt.Errorf("scan record: %w", err)
		}
		rec.URL = url.String
		if fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &rec.Fields); err != nil {
				return crawler.Snapshot{}, fmt.Errorf("decode fields for %q: %w", rec.Key, err)
			}
		}
		name := crawler.PageName(page)
		snap.Pages[name] = append(snap.Pages[name], rec)
	}
	if err := rows.Err(); err != nil {
		return crawler.Snapshot{}, fmt.Errorf("iterate records: %w", err)
	}
	return snap, nil
}
