package remarks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Remark is one generated opener and its delivery outcome.
type Remark struct {
	ID          string
	ProfileName string
	Style       string
	Text        string
	Sent        bool
	CreatedAt   time.Time
}

// StyleStat aggregates delivery outcomes per remark style.
type StyleStat struct {
	Style       string
	Total       int
	Sent        int
	SuccessRate float64
}

// Store persists remarks and their outcomes in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// prepares the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS remarks (
		id TEXT PRIMARY KEY,
		profile_name TEXT NOT NULL,
		style TEXT NOT NULL,
		text TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_remarks_style ON remarks(style);
	CREATE INDEX IF NOT EXISTS idx_remarks_created ON remarks(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts a freshly generated remark and returns its id.
func (s *Store) Record(ctx context.Context, profileName, style, text string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remarks (id, profile_name, style, text, sent, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		id, profileName, style, text, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert remark: %w", err)
	}
	return id, nil
}

// MarkSent records that the remark was verified delivered.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE remarks SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark remark sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remark %s not found", id)
	}
	return nil
}

// StatsByStyle returns per-style delivery rates, most used first.
func (s *Store) StatsByStyle(ctx context.Context) ([]StyleStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT style, COUNT(*), SUM(sent)
		FROM remarks
		GROUP BY style
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query style stats: %w", err)
	}
	defer rows.Close()

	var stats []StyleStat
	for rows.Next() {
		var st StyleStat
		var sent sql.NullInt64
		if err := rows.Scan(&st.Style, &st.Total, &sent); err != nil {
			return nil, fmt.Errorf("scan style stat: %w", err)
		}
		st.Sent = int(sent.Int64)
		if st.Total > 0 {
			st.SuccessRate = float64(st.Sent) / float64(st.Total)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Recent returns the newest remarks, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Remark, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_name, style, text, sent, created_at
		FROM remarks
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent remarks: %w", err)
	}
	defer rows.Close()

	var out []Remark
	for rows.Next() {
		var r Remark
		var sent int
		var created int64
		if err := rows.Scan(&r.ID, &r.ProfileName, &r.Style, &r.Text, &sent, &created); err != nil {
			return nil, fmt.Errorf("scan remark row: %w", err)
		}
		r.Sent = sent == 1
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
