// Package history provides SQLite-based persistence for chat messages.
// Every call goes to the database; nothing is cached in memory.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/portfolio-chat/internal/logger"
	"github.com/comigor/portfolio-chat/internal/telemetry"
)

var tracer = telemetry.Tracer("history")

const busyTimeoutMillis = 10000

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role       TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,
}

// Store is the append-only conversation log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
// It is safe to call on every startup.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, storageErr("create directory", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L.Info("sqlite history DB initialized", "path", path)

	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return storageErr("migrate", err)
		}
	}
	return nil
}

// Append stores one message with a server-assigned timestamp and sequence.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, content string) (err error) {
	ctx, span := tracer.Start(ctx, "history.append")
	defer func() { telemetry.End(span, err) }()

	if !role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, role)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}

	ts := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, ts,
	)
	if err != nil {
		return storageErr("append", err)
	}
	return nil
}

// History returns up to limit of the most recent messages of a session,
// oldest first. An unknown session yields an empty slice.
func (s *Store) History(ctx context.Context, sessionID string, limit int) (_ []Message, err error) {
	ctx, span := tracer.Start(ctx, "history.list")
	defer func() { telemetry.End(span, err) }()

	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Message, 0, min(limit, DefaultHistoryLimit))
	for rows.Next() {
		var (
			m    Message
			role string
			ts   string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &ts); err != nil {
			return nil, storageErr("scan", err)
		}
		m.Role = Role(role)
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, storageErr("parse timestamp", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("history rows", err)
	}

	slices.Reverse(out)
	return out, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
