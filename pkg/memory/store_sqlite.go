package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical persistent memory storage.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the memory database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process memory service. Use one shared connection to avoid
	// writer lock contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			entry_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			agent TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS entries_created_idx ON entries(created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS entries_session_idx ON entries(session_id, created_at_ms);`,
		`CREATE INDEX IF NOT EXISTS entries_agent_idx ON entries(agent, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS entries_expires_idx ON entries(expires_at_ms);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

// Append stores one activity record, creating the session row if needed.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.SessionID) == "" {
		return Entry{}, fmt.Errorf("append entry: empty session_id")
	}
	if !ValidEntryType(e.Type) {
		return Entry{}, fmt.Errorf("append entry: unknown type %q", e.Type)
	}
	if e.ID == "" {
		e.ID = "mem-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	created := e.CreatedAt.UnixMilli()
	var expires int64
	if !e.ExpiresAt.IsZero() {
		expires = e.ExpiresAt.UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMS()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions(session_id, user_id, created_at_ms, updated_at_ms, entry_count)
VALUES(?, '', ?, ?, 0)
ON CONFLICT(session_id) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`, e.SessionID, now, now); err != nil {
		return Entry{}, fmt.Errorf("append entry ensure session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO entries(id, session_id, entry_type, agent, content, metadata_json, created_at_ms, expires_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`, e.ID, e.SessionID, string(e.Type), e.Agent, e.Content, encodeMap(e.Metadata), created, expires); err != nil {
		return Entry{}, fmt.Errorf("append entry insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE sessions
SET updated_at_ms = ?, entry_count = entry_count + 1
WHERE session_id = ?`, created, e.SessionID); err != nil {
		return Entry{}, fmt.Errorf("append entry update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("append entry commit: %w", err)
	}
	return e, nil
}

// ListSince returns unexpired entries created at or after since,
// newest first. A non-empty types set restricts which entry types
// qualify.
func (s *SQLiteStore) ListSince(ctx context.Context, since time.Time, limit int, types []EntryType) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	query := `
SELECT id, session_id, entry_type, agent, content, metadata_json, created_at_ms, expires_at_ms
FROM entries
WHERE created_at_ms >= ?
AND (expires_at_ms = 0 OR expires_at_ms > ?)`
	args := []interface{}{since.UnixMilli(), nowMS()}
	if len(types) > 0 {
		query += ` AND entry_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, ty := range types {
			args = append(args, string(ty))
		}
	}
	query += `
ORDER BY created_at_ms DESC
LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries since: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListSession returns unexpired entries for a session, oldest first.
func (s *SQLiteStore) ListSession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, entry_type, agent, content, metadata_json, created_at_ms, expires_at_ms
FROM entries
WHERE session_id = ?
AND (expires_at_ms = 0 OR expires_at_ms > ?)
ORDER BY created_at_ms DESC
LIMIT ?`, sessionID, nowMS(), limit)
	if err != nil {
		return nil, fmt.Errorf("list session entries: %w", err)
	}
	defer rows.Close()

	out, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListAgentSince returns unexpired entries recorded by one agent,
// newest first.
func (s *SQLiteStore) ListAgentSince(ctx context.Context, agent string, since time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, entry_type, agent, content, metadata_json, created_at_ms, expires_at_ms
FROM entries
WHERE agent = ?
AND created_at_ms >= ?
AND (expires_at_ms = 0 OR expires_at_ms > ?)
ORDER BY created_at_ms DESC
LIMIT ?`, agent, since.UnixMilli(), nowMS(), limit)
	if err != nil {
		return nil, fmt.Errorf("list agent entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LastCommand returns the most recent unexpired command entry.
func (s *SQLiteStore) LastCommand(ctx context.Context) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, entry_type, agent, content, metadata_json, created_at_ms, expires_at_ms
FROM entries
WHERE entry_type = ?
AND (expires_at_ms = 0 OR expires_at_ms > ?)
ORDER BY created_at_ms DESC
LIMIT 1`, string(TypeCommand), nowMS())

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("last command: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, user_id, created_at_ms, updated_at_ms, entry_count
FROM sessions WHERE session_id = ?`, sessionID)
	var out Session
	if err := row.Scan(&out.SessionID, &out.UserID, &out.CreatedAtMS, &out.UpdatedAtMS, &out.EntryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, sql.ErrNoRows
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// DeleteSession removes every entry of a session plus its session row.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete session begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session entries: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("delete session row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete session commit: %w", err)
	}
	return int(n), nil
}

// DeleteOlderThan removes entries created at or before cutoff, as
// well as entries whose TTL has already passed. The cutoff compare is
// inclusive at millisecond resolution so a sub-millisecond age still
// clears entries written in the cutoff's own millisecond.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM entries
WHERE created_at_ms <= ?
OR (expires_at_ms > 0 AND expires_at_ms <= ?)`, cutoff.UnixMilli(), nowMS())
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var typ, metaRaw string
	var createdMS, expiresMS int64
	if err := row.Scan(&e.ID, &e.SessionID, &typ, &e.Agent, &e.Content, &metaRaw, &createdMS, &expiresMS); err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(typ)
	e.Metadata = decodeMap(metaRaw)
	e.CreatedAt = time.UnixMilli(createdMS)
	if expiresMS > 0 {
		e.ExpiresAt = time.UnixMilli(expiresMS)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}
