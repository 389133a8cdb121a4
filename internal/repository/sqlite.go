package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	db, err := sql.Open("sqlite3", withSQLiteDefaults(dsn, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// withSQLiteDefaults adds connection parameters the store relies on unless
// the DSN already sets them. Write transactions take the write lock up front
// and wait for it instead of failing with SQLITE_BUSY, and every pooled
// connection enforces foreign keys. Shared-cache mode is not supported: its
// table locks are not covered by the busy timeout.
func withSQLiteDefaults(dsn string, memory bool) string {
	params := [][2]string{
		{"_foreign_keys", "on"},
		{"_busy_timeout", "5000"},
		{"_txlock", "immediate"},
	}
	if !memory {
		params = append(params, [2]string{"_journal_mode", "WAL"})
	}
	for _, p := range params {
		if strings.Contains(dsn, p[0]+"=") {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + p[0] + "=" + p[1]
	}
	return dsn
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'active',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, state, updated_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_session_seq ON turns(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Databases created before optimistic locking lack the version column.
	if err := s.ensureColumn("sessions", "version", "ALTER TABLE sessions ADD COLUMN version INTEGER NOT NULL DEFAULT 1"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}

	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == columnName {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if found {
		return nil
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.State == "" {
		session.State = domain.SessionStateActive
	}
	session.Version = 1
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, owner_id, title, state, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.OwnerID, session.Title, session.State, session.Version,
		session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		return &domain.StoreError{Op: "create session", Err: err}
	}
	return nil
}

// GetSession retrieves an active session owned by ownerID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error) {
	session, err := s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT session_id, owner_id, title, state, version, created_at, updated_at FROM sessions
		 WHERE session_id = ? AND owner_id = ? AND state = ?`,
		sessionID, ownerID, domain.SessionStateActive))
	if err == sql.ErrNoRows {
		return nil, domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get session", Err: err}
	}

	turns, err := s.loadTurns(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	session.Turns = turns
	return session, nil
}

// FindSessions returns a page of the owner's active sessions, most recently updated first.
func (s *SQLiteStore) FindSessions(ctx context.Context, ownerID string, page, limit int) ([]domain.Session, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE owner_id = ? AND state = ?`,
		ownerID, domain.SessionStateActive).Scan(&total); err != nil {
		return nil, 0, &domain.StoreError{Op: "count sessions", Err: err}
	}

	offset := (page - 1) * limit
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, owner_id, title, state, version, created_at, updated_at FROM sessions
		 WHERE owner_id = ? AND state = ?
		 ORDER BY updated_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		ownerID, domain.SessionStateActive, limit, offset)
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "find sessions", Err: err}
	}

	sessions := []domain.Session{}
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, 0, &domain.StoreError{Op: "find sessions", Err: err}
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, &domain.StoreError{Op: "find sessions", Err: err}
	}
	// Release the connection before loading turns; in-memory databases only have one.
	rows.Close()

	for i := range sessions {
		turns, err := s.loadTurns(ctx, s.db, sessions[i].SessionID)
		if err != nil {
			return nil, 0, err
		}
		sessions[i].Turns = turns
	}
	return sessions, total, nil
}

// AppendTurn appends a turn if the session is still at expectedVersion.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, expectedVersion int64, turn domain.Turn) (*domain.Session, error) {
	if !turn.Role.Valid() {
		return nil, domain.NewValidationError("role", fmt.Sprintf("unsupported role %q", turn.Role))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StoreError{Op: "append turn", Err: err}
	}
	defer tx.Rollback()

	if err := s.bumpVersion(ctx, tx, sessionID, expectedVersion, turn.Timestamp); err != nil {
		return nil, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return nil, &domain.StoreError{Op: "append turn", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq+1, turn.Role, turn.Content, turn.Timestamp.UTC()); err != nil {
		return nil, &domain.StoreError{Op: "append turn", Err: err}
	}

	session, err := s.loadSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &domain.StoreError{Op: "append turn", Err: err}
	}
	return session, nil
}

// SetTitle updates the title if the session is still at expectedVersion.
func (s *SQLiteStore) SetTitle(ctx context.Context, sessionID string, expectedVersion int64, title string, at time.Time) (*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StoreError{Op: "set title", Err: err}
	}
	defer tx.Rollback()

	if err := s.bumpVersion(ctx, tx, sessionID, expectedVersion, at); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE session_id = ?`, title, sessionID); err != nil {
		return nil, &domain.StoreError{Op: "set title", Err: err}
	}

	session, err := s.loadSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &domain.StoreError{Op: "set title", Err: err}
	}
	return session, nil
}

// SoftDelete marks a session deleted without touching its turns.
func (s *SQLiteStore) SoftDelete(ctx context.Context, sessionID, ownerID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, version = version + 1, updated_at = ?
		 WHERE session_id = ? AND owner_id = ? AND state = ?`,
		domain.SessionStateDeleted, at.UTC(), sessionID, ownerID, domain.SessionStateActive)
	if err != nil {
		return &domain.StoreError{Op: "soft delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StoreError{Op: "soft delete", Err: err}
	}
	if n == 0 {
		return domain.SessionNotFound(sessionID)
	}
	return nil
}

// CountActive sums sessions and turns over the owner's active sessions.
func (s *SQLiteStore) CountActive(ctx context.Context, ownerID string) (int, int, error) {
	var sessions, turns int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE owner_id = ? AND state = ?`,
		ownerID, domain.SessionStateActive).Scan(&sessions); err != nil {
		return 0, 0, &domain.StoreError{Op: "count sessions", Err: err}
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns t JOIN sessions s ON s.session_id = t.session_id
		 WHERE s.owner_id = ? AND s.state = ?`,
		ownerID, domain.SessionStateActive).Scan(&turns); err != nil {
		return 0, 0, &domain.StoreError{Op: "count turns", Err: err}
	}
	return sessions, turns, nil
}

// bumpVersion advances the version of an active session, distinguishing a
// stale version from a session that no longer exists.
func (s *SQLiteStore) bumpVersion(ctx context.Context, tx *sql.Tx, sessionID string, expectedVersion int64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET version = version + 1, updated_at = ?
		 WHERE session_id = ? AND version = ? AND state = ?`,
		at.UTC(), sessionID, expectedVersion, domain.SessionStateActive)
	if err != nil {
		return &domain.StoreError{Op: "update session", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StoreError{Op: "update session", Err: err}
	}
	if n > 0 {
		return nil
	}

	var state domain.SessionState
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE session_id = ?`, sessionID).Scan(&state)
	if err == sql.ErrNoRows || (err == nil && state != domain.SessionStateActive) {
		return domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return &domain.StoreError{Op: "update session", Err: err}
	}
	return domain.ErrConflict
}

func (s *SQLiteStore) loadSession(ctx context.Context, q querier, sessionID string) (*domain.Session, error) {
	session, err := s.scanSession(q.QueryRowContext(ctx,
		`SELECT session_id, owner_id, title, state, version, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID))
	if err == sql.ErrNoRows {
		return nil, domain.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "load session", Err: err}
	}
	turns, err := s.loadTurns(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	session.Turns = turns
	return session, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, q querier, sessionID string) ([]domain.Turn, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, &domain.StoreError{Op: "load turns", Err: err}
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		var turn domain.Turn
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, &domain.StoreError{Op: "load turns", Err: err}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "load turns", Err: err}
	}
	return turns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(&session.SessionID, &session.OwnerID, &session.Title, &session.State,
		&session.Version, &session.CreatedAt, &session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &session, nil
}
