package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kipackjeong/Demo-sub001/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		user_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreateSession returns the session for the given id, creating it lazily.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.ChatSession, error) {
	var sess *domain.ChatSession
	err := s.withRetry(func() error {
		var inner error
		sess, inner = s.getOrCreateSessionOnce(ctx, sessionID, userID)
		return inner
	})
	return sess, err
}

func (s *SQLiteStore) getOrCreateSessionOnce(ctx context.Context, sessionID, userID string) (*domain.ChatSession, error) {
	// COALESCE keeps the first non-empty user association; later calls with
	// a different user id do not overwrite it.
	upsert := `
	INSERT INTO sessions (session_id, user_id, created_at)
	VALUES (?, NULLIF(?, ''), ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_id = COALESCE(sessions.user_id, excluded.user_id)`

	if _, err := s.db.ExecContext(ctx, upsert, sessionID, userID, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at FROM sessions WHERE session_id = ?`, sessionID)

	var sess domain.ChatSession
	var storedUser sql.NullString
	var createdAt int64
	if err := row.Scan(&sess.SessionID, &storedUser, &createdAt); err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.UserID = storedUser.String
	sess.CreatedAt = time.Unix(createdAt, 0)

	return &sess, nil
}

// AppendMessage appends one message, creating the session when unseen.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, userID, role, content string) (*domain.Message, error) {
	var msg *domain.Message
	err := s.withRetry(func() error {
		var inner error
		msg, inner = s.appendMessageOnce(ctx, sessionID, userID, role, content)
		return inner
	})
	return msg, err
}

func (s *SQLiteStore) appendMessageOnce(ctx context.Context, sessionID, userID, role, content string) (*domain.Message, error) {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Unknown session ids create a session rather than erroring.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, created_at)
		VALUES (?, NULLIF(?, ''), ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = COALESCE(sessions.user_id, excluded.user_id)`,
		sessionID, userID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert session for append: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, user_id, role, content, created_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?)`,
		sessionID, userID, role, content, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	return &domain.Message{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// ListMessages returns all messages for a session in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var userID sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &userID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.UserID = userID.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
