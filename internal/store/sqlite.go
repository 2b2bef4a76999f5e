package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/cyberdesk/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates when missing) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers proceed while a turn is being persisted.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_name TEXT NOT NULL,
		content TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_name, seq);

	CREATE TABLE IF NOT EXISTS followups (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		issue TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_followups_name ON followups(name);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		user_name TEXT NOT NULL,
		text TEXT NOT NULL,
		rating INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// LoadConversations returns every stored log keyed by user, in append order.
func (s *SQLiteStore) LoadConversations(ctx context.Context) (map[string][]domain.Message, error) {
	query := `SELECT id, user_name, content, is_user, created_at FROM messages ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	out := make(map[string][]domain.Message)
	for rows.Next() {
		var (
			msg       domain.Message
			user      string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &user, &msg.Content, &msg.IsUser, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Timestamp = time.Unix(0, createdAt)
		out[user] = append(out[user], msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// AppendMessage stores one message at the end of user's log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, user string, msg domain.Message) error {
	query := `
	INSERT INTO messages (id, user_name, content, is_user, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	return withBusyRetry(ctx, "append message", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			msg.ID, user, msg.Content, msg.IsUser, msg.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

// DeleteConversation removes user's whole log.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, user string) error {
	return withBusyRetry(ctx, "delete conversation", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_name = ?`, user); err != nil {
			return fmt.Errorf("delete messages for %s: %w", user, err)
		}
		return nil
	})
}

// LoadFollowUps returns the queue in insertion order.
func (s *SQLiteStore) LoadFollowUps(ctx context.Context) ([]domain.FollowUpEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, issue, created_at FROM followups ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query followups: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close followup rows", "error", closeErr)
		}
	}()

	var entries []domain.FollowUpEntry
	for rows.Next() {
		var (
			e         domain.FollowUpEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Issue, &createdAt); err != nil {
			return nil, fmt.Errorf("scan followup row: %w", err)
		}
		e.Timestamp = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followups: %w", err)
	}
	return entries, nil
}

// AppendFollowUp adds an entry at the end of the queue.
func (s *SQLiteStore) AppendFollowUp(ctx context.Context, e domain.FollowUpEntry) error {
	query := `
	INSERT INTO followups (id, name, issue, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET issue = excluded.issue`

	return withBusyRetry(ctx, "append followup", func() error {
		if _, err := s.db.ExecContext(ctx, query, e.ID, e.Name, e.Issue, e.Timestamp.UnixNano()); err != nil {
			return fmt.Errorf("insert followup: %w", err)
		}
		return nil
	})
}

// DeleteFollowUps removes every entry named name.
func (s *SQLiteStore) DeleteFollowUps(ctx context.Context, name string) error {
	return withBusyRetry(ctx, "delete followups", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM followups WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete followups for %s: %w", name, err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			slog.Debug("DeleteFollowUps affected 0 rows", "name", name)
		}
		return nil
	})
}

// SaveFeedback stores a rating.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	query := `
	INSERT INTO feedback (id, user_name, text, rating, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		rating = excluded.rating`

	return withBusyRetry(ctx, "save feedback", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			fb.ID, fb.UserName, fb.Text, fb.Rating, fb.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}
		return nil
	})
}

// ListFeedback returns every rating ordered by creation time.
func (s *SQLiteStore) ListFeedback(ctx context.Context) ([]domain.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_name, text, rating, created_at FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close feedback rows", "error", closeErr)
		}
	}()

	var out []domain.Feedback
	for rows.Next() {
		var (
			fb        domain.Feedback
			createdAt int64
		)
		if err := rows.Scan(&fb.ID, &fb.UserName, &fb.Text, &fb.Rating, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback row: %w", err)
		}
		fb.CreatedAt = time.Unix(0, createdAt)
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}
