package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		streak INTEGER NOT NULL DEFAULT 0,
		last_active_date TEXT NOT NULL DEFAULT '',
		badges_json TEXT NOT NULL DEFAULT '[]',
		total_sessions INTEGER NOT NULL DEFAULT 0,
		total_seconds INTEGER NOT NULL DEFAULT 0,
		daily_minutes REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS coaching_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		transcript TEXT NOT NULL,
		heuristic_score INTEGER NOT NULL,
		confidence INTEGER NOT NULL,
		fluent_sentence TEXT NOT NULL,
		tips_json TEXT NOT NULL DEFAULT '[]',
		tone TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_created ON coaching_sessions(user_id, created_at);
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

const profileColumns = `username, password_hash, xp, level, streak, last_active_date,
	badges_json, total_sessions, total_seconds, daily_minutes, created_at, updated_at`

// GetProfile retrieves a profile by username.
func (s *SQLiteStore) GetProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username)

	var p domain.UserProfile
	var badgesJSON string
	var createdAt, updatedAt int64
	err := row.Scan(
		&p.Username, &p.PasswordHash, &p.XP, &p.Level, &p.Streak, &p.LastActiveDate,
		&badgesJSON, &p.Stats.TotalSessions, &p.Stats.TotalSeconds, &p.Stats.DailyMinutes,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	if err := json.Unmarshal([]byte(badgesJSON), &p.Badges); err != nil {
		return nil, fmt.Errorf("decode badges for %s: %w", username, err)
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// CreateProfile inserts a new profile.
func (s *SQLiteStore) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	query := `INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err := s.writeProfile(ctx, query, profile)
	if shared.IsSQLiteUniqueError(err) {
		return fmt.Errorf("create profile %q: %w", profile.Username, domain.ErrDuplicate)
	}
	return err
}

// PutProfile creates or replaces a profile.
func (s *SQLiteStore) PutProfile(ctx context.Context, profile *domain.UserProfile) error {
	query := `
	INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET
		password_hash = excluded.password_hash,
		xp = excluded.xp,
		level = excluded.level,
		streak = excluded.streak,
		last_active_date = excluded.last_active_date,
		badges_json = excluded.badges_json,
		total_sessions = excluded.total_sessions,
		total_seconds = excluded.total_seconds,
		daily_minutes = excluded.daily_minutes,
		updated_at = excluded.updated_at`
	return s.writeProfile(ctx, query, profile)
}

func (s *SQLiteStore) writeProfile(ctx context.Context, query string, p *domain.UserProfile) error {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	badgesJSON, err := json.Marshal(badges)
	if err != nil {
		return fmt.Errorf("encode badges: %w", err)
	}

	return withRetry(ctx, "write profile", func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.Username, p.PasswordHash, p.XP, p.Level, p.Streak, p.LastActiveDate,
			string(badgesJSON), p.Stats.TotalSessions, p.Stats.TotalSeconds, p.Stats.DailyMinutes,
			p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
		)
		return err
	})
}

// ListUsernames returns all usernames in registration order.
func (s *SQLiteStore) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM profiles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close username rows", "error", closeErr)
		}
	}()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return names, nil
}

// AppendSession stores a ledger entry and assigns its ID.
func (s *SQLiteStore) AppendSession(ctx context.Context, session *domain.CoachingSession) error {
	tips := session.Tips
	if tips == nil {
		tips = []string{}
	}
	tipsJSON, err := json.Marshal(tips)
	if err != nil {
		return fmt.Errorf("encode tips: %w", err)
	}

	query := `
	INSERT INTO coaching_sessions (
		user_id, mode, transcript, heuristic_score, confidence,
		fluent_sentence, tips_json, tone, duration_seconds, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return withRetry(ctx, "append session", func() error {
		res, err := s.db.ExecContext(ctx, query,
			session.UserID, session.Mode, session.Transcript, session.HeuristicScore, session.Confidence,
			session.FluentSentence, string(tipsJSON), session.Tone, session.DurationSeconds,
			session.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get session id: %w", err)
		}
		session.ID = id
		return nil
	})
}

// ListSessions returns a user's entries, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.CoachingSession, error) {
	query := `
		SELECT id, user_id, mode, transcript, heuristic_score, confidence,
		       fluent_sentence, tips_json, tone, duration_seconds, created_at
		FROM coaching_sessions WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	sessions := []*domain.CoachingSession{}
	for rows.Next() {
		var cs domain.CoachingSession
		var tipsJSON string
		var createdAt int64
		if err := rows.Scan(
			&cs.ID, &cs.UserID, &cs.Mode, &cs.Transcript, &cs.HeuristicScore, &cs.Confidence,
			&cs.FluentSentence, &tipsJSON, &cs.Tone, &cs.DurationSeconds, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if err := json.Unmarshal([]byte(tipsJSON), &cs.Tips); err != nil {
			return nil, fmt.Errorf("decode tips for session %d: %w", cs.ID, err)
		}
		cs.CreatedAt = time.UnixMilli(createdAt)
		sessions = append(sessions, &cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// withRetry runs op with exponential backoff on SQLITE_BUSY errors.
func withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == writeMaxRetries-1 {
			break
		}
		delay := writeRetryBaseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Database locked, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
