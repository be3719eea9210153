// Package store persists forums, posts, questions, personas, and image usage
// in SQLite. It is the shared mutable surface of the agent subsystem: posts
// are append-only, forum creation is race-tolerant, and image usage is
// read-modify-write per (user, game).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"forumagent/internal/logging"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	// forumGroup collapses concurrent find-or-create calls for the same
	// (game, category) before they reach the insert path.
	forumGroup singleflight.Group
}

// New initializes the SQLite database at the given path.
func New(path string) (*Store, error) {
	logging.Store("initializing store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("schema initialized")
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	forumsTable := `
	CREATE TABLE IF NOT EXISTS forums (
		id TEXT PRIMARY KEY,
		game TEXT NOT NULL,
		category TEXT NOT NULL,
		creator TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_forums_active_game_category
		ON forums(game, category) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_forums_game ON forums(game);
	`

	postsTable := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		forum_id TEXT NOT NULL REFERENCES forums(id),
		author TEXT NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL,
		reply_to TEXT,
		image TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_posts_forum ON posts(forum_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author, created_at);
	`

	questionsTable := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		game TEXT NOT NULL,
		body TEXT NOT NULL,
		answer TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_questions_user_game ON questions(username, game, created_at);
	CREATE INDEX IF NOT EXISTS idx_questions_game ON questions(game, created_at);
	`

	personasTable := `
	CREATE TABLE IF NOT EXISTS personas (
		username TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		skill INTEGER NOT NULL DEFAULT 0,
		genres TEXT,
		traits TEXT,
		style TEXT,
		games TEXT,
		paired_novice TEXT
	);
	`

	imageUsageTable := `
	CREATE TABLE IF NOT EXISTS image_usage (
		username TEXT NOT NULL,
		game TEXT NOT NULL,
		path TEXT NOT NULL,
		used_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, game, path)
	);
	`

	for _, stmt := range []string{forumsTable, postsTable, questionsTable, personasTable, imageUsageTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	logging.StoreDebug("closing store at %s", s.dbPath)
	return s.db.Close()
}
