package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"forumagent/internal/logging"
)

// Category is a forum content category. The set is fixed; the orchestrator
// picks one from a weighted distribution.
type Category string

const (
	CategoryGameplay  Category = "gameplay"
	CategoryGeneral   Category = "general"
	CategorySpeedruns Category = "speedruns"
	CategoryHelp      Category = "help"
	CategoryMods      Category = "mods"
)

// Categories lists all valid forum categories.
func Categories() []Category {
	return []Category{CategoryGameplay, CategoryGeneral, CategorySpeedruns, CategoryHelp, CategoryMods}
}

// Forum is a discussion board for one (game, category) pair.
type Forum struct {
	ID        string
	Game      string
	Category  Category
	Creator   string
	Active    bool
	CreatedAt time.Time
	Posts     []Post
}

// Post is one forum message. Posts are append-only.
type Post struct {
	ID        string
	ForumID   string
	Author    string
	Simulated bool
	Body      string
	ReplyTo   string
	Image     string
	CreatedAt time.Time
}

const forumCols = "id, game, category, creator, active, created_at"

func scanForum(row interface{ Scan(...any) error }) (*Forum, error) {
	var f Forum
	var active int
	if err := row.Scan(&f.ID, &f.Game, &f.Category, &f.Creator, &active, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Active = active != 0
	return &f, nil
}

// FindForum returns the active forum for (game, category), or nil when none
// exists.
func (s *Store) FindForum(ctx context.Context, game string, category Category) (*Forum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		"SELECT "+forumCols+" FROM forums WHERE game = ? AND category = ? AND active = 1", game, category)
	f, err := scanForum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find forum: %w", err)
	}
	return f, nil
}

// ForumsForGame returns all active forums for a game, oldest first.
func (s *Store) ForumsForGame(ctx context.Context, game string) ([]Forum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+forumCols+" FROM forums WHERE game = ? AND active = 1 ORDER BY created_at", game)
	if err != nil {
		return nil, fmt.Errorf("forums for game: %w", err)
	}
	defer rows.Close()
	return collectForums(rows)
}

// AllForums returns every active forum.
func (s *Store) AllForums(ctx context.Context) ([]Forum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+forumCols+" FROM forums WHERE active = 1 ORDER BY game, category")
	if err != nil {
		return nil, fmt.Errorf("all forums: %w", err)
	}
	defer rows.Close()
	return collectForums(rows)
}

func collectForums(rows *sql.Rows) ([]Forum, error) {
	var out []Forum
	for rows.Next() {
		f, err := scanForum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ActiveForumCount returns the number of active forums per game.
func (s *Store) ActiveForumCount(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT game, COUNT(*) FROM forums WHERE active = 1 GROUP BY game")
	if err != nil {
		return nil, fmt.Errorf("forum counts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var game string
		var n int
		if err := rows.Scan(&game, &n); err != nil {
			return nil, err
		}
		out[game] = n
	}
	return out, rows.Err()
}

// CreateForum creates the active forum for (game, category), tolerating
// racing creators: the check is repeated immediately before insert, and a
// unique-index violation resolves to the canonical row rather than an error.
// Both racers receive the same forum.
func (s *Store) CreateForum(ctx context.Context, game string, category Category, creator string) (*Forum, error) {
	key := game + "\x00" + string(category)
	v, err, _ := s.forumGroup.Do(key, func() (interface{}, error) {
		return s.createForumLocked(ctx, game, category, creator)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Forum), nil
}

func (s *Store) createForumLocked(ctx context.Context, game string, category Category, creator string) (*Forum, error) {
	// Re-check right before insert: another process (or an earlier racer
	// outside this singleflight) may have created it already.
	if existing, err := s.FindForum(ctx, game, category); err != nil {
		return nil, err
	} else if existing != nil {
		logging.StoreDebug("forum for (%s, %s) already exists, returning canonical", game, category)
		return existing, nil
	}

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO forums (id, game, category, creator, active) VALUES (?, ?, ?, ?, 1)",
		uuid.NewString(), game, category, creator)
	s.mu.Unlock()
	if err != nil {
		// Duplicate found after the creation attempt is the canonical
		// forum, not an error.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			logging.StoreDebug("lost forum-creation race for (%s, %s), re-querying", game, category)
			canonical, findErr := s.FindForum(ctx, game, category)
			if findErr != nil {
				return nil, findErr
			}
			if canonical != nil {
				return canonical, nil
			}
		}
		return nil, fmt.Errorf("create forum: %w", err)
	}

	logging.Store("created forum for (%s, %s) by %s", game, category, creator)
	canonical, err := s.FindForum(ctx, game, category)
	if err != nil {
		return nil, err
	}
	return canonical, nil
}

// GetForum loads a forum with its posts ordered oldest first.
func (s *Store) GetForum(ctx context.Context, id string) (*Forum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+forumCols+" FROM forums WHERE id = ?", id)
	f, err := scanForum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("forum %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get forum: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postCols+" FROM posts WHERE forum_id = ? ORDER BY created_at", id)
	if err != nil {
		return nil, fmt.Errorf("forum posts: %w", err)
	}
	defer rows.Close()
	f.Posts, err = collectPosts(rows)
	if err != nil {
		return nil, err
	}
	return f, nil
}
