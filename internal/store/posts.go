package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"forumagent/internal/logging"
)

const postCols = "id, forum_id, author, simulated, body, reply_to, image, created_at"

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var simulated int
	var replyTo, image sql.NullString
	if err := row.Scan(&p.ID, &p.ForumID, &p.Author, &simulated, &p.Body, &replyTo, &image, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Simulated = simulated != 0
	p.ReplyTo = replyTo.String
	p.Image = image.String
	return &p, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AddPost appends a post to a forum and returns it with its assigned ID.
func (s *Store) AddPost(ctx context.Context, p Post) (*Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO posts (id, forum_id, author, simulated, body, reply_to, image, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.ForumID, p.Author, boolToInt(p.Simulated), p.Body, nullable(p.ReplyTo), nullable(p.Image), p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add post: %w", err)
	}
	logging.StoreDebug("post %s by %s added to forum %s", p.ID, p.Author, p.ForumID)
	return &p, nil
}

// RecentPostsByGame returns simulated and human posts for a game since the
// given time, newest first.
func (s *Store) RecentPostsByGame(ctx context.Context, game string, since time.Time) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.forum_id, p.author, p.simulated, p.body, p.reply_to, p.image, p.created_at
		FROM posts p JOIN forums f ON f.id = p.forum_id
		WHERE f.game = ? AND p.created_at >= ?
		ORDER BY p.created_at DESC`, game, since)
	if err != nil {
		return nil, fmt.Errorf("recent posts by game: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// RecentPostsByAuthor returns an author's posts since the given time, newest
// first.
func (s *Store) RecentPostsByAuthor(ctx context.Context, author string, since time.Time) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postCols+" FROM posts WHERE author = ? AND created_at >= ? ORDER BY created_at DESC",
		author, since)
	if err != nil {
		return nil, fmt.Errorf("recent posts by author: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// UnansweredPosts returns posts the given replier has not answered, newest
// first. A post counts as unanswered when the replier has no post in the
// same forum after the post's timestamp. Posts older than `since` and posts
// authored by the replier are excluded.
func (s *Store) UnansweredPosts(ctx context.Context, replier string, since time.Time) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postCols+` FROM posts p
		WHERE p.author != ?
		  AND p.created_at >= ?
		  AND NOT EXISTS (
			SELECT 1 FROM posts r
			WHERE r.forum_id = p.forum_id
			  AND r.author = ?
			  AND r.created_at > p.created_at
		  )
		ORDER BY p.created_at DESC`, replier, since, replier)
	if err != nil {
		return nil, fmt.Errorf("unanswered posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
