package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Question records one Q&A interaction so later generations can avoid
// repeating themselves.
type Question struct {
	ID        string
	Username  string
	Game      string
	Body      string
	Answer    string
	CreatedAt time.Time
}

// AddQuestion stores an asked question and its answer.
func (s *Store) AddQuestion(ctx context.Context, q Question) (*Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO questions (id, username, game, body, answer, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		q.ID, q.Username, q.Game, q.Body, nullable(q.Answer), q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}
	return &q, nil
}

// RecentQuestions returns questions about a game since the given time,
// newest first, capped at limit.
func (s *Store) RecentQuestions(ctx context.Context, game string, since time.Time, limit int) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, game, body, answer, created_at FROM questions WHERE game = ? AND created_at >= ? ORDER BY created_at DESC LIMIT ?",
		game, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent questions: %w", err)
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// RecentQuestionsByUser returns a persona's questions since the given time,
// newest first.
func (s *Store) RecentQuestionsByUser(ctx context.Context, username string, since time.Time) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, game, body, answer, created_at FROM questions WHERE username = ? AND created_at >= ? ORDER BY created_at DESC",
		username, since)
	if err != nil {
		return nil, fmt.Errorf("recent questions by user: %w", err)
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// QuestionCountsByGame returns how many questions a persona has asked per
// game since the given time. The ask-question activity weights game
// selection toward games asked about least.
func (s *Store) QuestionCountsByGame(ctx context.Context, username string, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT game, COUNT(*) FROM questions WHERE username = ? AND created_at >= ? GROUP BY game",
		username, since)
	if err != nil {
		return nil, fmt.Errorf("question counts: %w", err)
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

func collectQuestions(rows *sql.Rows) ([]Question, error) {
	var out []Question
	for rows.Next() {
		var q Question
		var answer sql.NullString
		if err := rows.Scan(&q.ID, &q.Username, &q.Game, &q.Body, &answer, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Answer = answer.String
		out = append(out, q)
	}
	return out, rows.Err()
}
