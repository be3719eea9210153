package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"forumagent/internal/persona"
)

// ListPersonas loads all stored personas. Implements persona.Source.
func (s *Store) ListPersonas(ctx context.Context) ([]persona.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT username, role, skill, genres, traits, style, games, paired_novice FROM personas ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var out []persona.Persona
	for rows.Next() {
		var p persona.Persona
		var roleStr string
		var genres, traits, style, games, paired sql.NullString
		if err := rows.Scan(&p.Username, &roleStr, &p.SkillLevel, &genres, &traits, &style, &games, &paired); err != nil {
			return nil, err
		}
		role, err := persona.ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("persona %s: %w", p.Username, err)
		}
		p.Role = role
		p.Style = style.String
		p.PairedNovice = paired.String
		if genres.Valid && genres.String != "" {
			if err := json.Unmarshal([]byte(genres.String), &p.Genres); err != nil {
				return nil, fmt.Errorf("persona %s genres: %w", p.Username, err)
			}
		}
		if traits.Valid && traits.String != "" {
			if err := json.Unmarshal([]byte(traits.String), &p.Traits); err != nil {
				return nil, fmt.Errorf("persona %s traits: %w", p.Username, err)
			}
		}
		if games.Valid && games.String != "" {
			if err := json.Unmarshal([]byte(games.String), &p.Games); err != nil {
				return nil, fmt.Errorf("persona %s games: %w", p.Username, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePersona inserts or replaces a persona record. Role is immutable once
// assigned: re-saving with a different role fails.
func (s *Store) SavePersona(ctx context.Context, p persona.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingRole string
	err := s.db.QueryRowContext(ctx,
		"SELECT role FROM personas WHERE username = ?", p.Username).Scan(&existingRole)
	if err == nil && existingRole != p.Role.String() {
		return fmt.Errorf("persona %s role is immutable (stored %s, got %s)", p.Username, existingRole, p.Role)
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("save persona: %w", err)
	}

	genres, err := json.Marshal(p.Genres)
	if err != nil {
		return err
	}
	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return err
	}
	games, err := json.Marshal(p.Games)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (username, role, skill, genres, traits, style, games, paired_novice)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			skill = excluded.skill,
			genres = excluded.genres,
			traits = excluded.traits,
			style = excluded.style,
			games = excluded.games,
			paired_novice = excluded.paired_novice`,
		p.Username, p.Role.String(), p.SkillLevel, string(genres), string(traits), p.Style, string(games), nullable(p.PairedNovice))
	if err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	return nil
}

// ImagesUsed returns the image paths already attached by a user for a game.
func (s *Store) ImagesUsed(ctx context.Context, username, game string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM image_usage WHERE username = ? AND game = ?", username, game)
	if err != nil {
		return nil, fmt.Errorf("images used: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkImageUsed records that a user attached an image for a game. The usage
// record is append-only; marking the same image twice is a no-op.
func (s *Store) MarkImageUsed(ctx context.Context, username, game, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO image_usage (username, game, path) VALUES (?, ?, ?)",
		username, game, path)
	if err != nil {
		return fmt.Errorf("mark image used: %w", err)
	}
	return nil
}
