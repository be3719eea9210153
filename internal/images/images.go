// Package images maintains the game-to-image mapping and picks non-repeated
// illustrative images for posts.
package images

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"forumagent/internal/logging"
)

// GameImages is the known image set for one game, with a designated primary.
type GameImages struct {
	Primary string
	Paths   []string
}

// Mapping maps game titles to known image paths. It is mutated
// opportunistically when new images are discovered on disk.
type Mapping struct {
	mu    sync.RWMutex
	dir   string
	games map[string]*GameImages
}

// NewMapping creates a mapping rooted at dir.
func NewMapping(dir string) *Mapping {
	return &Mapping{dir: dir, games: make(map[string]*GameImages)}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slug converts a game title to its on-disk directory name.
func slug(game string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(game), "-")
	return strings.Trim(s, "-")
}

// Discover scans the image directory for a game and merges any new files
// into the mapping. The first discovered image becomes the primary unless
// one is already set. Missing directories are not an error; games simply
// have no images yet.
func (m *Mapping) Discover(game string) []string {
	gameDir := filepath.Join(m.dir, slug(game))
	entries, err := os.ReadDir(gameDir)
	if err != nil {
		logging.ImagesDebug("no image directory for %s (%s)", game, gameDir)
		return m.Paths(game)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	gi := m.games[game]
	if gi == nil {
		gi = &GameImages{}
		m.games[game] = gi
	}
	known := make(map[string]struct{}, len(gi.Paths))
	for _, p := range gi.Paths {
		known[p] = struct{}{}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		default:
			continue
		}
		path := filepath.Join(gameDir, e.Name())
		if _, ok := known[path]; ok {
			continue
		}
		gi.Paths = append(gi.Paths, path)
		known[path] = struct{}{}
		if gi.Primary == "" {
			gi.Primary = path
		}
		logging.ImagesDebug("discovered image for %s: %s", game, path)
	}

	out := make([]string, len(gi.Paths))
	copy(out, gi.Paths)
	return out
}

// Paths returns the known image paths for a game.
func (m *Mapping) Paths(game string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gi := m.games[game]
	if gi == nil {
		return nil
	}
	out := make([]string, len(gi.Paths))
	copy(out, gi.Paths)
	return out
}

// Primary returns the designated primary image for a game, empty when none.
func (m *Mapping) Primary(game string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gi := m.games[game]; gi != nil {
		return gi.Primary
	}
	return ""
}

// UsageStore tracks which images a user has already attached per game.
type UsageStore interface {
	ImagesUsed(ctx context.Context, username, game string) ([]string, error)
	MarkImageUsed(ctx context.Context, username, game, path string) error
}

// Picker selects a non-repeated image for a user's post.
type Picker struct {
	mapping *Mapping
	usage   UsageStore
}

// NewPicker creates a Picker over the given mapping and usage record.
func NewPicker(mapping *Mapping, usage UsageStore) *Picker {
	return &Picker{mapping: mapping, usage: usage}
}

// Pick returns an image the user has not attached for this game yet, marking
// it used. The primary image is preferred while unused. Returns "" when
// every known image has been used or the game has none.
func (p *Picker) Pick(ctx context.Context, username, game string) (string, error) {
	paths := p.mapping.Discover(game)
	if len(paths) == 0 {
		return "", nil
	}

	used, err := p.usage.ImagesUsed(ctx, username, game)
	if err != nil {
		return "", err
	}
	usedSet := make(map[string]struct{}, len(used))
	for _, u := range used {
		usedSet[u] = struct{}{}
	}

	candidates := make([]string, 0, len(paths)+1)
	if primary := p.mapping.Primary(game); primary != "" {
		candidates = append(candidates, primary)
	}
	candidates = append(candidates, paths...)

	for _, c := range candidates {
		if _, ok := usedSet[c]; ok {
			continue
		}
		if err := p.usage.MarkImageUsed(ctx, username, game, c); err != nil {
			return "", err
		}
		logging.ImagesDebug("picked image %s for %s/%s", c, username, game)
		return c, nil
	}

	logging.ImagesDebug("all %d images for %s already used by %s", len(paths), game, username)
	return "", nil
}
