package images

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// memUsage is an in-memory UsageStore for tests.
type memUsage struct {
	used map[string][]string
}

func newMemUsage() *memUsage { return &memUsage{used: make(map[string][]string)} }

func (m *memUsage) ImagesUsed(ctx context.Context, username, game string) ([]string, error) {
	return m.used[username+"/"+game], nil
}

func (m *memUsage) MarkImageUsed(ctx context.Context, username, game, path string) error {
	key := username + "/" + game
	m.used[key] = append(m.used[key], path)
	return nil
}

func writeImages(t *testing.T, dir, game string, names ...string) {
	t.Helper()
	gameDir := filepath.Join(dir, slug(game))
	if err := os.MkdirAll(gameDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(gameDir, n), []byte("img"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscover_FindsAndMergesImages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir, "Hollow Depths", "shot1.png", "shot2.jpg", "notes.txt")

	m := NewMapping(dir)
	paths := m.Discover("Hollow Depths")
	if len(paths) != 2 {
		t.Fatalf("got %d images, want 2 (txt excluded): %v", len(paths), paths)
	}
	if m.Primary("Hollow Depths") == "" {
		t.Error("first discovered image should become primary")
	}

	// New file appears; rediscovery merges it without duplicating.
	writeImages(t, dir, "Hollow Depths", "shot3.png")
	paths = m.Discover("Hollow Depths")
	if len(paths) != 3 {
		t.Errorf("got %d images after rediscovery, want 3", len(paths))
	}
}

func TestPick_NeverRepeatsForSameUser(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir, "Game X", "a.png", "b.png")

	p := NewPicker(NewMapping(dir), newMemUsage())
	ctx := context.Background()

	first, err := p.Pick(ctx, "penny", "Game X")
	if err != nil || first == "" {
		t.Fatalf("first pick: %q, %v", first, err)
	}
	second, err := p.Pick(ctx, "penny", "Game X")
	if err != nil || second == "" {
		t.Fatalf("second pick: %q, %v", second, err)
	}
	if first == second {
		t.Errorf("picker repeated image %q", first)
	}

	third, err := p.Pick(ctx, "penny", "Game X")
	if err != nil {
		t.Fatal(err)
	}
	if third != "" {
		t.Errorf("exhausted game should yield empty pick, got %q", third)
	}
}

func TestPick_NoImagesForGame(t *testing.T) {
	t.Parallel()

	p := NewPicker(NewMapping(t.TempDir()), newMemUsage())
	got, err := p.Pick(context.Background(), "penny", "Unknown Game")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty pick, got %q", got)
	}
}
