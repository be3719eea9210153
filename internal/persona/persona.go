// Package persona defines the simulated forum participants and the
// novice-to-expert matching policy.
package persona

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the behavioral role of a persona. Novices post about struggles,
// experts reply with solutions. Role is immutable once assigned.
type Role int

const (
	RoleNovice Role = iota
	RoleExpert
)

func (r Role) String() string {
	switch r {
	case RoleNovice:
		return "novice"
	case RoleExpert:
		return "expert"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// ParseRole converts a stored role string back to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "novice":
		return RoleNovice, nil
	case "expert":
		return RoleExpert, nil
	default:
		return RoleNovice, fmt.Errorf("unknown role %q", s)
	}
}

// GameAffinity ties a persona to one game. Novices carry Struggles, experts
// carry Expertise; both lists are keyed by game title.
type GameAffinity struct {
	Game      string   `json:"game"`
	Genres    []string `json:"genres,omitempty"`
	Struggles []string `json:"struggles,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
}

// Persona is a simulated forum participant with a fixed behavioral profile.
type Persona struct {
	Username   string         `json:"username"`
	Role       Role           `json:"role"`
	SkillLevel int            `json:"skill_level"` // 0-10
	Genres     []string       `json:"genres,omitempty"`
	Traits     []string       `json:"traits,omitempty"`
	Style      string         `json:"style,omitempty"`
	Games      []GameAffinity `json:"games,omitempty"`

	// PairedNovice fixes an expert to one novice. Empty for novices and
	// unpaired experts.
	PairedNovice string `json:"paired_novice,omitempty"`
}

// IsExpert reports whether the persona carries the expert role.
func (p *Persona) IsExpert() bool { return p.Role == RoleExpert }

// AffinityFor returns the persona's affinity for a game title, nil when the
// persona has none.
func (p *Persona) AffinityFor(game string) *GameAffinity {
	for i := range p.Games {
		if strings.EqualFold(p.Games[i].Game, game) {
			return &p.Games[i]
		}
	}
	return nil
}

// GameTitles returns the titles of every game the persona has an affinity
// for, in declaration order.
func (p *Persona) GameTitles() []string {
	out := make([]string, 0, len(p.Games))
	for _, g := range p.Games {
		out = append(out, g.Game)
	}
	return out
}

// AllGenres merges the persona's top-level genres with per-game genres,
// de-duplicated and lowercased.
func (p *Persona) AllGenres() map[string]struct{} {
	out := make(map[string]struct{})
	for _, g := range p.Genres {
		out[strings.ToLower(g)] = struct{}{}
	}
	for _, ga := range p.Games {
		for _, g := range ga.Genres {
			out[strings.ToLower(g)] = struct{}{}
		}
	}
	return out
}

// sortByUsername orders personas alphabetically for reproducible iteration.
func sortByUsername(personas []*Persona) {
	sort.Slice(personas, func(i, j int) bool {
		return personas[i].Username < personas[j].Username
	})
}
