package persona

import (
	"context"
	"fmt"
	"strings"

	"forumagent/internal/logging"
)

// Source lists personas from the persistent store.
type Source interface {
	ListPersonas(ctx context.Context) ([]Persona, error)
}

// Registry is the typed persona directory. It is loaded once from the store;
// when the store has no personas yet, the static bootstrap table below seeds
// demo personas so the agent tasks have someone to wake.
type Registry struct {
	byName map[string]*Persona
	all    []*Persona
}

// NewRegistry builds a registry from an explicit persona list.
func NewRegistry(personas []Persona) *Registry {
	r := &Registry{byName: make(map[string]*Persona, len(personas))}
	for i := range personas {
		p := personas[i]
		key := strings.ToLower(p.Username)
		if _, exists := r.byName[key]; exists {
			logging.MatcherDebug("duplicate persona %s ignored", p.Username)
			continue
		}
		r.byName[key] = &p
		r.all = append(r.all, &p)
	}
	sortByUsername(r.all)
	return r
}

// Load reads personas from the store, falling back to the bootstrap table
// when the store is empty or unreadable.
func Load(ctx context.Context, src Source) (*Registry, error) {
	personas, err := src.ListPersonas(ctx)
	if err != nil {
		logging.Get(logging.CategoryMatcher).Warnf("persona load failed, using bootstrap table: %v", err)
		return NewRegistry(BootstrapPersonas()), nil
	}
	if len(personas) == 0 {
		logging.Matcher("no stored personas, seeding bootstrap table (%d personas)", len(BootstrapPersonas()))
		return NewRegistry(BootstrapPersonas()), nil
	}
	logging.Matcher("loaded %d personas from store", len(personas))
	return NewRegistry(personas), nil
}

// Get looks up a persona by username (case-insensitive).
func (r *Registry) Get(username string) (*Persona, error) {
	p, ok := r.byName[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("persona %q not found", username)
	}
	return p, nil
}

// All returns every persona in stable alphabetical order.
func (r *Registry) All() []*Persona {
	out := make([]*Persona, len(r.all))
	copy(out, r.all)
	return out
}

// Novices returns the novice personas in stable order.
func (r *Registry) Novices() []*Persona { return r.withRole(RoleNovice) }

// Experts returns the expert personas in stable order.
func (r *Registry) Experts() []*Persona { return r.withRole(RoleExpert) }

func (r *Registry) withRole(role Role) []*Persona {
	var out []*Persona
	for _, p := range r.all {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Usernames returns all usernames in stable order.
func (r *Registry) Usernames() []string {
	out := make([]string, 0, len(r.all))
	for _, p := range r.all {
		out = append(out, p.Username)
	}
	return out
}

// BootstrapPersonas is the static fallback table used until real personas
// are provisioned in the store.
func BootstrapPersonas() []Persona {
	return []Persona{
		{
			Username:   "PixelPenny",
			Role:       RoleNovice,
			SkillLevel: 2,
			Genres:     []string{"platformer", "adventure"},
			Traits:     []string{"curious", "easily discouraged"},
			Style:      "casual, lots of questions",
			Games: []GameAffinity{
				{Game: "Hollow Depths", Genres: []string{"platformer"}, Struggles: []string{"Boss Fight", "wall jumps"}},
				{Game: "Starlight Drifter", Genres: []string{"adventure"}, Struggles: []string{"navigation", "puzzles"}},
			},
		},
		{
			Username:   "GrindstoneGary",
			Role:       RoleNovice,
			SkillLevel: 3,
			Genres:     []string{"rpg", "strategy"},
			Traits:     []string{"methodical", "verbose"},
			Style:      "long-form, detail oriented",
			Games: []GameAffinity{
				{Game: "Emberfall Tactics", Genres: []string{"strategy"}, Struggles: []string{"unit builds", "Chapter 6"}},
				{Game: "Runebound Chronicle", Genres: []string{"rpg"}, Struggles: []string{"skill trees"}},
			},
		},
		{
			Username:     "ApexAlice",
			Role:         RoleExpert,
			SkillLevel:   9,
			Genres:       []string{"platformer", "action"},
			Traits:       []string{"encouraging", "precise"},
			Style:        "short, actionable tips",
			PairedNovice: "PixelPenny",
			Games: []GameAffinity{
				{Game: "Hollow Depths", Genres: []string{"platformer"}, Expertise: []string{"Boss Fight", "speedruns", "wall jumps"}},
				{Game: "Neon Vanguard", Genres: []string{"action"}, Expertise: []string{"combos"}},
			},
		},
		{
			Username:   "StratSage",
			Role:       RoleExpert,
			SkillLevel: 8,
			Genres:     []string{"strategy", "rpg"},
			Traits:     []string{"analytical", "patient"},
			Style:      "structured walkthroughs",
			Games: []GameAffinity{
				{Game: "Emberfall Tactics", Genres: []string{"strategy"}, Expertise: []string{"unit builds", "map control"}},
				{Game: "Runebound Chronicle", Genres: []string{"rpg"}, Expertise: []string{"skill trees", "boss mechanics"}},
			},
		},
		{
			Username:   "TurboTheo",
			Role:       RoleExpert,
			SkillLevel: 10,
			Genres:     []string{"racing", "sports"},
			Traits:     []string{"blunt", "competitive"},
			Style:      "terse",
			Games: []GameAffinity{
				{Game: "Circuit Royale", Genres: []string{"racing"}, Expertise: []string{"time trials", "drifting"}},
			},
		},
	}
}
