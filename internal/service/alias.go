package service

import (
	"context"
	"fmt"
	"sync"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AliasResolution is the exact match for an alias, if any, plus its fuzzy suggestions.
type AliasResolution struct {
	Player      *domain.Player
	Suggestions []domain.Player
}

// AliasService maps scraped aliases to known players. It never writes.
type AliasService struct {
	lookup AliasLookup
	logger zerolog.Logger
}

func NewAliasService(lookup AliasLookup, logger zerolog.Logger) *AliasService {
	return &AliasService{lookup: lookup, logger: logger}
}

// SuggestionsFor returns the similar players of every alias, in lookup order.
func (s *AliasService) SuggestionsFor(ctx context.Context, aliases []string) (map[string][]domain.Player, error) {
	out := make(map[string][]domain.Player, len(aliases))
	var mu sync.Mutex

	err := s.forEach(ctx, aliases, func(ctx context.Context, alias string) error {
		suggestions, err := s.similar(ctx, alias)
		if err != nil {
			return err
		}
		mu.Lock()
		out[alias] = suggestions
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExactOrSuggestionsFor returns the region's exact owner of every alias alongside
// its suggestions. Suggestions are filled whether or not an exact match exists.
func (s *AliasService) ExactOrSuggestionsFor(ctx context.Context, region string, aliases []string) (map[string]AliasResolution, error) {
	out := make(map[string]AliasResolution, len(aliases))
	var mu sync.Mutex

	err := s.forEach(ctx, aliases, func(ctx context.Context, alias string) error {
		player, err := s.lookup.FindPlayerByExactAlias(ctx, region, alias)
		if err != nil {
			return fmt.Errorf("failed to look up alias %q: %w", alias, err)
		}
		suggestions, err := s.similar(ctx, alias)
		if err != nil {
			return err
		}
		mu.Lock()
		out[alias] = AliasResolution{Player: player, Suggestions: suggestions}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopSuggestionFor resolves every alias to one player: the exact match, else the
// suggestion with the shortest name (first one wins on ties), else nil.
func (s *AliasService) TopSuggestionFor(ctx context.Context, region string, aliases []string) (map[string]*domain.Player, error) {
	resolved, err := s.ExactOrSuggestionsFor(ctx, region, aliases)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*domain.Player, len(resolved))
	for alias, r := range resolved {
		out[alias] = topSuggestion(r)
	}
	return out, nil
}

func topSuggestion(r AliasResolution) *domain.Player {
	if r.Player != nil {
		return r.Player
	}
	if len(r.Suggestions) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(r.Suggestions); i++ {
		if len(r.Suggestions[i].Name) < len(r.Suggestions[best].Name) {
			best = i
		}
	}
	p := r.Suggestions[best]
	return &p
}

func (s *AliasService) similar(ctx context.Context, alias string) ([]domain.Player, error) {
	players, err := s.lookup.FindPlayersBySimilarAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("failed to find players similar to %q: %w", alias, err)
	}
	if players == nil {
		players = []domain.Player{}
	}
	return players, nil
}

func (s *AliasService) forEach(ctx context.Context, aliases []string, fn func(ctx context.Context, alias string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.AliasLookupConcurrency)

	for _, alias := range aliases {
		alias := alias
		g.Go(func() error {
			return fn(ctx, alias)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Int("aliases", len(aliases)).Msg("alias resolution failed")
		return err
	}
	return nil
}
