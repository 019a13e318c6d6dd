// Package scraper turns bracket exports into alias-level match lists.
package scraper

import (
	"time"

	"bracket-rankings/internal/domain"
)

// Scraper is a parsed bracket whose players are still free-text aliases.
type Scraper interface {
	Name() string
	Date() time.Time
	URL() string
	// Players returns every alias in order of first appearance.
	Players() []string
	Matches() []domain.AliasMatch
}

type Bracket struct {
	name    string
	date    time.Time
	url     string
	players []string
	matches []domain.AliasMatch
}

func (b *Bracket) Name() string                 { return b.name }
func (b *Bracket) Date() time.Time              { return b.date }
func (b *Bracket) URL() string                  { return b.url }
func (b *Bracket) Players() []string            { return b.players }
func (b *Bracket) Matches() []domain.AliasMatch { return b.matches }

func newBracket(name string, date time.Time, url string, players []string, matches []domain.AliasMatch) *Bracket {
	if players == nil {
		players = playersFromMatches(matches)
	}
	if matches == nil {
		matches = []domain.AliasMatch{}
	}
	return &Bracket{name: name, date: date, url: url, players: players, matches: matches}
}

func playersFromMatches(matches []domain.AliasMatch) []string {
	seen := make(map[string]struct{})
	players := []string{}
	for _, m := range matches {
		for _, p := range []string{m.Winner, m.Loser} {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			players = append(players, p)
		}
	}
	return players
}
