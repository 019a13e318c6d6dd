package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	TournamentTypeTIO       = "tio"
	TournamentTypeChallonge = "challonge"
)

type Region struct {
	ID                          string
	DisplayName                 string
	RankingDayLimit             int
	RankingNumTourneys          int
	TournamentQualifiedDayLimit int
}

type Player struct {
	ID            string
	Name          string
	Aliases       []string // lowercase, display order preserved
	Ratings       map[string]Rating
	Regions       []string
	Merged        bool
	MergeParent   string
	MergeChildren []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Player) HasAlias(alias string) bool {
	return slices.Contains(p.Aliases, NormalizeAlias(alias))
}

func (p *Player) InRegion(region string) bool {
	return slices.Contains(p.Regions, region)
}

func (p *Player) RatingIn(region string) (Rating, bool) {
	r, ok := p.Ratings[region]
	return r, ok
}

func (p *Player) Validate() error {
	if p.ID == "" {
		return &InvalidStateError{Entity: "player", Reason: "missing id"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &InvalidStateError{Entity: "player", ID: p.ID, Reason: "missing name"}
	}
	seen := make(map[string]struct{}, len(p.Aliases))
	for _, a := range p.Aliases {
		if a != NormalizeAlias(a) {
			return &InvalidStateError{Entity: "player", ID: p.ID, Reason: fmt.Sprintf("alias %q is not normalized", a)}
		}
		if _, dup := seen[a]; dup {
			return &InvalidStateError{Entity: "player", ID: p.ID, Reason: fmt.Sprintf("duplicate alias %q", a)}
		}
		seen[a] = struct{}{}
	}
	if _, ok := seen[NormalizeAlias(p.Name)]; !ok {
		return &InvalidStateError{Entity: "player", ID: p.ID, Reason: fmt.Sprintf("name %q is not an alias", p.Name)}
	}
	if p.Merged != (p.MergeParent != "") {
		return &InvalidStateError{Entity: "player", ID: p.ID, Reason: "merged flag disagrees with merge parent"}
	}
	return nil
}

type Match struct {
	Winner   string
	Loser    string
	Excluded bool
}

func (m Match) Contains(playerID string) bool {
	return m.Winner == playerID || m.Loser == playerID
}

func (m Match) ContainsPair(a, b string) bool {
	return (m.Winner == a && m.Loser == b) || (m.Winner == b && m.Loser == a)
}

func (m Match) Won(playerID string) bool {
	return m.Winner == playerID
}

// Opponent returns the other participant, or "" when playerID is not in the match.
func (m Match) Opponent(playerID string) string {
	switch playerID {
	case m.Winner:
		return m.Loser
	case m.Loser:
		return m.Winner
	}
	return ""
}

type Tournament struct {
	ID      string
	Name    string
	Type    string
	Date    time.Time
	URL     string
	Players []string
	Matches []Match
	Regions []string
	// Seq is the insertion sequence; it orders tournaments sharing a date.
	Seq       int64
	CreatedAt time.Time
}

func (t *Tournament) HasPlayer(playerID string) bool {
	return slices.Contains(t.Players, playerID)
}

// Validate checks that the player set is exactly the set of match participants.
func (t *Tournament) Validate() error {
	if t.ID == "" {
		return &InvalidStateError{Entity: "tournament", Reason: "missing id"}
	}
	if t.Date.IsZero() {
		return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: "missing date"}
	}

	players := make(map[string]struct{}, len(t.Players))
	for _, p := range t.Players {
		if _, dup := players[p]; dup {
			return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: fmt.Sprintf("player %s listed twice", p)}
		}
		players[p] = struct{}{}
	}

	participants := make(map[string]struct{}, len(t.Players))
	for i, m := range t.Matches {
		if m.Winner == "" || m.Loser == "" {
			return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: fmt.Sprintf("match %d has an empty side", i)}
		}
		if m.Winner == m.Loser {
			return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: fmt.Sprintf("match %d has the same winner and loser", i)}
		}
		participants[m.Winner] = struct{}{}
		participants[m.Loser] = struct{}{}
	}

	for p := range participants {
		if _, ok := players[p]; !ok {
			return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: fmt.Sprintf("match participant %s missing from players", p)}
		}
	}
	for p := range players {
		if _, ok := participants[p]; !ok {
			return &InvalidStateError{Entity: "tournament", ID: t.ID, Reason: fmt.Sprintf("player %s has no matches", p)}
		}
	}
	return nil
}

// ReplacePlayer swaps every reference to oldID for newID.
func (t *Tournament) ReplacePlayer(oldID, newID string) {
	players := make([]string, 0, len(t.Players))
	for _, p := range t.Players {
		if p == oldID {
			p = newID
		}
		if !slices.Contains(players, p) {
			players = append(players, p)
		}
	}
	t.Players = players

	for i := range t.Matches {
		if t.Matches[i].Winner == oldID {
			t.Matches[i].Winner = newID
		}
		if t.Matches[i].Loser == oldID {
			t.Matches[i].Loser = newID
		}
	}
}

type RankingEntry struct {
	Player       string
	Rank         int
	Rating       float64
	PreviousRank *int
}

type Ranking struct {
	ID          string
	Region      string
	Time        time.Time
	Tournaments []string
	Entries     []RankingEntry
}

func (r *Ranking) RankOf(playerID string) (int, bool) {
	if r == nil {
		return 0, false
	}
	for _, e := range r.Entries {
		if e.Player == playerID {
			return e.Rank, true
		}
	}
	return 0, false
}

// Validate checks the dense rank invariant: ranks are exactly 1..N in order.
func (r *Ranking) Validate() error {
	seen := make(map[string]struct{}, len(r.Entries))
	for i, e := range r.Entries {
		if e.Rank != i+1 {
			return &InvalidStateError{Entity: "ranking", ID: r.ID, Reason: fmt.Sprintf("entry %d has rank %d", i, e.Rank)}
		}
		if _, dup := seen[e.Player]; dup {
			return &InvalidStateError{Entity: "ranking", ID: r.ID, Reason: fmt.Sprintf("player %s ranked twice", e.Player)}
		}
		seen[e.Player] = struct{}{}
	}
	return nil
}

type AliasMatch struct {
	Winner   string
	Loser    string
	Excluded bool
}

// PendingTournament is a scraped bracket whose aliases are not yet all mapped to players.
type PendingTournament struct {
	ID            string
	Name          string
	Type          string
	Date          time.Time
	URL           string
	Regions       []string
	Aliases       []string
	Matches       []AliasMatch
	AliasMappings map[string]string // alias -> player id
	CreatedAt     time.Time
}

func (p *PendingTournament) UnmappedAliases() []string {
	var out []string
	for _, a := range p.Aliases {
		if p.AliasMappings[a] == "" {
			out = append(out, a)
		}
	}
	return out
}

func (p *PendingTournament) AllAliasesMapped() bool {
	return len(p.UnmappedAliases()) == 0
}

type Merge struct {
	ID           string
	SourcePlayer string
	TargetPlayer string
	Time         time.Time
}
