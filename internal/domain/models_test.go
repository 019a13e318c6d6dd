package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTournamentValidate(t *testing.T) {
	date := time.Date(2013, 10, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		t       Tournament
		wantErr bool
	}{
		{
			name: "players equal participants",
			t: Tournament{ID: "t1", Date: date, Players: []string{"a", "b", "c"}, Matches: []Match{
				{Winner: "a", Loser: "b"},
				{Winner: "c", Loser: "a", Excluded: true},
			}},
		},
		{
			name:    "participant missing from players",
			t:       Tournament{ID: "t1", Date: date, Players: []string{"a"}, Matches: []Match{{Winner: "a", Loser: "b"}}},
			wantErr: true,
		},
		{
			name:    "player without matches",
			t:       Tournament{ID: "t1", Date: date, Players: []string{"a", "b", "c"}, Matches: []Match{{Winner: "a", Loser: "b"}}},
			wantErr: true,
		},
		{
			name:    "self match",
			t:       Tournament{ID: "t1", Date: date, Players: []string{"a"}, Matches: []Match{{Winner: "a", Loser: "a"}}},
			wantErr: true,
		},
		{
			name:    "missing date",
			t:       Tournament{ID: "t1", Players: []string{"a", "b"}, Matches: []Match{{Winner: "a", Loser: "b"}}},
			wantErr: true,
		},
		{
			name: "empty tournament",
			t:    Tournament{ID: "t1", Date: date},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.t.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidState))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTournamentReplacePlayer(t *testing.T) {
	tour := Tournament{
		ID:      "t1",
		Date:    time.Now(),
		Players: []string{"a", "b", "c"},
		Matches: []Match{{Winner: "a", Loser: "b"}, {Winner: "c", Loser: "a"}},
	}

	tour.ReplacePlayer("a", "z")

	assert.Equal(t, []string{"z", "b", "c"}, tour.Players)
	assert.Equal(t, []Match{{Winner: "z", Loser: "b"}, {Winner: "c", Loser: "z"}}, tour.Matches)
	assert.NoError(t, tour.Validate())
}

func TestTournamentReplacePlayerCollapsesDuplicates(t *testing.T) {
	tour := Tournament{Players: []string{"a", "b"}}
	tour.ReplacePlayer("a", "b")
	assert.Equal(t, []string{"b"}, tour.Players)
}

func TestPlayerValidate(t *testing.T) {
	valid := Player{ID: "p1", Name: "gaR", Aliases: []string{"gar", "garr"}}
	assert.NoError(t, valid.Validate())

	missingName := valid
	missingName.Aliases = []string{"garr"}
	assert.ErrorIs(t, missingName.Validate(), ErrInvalidState)

	upper := valid
	upper.Aliases = []string{"gar", "GARR"}
	assert.ErrorIs(t, upper.Validate(), ErrInvalidState)

	merged := valid
	merged.Merged = true
	assert.ErrorIs(t, merged.Validate(), ErrInvalidState)

	merged.MergeParent = "p2"
	assert.NoError(t, merged.Validate())
}

func TestMatchHelpers(t *testing.T) {
	m := Match{Winner: "a", Loser: "b"}

	assert.True(t, m.Contains("a"))
	assert.False(t, m.Contains("c"))
	assert.True(t, m.ContainsPair("b", "a"))
	assert.Equal(t, "b", m.Opponent("a"))
	assert.Equal(t, "a", m.Opponent("b"))
	assert.Equal(t, "", m.Opponent("c"))
	assert.True(t, m.Won("a"))
}

func TestRankingValidate(t *testing.T) {
	r := Ranking{Entries: []RankingEntry{{Player: "a", Rank: 1}, {Player: "b", Rank: 2}}}
	assert.NoError(t, r.Validate())

	rank, ok := r.RankOf("b")
	assert.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = r.RankOf("c")
	assert.False(t, ok)

	gap := Ranking{Entries: []RankingEntry{{Player: "a", Rank: 1}, {Player: "b", Rank: 3}}}
	assert.ErrorIs(t, gap.Validate(), ErrInvalidState)

	var nilRanking *Ranking
	_, ok = nilRanking.RankOf("a")
	assert.False(t, ok)
}

func TestPendingTournamentMapping(t *testing.T) {
	p := PendingTournament{
		Aliases:       []string{"gar", "sfat"},
		AliasMappings: map[string]string{"gar": "p1"},
	}
	assert.Equal(t, []string{"sfat"}, p.UnmappedAliases())
	assert.False(t, p.AllAliasesMapped())

	p.AliasMappings["sfat"] = "p2"
	assert.True(t, p.AllAliasesMapped())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("region", "norcal")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `region "norcal" not found`, err.Error())
}
