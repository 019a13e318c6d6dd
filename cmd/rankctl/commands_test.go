package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	fallback := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := parseDay("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = parseDay("2014-10-18", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 10, 18, 0, 0, 0, 0, time.UTC), got)

	_, err = parseDay("18/10/2014", fallback)
	assert.Error(t, err)
}

func TestWriteRanking(t *testing.T) {
	one, three := 1, 3
	ranking := &domain.Ranking{
		Region:      "norcal",
		Time:        time.Date(2014, 10, 20, 0, 0, 0, 0, time.UTC),
		Tournaments: []string{"t1", "t2"},
		Entries: []domain.RankingEntry{
			{Player: "p-mango", Rank: 1, Rating: 29.3956, PreviousRank: &three},
			{Player: "p-slox", Rank: 2, Rating: 25.045, PreviousRank: &one},
			{Player: "p-ghost", Rank: 3, Rating: 19.003},
		},
	}
	names := map[string]string{"p-mango": "mango", "p-slox": "slox"}

	var buf bytes.Buffer
	writeRanking(&buf, ranking, names)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "norcal ranking at 2014-10-20 (2 tournaments)", lines[0])
	assert.Equal(t, []string{"RANK", "PLAYER", "RATING", "CHANGE"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "mango", "29.396", "+2"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "slox", "25.045", "-1"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"3", "p-ghost", "19.003", "new"}, strings.Fields(lines[4]))
}

func TestPrintPending(t *testing.T) {
	p := &service.PendingImport{
		Pending: &domain.PendingTournament{
			ID:            "pt-1",
			Name:          "BAM 6",
			Date:          time.Date(2014, 10, 18, 0, 0, 0, 0, time.UTC),
			Aliases:       []string{"mango", "sfat", "newcomer"},
			AliasMappings: map[string]string{"mango": "p-mango"},
		},
		Resolutions: map[string]service.AliasResolution{
			"sfat": {Suggestions: []domain.Player{{ID: "p-sfat", Name: "SFAT"}}},
		},
	}

	var buf bytes.Buffer
	printPending(&buf, p)

	assert.Equal(t, "pending pt-1: BAM 6 (2014-10-18)\n"+
		"  mango -> p-mango\n"+
		"  sfat ?? SFAT (p-sfat)\n"+
		"  newcomer -> new player\n", buf.String())
}
