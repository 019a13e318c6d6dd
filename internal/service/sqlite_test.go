package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bracket-rankings/internal/database"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/logger"
	"bracket-rankings/internal/metrics"
	"bracket-rankings/internal/repository"
	"bracket-rankings/internal/scraper"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// testEnv wires the real services over a throwaway SQLite database.
type testEnv struct {
	store    *repository.Store
	rankings *RankingService
	aliases  *AliasService
	imports  *ImportService
	players  *PlayerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.Nop()
	store := repository.NewStore(
		repository.NewRegionRepository(sqlDB, log),
		repository.NewPlayerRepository(sqlDB, log),
		repository.NewTournamentRepository(sqlDB, log),
		repository.NewRankingRepository(sqlDB, log),
	)
	require.NoError(t, store.Regions.Upsert(context.Background(), &domain.Region{
		ID:                          region,
		DisplayName:                 "NorCal",
		RankingDayLimit:             60,
		RankingNumTourneys:          1,
		TournamentQualifiedDayLimit: 999,
	}))

	rankings := NewRankingService(store, store, NewRegionLocker(), metrics.New(prometheus.NewRegistry()), log)
	aliases := NewAliasService(store, log)
	return &testEnv{
		store:    store,
		rankings: rankings,
		aliases:  aliases,
		imports:  NewImportService(store.Regions, store.Players, store.Tournaments, aliases, rankings, nil, log),
		players:  NewPlayerService(store.Players, store.Tournaments, store.Regions, log),
	}
}

func (e *testEnv) seedPlayer(t *testing.T, name string, regions ...string) *domain.Player {
	t.Helper()
	if len(regions) == 0 {
		regions = []string{region}
	}
	p := &domain.Player{Name: name, Aliases: []string{domain.NormalizeAlias(name)}, Regions: regions}
	require.NoError(t, e.store.Players.Insert(context.Background(), p))
	return p
}

func (e *testEnv) seedTournament(t *testing.T, name string, on time.Time, matches ...domain.Match) *domain.Tournament {
	t.Helper()
	tt := tournament(name, on, matches...)
	require.NoError(t, e.store.Tournaments.Insert(context.Background(), &tt))
	return &tt
}

type staticBracket struct {
	name    string
	date    time.Time
	players []string
	matches []domain.AliasMatch
}

var _ scraper.Scraper = (*staticBracket)(nil)

func (b *staticBracket) Name() string                 { return b.name }
func (b *staticBracket) Date() time.Time              { return b.date }
func (b *staticBracket) URL() string                  { return "" }
func (b *staticBracket) Players() []string            { return b.players }
func (b *staticBracket) Matches() []domain.AliasMatch { return b.matches }
