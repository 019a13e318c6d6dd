package service

import (
	"context"
	"errors"
	"testing"

	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRegionService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewRegionService(env.store.Regions, logger.Nop())

	require.NoError(t, svc.Seed(ctx, []domain.Region{
		{ID: "googland", DisplayName: "Googland", RankingDayLimit: 30, RankingNumTourneys: 2, TournamentQualifiedDayLimit: 999},
	}))
	regions, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "googland", regions[0].ID)

	unchanged, err := svc.UpdateCriteria(ctx, region, CriteriaUpdate{})
	require.NoError(t, err)
	assert.Equal(t, 60, unchanged.RankingDayLimit)

	updated, err := svc.UpdateCriteria(ctx, region, CriteriaUpdate{DayLimit: intPtr(90)})
	require.NoError(t, err)
	assert.Equal(t, 90, updated.RankingDayLimit)
	assert.Equal(t, 1, updated.RankingNumTourneys)

	stored, err := svc.Get(ctx, region)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)

	preview, err := svc.WithCriteria(ctx, region, CriteriaUpdate{DayLimit: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, preview.RankingDayLimit)
	stored, err = svc.Get(ctx, region)
	require.NoError(t, err)
	assert.Equal(t, 90, stored.RankingDayLimit, "WithCriteria does not store")

	_, err = svc.WithCriteria(ctx, region, CriteriaUpdate{QualifiedDayLimit: intPtr(-1)})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	_, err = svc.UpdateCriteria(ctx, region, CriteriaUpdate{NumTourneys: intPtr(0)})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	_, err = svc.UpdateCriteria(ctx, "nowhere", CriteriaUpdate{DayLimit: intPtr(5)})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTournamentService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewTournamentService(env.store.Tournaments, env.store.Regions, logger.Nop())
	p1 := env.seedPlayer(t, "P1")
	p2 := env.seedPlayer(t, "P2")
	later := env.seedTournament(t, "later", date(2014, 2, 1), beat(p1.ID, p2.ID))
	earlier := env.seedTournament(t, "earlier", date(2014, 1, 1), beat(p2.ID, p1.ID))

	list, err := svc.List(ctx, region)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)

	got, err := svc.Get(ctx, region, later.ID)
	require.NoError(t, err)
	assert.Equal(t, "later", got.Name)

	_, err = svc.Get(ctx, "googland", later.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.List(ctx, "nowhere")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
