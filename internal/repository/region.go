package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
)

type RegionRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRegionRepository(sqlDB *sql.DB, logger zerolog.Logger) *RegionRepository {
	return &RegionRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *RegionRepository) Upsert(ctx context.Context, region *domain.Region) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO regions (id, display_name, ranking_day_limit, ranking_num_tourneys, tournament_qualified_day_limit)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			ranking_day_limit = excluded.ranking_day_limit,
			ranking_num_tourneys = excluded.ranking_num_tourneys,
			tournament_qualified_day_limit = excluded.tournament_qualified_day_limit`,
		region.ID, region.DisplayName, region.RankingDayLimit, region.RankingNumTourneys, region.TournamentQualifiedDayLimit)
	if err != nil {
		return fmt.Errorf("failed to upsert region %s: %w", region.ID, err)
	}
	return nil
}

func (r *RegionRepository) Get(ctx context.Context, id string) (*domain.Region, error) {
	var region domain.Region
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, ranking_day_limit, ranking_num_tourneys, tournament_qualified_day_limit
		FROM regions WHERE id = ?`, id).
		Scan(&region.ID, &region.DisplayName, &region.RankingDayLimit, &region.RankingNumTourneys, &region.TournamentQualifiedDayLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("region", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get region %s: %w", id, err)
	}
	return &region, nil
}

// List returns all regions sorted by display name.
func (r *RegionRepository) List(ctx context.Context) ([]domain.Region, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, ranking_day_limit, ranking_num_tourneys, tournament_qualified_day_limit
		FROM regions ORDER BY display_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	regions := []domain.Region{}
	for rows.Next() {
		var region domain.Region
		if err := rows.Scan(&region.ID, &region.DisplayName, &region.RankingDayLimit, &region.RankingNumTourneys, &region.TournamentQualifiedDayLimit); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

func (r *RegionRepository) UpdateCriteria(ctx context.Context, id string, dayLimit, numTourneys, qualifiedDayLimit int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE regions SET ranking_day_limit = ?, ranking_num_tourneys = ?, tournament_qualified_day_limit = ?
		WHERE id = ?`, dayLimit, numTourneys, qualifiedDayLimit, id)
	if err != nil {
		return fmt.Errorf("failed to update ranking criteria for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("region", id)
	}

	r.logger.Info().
		Str("region", id).
		Int("day_limit", dayLimit).
		Int("num_tourneys", numTourneys).
		Int("qualified_day_limit", qualifiedDayLimit).
		Msg("ranking criteria updated")
	return nil
}

func (r *RegionRepository) GetRankingDayLimit(ctx context.Context, id string) (int, error) {
	region, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return region.RankingDayLimit, nil
}

func (r *RegionRepository) GetRankingMinTournaments(ctx context.Context, id string) (int, error) {
	region, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return region.RankingNumTourneys, nil
}
