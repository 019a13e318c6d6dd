package service

import (
	"context"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/repository"

	"github.com/rs/zerolog"
)

// CriteriaUpdate overrides a region's ranking criteria; nil fields keep their value.
type CriteriaUpdate struct {
	DayLimit          *int
	NumTourneys       *int
	QualifiedDayLimit *int
}

func (c CriteriaUpdate) empty() bool {
	return c.DayLimit == nil && c.NumTourneys == nil && c.QualifiedDayLimit == nil
}

type RegionService struct {
	regions *repository.RegionRepository
	logger  zerolog.Logger
}

func NewRegionService(regions *repository.RegionRepository, logger zerolog.Logger) *RegionService {
	return &RegionService{regions: regions, logger: logger}
}

func (s *RegionService) List(ctx context.Context) ([]domain.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.regions.List(ctx)
}

func (s *RegionService) Get(ctx context.Context, id string) (*domain.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.regions.Get(ctx, id)
}

// Seed creates or overwrites every given region.
func (s *RegionService) Seed(ctx context.Context, regions []domain.Region) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	for i := range regions {
		if err := s.regions.Upsert(ctx, &regions[i]); err != nil {
			return err
		}
	}
	s.logger.Info().Int("regions", len(regions)).Msg("regions seeded")
	return nil
}

// UpdateCriteria applies the non-nil overrides and returns the resulting region.
func (s *RegionService) UpdateCriteria(ctx context.Context, id string, update CriteriaUpdate) (*domain.Region, error) {
	region, err := s.WithCriteria(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if update.empty() {
		return region, nil
	}
	if err := s.SaveCriteria(ctx, region); err != nil {
		return nil, err
	}
	return region, nil
}

// WithCriteria returns the region with the non-nil overrides applied, without storing it.
func (s *RegionService) WithCriteria(ctx context.Context, id string, update CriteriaUpdate) (*domain.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	region, err := s.regions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for field, v := range map[string]*int{
		"ranking_activity_day_limit":     update.DayLimit,
		"ranking_num_tourneys_attended":  update.NumTourneys,
		"tournament_qualified_day_limit": update.QualifiedDayLimit,
	} {
		if v != nil && *v <= 0 {
			return nil, &domain.InvalidStateError{Entity: "region", ID: id, Reason: field + " must be positive"}
		}
	}

	if update.DayLimit != nil {
		region.RankingDayLimit = *update.DayLimit
	}
	if update.NumTourneys != nil {
		region.RankingNumTourneys = *update.NumTourneys
	}
	if update.QualifiedDayLimit != nil {
		region.TournamentQualifiedDayLimit = *update.QualifiedDayLimit
	}
	return region, nil
}

// SaveCriteria stores the region's ranking criteria.
func (s *RegionService) SaveCriteria(ctx context.Context, region *domain.Region) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if err := s.regions.UpdateCriteria(ctx, region.ID, region.RankingDayLimit, region.RankingNumTourneys, region.TournamentQualifiedDayLimit); err != nil {
		return err
	}
	s.logger.Info().
		Str("region", region.ID).
		Int("day_limit", region.RankingDayLimit).
		Int("num_tourneys", region.RankingNumTourneys).
		Int("qualified_day_limit", region.TournamentQualifiedDayLimit).
		Msg("ranking criteria updated")
	return nil
}
