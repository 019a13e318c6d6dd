package service

import (
	"context"
	"slices"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/repository"

	"github.com/rs/zerolog"
)

type TournamentService struct {
	tournaments *repository.TournamentRepository
	regions     *repository.RegionRepository
	logger      zerolog.Logger
}

func NewTournamentService(tournaments *repository.TournamentRepository, regions *repository.RegionRepository, logger zerolog.Logger) *TournamentService {
	return &TournamentService{tournaments: tournaments, regions: regions, logger: logger}
}

// List returns the region's tournaments oldest first.
func (s *TournamentService) List(ctx context.Context, region string) ([]domain.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.regions.Get(ctx, region); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("region", region).Msg("listing tournaments")
	return s.tournaments.ListByRegion(ctx, region)
}

// Get returns a tournament of region. Tournaments of other regions are reported missing.
func (s *TournamentService) Get(ctx context.Context, region, id string) (*domain.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	t, err := s.tournaments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(t.Regions, region) {
		return nil, domain.NewNotFound("tournament", id)
	}
	return t, nil
}
