package repository

import (
	"context"

	"bracket-rankings/internal/domain"
)

// Store exposes the repositories through the narrow read/write surface the
// ranking engine and alias resolver consume.
type Store struct {
	Regions     *RegionRepository
	Players     *PlayerRepository
	Tournaments *TournamentRepository
	Rankings    *RankingRepository
}

func NewStore(regions *RegionRepository, players *PlayerRepository, tournaments *TournamentRepository, rankings *RankingRepository) *Store {
	return &Store{
		Regions:     regions,
		Players:     players,
		Tournaments: tournaments,
		Rankings:    rankings,
	}
}

func (s *Store) GetRegion(ctx context.Context, id string) (*domain.Region, error) {
	return s.Regions.Get(ctx, id)
}

func (s *Store) GetAllTournaments(ctx context.Context, region string) ([]domain.Tournament, error) {
	return s.Tournaments.ListByRegion(ctx, region)
}

func (s *Store) GetPlayerRating(ctx context.Context, playerID, region string) (*domain.Rating, error) {
	return s.Players.GetRating(ctx, playerID, region)
}

func (s *Store) SetPlayerRating(ctx context.Context, playerID, region string, rating domain.Rating) error {
	return s.Players.SetRating(ctx, playerID, region, rating)
}

func (s *Store) GetExcludedPlayers(ctx context.Context, region string) ([]domain.Player, error) {
	return s.Players.ListExcluded(ctx, region)
}

func (s *Store) GetAllPlayers(ctx context.Context, region string) ([]domain.Player, error) {
	return s.Players.ListByRegion(ctx, region)
}

func (s *Store) InsertRanking(ctx context.Context, ranking *domain.Ranking) error {
	return s.Rankings.Insert(ctx, ranking)
}

func (s *Store) GetLatestRanking(ctx context.Context, region string) (*domain.Ranking, error) {
	return s.Rankings.GetLatest(ctx, region)
}

func (s *Store) FindPlayerByExactAlias(ctx context.Context, region, alias string) (*domain.Player, error) {
	return s.Players.FindPlayerByExactAlias(ctx, region, alias)
}

func (s *Store) FindPlayersBySimilarAlias(ctx context.Context, alias string) ([]domain.Player, error) {
	return s.Players.FindPlayersBySimilarAlias(ctx, alias)
}

func (s *Store) GetRankingDayLimit(ctx context.Context, region string) (int, error) {
	return s.Regions.GetRankingDayLimit(ctx, region)
}

func (s *Store) GetRankingMinTournaments(ctx context.Context, region string) (int, error) {
	return s.Regions.GetRankingMinTournaments(ctx, region)
}
