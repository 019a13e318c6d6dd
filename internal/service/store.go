package service

import (
	"context"
	"sync"

	"bracket-rankings/internal/domain"
)

// RankingStore is the history store the ranking engine replays from and writes to.
type RankingStore interface {
	GetRegion(ctx context.Context, id string) (*domain.Region, error)
	// GetAllTournaments returns the region's tournaments ascending by date, ties by insertion order.
	GetAllTournaments(ctx context.Context, region string) ([]domain.Tournament, error)
	// GetPlayerRating returns nil when the player has no rating in region.
	GetPlayerRating(ctx context.Context, playerID, region string) (*domain.Rating, error)
	SetPlayerRating(ctx context.Context, playerID, region string, rating domain.Rating) error
	GetExcludedPlayers(ctx context.Context, region string) ([]domain.Player, error)
	// GetAllPlayers returns the region's non-merged players in canonical name order.
	GetAllPlayers(ctx context.Context, region string) ([]domain.Player, error)
	InsertRanking(ctx context.Context, ranking *domain.Ranking) error
	// GetLatestRanking returns nil when the region has no ranking yet.
	GetLatestRanking(ctx context.Context, region string) (*domain.Ranking, error)
}

type AliasLookup interface {
	// FindPlayerByExactAlias returns nil when no non-merged player of region owns alias.
	FindPlayerByExactAlias(ctx context.Context, region, alias string) (*domain.Player, error)
	FindPlayersBySimilarAlias(ctx context.Context, alias string) ([]domain.Player, error)
}

type RegionConfig interface {
	GetRankingDayLimit(ctx context.Context, region string) (int, error)
	GetRankingMinTournaments(ctx context.Context, region string) (int, error)
}

// RegionLocker serializes ranking recomputation per region inside one process.
// Recomputation resets and rewrites every rating of the region, so two runs for the
// same region must never overlap. Hosts running several processes against one
// database need their own cross-process lock.
type RegionLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegionLocker() *RegionLocker {
	return &RegionLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until region is free and returns the matching unlock function.
func (l *RegionLocker) Lock(region string) func() {
	l.mu.Lock()
	m, ok := l.locks[region]
	if !ok {
		m = &sync.Mutex{}
		l.locks[region] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
