package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/metrics"
	"bracket-rankings/internal/rating"

	"github.com/rs/zerolog"
)

type RankingParams struct {
	Region string
	// Now anchors the activity window; it is never read from the wall clock.
	Now         time.Time
	DayLimit    int
	NumTourneys int
	// DiffAgainst, when set, fills each entry's PreviousRank.
	DiffAgainst *domain.Ranking
}

// RankingService recomputes region rankings by replaying the full match history.
// It does not lock; callers must not run two generations for the same region at
// once (GenerateForRegion takes the region lock).
type RankingService struct {
	store   RankingStore
	regions RegionConfig
	locker  *RegionLocker
	metrics *metrics.Metrics
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRankingService(store RankingStore, regions RegionConfig, locker *RegionLocker, m *metrics.Metrics, logger zerolog.Logger) *RankingService {
	return &RankingService{
		store:   store,
		regions: regions,
		locker:  locker,
		metrics: m,
		timeout: constants.RankingTimeout,
		logger:  logger,
	}
}

func (s *RankingService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// GenerateRanking resets every rating of the region, replays all of its tournaments
// and stores a new ranking of the eligible players.
//
// A store failure during the replay aborts the run and leaves the ratings written so
// far in place; no ranking is stored and a full rerun is needed to reach consistency.
func (s *RankingService) GenerateRanking(ctx context.Context, p RankingParams) (*domain.Ranking, error) {
	log := s.logger.With().Str("region", p.Region).Logger()

	if _, err := s.store.GetRegion(ctx, p.Region); err != nil {
		return nil, err
	}

	tournaments, err := s.store.GetAllTournaments(ctx, p.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get tournaments for %s: %w", p.Region, err)
	}
	slices.SortStableFunc(tournaments, func(a, b domain.Tournament) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	for i := range tournaments {
		if err := tournaments[i].Validate(); err != nil {
			log.Error().Err(err).Str("tournament", tournaments[i].ID).Msg("refusing to replay invalid tournament")
			return nil, err
		}
	}

	players, err := s.store.GetAllPlayers(ctx, p.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get players for %s: %w", p.Region, err)
	}

	current := make(map[string]domain.Rating, len(players))
	for _, player := range players {
		if err := s.store.SetPlayerRating(ctx, player.ID, p.Region, domain.DefaultRating()); err != nil {
			return nil, fmt.Errorf("failed to reset rating of %s: %w", player.ID, err)
		}
		current[player.ID] = domain.DefaultRating()
	}

	lastActive := make(map[string]time.Time, len(players))
	participations := make(map[string]int, len(players))
	tournamentIDs := make([]string, 0, len(tournaments))
	var replayed, skipped int

	for _, t := range tournaments {
		tournamentIDs = append(tournamentIDs, t.ID)
		for _, id := range t.Players {
			lastActive[id] = t.Date
			participations[id]++
		}

		for _, m := range t.Matches {
			if m.Excluded {
				continue
			}
			_, winnerInRegion := current[m.Winner]
			_, loserInRegion := current[m.Loser]
			if !winnerInRegion || !loserInRegion {
				skipped++
				continue
			}

			winner, err := s.ratingOf(ctx, m.Winner, p.Region)
			if err != nil {
				return nil, err
			}
			loser, err := s.ratingOf(ctx, m.Loser, p.Region)
			if err != nil {
				return nil, err
			}

			winner, loser = rating.Update(winner, loser)
			if err := s.store.SetPlayerRating(ctx, m.Winner, p.Region, winner); err != nil {
				return nil, fmt.Errorf("failed to write rating of %s after tournament %s: %w", m.Winner, t.ID, err)
			}
			if err := s.store.SetPlayerRating(ctx, m.Loser, p.Region, loser); err != nil {
				return nil, fmt.Errorf("failed to write rating of %s after tournament %s: %w", m.Loser, t.ID, err)
			}
			current[m.Winner] = winner
			current[m.Loser] = loser
			replayed++
		}
	}

	excludedPlayers, err := s.store.GetExcludedPlayers(ctx, p.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get excluded players for %s: %w", p.Region, err)
	}
	excluded := make(map[string]struct{}, len(excludedPlayers))
	for _, player := range excludedPlayers {
		excluded[player.ID] = struct{}{}
	}

	cutoff := p.Now.Add(-time.Duration(p.DayLimit) * 24 * time.Hour)

	type candidate struct {
		player domain.Player
		expose float64
	}
	var candidates []candidate
	for _, player := range players {
		if _, ok := excluded[player.ID]; ok {
			continue
		}
		last, seen := lastActive[player.ID]
		if !seen || !last.After(cutoff) {
			continue
		}
		if participations[player.ID] < p.NumTourneys {
			continue
		}
		candidates = append(candidates, candidate{player: player, expose: rating.Expose(current[player.ID])})
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.expose, a.expose); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.player.Name), strings.ToLower(b.player.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.player.ID, b.player.ID)
	})

	entries := make([]domain.RankingEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = domain.RankingEntry{
			Player: c.player.ID,
			Rank:   i + 1,
			Rating: c.expose,
		}
		if p.DiffAgainst != nil {
			if prev, ok := p.DiffAgainst.RankOf(c.player.ID); ok {
				entries[i].PreviousRank = &prev
			}
		}
	}

	ranking := &domain.Ranking{
		Region:      p.Region,
		Time:        p.Now,
		Tournaments: tournamentIDs,
		Entries:     entries,
	}
	if err := s.store.InsertRanking(ctx, ranking); err != nil {
		return nil, fmt.Errorf("failed to insert ranking for %s: %w", p.Region, err)
	}

	log.Info().
		Int("tournaments", len(tournaments)).
		Int("matches_replayed", replayed).
		Int("matches_skipped", skipped).
		Int("players", len(players)).
		Int("entries", len(entries)).
		Msg("ranking generated")

	return ranking, nil
}

func (s *RankingService) ratingOf(ctx context.Context, playerID, region string) (domain.Rating, error) {
	r, err := s.store.GetPlayerRating(ctx, playerID, region)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("failed to read rating of %s: %w", playerID, err)
	}
	if r == nil {
		return domain.DefaultRating(), nil
	}
	return *r, nil
}

// GenerateForRegion reads the region's ranking criteria, takes the region lock and
// generates a ranking, optionally diffed against the region's latest one.
func (s *RankingService) GenerateForRegion(ctx context.Context, region string, now time.Time, diffLatest bool) (*domain.Ranking, error) {
	return s.generateLocked(ctx, region, now, diffLatest, nil)
}

// GenerateWithCriteria is GenerateForRegion under the day limit and attendance
// minimum carried by region rather than the stored ones.
func (s *RankingService) GenerateWithCriteria(ctx context.Context, region domain.Region, now time.Time, diffLatest bool) (*domain.Ranking, error) {
	return s.generateLocked(ctx, region.ID, now, diffLatest, &region)
}

func (s *RankingService) generateLocked(ctx context.Context, region string, now time.Time, diffLatest bool, criteria *domain.Region) (*domain.Ranking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock := s.locker.Lock(region)
	defer unlock()

	start := time.Now()
	ranking, err := s.generateForRegion(ctx, region, now, diffLatest, criteria)

	entries := 0
	if ranking != nil {
		entries = len(ranking.Entries)
	}
	s.metrics.ObserveGeneration(region, time.Since(start), entries, err)

	if err != nil {
		s.logger.Error().Err(err).Str("region", region).Msg("failed to generate ranking")
		return nil, err
	}
	return ranking, nil
}

func (s *RankingService) generateForRegion(ctx context.Context, region string, now time.Time, diffLatest bool, criteria *domain.Region) (*domain.Ranking, error) {
	var (
		dayLimit, numTourneys int
		diff                  *domain.Ranking
		err                   error
	)
	if criteria != nil {
		dayLimit, numTourneys = criteria.RankingDayLimit, criteria.RankingNumTourneys
	} else {
		if dayLimit, err = s.regions.GetRankingDayLimit(ctx, region); err != nil {
			return nil, err
		}
		if numTourneys, err = s.regions.GetRankingMinTournaments(ctx, region); err != nil {
			return nil, err
		}
	}

	if diffLatest {
		diff, err = s.store.GetLatestRanking(ctx, region)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest ranking for %s: %w", region, err)
		}
	}

	s.logger.Debug().
		Str("region", region).
		Int("day_limit", dayLimit).
		Int("num_tourneys", numTourneys).
		Bool("diff", diff != nil).
		Msg("generating ranking")

	return s.GenerateRanking(ctx, RankingParams{
		Region:      region,
		Now:         now,
		DayLimit:    dayLimit,
		NumTourneys: numTourneys,
		DiffAgainst: diff,
	})
}

// LatestRanking returns the region's current ranking.
func (s *RankingService) LatestRanking(ctx context.Context, region string) (*domain.Ranking, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.store.GetRegion(ctx, region); err != nil {
		return nil, err
	}
	ranking, err := s.store.GetLatestRanking(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest ranking for %s: %w", region, err)
	}
	if ranking == nil {
		return nil, domain.NewNotFound("ranking", region)
	}
	return ranking, nil
}
