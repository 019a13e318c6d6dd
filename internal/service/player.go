package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/repository"

	"github.com/rs/zerolog"
)

const (
	MatchResultWin      = "win"
	MatchResultLose     = "lose"
	MatchResultExcluded = "excluded"
)

type MatchResult struct {
	TournamentID   string
	TournamentName string
	Date           time.Time
	Opponent       string
	Result         string
}

// MatchHistory lists a player's matches oldest first. Excluded matches are listed
// but not counted.
type MatchHistory struct {
	Player   *domain.Player
	Opponent *domain.Player
	Wins     int
	Losses   int
	Matches  []MatchResult
}

type PlayerService struct {
	players     *repository.PlayerRepository
	tournaments *repository.TournamentRepository
	regions     *repository.RegionRepository
	logger      zerolog.Logger
}

func NewPlayerService(players *repository.PlayerRepository, tournaments *repository.TournamentRepository, regions *repository.RegionRepository, logger zerolog.Logger) *PlayerService {
	return &PlayerService{players: players, tournaments: tournaments, regions: regions, logger: logger}
}

func (s *PlayerService) Get(ctx context.Context, id string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.players.Get(ctx, id)
}

func (s *PlayerService) ListByRegion(ctx context.Context, region string) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.regions.Get(ctx, region); err != nil {
		return nil, err
	}
	return s.players.ListByRegion(ctx, region)
}

// FindByAlias returns the region's player owning alias.
func (s *PlayerService) FindByAlias(ctx context.Context, region, alias string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	player, err := s.players.FindPlayerByExactAlias(ctx, region, alias)
	if err != nil {
		return nil, err
	}
	if player == nil {
		return nil, domain.NewNotFound("alias", alias)
	}
	return player, nil
}

// Search is the typeahead over the region's players. Exact name matches come first,
// then names with a token starting with query, then (for queries of at least
// constants.TypeaheadMinSubstring characters) names containing it.
func (s *PlayerService) Search(ctx context.Context, region, query string) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	s.logger.Debug().Str("region", region).Str("query", query).Msg("searching players")

	players, err := s.players.ListByRegion(ctx, region)
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("failed to search players")
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []domain.Player{}, nil
	}

	type scored struct {
		player  domain.Player
		quality int
	}
	var hits []scored
	for _, p := range players {
		if q := matchQuality(p.Name, query); q > 0 {
			hits = append(hits, scored{player: p, quality: q})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.quality, a.quality)
	})

	out := make([]domain.Player, 0, min(len(hits), constants.TypeaheadPlayerLimit))
	for _, h := range hits {
		if len(out) == constants.TypeaheadPlayerLimit {
			break
		}
		out = append(out, h.player)
	}

	s.logger.Info().Int("count", len(out)).Str("query", query).Msg("search completed")
	return out, nil
}

func matchQuality(name, query string) int {
	name = strings.ToLower(name)
	if name == query {
		return 10
	}
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '|' || r == ' '
	})
	for _, tok := range tokens {
		if strings.HasPrefix(tok, query) {
			return 5
		}
	}
	if len(query) >= constants.TypeaheadMinSubstring && strings.Contains(name, query) {
		return 1
	}
	return 0
}

func (s *PlayerService) AddAlias(ctx context.Context, playerID, alias string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	alias = domain.NormalizeAlias(alias)
	if alias == "" {
		return nil, &domain.InvalidStateError{Entity: "alias", ID: playerID, Reason: "empty alias"}
	}
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player.HasAlias(alias) {
		return nil, fmt.Errorf("%w: %q already belongs to player %s", domain.ErrDuplicateAlias, alias, playerID)
	}

	if err := s.players.AddAlias(ctx, playerID, alias); err != nil {
		return nil, err
	}
	player.Aliases = append(player.Aliases, alias)

	s.logger.Info().Str("player_id", playerID).Str("alias", alias).Msg("alias added")
	return player, nil
}

// Rename changes the display name. The new name must already be one of the player's aliases.
func (s *PlayerService) Rename(ctx context.Context, playerID, name string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	name = strings.TrimSpace(name)
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if name == "" || !player.HasAlias(name) {
		return nil, fmt.Errorf("%w: %q is not an alias of player %s", domain.ErrInvalidName, name, playerID)
	}

	old := player.Name
	player.Name = name
	if err := s.players.Update(ctx, player); err != nil {
		return nil, err
	}

	s.logger.Info().Str("player_id", playerID).Str("from", old).Str("to", name).Msg("player renamed")
	return player, nil
}

// Merge folds source into target. Target takes source's aliases and regions, every
// tournament source played is rewritten to target, and source is kept as a merged
// tombstone. Players who met in the same tournament cannot be merged.
func (s *PlayerService) Merge(ctx context.Context, sourceID, targetID string, now time.Time) (*domain.Merge, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if sourceID == targetID {
		return nil, fmt.Errorf("%w: cannot merge player %s into itself", domain.ErrInvalidMerge, sourceID)
	}
	source, err := s.players.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.players.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source.Merged || target.Merged {
		return nil, fmt.Errorf("%w: %s or %s was already merged", domain.ErrInvalidMerge, sourceID, targetID)
	}

	tournaments, err := s.tournaments.ListReferencing(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	for _, t := range tournaments {
		if t.HasPlayer(targetID) {
			return nil, fmt.Errorf("%w: %s and %s both played in tournament %s", domain.ErrInvalidMerge, sourceID, targetID, t.ID)
		}
	}

	for i := range tournaments {
		tournaments[i].ReplacePlayer(sourceID, targetID)
	}

	source.Merged = true
	source.MergeParent = targetID
	for _, alias := range source.Aliases {
		if !slices.Contains(target.Aliases, alias) {
			target.Aliases = append(target.Aliases, alias)
		}
	}
	for _, region := range source.Regions {
		if !slices.Contains(target.Regions, region) {
			target.Regions = append(target.Regions, region)
		}
	}

	merge := &domain.Merge{SourcePlayer: sourceID, TargetPlayer: targetID, Time: now}
	if err := s.players.Merge(ctx, source, target, tournaments, merge); err != nil {
		s.logger.Error().Err(err).Str("source", sourceID).Str("target", targetID).Msg("failed to merge players")
		return nil, err
	}

	s.logger.Info().
		Str("source", sourceID).
		Str("target", targetID).
		Int("tournaments", len(tournaments)).
		Msg("players merged")
	return merge, nil
}

// MatchHistory returns the player's matches in region's tournaments, optionally only
// those against opponentID.
func (s *PlayerService) MatchHistory(ctx context.Context, region, playerID, opponentID string) (*MatchHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	history := &MatchHistory{Player: player, Matches: []MatchResult{}}
	if opponentID != "" {
		if history.Opponent, err = s.players.Get(ctx, opponentID); err != nil {
			return nil, err
		}
	}

	tournaments, err := s.tournaments.ListReferencing(ctx, playerID)
	if err != nil {
		return nil, err
	}
	for _, t := range tournaments {
		if !slices.Contains(t.Regions, region) {
			continue
		}
		for _, m := range t.Matches {
			if !m.Contains(playerID) {
				continue
			}
			opponent := m.Opponent(playerID)
			if opponentID != "" && opponent != opponentID {
				continue
			}

			result := MatchResult{TournamentID: t.ID, TournamentName: t.Name, Date: t.Date, Opponent: opponent}
			switch {
			case m.Excluded:
				result.Result = MatchResultExcluded
			case m.Won(playerID):
				result.Result = MatchResultWin
				history.Wins++
			default:
				result.Result = MatchResultLose
				history.Losses++
			}
			history.Matches = append(history.Matches, result)
		}
	}
	return history, nil
}

func (s *PlayerService) SetExcluded(ctx context.Context, region, playerID string, excluded bool) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.regions.Get(ctx, region); err != nil {
		return err
	}
	if _, err := s.players.Get(ctx, playerID); err != nil {
		return err
	}
	if err := s.players.SetExcluded(ctx, region, playerID, excluded); err != nil {
		return err
	}

	s.logger.Info().Str("region", region).Str("player_id", playerID).Bool("excluded", excluded).Msg("player exclusion set")
	return nil
}

// CleanupUnplayed deletes non-merged players with no tournaments. Players still
// referenced elsewhere (a pending import mapping) are skipped.
func (s *PlayerService) CleanupUnplayed(ctx context.Context) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	players, err := s.players.ListUnplayed(ctx)
	if err != nil {
		return nil, err
	}

	deleted := make([]domain.Player, 0, len(players))
	var errs []error
	for _, p := range players {
		if err := s.players.Delete(ctx, p.ID); err != nil {
			s.logger.Warn().Err(err).Str("player_id", p.ID).Msg("failed to delete unplayed player")
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, p)
	}

	s.logger.Info().Int("deleted", len(deleted)).Int("skipped", len(errs)).Msg("unplayed players cleaned up")
	if len(errs) == len(players) && len(errs) > 0 {
		return deleted, errors.Join(errs...)
	}
	return deleted, nil
}
