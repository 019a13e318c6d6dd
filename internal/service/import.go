package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/repository"
	"bracket-rankings/internal/scraper"

	"github.com/rs/zerolog"
)

// maxMergeHops bounds how far Finalize follows merge parents of a mapped player.
const maxMergeHops = 8

// PendingImport is a staged tournament plus the alias candidates shown for review.
type PendingImport struct {
	Pending     *domain.PendingTournament
	Resolutions map[string]AliasResolution
}

// FinalizedImport is the stored tournament and the rankings regenerated for it.
type FinalizedImport struct {
	Tournament *domain.Tournament
	NewPlayers []domain.Player
	Rankings   []domain.Ranking
}

type ImportService struct {
	regions     *repository.RegionRepository
	players     *repository.PlayerRepository
	tournaments *repository.TournamentRepository
	aliases     *AliasService
	rankings    *RankingService
	challonge   *scraper.ChallongeClient
	logger      zerolog.Logger
}

func NewImportService(
	regions *repository.RegionRepository,
	players *repository.PlayerRepository,
	tournaments *repository.TournamentRepository,
	aliases *AliasService,
	rankings *RankingService,
	challonge *scraper.ChallongeClient,
	logger zerolog.Logger,
) *ImportService {
	return &ImportService{
		regions:     regions,
		players:     players,
		tournaments: tournaments,
		aliases:     aliases,
		rankings:    rankings,
		challonge:   challonge,
		logger:      logger,
	}
}

// ImportTIO parses a TIO bracket file and stages the named bracket for region.
func (s *ImportService) ImportTIO(ctx context.Context, region string, r io.Reader, bracket, nameOverride string) (*PendingImport, error) {
	b, err := scraper.ParseTIO(r, bracket, s.logger)
	if err != nil {
		return nil, err
	}
	return s.CreatePending(ctx, region, b, domain.TournamentTypeTIO, nameOverride)
}

// ImportChallonge downloads a Challonge tournament and stages it for region.
func (s *ImportService) ImportChallonge(ctx context.Context, region, tournamentID string) (*PendingImport, error) {
	if s.challonge == nil {
		return nil, scraper.ErrMissingAPIKey
	}

	apiCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	b, err := s.challonge.Fetch(apiCtx, tournamentID)
	if err != nil {
		s.logger.Error().Err(err).Str("tournament", tournamentID).Msg("failed to fetch challonge tournament")
		return nil, err
	}
	return s.CreatePending(ctx, region, b, domain.TournamentTypeChallonge, "")
}

// CreatePending stages a scraped bracket. Aliases with an exact owner in region are
// mapped right away; the rest keep their suggestions for review.
func (s *ImportService) CreatePending(ctx context.Context, region string, b scraper.Scraper, tournamentType, nameOverride string) (*PendingImport, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if _, err := s.regions.Get(ctx, region); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(nameOverride)
	if name == "" {
		name = b.Name()
	}
	if name == "" {
		return nil, &domain.InvalidStateError{Entity: "pending tournament", Reason: "missing name"}
	}
	if b.Date().IsZero() {
		return nil, &domain.InvalidStateError{Entity: "pending tournament", Reason: "missing date"}
	}

	matches := b.Matches()
	aliases := pendingAliases(b.Players(), matches)

	resolutions, err := s.aliases.ExactOrSuggestionsFor(ctx, region, aliases)
	if err != nil {
		return nil, err
	}

	mappings := make(map[string]string, len(aliases))
	for alias, r := range resolutions {
		if r.Player != nil {
			mappings[alias] = r.Player.ID
		}
	}

	pending := &domain.PendingTournament{
		Name:          name,
		Type:          tournamentType,
		Date:          b.Date(),
		URL:           b.URL(),
		Regions:       []string{region},
		Aliases:       aliases,
		Matches:       slices.Clone(matches),
		AliasMappings: mappings,
	}
	if err := s.tournaments.InsertPending(ctx, pending); err != nil {
		s.logger.Error().Err(err).Str("region", region).Str("name", name).Msg("failed to stage tournament")
		return nil, err
	}

	s.logger.Info().
		Str("region", region).
		Str("pending_id", pending.ID).
		Str("name", name).
		Int("aliases", len(aliases)).
		Int("mapped", len(mappings)).
		Int("matches", len(matches)).
		Msg("tournament staged")

	return &PendingImport{Pending: pending, Resolutions: resolutions}, nil
}

// pendingAliases keeps the scraper's player order but only for aliases that
// played; a participant without matches never reaches the tournament.
func pendingAliases(players []string, matches []domain.AliasMatch) []string {
	played := make(map[string]struct{}, len(players))
	var order []string
	for _, m := range matches {
		for _, a := range []string{m.Winner, m.Loser} {
			if _, ok := played[a]; !ok {
				played[a] = struct{}{}
				order = append(order, a)
			}
		}
	}

	aliases := make([]string, 0, len(played))
	seen := make(map[string]struct{}, len(played))
	for _, a := range append(slices.Clone(players), order...) {
		if _, ok := played[a]; !ok {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		aliases = append(aliases, a)
	}
	return aliases
}

// MapAlias points a staged alias at an existing player; an empty playerID clears it.
func (s *ImportService) MapAlias(ctx context.Context, pendingID, alias, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if playerID != "" {
		player, err := s.players.Get(ctx, playerID)
		if err != nil {
			return err
		}
		if player.Merged {
			return &domain.InvalidStateError{Entity: "player", ID: playerID, Reason: "player was merged into " + player.MergeParent}
		}
	}

	if err := s.tournaments.SetPendingAliasMapping(ctx, pendingID, alias, playerID); err != nil {
		return err
	}

	s.logger.Info().
		Str("pending_id", pendingID).
		Str("alias", alias).
		Str("player_id", playerID).
		Msg("pending alias mapped")
	return nil
}

func (s *ImportService) ListPending(ctx context.Context, region string) ([]domain.PendingTournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.regions.Get(ctx, region); err != nil {
		return nil, err
	}
	return s.tournaments.ListPending(ctx, region)
}

// Finalize turns a pending tournament into a stored one and regenerates the rankings
// of its regions. Aliases still unmapped become new players of region. Nothing is
// written unless the whole tournament resolves and validates.
func (s *ImportService) Finalize(ctx context.Context, region, pendingID string, now time.Time) (*FinalizedImport, error) {
	dbCtx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	pending, err := s.tournaments.GetPending(dbCtx, pendingID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(pending.Regions, region) {
		return nil, domain.NewNotFound("pending tournament", pendingID)
	}

	result := &FinalizedImport{}
	ids := make(map[string]string, len(pending.Aliases))
	created := make(map[string]*domain.Player)
	var newPlayers []*domain.Player
	for _, alias := range pending.Aliases {
		id, player, err := s.resolvePendingAlias(dbCtx, region, alias, pending.AliasMappings[alias], created)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve alias %q of pending %s: %w", alias, pendingID, err)
		}
		if player != nil {
			newPlayers = append(newPlayers, player)
		}
		ids[alias] = id
	}

	tournament := &domain.Tournament{
		Name:    pending.Name,
		Type:    pending.Type,
		Date:    pending.Date,
		URL:     pending.URL,
		Regions: slices.Clone(pending.Regions),
		Players: []string{},
		Matches: make([]domain.Match, 0, len(pending.Matches)),
	}
	for _, m := range pending.Matches {
		match := domain.Match{Winner: ids[m.Winner], Loser: ids[m.Loser], Excluded: m.Excluded}
		tournament.Matches = append(tournament.Matches, match)
		for _, p := range []string{match.Winner, match.Loser} {
			if p != "" && !slices.Contains(tournament.Players, p) {
				tournament.Players = append(tournament.Players, p)
			}
		}
	}
	if err := tournament.Validate(); err != nil {
		return nil, fmt.Errorf("pending %s does not form a valid tournament: %w", pendingID, err)
	}

	if err := s.tournaments.Finalize(dbCtx, pendingID, newPlayers, tournament); err != nil {
		if errors.Is(err, domain.ErrDuplicateAlias) {
			s.logger.Warn().Err(err).Str("pending_id", pendingID).Str("region", region).Msg("alias owned outside region, map it explicitly")
		} else {
			s.logger.Error().Err(err).Str("pending_id", pendingID).Msg("failed to store tournament")
		}
		return nil, err
	}
	result.Tournament = tournament
	for _, p := range newPlayers {
		result.NewPlayers = append(result.NewPlayers, *p)
	}

	s.logger.Info().
		Str("region", region).
		Str("tournament_id", tournament.ID).
		Int("players", len(tournament.Players)).
		Int("new_players", len(result.NewPlayers)).
		Int("matches", len(tournament.Matches)).
		Msg("tournament finalized")

	for _, r := range tournament.Regions {
		ranking, err := s.rankings.GenerateForRegion(ctx, r, now, true)
		if err != nil {
			return result, fmt.Errorf("tournament %s stored but ranking of %s failed: %w", tournament.ID, r, err)
		}
		result.Rankings = append(result.Rankings, *ranking)
	}
	return result, nil
}

// resolvePendingAlias returns the player id for a staged alias. An unmapped alias
// unknown in region gets a new, not yet stored player, shared through created by
// every alias that normalizes the same way.
func (s *ImportService) resolvePendingAlias(ctx context.Context, region, alias, mapped string, created map[string]*domain.Player) (string, *domain.Player, error) {
	if mapped != "" {
		id, err := s.followMerges(ctx, mapped)
		return id, nil, err
	}

	key := domain.NormalizeAlias(alias)
	if p, ok := created[key]; ok {
		return p.ID, nil, nil
	}

	existing, err := s.players.FindPlayerByExactAlias(ctx, region, alias)
	if err != nil {
		return "", nil, err
	}
	if existing != nil {
		return existing.ID, nil, nil
	}

	name := strings.TrimSpace(alias)
	if name == "" {
		return "", nil, &domain.InvalidStateError{Entity: "pending alias", Reason: "empty alias"}
	}
	id, err := repository.NewID()
	if err != nil {
		return "", nil, err
	}
	player := &domain.Player{
		ID:      id,
		Name:    name,
		Aliases: []string{domain.NormalizeAlias(name)},
		Regions: []string{region},
		Ratings: map[string]domain.Rating{},
	}
	created[key] = player
	return player.ID, player, nil
}

func (s *ImportService) followMerges(ctx context.Context, id string) (string, error) {
	for hop := 0; hop < maxMergeHops; hop++ {
		player, err := s.players.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if !player.Merged {
			return player.ID, nil
		}
		id = player.MergeParent
	}
	return "", &domain.InvalidStateError{Entity: "player", ID: id, Reason: "merge chain too long"}
}
