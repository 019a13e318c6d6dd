package fx

import (
	"bracket-rankings/internal/config"
	"bracket-rankings/internal/database"
	"bracket-rankings/internal/logger"
	"bracket-rankings/internal/metrics"
	"bracket-rankings/internal/repository"
	"bracket-rankings/internal/scraper"
	"bracket-rankings/internal/server"
	"bracket-rankings/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideStore(regions *repository.RegionRepository, players *repository.PlayerRepository, tournaments *repository.TournamentRepository, rankings *repository.RankingRepository) *repository.Store {
	return repository.NewStore(regions, players, tournaments, rankings)
}

func ProvideRankingService(store *repository.Store, locker *service.RegionLocker, m *metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *service.RankingService {
	svc := service.NewRankingService(store, store, locker, m, logger)
	svc.SetTimeout(cfg.RankingTimeout)
	return svc
}

func ProvideAliasService(store *repository.Store, logger zerolog.Logger) *service.AliasService {
	return service.NewAliasService(store, logger)
}

// ProvideChallongeClient returns nil without an API key; imports then fail with scraper.ErrMissingAPIKey.
func ProvideChallongeClient(cfg *config.Config, logger zerolog.Logger) *scraper.ChallongeClient {
	if cfg.ChallongeAPIKey == "" {
		return nil
	}
	return scraper.NewChallongeClient(cfg, logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewRegionRepository),
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewTournamentRepository),
	fx.Provide(repository.NewRankingRepository),
	fx.Provide(ProvideStore),
	metrics.Module,
	// scrapers
	fx.Provide(ProvideChallongeClient),
	// svc
	fx.Provide(service.NewRegionLocker),
	fx.Provide(ProvideRankingService),
	fx.Provide(ProvideAliasService),
	fx.Provide(service.NewRegionService),
	fx.Provide(service.NewPlayerService),
	fx.Provide(service.NewTournamentService),
	fx.Provide(service.NewImportService),
	// server
	fx.Provide(server.NewRankingsServer),
)
