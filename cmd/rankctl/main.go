package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"bracket-rankings/internal/config"
	fxmodules "bracket-rankings/internal/fx"
	"bracket-rankings/internal/logger"
	"bracket-rankings/internal/service"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

// deps is the slice of the fx graph the commands need.
type deps struct {
	db          *sql.DB
	regions     *service.RegionService
	rankings    *service.RankingService
	players     *service.PlayerService
	imports     *service.ImportService
	tournaments *service.TournamentService
}

func main() {
	app := &cli.App{
		Name:  "rankctl",
		Usage: "administer regions, tournament imports and rankings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path to the SQLite database",
				EnvVars: []string{"DB_PATH"},
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "discard log output",
			},
		},
		Commands: []*cli.Command{
			seedRegionsCommand(),
			generateRankingCommand(),
			printRankingCommand(),
			importTIOCommand(),
			importChallongeCommand(),
			finalizeCommand(),
			cleanupPlayersCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withDeps builds the application graph, hands it to fn and closes the database afterwards.
func withDeps(c *cli.Context, fn func(d *deps) error) error {
	var d deps
	opts := []fx.Option{
		fxmodules.Module,
		fx.NopLogger,
		fx.Populate(&d.db, &d.regions, &d.rankings, &d.players, &d.imports, &d.tournaments),
	}
	if c.Bool("quiet") {
		opts = append(opts, fx.Decorate(func() zerolog.Logger { return logger.Nop() }))
	}
	if path := c.String("db"); path != "" {
		opts = append(opts, fx.Decorate(func(cfg *config.Config) *config.Config {
			cfg.DBPath = path
			return cfg
		}))
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer d.db.Close()

	return fn(&d)
}
