package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"bracket-rankings/internal/config"
	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/service"

	"github.com/urfave/cli/v2"
)

const dayLayout = "2006-01-02"

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "region",
		Usage:    "region id",
		Required: true,
	}
}

func seedRegionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-regions",
		Usage: "create or update regions from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "regions YAML file", Required: true},
		},
		Action: func(c *cli.Context) error {
			regions, err := config.LoadRegions(c.String("file"))
			if err != nil {
				return err
			}
			return withDeps(c, func(d *deps) error {
				if err := d.regions.Seed(c.Context, regions); err != nil {
					return err
				}
				for _, r := range regions {
					fmt.Fprintf(c.App.Writer, "%s\t%s\n", r.ID, r.DisplayName)
				}
				return nil
			})
		},
	}
}

func generateRankingCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-ranking",
		Usage: "replay a region's tournaments and store a new ranking",
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{Name: "now", Usage: "reference day (YYYY-MM-DD), defaults to today"},
		},
		Action: func(c *cli.Context) error {
			now, err := parseDay(c.String("now"), time.Now())
			if err != nil {
				return err
			}
			return withDeps(c, func(d *deps) error {
				region := c.String("region")
				ranking, err := d.rankings.GenerateForRegion(c.Context, region, now, true)
				if err != nil {
					return err
				}
				return printRanking(c, d, region, ranking)
			})
		},
	}
}

func printRankingCommand() *cli.Command {
	return &cli.Command{
		Name:  "print-ranking",
		Usage: "print the latest stored ranking of a region",
		Flags: []cli.Flag{regionFlag()},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(d *deps) error {
				region := c.String("region")
				ranking, err := d.rankings.LatestRanking(c.Context, region)
				if err != nil {
					return err
				}
				return printRanking(c, d, region, ranking)
			})
		},
	}
}

func importTIOCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-tio",
		Usage: "stage a bracket from a TIO export as a pending tournament",
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{Name: "file", Usage: "TIO file", Required: true},
			&cli.StringFlag{Name: "bracket", Usage: "bracket (game) name inside the file", Required: true},
			&cli.StringFlag{Name: "name", Usage: "tournament name override"},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to open TIO file: %w", err)
			}
			defer f.Close()

			return withDeps(c, func(d *deps) error {
				pending, err := d.imports.ImportTIO(c.Context, c.String("region"), f, c.String("bracket"), c.String("name"))
				if err != nil {
					return err
				}
				printPending(c.App.Writer, pending)
				return nil
			})
		},
	}
}

func importChallongeCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-challonge",
		Usage: "stage a Challonge bracket as a pending tournament",
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{Name: "id", Usage: "challonge tournament id or url slug", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(d *deps) error {
				pending, err := d.imports.ImportChallonge(c.Context, c.String("region"), c.String("id"))
				if err != nil {
					return err
				}
				printPending(c.App.Writer, pending)
				return nil
			})
		},
	}
}

func finalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "finalize",
		Usage: "store a pending tournament and regenerate the affected rankings",
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{Name: "pending", Usage: "pending tournament id", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(d *deps) error {
				result, err := d.imports.Finalize(c.Context, c.String("region"), c.String("pending"), time.Now())
				if result != nil {
					fmt.Fprintf(c.App.Writer, "tournament %s (%s), %d new players\n",
						result.Tournament.ID, result.Tournament.Name, len(result.NewPlayers))
					for _, p := range result.NewPlayers {
						fmt.Fprintf(c.App.Writer, "  + %s\t%s\n", p.ID, p.Name)
					}
				}
				return err
			})
		},
	}
}

func cleanupPlayersCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup-players",
		Usage: "delete players that never played a stored tournament",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(d *deps) error {
				deleted, err := d.players.CleanupUnplayed(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "deleted %d players\n", len(deleted))
				return nil
			})
		},
	}
}

func parseDay(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dayLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", value, err)
	}
	return t, nil
}

func printRanking(c *cli.Context, d *deps, region string, ranking *domain.Ranking) error {
	players, err := d.players.ListByRegion(c.Context, region)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}
	writeRanking(c.App.Writer, ranking, names)
	return nil
}

func writeRanking(w io.Writer, ranking *domain.Ranking, names map[string]string) {
	fmt.Fprintf(w, "%s ranking at %s (%d tournaments)\n",
		ranking.Region, ranking.Time.UTC().Format(dayLayout), len(ranking.Tournaments))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tRATING\tCHANGE")
	for _, e := range ranking.Entries {
		name := names[e.Player]
		if name == "" {
			name = e.Player
		}
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\n", e.Rank, name, e.Rating, rankChange(e))
	}
	tw.Flush()
}

func rankChange(e domain.RankingEntry) string {
	switch {
	case e.PreviousRank == nil:
		return "new"
	case *e.PreviousRank > e.Rank:
		return fmt.Sprintf("+%d", *e.PreviousRank-e.Rank)
	case *e.PreviousRank < e.Rank:
		return fmt.Sprintf("-%d", e.Rank-*e.PreviousRank)
	default:
		return "="
	}
}

func printPending(w io.Writer, p *service.PendingImport) {
	fmt.Fprintf(w, "pending %s: %s (%s)\n", p.Pending.ID, p.Pending.Name, p.Pending.Date.UTC().Format(dayLayout))
	for _, alias := range p.Pending.Aliases {
		if id, ok := p.Pending.AliasMappings[alias]; ok {
			fmt.Fprintf(w, "  %s -> %s\n", alias, id)
			continue
		}
		var suggestions []string
		for _, s := range p.Resolutions[alias].Suggestions {
			suggestions = append(suggestions, fmt.Sprintf("%s (%s)", s.Name, s.ID))
		}
		if len(suggestions) == 0 {
			fmt.Fprintf(w, "  %s -> new player\n", alias)
			continue
		}
		fmt.Fprintf(w, "  %s ?? %s\n", alias, strings.Join(suggestions, ", "))
	}
}
