package config

import (
	"fmt"
	"io"
	"os"

	"bracket-rankings/internal/constants"
	"bracket-rankings/internal/domain"

	"gopkg.in/yaml.v3"
)

// RegionsFile is the YAML seed file for regions and their ranking criteria.
type RegionsFile struct {
	Regions []RegionConfig `yaml:"regions"`
}

type RegionConfig struct {
	ID                          string `yaml:"id"`
	DisplayName                 string `yaml:"display_name"`
	RankingDayLimit             int    `yaml:"ranking_day_limit"`
	RankingNumTourneys          int    `yaml:"ranking_num_tourneys"`
	TournamentQualifiedDayLimit int    `yaml:"tournament_qualified_day_limit"`
}

func LoadRegions(path string) ([]domain.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open regions file: %w", err)
	}
	defer f.Close()
	return ParseRegions(f)
}

func ParseRegions(r io.Reader) ([]domain.Region, error) {
	var file RegionsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode regions: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Regions))
	regions := make([]domain.Region, 0, len(file.Regions))
	for _, rc := range file.Regions {
		if rc.ID == "" {
			return nil, fmt.Errorf("region without id")
		}
		if _, dup := seen[rc.ID]; dup {
			return nil, fmt.Errorf("region %q declared twice", rc.ID)
		}
		seen[rc.ID] = struct{}{}

		region := domain.Region{
			ID:                          rc.ID,
			DisplayName:                 rc.DisplayName,
			RankingDayLimit:             rc.RankingDayLimit,
			RankingNumTourneys:          rc.RankingNumTourneys,
			TournamentQualifiedDayLimit: rc.TournamentQualifiedDayLimit,
		}
		if region.DisplayName == "" {
			region.DisplayName = region.ID
		}
		if region.RankingDayLimit <= 0 {
			region.RankingDayLimit = constants.DefaultRankingDayLimit
		}
		if region.RankingNumTourneys <= 0 {
			region.RankingNumTourneys = constants.DefaultRankingNumTourneys
		}
		if region.TournamentQualifiedDayLimit <= 0 {
			region.TournamentQualifiedDayLimit = constants.DefaultTournamentQualifiedDayLimit
		}
		regions = append(regions, region)
	}
	return regions, nil
}
