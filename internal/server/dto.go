package server

import (
	"time"

	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/service"
)

type RegionResponse struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"display_name"`
	RankingCriteria RankingCriteria `json:"ranking_criteria"`
}

type RankingCriteria struct {
	RankingActivityDayLimit     int `json:"ranking_activity_day_limit"`
	RankingNumTourneysAttended  int `json:"ranking_num_tourneys_attended"`
	TournamentQualifiedDayLimit int `json:"tournament_qualified_day_limit"`
}

// RankingCriteriaRequest is the optional body of a ranking regeneration.
type RankingCriteriaRequest struct {
	RankingActivityDayLimit     *int `json:"ranking_activity_day_limit"`
	RankingNumTourneysAttended  *int `json:"ranking_num_tourneys_attended"`
	TournamentQualifiedDayLimit *int `json:"tournament_qualified_day_limit"`
}

type RankingEntryResponse struct {
	Rank         int     `json:"rank"`
	PlayerID     string  `json:"id"`
	Name         string  `json:"name"`
	Rating       float64 `json:"rating"`
	PreviousRank *int    `json:"previous_rank,omitempty"`
}

type RankingResponse struct {
	ID              string                 `json:"id"`
	Region          string                 `json:"region"`
	Time            time.Time              `json:"time"`
	Tournaments     []string               `json:"tournaments"`
	RankingCriteria RankingCriteria        `json:"ranking_criteria"`
	Entries         []RankingEntryResponse `json:"ranking"`
}

type RatingResponse struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

type PlayerResponse struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Aliases     []string                  `json:"aliases"`
	Regions     []string                  `json:"regions"`
	Ratings     map[string]RatingResponse `json:"ratings"`
	Merged      bool                      `json:"merged"`
	MergeParent string                    `json:"merge_parent,omitempty"`
}

type PlayersResponse struct {
	Players []PlayerResponse `json:"players"`
}

type AliasResolutionResponse struct {
	Player      *PlayerResponse  `json:"player"`
	Suggestions []PlayerResponse `json:"suggestions"`
}

type MatchResponse struct {
	TournamentID   string    `json:"tournament_id"`
	TournamentName string    `json:"tournament_name"`
	TournamentDate time.Time `json:"tournament_date"`
	OpponentID     string    `json:"opponent_id"`
	Result         string    `json:"result"`
}

type MatchHistoryResponse struct {
	Player   PlayerResponse  `json:"player"`
	Opponent *PlayerResponse `json:"opponent,omitempty"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Matches  []MatchResponse `json:"matches"`
}

type TournamentMatchResponse struct {
	Winner   string `json:"winner"`
	Loser    string `json:"loser"`
	Excluded bool   `json:"excluded"`
}

type TournamentResponse struct {
	ID      string                    `json:"id"`
	Name    string                    `json:"name"`
	Type    string                    `json:"type"`
	Date    time.Time                 `json:"date"`
	URL     string                    `json:"url,omitempty"`
	Regions []string                  `json:"regions"`
	Players []string                  `json:"players"`
	Matches []TournamentMatchResponse `json:"matches,omitempty"`
}

type TournamentsResponse struct {
	Tournaments []TournamentResponse `json:"tournaments"`
}

type PendingTournamentResponse struct {
	ID            string                             `json:"id"`
	Name          string                             `json:"name"`
	Type          string                             `json:"type"`
	Date          time.Time                          `json:"date"`
	URL           string                             `json:"url,omitempty"`
	Regions       []string                           `json:"regions"`
	Aliases       []string                           `json:"aliases"`
	AliasMappings map[string]string                  `json:"alias_to_id_map"`
	Matches       []TournamentMatchResponse          `json:"matches"`
	Suggestions   map[string]AliasResolutionResponse `json:"suggestions,omitempty"`
}

type ChallongeImportRequest struct {
	ID string `json:"id"`
}

type MapAliasRequest struct {
	Alias    string `json:"alias"`
	PlayerID string `json:"player_id"`
}

type FinalizeResponse struct {
	Tournament TournamentResponse `json:"tournament"`
	NewPlayers []PlayerResponse   `json:"new_players"`
	Rankings   []RankingResponse  `json:"rankings"`
}

type MergeRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type MergeResponse struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Time   time.Time `json:"time"`
}

func toRegionResponse(r domain.Region) RegionResponse {
	return RegionResponse{ID: r.ID, DisplayName: r.DisplayName, RankingCriteria: toCriteria(r)}
}

func toCriteria(r domain.Region) RankingCriteria {
	return RankingCriteria{
		RankingActivityDayLimit:     r.RankingDayLimit,
		RankingNumTourneysAttended:  r.RankingNumTourneys,
		TournamentQualifiedDayLimit: r.TournamentQualifiedDayLimit,
	}
}

func (c RankingCriteriaRequest) toUpdate() service.CriteriaUpdate {
	return service.CriteriaUpdate{
		DayLimit:          c.RankingActivityDayLimit,
		NumTourneys:       c.RankingNumTourneysAttended,
		QualifiedDayLimit: c.TournamentQualifiedDayLimit,
	}
}

// toRankingResponse resolves player names through names; unknown ids keep an empty name.
func toRankingResponse(r domain.Ranking, region domain.Region, names map[string]string) RankingResponse {
	entries := make([]RankingEntryResponse, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = RankingEntryResponse{
			Rank:         e.Rank,
			PlayerID:     e.Player,
			Name:         names[e.Player],
			Rating:       e.Rating,
			PreviousRank: e.PreviousRank,
		}
	}
	tournaments := r.Tournaments
	if tournaments == nil {
		tournaments = []string{}
	}
	return RankingResponse{
		ID:              r.ID,
		Region:          r.Region,
		Time:            r.Time,
		Tournaments:     tournaments,
		RankingCriteria: toCriteria(region),
		Entries:         entries,
	}
}

func toPlayerResponse(p domain.Player) PlayerResponse {
	ratings := make(map[string]RatingResponse, len(p.Ratings))
	for region, r := range p.Ratings {
		ratings[region] = RatingResponse{Mu: r.Mu, Sigma: r.Sigma}
	}
	return PlayerResponse{
		ID:          p.ID,
		Name:        p.Name,
		Aliases:     nonNil(p.Aliases),
		Regions:     nonNil(p.Regions),
		Ratings:     ratings,
		Merged:      p.Merged,
		MergeParent: p.MergeParent,
	}
}

func toPlayerResponses(players []domain.Player) []PlayerResponse {
	out := make([]PlayerResponse, len(players))
	for i, p := range players {
		out[i] = toPlayerResponse(p)
	}
	return out
}

func toAliasResolutionResponse(r service.AliasResolution) AliasResolutionResponse {
	out := AliasResolutionResponse{Suggestions: toPlayerResponses(r.Suggestions)}
	if r.Player != nil {
		p := toPlayerResponse(*r.Player)
		out.Player = &p
	}
	return out
}

func toMatchHistoryResponse(h *service.MatchHistory) MatchHistoryResponse {
	out := MatchHistoryResponse{
		Player:  toPlayerResponse(*h.Player),
		Wins:    h.Wins,
		Losses:  h.Losses,
		Matches: make([]MatchResponse, len(h.Matches)),
	}
	if h.Opponent != nil {
		p := toPlayerResponse(*h.Opponent)
		out.Opponent = &p
	}
	for i, m := range h.Matches {
		out.Matches[i] = MatchResponse{
			TournamentID:   m.TournamentID,
			TournamentName: m.TournamentName,
			TournamentDate: m.Date,
			OpponentID:     m.Opponent,
			Result:         m.Result,
		}
	}
	return out
}

func toTournamentResponse(t domain.Tournament, withMatches bool) TournamentResponse {
	out := TournamentResponse{
		ID:      t.ID,
		Name:    t.Name,
		Type:    t.Type,
		Date:    t.Date,
		URL:     t.URL,
		Regions: nonNil(t.Regions),
		Players: nonNil(t.Players),
	}
	if withMatches {
		out.Matches = make([]TournamentMatchResponse, len(t.Matches))
		for i, m := range t.Matches {
			out.Matches[i] = TournamentMatchResponse{Winner: m.Winner, Loser: m.Loser, Excluded: m.Excluded}
		}
	}
	return out
}

func toPendingResponse(p *domain.PendingTournament, resolutions map[string]service.AliasResolution) PendingTournamentResponse {
	out := PendingTournamentResponse{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		Date:          p.Date,
		URL:           p.URL,
		Regions:       nonNil(p.Regions),
		Aliases:       nonNil(p.Aliases),
		AliasMappings: p.AliasMappings,
		Matches:       make([]TournamentMatchResponse, len(p.Matches)),
	}
	if out.AliasMappings == nil {
		out.AliasMappings = map[string]string{}
	}
	for i, m := range p.Matches {
		out.Matches[i] = TournamentMatchResponse{Winner: m.Winner, Loser: m.Loser, Excluded: m.Excluded}
	}
	if len(resolutions) > 0 {
		out.Suggestions = make(map[string]AliasResolutionResponse, len(resolutions))
		for alias, r := range resolutions {
			out.Suggestions[alias] = toAliasResolutionResponse(r)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
