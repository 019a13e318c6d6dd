package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/scraper"
	"bracket-rankings/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RankingsServer is the JSON HTTP surface over the ranking services.
type RankingsServer struct {
	regions     *service.RegionService
	rankings    *service.RankingService
	aliases     *service.AliasService
	players     *service.PlayerService
	tournaments *service.TournamentService
	imports     *service.ImportService
	now         func() time.Time
	logger      zerolog.Logger
}

func NewRankingsServer(
	regions *service.RegionService,
	rankings *service.RankingService,
	aliases *service.AliasService,
	players *service.PlayerService,
	tournaments *service.TournamentService,
	imports *service.ImportService,
	logger zerolog.Logger,
) *RankingsServer {
	return &RankingsServer{
		regions:     regions,
		rankings:    rankings,
		aliases:     aliases,
		players:     players,
		tournaments: tournaments,
		imports:     imports,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *RankingsServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/regions", s.ListRegions)

	r.Route("/{region}", func(r chi.Router) {
		r.Get("/rankings", s.GetRanking)
		r.Post("/rankings", s.GenerateRanking)

		r.Get("/players", s.ListPlayers)
		r.Get("/players/{id}", s.GetPlayer)
		r.Get("/matches/{id}", s.GetMatches)
		r.Get("/aliases/suggestions", s.GetAliasSuggestions)

		r.Get("/tournaments", s.ListTournaments)
		r.Get("/tournaments/pending", s.ListPending)
		r.Post("/tournaments/pending/challonge", s.ImportChallonge)
		r.Put("/tournaments/pending/{id}/aliases", s.MapAlias)
		r.Post("/tournaments/pending/{id}/finalize", s.Finalize)
		r.Get("/tournaments/{id}", s.GetTournament)

		r.Post("/merges", s.Merge)
	})
	return r
}

func (s *RankingsServer) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.regions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]RegionResponse, len(regions))
	for i, region := range regions {
		out[i] = toRegionResponse(region)
	}
	s.writeJSON(w, r, http.StatusOK, map[string][]RegionResponse{"regions": out})
}

func (s *RankingsServer) GetRanking(w http.ResponseWriter, r *http.Request) {
	regionID := chi.URLParam(r, "region")

	ranking, err := s.rankings.LatestRanking(r.Context(), regionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRanking(w, r, http.StatusOK, regionID, ranking)
}

// GenerateRanking persists any criteria overrides in the body, then regenerates the
// region's ranking diffed against the previous one.
func (s *RankingsServer) GenerateRanking(w http.ResponseWriter, r *http.Request) {
	regionID := chi.URLParam(r, "region")

	var input RankingCriteriaRequest
	if err := decodeOptionalBody(r, &input); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode request body: %v", err), http.StatusBadRequest)
		return
	}
	update := input.toUpdate()
	region, err := s.regions.WithCriteria(r.Context(), regionID, update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// overrides are stored only once a ranking has been produced under them
	ranking, err := s.rankings.GenerateWithCriteria(r.Context(), *region, s.now().UTC(), true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.regions.UpdateCriteria(r.Context(), regionID, update); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRanking(w, r, http.StatusOK, regionID, ranking)
}

func (s *RankingsServer) writeRanking(w http.ResponseWriter, r *http.Request, status int, regionID string, ranking *domain.Ranking) {
	region, err := s.regions.Get(r.Context(), regionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	players, err := s.players.ListByRegion(r.Context(), regionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}
	s.writeJSON(w, r, status, toRankingResponse(*ranking, *region, names))
}

// ListPlayers returns the owner of ?alias=, the typeahead hits for ?query=, or every
// player of the region.
func (s *RankingsServer) ListPlayers(w http.ResponseWriter, r *http.Request) {
	regionID := chi.URLParam(r, "region")
	q := r.URL.Query()

	var (
		players []domain.Player
		err     error
	)
	switch {
	case q.Get("alias") != "":
		var p *domain.Player
		p, err = s.players.FindByAlias(r.Context(), regionID, q.Get("alias"))
		if errors.Is(err, domain.ErrNotFound) {
			players, err = []domain.Player{}, nil
		} else if p != nil {
			players = []domain.Player{*p}
		}
	case q.Has("query"):
		players, err = s.players.Search(r.Context(), regionID, q.Get("query"))
	default:
		players, err = s.players.ListByRegion(r.Context(), regionID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, PlayersResponse{Players: toPlayerResponses(players)})
}

func (s *RankingsServer) GetPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := s.players.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, toPlayerResponse(*player))
}

func (s *RankingsServer) GetMatches(w http.ResponseWriter, r *http.Request) {
	history, err := s.players.MatchHistory(r.Context(), chi.URLParam(r, "region"), chi.URLParam(r, "id"), r.URL.Query().Get("opponent"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, toMatchHistoryResponse(history))
}

func (s *RankingsServer) GetAliasSuggestions(w http.ResponseWriter, r *http.Request) {
	aliases := r.URL.Query()["alias"]
	if len(aliases) == 0 {
		http.Error(w, "at least one alias is required", http.StatusBadRequest)
		return
	}

	resolved, err := s.aliases.ExactOrSuggestionsFor(r.Context(), chi.URLParam(r, "region"), aliases)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make(map[string]AliasResolutionResponse, len(resolved))
	for alias, res := range resolved {
		out[alias] = toAliasResolutionResponse(res)
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *RankingsServer) ListTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := s.tournaments.List(r.Context(), chi.URLParam(r, "region"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]TournamentResponse, len(tournaments))
	for i, t := range tournaments {
		out[i] = toTournamentResponse(t, false)
	}
	s.writeJSON(w, r, http.StatusOK, TournamentsResponse{Tournaments: out})
}

func (s *RankingsServer) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.tournaments.Get(r.Context(), chi.URLParam(r, "region"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, toTournamentResponse(*t, true))
}

func (s *RankingsServer) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.imports.ListPending(r.Context(), chi.URLParam(r, "region"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]PendingTournamentResponse, len(pending))
	for i := range pending {
		out[i] = toPendingResponse(&pending[i], nil)
	}
	s.writeJSON(w, r, http.StatusOK, map[string][]PendingTournamentResponse{"pending_tournaments": out})
}

func (s *RankingsServer) ImportChallonge(w http.ResponseWriter, r *http.Request) {
	var input ChallongeImportRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode request body: %v", err), http.StatusBadRequest)
		return
	}
	if input.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	staged, err := s.imports.ImportChallonge(r.Context(), chi.URLParam(r, "region"), input.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, toPendingResponse(staged.Pending, staged.Resolutions))
}

func (s *RankingsServer) MapAlias(w http.ResponseWriter, r *http.Request) {
	var input MapAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode request body: %v", err), http.StatusBadRequest)
		return
	}
	if input.Alias == "" {
		http.Error(w, "alias is required", http.StatusBadRequest)
		return
	}

	if err := s.imports.MapAlias(r.Context(), chi.URLParam(r, "id"), input.Alias, input.PlayerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RankingsServer) Finalize(w http.ResponseWriter, r *http.Request) {
	result, err := s.imports.Finalize(r.Context(), chi.URLParam(r, "region"), chi.URLParam(r, "id"), s.now().UTC())
	if err != nil && (result == nil || result.Tournament == nil) {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		// the tournament is stored; only the ranking refresh failed
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("tournament finalized without ranking refresh")
	}

	out := FinalizeResponse{
		Tournament: toTournamentResponse(*result.Tournament, true),
		NewPlayers: toPlayerResponses(result.NewPlayers),
		Rankings:   []RankingResponse{},
	}
	for _, ranking := range result.Rankings {
		region, err := s.regions.Get(r.Context(), ranking.Region)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out.Rankings = append(out.Rankings, toRankingResponse(ranking, *region, nil))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *RankingsServer) Merge(w http.ResponseWriter, r *http.Request) {
	var input MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode request body: %v", err), http.StatusBadRequest)
		return
	}

	merge, err := s.players.Merge(r.Context(), input.Source, input.Target, s.now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, MergeResponse{
		ID:     merge.ID,
		Source: merge.SourcePlayer,
		Target: merge.TargetPlayer,
		Time:   merge.Time,
	})
}

func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *RankingsServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps domain errors onto HTTP status codes.
func (s *RankingsServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAlias):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidMerge),
		errors.Is(err, scraper.ErrBracketNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, scraper.ErrMissingAPIKey):
		status = http.StatusServiceUnavailable
	}

	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = &s.logger
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request rejected")
	}
	http.Error(w, err.Error(), status)
}
