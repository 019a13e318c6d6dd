package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bracket-rankings/internal/config"
	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var ErrMissingAPIKey = errors.New("challonge api key not configured")

type ChallongeClient struct {
	apiKey  string
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewChallongeClient(cfg *config.Config, logger zerolog.Logger) *ChallongeClient {
	return &ChallongeClient{
		apiKey:  cfg.ChallongeAPIKey,
		baseURL: strings.TrimSuffix(cfg.ChallongeURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type challongeTournament struct {
	Tournament struct {
		Name             string    `json:"name"`
		CreatedAt        time.Time `json:"created_at"`
		FullChallongeURL string    `json:"full_challonge_url"`
	} `json:"tournament"`
}

type challongeMatch struct {
	Match struct {
		WinnerID *int64 `json:"winner_id"`
		LoserID  *int64 `json:"loser_id"`
	} `json:"match"`
}

type challongeParticipant struct {
	Participant struct {
		ID             int64   `json:"id"`
		Name           *string `json:"name"`
		Username       *string `json:"username"`
		GroupPlayerIDs []int64 `json:"group_player_ids"`
	} `json:"participant"`
}

func (p challongeParticipant) displayName() string {
	if p.Participant.Name != nil && strings.TrimSpace(*p.Participant.Name) != "" {
		return strings.TrimSpace(*p.Participant.Name)
	}
	if p.Participant.Username != nil {
		return strings.TrimSpace(*p.Participant.Username)
	}
	return "<unknown>"
}

// Fetch downloads a tournament with its matches and participants. Matches without
// a decided winner and loser are skipped.
func (c *ChallongeClient) Fetch(ctx context.Context, tournamentID string) (*Bracket, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	id := url.PathEscape(tournamentID)

	tournament, err := doRequest[challongeTournament](ctx, c, fmt.Sprintf("%s/%s.json", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challonge tournament %s: %w", tournamentID, err)
	}
	matches, err := doRequest[[]challongeMatch](ctx, c, fmt.Sprintf("%s/%s/matches.json", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challonge matches %s: %w", tournamentID, err)
	}
	participants, err := doRequest[[]challongeParticipant](ctx, c, fmt.Sprintf("%s/%s/participants.json", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challonge participants %s: %w", tournamentID, err)
	}

	// matches sometimes reference group_player_ids instead of the participant id
	names := make(map[int64]string)
	players := make([]string, 0, len(*participants))
	for _, p := range *participants {
		name := p.displayName()
		names[p.Participant.ID] = name
		for _, gid := range p.Participant.GroupPlayerIDs {
			names[gid] = name
		}
		players = append(players, name)
	}

	aliasMatches := []domain.AliasMatch{}
	for _, m := range *matches {
		if m.Match.WinnerID == nil || m.Match.LoserID == nil {
			continue
		}
		winner, okW := names[*m.Match.WinnerID]
		loser, okL := names[*m.Match.LoserID]
		if !okW || !okL {
			c.logger.Warn().
				Int64("winner_id", *m.Match.WinnerID).
				Int64("loser_id", *m.Match.LoserID).
				Msg("challonge match references unknown participant, skipping")
			continue
		}
		aliasMatches = append(aliasMatches, domain.AliasMatch{Winner: winner, Loser: loser})
	}

	c.logger.Info().
		Str("tournament", tournamentID).
		Int("participants", len(players)).
		Int("matches", len(aliasMatches)).
		Msg("challonge tournament fetched")

	t := tournament.Tournament
	return newBracket(strings.TrimSpace(t.Name), t.CreatedAt.UTC(), t.FullChallongeURL, players, aliasMatches), nil
}

func doRequest[T any](ctx context.Context, client *ChallongeClient, rawURL string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL + "?api_key=" + url.QueryEscape(client.apiKey))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
