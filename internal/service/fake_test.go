package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"bracket-rankings/internal/domain"
)

// fakeStore is an in-memory RankingStore, AliasLookup and RegionConfig.
// Set a ...Func field to override one operation.
type fakeStore struct {
	mu          sync.Mutex
	regions     map[string]domain.Region
	players     []domain.Player
	tournaments []domain.Tournament
	ratings     map[string]domain.Rating
	excluded    map[string][]string
	rankings    []domain.Ranking
	nextSeq     int64

	ratingWrites int

	GetRegionFunc       func(ctx context.Context, id string) (*domain.Region, error)
	SetPlayerRatingFunc func(ctx context.Context, playerID, region string, rating domain.Rating) error
	InsertRankingFunc   func(ctx context.Context, ranking *domain.Ranking) error
	FindSimilarFunc     func(ctx context.Context, alias string) ([]domain.Player, error)
}

func newFakeStore(regions ...string) *fakeStore {
	f := &fakeStore{
		regions:  make(map[string]domain.Region),
		ratings:  make(map[string]domain.Rating),
		excluded: make(map[string][]string),
	}
	for _, r := range regions {
		f.regions[r] = domain.Region{ID: r, DisplayName: r, RankingDayLimit: 60, RankingNumTourneys: 1}
	}
	return f
}

func ratingKey(playerID, region string) string { return playerID + "|" + region }

func (f *fakeStore) addPlayer(id, name string, regions []string, aliases ...string) domain.Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := append([]string{domain.NormalizeAlias(name)}, aliases...)
	p := domain.Player{ID: id, Name: name, Aliases: all, Regions: regions, Ratings: map[string]domain.Rating{}}
	f.players = append(f.players, p)
	return p
}

func (f *fakeStore) addTournament(t domain.Tournament) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	t.Seq = f.nextSeq
	if t.ID == "" {
		t.ID = t.Name
	}
	f.tournaments = append(f.tournaments, t)
}

func (f *fakeStore) exclude(region, playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded[region] = append(f.excluded[region], playerID)
}

func (f *fakeStore) rating(playerID, region string) (domain.Rating, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ratings[ratingKey(playerID, region)]
	return r, ok
}

func (f *fakeStore) GetRegion(ctx context.Context, id string) (*domain.Region, error) {
	if f.GetRegionFunc != nil {
		return f.GetRegionFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regions[id]
	if !ok {
		return nil, domain.NewNotFound("region", id)
	}
	return &r, nil
}

func (f *fakeStore) GetAllTournaments(_ context.Context, region string) ([]domain.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Tournament
	for _, t := range f.tournaments {
		if slices.Contains(t.Regions, region) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Tournament) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, nil
}

func (f *fakeStore) GetPlayerRating(_ context.Context, playerID, region string) (*domain.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ratings[ratingKey(playerID, region)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeStore) SetPlayerRating(ctx context.Context, playerID, region string, rating domain.Rating) error {
	if f.SetPlayerRatingFunc != nil {
		if err := f.SetPlayerRatingFunc(ctx, playerID, region, rating); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingWrites++
	f.ratings[ratingKey(playerID, region)] = rating
	return nil
}

func (f *fakeStore) GetExcludedPlayers(_ context.Context, region string) ([]domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Player
	for _, p := range f.players {
		if slices.Contains(f.excluded[region], p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAllPlayers(_ context.Context, region string) ([]domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Player
	for _, p := range f.players {
		if !p.Merged && p.InRegion(region) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Player) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (f *fakeStore) InsertRanking(ctx context.Context, ranking *domain.Ranking) error {
	if f.InsertRankingFunc != nil {
		if err := f.InsertRankingFunc(ctx, ranking); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ranking.ID = ranking.Region + "-" + string(rune('a'+len(f.rankings)))
	f.rankings = append(f.rankings, *ranking)
	return nil
}

func (f *fakeStore) GetLatestRanking(_ context.Context, region string) (*domain.Ranking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rankings) - 1; i >= 0; i-- {
		if f.rankings[i].Region == region {
			r := f.rankings[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) rankingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rankings)
}

func (f *fakeStore) FindPlayerByExactAlias(_ context.Context, region, alias string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if !p.Merged && p.InRegion(region) && p.HasAlias(alias) {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindPlayersBySimilarAlias(ctx context.Context, alias string) ([]domain.Player, error) {
	if f.FindSimilarFunc != nil {
		return f.FindSimilarFunc(ctx, alias)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	candidates := domain.SimilarAliases(alias)
	var out []domain.Player
	for _, p := range f.players {
		if p.Merged {
			continue
		}
		for _, c := range candidates {
			if slices.Contains(p.Aliases, c) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetRankingDayLimit(ctx context.Context, region string) (int, error) {
	r, err := f.GetRegion(ctx, region)
	if err != nil {
		return 0, err
	}
	return r.RankingDayLimit, nil
}

func (f *fakeStore) GetRankingMinTournaments(ctx context.Context, region string) (int, error) {
	r, err := f.GetRegion(ctx, region)
	if err != nil {
		return 0, err
	}
	return r.RankingNumTourneys, nil
}
