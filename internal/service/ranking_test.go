package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bracket-rankings/internal/domain"
	"bracket-rankings/internal/logger"
	"bracket-rankings/internal/metrics"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const region = "norcal"

func newRankingService(store *fakeStore) *RankingService {
	return NewRankingService(store, store, NewRegionLocker(), metrics.New(prometheus.NewRegistry()), logger.Nop())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tournament(name string, on time.Time, matches ...domain.Match) domain.Tournament {
	t := domain.Tournament{Name: name, Date: on, Regions: []string{region}, Matches: matches}
	for _, m := range matches {
		for _, p := range []string{m.Winner, m.Loser} {
			if !t.HasPlayer(p) {
				t.Players = append(t.Players, p)
			}
		}
	}
	return t
}

func beat(winner, loser string) domain.Match {
	return domain.Match{Winner: winner, Loser: loser}
}

func entryPlayers(r *domain.Ranking) []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Player
	}
	return out
}

func TestGenerateRanking_TwoPlayers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(region)
	store.addPlayer("p1", "P1", []string{region})
	store.addPlayer("p2", "P2", []string{region})
	played := date(2014, 3, 1)
	store.addTournament(tournament("weekly", played, beat("p1", "p2")))

	svc := newRankingService(store)
	ranking, err := svc.GenerateRanking(ctx, RankingParams{
		Region:      region,
		Now:         played.AddDate(0, 0, 1),
		DayLimit:    60,
		NumTourneys: 1,
	})
	require.NoError(t, err)

	require.Len(t, ranking.Entries, 2)
	assert.Equal(t, "p1", ranking.Entries[0].Player)
	assert.Equal(t, 1, ranking.Entries[0].Rank)
	assert.Equal(t, "p2", ranking.Entries[1].Player)
	assert.Equal(t, 2, ranking.Entries[1].Rank)
	assert.Equal(t, []string{"weekly"}, ranking.Tournaments)
	assert.Nil(t, ranking.Entries[0].PreviousRank)

	p1, ok := store.rating("p1", region)
	require.True(t, ok)
	p2, ok := store.rating("p2", region)
	require.True(t, ok)
	assert.Greater(t, p1.Mu, 25.0)
	assert.Less(t, p2.Mu, 25.0)
	assert.InDelta(t, 29.396, ranking.Entries[0].Rating, 0.001)
	assert.InDelta(t, 20.604, ranking.Entries[1].Rating, 0.001)

	assert.Equal(t, 1, store.rankingCount())
}

func TestGenerateRanking_AllInactive(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("p1", "P1", []string{region})
	store.addPlayer("p2", "P2", []string{region})
	played := date(2014, 3, 1)
	store.addTournament(tournament("weekly", played, beat("p1", "p2")))

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region:      region,
		Now:         played.AddDate(0, 0, 90),
		DayLimit:    60,
		NumTourneys: 1,
	})
	require.NoError(t, err)
	assert.NotNil(t, ranking.Entries)
	assert.Empty(t, ranking.Entries)
	assert.Equal(t, 1, store.rankingCount(), "an empty ranking is still stored")
}

// Two tournaments, the later-dated one inserted first, with one excluded player.
func TestGenerateRanking_ReplaysChronologically(t *testing.T) {
	store := newFakeStore(region)
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		store.addPlayer(id, id, []string{region})
	}
	store.addTournament(tournament("t1", date(2013, 10, 16), beat("p1", "p2"), beat("p3", "p4")))
	store.addTournament(tournament("t2", date(2013, 10, 10), beat("p5", "p2"), beat("p3", "p4")))
	store.exclude(region, "p3")

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region:      region,
		Now:         date(2013, 10, 17),
		DayLimit:    30,
		NumTourneys: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"t2", "t1"}, ranking.Tournaments)
	assert.Equal(t, []string{"p5", "p1", "p4", "p2"}, entryPlayers(ranking))

	want := map[string]struct{ mu, sigma float64 }{
		"p1": {28.458, 7.200},
		"p2": {18.043, 6.463},
		"p3": {31.229, 6.523},
		"p4": {18.771, 6.523},
		"p5": {29.396, 7.171},
	}
	for id, w := range want {
		got, ok := store.rating(id, region)
		require.True(t, ok, id)
		assert.InDelta(t, w.mu, got.Mu, 0.001, id)
		assert.InDelta(t, w.sigma, got.Sigma, 0.001, id)
	}
	for i, e := range ranking.Entries {
		assert.Equal(t, i+1, e.Rank)
		assert.InDelta(t, want[e.Player].mu, e.Rating, 0.001)
	}
}

func TestGenerateRanking_Eligibility(t *testing.T) {
	now := date(2014, 6, 1)

	tests := []struct {
		name        string
		playedOn    []time.Time
		dayLimit    int
		numTourneys int
		wantRanked  bool
	}{
		{name: "recent single tournament", playedOn: []time.Time{now.AddDate(0, 0, -1)}, dayLimit: 60, numTourneys: 1, wantRanked: true},
		{name: "exactly at the cutoff is inactive", playedOn: []time.Time{now.AddDate(0, 0, -60)}, dayLimit: 60, numTourneys: 1},
		{name: "just after the cutoff is active", playedOn: []time.Time{now.AddDate(0, 0, -60).Add(time.Second)}, dayLimit: 60, numTourneys: 1, wantRanked: true},
		{name: "too few tournaments", playedOn: []time.Time{now.AddDate(0, 0, -1)}, dayLimit: 60, numTourneys: 2},
		{name: "old tournaments count toward participation", playedOn: []time.Time{now.AddDate(-1, 0, 0), now.AddDate(0, 0, -1)}, dayLimit: 60, numTourneys: 2, wantRanked: true},
		{name: "only old tournaments", playedOn: []time.Time{now.AddDate(-1, 0, 0), now.AddDate(0, -3, 0)}, dayLimit: 60, numTourneys: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(region)
			store.addPlayer("a", "a", []string{region})
			store.addPlayer("b", "b", []string{region})
			for i, on := range tt.playedOn {
				store.addTournament(tournament(string(rune('A'+i)), on, beat("a", "b")))
			}

			ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
				Region:      region,
				Now:         now,
				DayLimit:    tt.dayLimit,
				NumTourneys: tt.numTourneys,
			})
			require.NoError(t, err)
			_, ranked := ranking.RankOf("a")
			assert.Equal(t, tt.wantRanked, ranked)
			require.NoError(t, ranking.Validate())
		})
	}
}

func TestGenerateRanking_ExcludedNeverRanked(t *testing.T) {
	store := newFakeStore(region)
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		store.addPlayer(id, id, []string{region})
	}
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b"), beat("c", "d"), beat("e", "f"), beat("a", "c")))
	store.exclude(region, "a")
	store.exclude(region, "d")

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	require.NoError(t, err)

	for _, e := range ranking.Entries {
		assert.NotContains(t, []string{"a", "d"}, e.Player)
	}
	assert.Len(t, ranking.Entries, 4)
	require.NoError(t, ranking.Validate())

	// excluded players are still rated
	a, _ := store.rating("a", region)
	assert.Greater(t, a.Mu, 25.0)
}

func TestGenerateRanking_ExcludedMatchesNotRated(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addTournament(tournament("one", date(2014, 1, 1), domain.Match{Winner: "a", Loser: "b", Excluded: true}))

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	require.NoError(t, err)

	a, _ := store.rating("a", region)
	assert.Equal(t, domain.DefaultRating(), a)
	// participation still counts
	assert.Len(t, ranking.Entries, 2)
}

func TestGenerateRanking_OutOfRegionMatchesSkipped(t *testing.T) {
	store := newFakeStore(region, "socal")
	store.addPlayer("local", "local", []string{region})
	store.addPlayer("visitor", "visitor", []string{"socal"})
	store.addTournament(tournament("major", date(2014, 1, 1), beat("visitor", "local")))

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	require.NoError(t, err)

	local, _ := store.rating("local", region)
	assert.Equal(t, domain.DefaultRating(), local)
	_, visitorRated := store.rating("visitor", region)
	assert.False(t, visitorRated)
	assert.Equal(t, []string{"local"}, entryPlayers(ranking))
}

func TestGenerateRanking_ResetsStaleRatings(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addPlayer("idle", "idle", []string{region})
	require.NoError(t, store.SetPlayerRating(context.Background(), "idle", region, domain.Rating{Mu: 40, Sigma: 1}))
	require.NoError(t, store.SetPlayerRating(context.Background(), "a", region, domain.Rating{Mu: 10, Sigma: 2}))
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b")))

	_, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	require.NoError(t, err)

	idle, _ := store.rating("idle", region)
	assert.Equal(t, domain.DefaultRating(), idle)
	a, _ := store.rating("a", region)
	assert.InDelta(t, 29.396, a.Mu, 0.001)
}

func TestGenerateRanking_TieBreak(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("id9", "bob", []string{region})
	store.addPlayer("id2", "sam", []string{region})
	store.addPlayer("id1", "Sam", []string{region})
	store.addPlayer("id8", "Alice", []string{region})
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		store.addPlayer(id, "z"+id, []string{region})
	}
	store.addTournament(tournament("one", date(2014, 1, 1),
		beat("id9", "x1"), beat("id2", "x2"), beat("id1", "x3"), beat("id8", "x4")))

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id8", "id9", "id1", "id2"}, entryPlayers(ranking)[:4])
	assert.Equal(t, ranking.Entries[0].Rating, ranking.Entries[3].Rating)
}

func TestGenerateRanking_Deterministic(t *testing.T) {
	store := newFakeStore(region)
	for _, id := range []string{"a", "b", "c", "d"} {
		store.addPlayer(id, id, []string{region})
	}
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b"), beat("c", "d"), beat("a", "c")))
	store.addTournament(tournament("two", date(2014, 1, 8), beat("d", "a"), beat("b", "c")))
	store.addTournament(tournament("three", date(2014, 1, 8), beat("a", "d")))

	svc := newRankingService(store)
	params := RankingParams{Region: region, Now: date(2014, 1, 9), DayLimit: 60, NumTourneys: 2}

	first, err := svc.GenerateRanking(context.Background(), params)
	require.NoError(t, err)
	second, err := svc.GenerateRanking(context.Background(), params)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(domain.Ranking{}, "ID")); diff != "" {
		t.Errorf("rankings differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"one", "two", "three"}, first.Tournaments)
}

func TestGenerateRanking_DiffAgainst(t *testing.T) {
	store := newFakeStore(region)
	for _, id := range []string{"a", "b", "c"} {
		store.addPlayer(id, id, []string{region})
	}
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b"), beat("b", "c")))

	previous := &domain.Ranking{Entries: []domain.RankingEntry{
		{Player: "b", Rank: 1},
		{Player: "a", Rank: 2},
	}}

	ranking, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1, DiffAgainst: previous,
	})
	require.NoError(t, err)

	got := map[string]*int{}
	for _, e := range ranking.Entries {
		got[e.Player] = e.PreviousRank
	}
	require.NotNil(t, got["a"])
	assert.Equal(t, 2, *got["a"])
	require.NotNil(t, got["b"])
	assert.Equal(t, 1, *got["b"])
	assert.Nil(t, got["c"])
}

func TestGenerateRanking_RegionNotFound(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})

	_, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: "atlantis", Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, store.ratingWrites)
	assert.Zero(t, store.rankingCount())
}

func TestGenerateRanking_InvalidTournament(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addTournament(tournament("ok", date(2014, 1, 1), beat("a", "b")))
	broken := tournament("broken", date(2014, 1, 2), beat("a", "b"))
	broken.Players = []string{"a"}
	store.addTournament(broken)

	_, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 3), DayLimit: 60, NumTourneys: 1,
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.Zero(t, store.ratingWrites, "nothing is reset before validation passes")
	assert.Zero(t, store.rankingCount())
}

func TestGenerateRanking_StoreFailureAbortsReplay(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b"), beat("b", "a")))

	boom := errors.New("disk full")
	var writes atomic.Int32
	store.SetPlayerRatingFunc = func(context.Context, string, string, domain.Rating) error {
		// two resets and one match succeed
		if writes.Add(1) > 4 {
			return boom
		}
		return nil
	}

	_, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, store.rankingCount())

	// ratings from the first match stay committed
	a, _ := store.rating("a", region)
	assert.Greater(t, a.Mu, 25.0)
}

func TestGenerateRanking_InsertFailure(t *testing.T) {
	store := newFakeStore(region)
	store.addPlayer("a", "a", []string{region})
	boom := errors.New("write conflict")
	store.InsertRankingFunc = func(context.Context, *domain.Ranking) error { return boom }

	_, err := newRankingService(store).GenerateRanking(context.Background(), RankingParams{
		Region: region, Now: date(2014, 1, 2), DayLimit: 60, NumTourneys: 1,
	})
	assert.True(t, errors.Is(err, boom))
}

func TestGenerateForRegion_UsesCriteriaAndLatest(t *testing.T) {
	store := newFakeStore(region)
	store.regions[region] = domain.Region{ID: region, RankingDayLimit: 30, RankingNumTourneys: 1}
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b")))

	svc := newRankingService(store)

	first, err := svc.GenerateForRegion(context.Background(), region, date(2014, 1, 2), true)
	require.NoError(t, err)
	assert.Nil(t, first.Entries[0].PreviousRank)

	store.addTournament(tournament("two", date(2014, 1, 20), beat("b", "a"), beat("b", "a")))
	second, err := svc.GenerateForRegion(context.Background(), region, date(2014, 1, 21), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, entryPlayers(second))
	require.NotNil(t, second.Entries[0].PreviousRank)
	assert.Equal(t, 2, *second.Entries[0].PreviousRank)

	// a 30 day window drops everyone 60 days later
	third, err := svc.GenerateForRegion(context.Background(), region, date(2014, 3, 21), false)
	require.NoError(t, err)
	assert.Empty(t, third.Entries)

	latest, err := svc.LatestRanking(context.Background(), region)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)
}

func TestGenerateWithCriteria_OverridesStored(t *testing.T) {
	store := newFakeStore(region)
	store.regions[region] = domain.Region{ID: region, RankingDayLimit: 30, RankingNumTourneys: 2}
	store.addPlayer("a", "a", []string{region})
	store.addPlayer("b", "b", []string{region})
	store.addTournament(tournament("one", date(2014, 1, 1), beat("a", "b")))

	svc := newRankingService(store)

	stored, err := svc.GenerateForRegion(context.Background(), region, date(2014, 1, 2), false)
	require.NoError(t, err)
	assert.Empty(t, stored.Entries)

	override := store.regions[region]
	override.RankingNumTourneys = 1
	ranking, err := svc.GenerateWithCriteria(context.Background(), override, date(2014, 1, 2), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entryPlayers(ranking))
	assert.Equal(t, 2, store.regions[region].RankingNumTourneys)
}

func TestGenerateForRegion_SerializesPerRegion(t *testing.T) {
	store := newFakeStore(region)
	var inFlight, maxInFlight atomic.Int32
	store.GetRegionFunc = func(_ context.Context, id string) (*domain.Region, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &domain.Region{ID: id, RankingDayLimit: 60, RankingNumTourneys: 1}, nil
	}

	svc := newRankingService(store)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GenerateForRegion(context.Background(), region, date(2014, 1, 2), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 5, store.rankingCount())
}

func TestLatestRanking_NotFound(t *testing.T) {
	svc := newRankingService(newFakeStore(region))

	_, err := svc.LatestRanking(context.Background(), region)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.LatestRanking(context.Background(), "atlantis")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
