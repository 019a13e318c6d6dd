package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
)

type RankingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRankingRepository(sqlDB *sql.DB, logger zerolog.Logger) *RankingRepository {
	return &RankingRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Insert stores a ranking snapshot with its entries and tournament list.
func (r *RankingRepository) Insert(ctx context.Context, ranking *domain.Ranking) error {
	if ranking.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		ranking.ID = id
	}
	if err := ranking.Validate(); err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rankings (id, region_id, time, created_at) VALUES (?, ?, ?, ?)`,
			ranking.ID, ranking.Region, toUnix(ranking.Time), toUnix(time.Now())); err != nil {
			return fmt.Errorf("failed to insert ranking %s: %w", ranking.ID, err)
		}

		for i, tournamentID := range ranking.Tournaments {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ranking_tournaments (ranking_id, tournament_id, position) VALUES (?, ?, ?)`,
				ranking.ID, tournamentID, i); err != nil {
				return fmt.Errorf("failed to write tournament %s of ranking %s: %w", tournamentID, ranking.ID, err)
			}
		}

		for _, e := range ranking.Entries {
			var previous sql.NullInt64
			if e.PreviousRank != nil {
				previous = sql.NullInt64{Int64: int64(*e.PreviousRank), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ranking_entries (ranking_id, rank, player_id, rating, previous_rank) VALUES (?, ?, ?, ?, ?)`,
				ranking.ID, e.Rank, e.Player, e.Rating, previous); err != nil {
				return fmt.Errorf("failed to write entry %d of ranking %s: %w", e.Rank, ranking.ID, err)
			}
		}
		return nil
	})
}

// GetLatest returns the most recent ranking of region, or nil when none exists.
func (r *RankingRepository) GetLatest(ctx context.Context, region string) (*domain.Ranking, error) {
	rankings, err := r.query(ctx, `
		SELECT id, region_id, time FROM rankings
		WHERE region_id = ?
		ORDER BY time DESC, created_at DESC, rowid DESC
		LIMIT 1`, region)
	if err != nil {
		return nil, err
	}
	if len(rankings) == 0 {
		return nil, nil
	}
	return &rankings[0], nil
}

func (r *RankingRepository) Get(ctx context.Context, id string) (*domain.Ranking, error) {
	rankings, err := r.query(ctx, `SELECT id, region_id, time FROM rankings WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rankings) == 0 {
		return nil, domain.NewNotFound("ranking", id)
	}
	return &rankings[0], nil
}

// List returns the region's rankings newest first.
func (r *RankingRepository) List(ctx context.Context, region string) ([]domain.Ranking, error) {
	return r.query(ctx, `
		SELECT id, region_id, time FROM rankings
		WHERE region_id = ?
		ORDER BY time DESC, created_at DESC, rowid DESC`, region)
}

func (r *RankingRepository) query(ctx context.Context, query string, args ...any) ([]domain.Ranking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	rankings := []domain.Ranking{}
	for rows.Next() {
		var (
			rk domain.Ranking
			ts int64
		)
		if err := rows.Scan(&rk.ID, &rk.Region, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		rk.Time = fromUnix(ts)
		rk.Tournaments = []string{}
		rk.Entries = []domain.RankingEntry{}
		rankings = append(rankings, rk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range rankings {
		if err := r.hydrate(ctx, &rankings[i]); err != nil {
			return nil, err
		}
	}
	return rankings, nil
}

func (r *RankingRepository) hydrate(ctx context.Context, rk *domain.Ranking) error {
	if err := scanPairs(ctx, r.db, `SELECT ranking_id, tournament_id FROM ranking_tournaments WHERE ranking_id = ? ORDER BY position`, []any{rk.ID},
		func(_, tournamentID string) { rk.Tournaments = append(rk.Tournaments, tournamentID) }); err != nil {
		return fmt.Errorf("failed to load tournaments of ranking %s: %w", rk.ID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT rank, player_id, rating, previous_rank FROM ranking_entries
		WHERE ranking_id = ? ORDER BY rank`, rk.ID)
	if err != nil {
		return fmt.Errorf("failed to load entries of ranking %s: %w", rk.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        domain.RankingEntry
			previous sql.NullInt64
		)
		if err := rows.Scan(&e.Rank, &e.Player, &e.Rating, &previous); err != nil {
			return fmt.Errorf("failed to scan ranking entry: %w", err)
		}
		if previous.Valid {
			p := int(previous.Int64)
			e.PreviousRank = &p
		}
		rk.Entries = append(rk.Entries, e)
	}
	return rows.Err()
}
