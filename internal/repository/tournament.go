package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
)

type TournamentRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTournamentRepository(sqlDB *sql.DB, logger zerolog.Logger) *TournamentRepository {
	return &TournamentRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const tournamentColumns = `t.rowid, t.id, t.name, t.type, t.date, t.url, t.created_at`

// Insert validates and stores a tournament, assigning its ID and insertion sequence.
func (r *TournamentRepository) Insert(ctx context.Context, t *domain.Tournament) error {
	if err := prepareTournament(t); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertTournament(ctx, tx, t)
	})
}

// Update rewrites the tournament's metadata, players, matches and regions.
func (r *TournamentRepository) Update(ctx context.Context, t *domain.Tournament) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return updateTournament(ctx, tx, t)
	})
}

// Finalize stores the players first seen in t, t itself, and drops the pending
// tournament it came from, all in one transaction.
func (r *TournamentRepository) Finalize(ctx context.Context, pendingID string, newPlayers []*domain.Player, t *domain.Tournament) error {
	for _, p := range newPlayers {
		if err := preparePlayer(p); err != nil {
			return err
		}
	}
	if err := prepareTournament(t); err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, p := range newPlayers {
			if err := insertPlayer(ctx, tx, p); err != nil {
				return err
			}
		}
		if err := insertTournament(ctx, tx, t); err != nil {
			return err
		}
		return deletePending(ctx, tx, pendingID)
	})
}

func (r *TournamentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("tournament", id)
	}
	return nil
}

func (r *TournamentRepository) Get(ctx context.Context, id string) (*domain.Tournament, error) {
	tournaments, err := r.query(ctx, `SELECT `+tournamentColumns+` FROM tournaments t WHERE t.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tournaments) == 0 {
		return nil, domain.NewNotFound("tournament", id)
	}
	return &tournaments[0], nil
}

// ListByRegion returns the region's tournaments by date, ties broken by insertion order.
func (r *TournamentRepository) ListByRegion(ctx context.Context, region string) ([]domain.Tournament, error) {
	return r.query(ctx, `
		SELECT `+tournamentColumns+`
		FROM tournaments t
		JOIN tournament_regions tr ON tr.tournament_id = t.id
		WHERE tr.region_id = ?
		ORDER BY t.date, t.rowid`, region)
}

// ListReferencing returns every tournament, in any region, that playerID took part in.
func (r *TournamentRepository) ListReferencing(ctx context.Context, playerID string) ([]domain.Tournament, error) {
	return r.query(ctx, `
		SELECT `+tournamentColumns+`
		FROM tournaments t
		JOIN tournament_players tp ON tp.tournament_id = t.id
		WHERE tp.player_id = ?
		ORDER BY t.date, t.rowid`, playerID)
}

func (r *TournamentRepository) query(ctx context.Context, query string, args ...any) ([]domain.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := []domain.Tournament{}
	for rows.Next() {
		var (
			t               domain.Tournament
			date, createdAt int64
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.Name, &t.Type, &date, &t.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		t.Date = fromUnix(date)
		t.CreatedAt = fromUnix(createdAt)
		t.Players = []string{}
		t.Matches = []domain.Match{}
		t.Regions = []string{}
		tournaments = append(tournaments, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.hydrate(ctx, tournaments); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *TournamentRepository) hydrate(ctx context.Context, tournaments []domain.Tournament) error {
	if len(tournaments) == 0 {
		return nil
	}
	index := make(map[string]int, len(tournaments))
	ids := make([]string, len(tournaments))
	for i, t := range tournaments {
		index[t.ID] = i
		ids[i] = t.ID
	}

	for _, batch := range batches(ids) {
		in := placeholders(len(batch))
		args := stringArgs(batch)

		if err := scanPairs(ctx, r.db, `SELECT tournament_id, player_id FROM tournament_players WHERE tournament_id IN (`+in+`) ORDER BY tournament_id, position`, args,
			func(id, player string) { tournaments[index[id]].Players = append(tournaments[index[id]].Players, player) }); err != nil {
			return fmt.Errorf("failed to load tournament players: %w", err)
		}
		if err := scanPairs(ctx, r.db, `SELECT tournament_id, region_id FROM tournament_regions WHERE tournament_id IN (`+in+`) ORDER BY tournament_id, region_id`, args,
			func(id, region string) { tournaments[index[id]].Regions = append(tournaments[index[id]].Regions, region) }); err != nil {
			return fmt.Errorf("failed to load tournament regions: %w", err)
		}

		rows, err := r.db.QueryContext(ctx, `
			SELECT tournament_id, winner_id, loser_id, excluded FROM matches
			WHERE tournament_id IN (`+in+`) ORDER BY tournament_id, position`, args...)
		if err != nil {
			return fmt.Errorf("failed to load matches: %w", err)
		}
		for rows.Next() {
			var (
				id       string
				m        domain.Match
				excluded int
			)
			if err := rows.Scan(&id, &m.Winner, &m.Loser, &excluded); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan match: %w", err)
			}
			m.Excluded = excluded != 0
			tournaments[index[id]].Matches = append(tournaments[index[id]].Matches, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func prepareTournament(t *domain.Tournament) error {
	if t.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return t.Validate()
}

func insertTournament(ctx context.Context, tx *sql.Tx, t *domain.Tournament) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tournaments (id, name, type, date, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Type, toUnix(t.Date), t.URL, toUnix(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert tournament %s: %w", t.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sequence of tournament %s: %w", t.ID, err)
	}
	t.Seq = seq

	return writeTournamentChildren(ctx, tx, t)
}

func updateTournament(ctx context.Context, tx *sql.Tx, t *domain.Tournament) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tournaments SET name = ?, type = ?, date = ?, url = ? WHERE id = ?`,
		t.Name, t.Type, toUnix(t.Date), t.URL, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tournament %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("tournament", t.ID)
	}

	for _, table := range []string{"matches", "tournament_players", "tournament_regions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE tournament_id = ?`, t.ID); err != nil {
			return fmt.Errorf("failed to clear %s of tournament %s: %w", table, t.ID, err)
		}
	}
	return writeTournamentChildren(ctx, tx, t)
}

func writeTournamentChildren(ctx context.Context, tx *sql.Tx, t *domain.Tournament) error {
	for i, p := range t.Players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tournament_players (tournament_id, player_id, position) VALUES (?, ?, ?)`,
			t.ID, p, i); err != nil {
			return fmt.Errorf("failed to write player %s of tournament %s: %w", p, t.ID, err)
		}
	}
	for i, m := range t.Matches {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matches (tournament_id, position, winner_id, loser_id, excluded) VALUES (?, ?, ?, ?, ?)`,
			t.ID, i, m.Winner, m.Loser, boolToInt(m.Excluded)); err != nil {
			return fmt.Errorf("failed to write match %d of tournament %s: %w", i, t.ID, err)
		}
	}
	for _, region := range t.Regions {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tournament_regions (tournament_id, region_id) VALUES (?, ?)`,
			t.ID, region); err != nil {
			return fmt.Errorf("failed to write region %s of tournament %s: %w", region, t.ID, err)
		}
	}
	return nil
}
