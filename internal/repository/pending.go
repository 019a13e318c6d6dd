package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bracket-rankings/internal/domain"
)

func (r *TournamentRepository) InsertPending(ctx context.Context, p *domain.PendingTournament) error {
	if p.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_tournaments (id, name, type, date, url, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Type, toUnix(p.Date), p.URL, toUnix(p.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert pending tournament %s: %w", p.ID, err)
		}
		for _, region := range p.Regions {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO pending_tournament_regions (pending_id, region_id) VALUES (?, ?)`,
				p.ID, region); err != nil {
				return fmt.Errorf("failed to write region %s of pending %s: %w", region, p.ID, err)
			}
		}
		for i, alias := range p.Aliases {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pending_aliases (pending_id, alias, position, player_id) VALUES (?, ?, ?, NULLIF(?, ''))`,
				p.ID, alias, i, p.AliasMappings[alias]); err != nil {
				return fmt.Errorf("failed to write alias %q of pending %s: %w", alias, p.ID, err)
			}
		}
		for i, m := range p.Matches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pending_matches (pending_id, position, winner_alias, loser_alias, excluded) VALUES (?, ?, ?, ?, ?)`,
				p.ID, i, m.Winner, m.Loser, boolToInt(m.Excluded)); err != nil {
				return fmt.Errorf("failed to write match %d of pending %s: %w", i, p.ID, err)
			}
		}
		return nil
	})
}

func (r *TournamentRepository) GetPending(ctx context.Context, id string) (*domain.PendingTournament, error) {
	pending, err := r.queryPending(ctx, `
		SELECT id, name, type, date, url, created_at FROM pending_tournaments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, domain.NewNotFound("pending tournament", id)
	}
	return &pending[0], nil
}

// ListPending returns the region's pending tournaments, oldest first.
func (r *TournamentRepository) ListPending(ctx context.Context, region string) ([]domain.PendingTournament, error) {
	return r.queryPending(ctx, `
		SELECT p.id, p.name, p.type, p.date, p.url, p.created_at
		FROM pending_tournaments p
		JOIN pending_tournament_regions pr ON pr.pending_id = p.id
		WHERE pr.region_id = ?
		ORDER BY p.created_at, p.rowid`, region)
}

// SetPendingAliasMapping points alias at playerID; an empty playerID clears the mapping.
func (r *TournamentRepository) SetPendingAliasMapping(ctx context.Context, pendingID, alias, playerID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_aliases SET player_id = NULLIF(?, '') WHERE pending_id = ? AND alias = ?`,
		playerID, pendingID, alias)
	if err != nil {
		return fmt.Errorf("failed to map alias %q of pending %s: %w", alias, pendingID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("pending alias", alias)
	}
	return nil
}

func (r *TournamentRepository) DeletePending(ctx context.Context, id string) error {
	return deletePending(ctx, r.db, id)
}

func deletePending(ctx context.Context, q dbtx, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM pending_tournaments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending tournament %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("pending tournament", id)
	}
	return nil
}

func (r *TournamentRepository) queryPending(ctx context.Context, query string, args ...any) ([]domain.PendingTournament, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tournaments: %w", err)
	}
	defer rows.Close()

	pending := []domain.PendingTournament{}
	for rows.Next() {
		var (
			p               domain.PendingTournament
			date, createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &date, &p.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending tournament: %w", err)
		}
		p.Date = fromUnix(date)
		p.CreatedAt = fromUnix(createdAt)
		p.Regions = []string{}
		p.Aliases = []string{}
		p.Matches = []domain.AliasMatch{}
		p.AliasMappings = map[string]string{}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range pending {
		if err := r.hydratePending(ctx, &pending[i]); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

func (r *TournamentRepository) hydratePending(ctx context.Context, p *domain.PendingTournament) error {
	if err := scanPairs(ctx, r.db, `SELECT pending_id, region_id FROM pending_tournament_regions WHERE pending_id = ? ORDER BY region_id`, []any{p.ID},
		func(_, region string) { p.Regions = append(p.Regions, region) }); err != nil {
		return fmt.Errorf("failed to load regions of pending %s: %w", p.ID, err)
	}
	if err := scanPairs(ctx, r.db, `SELECT alias, COALESCE(player_id, '') FROM pending_aliases WHERE pending_id = ? ORDER BY position`, []any{p.ID},
		func(alias, playerID string) {
			p.Aliases = append(p.Aliases, alias)
			if playerID != "" {
				p.AliasMappings[alias] = playerID
			}
		}); err != nil {
		return fmt.Errorf("failed to load aliases of pending %s: %w", p.ID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT winner_alias, loser_alias, excluded FROM pending_matches WHERE pending_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load matches of pending %s: %w", p.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m        domain.AliasMatch
			excluded int
		)
		if err := rows.Scan(&m.Winner, &m.Loser, &excluded); err != nil {
			return fmt.Errorf("failed to scan pending match: %w", err)
		}
		m.Excluded = excluded != 0
		p.Matches = append(p.Matches, m)
	}
	return rows.Err()
}
