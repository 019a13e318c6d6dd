package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const playerColumns = `p.id, p.name, p.merged, COALESCE(p.merge_parent, ''), p.created_at, p.updated_at`

// Insert stores a new player. An empty ID is replaced by a generated one.
func (r *PlayerRepository) Insert(ctx context.Context, player *domain.Player) error {
	if err := preparePlayer(player); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertPlayer(ctx, tx, player)
	})
}

// Update rewrites name, merge state, aliases and regions. Ratings are written through SetRating.
func (r *PlayerRepository) Update(ctx context.Context, player *domain.Player) error {
	player.UpdatedAt = time.Now().UTC()
	if err := player.Validate(); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return updatePlayer(ctx, tx, player)
	})
}

// Merge commits a player merge atomically: the rewritten tournaments, the source
// tombstone, the enlarged target and the merge record.
func (r *PlayerRepository) Merge(ctx context.Context, source, target *domain.Player, rewritten []domain.Tournament, merge *domain.Merge) error {
	now := time.Now().UTC()
	for _, p := range []*domain.Player{source, target} {
		p.UpdatedAt = now
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for i := range rewritten {
		if err := rewritten[i].Validate(); err != nil {
			return err
		}
	}
	if merge.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		merge.ID = id
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for i := range rewritten {
			if err := updateTournament(ctx, tx, &rewritten[i]); err != nil {
				return err
			}
		}
		// the tombstone goes first so its aliases no longer count as taken
		if err := updatePlayer(ctx, tx, source); err != nil {
			return err
		}
		if err := updatePlayer(ctx, tx, target); err != nil {
			return err
		}
		return insertMerge(ctx, tx, merge)
	})
}

func (r *PlayerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete player %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("player", id)
	}
	r.logger.Info().Str("player_id", id).Msg("player deleted")
	return nil
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	players, err := r.query(ctx, r.db, `SELECT `+playerColumns+` FROM players p WHERE p.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, domain.NewNotFound("player", id)
	}
	return &players[0], nil
}

// ListByRegion returns the non-merged players of a region ordered by name.
func (r *PlayerRepository) ListByRegion(ctx context.Context, region string) ([]domain.Player, error) {
	return r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		JOIN player_regions pr ON pr.player_id = p.id
		WHERE pr.region_id = ? AND p.merged = 0
		ORDER BY p.name COLLATE NOCASE, p.id`, region)
}

// ListAll returns every non-merged player ordered by name.
func (r *PlayerRepository) ListAll(ctx context.Context) ([]domain.Player, error) {
	return r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		WHERE p.merged = 0
		ORDER BY p.name COLLATE NOCASE, p.id`)
}

// ListUnplayed returns non-merged players that appear in no tournament.
func (r *PlayerRepository) ListUnplayed(ctx context.Context) ([]domain.Player, error) {
	return r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		WHERE p.merged = 0
		  AND NOT EXISTS (SELECT 1 FROM tournament_players tp WHERE tp.player_id = p.id)
		  AND NOT EXISTS (SELECT 1 FROM players c WHERE c.merge_parent = p.id)
		ORDER BY p.name COLLATE NOCASE, p.id`)
}

// FindPlayerByExactAlias returns the non-merged player of the region owning alias,
// or nil when there is none.
func (r *PlayerRepository) FindPlayerByExactAlias(ctx context.Context, region, alias string) (*domain.Player, error) {
	players, err := r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		JOIN player_aliases pa ON pa.player_id = p.id
		JOIN player_regions pr ON pr.player_id = p.id
		WHERE pa.alias = ? AND pr.region_id = ? AND p.merged = 0
		ORDER BY p.rowid
		LIMIT 1`, domain.NormalizeAlias(alias), region)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, nil
	}
	return &players[0], nil
}

// FindPlayersBySimilarAlias returns non-merged players from every region whose
// aliases match any candidate produced by domain.SimilarAliases, in insertion order.
func (r *PlayerRepository) FindPlayersBySimilarAlias(ctx context.Context, alias string) ([]domain.Player, error) {
	candidates := domain.SimilarAliases(alias)
	if len(candidates) == 0 {
		return []domain.Player{}, nil
	}
	return r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		WHERE p.merged = 0
		  AND EXISTS (SELECT 1 FROM player_aliases pa WHERE pa.player_id = p.id AND pa.alias IN (`+placeholders(len(candidates))+`))
		ORDER BY p.rowid`, stringArgs(candidates)...)
}

// AddAlias appends alias to the player, rejecting it when any non-merged player already owns it.
func (r *PlayerRepository) AddAlias(ctx context.Context, playerID, alias string) error {
	alias = domain.NormalizeAlias(alias)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `
			SELECT pa.player_id FROM player_aliases pa
			JOIN players p ON p.id = pa.player_id
			WHERE pa.alias = ? AND (p.merged = 0 OR p.id = ?)
			LIMIT 1`, alias, playerID).Scan(&owner)
		if err == nil {
			return fmt.Errorf("%w: %q already belongs to player %s", domain.ErrDuplicateAlias, alias, owner)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check alias %q: %w", alias, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_aliases (player_id, alias, position)
			SELECT ?, ?, COALESCE(MAX(position) + 1, 0) FROM player_aliases WHERE player_id = ?`,
			playerID, alias, playerID)
		if err != nil {
			return fmt.Errorf("failed to add alias %q to %s: %w", alias, playerID, err)
		}
		return nil
	})
}

func (r *PlayerRepository) GetRating(ctx context.Context, playerID, region string) (*domain.Rating, error) {
	var rating domain.Rating
	err := r.db.QueryRowContext(ctx, `
		SELECT mu, sigma FROM player_ratings WHERE player_id = ? AND region_id = ?`, playerID, region).
		Scan(&rating.Mu, &rating.Sigma)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating for %s in %s: %w", playerID, region, err)
	}
	return &rating, nil
}

func (r *PlayerRepository) SetRating(ctx context.Context, playerID, region string, rating domain.Rating) error {
	return setRating(ctx, r.db, playerID, region, rating)
}

func (r *PlayerRepository) SetExcluded(ctx context.Context, region, playerID string, excluded bool) error {
	var err error
	if excluded {
		_, err = r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO region_excluded_players (region_id, player_id) VALUES (?, ?)`, region, playerID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			DELETE FROM region_excluded_players WHERE region_id = ? AND player_id = ?`, region, playerID)
	}
	if err != nil {
		return fmt.Errorf("failed to set exclusion of %s in %s: %w", playerID, region, err)
	}
	return nil
}

func (r *PlayerRepository) ListExcluded(ctx context.Context, region string) ([]domain.Player, error) {
	return r.query(ctx, r.db, `
		SELECT `+playerColumns+`
		FROM players p
		JOIN region_excluded_players e ON e.player_id = p.id
		WHERE e.region_id = ?
		ORDER BY p.name COLLATE NOCASE, p.id`, region)
}

func insertMerge(ctx context.Context, q dbtx, merge *domain.Merge) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO merges (id, source_player_id, target_player_id, time) VALUES (?, ?, ?, ?)`,
		merge.ID, merge.SourcePlayer, merge.TargetPlayer, toUnix(merge.Time))
	if err != nil {
		return fmt.Errorf("failed to insert merge %s: %w", merge.ID, err)
	}
	return nil
}

func (r *PlayerRepository) query(ctx context.Context, q dbtx, query string, args ...any) ([]domain.Player, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	players := []domain.Player{}
	for rows.Next() {
		var (
			p                    domain.Player
			merged               int
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &merged, &p.MergeParent, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		p.Merged = merged != 0
		p.CreatedAt = fromUnix(createdAt)
		p.UpdatedAt = fromUnix(updatedAt)
		p.Aliases = []string{}
		p.Regions = []string{}
		p.Ratings = map[string]domain.Rating{}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.hydrate(ctx, q, players); err != nil {
		return nil, err
	}
	return players, nil
}

// hydrate loads aliases, regions, ratings and merge children for players.
func (r *PlayerRepository) hydrate(ctx context.Context, q dbtx, players []domain.Player) error {
	if len(players) == 0 {
		return nil
	}
	index := make(map[string]int, len(players))
	ids := make([]string, len(players))
	for i, p := range players {
		index[p.ID] = i
		ids[i] = p.ID
	}

	for _, batch := range batches(ids) {
		in := placeholders(len(batch))
		args := stringArgs(batch)

		if err := scanPairs(ctx, q, `SELECT player_id, alias FROM player_aliases WHERE player_id IN (`+in+`) ORDER BY player_id, position`, args,
			func(id, alias string) { players[index[id]].Aliases = append(players[index[id]].Aliases, alias) }); err != nil {
			return fmt.Errorf("failed to load aliases: %w", err)
		}
		if err := scanPairs(ctx, q, `SELECT player_id, region_id FROM player_regions WHERE player_id IN (`+in+`) ORDER BY player_id, region_id`, args,
			func(id, region string) { players[index[id]].Regions = append(players[index[id]].Regions, region) }); err != nil {
			return fmt.Errorf("failed to load regions: %w", err)
		}
		if err := scanPairs(ctx, q, `SELECT merge_parent, id FROM players WHERE merge_parent IN (`+in+`) ORDER BY merge_parent, id`, args,
			func(id, child string) {
				players[index[id]].MergeChildren = append(players[index[id]].MergeChildren, child)
			}); err != nil {
			return fmt.Errorf("failed to load merge children: %w", err)
		}

		rows, err := q.QueryContext(ctx, `SELECT player_id, region_id, mu, sigma FROM player_ratings WHERE player_id IN (`+in+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to load ratings: %w", err)
		}
		for rows.Next() {
			var id, region string
			var rating domain.Rating
			if err := rows.Scan(&id, &region, &rating.Mu, &rating.Sigma); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan rating: %w", err)
			}
			players[index[id]].Ratings[region] = rating
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func scanPairs(ctx context.Context, q dbtx, query string, args []any, fn func(a, b string)) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return err
		}
		fn(a, b)
	}
	return rows.Err()
}

// preparePlayer assigns a missing ID and timestamps, then validates.
func preparePlayer(player *domain.Player) error {
	if player.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		player.ID = id
	}
	now := time.Now().UTC()
	if player.CreatedAt.IsZero() {
		player.CreatedAt = now
	}
	player.UpdatedAt = now
	return player.Validate()
}

func insertPlayer(ctx context.Context, tx *sql.Tx, player *domain.Player) error {
	if err := checkAliasesFree(ctx, tx, player.ID, player.Aliases); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO players (id, name, merged, merge_parent, created_at, updated_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)`,
		player.ID, player.Name, boolToInt(player.Merged), player.MergeParent,
		toUnix(player.CreatedAt), toUnix(player.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert player %s: %w", player.ID, err)
	}
	if err := writeAliases(ctx, tx, player); err != nil {
		return err
	}
	if err := writeRegions(ctx, tx, player); err != nil {
		return err
	}
	for region, rating := range player.Ratings {
		if err := setRating(ctx, tx, player.ID, region, rating); err != nil {
			return err
		}
	}
	return nil
}

func updatePlayer(ctx context.Context, tx *sql.Tx, player *domain.Player) error {
	if !player.Merged {
		if err := checkAliasesFree(ctx, tx, player.ID, player.Aliases); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE players SET name = ?, merged = ?, merge_parent = NULLIF(?, ''), updated_at = ?
		WHERE id = ?`,
		player.Name, boolToInt(player.Merged), player.MergeParent, toUnix(player.UpdatedAt), player.ID)
	if err != nil {
		return fmt.Errorf("failed to update player %s: %w", player.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFound("player", player.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_aliases WHERE player_id = ?`, player.ID); err != nil {
		return fmt.Errorf("failed to clear aliases for %s: %w", player.ID, err)
	}
	if err := writeAliases(ctx, tx, player); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM player_regions WHERE player_id = ?`, player.ID); err != nil {
		return fmt.Errorf("failed to clear regions for %s: %w", player.ID, err)
	}
	return writeRegions(ctx, tx, player)
}

func checkAliasesFree(ctx context.Context, tx *sql.Tx, playerID string, aliases []string) error {
	if len(aliases) == 0 {
		return nil
	}
	args := append([]any{playerID}, stringArgs(aliases)...)
	var owner, alias string
	err := tx.QueryRowContext(ctx, `
		SELECT pa.player_id, pa.alias FROM player_aliases pa
		JOIN players p ON p.id = pa.player_id
		WHERE p.merged = 0 AND pa.player_id != ? AND pa.alias IN (`+placeholders(len(aliases))+`)
		LIMIT 1`, args...).Scan(&owner, &alias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check aliases: %w", err)
	}
	return fmt.Errorf("%w: %q already belongs to player %s", domain.ErrDuplicateAlias, alias, owner)
}

func writeAliases(ctx context.Context, tx *sql.Tx, player *domain.Player) error {
	for i, alias := range player.Aliases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO player_aliases (player_id, alias, position) VALUES (?, ?, ?)`,
			player.ID, alias, i); err != nil {
			return fmt.Errorf("failed to write alias %q for %s: %w", alias, player.ID, err)
		}
	}
	return nil
}

func writeRegions(ctx context.Context, tx *sql.Tx, player *domain.Player) error {
	for _, region := range player.Regions {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO player_regions (player_id, region_id) VALUES (?, ?)`,
			player.ID, region); err != nil {
			return fmt.Errorf("failed to write region %s for %s: %w", region, player.ID, err)
		}
	}
	return nil
}

func setRating(ctx context.Context, q dbtx, playerID, region string, rating domain.Rating) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO player_ratings (player_id, region_id, mu, sigma, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(player_id, region_id) DO UPDATE SET
			mu = excluded.mu, sigma = excluded.sigma, updated_at = excluded.updated_at`,
		playerID, region, rating.Mu, rating.Sigma, toUnix(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set rating for %s in %s: %w", playerID, region, err)
	}
	return nil
}
