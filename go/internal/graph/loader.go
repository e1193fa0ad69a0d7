package graph

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fourthdown/gridlink/go/internal/models"
	"github.com/fourthdown/gridlink/go/internal/sqlutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// tier thresholds on fantasy_points_ppr, per spec.md §6.3.
const (
	tierStarsFloor    = 150.0
	tierStartersFloor = 75.0
	tierRecordedFloor = 1.0
)

const playersQuery = `
SELECT p.id, p.name, p.position, p.college, p.draft_year,
       p.teams, p.first_season, p.last_season,
       COALESCE(s.max_ppr, 0)
FROM players p
LEFT JOIN (
    SELECT player_id, MAX(fantasy_points_ppr) AS max_ppr
    FROM player_seasonal_stats
    GROUP BY player_id
) s ON s.player_id = p.id
`

const connectionsQuery = `
SELECT player1_id, player2_id, connection_type, metadata
FROM player_connections
`

// LoadSnapshot streams the players and player_connections tables
// through a single pgx query each — Rows.Next streaming instead of
// materializing driver structs — and rebuilds the in-memory cache
// atomically under the store's write lock. The store is not marked
// ready until both queries complete without error.
func (s *Store) LoadSnapshot(ctx context.Context, pool *pgxpool.Pool) error {
	players := make(map[string]models.Player)
	tiers := map[string][]string{
		"stars":    nil,
		"starters": nil,
		"recorded": nil,
	}

	rows, err := pool.Query(ctx, playersQuery)
	if err != nil {
		return fmt.Errorf("query players: %w", err)
	}
	for rows.Next() {
		var p models.Player
		var college sql.NullString
		var draftYear, firstSeason, lastSeason sql.NullInt32
		var ppr float64
		if err := rows.Scan(&p.ID, &p.Name, &p.Position, &college, &draftYear,
			&p.Teams, &firstSeason, &lastSeason, &ppr); err != nil {
			rows.Close()
			return fmt.Errorf("scan player row: %w", err)
		}
		p.College = sqlutil.FromSqlString(college, "")
		if v := sqlutil.FromSqlInt32(draftYear); v != nil {
			p.DraftYear = *v
		}
		if v := sqlutil.FromSqlInt32(firstSeason); v != nil {
			p.FirstSeason = *v
		}
		if v := sqlutil.FromSqlInt32(lastSeason); v != nil {
			p.LastSeason = *v
		}
		p.FantasyPointsPPR = ppr
		players[p.ID] = p

		// Tiers are nested supersets, not disjoint buckets: a star is
		// also a starter and also recorded, so widening from stars to
		// starters to recorded actually broadens the pool instead of
		// swapping to an unrelated one.
		if ppr >= tierStarsFloor {
			tiers["stars"] = append(tiers["stars"], p.ID)
		}
		if ppr >= tierStartersFloor {
			tiers["starters"] = append(tiers["starters"], p.ID)
		}
		if ppr >= tierRecordedFloor {
			tiers["recorded"] = append(tiers["recorded"], p.ID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate players: %w", err)
	}
	rows.Close()

	adjacency := make(map[string][]models.Neighbor)
	crows, err := pool.Query(ctx, connectionsQuery)
	if err != nil {
		return fmt.Errorf("query connections: %w", err)
	}
	edgeCount := 0
	for crows.Next() {
		var c models.Connection
		if err := crows.Scan(&c.Player1ID, &c.Player2ID, &c.ConnectionType, &c.Metadata); err != nil {
			crows.Close()
			return fmt.Errorf("scan connection row: %w", err)
		}
		adjacency[c.Player1ID] = append(adjacency[c.Player1ID], models.Neighbor{PlayerID: c.Player2ID, Type: c.ConnectionType})
		adjacency[c.Player2ID] = append(adjacency[c.Player2ID], models.Neighbor{PlayerID: c.Player1ID, Type: c.ConnectionType})
		edgeCount++
	}
	if err := crows.Err(); err != nil {
		crows.Close()
		return fmt.Errorf("iterate connections: %w", err)
	}
	crows.Close()

	s.mu.Lock()
	s.players = players
	s.adjacency = adjacency
	s.tiers = tiers
	s.ready = true
	s.mu.Unlock()

	log.Info().
		Int("players", len(players)).
		Int("edges", edgeCount).
		Int("stars", len(tiers["stars"])).
		Int("starters", len(tiers["starters"])).
		Int("recorded", len(tiers["recorded"])).
		Msg("graph snapshot loaded")

	return nil
}
