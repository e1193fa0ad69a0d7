package graph

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fourthdown/gridlink/go/internal/models"
	"github.com/fourthdown/gridlink/go/internal/sqlutil"
)

// Repository is the rare-path transactional reader: a single lookup
// against Postgres via database/sql + lib/pq, used only when a player
// is absent from the snapshot cache. It is intentionally thin — the
// Graph Store's contract is read-mostly from the cache, not from here.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an already-opened *sql.DB (driver "postgres",
// registered by lib/pq's side-effect import in cmd/server).
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const getPlayerQuery = `
SELECT p.id, p.name, p.position, p.college, p.draft_year,
       p.teams, p.first_season, p.last_season,
       COALESCE((SELECT MAX(fantasy_points_ppr) FROM player_seasonal_stats WHERE player_id = p.id), 0)
FROM players p
WHERE p.id = $1
`

// GetPlayer satisfies graph.TransactionalReader.
func (r *Repository) GetPlayer(id string) (models.Player, bool, error) {
	var p models.Player
	var college sql.NullString
	var draftYear, firstSeason, lastSeason sql.NullInt32

	err := r.db.QueryRow(getPlayerQuery, id).Scan(
		&p.ID, &p.Name, &p.Position, &college, &draftYear,
		pq.Array(&p.Teams), &firstSeason, &lastSeason, &p.FantasyPointsPPR,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Player{}, false, nil
	}
	if err != nil {
		return models.Player{}, false, fmt.Errorf("query player %s: %w", id, err)
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

	return p, true, nil
}
