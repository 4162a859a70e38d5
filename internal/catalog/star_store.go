package catalog

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/banshee-data/skyfit/internal/astrom"
	"github.com/banshee-data/skyfit/internal/units"
)

// StarStore provides cone-search access to the reference star catalog.
// It satisfies the catalog interface of the solve loop.
type StarStore struct {
	db *sql.DB
}

// NewStarStore creates a StarStore backed by the given database.
func NewStarStore(db *sql.DB) *StarStore {
	return &StarStore{db: db}
}

// InsertStars loads reference stars into the catalog in a single
// transaction. Existing stars with the same id are replaced.
func (s *StarStore) InsertStars(stars []astrom.CatalogStar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin catalog load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO reference_stars (star_id, ra_deg, dec_deg, mag)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare catalog insert: %w", err)
	}
	defer stmt.Close()

	for _, star := range stars {
		if _, err := stmt.Exec(star.ID, units.WrapRA(star.RA), star.Dec, star.Mag); err != nil {
			return fmt.Errorf("insert star %d: %w", star.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog load: %w", err)
	}
	return nil
}

// Count returns the number of stars in the catalog.
func (s *StarStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reference_stars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count catalog stars: %w", err)
	}
	return n, nil
}

// FetchNearby returns catalog stars within radiusArcsec of the given
// sky position, brightest first. A declination and RA box narrows the
// scan; candidates are then cut on exact great-circle separation.
func (s *StarStore) FetchNearby(raDeg, decDeg, radiusArcsec float64) ([]astrom.CatalogStar, error) {
	radiusDeg := radiusArcsec / units.ArcsecPerDeg
	decLo := decDeg - radiusDeg
	decHi := decDeg + radiusDeg

	// The RA extent of a cone widens with declination. Near the poles
	// the cos(dec) divisor collapses, so scan the full RA range there.
	cosDec := math.Cos(units.DegToRad(decDeg))
	raHalf := 180.0
	if cosDec > 1e-9 {
		raHalf = math.Min(180.0, radiusDeg/cosDec)
	}

	var query string
	var args []interface{}
	if raHalf >= 180.0 {
		query = `SELECT star_id, ra_deg, dec_deg, mag FROM reference_stars
			WHERE dec_deg BETWEEN ? AND ? ORDER BY mag`
		args = []interface{}{decLo, decHi}
	} else {
		raLo := units.WrapRA(raDeg - raHalf)
		raHi := units.WrapRA(raDeg + raHalf)
		if raLo <= raHi {
			query = `SELECT star_id, ra_deg, dec_deg, mag FROM reference_stars
				WHERE dec_deg BETWEEN ? AND ? AND ra_deg BETWEEN ? AND ? ORDER BY mag`
			args = []interface{}{decLo, decHi, raLo, raHi}
		} else {
			// RA box straddles the 0h wraparound.
			query = `SELECT star_id, ra_deg, dec_deg, mag FROM reference_stars
				WHERE dec_deg BETWEEN ? AND ? AND (ra_deg >= ? OR ra_deg <= ?) ORDER BY mag`
			args = []interface{}{decLo, decHi, raLo, raHi}
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog cone: %w", err)
	}
	defer rows.Close()

	var stars []astrom.CatalogStar
	for rows.Next() {
		var star astrom.CatalogStar
		if err := rows.Scan(&star.ID, &star.RA, &star.Dec, &star.Mag); err != nil {
			return nil, fmt.Errorf("scan catalog star: %w", err)
		}
		if astrom.SeparationArcsec(raDeg, decDeg, star.RA, star.Dec) <= radiusArcsec {
			stars = append(stars, star)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog cone: %w", err)
	}

	return stars, nil
}
