// Package rainfall provides read-only access to the daily rainfall
// observations published per constituency.
package rainfall

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sewagewatch/cso-live-service/internal/database"
	"github.com/sewagewatch/cso-live-service/internal/domain"
)

// Store reads daily rainfall rows.
type Store struct {
	db *database.DB
}

// NewStore creates a Store over the shared database handle.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const forConstituencySQL = `
select date, pct_75, count
from rainfall_daily_constituency
where constituency = $1 and date >= $2 and date < $3
order by date
`

// ForConstituency returns one row per day with data in [start, end): the
// 75th-percentile gauge reading in millimetres, the sample count, and the
// derived shading band.
func (s *Store) ForConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.RainfallDay, error) {
	var days []domain.RainfallDay
	err := s.db.Execute(ctx, "constituency-rainfall", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, forConstituencySQL, string(constituency), start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d domain.RainfallDay
			if err := rows.Scan(&d.Date, &d.Pct75, &d.Samples); err != nil {
				return err
			}
			d.Band = domain.RainBand(d.Pct75)
			days = append(days, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}
