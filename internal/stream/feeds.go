package stream

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sewagewatch/cso-live-service/internal/domain"
	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// DailyStatusCode is one point-day of the constituency event feed, in the
// compact shape the charting front end consumes.
type DailyStatusCode struct {
	Point domain.PointID `json:"p"`
	Chart string         `json:"cid"`
	Date  time.Time      `json:"d"`
	Code  string         `json:"a"`
}

const dailyStatusCodesSQL = `
select s.point_id,
       s.date,
       extract(epoch from s.stop)::bigint as stop_seconds,
       extract(epoch from s.offline)::bigint as offline_seconds,
       extract(epoch from s.start)::bigint as start_seconds,
       extract(epoch from s.unknown)::bigint as unknown_seconds,
       extract(epoch from s.potential_start)::bigint as potential_seconds
from daily_sewage_summary s
join monitoring_point m on m.point_id = s.point_id
where m.constituency = $1 and s.date >= $2 and s.date < $3
order by s.point_id, s.date
`

// DailyStatusCodes returns one marker code per point per day for a
// constituency, and emits a row-count audit event for the feed.
func (s *Store) DailyStatusCodes(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]DailyStatusCode, error) {
	var codes []DailyStatusCode
	err := s.db.Execute(ctx, "stream-daily-status-codes", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, dailyStatusCodesSQL, string(constituency), start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id                                     domain.PointID
				date                                   time.Time
				stop, offline, begin, unknown, maybeOn int64
			)
			if err := rows.Scan(&id, &date, &stop, &offline, &begin, &unknown, &maybeOn); err != nil {
				return err
			}
			codes = append(codes, DailyStatusCode{
				Point: id,
				Chart: string(id),
				Date:  date,
				Code: domain.CodeFrom(domain.Bucket{
					Online:                 time.Duration(stop) * time.Second,
					Offline:                time.Duration(offline) * time.Second,
					Overflowing:            time.Duration(begin) * time.Second,
					Unknown:                time.Duration(unknown) * time.Second,
					PotentiallyOverflowing: time.Duration(maybeOn) * time.Second,
				}),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(observability.RowCountEvent{
		Name:         "stream-daily-status-codes",
		Constituency: string(constituency),
		Start:        start,
		End:          end,
		Rows:         len(codes),
	})
	return codes, nil
}

// DatedOverflow is one day of a company's fleet summary: how many points
// reported, how many overflowed or were offline for more than 30 minutes,
// and the total overflow seconds.
type DatedOverflow struct {
	Date               time.Time `json:"date"`
	MonitoredPoints    int       `json:"edm_count"`
	Overflowing        int       `json:"overflowing"`
	OverflowingSeconds int64     `json:"overflowing_seconds"`
	Offline            int       `json:"offline"`
}

const infrastructureSummarySQL = `
select s.date,
       count(*) as edm_count,
       extract(epoch from sum(s.start))::bigint as overflowing_seconds,
       count(case when s.start > interval '30m' then 1 end) as overflowing,
       count(case when s.offline > interval '30m' then 1 end) as offline
from daily_sewage_summary s
join monitoring_point m on m.point_id = s.point_id
where m.company = $1
group by s.date
order by s.date
`

// InfrastructureSummary returns a company's per-day fleet counts across
// the whole recorded period.
func (s *Store) InfrastructureSummary(ctx context.Context, company domain.CompanyName) ([]DatedOverflow, error) {
	var summary []DatedOverflow
	err := s.db.Execute(ctx, "stream-infrastructure-summary", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, infrastructureSummarySQL, string(company))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d DatedOverflow
			if err := rows.Scan(&d.Date, &d.MonitoredPoints, &d.OverflowingSeconds, &d.Overflowing, &d.Offline); err != nil {
				return err
			}
			summary = append(summary, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// PointPeriodSummary ranks one point's total overflow within a period.
type PointPeriodSummary struct {
	ID           domain.PointID          `json:"id"`
	Site         string                  `json:"site_name"`
	Constituency domain.ConstituencyName `json:"constituency"`
	Overflowing  time.Duration           `json:"overflowing"`
}

const worstPointsSQL = `
select s.point_id, m.site_name, m.constituency,
       extract(epoch from sum(s.start))::bigint as overflowing_seconds
from daily_sewage_summary s
join monitoring_point m on m.point_id = s.point_id
where s.date >= $1 and s.date < $2
group by s.point_id, m.site_name, m.constituency
order by overflowing_seconds desc
limit 100
`

// WorstPointsInPeriod returns the hundred points with the most overflow
// in [start, end), worst first.
func (s *Store) WorstPointsInPeriod(ctx context.Context, start, end time.Time) ([]PointPeriodSummary, error) {
	var worst []PointPeriodSummary
	err := s.db.Execute(ctx, "stream-worst-points", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, worstPointsSQL, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p    PointPeriodSummary
				secs int64
			)
			if err := rows.Scan(&p.ID, &p.Site, &p.Constituency, &secs); err != nil {
				return err
			}
			p.Overflowing = time.Duration(secs) * time.Second
			worst = append(worst, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return worst, nil
}

// HaveLiveDataForConstituencies reports which constituencies have at least
// one monitored point.
func (s *Store) HaveLiveDataForConstituencies(ctx context.Context) (map[domain.ConstituencyName]bool, error) {
	have := make(map[domain.ConstituencyName]bool)
	err := s.db.Execute(ctx, "stream-have-live-data", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `select distinct constituency from monitoring_point`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c domain.ConstituencyName
			if err := rows.Scan(&c); err != nil {
				return err
			}
			have[c] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return have, nil
}

// HaveLiveDataForCompanies reports which companies have at least one
// monitored point.
func (s *Store) HaveLiveDataForCompanies(ctx context.Context) (map[domain.CompanyName]bool, error) {
	have := make(map[domain.CompanyName]bool)
	err := s.db.Execute(ctx, "stream-have-live-data", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `select distinct company from monitoring_point`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c domain.CompanyName
			if err := rows.Scan(&c); err != nil {
				return err
			}
			have[c] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return have, nil
}
