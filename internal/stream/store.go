// Package stream provides read-only access to the discharge event log and
// the pre-aggregated daily sewage summaries.
package stream

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sewagewatch/cso-live-service/internal/database"
	"github.com/sewagewatch/cso-live-service/internal/domain"
	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// Store reads discharge events and daily summaries. All methods run inside
// a single named transaction via the database wrapper.
type Store struct {
	db     *database.DB
	events observability.Sink
}

// NewStore creates a Store over the shared database handle.
func NewStore(db *database.DB, events observability.Sink) *Store {
	return &Store{db: db, events: events}
}

// LivePoint is a currently-discharging outfall with everything the map
// front end needs to render it.
type LivePoint struct {
	ID             domain.PointID          `json:"id"`
	Company        domain.CompanyName      `json:"company"`
	Constituency   domain.ConstituencyName `json:"constituency"`
	Site           string                  `json:"site_name"`
	ReceivingWater string                  `json:"receiving_water"`
	Started        time.Time               `json:"started"`
	Location       domain.Coordinates      `json:"loc"`
}

const eventLogSQL = `
select e.event_id, e.point_id, e.event, e.event_time, e.update_time,
       m.company, m.site_name, m.receiving_water, m.constituency, m.lat, m.lon
from discharge_event e
join monitoring_point m on m.point_id = e.point_id
where e.event_time <= $1
`

const companyEventLogSQL = eventLogSQL + `and m.company = $2
`

// eventLog fetches raw event rows, together with the reference data of
// each point seen.
func (s *Store) eventLog(ctx context.Context, name, query string, args ...any) ([]domain.DischargeEvent, map[domain.PointID]domain.MonitoringPoint, error) {
	var events []domain.DischargeEvent
	points := make(map[domain.PointID]domain.MonitoringPoint)

	err := s.db.Execute(ctx, name, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e domain.DischargeEvent
				p domain.MonitoringPoint
			)
			if err := rows.Scan(
				&e.EventID, &e.PointID, &e.Type, &e.EventTime, &e.UpdateTime,
				&p.Company, &p.Site, &p.ReceivingWater, &p.Constituency, &p.Location.Lat, &p.Location.Lon,
			); err != nil {
				return err
			}
			p.ID = e.PointID
			events = append(events, e)
			points[p.ID] = p
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return events, points, nil
}

// Summary answers "how many outfalls are discharging right now" at system
// and per-company granularity, resolved from the full event log.
func (s *Store) Summary(ctx context.Context) (domain.OverflowSummary, error) {
	events, points, err := s.eventLog(ctx, "stream-event-log", eventLogSQL, farFuture())
	if err != nil {
		return domain.OverflowSummary{}, err
	}
	latest := domain.LatestByPoint(events)
	summary := domain.Summarize(latest, func(id domain.PointID) domain.CompanyName {
		return points[id].Company
	})
	s.events.Emit(observability.DischargingEvent{Points: summary.Count.Start})
	return summary, nil
}

// OverflowingAt lists the points whose most recent event at or before the
// instant is a Start, ordered by company then point id.
func (s *Store) OverflowingAt(ctx context.Context, instant time.Time) ([]LivePoint, error) {
	events, points, err := s.eventLog(ctx, "stream-event-log", eventLogSQL, instant)
	if err != nil {
		return nil, err
	}

	live := make([]LivePoint, 0)
	for id, e := range domain.LatestByPoint(events) {
		if domain.StatusOf(e.Type) != domain.StatusDischarging {
			continue
		}
		p := points[id]
		live = append(live, LivePoint{
			ID:             id,
			Company:        p.Company,
			Constituency:   p.Constituency,
			Site:           p.Site,
			ReceivingWater: p.ReceivingWater,
			Started:        e.EventTime,
			Location:       p.Location,
		})
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].Company != live[j].Company {
			return live[i].Company < live[j].Company
		}
		return live[i].ID < live[j].ID
	})
	return live, nil
}

// LatestEvents resolves each monitored point's current event across the
// whole fleet, the raw resolver output for per-point status views.
func (s *Store) LatestEvents(ctx context.Context) (map[domain.PointID]domain.DischargeEvent, error) {
	events, _, err := s.eventLog(ctx, "stream-event-log", eventLogSQL, farFuture())
	if err != nil {
		return nil, err
	}
	return domain.LatestByPoint(events), nil
}

// LatestEventsForCompany restricts the resolution to one company's points.
func (s *Store) LatestEventsForCompany(ctx context.Context, company domain.CompanyName) (map[domain.PointID]domain.DischargeEvent, error) {
	events, _, err := s.eventLog(ctx, "stream-company-event-log", companyEventLogSQL, farFuture(), string(company))
	if err != nil {
		return nil, err
	}
	return domain.LatestByPoint(events), nil
}

const dailyByConstituencySQL = `
select s.date,
       extract(epoch from sum(s.start))::bigint as start_seconds,
       extract(epoch from sum(s.offline))::bigint as offline_seconds,
       extract(epoch from sum(s.potential_start))::bigint as potential_seconds,
       count(*) filter (where s.start <> interval '0') as event_count
from daily_sewage_summary s
join monitoring_point m on m.point_id = s.point_id
where m.constituency = $1 and s.date >= $2 and s.date < $3
group by s.date
order by s.date
`

// DailyByConstituency returns the constituency-wide duration-in-state
// summary for each day that has data in [start, end).
func (s *Store) DailyByConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.DailySewageRecord, error) {
	return s.dailyQuery(ctx, "stream-daily-by-constituency", dailyByConstituencySQL, string(constituency), start, end)
}

const dailyByPointSQL = `
select s.date,
       extract(epoch from sum(s.start))::bigint as start_seconds,
       extract(epoch from sum(s.offline))::bigint as offline_seconds,
       extract(epoch from sum(s.potential_start))::bigint as potential_seconds,
       count(*) filter (where s.start <> interval '0') as event_count
from daily_sewage_summary s
where s.point_id = $1 and s.date >= $2 and s.date < $3
group by s.date
order by s.date
`

// DailyByPoint returns the daily summary for a single monitoring point.
func (s *Store) DailyByPoint(ctx context.Context, id domain.PointID, start, end time.Time) ([]domain.DailySewageRecord, error) {
	return s.dailyQuery(ctx, "stream-daily-by-point", dailyByPointSQL, string(id), start, end)
}

func (s *Store) dailyQuery(ctx context.Context, name, sql, key string, start, end time.Time) ([]domain.DailySewageRecord, error) {
	var records []domain.DailySewageRecord
	err := s.db.Execute(ctx, name, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, key, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r                       domain.DailySewageRecord
				startS, offS, potential int64
			)
			if err := rows.Scan(&r.Date, &startS, &offS, &potential, &r.Count); err != nil {
				return err
			}
			r.Start = time.Duration(startS) * time.Second
			r.Offline = time.Duration(offS) * time.Second
			r.Potential = time.Duration(potential) * time.Second
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func farFuture() time.Time {
	return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
}
