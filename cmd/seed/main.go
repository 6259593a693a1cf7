// Command seed populates a local Postgres with a deterministic synthetic
// dataset: monitoring points across a handful of constituencies, an event
// log with overlapping discharge windows, the matching daily summaries,
// and a rainfall series. Re-running with the same flags reproduces the
// same rows.
//
// Usage:
//
//	go run ./cmd/seed -points 40 -days 120
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sewagewatch/cso-live-service/internal/domain"
	"github.com/sewagewatch/cso-live-service/internal/refdata"
)

var constituencies = []domain.ConstituencyName{
	"Hove", "Bath", "Truro and Falmouth", "Hexham", "Cities of London and Westminster",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	points := flag.Int("points", 40, "monitoring points to create")
	days := flag.Int("days", 120, "days of history ending today")
	seed := flag.Int64("seed", 42, "PRNG seed")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.Parse()

	if *databaseURL == "" {
		return fmt.Errorf("database connection string required via -database-url or DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	rng := rand.New(rand.NewSource(*seed)) //nolint:gosec // synthetic fixture data
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -*days)

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := createSchema(ctx, tx); err != nil {
			return err
		}
		pts, err := seedPoints(ctx, tx, rng, *points)
		if err != nil {
			return err
		}
		if err := seedEvents(ctx, tx, rng, pts, start, end); err != nil {
			return err
		}
		if err := seedDailySummaries(ctx, tx, rng, pts, start, end); err != nil {
			return err
		}
		if err := seedRainfall(ctx, tx, rng, start, end); err != nil {
			return err
		}
		log.Printf("seeded %d points, %d days ending %s", len(pts), *days, end.Format(time.DateOnly))
		return nil
	})
}

var schema = []string{
	`create table if not exists monitoring_point (
		point_id text primary key,
		company text not null,
		site_name text not null,
		receiving_water text not null,
		constituency text not null,
		lat double precision not null,
		lon double precision not null
	)`,
	`create table if not exists discharge_event (
		event_id bigint generated always as identity primary key,
		point_id text not null references monitoring_point,
		event text not null,
		event_time timestamptz not null,
		update_time timestamptz not null
	)`,
	`create table if not exists daily_sewage_summary (
		point_id text not null references monitoring_point,
		date date not null,
		stop interval not null default '0',
		offline interval not null default '0',
		start interval not null default '0',
		unknown interval not null default '0',
		potential_start interval not null default '0',
		primary key (point_id, date)
	)`,
	`create table if not exists rainfall_daily_constituency (
		constituency text not null,
		date date not null,
		pct_75 double precision not null,
		count int not null,
		primary key (constituency, date)
	)`,
	`truncate rainfall_daily_constituency`,
	`truncate daily_sewage_summary, discharge_event, monitoring_point`,
}

func createSchema(ctx context.Context, tx pgx.Tx) error {
	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func seedPoints(ctx context.Context, tx pgx.Tx, rng *rand.Rand, n int) ([]domain.MonitoringPoint, error) {
	waters := []string{"River Adur", "River Avon", "Carrick Roads", "River Tyne", "The Thames"}

	pts := make([]domain.MonitoringPoint, 0, n)
	for i := 0; i < n; i++ {
		company := refdata.WaterCompanies[i%len(refdata.WaterCompanies)]
		p := domain.MonitoringPoint{
			ID:             domain.PointID(fmt.Sprintf("CSO-%04d", i+1)),
			Company:        company,
			Site:           fmt.Sprintf("%s STW No.%d", waters[i%len(waters)], i+1),
			ReceivingWater: waters[i%len(waters)],
			Constituency:   constituencies[i%len(constituencies)],
			Location: domain.Coordinates{
				Lat: 50.0 + rng.Float64()*5,
				Lon: -5.0 + rng.Float64()*5,
			},
		}
		_, err := tx.Exec(ctx,
			`insert into monitoring_point (point_id, company, site_name, receiving_water, constituency, lat, lon)
			 values ($1, $2, $3, $4, $5, $6, $7)`,
			string(p.ID), string(p.Company), p.Site, p.ReceivingWater, string(p.Constituency), p.Location.Lat, p.Location.Lon)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", p.ID, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// seedEvents gives every point an alternating Start/Stop history, leaves
// roughly a tenth of the fleet mid-discharge at the end, and sprinkles in
// Unknown events so the resolver's unknown bucket is populated.
func seedEvents(ctx context.Context, tx pgx.Tx, rng *rand.Rand, pts []domain.MonitoringPoint, start, end time.Time) error {
	for i, p := range pts {
		at := start.Add(time.Duration(rng.Intn(48)) * time.Hour)
		discharging := false

		for at.Before(end) {
			kind := domain.EventStop
			if !discharging {
				kind = domain.EventStart
			}
			if rng.Intn(20) == 0 {
				kind = domain.EventUnknown
			}

			if err := insertEvent(ctx, tx, p.ID, kind, at); err != nil {
				return err
			}
			if kind != domain.EventUnknown {
				discharging = !discharging
			}
			at = at.Add(time.Duration(4+rng.Intn(96)) * time.Hour)
		}

		// Every tenth point ends with an open discharge window.
		if i%10 == 0 {
			if err := insertEvent(ctx, tx, p.ID, domain.EventStart, end.Add(-2*time.Hour)); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, id domain.PointID, kind domain.EventType, at time.Time) error {
	_, err := tx.Exec(ctx,
		`insert into discharge_event (point_id, event, event_time, update_time)
		 values ($1, $2, $3, $4)`,
		string(id), string(kind), at, at.Add(15*time.Minute))
	if err != nil {
		return fmt.Errorf("event %s %s: %w", id, kind, err)
	}
	return nil
}

func seedDailySummaries(ctx context.Context, tx pgx.Tx, rng *rand.Rand, pts []domain.MonitoringPoint, start, end time.Time) error {
	for _, p := range pts {
		for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
			var startSec, offlineSec, potentialSec int
			switch rng.Intn(10) {
			case 0, 1:
				startSec = 1800 + rng.Intn(12*3600)
			case 2:
				offlineSec = 3600 + rng.Intn(20*3600)
			case 3:
				potentialSec = 600 + rng.Intn(2*3600)
			}
			stopSec := 86400 - startSec - offlineSec - potentialSec

			_, err := tx.Exec(ctx,
				`insert into daily_sewage_summary (point_id, date, stop, offline, start, unknown, potential_start)
				 values ($1, $2, make_interval(secs => $3), make_interval(secs => $4), make_interval(secs => $5), '0', make_interval(secs => $6))`,
				string(p.ID), day, stopSec, offlineSec, startSec, potentialSec)
			if err != nil {
				return fmt.Errorf("summary %s %s: %w", p.ID, day.Format(time.DateOnly), err)
			}
		}
	}
	return nil
}

func seedRainfall(ctx context.Context, tx pgx.Tx, rng *rand.Rand, start, end time.Time) error {
	for _, c := range constituencies {
		for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
			mm := 0.0
			if rng.Intn(3) > 0 {
				mm = rng.Float64() * 25
			}
			_, err := tx.Exec(ctx,
				`insert into rainfall_daily_constituency (constituency, date, pct_75, count)
				 values ($1, $2, $3, $4)`,
				string(c), day, mm, 3+rng.Intn(5))
			if err != nil {
				return fmt.Errorf("rainfall %s %s: %w", c, day.Format(time.DateOnly), err)
			}
		}
	}
	return nil
}
