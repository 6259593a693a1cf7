package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRange reports an aggregation range whose start is after its end.
	ErrInvalidRange = errors.New("start date is after end date")

	// ErrDuplicateDate reports an input series carrying two rows for one day.
	ErrDuplicateDate = errors.New("duplicate date in daily series")
)

// DailySewageRainfall is the per-day merge of the sewage and rainfall
// series. Days missing from either source are zero-filled.
type DailySewageRainfall struct {
	Date      time.Time     `json:"date"`
	Start     time.Duration `json:"start"`
	Offline   time.Duration `json:"offline"`
	Potential time.Duration `json:"potential"`
	Count     int           `json:"count"`
	Rainfall  float64       `json:"rainfall"`
}

// MonthlySewageRainfall groups one month's days, in date order.
type MonthlySewageRainfall struct {
	Month time.Month            `json:"month"`
	Days  []DailySewageRainfall `json:"days"`
}

// AnnualSewageRainfall groups one calendar year's months, ascending.
type AnnualSewageRainfall struct {
	Year   int                     `json:"year"`
	Months []MonthlySewageRainfall `json:"months"`
}

// TotalDuration sums the overflow (start) duration across every day of the year.
func (a AnnualSewageRainfall) TotalDuration() time.Duration {
	var total time.Duration
	for _, m := range a.Months {
		for _, d := range m.Days {
			total += d.Start
		}
	}
	return total
}

// AggregateCalendar walks every calendar day in the half-open range
// [start, end) and left-joins the sewage and rainfall series by date,
// zero-filling days absent from either side, then groups the result by
// year and month. Every date in the range appears exactly once. A range
// spanning a year boundary yields one element per calendar year,
// ascending.
//
// Returns ErrInvalidRange when start is after end, and ErrDuplicateDate
// when either input carries two rows for the same day.
func AggregateCalendar(sewage []DailySewageRecord, rainfall []RainfallDay, start, end time.Time) ([]AnnualSewageRainfall, error) {
	from, to := DateOnly(start), DateOnly(end)
	if from.After(to) {
		return nil, fmt.Errorf("aggregate %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), ErrInvalidRange)
	}

	sewageByDate := make(map[time.Time]DailySewageRecord, len(sewage))
	for _, s := range sewage {
		d := DateOnly(s.Date)
		if _, dup := sewageByDate[d]; dup {
			return nil, fmt.Errorf("sewage series %s: %w", d.Format(time.DateOnly), ErrDuplicateDate)
		}
		sewageByDate[d] = s
	}
	rainByDate := make(map[time.Time]RainfallDay, len(rainfall))
	for _, r := range rainfall {
		d := DateOnly(r.Date)
		if _, dup := rainByDate[d]; dup {
			return nil, fmt.Errorf("rainfall series %s: %w", d.Format(time.DateOnly), ErrDuplicateDate)
		}
		rainByDate[d] = r
	}

	var years []AnnualSewageRainfall
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		merged := DailySewageRainfall{Date: day}
		if s, ok := sewageByDate[day]; ok {
			merged.Start = s.Start
			merged.Offline = s.Offline
			merged.Potential = s.Potential
			merged.Count = s.Count
		}
		if r, ok := rainByDate[day]; ok {
			merged.Rainfall = r.Pct75
		}

		year, month := day.Year(), day.Month()
		if len(years) == 0 || years[len(years)-1].Year != year {
			years = append(years, AnnualSewageRainfall{Year: year})
		}
		y := &years[len(years)-1]
		if len(y.Months) == 0 || y.Months[len(y.Months)-1].Month != month {
			y.Months = append(y.Months, MonthlySewageRainfall{Month: month})
		}
		m := &y.Months[len(y.Months)-1]
		m.Days = append(m.Days, merged)
	}

	return years, nil
}
