// Package live joins the daily sewage summaries with the rainfall series
// into calendar-aligned annual views.
package live

import (
	"context"
	"time"

	"github.com/sewagewatch/cso-live-service/internal/domain"
)

// SewageDaily supplies pre-aggregated daily duration-in-state records.
type SewageDaily interface {
	DailyByConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.DailySewageRecord, error)
	DailyByPoint(ctx context.Context, id domain.PointID, start, end time.Time) ([]domain.DailySewageRecord, error)
}

// RainfallDaily supplies daily rainfall observations per constituency.
type RainfallDaily interface {
	ForConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.RainfallDay, error)
}

// Annual computes sewage-with-rainfall calendars. The two entry points
// differ only in which key selects the sewage series; the merge itself is
// domain.AggregateCalendar in both cases.
type Annual struct {
	sewage   SewageDaily
	rainfall RainfallDaily
}

// NewAnnual wires the two stores together.
func NewAnnual(sewage SewageDaily, rainfall RainfallDaily) *Annual {
	return &Annual{sewage: sewage, rainfall: rainfall}
}

// ByConstituency merges the constituency-wide sewage series with that
// constituency's rainfall over [start, end).
func (a *Annual) ByConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error) {
	sewage, err := a.sewage.DailyByConstituency(ctx, constituency, start, end)
	if err != nil {
		return nil, err
	}
	rain, err := a.rainfall.ForConstituency(ctx, constituency, start, end)
	if err != nil {
		return nil, err
	}
	return domain.AggregateCalendar(sewage, rain, start, end)
}

// ByCso merges a single point's sewage series with the rainfall of the
// constituency it sits in.
func (a *Annual) ByCso(ctx context.Context, id domain.PointID, constituency domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error) {
	sewage, err := a.sewage.DailyByPoint(ctx, id, start, end)
	if err != nil {
		return nil, err
	}
	rain, err := a.rainfall.ForConstituency(ctx, constituency, start, end)
	if err != nil {
		return nil, err
	}
	return domain.AggregateCalendar(sewage, rain, start, end)
}
