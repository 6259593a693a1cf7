// Package httpapi exposes the live sewage data over a JSON HTTP API,
// alongside the operational health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/sewagewatch/cso-live-service/internal/domain"
	"github.com/sewagewatch/cso-live-service/internal/refdata"
	"github.com/sewagewatch/cso-live-service/internal/stream"
)

// EventFeed reads the discharge event log and its daily aggregates.
type EventFeed interface {
	Summary(ctx context.Context) (domain.OverflowSummary, error)
	OverflowingAt(ctx context.Context, instant time.Time) ([]stream.LivePoint, error)
	DailyStatusCodes(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]stream.DailyStatusCode, error)
	InfrastructureSummary(ctx context.Context, company domain.CompanyName) ([]stream.DatedOverflow, error)
	WorstPointsInPeriod(ctx context.Context, start, end time.Time) ([]stream.PointPeriodSummary, error)
	HaveLiveDataForConstituencies(ctx context.Context) (map[domain.ConstituencyName]bool, error)
	HaveLiveDataForCompanies(ctx context.Context) (map[domain.CompanyName]bool, error)
}

// RainfallFeed reads the daily constituency rainfall aggregates.
type RainfallFeed interface {
	ForConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.RainfallDay, error)
}

// AnnualFeed merges sewage and rainfall into the annual calendar shape.
type AnnualFeed interface {
	ByConstituency(ctx context.Context, constituency domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error)
	ByCso(ctx context.Context, id domain.PointID, constituency domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error)
}

// API holds the /api/v1 handlers and their dependencies.
type API struct {
	Events         EventFeed
	Rainfall       RainfallFeed
	Annual         AnnualFeed
	Constituencies *refdata.Constituencies
	Beaches        []refdata.BeachRanking
	Rivers         []refdata.RiverRanking
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

// overflowingStep is the alignment of live-overflow instants; requests for
// unaligned instants are redirected to the step boundary so the cache sees
// one URI per window.
const overflowingStep = 5 * time.Minute

// defaultFeedWindow is how far back the events and rainfall feeds reach
// when the caller gives no since parameter.
const defaultFeedWindow = 90 * 24 * time.Hour

// recentDataWindow is how long an overflow instant may still gain new
// events; responses inside it carry the short Cache-Control max-age.
const recentDataWindow = 3 * time.Hour

func (a *API) handleLiveSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Events.Summary(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleOverflowingAt(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.ParseInt(chi.URLParam(r, "epochms"), 10, 64)
	if err != nil || ms < 0 {
		writeError(w, http.StatusBadRequest, "epochms must be a millisecond unix timestamp")
		return
	}

	instant := time.UnixMilli(ms).UTC()
	if truncated := instant.Truncate(overflowingStep); !truncated.Equal(instant) {
		target := fmt.Sprintf("/api/v1/live/overflowing/%d", truncated.UnixMilli())
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
		return
	}

	points, err := a.Events.OverflowingAt(r.Context(), instant)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	maxAge := time.Hour
	if a.Clock.Now().Sub(instant) > recentDataWindow {
		maxAge = 24 * time.Hour
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	writeJSON(w, http.StatusOK, points)
}

func (a *API) handleWorstPoints(w http.ResponseWriter, r *http.Request) {
	now := a.Clock.Now()
	start, end, err := dateRange(r, domain.DateOnly(now.Add(-defaultFeedWindow)), domain.DateOnly(now).AddDate(0, 0, 1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := a.Events.WorstPointsInPeriod(r.Context(), start, end)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// constituencyRef is one entry of the constituency listing, flagged with
// whether any live data exists for it.
type constituencyRef struct {
	Name domain.ConstituencyName `json:"name"`
	Slug string                  `json:"slug"`
	Live bool                    `json:"live"`
}

func (a *API) handleListConstituencies(w http.ResponseWriter, r *http.Request) {
	live, err := a.Events.HaveLiveDataForConstituencies(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	names := a.Constituencies.Names()
	refs := make([]constituencyRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, constituencyRef{Name: n, Slug: refdata.Slugify(string(n)), Live: live[n]})
	}
	writeJSON(w, http.StatusOK, refs)
}

type companyRef struct {
	Name domain.CompanyName `json:"name"`
	Slug string             `json:"slug"`
	Live bool               `json:"live"`
}

func (a *API) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	live, err := a.Events.HaveLiveDataForCompanies(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	refs := make([]companyRef, 0, len(refdata.WaterCompanies))
	for _, c := range refdata.WaterCompanies {
		refs = append(refs, companyRef{Name: c, Slug: refdata.Slugify(string(c)), Live: live[c]})
	}
	writeJSON(w, http.StatusOK, refs)
}

func (a *API) handleConstituencyEvents(w http.ResponseWriter, r *http.Request) {
	constituency, ok := a.constituency(w, r)
	if !ok {
		return
	}
	start, end, err := sinceRange(r, a.Clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	codes, err := a.Events.DailyStatusCodes(r.Context(), constituency, start, end)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (a *API) handleConstituencyRainfall(w http.ResponseWriter, r *http.Request) {
	constituency, ok := a.constituency(w, r)
	if !ok {
		return
	}
	start, end, err := sinceRange(r, a.Clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days, err := a.Rainfall.ForConstituency(r.Context(), constituency, start, end)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (a *API) handleConstituencyAnnual(w http.ResponseWriter, r *http.Request) {
	constituency, ok := a.constituency(w, r)
	if !ok {
		return
	}
	start, end, err := a.annualRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	years, err := a.Annual.ByConstituency(r.Context(), constituency, start, end)
	if err != nil {
		a.annualError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, years)
}

func (a *API) handleCsoAnnual(w http.ResponseWriter, r *http.Request) {
	id := domain.PointID(chi.URLParam(r, "id"))
	slug := r.URL.Query().Get("constituency")
	constituency, ok := a.Constituencies.BySlug(slug)
	if !ok {
		writeError(w, http.StatusBadRequest, "constituency query parameter must name a known constituency")
		return
	}
	start, end, err := a.annualRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	years, err := a.Annual.ByCso(r.Context(), id, constituency, start, end)
	if err != nil {
		a.annualError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, years)
}

func (a *API) handleCompanyInfrastructure(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	company, ok := refdata.CompanyBySlug(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown company: "+slug)
		return
	}

	summary, err := a.Events.InfrastructureSummary(r.Context(), company)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleBeachRankings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Beaches)
}

func (a *API) handleRiverRankings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Rivers)
}

// constituency resolves the slug path parameter, writing a 404 when the
// slug is unknown.
func (a *API) constituency(w http.ResponseWriter, r *http.Request) (domain.ConstituencyName, bool) {
	slug := chi.URLParam(r, "slug")
	name, ok := a.Constituencies.BySlug(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown constituency: "+slug)
	}
	return name, ok
}

// annualRange parses start/end date parameters, defaulting to the current
// calendar year up to tomorrow.
func (a *API) annualRange(r *http.Request) (time.Time, time.Time, error) {
	now := a.Clock.Now().UTC()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return dateRange(r, yearStart, domain.DateOnly(now).AddDate(0, 0, 1))
}

func (a *API) annualError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidRange) || errors.Is(err, domain.ErrDuplicateDate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.serverError(w, r, err)
}

func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// sinceRange parses the optional since date parameter into a [start, end)
// window ending tomorrow.
func sinceRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	start := domain.DateOnly(now.Add(-defaultFeedWindow))
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	return start, domain.DateOnly(now).AddDate(0, 0, 1), nil
}

func dateRange(r *http.Request, defaultStart, defaultEnd time.Time) (time.Time, time.Time, error) {
	start, end := defaultStart, defaultEnd
	var err error
	if s := r.URL.Query().Get("start"); s != "" {
		if start, err = parseDate(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if end, err = parseDate(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates must be YYYY-MM-DD: %q", s)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
