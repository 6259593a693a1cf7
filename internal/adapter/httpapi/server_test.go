package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewagewatch/cso-live-service/internal/adapter/httpapi"
	"github.com/sewagewatch/cso-live-service/internal/domain"
	"github.com/sewagewatch/cso-live-service/internal/refdata"
	"github.com/sewagewatch/cso-live-service/internal/stream"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockEventFeed struct {
	summary       domain.OverflowSummary
	overflowing   []stream.LivePoint
	overflowingAt time.Time
	codes         []stream.DailyStatusCode
	codesRange    [2]time.Time
	infra         []stream.DatedOverflow
	infraCompany  domain.CompanyName
	worst         []stream.PointPeriodSummary
	liveConst     map[domain.ConstituencyName]bool
	liveCompanies map[domain.CompanyName]bool
	err           error
}

func (m *mockEventFeed) Summary(_ context.Context) (domain.OverflowSummary, error) {
	return m.summary, m.err
}

func (m *mockEventFeed) OverflowingAt(_ context.Context, instant time.Time) ([]stream.LivePoint, error) {
	m.overflowingAt = instant
	return m.overflowing, m.err
}

func (m *mockEventFeed) DailyStatusCodes(_ context.Context, _ domain.ConstituencyName, start, end time.Time) ([]stream.DailyStatusCode, error) {
	m.codesRange = [2]time.Time{start, end}
	return m.codes, m.err
}

func (m *mockEventFeed) InfrastructureSummary(_ context.Context, company domain.CompanyName) ([]stream.DatedOverflow, error) {
	m.infraCompany = company
	return m.infra, m.err
}

func (m *mockEventFeed) WorstPointsInPeriod(_ context.Context, _, _ time.Time) ([]stream.PointPeriodSummary, error) {
	return m.worst, m.err
}

func (m *mockEventFeed) HaveLiveDataForConstituencies(_ context.Context) (map[domain.ConstituencyName]bool, error) {
	return m.liveConst, m.err
}

func (m *mockEventFeed) HaveLiveDataForCompanies(_ context.Context) (map[domain.CompanyName]bool, error) {
	return m.liveCompanies, m.err
}

type mockRainfall struct {
	days []domain.RainfallDay
	err  error
}

func (m *mockRainfall) ForConstituency(_ context.Context, _ domain.ConstituencyName, _, _ time.Time) ([]domain.RainfallDay, error) {
	return m.days, m.err
}

type mockAnnual struct {
	years        []domain.AnnualSewageRainfall
	constituency domain.ConstituencyName
	cso          domain.PointID
	start, end   time.Time
	err          error
}

func (m *mockAnnual) ByConstituency(_ context.Context, c domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error) {
	m.constituency, m.start, m.end = c, start, end
	return m.years, m.err
}

func (m *mockAnnual) ByCso(_ context.Context, id domain.PointID, c domain.ConstituencyName, start, end time.Time) ([]domain.AnnualSewageRainfall, error) {
	m.cso, m.constituency, m.start, m.end = id, c, start, end
	return m.years, m.err
}

type fixture struct {
	events   *mockEventFeed
	rainfall *mockRainfall
	annual   *mockAnnual
	clock    *clockwork.FakeClock
	server   *httpapi.Server
}

func newFixture(t *testing.T, readyErr error) *fixture {
	t.Helper()

	f := &fixture{
		events:   &mockEventFeed{},
		rainfall: &mockRainfall{},
		annual:   &mockAnnual{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)),
	}
	api := &httpapi.API{
		Events:         f.events,
		Rainfall:       f.rainfall,
		Annual:         f.annual,
		Constituencies: refdata.NewConstituencies([]domain.ConstituencyName{"Hove", "Bath"}),
		Beaches:        []refdata.BeachRanking{{Beach: "Saltdean", Company: "Southern Water", TotalSpills: 3, TotalDuration: 7}},
		Clock:          f.clock,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.server = httpapi.NewServer(":0", api, &mockReadiness{err: readyErr}, nil, nil, slog.Default())
	return f
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t, nil).get("/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newFixture(t, fmt.Errorf("not ready yet")).get("/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, nil).get("/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLiveSummary(t *testing.T) {
	f := newFixture(t, nil)
	f.events.summary = domain.OverflowSummary{
		Count: domain.CSOCount{Start: 3, Stop: 10},
		Companies: []domain.CompanyStatus{
			{Company: "Southern Water", Count: domain.CSOCount{Start: 3, Stop: 10}},
		},
	}

	rec := f.get("/api/v1/live/summary")

	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.OverflowSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count.Start)
	require.Len(t, body.Companies, 1)
	assert.Equal(t, domain.CompanyName("Southern Water"), body.Companies[0].Company)
}

func TestLiveSummary_StoreFailureIs500(t *testing.T) {
	f := newFixture(t, nil)
	f.events.err = fmt.Errorf("connection reset")

	rec := f.get("/api/v1/live/summary")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestOverflowingAt_AlignedInstant(t *testing.T) {
	f := newFixture(t, nil)
	aligned := time.Date(2024, 6, 15, 11, 55, 0, 0, time.UTC)
	f.events.overflowing = []stream.LivePoint{{ID: "TW-001", Company: "Thames Water"}}

	rec := f.get(fmt.Sprintf("/api/v1/live/overflowing/%d", aligned.UnixMilli()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.events.overflowingAt.Equal(aligned))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestOverflowingAt_UnalignedInstantRedirects(t *testing.T) {
	f := newFixture(t, nil)
	unaligned := time.Date(2024, 6, 15, 11, 57, 30, 0, time.UTC)
	aligned := time.Date(2024, 6, 15, 11, 55, 0, 0, time.UTC)

	rec := f.get(fmt.Sprintf("/api/v1/live/overflowing/%d", unaligned.UnixMilli()))

	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, fmt.Sprintf("/api/v1/live/overflowing/%d", aligned.UnixMilli()), rec.Header().Get("Location"))
}

func TestOverflowingAt_HistoricalInstantCachesLonger(t *testing.T) {
	f := newFixture(t, nil)
	historical := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rec := f.get(fmt.Sprintf("/api/v1/live/overflowing/%d", historical.UnixMilli()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
}

func TestOverflowingAt_CacheBoundaryIsThreeHours(t *testing.T) {
	f := newFixture(t, nil)

	// Two hours old: new events may still arrive for this instant.
	recent := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	rec := f.get(fmt.Sprintf("/api/v1/live/overflowing/%d", recent.UnixMilli()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	// Four hours old: the window is settled.
	settled := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	rec = f.get(fmt.Sprintf("/api/v1/live/overflowing/%d", settled.UnixMilli()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
}

func TestOverflowingAt_BadTimestamp(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/live/overflowing/yesterday")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConstituencyEvents(t *testing.T) {
	f := newFixture(t, nil)
	f.events.codes = []stream.DailyStatusCode{
		{Point: "SW-100", Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Code: "o-8"},
	}

	rec := f.get("/api/v1/constituencies/hove/events?since=2024-06-01")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.events.codesRange[0].Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.events.codesRange[1].Equal(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)), "end is tomorrow")

	var body []stream.DailyStatusCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "o-8", body[0].Code)
}

func TestConstituencyEvents_UnknownSlugIs404(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/constituencies/atlantis/events")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConstituencyEvents_BadSinceIs400(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/constituencies/hove/events?since=June")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConstituencyAnnual_DefaultsToCurrentYear(t *testing.T) {
	f := newFixture(t, nil)
	f.annual.years = []domain.AnnualSewageRainfall{{Year: 2024}}

	rec := f.get("/api/v1/constituencies/hove/annual")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ConstituencyName("Hove"), f.annual.constituency)
	assert.True(t, f.annual.start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.annual.end.Equal(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)))
}

func TestConstituencyAnnual_InvalidRangeIs400(t *testing.T) {
	f := newFixture(t, nil)
	f.annual.err = fmt.Errorf("aggregate: %w", domain.ErrInvalidRange)

	rec := f.get("/api/v1/constituencies/hove/annual?start=2024-06-10&end=2024-06-01")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCsoAnnual(t *testing.T) {
	f := newFixture(t, nil)
	f.annual.years = []domain.AnnualSewageRainfall{{Year: 2023}, {Year: 2024}}

	rec := f.get("/api/v1/csos/SW-100/annual?constituency=bath&start=2023-01-01&end=2024-06-15")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PointID("SW-100"), f.annual.cso)
	assert.Equal(t, domain.ConstituencyName("Bath"), f.annual.constituency)
}

func TestCsoAnnual_MissingConstituencyIs400(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/csos/SW-100/annual")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompanyInfrastructure(t *testing.T) {
	f := newFixture(t, nil)
	f.events.infra = []stream.DatedOverflow{
		{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), MonitoredPoints: 120, Overflowing: 4},
	}

	rec := f.get("/api/v1/companies/thames-water/infrastructure")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CompanyName("Thames Water"), f.events.infraCompany)
}

func TestCompanyInfrastructure_UnknownCompanyIs404(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/companies/acme-water/infrastructure")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConstituencies(t *testing.T) {
	f := newFixture(t, nil)
	f.events.liveConst = map[domain.ConstituencyName]bool{"Hove": true}

	rec := f.get("/api/v1/constituencies")

	require.Equal(t, http.StatusOK, rec.Code)

	var body []struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
		Live bool   `json:"live"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "Bath", body[0].Name)
	assert.False(t, body[0].Live)
	assert.Equal(t, "hove", body[1].Slug)
	assert.True(t, body[1].Live)
}

func TestBeachRankings(t *testing.T) {
	rec := newFixture(t, nil).get("/api/v1/rankings/beaches")

	require.Equal(t, http.StatusOK, rec.Code)

	var body []refdata.BeachRanking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "Saltdean", body[0].Beach)
}
