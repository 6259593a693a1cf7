package domain

import "time"

// PointID is the stable identifier of a monitored CSO outfall.
type PointID string

// CompanyName is a water company's display name, e.g. "Thames Water".
type CompanyName string

// ConstituencyName is a UK parliamentary constituency name as it appears
// in the ONS boundary data, e.g. "Cities of London and Westminster".
type ConstituencyName string

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EventType is the signal reported by a monitoring point's event monitor.
type EventType string

const (
	EventStart   EventType = "Start"
	EventStop    EventType = "Stop"
	EventUnknown EventType = "Unknown"
)

// MonitoringPoint is immutable reference data describing one instrumented
// outfall. Created by ingestion, read-only here.
type MonitoringPoint struct {
	ID             PointID          `json:"id"`
	Company        CompanyName      `json:"company"`
	Site           string           `json:"site"`
	ReceivingWater string           `json:"receiving_water"`
	Constituency   ConstituencyName `json:"constituency"`
	Location       Coordinates      `json:"location"`
}

// DischargeEvent is one row of the append-only event log. EventID is a
// monotonic surrogate key used only as a deterministic tie-break.
type DischargeEvent struct {
	EventID    int64
	PointID    PointID
	Type       EventType
	EventTime  time.Time
	UpdateTime time.Time
}

// DailySewageRecord is a pre-aggregated duration-in-state summary for one
// point or area on one calendar day.
type DailySewageRecord struct {
	Date      time.Time
	Start     time.Duration
	Offline   time.Duration
	Potential time.Duration
	Count     int
}

// RainfallDay is one day's rainfall observation for a geography: the 75th
// percentile of gauge readings in millimetres and the sample count.
type RainfallDay struct {
	Date    time.Time `json:"d"`
	Pct75   float64   `json:"c"`
	Band    string    `json:"r"`
	Samples int       `json:"n"`
}

// DateOnly normalises a timestamp to midnight UTC so values from different
// sources compare equal on the same calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
