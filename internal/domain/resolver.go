package domain

import "sort"

// Status is the live classification of a monitoring point, derived from
// its most recent discharge event.
type Status string

const (
	StatusDischarging Status = "discharging"
	StatusOffline     Status = "offline"
	StatusUnknown     Status = "unknown"
)

// StatusOf classifies a single event type.
func StatusOf(t EventType) Status {
	switch t {
	case EventStart:
		return StatusDischarging
	case EventStop:
		return StatusOffline
	default:
		return StatusUnknown
	}
}

// LatestByPoint reduces an event log to the single most recent event per
// monitoring point. One pass, insertion order irrelevant. Ties on
// EventTime fall back to UpdateTime, then EventID, so the winner is
// deterministic for any permutation of the input.
func LatestByPoint(events []DischargeEvent) map[PointID]DischargeEvent {
	latest := make(map[PointID]DischargeEvent)
	for _, e := range events {
		cur, ok := latest[e.PointID]
		if !ok || newer(e, cur) {
			latest[e.PointID] = e
		}
	}
	return latest
}

func newer(a, b DischargeEvent) bool {
	if !a.EventTime.Equal(b.EventTime) {
		return a.EventTime.After(b.EventTime)
	}
	if !a.UpdateTime.Equal(b.UpdateTime) {
		return a.UpdateTime.After(b.UpdateTime)
	}
	return a.EventID > b.EventID
}

// CSOCount is the number of points currently discharging (Start) and not
// discharging (Stop). Points whose latest event is Unknown count in neither.
type CSOCount struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// Total is the number of points with a definite status.
func (c CSOCount) Total() int { return c.Start + c.Stop }

func (c CSOCount) add(s Status) CSOCount {
	switch s {
	case StatusDischarging:
		c.Start++
	case StatusOffline:
		c.Stop++
	}
	return c
}

// CompanyStatus is the live count for a single water company.
type CompanyStatus struct {
	Company CompanyName `json:"company"`
	Count   CSOCount    `json:"count"`
}

// OverflowSummary answers "how many outfalls are discharging right now"
// at system and per-company granularity.
type OverflowSummary struct {
	Count     CSOCount        `json:"count"`
	Companies []CompanyStatus `json:"companies"`
}

// Summarize folds resolved per-point statuses into per-company and total
// counts. The company function maps a point to its operator; each point
// contributes to exactly one status bucket of exactly one company.
// Companies are ordered by name.
func Summarize(latest map[PointID]DischargeEvent, company func(PointID) CompanyName) OverflowSummary {
	byCompany := make(map[CompanyName]CSOCount)
	for id, e := range latest {
		c := company(id)
		byCompany[c] = byCompany[c].add(StatusOf(e.Type))
	}

	companies := make([]CompanyStatus, 0, len(byCompany))
	for name, count := range byCompany {
		companies = append(companies, CompanyStatus{Company: name, Count: count})
	}
	sort.Slice(companies, func(i, j int) bool {
		return companies[i].Company < companies[j].Company
	})

	var total CSOCount
	for _, c := range companies {
		total.Start += c.Count.Start
		total.Stop += c.Count.Stop
	}
	return OverflowSummary{Count: total, Companies: companies}
}
