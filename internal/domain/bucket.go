package domain

import (
	"fmt"
	"math"
	"time"
)

// Bucket is a snapshot of time-in-state for a point (or an aggregate of
// points) over some window. It exists purely to pick a map marker class;
// displayed numeric totals must come from the daily records instead.
type Bucket struct {
	Online                 time.Duration `json:"online"`
	Offline                time.Duration `json:"offline"`
	Overflowing            time.Duration `json:"overflowing"`
	Unknown                time.Duration `json:"unknown"`
	PotentiallyOverflowing time.Duration `json:"potentially_overflowing"`
}

// CodeFrom picks the marker code for a bucket. Priority is fixed,
// first match wins: overflowing, potentially overflowing, offline,
// unknown, online. An all-zero bucket falls through to "a-0".
func CodeFrom(b Bucket) string {
	switch {
	case b.Overflowing > 0:
		return magnitudeKey("o", b.Overflowing)
	case b.PotentiallyOverflowing > 0:
		return magnitudeKey("p", b.PotentiallyOverflowing)
	case b.Offline > 0:
		return magnitudeKey("z", b.Offline)
	case b.Unknown > 0:
		return magnitudeKey("u", b.Unknown)
	default:
		return magnitudeKey("a", b.Online)
	}
}

// magnitudeKey buckets a duration into 4-hour-aligned steps: whole hours
// rounded up, then rounded up to the next multiple of 4. So 1s-4h maps to
// 4, 4h1s-8h to 8, and so on. Lossy on purpose.
func magnitudeKey(category string, d time.Duration) string {
	hours := math.Ceil(d.Seconds() / 3600.0)
	step := int(math.Ceil(hours/4.0) * 4.0)
	return fmt.Sprintf("%s-%d", category, step)
}

// RainBand maps a daily rainfall value in millimetres to one of eleven
// shading bands, r-0 through r-10. 2mm per band, capped.
func RainBand(mm float64) string {
	return fmt.Sprintf("r-%d", int(math.Min(10, math.Ceil(mm/2.0))))
}
