package refdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sewagewatch/cso-live-service/internal/domain"
)

// ErrUnexpectedShape reports a datafile that parsed as JSON but does not
// carry the expected record structure.
var ErrUnexpectedShape = errors.New("datafile has unexpected shape")

// BeachRanking is one row of the published beach spill rankings datafile.
type BeachRanking struct {
	Beach         string             `json:"beach"`
	Company       domain.CompanyName `json:"company"`
	TotalSpills   int                `json:"total_spills"`
	TotalDuration float64            `json:"total_hours"`
}

func (b BeachRanking) Validate() error {
	if b.Beach == "" || b.Company == "" {
		return errors.New("beach and company are required")
	}
	if b.TotalSpills < 0 || b.TotalDuration < 0 {
		return errors.New("negative totals")
	}
	return nil
}

// RiverRanking is one row of the published river spill rankings datafile.
type RiverRanking struct {
	River         string             `json:"river"`
	Company       domain.CompanyName `json:"company"`
	TotalSpills   int                `json:"total_spills"`
	TotalDuration float64            `json:"total_hours"`
}

func (r RiverRanking) Validate() error {
	if r.River == "" || r.Company == "" {
		return errors.New("river and company are required")
	}
	if r.TotalSpills < 0 || r.TotalDuration < 0 {
		return errors.New("negative totals")
	}
	return nil
}

// LoadBeachRankings reads and validates the beach rankings datafile.
func LoadBeachRankings(path string) ([]BeachRanking, error) {
	return loadFile(path, BeachRanking.Validate)
}

// LoadRiverRankings reads and validates the river rankings datafile.
func LoadRiverRankings(path string) ([]RiverRanking, error) {
	return loadFile(path, RiverRanking.Validate)
}

func loadFile[T any](path string, validate func(T) error) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open datafile: %w", err)
	}
	defer f.Close()
	return ReadRecords(f, validate)
}

// ReadRecords decodes a JSON array of records, validating each one.
// Anything that is not an array of the expected record shape yields
// ErrUnexpectedShape with the offending position.
func ReadRecords[T any](r io.Reader, validate func(T) error) ([]T, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var records []T
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	for i, rec := range records {
		if err := validate(rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrUnexpectedShape, i, err)
		}
	}
	return records, nil
}

// FileTimestamp reports the datafile's modification time, shown on pages
// as the data vintage.
func FileTimestamp(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
