// Package refdata loads the static reference datasets the service is
// started with: the constituency name table and the ranked datafiles.
package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sewagewatch/cso-live-service/internal/domain"
)

// Constituencies is the slug-indexed constituency name table, built once
// at startup and shared by reference with every handler that needs it.
type Constituencies struct {
	bySlug map[string]domain.ConstituencyName
}

// LoadConstituencies reads a one-column CSV of constituency names. A
// header row named "constituency" is skipped.
func LoadConstituencies(path string) (*Constituencies, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open constituencies: %w", err)
	}
	defer f.Close()
	return ReadConstituencies(f)
}

// ReadConstituencies parses the CSV from any reader.
func ReadConstituencies(r io.Reader) (*Constituencies, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	names := make([]domain.ConstituencyName, 0)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("constituencies line %d: %w", line, err)
		}
		if len(record) == 0 || record[0] == "" {
			continue
		}
		if line == 1 && strings.EqualFold(record[0], "constituency") {
			continue
		}
		names = append(names, domain.ConstituencyName(record[0]))
	}
	return NewConstituencies(names), nil
}

// NewConstituencies builds the table from an in-memory list.
func NewConstituencies(names []domain.ConstituencyName) *Constituencies {
	bySlug := make(map[string]domain.ConstituencyName, len(names))
	for _, n := range names {
		bySlug[Slugify(string(n))] = n
	}
	return &Constituencies{bySlug: bySlug}
}

// BySlug resolves a URL slug back to the constituency name.
func (c *Constituencies) BySlug(slug string) (domain.ConstituencyName, bool) {
	name, ok := c.bySlug[slug]
	return name, ok
}

// Names returns every known constituency, sorted.
func (c *Constituencies) Names() []domain.ConstituencyName {
	names := make([]domain.ConstituencyName, 0, len(c.bySlug))
	for _, n := range c.bySlug {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Slugify lowercases a name and collapses every run of non-alphanumeric
// characters, accented letters included, to a single dash:
// "Ynys Môn" becomes "ynys-m-n".
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
