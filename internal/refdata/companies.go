package refdata

import (
	"github.com/sewagewatch/cso-live-service/internal/domain"
)

// WaterCompanies is the fixed list of English and Welsh sewerage
// undertakers whose event feeds the service consumes.
var WaterCompanies = []domain.CompanyName{
	"Anglian Water",
	"Dwr Cymru Welsh Water",
	"Northumbrian Water",
	"Severn Trent Water",
	"South West Water",
	"Southern Water",
	"Thames Water",
	"United Utilities",
	"Wessex Water",
	"Yorkshire Water",
}

var companyBySlug = func() map[string]domain.CompanyName {
	m := make(map[string]domain.CompanyName, len(WaterCompanies))
	for _, c := range WaterCompanies {
		m[Slugify(string(c))] = c
	}
	return m
}()

// CompanyBySlug resolves a URL slug to the company name.
func CompanyBySlug(slug string) (domain.CompanyName, bool) {
	c, ok := companyBySlug[slug]
	return c, ok
}
