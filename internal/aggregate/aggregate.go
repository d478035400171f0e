// Package aggregate rolls the merged daily dataset up to the three levels of
// the geographic hierarchy: location, district and region. District and
// region rows must equal the sum of their constituent location rows.
package aggregate

import (
	"sort"
	"time"

	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

type locationKey struct {
	region   string
	district string
	location string
}

type districtKey struct {
	region   string
	district string
}

type locationAccum struct {
	rec   model.LocationRecord
	dates map[time.Time]struct{}
}

type rollupAccum struct {
	rollup model.Rollup
	dates  map[time.Time]struct{}
}

// Geographic aggregates daily records at location, district and region
// levels, counting distinct active dates at each level.
func Geographic(daily []model.RawRecord) (locations []model.LocationRecord, districts, regions []model.Rollup) {
	logger := logging.ForService("aggregate")

	locAccum := make(map[locationKey]*locationAccum)
	distAccum := make(map[districtKey]*rollupAccum)
	regAccum := make(map[string]*rollupAccum)

	for i := range daily {
		row := &daily[i]

		lk := locationKey{region: row.Region, district: row.District, location: row.Location}
		la, ok := locAccum[lk]
		if !ok {
			la = &locationAccum{
				rec: model.LocationRecord{
					Region:   row.Region,
					District: row.District,
					Location: row.Location,
				},
				dates: make(map[time.Time]struct{}),
			}
			locAccum[lk] = la
		}
		la.rec.CreationChild += row.CreationChild
		la.rec.CreationYouth += row.CreationYouth
		la.rec.CreationAdult += row.CreationAdult
		la.rec.TotalCreation += row.TotalCreation()
		la.rec.TotalMotion += row.TotalMotion()
		la.rec.TotalPersistence += row.TotalPersistence()
		la.dates[row.Date] = struct{}{}

		dk := districtKey{region: row.Region, district: row.District}
		da, ok := distAccum[dk]
		if !ok {
			da = &rollupAccum{
				rollup: model.Rollup{Region: row.Region, District: row.District},
				dates:  make(map[time.Time]struct{}),
			}
			distAccum[dk] = da
		}
		da.rollup.TotalCreation += row.TotalCreation()
		da.rollup.TotalMotion += row.TotalMotion()
		da.rollup.TotalPersistence += row.TotalPersistence()
		da.dates[row.Date] = struct{}{}

		ra, ok := regAccum[row.Region]
		if !ok {
			ra = &rollupAccum{
				rollup: model.Rollup{Region: row.Region},
				dates:  make(map[time.Time]struct{}),
			}
			regAccum[row.Region] = ra
		}
		ra.rollup.TotalCreation += row.TotalCreation()
		ra.rollup.TotalMotion += row.TotalMotion()
		ra.rollup.TotalPersistence += row.TotalPersistence()
		ra.dates[row.Date] = struct{}{}
	}

	locations = make([]model.LocationRecord, 0, len(locAccum))
	for _, la := range locAccum {
		la.rec.DaysActive = len(la.dates)
		locations = append(locations, la.rec)
	}
	sort.Slice(locations, func(i, j int) bool {
		a, b := &locations[i], &locations[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.District != b.District {
			return a.District < b.District
		}
		return a.Location < b.Location
	})

	districts = make([]model.Rollup, 0, len(distAccum))
	for _, da := range distAccum {
		da.rollup.DaysActive = len(da.dates)
		districts = append(districts, da.rollup)
	}
	sort.Slice(districts, func(i, j int) bool {
		a, b := &districts[i], &districts[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.District < b.District
	})

	regions = make([]model.Rollup, 0, len(regAccum))
	for _, ra := range regAccum {
		ra.rollup.DaysActive = len(ra.dates)
		regions = append(regions, ra.rollup)
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Region < regions[j].Region
	})

	logger.Info("geographic aggregation complete",
		"locations", len(locations),
		"districts", len(districts),
		"regions", len(regions))

	return locations, districts, regions
}
