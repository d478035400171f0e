package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/model"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestGeographicRollupInvariants(t *testing.T) {
	t.Parallel()

	daily := []model.RawRecord{
		{Date: day(1), Region: "NORTH", District: "ALPHA", Location: "L1",
			CreationChild: 1, CreationYouth: 2, CreationAdult: 3, MotionAdult: 4, PersistenceAdult: 5},
		{Date: day(2), Region: "NORTH", District: "ALPHA", Location: "L1",
			CreationAdult: 10},
		{Date: day(1), Region: "NORTH", District: "ALPHA", Location: "L2",
			CreationAdult: 7, MotionYouth: 8},
		{Date: day(1), Region: "NORTH", District: "BETA", Location: "L3",
			CreationAdult: 20},
		{Date: day(3), Region: "SOUTH", District: "GAMMA", Location: "L4",
			CreationAdult: 30, PersistenceYouth: 2},
	}

	locations, districts, regions := Geographic(daily)
	require.Len(t, locations, 4)
	require.Len(t, districts, 3)
	require.Len(t, regions, 2)

	// District and region counters must equal the sum of their locations.
	for _, d := range districts {
		var creation, motion, persistence int64
		for _, loc := range locations {
			if loc.Region == d.Region && loc.District == d.District {
				creation += loc.TotalCreation
				motion += loc.TotalMotion
				persistence += loc.TotalPersistence
			}
		}
		assert.Equal(t, creation, d.TotalCreation, "district %s creation", d.District)
		assert.Equal(t, motion, d.TotalMotion, "district %s motion", d.District)
		assert.Equal(t, persistence, d.TotalPersistence, "district %s persistence", d.District)
	}
	for _, r := range regions {
		var creation int64
		for _, loc := range locations {
			if loc.Region == r.Region {
				creation += loc.TotalCreation
			}
		}
		assert.Equal(t, creation, r.TotalCreation, "region %s creation", r.Region)
	}
}

func TestGeographicDaysActiveDistinct(t *testing.T) {
	t.Parallel()

	daily := []model.RawRecord{
		{Date: day(1), Region: "NORTH", District: "ALPHA", Location: "L1", CreationAdult: 1},
		{Date: day(2), Region: "NORTH", District: "ALPHA", Location: "L1", CreationAdult: 1},
		{Date: day(2), Region: "NORTH", District: "ALPHA", Location: "L2", CreationAdult: 1},
	}

	locations, districts, regions := Geographic(daily)
	require.Len(t, locations, 2)

	assert.Equal(t, 2, locations[0].DaysActive, "L1 active on two dates")
	assert.Equal(t, 1, locations[1].DaysActive)
	// District saw activity on two distinct dates, not three rows.
	assert.Equal(t, 2, districts[0].DaysActive)
	assert.Equal(t, 2, regions[0].DaysActive)
}

func TestGeographicDeterministicOrder(t *testing.T) {
	t.Parallel()

	daily := []model.RawRecord{
		{Date: day(1), Region: "SOUTH", District: "Z", Location: "Z9", CreationAdult: 1},
		{Date: day(1), Region: "NORTH", District: "B", Location: "B1", CreationAdult: 1},
		{Date: day(1), Region: "NORTH", District: "A", Location: "A2", CreationAdult: 1},
		{Date: day(1), Region: "NORTH", District: "A", Location: "A1", CreationAdult: 1},
	}

	locations, districts, regions := Geographic(daily)

	assert.Equal(t, "A1", locations[0].Location)
	assert.Equal(t, "A2", locations[1].Location)
	assert.Equal(t, "B1", locations[2].Location)
	assert.Equal(t, "Z9", locations[3].Location)
	assert.Equal(t, "A", districts[0].District)
	assert.Equal(t, "NORTH", regions[0].Region)
	assert.Equal(t, "SOUTH", regions[1].Region)
}

func TestGeographicEmpty(t *testing.T) {
	t.Parallel()

	locations, districts, regions := Geographic(nil)
	assert.Empty(t, locations)
	assert.Empty(t, districts)
	assert.Empty(t, regions)
}
