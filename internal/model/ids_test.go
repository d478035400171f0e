package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentIDDeterministic(t *testing.T) {
	t.Parallel()

	a := ContentID("TENSION", "LOCATION_X", "TEMPORAL_SHOCK", "dbscan")
	b := ContentID("TENSION", "LOCATION_X", "TEMPORAL_SHOCK", "dbscan")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "TENSION_"))
	assert.Len(t, strings.TrimPrefix(a, "TENSION_"), 12)

	c := ContentID("TENSION", "LOCATION_Y", "TEMPORAL_SHOCK", "dbscan")
	assert.NotEqual(t, a, c)
}

func TestGeographicIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LOCATION_L001", LocationID("L001"))
	assert.Equal(t, "REGION_NORTH", RegionID("NORTH"))
	assert.Equal(t, "DISTRICT_NORTH_ALPHA", DistrictID("NORTH", "ALPHA"))
	assert.Equal(t, "DISTRICT_NEW_NORTH_UPPER_ALPHA", DistrictID("NEW NORTH", "UPPER ALPHA"))
}

func TestRawRecordTotals(t *testing.T) {
	t.Parallel()

	r := RawRecord{
		CreationChild: 1, CreationYouth: 2, CreationAdult: 3,
		MotionYouth: 4, MotionAdult: 5,
		PersistenceYouth: 6, PersistenceAdult: 7,
	}
	assert.Equal(t, int64(6), r.TotalCreation())
	assert.Equal(t, int64(9), r.TotalMotion())
	assert.Equal(t, int64(13), r.TotalPersistence())
}
