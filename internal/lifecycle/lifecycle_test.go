package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/model"
)

func TestClassifyStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		days   int
		size   int64
		motion int64
		want   model.LifecycleStage
	}{
		{"fresh cohort", 10, 50, 0, model.StageNewborn},
		{"newborn boundary", 29, 50, 0, model.StageNewborn},
		{"active window", 60, 50, 0, model.StageActive},
		{"dormant: old and silent", 120, 50, 0, model.StageDormant},
		{"old but moving falls through to active", 120, 50, 10, model.StageActive},
		{"ghost: large silent cohort at day 90", 90, 200, 0, model.StageGhost},
		{"small cohort at day 90 stays active", 90, 50, 0, model.StageActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyStage(tt.days, tt.size, tt.motion))
		})
	}
}

func TestTrack(t *testing.T) {
	t.Parallel()

	birth := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	daily := []model.RawRecord{
		{
			Date: birth, Region: "NORTH", District: "ALPHA", Location: "L1",
			CreationChild: 10, CreationYouth: 20, CreationAdult: 70,
		},
		{
			// Zero creation: motion-only rows never form a cohort.
			Date: birth, Region: "NORTH", District: "ALPHA", Location: "L2",
			MotionAdult: 50,
		},
		{
			Date: latest, Region: "NORTH", District: "ALPHA", Location: "L1",
			CreationAdult: 5,
		},
	}

	lifecycles := Track(daily)
	require.Len(t, lifecycles, 2)

	first := lifecycles[0]
	assert.Equal(t, "LIFECYCLE_L1_20240101", first.ID)
	assert.Equal(t, model.LocationID("L1"), first.OriginLocationID)
	assert.Equal(t, int64(100), first.CohortSize)
	assert.Equal(t, 60, first.DaysSinceBirth)
	assert.Equal(t, model.StageActive, first.Stage)
	assert.Equal(t, map[string]int64{
		"age_0_5":        10,
		"age_5_17":       20,
		"age_18_greater": 70,
	}, first.AgeDistribution)

	second := lifecycles[1]
	assert.Equal(t, 0, second.DaysSinceBirth)
	assert.Equal(t, model.StageNewborn, second.Stage)
}

func TestTrackEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Track(nil))
}
