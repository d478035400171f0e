package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/model"
)

func TestEngineerRatiosSumToOne(t *testing.T) {
	t.Parallel()

	locations := []model.LocationRecord{{
		Region: "NORTH", District: "ALPHA", Location: "L1",
		CreationChild: 10, CreationYouth: 30, CreationAdult: 60,
		TotalCreation: 100, TotalMotion: 50, TotalPersistence: 25,
		DaysActive: 10,
	}}

	out := Engineer(locations)
	require.Len(t, out, 1)
	r := out[0]

	assert.InDelta(t, 1.0, r.ChildRatio+r.YouthRatio+r.AdultRatio, 1e-9)
	assert.InDelta(t, 0.5, r.MotionIntensity, 1e-9)
	assert.InDelta(t, 0.25, r.PersistenceIntensity, 1e-9)
	assert.InDelta(t, 10.0, r.CreationVelocity, 1e-9)
	assert.InDelta(t, 5.0, r.MotionVelocity, 1e-9)
	assert.InDelta(t, 2.5, r.PersistenceVelocity, 1e-9)
	assert.InDelta(t, 2.0, r.MotionToPersistenceRatio, 1e-9)
}

func TestEngineerZeroDenominators(t *testing.T) {
	t.Parallel()

	locations := []model.LocationRecord{{
		Region: "NORTH", District: "ALPHA", Location: "EMPTY",
		TotalMotion: 5, // motion without any creation
	}}

	out := Engineer(locations)
	r := out[0]

	assert.Zero(t, r.ChildRatio)
	assert.Zero(t, r.MotionIntensity)
	assert.Zero(t, r.CreationVelocity)
	assert.Zero(t, r.MotionToPersistenceRatio)
}

func TestClassifyArchetype(t *testing.T) {
	t.Parallel()

	const mean = 10.0

	tests := []struct {
		name string
		rec  model.LocationRecord
		want model.Archetype
	}{
		{
			"ghost farm: high creation, no motion",
			model.LocationRecord{CreationVelocity: 50, MotionIntensity: 0.05},
			model.ArchetypeGhostFarm,
		},
		{
			"crossroads: heavy motion",
			model.LocationRecord{CreationVelocity: 5, MotionIntensity: 3},
			model.ArchetypeCrossroads,
		},
		{
			"nursery: very high creation with children",
			model.LocationRecord{CreationVelocity: 25, MotionIntensity: 0.5, ChildRatio: 0.4},
			model.ArchetypeNursery,
		},
		{
			"ghost farm outranks nursery",
			model.LocationRecord{CreationVelocity: 25, MotionIntensity: 0.05, ChildRatio: 0.4},
			model.ArchetypeGhostFarm,
		},
		{
			"dormant: trickle of creation",
			model.LocationRecord{CreationVelocity: 1, MotionIntensity: 0.5},
			model.ArchetypeDormant,
		},
		{
			"bedrock fallback",
			model.LocationRecord{CreationVelocity: 10, MotionIntensity: 0.5},
			model.ArchetypeBedrock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyArchetype(&tt.rec, mean))
		})
	}
}

func TestMeanCreationVelocity(t *testing.T) {
	t.Parallel()

	assert.Zero(t, MeanCreationVelocity(nil))

	locations := []model.LocationRecord{
		{CreationVelocity: 10},
		{CreationVelocity: 20},
		{CreationVelocity: 30},
	}
	assert.InDelta(t, 20.0, MeanCreationVelocity(locations), 1e-9)
}
