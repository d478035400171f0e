package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/model"
)

func TestStdIsPopulationStd(t *testing.T) {
	t.Parallel()

	// One extreme value in a small sample; the population formula divides by
	// n, not n-1.
	values := []float64{10, 11, 9, 500}
	assert.InDelta(t, 132.5, Mean(values), 1e-9)
	assert.InDelta(t, 212.177, Std(values), 0.01)
}

func TestStdEdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single value", []float64{42}, 0},
		{"constant", []float64{5, 5, 5, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Std(tt.values), 1e-12)
		})
	}
}

func TestFeatureMatrixColumnOrder(t *testing.T) {
	t.Parallel()

	loc := model.LocationRecord{
		MotionIntensity:      1,
		PersistenceIntensity: 2,
		CreationVelocity:     3,
		MotionVelocity:       4,
		PersistenceVelocity:  5,
		ChildRatio:           6,
		YouthRatio:           7,
		AdultRatio:           8,
	}
	matrix := FeatureMatrix([]model.LocationRecord{loc})
	require.Len(t, matrix, 1)
	require.Len(t, matrix[0], len(FeatureNames))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, matrix[0])
}

func TestFeatureMatrixCoercesNonFinite(t *testing.T) {
	t.Parallel()

	loc := model.LocationRecord{
		MotionIntensity:  math.NaN(),
		CreationVelocity: math.Inf(1),
	}
	matrix := FeatureMatrix([]model.LocationRecord{loc})
	for _, v := range matrix[0] {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestStandardize(t *testing.T) {
	t.Parallel()

	matrix := [][]float64{
		{1, 100},
		{2, 100},
		{3, 100},
		{4, 100},
	}
	scaled := Standardize(matrix)
	require.Len(t, scaled, 4)

	col := Column(scaled, 0)
	assert.InDelta(t, 0, Mean(col), 1e-12)
	assert.InDelta(t, 1, Std(col), 1e-12)

	// Zero-variance columns standardize to zeros, never NaN.
	for _, row := range scaled {
		assert.Zero(t, row[1])
	}
}

func TestMaxAbsZScore(t *testing.T) {
	t.Parallel()

	matrix := [][]float64{
		{10, 1},
		{11, 1},
		{9, 1},
		{500, 1},
	}
	z := MaxAbsZScore(matrix, 3)
	// (500 - 132.5) / 212.177
	assert.InDelta(t, 1.732, z, 0.01)

	// Constant columns contribute nothing.
	assert.Zero(t, MaxAbsZScore([][]float64{{1}, {1}}, 0))
}
