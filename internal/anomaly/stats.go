package anomaly

import (
	"math"

	"github.com/atlasengine/atlas-go/internal/model"
)

// FeatureNames lists the feature subset used for detection, in column order.
var FeatureNames = []string{
	"motion_intensity",
	"persistence_intensity",
	"creation_velocity",
	"motion_velocity",
	"persistence_velocity",
	"child_ratio",
	"youth_ratio",
	"adult_ratio",
}

// FeatureMatrix extracts the detection features from location records. Any
// non-finite value coerces to zero before detection.
func FeatureMatrix(locations []model.LocationRecord) [][]float64 {
	matrix := make([][]float64, len(locations))
	for i := range locations {
		r := &locations[i]
		row := []float64{
			r.MotionIntensity,
			r.PersistenceIntensity,
			r.CreationVelocity,
			r.MotionVelocity,
			r.PersistenceVelocity,
			r.ChildRatio,
			r.YouthRatio,
			r.AdultRatio,
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[j] = 0
			}
		}
		matrix[i] = row
	}
	return matrix
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std returns the population standard deviation of values.
func Std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Column returns column j of the matrix.
func Column(matrix [][]float64, j int) []float64 {
	col := make([]float64, len(matrix))
	for i := range matrix {
		col[i] = matrix[i][j]
	}
	return col
}

// Standardize scales each column of the matrix to zero mean and unit
// variance. Columns with zero variance standardize to all zeros.
func Standardize(matrix [][]float64) [][]float64 {
	if len(matrix) == 0 {
		return nil
	}
	cols := len(matrix[0])
	means := make([]float64, cols)
	stds := make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := Column(matrix, j)
		means[j] = Mean(col)
		stds[j] = Std(col)
	}
	out := make([][]float64, len(matrix))
	for i := range matrix {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			if stds[j] > 0 {
				row[j] = (matrix[i][j] - means[j]) / stds[j]
			}
		}
		out[i] = row
	}
	return out
}

// MaxAbsZScore returns the largest absolute z-score across the features of
// row i, measured against the column distributions of the whole matrix.
func MaxAbsZScore(matrix [][]float64, i int) float64 {
	if len(matrix) == 0 || i >= len(matrix) {
		return 0
	}
	var maxZ float64
	for j := range matrix[i] {
		col := Column(matrix, j)
		std := Std(col)
		if std == 0 {
			continue
		}
		z := math.Abs((matrix[i][j] - Mean(col)) / std)
		if z > maxZ {
			maxZ = z
		}
	}
	return maxZ
}
