package anomaly

// DBSCAN clusters the standardized matrix with a radius parameter and a
// minimum-neighbor count. Points not assigned to any dense cluster are
// outliers (label -1). Increasing MinSamples with Eps held fixed can only add
// outliers, never remove them.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

const (
	labelNoise     = -1
	labelUnvisited = 0
)

// FitPredict returns one cluster label per row; -1 marks noise points.
func (d *DBSCAN) FitPredict(matrix [][]float64) []int {
	n := len(matrix)
	labels := make([]int, n)

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUnvisited {
			continue
		}
		neighbors := d.regionQuery(matrix, i)
		if len(neighbors) < d.MinSamples {
			labels[i] = labelNoise
			continue
		}
		cluster++
		labels[i] = cluster
		d.expand(matrix, labels, neighbors, cluster)
	}

	// Remap: callers only care about noise vs clustered.
	return labels
}

// expand grows a cluster from the seed neighborhood, reclaiming border points
// previously marked as noise.
func (d *DBSCAN) expand(matrix [][]float64, labels []int, seeds []int, cluster int) {
	for k := 0; k < len(seeds); k++ {
		j := seeds[k]
		if labels[j] == labelNoise {
			labels[j] = cluster
			continue
		}
		if labels[j] != labelUnvisited {
			continue
		}
		labels[j] = cluster
		neighbors := d.regionQuery(matrix, j)
		if len(neighbors) >= d.MinSamples {
			seeds = append(seeds, neighbors...)
		}
	}
}

// regionQuery returns the indexes within Eps of row i, including i itself.
func (d *DBSCAN) regionQuery(matrix [][]float64, i int) []int {
	var neighbors []int
	eps2 := d.Eps * d.Eps
	for j := range matrix {
		if squaredDistance(matrix[i], matrix[j]) <= eps2 {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for k := range a {
		diff := a[k] - b[k]
		sum += diff * diff
	}
	return sum
}
