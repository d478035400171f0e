package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

// IsolationForest is a random-partition outlier ensemble. Points that isolate
// in fewer random partitions score as more anomalous. Deterministic for a
// fixed seed.
type IsolationForest struct {
	Estimators    int
	Contamination float64
	Seed          int64

	subSample int
	trees     []*isoNode
}

type isoNode struct {
	// internal node
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	// external node
	size int
}

const defaultSubSample = 256

// NewIsolationForest builds a forest with the given ensemble size and
// contamination fraction.
func NewIsolationForest(estimators int, contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		Estimators:    estimators,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit builds the ensemble over the standardized matrix.
func (f *IsolationForest) Fit(matrix [][]float64) {
	n := len(matrix)
	if n == 0 {
		return
	}
	f.subSample = defaultSubSample
	if n < f.subSample {
		f.subSample = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(f.subSample) + 1)))

	rng := rand.New(rand.NewSource(f.Seed))
	f.trees = make([]*isoNode, 0, f.Estimators)
	for t := 0; t < f.Estimators; t++ {
		sample := sampleRows(matrix, f.subSample, rng)
		f.trees = append(f.trees, buildIsoTree(sample, 0, maxDepth, rng))
	}
}

// Predict returns one label per row: -1 for outliers, 1 for inliers. The
// ceil(contamination*n) highest-scoring rows are flagged.
func (f *IsolationForest) Predict(matrix [][]float64) []int {
	n := len(matrix)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = 1
	}
	if n == 0 || len(f.trees) == 0 {
		return labels
	}

	scores := f.Scores(matrix)
	k := int(math.Ceil(f.Contamination * float64(n)))
	if k <= 0 {
		return labels
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for _, idx := range order[:k] {
		labels[idx] = -1
	}
	return labels
}

// Scores returns the anomaly score per row in (0, 1]; higher means more
// anomalous (fewer partitions to isolate).
func (f *IsolationForest) Scores(matrix [][]float64) []float64 {
	scores := make([]float64, len(matrix))
	norm := avgPathLength(f.subSample)
	if norm == 0 {
		return scores
	}
	for i := range matrix {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(tree, matrix[i], 0)
		}
		avg := total / float64(len(f.trees))
		scores[i] = math.Exp2(-avg / norm)
	}
	return scores
}

func sampleRows(matrix [][]float64, size int, rng *rand.Rand) [][]float64 {
	n := len(matrix)
	perm := rng.Perm(n)
	sample := make([][]float64, size)
	for i := 0; i < size; i++ {
		sample[i] = matrix[perm[i]]
	}
	return sample
}

func buildIsoTree(rows [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(rows) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(rows)}
	}
	cols := len(rows[0])
	feature := rng.Intn(cols)

	lo, hi := rows[0][feature], rows[0][feature]
	for _, row := range rows {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	if lo == hi {
		return &isoNode{size: len(rows)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildIsoTree(left, depth+1, maxDepth, rng),
		right:   buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	if node.left == nil && node.right == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if row[node.feature] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST search in
// a tree of n points, the standard isolation-depth normalizer.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // harmonic number approximation
	return 2*h - 2*float64(n-1)/float64(n)
}
