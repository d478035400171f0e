// Package features derives per-location ratios, intensities and velocities,
// and classifies each location into a behavioral archetype.
package features

import (
	"math"

	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

// archetypeRule pairs a predicate with the archetype it assigns. Rules are
// evaluated in order; the first match wins.
type archetypeRule struct {
	name  model.Archetype
	match func(r *model.LocationRecord, meanCreationVelocity float64) bool
}

// ArchetypeRules is the ordered classification cascade. Exposed so rule order
// and precedence are testable independently of the surrounding pipeline.
var ArchetypeRules = []archetypeRule{
	{model.ArchetypeGhostFarm, func(r *model.LocationRecord, mean float64) bool {
		return r.MotionIntensity < 0.1 && r.CreationVelocity > mean
	}},
	{model.ArchetypeCrossroads, func(r *model.LocationRecord, mean float64) bool {
		return r.MotionIntensity > 2.0
	}},
	{model.ArchetypeNursery, func(r *model.LocationRecord, mean float64) bool {
		return r.CreationVelocity > 2*mean && r.ChildRatio > 0.3
	}},
	{model.ArchetypeDormant, func(r *model.LocationRecord, mean float64) bool {
		return r.CreationVelocity < 0.2*mean
	}},
}

// ClassifyArchetype runs the rule cascade for one record against the
// dataset-wide mean creation velocity.
func ClassifyArchetype(r *model.LocationRecord, meanCreationVelocity float64) model.Archetype {
	for _, rule := range ArchetypeRules {
		if rule.match(r, meanCreationVelocity) {
			return rule.name
		}
	}
	return model.ArchetypeBedrock
}

// Engineer computes derived metrics for every location in place and assigns
// archetypes. All divisions are zero-guarded and non-finite results coerce
// to zero.
func Engineer(locations []model.LocationRecord) []model.LocationRecord {
	logger := logging.ForService("features")

	for i := range locations {
		r := &locations[i]

		r.ChildRatio = safeDiv(float64(r.CreationChild), float64(r.TotalCreation))
		r.YouthRatio = safeDiv(float64(r.CreationYouth), float64(r.TotalCreation))
		r.AdultRatio = safeDiv(float64(r.CreationAdult), float64(r.TotalCreation))

		r.MotionIntensity = safeDiv(float64(r.TotalMotion), float64(r.TotalCreation))
		r.PersistenceIntensity = safeDiv(float64(r.TotalPersistence), float64(r.TotalCreation))

		r.CreationVelocity = safeDiv(float64(r.TotalCreation), float64(r.DaysActive))
		r.MotionVelocity = safeDiv(float64(r.TotalMotion), float64(r.DaysActive))
		r.PersistenceVelocity = safeDiv(float64(r.TotalPersistence), float64(r.DaysActive))

		r.MotionToPersistenceRatio = safeDiv(float64(r.TotalMotion), float64(r.TotalPersistence))
	}

	mean := MeanCreationVelocity(locations)
	counts := make(map[model.Archetype]int)
	for i := range locations {
		locations[i].Archetype = ClassifyArchetype(&locations[i], mean)
		counts[locations[i].Archetype]++
	}

	logger.Info("feature engineering complete",
		"locations", len(locations),
		"mean_creation_velocity", mean,
		"archetypes", counts)

	return locations
}

// MeanCreationVelocity returns the dataset-wide mean creation velocity.
func MeanCreationVelocity(locations []model.LocationRecord) float64 {
	if len(locations) == 0 {
		return 0
	}
	var sum float64
	for i := range locations {
		sum += locations[i].CreationVelocity
	}
	return sum / float64(len(locations))
}

// safeDiv divides a by b, returning 0 for zero denominators and coercing
// non-finite results to 0.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
