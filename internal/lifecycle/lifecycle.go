// Package lifecycle groups raw daily records into birth cohorts and
// classifies each cohort's lifecycle stage.
package lifecycle

import (
	"time"

	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

// stageRule pairs a predicate with the stage it assigns; evaluated in order,
// first match wins. The order is significant and intentionally mirrors the
// upstream behavior: GHOST is only reachable for cohorts the earlier rules
// pass over.
type stageRule struct {
	result model.LifecycleStage
	match  func(daysSinceBirth int, cohortSize, subsequentMotion int64) bool
}

var stageRules = []stageRule{
	{model.StageNewborn, func(days int, size, motion int64) bool {
		return days < 30
	}},
	{model.StageActive, func(days int, size, motion int64) bool {
		return days < 90
	}},
	{model.StageDormant, func(days int, size, motion int64) bool {
		return days > 90 && motion == 0
	}},
	{model.StageGhost, func(days int, size, motion int64) bool {
		return size > 100 && motion == 0 && days > 60
	}},
}

// ClassifyStage runs the stage rule cascade for a cohort.
func ClassifyStage(daysSinceBirth int, cohortSize, subsequentMotion int64) model.LifecycleStage {
	for _, rule := range stageRules {
		if rule.match(daysSinceBirth, cohortSize, subsequentMotion) {
			return rule.result
		}
	}
	return model.StageActive
}

// Track builds one lifecycle per (date, location) cohort with non-zero
// creation. Days-since-birth is measured against the latest date in the
// dataset.
//
// Subsequent-motion tracking needs forward time-series data that the extracts
// do not carry, so it defaults to zero. That biases stage assignment toward
// ACTIVE/DORMANT; this is a known approximation of the upstream data, not a
// defect to compensate for.
func Track(daily []model.RawRecord) []model.Lifecycle {
	logger := logging.ForService("lifecycle")

	if len(daily) == 0 {
		logger.Warn("no daily data available for lifecycle tracking")
		return nil
	}

	var latest time.Time
	for i := range daily {
		if daily[i].Date.After(latest) {
			latest = daily[i].Date
		}
	}

	lifecycles := make([]model.Lifecycle, 0, len(daily))
	for i := range daily {
		row := &daily[i]
		cohortSize := row.TotalCreation()
		if cohortSize == 0 {
			continue
		}

		daysSinceBirth := int(latest.Sub(row.Date).Hours() / 24)
		var subsequentMotion, subsequentPersistence int64

		motionFrequency := 0.0
		if daysSinceBirth > 0 {
			motionFrequency = float64(subsequentMotion) / float64(daysSinceBirth)
		}

		lifecycles = append(lifecycles, model.Lifecycle{
			ID:               "LIFECYCLE_" + row.Location + "_" + row.Date.Format("20060102"),
			OriginLocationID: model.LocationID(row.Location),
			BirthDate:        row.Date,
			CohortSize:       cohortSize,
			AgeDistribution: map[string]int64{
				"age_0_5":        row.CreationChild,
				"age_5_17":       row.CreationYouth,
				"age_18_greater": row.CreationAdult,
			},
			SubsequentMotion:   subsequentMotion,
			SubsequentPersists: subsequentPersistence,
			DaysSinceBirth:     daysSinceBirth,
			MotionFrequency:    motionFrequency,
			Stage:              ClassifyStage(daysSinceBirth, cohortSize, subsequentMotion),
			Region:             row.Region,
			District:           row.District,
			Location:           row.Location,
		})
	}

	logger.Info("lifecycle tracking complete", "cohorts", len(lifecycles))
	return lifecycles
}
