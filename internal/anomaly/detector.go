// Package anomaly runs two independent unsupervised outlier methods over
// standardized per-location feature vectors and emits tension records.
package anomaly

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

const (
	methodIsolationForest = "isolation_forest"
	methodDBSCAN          = "dbscan"
)

// velocityStats holds the dataset-wide velocity distributions used to type a
// flagged point.
type velocityStats struct {
	creationMean, creationStd float64
	motionMean, motionStd     float64
}

// tensionRule pairs a predicate with the tension type it assigns, evaluated
// in order with first match winning.
type tensionRule struct {
	result model.TensionType
	match  func(creationVel, motionVel float64, s velocityStats) bool
}

var tensionRules = []tensionRule{
	{model.TensionCreationWithoutMotion, func(cv, mv float64, s velocityStats) bool {
		return cv > s.creationMean+2*s.creationStd && mv < 0.1
	}},
	{model.TensionMotionWithoutCreation, func(cv, mv float64, s velocityStats) bool {
		return mv > s.motionMean+2*s.motionStd
	}},
}

// classifyTension applies the velocity-direction rule cascade.
func classifyTension(creationVel, motionVel float64, s velocityStats) model.TensionType {
	for _, rule := range tensionRules {
		if rule.match(creationVel, motionVel, s) {
			return rule.result
		}
	}
	return model.TensionTemporalShock
}

// Detector runs the outlier forest and the density pass over location
// features.
type Detector struct {
	settings *conf.AnomalySettings
	logger   *slog.Logger
}

// NewDetector creates a Detector with the given settings.
func NewDetector(settings *conf.AnomalySettings) *Detector {
	return &Detector{
		settings: settings,
		logger:   logging.ForService("anomaly"),
	}
}

// Detect returns the unioned (not deduplicated) tension list from both
// detection methods. A failure in one method is logged and skipped; it never
// aborts the run.
func (d *Detector) Detect(locations []model.LocationRecord, detectedAt time.Time) []model.Tension {
	if !d.settings.Enabled {
		d.logger.Info("anomaly detection disabled")
		return nil
	}
	if len(locations) == 0 {
		return nil
	}

	raw := FeatureMatrix(locations)
	scaled := Standardize(raw)

	stats := velocityStats{
		creationMean: Mean(Column(raw, 2)),
		creationStd:  Std(Column(raw, 2)),
		motionMean:   Mean(Column(raw, 3)),
		motionStd:    Std(Column(raw, 3)),
	}

	var tensions []model.Tension

	forest := NewIsolationForest(d.settings.Estimators, d.settings.Contamination, d.settings.Seed)
	forest.Fit(scaled)
	labels := forest.Predict(scaled)
	forestCount := 0
	for i, label := range labels {
		if label != -1 {
			continue
		}
		tensions = append(tensions, d.buildTension(&locations[i], raw, i, stats, methodIsolationForest, detectedAt))
		forestCount++
	}
	d.logger.Info("isolation forest pass complete", "anomalies", forestCount)

	if d.settings.DBSCAN.Enabled {
		dbscan := &DBSCAN{Eps: d.settings.DBSCAN.Eps, MinSamples: d.settings.DBSCAN.MinSamples}
		clusters := dbscan.FitPredict(scaled)
		dbscanCount := 0
		for i, label := range clusters {
			if label != -1 {
				continue
			}
			t := d.buildTension(&locations[i], raw, i, stats, methodDBSCAN, detectedAt)
			// Density outliers carry no velocity-direction signal.
			t.Type = model.TensionTemporalShock
			t.ID = model.ContentID("TENSION", t.LocationID, string(t.Type), methodDBSCAN)
			tensions = append(tensions, t)
			dbscanCount++
		}
		d.logger.Info("density pass complete", "anomalies", dbscanCount)
	}

	return tensions
}

func (d *Detector) buildTension(loc *model.LocationRecord, raw [][]float64, i int, stats velocityStats, method string, detectedAt time.Time) model.Tension {
	maxZ := MaxAbsZScore(raw, i)
	severity := maxZ * 10
	if severity > 100 {
		severity = 100
	}
	tensionType := classifyTension(loc.CreationVelocity, loc.MotionVelocity, stats)
	locationID := loc.ID()

	return model.Tension{
		ID:              model.ContentID("TENSION", locationID, string(tensionType), method),
		LocationID:      locationID,
		Type:            tensionType,
		Severity:        severity,
		ZScore:          maxZ,
		Description:     fmt.Sprintf("Anomaly detected in %s, %s, location %s", loc.Region, loc.District, loc.Location),
		DetectedAt:      detectedAt,
		ObservedValue:   loc.CreationVelocity,
		ExpectedValue:   stats.creationMean,
		DetectionMethod: method,
	}
}
