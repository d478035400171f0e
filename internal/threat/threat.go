// Package threat combines tensions and signatures into composite threat
// records via rule-based evidence aggregation. Each rule is evaluated
// independently; a run may emit zero, one, or multiple threats.
package threat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

const (
	maxEvidencePerList   = 10
	maxAffectedLocations = 20
)

// Infer runs the threat rules over the detected tensions and signatures.
func Infer(tensions []model.Tension, signatures []model.Signature, inferredAt time.Time) []model.Threat {
	logger := logging.ForService("threat")

	var threats []model.Threat
	if t := identityFraudRing(tensions, signatures, inferredAt); t != nil {
		threats = append(threats, *t)
	}
	threats = append(threats, coordinatedAnomalies(tensions)...)

	// Serving layer expects most severe first.
	sort.SliceStable(threats, func(i, j int) bool {
		return threats[i].SeverityLevel > threats[j].SeverityLevel
	})

	logger.Info("threat inference complete", "threats", len(threats))
	return threats
}

// identityFraudRing fires when ghost-farm signatures and at least three
// CREATION_WITHOUT_MOTION tensions intersect on three or more locations.
func identityFraudRing(tensions []model.Tension, signatures []model.Signature, inferredAt time.Time) *model.Threat {
	var ghostFarms []model.Signature
	for i := range signatures {
		if signatures[i].Type == model.SignatureGhostFarmPattern {
			ghostFarms = append(ghostFarms, signatures[i])
		}
	}
	var creationWithoutMotion []model.Tension
	for i := range tensions {
		if tensions[i].Type == model.TensionCreationWithoutMotion {
			creationWithoutMotion = append(creationWithoutMotion, tensions[i])
		}
	}
	if len(ghostFarms) == 0 || len(creationWithoutMotion) < 3 {
		return nil
	}

	signatureLocations := make(map[string]struct{})
	for i := range ghostFarms {
		for _, locID := range ghostFarms[i].LocationsInvolved {
			signatureLocations[locID] = struct{}{}
		}
	}
	var fraudLocations []string
	seen := make(map[string]struct{})
	for i := range creationWithoutMotion {
		locID := creationWithoutMotion[i].LocationID
		if _, dup := seen[locID]; dup {
			continue
		}
		if _, ok := signatureLocations[locID]; ok {
			fraudLocations = append(fraudLocations, locID)
			seen[locID] = struct{}{}
		}
	}
	if len(fraudLocations) < 3 {
		return nil
	}
	sort.Strings(fraudLocations)

	var estimatedEntities float64
	for i := 0; i < len(creationWithoutMotion) && i < 5; i++ {
		estimatedEntities += creationWithoutMotion[i].ObservedValue * 100
	}

	return &model.Threat{
		ID:    model.ContentID("THREAT", string(model.ThreatIdentityFraudRing), strings.Join(fraudLocations, "|")),
		Type:  model.ThreatIdentityFraudRing,
		Title: "Potential Identity Fraud Ring Detected",
		Narrative: fmt.Sprintf("Found %d locations exhibiting high creation velocity with minimal motion, "+
			"combined with ghost farm pattern. This suggests coordinated synthetic identity creation.",
			len(fraudLocations)),
		SeverityLevel:     4,
		Confidence:        capConfidence(float64(len(fraudLocations)) / 10),
		FirstDetected:     inferredAt,
		LastUpdated:       inferredAt,
		Status:            model.ThreatStatusActive,
		TensionIDs:        tensionIDs(creationWithoutMotion),
		SignatureIDs:      signatureIDs(ghostFarms),
		AffectedLocations: capLocations(fraudLocations),
		GeographicSpread:  len(fraudLocations),
		TemporalSpanDays:  30,
		EstimatedEntities: estimatedEntities,
	}
}

// coordinatedAnomalies buckets TEMPORAL_SHOCK tensions by detection date and
// emits one threat per date with five or more simultaneous shocks.
func coordinatedAnomalies(tensions []model.Tension) []model.Threat {
	var shocks []model.Tension
	for i := range tensions {
		if tensions[i].Type == model.TensionTemporalShock {
			shocks = append(shocks, tensions[i])
		}
	}
	if len(shocks) < 5 {
		return nil
	}

	buckets := make(map[string][]model.Tension)
	for i := range shocks {
		key := shocks[i].DetectedAt.Format("2006-01-02")
		buckets[key] = append(buckets[key], shocks[i])
	}
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var threats []model.Threat
	for _, key := range keys {
		group := buckets[key]
		if len(group) < 5 {
			continue
		}

		locationSet := make(map[string]struct{})
		var locations []string
		for i := range group {
			if _, dup := locationSet[group[i].LocationID]; !dup {
				locationSet[group[i].LocationID] = struct{}{}
				locations = append(locations, group[i].LocationID)
			}
		}

		first, last := group[0].DetectedAt, group[0].DetectedAt
		for i := range group {
			if group[i].DetectedAt.Before(first) {
				first = group[i].DetectedAt
			}
			if group[i].DetectedAt.After(last) {
				last = group[i].DetectedAt
			}
		}

		threats = append(threats, model.Threat{
			ID:    model.ContentID("THREAT", string(model.ThreatCoordinatedAnomaly), key),
			Type:  model.ThreatCoordinatedAnomaly,
			Title: fmt.Sprintf("Coordinated Anomaly Detected on %s", key),
			Narrative: fmt.Sprintf("Detected %d simultaneous temporal shocks across multiple locations on %s. "+
				"This suggests coordinated activity.", len(group), key),
			SeverityLevel:     3,
			Confidence:        capConfidence(float64(len(group)) / 10),
			FirstDetected:     first,
			LastUpdated:       last,
			Status:            model.ThreatStatusActive,
			TensionIDs:        tensionIDs(group),
			SignatureIDs:      nil,
			AffectedLocations: capLocations(locations),
			GeographicSpread:  len(locationSet),
			TemporalSpanDays:  1,
			EstimatedEntities: float64(len(group) * 50),
		})
	}
	return threats
}

func tensionIDs(tensions []model.Tension) []string {
	n := len(tensions)
	if n > maxEvidencePerList {
		n = maxEvidencePerList
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = tensions[i].ID
	}
	return ids
}

func signatureIDs(signatures []model.Signature) []string {
	n := len(signatures)
	if n > maxEvidencePerList {
		n = maxEvidencePerList
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = signatures[i].ID
	}
	return ids
}

func capLocations(locations []string) []string {
	if len(locations) > maxAffectedLocations {
		return locations[:maxAffectedLocations]
	}
	return locations
}

func capConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
