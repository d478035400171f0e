// Package pattern mines the aggregated and daily datasets for recurring
// behavioral signatures: temporal spikes, ghost farms, and coordinated
// updates. Each heuristic is independent and gated by a minimum-occurrence
// threshold.
package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atlasengine/atlas-go/internal/anomaly"
	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

const maxInvolvedLocations = 20

// Miner applies the three signature heuristics.
type Miner struct {
	settings *conf.PatternSettings
	logger   *slog.Logger
}

// NewMiner creates a Miner with the given settings.
func NewMiner(settings *conf.PatternSettings) *Miner {
	return &Miner{
		settings: settings,
		logger:   logging.ForService("pattern"),
	}
}

// Mine runs all heuristics and returns the detected signatures plus the
// per-signature occurrence timeline (sorted, de-duplicated dates) used later
// for precedence inference.
func (m *Miner) Mine(locations []model.LocationRecord, daily []model.RawRecord, observedAt time.Time) ([]model.Signature, map[string][]time.Time) {
	if !m.settings.Enabled {
		m.logger.Info("pattern detection disabled")
		return nil, nil
	}

	var signatures []model.Signature
	signatures = append(signatures, m.temporalSpikes(locations, observedAt)...)
	signatures = append(signatures, m.ghostFarms(locations, observedAt)...)
	if len(daily) > 0 {
		signatures = append(signatures, m.coordinatedUpdates(daily)...)
	}

	occurrences := trackOccurrences(signatures, daily)

	m.logger.Info("pattern mining complete", "signatures", len(signatures))
	return signatures, occurrences
}

// temporalSpikes finds locations whose creation velocity exceeds the dataset
// mean by more than two standard deviations and emits one aggregate
// signature if enough locations qualify.
func (m *Miner) temporalSpikes(locations []model.LocationRecord, observedAt time.Time) []model.Signature {
	velocities := creationVelocities(locations)
	threshold := anomaly.Mean(velocities) + 2*anomaly.Std(velocities)

	var qualifying []model.LocationRecord
	for i := range locations {
		if locations[i].CreationVelocity > threshold {
			qualifying = append(qualifying, locations[i])
		}
	}
	if len(qualifying) < m.settings.MinOccurrences {
		return nil
	}

	return []model.Signature{{
		ID:   "SIGNATURE_TEMPORAL_SPIKE",
		Type: model.SignatureTemporalSpike,
		Description: fmt.Sprintf("Temporal spike pattern: %d locations with creation velocity > %.2f",
			len(qualifying), threshold),
		Hash:              locationSetHash(qualifying),
		FirstObserved:     observedAt,
		LastObserved:      observedAt,
		OccurrenceCount:   len(qualifying),
		LocationsInvolved: involvedIDs(qualifying),
		Confidence:        capConfidence(float64(len(qualifying)) / 50),
		Magnitude:         magnitudeRange(qualifying),
	}}
}

// ghostFarms finds locations with above-mean creation velocity but near-zero
// motion velocity.
func (m *Miner) ghostFarms(locations []model.LocationRecord, observedAt time.Time) []model.Signature {
	mean := anomaly.Mean(creationVelocities(locations))

	var qualifying []model.LocationRecord
	for i := range locations {
		if locations[i].CreationVelocity > mean && locations[i].MotionVelocity < 0.1 {
			qualifying = append(qualifying, locations[i])
		}
	}
	if len(qualifying) < m.settings.MinOccurrences {
		return nil
	}

	return []model.Signature{{
		ID:   "SIGNATURE_GHOST_FARM",
		Type: model.SignatureGhostFarmPattern,
		Description: fmt.Sprintf("Ghost farm pattern: %d locations with high creation but minimal motion",
			len(qualifying)),
		Hash:              locationSetHash(qualifying),
		FirstObserved:     observedAt,
		LastObserved:      observedAt,
		OccurrenceCount:   len(qualifying),
		LocationsInvolved: involvedIDs(qualifying),
		Confidence:        capConfidence(float64(len(qualifying)) / 30),
		Magnitude:         magnitudeRange(qualifying),
	}}
}

// coordinatedUpdates emits one signature per calendar date on which an
// unusually large share of locations were simultaneously active: more than
// 10 locations and more than 1.5x the average per-date location count.
func (m *Miner) coordinatedUpdates(daily []model.RawRecord) []model.Signature {
	byDate := make(map[time.Time][]*model.RawRecord)
	for i := range daily {
		byDate[daily[i].Date] = append(byDate[daily[i].Date], &daily[i])
	}
	if len(byDate) == 0 {
		return nil
	}

	var total int
	for _, rows := range byDate {
		total += len(rows)
	}
	avgPerDate := float64(total) / float64(len(byDate))

	dates := make([]time.Time, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var signatures []model.Signature
	for _, date := range dates {
		rows := byDate[date]
		if len(rows) <= 10 || float64(len(rows)) <= avgPerDate*1.5 {
			continue
		}

		involved := make([]string, 0, maxInvolvedLocations)
		for _, row := range rows {
			if len(involved) == maxInvolvedLocations {
				break
			}
			involved = append(involved, model.LocationID(row.Location))
		}

		signatures = append(signatures, model.Signature{
			ID:   "SIGNATURE_COORDINATED_" + date.Format("20060102"),
			Type: model.SignatureCoordinatedUpdate,
			Description: fmt.Sprintf("Coordinated update on %s: %d locations active simultaneously",
				date.Format("2006-01-02"), len(rows)),
			Hash:              hashString(date.Format(time.RFC3339)),
			FirstObserved:     date,
			LastObserved:      date,
			OccurrenceCount:   1,
			LocationsInvolved: involved,
			Confidence:        capConfidence(float64(len(rows)) / 50),
			PatternDate:       date.Format("2006-01-02"),
		})
	}
	return signatures
}

// trackOccurrences re-walks the daily records for each signature's involved
// locations and builds a sorted, de-duplicated occurrence-date timeline.
func trackOccurrences(signatures []model.Signature, daily []model.RawRecord) map[string][]time.Time {
	if len(signatures) == 0 {
		return nil
	}

	datesByLocation := make(map[string][]time.Time)
	for i := range daily {
		id := model.LocationID(daily[i].Location)
		datesByLocation[id] = append(datesByLocation[id], daily[i].Date)
	}

	occurrences := make(map[string][]time.Time, len(signatures))
	for i := range signatures {
		seen := make(map[time.Time]struct{})
		var dates []time.Time
		for _, locID := range signatures[i].LocationsInvolved {
			for _, date := range datesByLocation[locID] {
				if _, ok := seen[date]; ok {
					continue
				}
				seen[date] = struct{}{}
				dates = append(dates, date)
			}
		}
		sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })
		occurrences[signatures[i].ID] = dates
	}
	return occurrences
}

func creationVelocities(locations []model.LocationRecord) []float64 {
	velocities := make([]float64, len(locations))
	for i := range locations {
		velocities[i] = locations[i].CreationVelocity
	}
	return velocities
}

func involvedIDs(locations []model.LocationRecord) []string {
	n := len(locations)
	if n > maxInvolvedLocations {
		n = maxInvolvedLocations
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = locations[i].ID()
	}
	return ids
}

func magnitudeRange(locations []model.LocationRecord) *model.MagnitudeRange {
	if len(locations) == 0 {
		return nil
	}
	velocities := creationVelocities(locations)
	mr := &model.MagnitudeRange{
		Min:  velocities[0],
		Max:  velocities[0],
		Mean: anomaly.Mean(velocities),
	}
	for _, v := range velocities {
		if v < mr.Min {
			mr.Min = v
		}
		if v > mr.Max {
			mr.Max = v
		}
	}
	return mr
}

// locationSetHash produces the deterministic content hash of a signature
// from the first 10 qualifying location codes.
func locationSetHash(locations []model.LocationRecord) string {
	n := len(locations)
	if n > 10 {
		n = 10
	}
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		codes[i] = locations[i].Location
	}
	return hashString(strings.Join(codes, "|"))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func capConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
