package graph

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlasengine/atlas-go/internal/anomaly"
	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

// Graph entity and relationship type names.
const (
	EntityGeographic = "GeographicSoul"
	EntityTension    = "SystemicTension"
	EntitySignature  = "BehavioralSignature"
	EntityLifecycle  = "IdentityLifecycle"
	EntityThreat     = "EmergentThreat"

	RelLocatedIn   = "LOCATED_IN"
	RelExperiences = "EXPERIENCES"
	RelManifests   = "MANIFESTS"
	RelBornIn      = "BORN_IN"
	RelReveals     = "REVEALS"
	RelSuggests    = "SUGGESTS"
	RelEchoes      = "ECHOES"
	RelPrecedes    = "PRECEDES"
)

const maxManifestsEdges = 10

// ErrUnhealthy is returned when the graph store fails its health check.
var ErrUnhealthy = errors.NewStd("graph store is not healthy")

// Tally counts publication outcomes. Failures are per-entity and per-edge;
// they never abort the batch.
type Tally struct {
	Entities      atomic.Int64
	Relationships atomic.Int64
	Failures      atomic.Int64
}

// Publisher translates pipeline results into ordered upsert calls against
// the graph collaborator. Within each phase calls run with bounded
// concurrency; phases run in order so a node exists before any edge that
// references it.
type Publisher struct {
	settings *conf.GraphSettings
	client   Upserter
	logger   *slog.Logger
}

// NewPublisher creates a Publisher over the given collaborator.
func NewPublisher(settings *conf.GraphSettings, client Upserter) *Publisher {
	return &Publisher{
		settings: settings,
		client:   client,
		logger:   logging.ForService("graph"),
	}
}

// Publish pushes the full result set to the graph store. It returns
// ErrUnhealthy without publishing anything when the store fails its health
// check; all other failures are tallied and skipped.
func (p *Publisher) Publish(ctx context.Context, result *model.Result) (*Tally, error) {
	if !p.client.Health(ctx) {
		return nil, errors.New(ErrUnhealthy).
			Component("graph").
			Category(errors.CategoryGraph).
			Build()
	}

	tally := &Tally{}

	p.publishHierarchy(ctx, result, tally)
	p.publishTensions(ctx, result.Tensions, tally)
	p.publishSignatures(ctx, result.Signatures, tally)
	p.publishLifecycles(ctx, result.Lifecycles, tally)
	p.publishThreats(ctx, result.Threats, tally)
	p.publishEchoes(ctx, result.Locations, tally)
	p.publishPrecedence(ctx, result.Occurrences, tally)

	p.logger.Info("graph population complete",
		"entities", tally.Entities.Load(),
		"relationships", tally.Relationships.Load(),
		"failures", tally.Failures.Load())
	return tally, nil
}

// forEach runs fn for every index in [0, n) with bounded concurrency.
// Individual failures are already tallied inside fn, so the group never
// carries an error.
func (p *Publisher) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Publisher) upsertEntity(ctx context.Context, tally *Tally, entityType, id string, props map[string]any) bool {
	if err := p.client.UpsertEntity(ctx, entityType, id, props); err != nil {
		p.logger.Warn("entity upsert failed, skipping", "type", entityType, "id", id, "error", err)
		tally.Failures.Add(1)
		return false
	}
	tally.Entities.Add(1)
	return true
}

func (p *Publisher) upsertRelationship(ctx context.Context, tally *Tally, relType, fromID, fromType, toID, toType string, props map[string]any) {
	if err := p.client.UpsertRelationship(ctx, relType, fromID, fromType, toID, toType, props); err != nil {
		p.logger.Warn("relationship upsert failed, skipping", "type", relType, "from", fromID, "to", toID, "error", err)
		tally.Failures.Add(1)
		return
	}
	tally.Relationships.Add(1)
}

// publishHierarchy creates the geographic nodes top-down and then the
// containment edges.
func (p *Publisher) publishHierarchy(ctx context.Context, result *model.Result, tally *Tally) {
	p.forEach(ctx, len(result.Regions), func(ctx context.Context, i int) {
		r := &result.Regions[i]
		p.upsertEntity(ctx, tally, EntityGeographic, model.RegionID(r.Region), map[string]any{
			"name":              r.Region,
			"type":              "REGION",
			"total_creation":    r.TotalCreation,
			"total_motion":      r.TotalMotion,
			"total_persistence": r.TotalPersistence,
			"days_active":       r.DaysActive,
		})
	})

	p.forEach(ctx, len(result.Districts), func(ctx context.Context, i int) {
		d := &result.Districts[i]
		p.upsertEntity(ctx, tally, EntityGeographic, model.DistrictID(d.Region, d.District), map[string]any{
			"name":              d.District,
			"type":              "DISTRICT",
			"region":            d.Region,
			"total_creation":    d.TotalCreation,
			"total_motion":      d.TotalMotion,
			"total_persistence": d.TotalPersistence,
			"days_active":       d.DaysActive,
		})
	})

	p.forEach(ctx, len(result.Locations), func(ctx context.Context, i int) {
		loc := &result.Locations[i]
		p.upsertEntity(ctx, tally, EntityGeographic, loc.ID(), map[string]any{
			"name":                  loc.Location,
			"type":                  "LOCATION",
			"region":                loc.Region,
			"district":              loc.District,
			"total_creation":        loc.TotalCreation,
			"total_motion":          loc.TotalMotion,
			"total_persistence":     loc.TotalPersistence,
			"days_active":           loc.DaysActive,
			"creation_velocity":     loc.CreationVelocity,
			"motion_velocity":       loc.MotionVelocity,
			"persistence_velocity":  loc.PersistenceVelocity,
			"motion_intensity":      loc.MotionIntensity,
			"persistence_intensity": loc.PersistenceIntensity,
			"child_ratio":           loc.ChildRatio,
			"youth_ratio":           loc.YouthRatio,
			"adult_ratio":           loc.AdultRatio,
			"archetype":             string(loc.Archetype),
		})
	})

	// Containment edges after all hierarchy nodes exist.
	p.forEach(ctx, len(result.Locations), func(ctx context.Context, i int) {
		loc := &result.Locations[i]
		p.upsertRelationship(ctx, tally, RelLocatedIn,
			loc.ID(), EntityGeographic,
			model.DistrictID(loc.Region, loc.District), EntityGeographic, nil)
	})
	p.forEach(ctx, len(result.Districts), func(ctx context.Context, i int) {
		d := &result.Districts[i]
		p.upsertRelationship(ctx, tally, RelLocatedIn,
			model.DistrictID(d.Region, d.District), EntityGeographic,
			model.RegionID(d.Region), EntityGeographic, nil)
	})
}

func (p *Publisher) publishTensions(ctx context.Context, tensions []model.Tension, tally *Tally) {
	p.forEach(ctx, len(tensions), func(ctx context.Context, i int) {
		t := &tensions[i]
		ok := p.upsertEntity(ctx, tally, EntityTension, t.ID, map[string]any{
			"tension_type":     string(t.Type),
			"description":      t.Description,
			"location_id":      t.LocationID,
			"detected_at":      t.DetectedAt.Format(time.RFC3339),
			"severity":         t.Severity,
			"z_score":          t.ZScore,
			"observed_value":   t.ObservedValue,
			"expected_value":   t.ExpectedValue,
			"detection_method": t.DetectionMethod,
		})
		if !ok {
			return
		}
		p.upsertRelationship(ctx, tally, RelExperiences,
			t.LocationID, EntityGeographic, t.ID, EntityTension,
			map[string]any{"detected_at": t.DetectedAt.Format(time.RFC3339)})
	})
}

func (p *Publisher) publishSignatures(ctx context.Context, signatures []model.Signature, tally *Tally) {
	p.forEach(ctx, len(signatures), func(ctx context.Context, i int) {
		s := &signatures[i]
		ok := p.upsertEntity(ctx, tally, EntitySignature, s.ID, map[string]any{
			"signature_type":   string(s.Type),
			"description":      s.Description,
			"signature_hash":   s.Hash,
			"first_observed":   s.FirstObserved.Format(time.RFC3339),
			"last_observed":    s.LastObserved.Format(time.RFC3339),
			"occurrence_count": s.OccurrenceCount,
			"confidence_score": s.Confidence,
		})
		if !ok {
			return
		}
		edges := s.LocationsInvolved
		if len(edges) > maxManifestsEdges {
			edges = edges[:maxManifestsEdges]
		}
		for _, locID := range edges {
			p.upsertRelationship(ctx, tally, RelManifests,
				locID, EntityGeographic, s.ID, EntitySignature,
				map[string]any{
					"first_observed":   s.FirstObserved.Format(time.RFC3339),
					"last_observed":    s.LastObserved.Format(time.RFC3339),
					"confidence_score": s.Confidence,
				})
		}
	})
}

func (p *Publisher) publishLifecycles(ctx context.Context, lifecycles []model.Lifecycle, tally *Tally) {
	p.forEach(ctx, len(lifecycles), func(ctx context.Context, i int) {
		l := &lifecycles[i]
		ok := p.upsertEntity(ctx, tally, EntityLifecycle, l.ID, map[string]any{
			"origin_location_id":            l.OriginLocationID,
			"birth_date":                    l.BirthDate.Format(time.RFC3339),
			"cohort_size":                   l.CohortSize,
			"subsequent_motion_events":      l.SubsequentMotion,
			"subsequent_persistence_events": l.SubsequentPersists,
			"days_since_birth":              l.DaysSinceBirth,
			"motion_frequency":              l.MotionFrequency,
			"lifecycle_stage":               string(l.Stage),
		})
		if !ok {
			return
		}
		p.upsertRelationship(ctx, tally, RelBornIn,
			l.ID, EntityLifecycle, l.OriginLocationID, EntityGeographic,
			map[string]any{
				"birth_date":  l.BirthDate.Format(time.RFC3339),
				"cohort_size": l.CohortSize,
			})
	})
}

func (p *Publisher) publishThreats(ctx context.Context, threats []model.Threat, tally *Tally) {
	p.forEach(ctx, len(threats), func(ctx context.Context, i int) {
		t := &threats[i]
		ok := p.upsertEntity(ctx, tally, EntityThreat, t.ID, map[string]any{
			"threat_type":                 string(t.Type),
			"title":                       t.Title,
			"narrative":                   t.Narrative,
			"severity_level":              t.SeverityLevel,
			"confidence":                  t.Confidence,
			"first_detected":              t.FirstDetected.Format(time.RFC3339),
			"last_updated":                t.LastUpdated.Format(time.RFC3339),
			"status":                      string(t.Status),
			"affected_locations":          t.AffectedLocations,
			"geographic_spread":           t.GeographicSpread,
			"temporal_span_days":          t.TemporalSpanDays,
			"estimated_entities_involved": t.EstimatedEntities,
		})
		if !ok {
			return
		}
		weight := 1.0
		if len(t.TensionIDs) > 0 {
			weight = 1.0 / float64(len(t.TensionIDs))
		}
		for _, tensionID := range t.TensionIDs {
			p.upsertRelationship(ctx, tally, RelReveals,
				tensionID, EntityTension, t.ID, EntityThreat,
				map[string]any{"contribution_weight": weight})
		}
		for _, signatureID := range t.SignatureIDs {
			p.upsertRelationship(ctx, tally, RelSuggests,
				signatureID, EntitySignature, t.ID, EntityThreat,
				map[string]any{"relevance_score": t.Confidence})
		}
	})
}

// publishEchoes links geographically similar locations: cosine similarity
// over standardized feature vectors at or above the configured threshold,
// capped to the first SimilarityMaxNodes locations and SimilarityMaxEdges
// edges for cost control. Edge selection is order-dependent, so this phase
// runs sequentially.
func (p *Publisher) publishEchoes(ctx context.Context, locations []model.LocationRecord, tally *Tally) {
	n := len(locations)
	if n > p.settings.SimilarityMaxNodes {
		n = p.settings.SimilarityMaxNodes
	}
	if n < 2 {
		return
	}

	scaled := anomaly.Standardize(anomaly.FeatureMatrix(locations))

	edges := 0
	for i := 0; i < n && edges < p.settings.SimilarityMaxEdges; i++ {
		for j := i + 1; j < n && edges < p.settings.SimilarityMaxEdges; j++ {
			similarity := cosineSimilarity(scaled[i], scaled[j])
			if similarity < p.settings.SimilarityThreshold {
				continue
			}
			p.upsertRelationship(ctx, tally, RelEchoes,
				locations[i].ID(), EntityGeographic,
				locations[j].ID(), EntityGeographic,
				map[string]any{
					"similarity_score":      similarity,
					"similarity_dimensions": anomaly.FeatureNames,
				})
			edges++
		}
	}
	p.logger.Info("similarity edges published", "edges", edges)
}

// publishPrecedence links signatures whose occurrence timelines show one
// consistently preceding another within the configured window: at least two
// qualifying date pairs, lag = average day gap.
func (p *Publisher) publishPrecedence(ctx context.Context, occurrences map[string][]time.Time, tally *Tally) {
	ids := make([]string, 0, len(occurrences))
	for id := range occurrences {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	window := float64(p.settings.PrecedenceWindow)
	edges := 0
	for i := 0; i < len(ids) && edges < p.settings.PrecedenceMaxEdges; i++ {
		for j := i + 1; j < len(ids) && edges < p.settings.PrecedenceMaxEdges; j++ {
			first, second := occurrences[ids[i]], occurrences[ids[j]]
			if len(first) == 0 || len(second) == 0 {
				continue
			}

			var lags []float64
			for _, d1 := range first {
				for _, d2 := range second {
					if !d2.After(d1) {
						continue
					}
					lag := d2.Sub(d1).Hours() / 24
					if lag <= window {
						lags = append(lags, lag)
					}
				}
			}
			if len(lags) < 2 {
				continue
			}

			var sum float64
			for _, lag := range lags {
				sum += lag
			}
			avgLag := sum / float64(len(lags))
			confidence := float64(len(lags)) / 5
			if confidence > 1 {
				confidence = 1
			}

			p.upsertRelationship(ctx, tally, RelPrecedes,
				ids[i], EntitySignature, ids[j], EntitySignature,
				map[string]any{
					"lag_days":   int(avgLag),
					"confidence": confidence,
				})
			edges++
		}
	}
	p.logger.Info("precedence edges published", "edges", edges)
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for k := range a {
		dot += a[k] * b[k]
		normA += a[k] * a[k]
		normB += b[k] * b[k]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
