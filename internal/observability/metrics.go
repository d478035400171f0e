// Package observability provides prometheus metrics for the pipeline.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the metric collectors for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration    *prometheus.HistogramVec
	RecordsIngested  prometheus.Counter
	EntitiesDetected *prometheus.CounterVec
	GraphEntities    prometheus.Counter
	GraphEdges       prometheus.Counter
	GraphFailures    prometheus.Counter
	CheckpointWrites prometheus.Counter
	CheckpointSkips  prometheus.Counter
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlas_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_records_ingested_total",
			Help: "Raw daily records ingested after merge",
		}),
		EntitiesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_entities_detected_total",
			Help: "Entities produced per kind (tension, signature, lifecycle, threat)",
		}, []string{"kind"}),
		GraphEntities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_graph_entities_total",
			Help: "Entities upserted to the graph store",
		}),
		GraphEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_graph_relationships_total",
			Help: "Relationships upserted to the graph store",
		}),
		GraphFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_graph_failures_total",
			Help: "Per-entity and per-edge publication failures",
		}),
		CheckpointWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_checkpoint_writes_total",
			Help: "Checkpoints written successfully",
		}),
		CheckpointSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_checkpoint_skips_total",
			Help: "Checkpoint writes skipped after failure (degraded mode)",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"stage_duration":    m.StageDuration,
		"records_ingested":  m.RecordsIngested,
		"entities_detected": m.EntitiesDetected,
		"graph_entities":    m.GraphEntities,
		"graph_edges":       m.GraphEdges,
		"graph_failures":    m.GraphFailures,
		"checkpoint_writes": m.CheckpointWrites,
		"checkpoint_skips":  m.CheckpointSkips,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register %s metrics: %w", name, err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry for embedding in a scrape
// endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
