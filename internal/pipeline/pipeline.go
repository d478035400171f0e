// Package pipeline orchestrates the Atlas batch run: eight stages executed in
// order, each checkpointed on completion so an interrupted run resumes from
// the last finished stage instead of starting over.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlasengine/atlas-go/internal/aggregate"
	"github.com/atlasengine/atlas-go/internal/anomaly"
	"github.com/atlasengine/atlas-go/internal/artifacts"
	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/datastore"
	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/features"
	"github.com/atlasengine/atlas-go/internal/graph"
	"github.com/atlasengine/atlas-go/internal/ingest"
	"github.com/atlasengine/atlas-go/internal/lifecycle"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
	"github.com/atlasengine/atlas-go/internal/observability"
	"github.com/atlasengine/atlas-go/internal/pattern"
	"github.com/atlasengine/atlas-go/internal/state"
	"github.com/atlasengine/atlas-go/internal/threat"
)

// payload is the checkpointed working set threaded between stages. It carries
// the fields of model.Result that the result schema itself keeps out of the
// artifact JSON (daily rows, occurrence timelines), so any stage can resume
// from disk alone.
type payload struct {
	Daily       []model.RawRecord      `json:"daily,omitempty"`
	Locations   []model.LocationRecord `json:"locations,omitempty"`
	Districts   []model.Rollup         `json:"districts,omitempty"`
	Regions     []model.Rollup         `json:"regions,omitempty"`
	Tensions    []model.Tension        `json:"tensions,omitempty"`
	Signatures  []model.Signature      `json:"signatures,omitempty"`
	Occurrences map[string][]time.Time `json:"occurrences,omitempty"`
	Lifecycles  []model.Lifecycle      `json:"lifecycles,omitempty"`
	Threats     []model.Threat         `json:"threats,omitempty"`
}

func (p *payload) result() *model.Result {
	return &model.Result{
		Daily:       p.Daily,
		Locations:   p.Locations,
		Districts:   p.Districts,
		Regions:     p.Regions,
		Tensions:    p.Tensions,
		Signatures:  p.Signatures,
		Occurrences: p.Occurrences,
		Lifecycles:  p.Lifecycles,
		Threats:     p.Threats,
	}
}

// Build wires a ready-to-run Pipeline from settings: metrics, the graph
// client when publication is enabled, and the checkpoint manager. The
// returned cleanup closes the graph connection and is safe to call always.
func Build(ctx context.Context, settings *conf.Settings) (*Pipeline, func(), error) {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, nil, err
	}

	var client graph.Upserter
	cleanup := func() {}
	if settings.Graph.Enabled {
		timeout := time.Duration(settings.Graph.TimeoutSeconds) * time.Second
		c, err := graph.NewClient(settings.Graph.URI, settings.Graph.Username, settings.Graph.Password, timeout)
		if err != nil {
			// Publication is best effort; a bad graph config degrades to a
			// local-only run rather than blocking the batch.
			logging.ForService("pipeline").Warn("graph client unavailable, publication will be skipped", "error", err)
		} else {
			client = c
			cleanup = func() { _ = c.Close(ctx) }
		}
	}

	p, err := New(settings, metrics, client)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// Pipeline runs the full batch. Construct with New, then call Run or Resume.
type Pipeline struct {
	settings *conf.Settings
	manager  *state.Manager
	metrics  *observability.Metrics
	logger   *slog.Logger

	// graphClient is optional; when nil (or publication is disabled) the
	// graph stage is a logged no-op.
	graphClient graph.Upserter

	runID     string
	startedAt time.Time
	degraded  bool

	graphPublished bool
	graphTally     *graph.Tally
}

// New creates a Pipeline. graphClient may be nil to skip publication.
func New(settings *conf.Settings, metrics *observability.Metrics, graphClient graph.Upserter) (*Pipeline, error) {
	manager, err := state.NewManager(settings.Output.ProcessedPath)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		settings:    settings,
		manager:     manager,
		metrics:     metrics,
		logger:      logging.ForService("pipeline"),
		graphClient: graphClient,
	}, nil
}

// Manager exposes the checkpoint manager for CLI inspection commands.
func (p *Pipeline) Manager() *state.Manager { return p.manager }

// Run executes a fresh batch from stage one, discarding any checkpoints left
// by previous runs.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.manager.Clear(0); err != nil {
		return err
	}
	p.runID = uuid.NewString()
	p.startedAt = time.Now().UTC()
	return p.execute(ctx, state.StageDataLoading, &payload{})
}

// Resume continues from the stage after the latest checkpoint. With no
// checkpoints present it behaves like Run.
func (p *Pipeline) Resume(ctx context.Context) error {
	latest := p.manager.Latest()
	if latest == 0 {
		p.logger.Info("no checkpoint found, starting fresh run")
		return p.Run(ctx)
	}

	p.runID = p.previousRunID()
	p.startedAt = time.Now().UTC()

	var pl payload
	if _, err := p.manager.LoadInto(latest, &pl); err != nil {
		return err
	}
	if latest >= state.Stage(state.StageCount) {
		p.logger.Info("run already completed, nothing to resume")
		return nil
	}
	p.logger.Info("resuming run",
		"run_id", p.runID,
		"completed_stage", int(latest),
		"next_stage", latest.Name())
	return p.execute(ctx, latest+1, &pl)
}

// previousRunID recovers the run ID from the state file so a resumed run
// stays attributable to its original batch.
func (p *Pipeline) previousRunID() string {
	st, err := p.manager.LoadState()
	if err == nil && st != nil && st.Metadata["run_id"] != "" {
		return st.Metadata["run_id"]
	}
	return uuid.NewString()
}

func (p *Pipeline) metadata() map[string]string {
	return map[string]string{"run_id": p.runID}
}

// execute runs stages from startStage through save-results, checkpointing
// after each. A stage failure records failed state and returns, leaving the
// previous checkpoint as the resume point.
func (p *Pipeline) execute(ctx context.Context, startStage state.Stage, pl *payload) error {
	steps := []struct {
		stage state.Stage
		run   func(context.Context, *payload) error
	}{
		{state.StageDataLoading, p.runDataLoading},
		{state.StageFeatureEngineering, p.runFeatureEngineering},
		{state.StageAnomalyDetection, p.runAnomalyDetection},
		{state.StagePatternDetection, p.runPatternDetection},
		{state.StageLifecycleTracking, p.runLifecycleTracking},
		{state.StageThreatInference, p.runThreatInference},
		{state.StageGraphPopulation, p.runGraphPopulation},
		{state.StageSaveResults, p.runSaveResults},
	}

	for _, step := range steps {
		if step.stage < startStage {
			continue
		}
		if err := ctx.Err(); err != nil {
			p.fail(step.stage, err)
			return err
		}

		p.logger.Info("stage starting", "stage", int(step.stage), "stage_name", step.stage.Name())
		if err := p.manager.SaveState(step.stage, state.StatusRunning, p.metadata()); err != nil {
			p.logger.Warn("pipeline state write failed", "error", err)
		}

		start := time.Now()
		if err := step.run(ctx, pl); err != nil {
			p.fail(step.stage, err)
			return errors.New(err).
				Component("pipeline").
				Category(errors.CategoryGeneric).
				Context("stage", step.stage.Name()).
				Build()
		}
		p.metrics.StageDuration.WithLabelValues(step.stage.Name()).Observe(time.Since(start).Seconds())
		p.checkpoint(step.stage, pl)
	}

	if err := p.manager.SaveState(state.StageSaveResults, state.StatusCompleted, p.metadata()); err != nil {
		p.logger.Warn("pipeline state write failed", "error", err)
	}
	p.logger.Info("pipeline completed",
		"run_id", p.runID,
		"duration", time.Since(p.startedAt).Round(time.Millisecond).String(),
		"degraded", p.degraded)
	return nil
}

func (p *Pipeline) fail(stage state.Stage, cause error) {
	p.logger.Error("stage failed", "stage", int(stage), "stage_name", stage.Name(), "error", cause)
	if err := p.manager.SaveState(stage, state.StatusFailed, p.metadata()); err != nil {
		p.logger.Warn("pipeline state write failed", "error", err)
	}
}

// checkpoint persists the stage snapshot. A write failure degrades the run
// instead of aborting it: the batch still completes, it just cannot resume
// past the last good checkpoint.
func (p *Pipeline) checkpoint(stage state.Stage, pl *payload) {
	if p.degraded {
		p.metrics.CheckpointSkips.Inc()
		return
	}
	if err := p.manager.Save(stage, pl, p.metadata()); err != nil {
		p.logger.Warn("checkpoint write failed, continuing without checkpoints",
			"stage", stage.Name(), "error", err)
		p.degraded = true
		p.metrics.CheckpointSkips.Inc()
		return
	}
	p.metrics.CheckpointWrites.Inc()
}

func (p *Pipeline) runDataLoading(_ context.Context, pl *payload) error {
	loader := ingest.NewLoader(&p.settings.Data)
	daily, err := loader.Load()
	if err != nil {
		return err
	}
	pl.Daily = daily
	p.metrics.RecordsIngested.Add(float64(len(daily)))
	return nil
}

func (p *Pipeline) runFeatureEngineering(_ context.Context, pl *payload) error {
	locations, districts, regions := aggregate.Geographic(pl.Daily)
	pl.Locations = features.Engineer(locations)
	pl.Districts = districts
	pl.Regions = regions
	p.logger.Info("features engineered",
		"locations", len(pl.Locations),
		"districts", len(districts),
		"regions", len(regions))
	return nil
}

func (p *Pipeline) runAnomalyDetection(_ context.Context, pl *payload) error {
	if !p.settings.Anomaly.Enabled {
		p.logger.Info("anomaly detection disabled, skipping")
		pl.Tensions = nil
		return nil
	}
	detector := anomaly.NewDetector(&p.settings.Anomaly)
	pl.Tensions = detector.Detect(pl.Locations, time.Now().UTC())
	p.metrics.EntitiesDetected.WithLabelValues("tension").Add(float64(len(pl.Tensions)))
	p.logger.Info("tensions detected", "count", len(pl.Tensions))
	return nil
}

func (p *Pipeline) runPatternDetection(_ context.Context, pl *payload) error {
	if !p.settings.Patterns.Enabled {
		p.logger.Info("pattern detection disabled, skipping")
		pl.Signatures = nil
		pl.Occurrences = nil
		return nil
	}
	miner := pattern.NewMiner(&p.settings.Patterns)
	pl.Signatures, pl.Occurrences = miner.Mine(pl.Locations, pl.Daily, time.Now().UTC())
	p.metrics.EntitiesDetected.WithLabelValues("signature").Add(float64(len(pl.Signatures)))
	p.logger.Info("signatures detected", "count", len(pl.Signatures))
	return nil
}

func (p *Pipeline) runLifecycleTracking(_ context.Context, pl *payload) error {
	pl.Lifecycles = lifecycle.Track(pl.Daily)
	p.metrics.EntitiesDetected.WithLabelValues("lifecycle").Add(float64(len(pl.Lifecycles)))
	p.logger.Info("lifecycles tracked", "count", len(pl.Lifecycles))
	return nil
}

func (p *Pipeline) runThreatInference(_ context.Context, pl *payload) error {
	pl.Threats = threat.Infer(pl.Tensions, pl.Signatures, time.Now().UTC())
	p.metrics.EntitiesDetected.WithLabelValues("threat").Add(float64(len(pl.Threats)))
	p.logger.Info("threats inferred", "count", len(pl.Threats))
	return nil
}

// runGraphPopulation is best effort. An unreachable or absent graph store
// never fails the batch; the artifacts on disk remain the system of record.
func (p *Pipeline) runGraphPopulation(ctx context.Context, pl *payload) error {
	if !p.settings.Graph.Enabled || p.graphClient == nil {
		p.logger.Info("graph publication disabled, skipping")
		return nil
	}
	publisher := graph.NewPublisher(&p.settings.Graph, p.graphClient)
	tally, err := publisher.Publish(ctx, pl.result())
	if err != nil {
		p.logger.Warn("graph publication skipped", "error", err)
		return nil
	}
	p.graphPublished = true
	p.graphTally = tally
	p.metrics.GraphEntities.Add(float64(tally.Entities.Load()))
	p.metrics.GraphEdges.Add(float64(tally.Relationships.Load()))
	p.metrics.GraphFailures.Add(float64(tally.Failures.Load()))
	return nil
}

func (p *Pipeline) runSaveResults(_ context.Context, pl *payload) error {
	writer, err := artifacts.NewWriter(p.settings.Output.ProcessedPath)
	if err != nil {
		return err
	}
	result := pl.result()

	if err := writer.WriteAll(result, p.summary(pl)); err != nil {
		return err
	}

	if p.settings.Output.SQLite.Enabled {
		store := datastore.New(p.settings.Output.SQLite.Path)
		if err := store.Open(); err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveResults(result); err != nil {
			return err
		}
		p.logger.Info("artifact store updated", "path", p.settings.Output.SQLite.Path)
	}
	return nil
}

func (p *Pipeline) summary(pl *payload) *artifacts.Summary {
	completed := time.Now().UTC()
	s := &artifacts.Summary{
		RunID:           p.runID,
		StartedAt:       p.startedAt,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(p.startedAt).Seconds(),
		RecordsIngested: len(pl.Daily),
		Locations:       len(pl.Locations),
		Districts:       len(pl.Districts),
		Regions:         len(pl.Regions),
		Tensions:        len(pl.Tensions),
		Signatures:      len(pl.Signatures),
		Lifecycles:      len(pl.Lifecycles),
		Threats:         len(pl.Threats),
		GraphPublished:  p.graphPublished,
		Degraded:        p.degraded,
	}
	if p.graphTally != nil {
		s.GraphEntities = p.graphTally.Entities.Load()
		s.GraphRelationships = p.graphTally.Relationships.Load()
		s.GraphFailures = p.graphTally.Failures.Load()
	}
	return s
}
