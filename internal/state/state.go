// Package state persists per-stage checkpoints and the pipeline status file
// so a batch run can resume after partial failure. Checkpoints are written
// atomically (temp file + rename); a partial-stage checkpoint is never
// observable on disk.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/logging"
)

// Stage identifies one pipeline stage.
type Stage int

const (
	StageDataLoading Stage = iota + 1
	StageFeatureEngineering
	StageAnomalyDetection
	StagePatternDetection
	StageLifecycleTracking
	StageThreatInference
	StageGraphPopulation
	StageSaveResults

	StageCount = int(StageSaveResults)
)

var stageNames = map[Stage]string{
	StageDataLoading:        "data_loading",
	StageFeatureEngineering: "feature_engineering",
	StageAnomalyDetection:   "anomaly_detection",
	StagePatternDetection:   "pattern_detection",
	StageLifecycleTracking:  "lifecycle_tracking",
	StageThreatInference:    "threat_inference",
	StageGraphPopulation:    "graph_population",
	StageSaveResults:        "save_results",
}

// Name returns the stable stage name used in checkpoint files.
func (s Stage) Name() string {
	return stageNames[s]
}

// Status is the pipeline-level run status, the single source of truth for
// whether a run can be resumed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Checkpoint is the durable snapshot of one stage's output.
type Checkpoint struct {
	Stage     int               `json:"stage"`
	StageName string            `json:"stage_name"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata"`
}

// PipelineState is the single mutable record for a whole run.
type PipelineState struct {
	CurrentStage int               `json:"current_stage"`
	Status       Status            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata"`
}

// ErrNoCheckpoint is returned by Load when the stage has no checkpoint.
var ErrNoCheckpoint = errors.NewStd("checkpoint absent")

// Manager owns the checkpoint directory and the pipeline state file.
type Manager struct {
	checkpointDir string
	stateFile     string
	logger        *slog.Logger
}

// NewManager creates a Manager rooted at processedPath, creating the
// checkpoint directory if needed.
func NewManager(processedPath string) (*Manager, error) {
	checkpointDir := filepath.Join(processedPath, "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("state").
			Category(errors.CategoryFileIO).
			Context("dir", checkpointDir).
			Build()
	}
	return &Manager{
		checkpointDir: checkpointDir,
		stateFile:     filepath.Join(processedPath, "pipeline_state.json"),
		logger:        logging.ForService("state"),
	}, nil
}

func (m *Manager) checkpointPath(stage Stage) string {
	return filepath.Join(m.checkpointDir, fmt.Sprintf("stage_%d_%s.json", int(stage), stage.Name()))
}

// Save overwrites the checkpoint for stage atomically. The payload must be
// JSON-marshalable.
func (m *Manager) Save(stage Stage, payload any, metadata map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("stage", int(stage)).
			Build()
	}
	cp := Checkpoint{
		Stage:     int(stage),
		StageName: stage.Name(),
		Timestamp: time.Now().UTC(),
		Data:      data,
		Metadata:  metadata,
	}
	if cp.Metadata == nil {
		cp.Metadata = map[string]string{}
	}
	raw, err := json.MarshalIndent(&cp, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("stage", int(stage)).
			Build()
	}
	if err := writeAtomic(m.checkpointPath(stage), raw); err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryFileIO).
			Context("stage", int(stage)).
			Build()
	}
	m.logger.Info("checkpoint saved", "stage", int(stage), "stage_name", stage.Name())
	return nil
}

// Load returns the last saved checkpoint for stage, or ErrNoCheckpoint.
func (m *Manager) Load(stage Stage) (*Checkpoint, error) {
	raw, err := os.ReadFile(m.checkpointPath(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, errors.New(err).
			Component("state").
			Category(errors.CategoryFileIO).
			Context("stage", int(stage)).
			Build()
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("stage", int(stage)).
			Build()
	}
	m.logger.Info("checkpoint loaded", "stage", int(stage), "stage_name", stage.Name())
	return &cp, nil
}

// LoadInto loads the checkpoint for stage and unmarshals its payload into
// out.
func (m *Manager) LoadInto(stage Stage, out any) (*Checkpoint, error) {
	cp, err := m.Load(stage)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cp.Data, out); err != nil {
		return nil, errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("stage", int(stage)).
			Build()
	}
	return cp, nil
}

// Exists reports whether stage has a checkpoint on disk.
func (m *Manager) Exists(stage Stage) bool {
	_, err := os.Stat(m.checkpointPath(stage))
	return err == nil
}

// Latest returns the highest stage number with an existing checkpoint, or 0
// when none exist.
func (m *Manager) Latest() Stage {
	for stage := Stage(StageCount); stage >= StageDataLoading; stage-- {
		if m.Exists(stage) {
			return stage
		}
	}
	return 0
}

// List returns the checkpoints present on disk in stage order.
func (m *Manager) List() []Checkpoint {
	var out []Checkpoint
	for stage := StageDataLoading; int(stage) <= StageCount; stage++ {
		cp, err := m.Load(stage)
		if err != nil {
			continue
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Clear removes all checkpoints at or after fromStage. Pass 0 to remove all
// checkpoints.
func (m *Manager) Clear(fromStage Stage) error {
	start := fromStage
	if start < StageDataLoading {
		start = StageDataLoading
	}
	for stage := start; int(stage) <= StageCount; stage++ {
		err := os.Remove(m.checkpointPath(stage))
		if err != nil && !os.IsNotExist(err) {
			return errors.New(err).
				Component("state").
				Category(errors.CategoryFileIO).
				Context("stage", int(stage)).
				Build()
		}
	}
	if fromStage <= StageDataLoading {
		m.logger.Info("all checkpoints cleared")
	} else {
		m.logger.Info("checkpoints cleared", "from_stage", int(fromStage))
	}
	return nil
}

// SaveState persists the pipeline-level state record.
func (m *Manager) SaveState(currentStage Stage, status Status, metadata map[string]string) error {
	st := PipelineState{
		CurrentStage: int(currentStage),
		Status:       status,
		Timestamp:    time.Now().UTC(),
		Metadata:     metadata,
	}
	if st.Metadata == nil {
		st.Metadata = map[string]string{}
	}
	raw, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return errors.New(err).Component("state").Category(errors.CategoryState).Build()
	}
	if err := writeAtomic(m.stateFile, raw); err != nil {
		return errors.New(err).Component("state").Category(errors.CategoryFileIO).Build()
	}
	return nil
}

// LoadState returns the pipeline-level state, or nil when no run has been
// recorded yet.
func (m *Manager) LoadState() (*PipelineState, error) {
	raw, err := os.ReadFile(m.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).Component("state").Category(errors.CategoryFileIO).Build()
	}
	var st PipelineState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.New(err).Component("state").Category(errors.CategoryState).Build()
	}
	return &st, nil
}

// writeAtomic writes data to path via a temp file and rename, so readers
// never observe a torn file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
