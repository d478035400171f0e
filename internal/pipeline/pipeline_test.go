package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/artifacts"
	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/observability"
	"github.com/atlasengine/atlas-go/internal/state"
)

// writeFixtures lays out a small but complete extract set: twenty ordinary
// locations active on two dates, plus one farm-profile location with heavy
// creation and no motion.
func writeFixtures(t *testing.T, settings *conf.Settings) {
	t.Helper()

	var creation strings.Builder
	creation.WriteString("date,region,district,location,age_0_5,age_5_17,age_18_greater\n")
	var motion strings.Builder
	motion.WriteString("date,region,district,location,demo_age_5_17,demo_age_17_\n")

	for _, date := range []string{"01-01-2024", "02-01-2024"} {
		for i := 0; i < 20; i++ {
			loc := fmt.Sprintf("L%02d", i)
			fmt.Fprintf(&creation, "%s,NORTH,ALPHA,%s,2,3,%d\n", date, loc, 5+i%3)
			fmt.Fprintf(&motion, "%s,NORTH,ALPHA,%s,10,15\n", date, loc)
		}
		fmt.Fprintf(&creation, "%s,NORTH,ALPHA,FARM,100,200,700\n", date)
	}

	require.NoError(t, os.MkdirAll(settings.Data.CreationDir, 0o755))
	require.NoError(t, os.MkdirAll(settings.Data.MotionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(settings.Data.CreationDir, "creation.csv"), []byte(creation.String()), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(settings.Data.MotionDir, "motion.csv"), []byte(motion.String()), 0o644))
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	root := t.TempDir()
	return &conf.Settings{
		Data: conf.DataSettings{
			CreationDir: filepath.Join(root, "creation"),
			MotionDir:   filepath.Join(root, "motion"),
			MaxFiles:    3,
			DateFormat:  "02-01-2006",
		},
		Output: conf.OutputSettings{
			ProcessedPath: filepath.Join(root, "processed"),
		},
		Anomaly: conf.AnomalySettings{
			Enabled:       true,
			Contamination: 0.04,
			Estimators:    50,
			Seed:          42,
			DBSCAN:        conf.DBSCANSettings{Enabled: true, Eps: 0.5, MinSamples: 5},
		},
		Patterns: conf.PatternSettings{Enabled: true, MinOccurrences: 1},
		Graph:    conf.GraphSettings{Enabled: false, Workers: 2},
	}
}

func newTestPipeline(t *testing.T, settings *conf.Settings) *Pipeline {
	t.Helper()
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	p, err := New(settings, metrics, nil)
	require.NoError(t, err)
	return p
}

func TestRunEndToEnd(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)
	require.NoError(t, p.Run(context.Background()))

	// Every stage leaves a checkpoint behind.
	manager, err := state.NewManager(settings.Output.ProcessedPath)
	require.NoError(t, err)
	for stage := state.StageDataLoading; int(stage) <= state.StageCount; stage++ {
		assert.True(t, manager.Exists(stage), "checkpoint for stage %s", stage.Name())
	}

	st, err := manager.LoadState()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.NotEmpty(t, st.Metadata["run_id"])

	for _, name := range []string{
		artifacts.FileAnomalies, artifacts.FilePatterns, artifacts.FileLifecycles,
		artifacts.FileThreats, artifacts.FileGeographic, artifacts.FileSummary,
	} {
		_, err := os.Stat(filepath.Join(settings.Output.ProcessedPath, name))
		assert.NoError(t, err, name)
	}
}

func TestResumeFromCheckpoint(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)
	require.NoError(t, p.Run(context.Background()))

	manager := p.Manager()
	originalRunID := func() string {
		st, err := manager.LoadState()
		require.NoError(t, err)
		return st.Metadata["run_id"]
	}()

	// Drop everything from lifecycle tracking onward and resume.
	require.NoError(t, manager.Clear(state.StageLifecycleTracking))
	assert.Equal(t, state.StagePatternDetection, manager.Latest())

	resumed := newTestPipeline(t, settings)
	require.NoError(t, resumed.Resume(context.Background()))

	assert.Equal(t, state.StageSaveResults, manager.Latest())
	st, err := manager.LoadState()
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Equal(t, originalRunID, st.Metadata["run_id"], "resumed run keeps its identity")
}

func TestResumeCompletedRunIsNoOp(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)
	require.NoError(t, p.Run(context.Background()))

	resumed := newTestPipeline(t, settings)
	assert.NoError(t, resumed.Resume(context.Background()))
}

func TestResumeWithoutCheckpointsRunsFresh(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)
	require.NoError(t, p.Resume(context.Background()))

	st, err := p.Manager().LoadState()
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
}

func TestCheckpointWriteFailureDegradesRun(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)

	// A directory squatting on the stage-1 checkpoint path makes the atomic
	// rename fail. The run must finish degraded rather than abort.
	blocked := filepath.Join(settings.Output.ProcessedPath, "checkpoints", "stage_1_data_loading.json")
	require.NoError(t, os.MkdirAll(blocked, 0o755))

	p.runID = "degraded-run"
	p.startedAt = time.Now().UTC()
	require.NoError(t, p.execute(context.Background(), state.StageDataLoading, &payload{}))

	assert.True(t, p.degraded)
	assert.False(t, p.Manager().Exists(state.StageFeatureEngineering), "no checkpoints after the first failed write")
	assert.Equal(t, float64(state.StageCount), testutil.ToFloat64(p.metrics.CheckpointSkips))

	st, err := p.Manager().LoadState()
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)

	raw, err := os.ReadFile(filepath.Join(settings.Output.ProcessedPath, artifacts.FileSummary))
	require.NoError(t, err)
	var summary artifacts.Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.True(t, summary.Degraded)
}

func TestResumeSurfacesCorruptCheckpoint(t *testing.T) {
	settings := testSettings(t)
	writeFixtures(t, settings)

	p := newTestPipeline(t, settings)
	require.NoError(t, p.Run(context.Background()))

	// Damage the latest checkpoint. Resume must return the load error so the
	// operator can clear the bad checkpoint and rerun.
	corrupt := filepath.Join(settings.Output.ProcessedPath, "checkpoints", "stage_8_save_results.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a checkpoint"), 0o644))

	resumed := newTestPipeline(t, settings)
	err := resumed.Resume(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryState, errors.CategoryOf(err))
}

func TestRunFailsWithoutCreationData(t *testing.T) {
	settings := testSettings(t)
	// No fixtures written: data loading must fail and record failed state.

	p := newTestPipeline(t, settings)
	require.Error(t, p.Run(context.Background()))

	st, err := p.Manager().LoadState()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, int(state.StageDataLoading), st.CurrentStage)
	assert.Equal(t, state.Stage(0), p.Manager().Latest(), "no checkpoint from a failed first stage")
}
