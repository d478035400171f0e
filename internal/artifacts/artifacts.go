// Package artifacts writes the processed outputs of a pipeline run: the JSON
// entity files consumed downstream, the geographic parquet rollup, and a
// processing summary. Files are written atomically so a crashed run never
// leaves a truncated artifact behind.
package artifacts

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

// Artifact file names under the processed output directory.
const (
	FileAnomalies  = "anomalies.json"
	FilePatterns   = "patterns.json"
	FileLifecycles = "lifecycles.json"
	FileThreats    = "threats.json"
	FileGeographic = "geographic_data.parquet"
	FileSummary    = "processing_summary.json"
)

// Summary is the run-level accounting written at the end of save-results.
type Summary struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	RecordsIngested int `json:"records_ingested"`
	Locations       int `json:"locations"`
	Districts       int `json:"districts"`
	Regions         int `json:"regions"`
	Tensions        int `json:"tensions_detected"`
	Signatures      int `json:"signatures_detected"`
	Lifecycles      int `json:"lifecycles_tracked"`
	Threats         int `json:"threats_inferred"`

	GraphPublished     bool  `json:"graph_published"`
	GraphEntities      int64 `json:"graph_entities"`
	GraphRelationships int64 `json:"graph_relationships"`
	GraphFailures      int64 `json:"graph_failures"`
	Degraded           bool  `json:"degraded"`
}

// Writer persists artifacts under a single output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("artifacts").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return &Writer{dir: dir, logger: logging.ForService("artifacts")}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteAll writes every artifact for the run. Threats arrive pre-sorted by
// severity; order is preserved on disk.
func (w *Writer) WriteAll(result *model.Result, summary *Summary) error {
	if err := w.writeJSON(FileAnomalies, result.Tensions); err != nil {
		return err
	}
	if err := w.writeJSON(FilePatterns, result.Signatures); err != nil {
		return err
	}
	if err := w.writeJSON(FileLifecycles, result.Lifecycles); err != nil {
		return err
	}
	if err := w.writeJSON(FileThreats, result.Threats); err != nil {
		return err
	}
	if err := w.WriteGeographic(result.Locations); err != nil {
		return err
	}
	if err := w.WriteSummary(summary); err != nil {
		return err
	}
	w.logger.Info("artifacts written",
		"dir", w.dir,
		"tensions", len(result.Tensions),
		"signatures", len(result.Signatures),
		"lifecycles", len(result.Lifecycles),
		"threats", len(result.Threats))
	return nil
}

// WriteGeographic writes the location rollup as a parquet file.
func (w *Writer) WriteGeographic(locations []model.LocationRecord) error {
	path := filepath.Join(w.dir, FileGeographic)
	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return w.fileErr(err, path)
	}
	tmpName := tmp.Name()

	pw := parquet.NewGenericWriter[model.LocationRecord](tmp)
	if _, err := pw.Write(locations); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return w.fileErr(err, path)
	}
	if err := pw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return w.fileErr(err, path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return w.fileErr(err, path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return w.fileErr(err, path)
	}
	return nil
}

// WriteSummary writes the processing summary file.
func (w *Writer) WriteSummary(summary *Summary) error {
	return w.writeJSON(FileSummary, summary)
}

func (w *Writer) writeJSON(name string, v any) error {
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("artifacts").
			Category(errors.CategoryFileIO).
			Context("file", name).
			Build()
	}
	if err := writeAtomic(path, data); err != nil {
		return w.fileErr(err, path)
	}
	return nil
}

func (w *Writer) fileErr(err error, path string) error {
	return errors.New(err).
		Component("artifacts").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

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
