// Package ingest loads the raw per-date per-location event extracts and
// outer-merges the three categories (creation, motion, persistence) into one
// zero-filled daily dataset.
package ingest

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/errors"
	"github.com/atlasengine/atlas-go/internal/logging"
	"github.com/atlasengine/atlas-go/internal/model"
)

// ErrNoCreationData is returned when no readable creation extract exists.
// Creation is the primary category; without it the pipeline cannot run.
var ErrNoCreationData = errors.NewStd("no creation data files found")

// Category identifies which extract a file belongs to.
type Category int

const (
	CategoryCreation Category = iota
	CategoryMotion
	CategoryPersistence
)

func (c Category) String() string {
	switch c {
	case CategoryCreation:
		return "creation"
	case CategoryMotion:
		return "motion"
	case CategoryPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

type mergeKey struct {
	date     time.Time
	region   string
	district string
	location string
}

// Loader reads CSV extracts per the data settings.
type Loader struct {
	settings *conf.DataSettings
	logger   *slog.Logger
}

// NewLoader creates a Loader for the given data settings.
func NewLoader(settings *conf.DataSettings) *Loader {
	return &Loader{
		settings: settings,
		logger:   logging.ForService("ingest"),
	}
}

// Load reads all three categories and returns the merged daily dataset.
// Missing motion or persistence inputs degrade to zero-filled columns; zero
// readable creation files are fatal.
func (l *Loader) Load() ([]model.RawRecord, error) {
	merged := make(map[mergeKey]*model.RawRecord)

	creationFiles, err := l.loadCategory(CategoryCreation, l.settings.CreationDir, merged)
	if err != nil {
		return nil, err
	}
	if creationFiles == 0 {
		return nil, errors.New(ErrNoCreationData).
			Component("ingest").
			Category(errors.CategoryIngest).
			Context("dir", l.settings.CreationDir).
			Build()
	}

	// Secondary categories are optional.
	if _, err := l.loadCategory(CategoryMotion, l.settings.MotionDir, merged); err != nil {
		return nil, err
	}
	if _, err := l.loadCategory(CategoryPersistence, l.settings.PersistenceDir, merged); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(merged))
	for _, rec := range merged {
		records = append(records, *rec)
	}
	// Deterministic order so downstream stages and checkpoints are stable.
	sort.Slice(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.District != b.District {
			return a.District < b.District
		}
		return a.Location < b.Location
	})

	l.logger.Info("datasets merged", "rows", len(records))
	return records, nil
}

// loadCategory reads every CSV in dir into the merge map and returns how many
// files were read successfully. Per-file read failures are logged and
// skipped.
func (l *Loader) loadCategory(cat Category, dir string, merged map[mergeKey]*model.RawRecord) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("extract directory missing", "category", cat.String(), "dir", dir)
			return 0, nil
		}
		return 0, errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if max := l.settings.MaxFiles; max > 0 && len(files) > max {
		files = files[:max]
	}

	loaded := 0
	for _, file := range files {
		rows, err := l.readFile(cat, file)
		if err != nil {
			l.logger.Warn("failed to load file, skipping", "file", file, "error", err)
			continue
		}
		for i := range rows {
			l.mergeRow(cat, &rows[i], merged)
		}
		l.logger.Info("loaded extract", "category", cat.String(), "file", filepath.Base(file), "rows", len(rows))
		loaded++
	}
	return loaded, nil
}

func (l *Loader) mergeRow(cat Category, row *model.RawRecord, merged map[mergeKey]*model.RawRecord) {
	key := mergeKey{date: row.Date, region: row.Region, district: row.District, location: row.Location}
	dst, ok := merged[key]
	if !ok {
		dst = &model.RawRecord{
			Date:     row.Date,
			Region:   row.Region,
			District: row.District,
			Location: row.Location,
		}
		merged[key] = dst
	}
	switch cat {
	case CategoryCreation:
		dst.CreationChild += row.CreationChild
		dst.CreationYouth += row.CreationYouth
		dst.CreationAdult += row.CreationAdult
	case CategoryMotion:
		dst.MotionYouth += row.MotionYouth
		dst.MotionAdult += row.MotionAdult
	case CategoryPersistence:
		dst.PersistenceYouth += row.PersistenceYouth
		dst.PersistenceAdult += row.PersistenceAdult
	}
}

// readFile parses one CSV extract. Rows with unparseable dates are dropped;
// malformed counters coerce to zero, matching the zero-fill merge semantics.
func (l *Loader) readFile(cat Category, path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileParsing).
			Context("file", path).
			Build()
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "region", "district", "location"} {
		if _, ok := cols[required]; !ok {
			return nil, errors.Newf("missing required column %q", required).
				Component("ingest").
				Category(errors.CategoryFileParsing).
				Context("file", path).
				Build()
		}
	}

	var rows []model.RawRecord
	dropped := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(err).
				Component("ingest").
				Category(errors.CategoryFileParsing).
				Context("file", path).
				Build()
		}

		date, err := time.Parse(l.settings.DateFormat, field(fields, cols, "date"))
		if err != nil {
			dropped++
			continue
		}
		row := model.RawRecord{
			Date:     date,
			Region:   field(fields, cols, "region"),
			District: field(fields, cols, "district"),
			Location: field(fields, cols, "location"),
		}
		switch cat {
		case CategoryCreation:
			row.CreationChild = counter(fields, cols, "age_0_5")
			row.CreationYouth = counter(fields, cols, "age_5_17")
			row.CreationAdult = counter(fields, cols, "age_18_greater")
		case CategoryMotion:
			row.MotionYouth = counter(fields, cols, "demo_age_5_17")
			row.MotionAdult = counter(fields, cols, "demo_age_17_")
		case CategoryPersistence:
			row.PersistenceYouth = counter(fields, cols, "bio_age_5_17")
			row.PersistenceAdult = counter(fields, cols, "bio_age_17_")
		}
		rows = append(rows, row)
	}
	if dropped > 0 {
		l.logger.Warn("dropped rows with unparseable dates", "file", path, "rows", dropped)
	}
	return rows, nil
}

func field(fields []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func counter(fields []string, cols map[string]int, name string) int64 {
	v := field(fields, cols, name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Extracts occasionally carry float-formatted counters.
		if fv, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			return int64(fv)
		}
		return 0
	}
	return n
}
