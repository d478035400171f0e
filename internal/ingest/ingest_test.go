package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/errors"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testSettings(t *testing.T) *conf.DataSettings {
	t.Helper()
	root := t.TempDir()
	return &conf.DataSettings{
		CreationDir:    filepath.Join(root, "creation"),
		MotionDir:      filepath.Join(root, "motion"),
		PersistenceDir: filepath.Join(root, "persistence"),
		MaxFiles:       3,
		DateFormat:     "02-01-2006",
	}
}

func TestLoadMergesCategories(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	writeCSV(t, settings.CreationDir, "creation.csv",
		"date,region,district,location,age_0_5,age_5_17,age_18_greater\n"+
			"15-01-2024,NORTH,ALPHA,L1,1,2,3\n"+
			"15-01-2024,NORTH,ALPHA,L2,0,0,7\n")
	writeCSV(t, settings.MotionDir, "motion.csv",
		"date,region,district,location,demo_age_5_17,demo_age_17_\n"+
			"15-01-2024,NORTH,ALPHA,L1,4,5\n")

	records, err := NewLoader(settings).Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	l1 := records[0]
	assert.Equal(t, "L1", l1.Location)
	assert.Equal(t, int64(6), l1.TotalCreation())
	assert.Equal(t, int64(9), l1.TotalMotion())
	// No persistence extract: columns zero-fill.
	assert.Zero(t, l1.TotalPersistence())

	l2 := records[1]
	assert.Equal(t, int64(7), l2.TotalCreation())
	assert.Zero(t, l2.TotalMotion())
}

func TestLoadFailsWithoutCreationData(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	writeCSV(t, settings.MotionDir, "motion.csv",
		"date,region,district,location,demo_age_5_17,demo_age_17_\n"+
			"15-01-2024,NORTH,ALPHA,L1,4,5\n")

	_, err := NewLoader(settings).Load()
	assert.ErrorIs(t, err, ErrNoCreationData)
}

func TestLoadDropsBadRowsAndCoercesCounters(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	writeCSV(t, settings.CreationDir, "creation.csv",
		"date,region,district,location,age_0_5,age_5_17,age_18_greater\n"+
			"not-a-date,NORTH,ALPHA,L1,1,2,3\n"+
			"15-01-2024,NORTH,ALPHA,L1,oops,2.0,3\n")

	records, err := NewLoader(settings).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Zero(t, r.CreationChild, "malformed counter coerces to zero")
	assert.Equal(t, int64(2), r.CreationYouth, "float-formatted counter parses")
	assert.Equal(t, int64(3), r.CreationAdult)
}

func TestLoadMissingRequiredColumnSkipsFile(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	// File without a location column is skipped; the valid file still loads.
	writeCSV(t, settings.CreationDir, "a_bad.csv",
		"date,region,district,age_18_greater\n15-01-2024,NORTH,ALPHA,3\n")
	writeCSV(t, settings.CreationDir, "b_good.csv",
		"date,region,district,location,age_18_greater\n15-01-2024,NORTH,ALPHA,L1,3\n")

	records, err := NewLoader(settings).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "L1", records[0].Location)
}

func TestLoadRespectsMaxFiles(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.MaxFiles = 1
	writeCSV(t, settings.CreationDir, "01_first.csv",
		"date,region,district,location,age_18_greater\n15-01-2024,NORTH,ALPHA,L1,3\n")
	writeCSV(t, settings.CreationDir, "02_second.csv",
		"date,region,district,location,age_18_greater\n15-01-2024,NORTH,ALPHA,L2,9\n")

	records, err := NewLoader(settings).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "L1", records[0].Location, "files are taken in sorted order")
}

func TestLoadDuplicateRowsAccumulate(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	writeCSV(t, settings.CreationDir, "creation.csv",
		"date,region,district,location,age_18_greater\n"+
			"15-01-2024,NORTH,ALPHA,L1,3\n"+
			"15-01-2024,NORTH,ALPHA,L1,4\n")

	records, err := NewLoader(settings).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0].CreationAdult)
}

func TestLoadErrorCategory(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	_, err := NewLoader(settings).Load()
	require.Error(t, err)
	assert.Equal(t, errors.CategoryIngest, errors.CategoryOf(err))
}
