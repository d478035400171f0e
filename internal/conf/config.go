// Package conf handles the configuration of the Atlas pipeline. Settings are
// sourced from a YAML config file, environment variables and command line
// flags, merged through viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/atlasengine/atlas-go/internal/errors"
)

// DataSettings locates the raw event extracts. Each category is a directory
// of CSV files; creation is mandatory, motion and persistence are optional.
type DataSettings struct {
	CreationDir    string `mapstructure:"creationdir"`
	MotionDir      string `mapstructure:"motiondir"`
	PersistenceDir string `mapstructure:"persistencedir"`
	MaxFiles       int    `mapstructure:"maxfiles"` // per-category cap, 0 = unlimited
	DateFormat     string `mapstructure:"dateformat"`
}

// OutputSettings controls where processed artifacts land.
type OutputSettings struct {
	ProcessedPath string         `mapstructure:"processedpath"`
	SQLite        SQLiteSettings `mapstructure:"sqlite"`
}

// SQLiteSettings configures the queryable artifact store.
type SQLiteSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AnomalySettings holds the detection contract parameters.
type AnomalySettings struct {
	Enabled       bool           `mapstructure:"enabled"`
	Contamination float64        `mapstructure:"contamination"`
	Estimators    int            `mapstructure:"estimators"`
	Seed          int64          `mapstructure:"seed"`
	DBSCAN        DBSCANSettings `mapstructure:"dbscan"`
}

// DBSCANSettings configures the density-based outlier pass.
type DBSCANSettings struct {
	Enabled    bool    `mapstructure:"enabled"`
	Eps        float64 `mapstructure:"eps"`
	MinSamples int     `mapstructure:"minsamples"`
}

// PatternSettings gates the pattern miners.
type PatternSettings struct {
	Enabled        bool `mapstructure:"enabled"`
	MinOccurrences int  `mapstructure:"minoccurrences"`
}

// GraphSettings configures publication to the external graph store.
type GraphSettings struct {
	Enabled             bool    `mapstructure:"enabled"`
	URI                 string  `mapstructure:"uri"`
	Username            string  `mapstructure:"username"`
	Password            string  `mapstructure:"password"`
	Workers             int     `mapstructure:"workers"`
	TimeoutSeconds      int     `mapstructure:"timeoutseconds"`
	SimilarityThreshold float64 `mapstructure:"similaritythreshold"`
	SimilarityMaxNodes  int     `mapstructure:"similaritymaxnodes"`
	SimilarityMaxEdges  int     `mapstructure:"similaritymaxedges"`
	PrecedenceWindow    int     `mapstructure:"precedencewindowdays"`
	PrecedenceMaxEdges  int     `mapstructure:"precedencemaxedges"`
}

// LogSettings configures the application log.
type LogSettings struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Settings is the root configuration for a pipeline run.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Data     DataSettings    `mapstructure:"data"`
	Output   OutputSettings  `mapstructure:"output"`
	Anomaly  AnomalySettings `mapstructure:"anomaly"`
	Patterns PatternSettings `mapstructure:"patterns"`
	Graph    GraphSettings   `mapstructure:"graph"`
	Log      LogSettings     `mapstructure:"log"`
}

// Load reads the configuration, applying defaults for anything not set.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks settings ranges before a run starts, so a bad config fails
// fast instead of producing a half-finished batch.
func (s *Settings) Validate() error {
	if s.Data.CreationDir == "" {
		return errors.Newf("data.creationdir is required").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Anomaly.Contamination <= 0 || s.Anomaly.Contamination >= 1 {
		return errors.Newf("anomaly.contamination must be in (0, 1), got %g", s.Anomaly.Contamination).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Anomaly.Estimators <= 0 {
		return errors.Newf("anomaly.estimators must be positive, got %d", s.Anomaly.Estimators).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Anomaly.DBSCAN.Eps <= 0 {
		return errors.Newf("anomaly.dbscan.eps must be positive, got %g", s.Anomaly.DBSCAN.Eps).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Anomaly.DBSCAN.MinSamples < 1 {
		return errors.Newf("anomaly.dbscan.minsamples must be at least 1, got %d", s.Anomaly.DBSCAN.MinSamples).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Patterns.MinOccurrences < 1 {
		return errors.Newf("patterns.minoccurrences must be at least 1, got %d", s.Patterns.MinOccurrences).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Graph.Enabled && s.Graph.URI == "" {
		return errors.Newf("graph.uri is required when graph publication is enabled").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Graph.Workers < 1 {
		s.Graph.Workers = 1
	}
	return nil
}

// initViper sets up viper to read the config file and environment variables.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("ATLAS")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file is fine, defaults plus flags cover a full run.
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "atlas"))
	}
	return paths, nil
}
