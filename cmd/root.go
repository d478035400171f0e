package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atlasengine/atlas-go/cmd/checkpoints"
	"github.com/atlasengine/atlas-go/cmd/resume"
	"github.com/atlasengine/atlas-go/cmd/run"
	"github.com/atlasengine/atlas-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atlas",
		Short: "Atlas batch analytics pipeline",
		Long:  "Atlas ingests demographic event extracts and produces aggregated location metrics, anomalies, patterns, lifecycles and inferred threats, optionally published to a graph store.",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		run.Command(settings),
		resume.Command(settings),
		checkpoints.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Re-validate after flags override file and env values.
		return settings.Validate()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Data.CreationDir, "creation-dir", viper.GetString("data.creationdir"), "Directory of creation (enrolment) CSV extracts")
	rootCmd.PersistentFlags().StringVar(&settings.Data.MotionDir, "motion-dir", viper.GetString("data.motiondir"), "Directory of motion (demographic update) CSV extracts")
	rootCmd.PersistentFlags().StringVar(&settings.Data.PersistenceDir, "persistence-dir", viper.GetString("data.persistencedir"), "Directory of persistence (biometric update) CSV extracts")
	rootCmd.PersistentFlags().IntVar(&settings.Data.MaxFiles, "max-files", viper.GetInt("data.maxfiles"), "Maximum CSV files read per category, 0 for unlimited")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.ProcessedPath, "output", "o", viper.GetString("output.processedpath"), "Directory for processed artifacts and checkpoints")
	rootCmd.PersistentFlags().BoolVar(&settings.Graph.Enabled, "graph", viper.GetBool("graph.enabled"), "Publish results to the graph store")
	rootCmd.PersistentFlags().StringVar(&settings.Graph.URI, "graph-uri", viper.GetString("graph.uri"), "Graph store bolt URI")
	rootCmd.PersistentFlags().IntVar(&settings.Graph.Workers, "graph-workers", viper.GetInt("graph.workers"), "Concurrent upserts during graph publication")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
