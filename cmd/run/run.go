package run

import (
	"github.com/spf13/cobra"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/pipeline"
)

// Command creates the run subcommand, executing a fresh pipeline batch.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline from scratch",
		Long:  "Executes all pipeline stages in order, discarding checkpoints from previous runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := pipeline.Build(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer cleanup()
			return p.Run(cmd.Context())
		},
	}
	return cmd
}
