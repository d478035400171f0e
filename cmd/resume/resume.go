package resume

import (
	"github.com/spf13/cobra"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/pipeline"
)

// Command creates the resume subcommand, continuing an interrupted run from
// its latest checkpoint.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the pipeline from the latest checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := pipeline.Build(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer cleanup()
			return p.Resume(cmd.Context())
		},
	}
	return cmd
}
