package checkpoints

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/state"
)

// Command creates the checkpoints subcommand with list and clear actions.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and manage pipeline checkpoints",
	}
	cmd.AddCommand(listCommand(settings), clearCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints present on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := state.NewManager(settings.Output.ProcessedPath)
			if err != nil {
				return err
			}
			cps := manager.List()
			if len(cps) == 0 {
				cmd.Println("no checkpoints found")
				return nil
			}
			for _, cp := range cps {
				cmd.Printf("stage %d  %-20s  %s\n", cp.Stage, cp.StageName, cp.Timestamp.Format("2006-01-02 15:04:05 MST"))
			}
			if st, err := manager.LoadState(); err == nil && st != nil {
				cmd.Printf("pipeline status: %s (stage %d)\n", st.Status, st.CurrentStage)
			}
			return nil
		},
	}
}

func clearCommand(settings *conf.Settings) *cobra.Command {
	var fromStage int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove checkpoints, all or from a given stage onward",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromStage < 0 || fromStage > state.StageCount {
				return fmt.Errorf("invalid stage %d, valid range is 1-%d (or 0 for all)", fromStage, state.StageCount)
			}
			manager, err := state.NewManager(settings.Output.ProcessedPath)
			if err != nil {
				return err
			}
			return manager.Clear(state.Stage(fromStage))
		},
	}
	cmd.Flags().IntVar(&fromStage, "from", 0, "First stage to clear, 0 clears everything")
	return cmd
}
