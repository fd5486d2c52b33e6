package main

import (
	"fmt"

	presentation "github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/spf13/cobra"
)

func newGraphCmd(g *globals) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "graph <flow>",
		Short: "Print a flow as a Mermaid flowchart",
		Long:  `Prints a Mermaid flowchart of the flow. With --run, node statuses of a recorded run are painted on top.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			flow, err := app.LoadFlow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var overlay *presentation.Overlay
			if runID != "" {
				state, err := app.Runs.Load(cmd.Context(), runID)
				if err != nil {
					return err
				}
				overlay = presentation.OverlayFromRun(state)
			}
			fmt.Fprint(cmd.OutOrStdout(), presentation.GenerateMermaid(flow, overlay))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Paint the statuses of this recorded run")
	return cmd
}
