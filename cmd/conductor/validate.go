package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/schedule"
	"github.com/spf13/cobra"
)

var errInvalid = errors.New("validation failed")

func newValidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow>...",
		Short: "Check flows for structural problems, bad schedules and cycles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, ref := range args {
				flow, err := app.LoadFlow(cmd.Context(), ref)
				if err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", ref, err)
					failed++
					continue
				}

				var problems []string
				for _, issue := range graph.Validate(flow) {
					problems = append(problems, issue.String())
				}
				for _, n := range flow.Nodes {
					if n.Config.Trigger == nil {
						continue
					}
					if err := schedule.Validate(n.Config.Trigger.Schedule); err != nil {
						problems = append(problems, fmt.Sprintf("node %s: %v", n.ID, err))
					}
				}
				if len(problems) == 0 {
					if _, err := app.Engine.Compile(flow); err != nil {
						problems = append(problems, err.Error())
					}
				}

				if len(problems) > 0 {
					fmt.Fprintf(out, "✗ %s\n", ref)
					for _, p := range problems {
						fmt.Fprintf(out, "  - %s\n", p)
					}
					failed++
					continue
				}
				fmt.Fprintf(out, "✓ %s: %d nodes, %d edges\n", ref, len(flow.Nodes), len(flow.Edges))
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d flows", errInvalid, failed, len(args))
			}
			return nil
		},
	}
}
