package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/spf13/cobra"
)

func newPlanCmd(g *globals) *cobra.Command {
	var (
		asJSON  bool
		prompts bool
	)
	cmd := &cobra.Command{
		Use:   "plan <flow>",
		Short: "Show the execution strategy a flow compiles into",
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
			strategy, err := app.Engine.Compile(flow)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(strategy)
			}
			printPlan(cmd.OutOrStdout(), flow, strategy, prompts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the strategy as JSON")
	cmd.Flags().BoolVar(&prompts, "prompts", false, "Include merged prompts of collapsed units")
	return cmd
}

func printPlan(w io.Writer, flow *domain.FlowGraph, s *domain.ExecutionStrategy, prompts bool) {
	fmt.Fprintf(w, "%s: %d nodes in %d phases\n", flowName(flow), s.NodeCount(), len(s.Phases))
	for _, p := range s.Phases {
		fmt.Fprintf(w, "phase %d\n", p.Index)
		for _, u := range p.Units {
			line := fmt.Sprintf("  %-16s %s", u.Kind, strings.Join(u.NodeIDs, " → "))
			if u.Kind == domain.UnitMesh {
				line += fmt.Sprintf("  (mesh %s, max %d rounds)", u.Group, u.MaxIterations)
			}
			fmt.Fprintln(w, line)
			if prompts && u.MergedPrompt != "" {
				for _, l := range strings.Split(strings.TrimRight(u.MergedPrompt, "\n"), "\n") {
					fmt.Fprintln(w, "    | "+l)
				}
			}
		}
	}
	for _, id := range s.Ignored {
		fmt.Fprintf(w, "ignored edge %s\n", id)
	}
}

func flowName(g *domain.FlowGraph) string {
	if g.Name != "" {
		return g.Name
	}
	return g.ID
}
