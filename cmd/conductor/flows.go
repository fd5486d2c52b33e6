package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/conductor/internal/cli"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/spf13/cobra"
)

func newFlowsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage flows in the configured store",
	}

	var folder string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			flows, err := app.Flows.List(cmd.Context(), folder)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFOLDER\tUPDATED")
			for _, f := range flows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Folder, f.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&folder, "folder", "", "Only list flows in this folder")

	importCmd := &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Store flow documents (JSON or YAML)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := importFlows(cmd, app, args)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d flows\n", n)
			return err
		},
	}

	var (
		format string
		output string
	)
	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Print or write a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			flow, err := app.Flows.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output != "" {
				return graph.WriteFile(output, flow)
			}
			f := graph.FormatJSON
			if format == "yaml" {
				f = graph.FormatYAML
			}
			data, err := graph.Encode(flow, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	export.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	export.Flags().StringVarP(&output, "output", "o", "", "Write to this file; the format follows its extension")

	remove := &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete stored flows",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			for _, id := range args {
				if err := app.Flows.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
			}
			return nil
		},
	}

	cmd.AddCommand(list, importCmd, export, remove)
	return cmd
}

// importFlows stores every flow document named by paths; directories are
// scanned one level deep for .json, .yaml and .yml files.
func importFlows(cmd *cobra.Command, app *cli.App, paths []string) (int, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".json", ".yaml", ".yml":
				if !e.IsDir() {
					files = append(files, filepath.Join(p, e.Name()))
				}
			}
		}
	}

	n := 0
	for _, path := range files {
		flow, err := graph.ReadFile(path)
		if err != nil {
			return n, err
		}
		if flow.ID == "" {
			flow.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if err := graph.Check(flow); err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		if err := app.Flows.Save(cmd.Context(), flow); err != nil {
			return n, err
		}
		app.Logger.Debug("flow imported", "flow_id", flow.ID, "path", path)
		n++
	}
	return n, nil
}
