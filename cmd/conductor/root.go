package main

import (
	"fmt"
	"os"

	"github.com/aretw0/conductor/internal/cli"
	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/spf13/cobra"
)

// globals holds what the persistent pre-run resolved for every command.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor compiles and runs flow graphs of agent and tool nodes",
		Long: `Conductor turns a flow graph into phases of execution units, collapses
linear agent chains into single LLM calls, iterates agent meshes until they
converge, and runs everything else through the node executor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = g.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = g.logFormat
			}
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newRunCmd(g),
		newPlanCmd(g),
		newValidateCmd(g),
		newGraphCmd(g),
		newCronCmd(),
		newFlowsCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newVersionCmd(),
	)
	return root
}

// app wires the configured components; logs go to stderr.
func (g *globals) app(opts ...cli.BuildOption) (*cli.App, error) {
	level, err := logging.ParseLevel(g.cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFormat(os.Stderr, level, g.cfg.Log.Format)
	return cli.Build(g.cfg, logger, opts...)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
