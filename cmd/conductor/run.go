package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/cli"
	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/nodes"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("run failed")

type runFlags struct {
	input       string
	inputFile   string
	runID       string
	json        bool
	step        bool
	verbose     bool
	noBanner    bool
	breakpoints []string
	confirm     []string
	deny        []string
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Run a flow from a file or the store",
		Long: `Compiles and runs a flow, printing events as they happen and a summary
at the end. The first Ctrl+C aborts the run; a second one exits at once.

Breakpoints pause before the named nodes and ask whether to continue.
--step pauses before every unit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Run input handed to trigger nodes")
	cmd.Flags().StringVar(&f.inputFile, "input-file", "", "Read the run input from a file ('-' for stdin)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run identifier (generated when empty)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print NDJSON events instead of text")
	cmd.Flags().BoolVar(&f.step, "step", false, "Pause before every unit")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Also print step starts and mesh rounds")
	cmd.Flags().BoolVar(&f.noBanner, "no-banner", false, "Do not print the banner")
	cmd.Flags().StringSliceVarP(&f.breakpoints, "breakpoint", "b", nil, "Pause before these node ids")
	cmd.Flags().StringSliceVar(&f.confirm, "confirm", nil, "Ask before running nodes of these kinds (e.g. http,code)")
	cmd.Flags().StringSliceVar(&f.deny, "deny", nil, "Refuse to run nodes of these kinds")
	return cmd
}

func runFlow(cmd *cobra.Command, g *globals, f *runFlags, ref string) error {
	confirmKinds, err := parseKinds(f.confirm)
	if err != nil {
		return err
	}
	denyKinds, err := parseKinds(f.deny)
	if err != nil {
		return err
	}

	input := f.input
	var prompter runner.Prompter
	switch f.inputFile {
	case "":
		prompter = runner.NewLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	case "-":
		if input, err = runner.ReadInput(cmd.InOrStdin()); err != nil {
			return err
		}
	default:
		file, err := os.Open(f.inputFile)
		if err != nil {
			return err
		}
		input, err = runner.ReadInput(file)
		file.Close()
		if err != nil {
			return err
		}
		prompter = runner.NewLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	if len(confirmKinds) > 0 && prompter == nil {
		return errors.New("--confirm needs an interactive stdin; use --input or --input-file <path>")
	}

	var buildOpts []cli.BuildOption
	if len(confirmKinds) > 0 || len(denyKinds) > 0 {
		guard := runner.Chain(runner.DenyKinds(denyKinds...), runner.Confirm(prompter, confirmKinds...))
		buildOpts = append(buildOpts, cli.WithExecutorWrapper(func(x *nodes.Executor) ports.NodeExecutor {
			return runner.Guard(x, guard)
		}))
	}

	app, err := g.app(buildOpts...)
	if err != nil {
		return err
	}
	defer app.Close()

	flow, err := app.LoadFlow(cmd.Context(), ref)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reporter runner.Reporter
	if f.json {
		reporter = runner.NewJSONReporter(out)
	} else {
		if !f.noBanner && tui.IsTerminal(out) {
			tui.PrintBanner(out, conductor.Version)
		}
		reporter = runner.NewTextReporter(out,
			runner.WithRenderer(tui.NewRenderer(out)),
			runner.WithVerbose(f.verbose),
		)
	}

	opts := []runner.Option{
		runner.WithReporter(reporter),
		runner.WithBreakpoints(f.breakpoints...),
		runner.WithStepMode(f.step),
		runner.WithRunID(f.runID),
		runner.WithLogger(app.Logger),
	}
	if prompter != nil {
		opts = append(opts, runner.WithPrompter(prompter))
	}
	state, err := runner.New(app.Engine, opts...).Run(cmd.Context(), flow, input)
	if err != nil {
		return err
	}
	if state.Status != domain.RunDone {
		if state.Aborted {
			return fmt.Errorf("%w: run %s aborted", errRunFailed, state.RunID)
		}
		return fmt.Errorf("%w: run %s ended with status %s", errRunFailed, state.RunID, state.Status)
	}
	return nil
}

func parseKinds(names []string) ([]domain.NodeKind, error) {
	kinds := make([]domain.NodeKind, 0, len(names))
	for _, name := range names {
		k := domain.NodeKind(strings.TrimSpace(name))
		if !k.Valid() {
			return nil, fmt.Errorf("unknown node kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
