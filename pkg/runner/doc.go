/*
Package runner drives flow runs from a terminal or any other line-oriented
front end.

It wires a run to the outside world: events go to a Reporter (human text or
NDJSON), Ctrl+C aborts the run through its controller, breakpoints and step
mode prompt for a command on the input stream, and interceptors can approve
or deny side-effecting nodes before they execute.

# Usage

	r := runner.New(eng,
		runner.WithReporter(runner.NewTextReporter(os.Stdout)),
		runner.WithBreakpoints("review"),
	)
	state, err := r.Run(ctx, g, input)
*/
package runner
