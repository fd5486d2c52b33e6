/*
Package conductor compiles flow graphs into execution strategies and runs
them as AI agent pipelines.

A flow is a directed graph of typed steps: triggers, LLM agent calls, tools,
conditions, data transforms, code, http requests, MCP tools, loops, error
handlers and outputs. Compilation orders the graph into phases of units that
can run concurrently, merges linear chains of agent steps into a single model
call, and groups bidirectionally linked agents into meshes that iterate until
their answers converge.

# Usage

	eng := conductor.New(
		conductor.WithAgentStepper(llm.NewStepper(model)),
		conductor.WithLogger(logger),
	)

	g, err := graph.Import(data)
	if err != nil {
		return err
	}
	state, err := eng.Run(ctx, g, conductor.RunOptions{Input: "hello"})

Runs report progress through domain.Callbacks. A Controller pauses, resumes
and aborts a run from another goroutine, and stops at breakpoints. For
interactive editing with undo, clipboard and breakpoints, open a session
with Engine.NewSession.
*/
package conductor
