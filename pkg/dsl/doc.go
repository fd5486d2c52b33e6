/*
Package dsl builds conductor flow graphs in Go.

It is the programmatic alternative to JSON or YAML flow documents: nodes are
declared with a fluent builder, edges are added by naming their targets, and
Build lays the graph out and validates it.

Example usage:

	b := dsl.New("triage")

	b.Add("start").Trigger("0 9 * * 1-5").Go("classify")

	b.Add("classify").
		Agent("Classify this ticket as bug or question: {{input}}").
		Go("route")

	b.Add("route").
		Condition(`input contains "bug"`).
		Branch(domain.PortTrue, "file").
		Branch(domain.PortFalse, "answer")

	b.Add("file").HTTP("POST", "https://tracker.example/issues")
	b.Add("answer").Output("stdout", "text")

	g, err := b.Build()
	// ... hand g to conductor.Engine.Run
*/
package dsl
