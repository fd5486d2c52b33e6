/*
Package nodes provides the default ports.NodeExecutor for every non-agent
node kind.

Conditions, data transforms and loop item lists are expr-lang expressions
evaluated against the node input. Text fields of http nodes accept
{{ expression }} placeholders. Tool nodes resolve against an in-process
registry first and a list of allow-listed external commands second. Inline
code runs only when explicitly enabled.
*/
package nodes
