/*
Package domain holds the data model shared by every conductor component:
flow graphs (nodes, ports, edges and their typed configuration), compiled
execution strategies, run state, executor events and editor commands.

The package has no behaviour beyond small helpers and deep copies; the
compiler, executor and editor live elsewhere and exchange these values.
*/
package domain
