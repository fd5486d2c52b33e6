/*
Package graph implements the flow graph model: node and edge construction,
the explicit mutation primitives an undo stack can snapshot around, geometry
helpers used by canvas renderers (port positions, hit-testing, grid snapping,
edge paths), deterministic layout, validation and the JSON/YAML document
format that flows are exported to and imported from.
*/
package graph
