/*
Package session owns the mutable side of flow editing.

Editor is the flow editor session: the graph being edited together with its
selection, undo history, clipboard and breakpoints. Edits are rejected while
a run of the same session is active.

Manager serializes access to persisted flows, one lock per flow id, with an
optional distributed locker for multi-replica deployments.
*/
package session
