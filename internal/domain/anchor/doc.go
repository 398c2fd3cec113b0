// Package anchor contains the core domain types of the anchor watch.
//
// It defines position fixes, the anchor point, the watch status and the
// safety verdict, with Clone helpers so snapshots never share memory with
// the state machine.
package anchor
