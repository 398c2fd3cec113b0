// Package watch implements the anchor-watch state machine.
//
// A Watch moves between NoAnchor, Safe and Alarmed. The anchor point exists
// only inside an active session, so an alarm without an anchor cannot be
// represented. Alarming requires the vessel to clear the safe radius by more
// than the fix's own uncertainty; returning inside the radius clears the
// alarm at once.
//
// A Watch is not safe for concurrent use. The controller serializes access.
package watch
