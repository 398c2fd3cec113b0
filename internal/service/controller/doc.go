// Package controller is the facade other collaborators use to drive the
// anchor watch.
//
// A Controller serializes every command and fix behind one lock, hands out
// verdict copies to any number of readers, and notifies subscribers only when
// the anchor is dropped, reset, or the status changes. It also owns the
// single subscription to the positioning feed.
package controller
