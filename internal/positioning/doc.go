// Package positioning adapts fix feeds for the controller.
//
// TrackFile replays a recorded YAML track, which is how anchor-server runs
// without a GPS attached. Freshness wraps any feed with a staleness timeout
// so a silent receiver is reported instead of leaving the last verdict
// looking current.
package positioning
