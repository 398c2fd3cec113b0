// Package version exposes build metadata for the anchor watch binaries.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// Full renders them for the `version` subcommand and KV returns them as
// structured log fields for the server start-up line.
package version
