// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client wrapper with timeouts for the anchor
// watch service and a helper to detect the current system actor
// (user@hostname) so the server can attribute commands in its logs.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
