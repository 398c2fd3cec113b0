// Package config defines the settings shared by anchor-server and anchor-ctl
// and provides helpers to load, validate and save them in YAML format.
//
// Settings cover the gRPC and metrics endpoints, logging, the watch
// hysteresis and filter, the positioning feed, and the alert command.
package config
