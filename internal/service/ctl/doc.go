// Package ctl implements the anchor-ctl operations.
//
// Every operation dials anchor-server once, performs a single call and prints
// the resulting state. Follow keeps an event stream open and reconnects after
// interruptions, the way the old alarm checker kept polling.
package ctl
