// Package alert sounds the local alarm.
//
// It follows the controller's change events and runs a configured OS command
// when the watch becomes Alarmed, repeating it while the alarm lasts.
package alert
