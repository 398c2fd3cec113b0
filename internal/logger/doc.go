// Package logger wraps zap for the anchor watch binaries:
//   - a global sugared logger with console or JSON output,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level and format parsing for the YAML configuration,
//   - leveled helpers (Infof, WarnKV, etc.) that read the logger from context.
//
// Services accept a context and log through it, so a component name and
// session fields attached once show up on every line below.
package logger
