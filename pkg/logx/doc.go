// Package logx configures schoolbell's structured logging.
//
// The daemon logs through a small value type (logx.Logger) on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON, one event per line
//   - an optional remote sink forwards warnings to the operator chat
//     (min-level + rate limiting)
package logx
