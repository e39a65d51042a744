// Package logx configures taskgraph's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog and keeps:
//   - console output readable, with short timestamps and callers
//   - file output as JSON lines
//   - an optional alerts file that receives one plain line per warning or
//     error, throttled so a failing loop cannot flood it
package logx
