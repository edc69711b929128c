// Package logx provides a small structured logging facade over zerolog.
//
// This repo uses a thin wrapper (logx.Logger) to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// The zero value and Nop() are safe no-op loggers, so components never need
// a logger wired just to satisfy a dependency.
package logx
