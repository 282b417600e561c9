// Package logx configures dayplan's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional alert sink for warnings (min-level + rate limiting)
//
// The zero Logger is a no-op, so components can accept a Logger by value
// and log unconditionally.
package logx
