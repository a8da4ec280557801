// Package logx provides the structured logger used across memobot.
//
// It wraps zerolog behind a small Field-based API so call sites stay
// decoupled from the backend, and supports hot-swapping sinks at runtime
// when the config reloads.
package logx
