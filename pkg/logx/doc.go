// Package logx wraps zerolog behind a small Logger facade whose sinks
// (console, file, operator log chat) can be swapped at runtime via
// Service.Apply without invalidating loggers already handed out.
package logx
