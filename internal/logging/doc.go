// Package logging builds the slog loggers used across marklift.
//
// Two formats are supported: a compact console handler for interactive use
// and a JSON handler with stable ts/level/msg keys for log shipping. A
// "component" attribute is folded into the console prefix so per-package
// loggers read naturally.
package logging
