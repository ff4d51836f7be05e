// Package history persists finished conversion jobs in SQLite so past runs
// can be listed and pruned from the CLI.
package history
