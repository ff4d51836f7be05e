// Package textutil provides text helpers for filename sanitization and
// human-readable display titles.
package textutil
