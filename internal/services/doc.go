// Package services defines the shared error taxonomy used across the
// conversion client.
//
// Failures are tagged with sentinel markers (validation, network, api,
// response format, timeout) so callers can classify them with errors.Is
// without inspecting messages. Typed ValidationError and APIError values
// additionally carry machine-readable codes surfaced to the CLI.
package services
