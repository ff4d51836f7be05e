// Package convertapi is the HTTP client for the Markdown conversion service.
//
// Dispatch turns a validated batch of items into accepted jobs. More than one
// item of mixed kinds goes out as a single multipart batch request; a set of
// plain documents (or a single item of any kind) is dispatched as parallel
// per-item requests. Every accepted asynchronous response must carry a job
// id; a success response without one is an API error, not something to guess
// around. Synchronous binary responses (zip, markdown, octet-stream) are
// passed through as immediately completed results.
package convertapi
