// Package conversion orchestrates a batch of items through the conversion
// service: normalization, dispatch, job tracking, and artifact download.
//
// The aggregate view of a run lives in State and changes only through the
// Reduce function, so concurrent job completions cannot produce lost updates.
package conversion
