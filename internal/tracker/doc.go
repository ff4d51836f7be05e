// Package tracker drives per-job state machines from realtime channel
// events.
//
// Each tracked job advances only on inbound status, progress, complete, and
// error events. Progress is monotonic; regressive updates are dropped.
// Terminal events close the job's subscription, and a complete event
// triggers artifact retrieval into the result store. A tracker instance
// lives for one conversion and is discarded afterwards.
package tracker
