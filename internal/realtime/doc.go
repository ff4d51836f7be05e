// Package realtime maintains the websocket channel that delivers job
// lifecycle events from the conversion service.
//
// The client is an explicitly constructed object with an Open/Close
// lifecycle. Callers subscribe per job id and receive a Subscription handle;
// closing the handle (or the client) ends delivery. When the underlying
// connection drops, the client redials with backoff and re-subscribes every
// job that still holds a handler, keeping at most one live registration per
// job.
package realtime
