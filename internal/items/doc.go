// Package items models the user-supplied units of work handed to the
// conversion service and validates them before dispatch.
//
// An Item is either file-backed (document, audio, video, data) or URL-backed
// (url, parentUrl); exactly one of SourcePath and SourceURL is set. URL items
// carry the canonical form of their address, which doubles as the duplicate
// detection key within a batch.
package items
