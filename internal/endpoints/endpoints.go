// Package endpoints maps item kinds to conversion service paths.
package endpoints

import (
	"fmt"

	"marklift/internal/items"
)

// Batch is the shared endpoint accepting a mixed multipart batch.
const Batch = "/api/convert/batch"

// Resolve returns the service path for a single-item request. The mapping is
// total over known kinds; an unknown kind is a programming error and panics.
func Resolve(kind items.Kind) string {
	switch kind {
	case items.KindDocument, items.KindData:
		return "/api/convert/document"
	case items.KindURL:
		return "/api/convert/url"
	case items.KindParentURL:
		return "/api/convert/crawl"
	case items.KindAudio:
		return "/api/convert/audio"
	case items.KindVideo:
		return "/api/convert/video"
	default:
		panic(fmt.Sprintf("endpoints: unknown item kind %q", kind))
	}
}
