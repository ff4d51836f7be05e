package textutil

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// DisplayTitle derives a human-readable title from a filename or URL. For
// URLs the last path segment is used, falling back to the host for bare
// roots. Separators become spaces and words are title-cased.
func DisplayTitle(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}

	base := source
	if parsed, err := url.Parse(source); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		base = path.Base(parsed.Path)
		if base == "." || base == "/" || base == "" {
			// A bare site root has no segment worth prettifying.
			return parsed.Host
		}
	} else {
		base = path.Base(base)
	}

	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}

	base = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return source
	}
	return titleCaser.String(base)
}
