package items

import (
	"fmt"
	"net/url"
	"strings"

	"marklift/internal/services"
)

// Limits holds the per-kind upload ceilings in bytes. Video gets its own
// ceiling; documents, audio, and data share the standard one.
type Limits struct {
	MaxFileBytes  int64
	MaxVideoBytes int64
}

// DefaultLimits mirrors the service-side upload caps.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes:  100 << 20,
		MaxVideoBytes: 2 << 30,
	}
}

func (l Limits) forKind(kind Kind) int64 {
	if kind == KindVideo {
		return l.MaxVideoBytes
	}
	return l.MaxFileBytes
}

// Normalizer validates and canonicalizes raw items before dispatch.
type Normalizer struct {
	Limits        Limits
	HasCredential bool
}

// Normalize returns the validated, canonical form of an item. It is
// idempotent: normalizing an already-normalized item yields an equal item.
func (n Normalizer) Normalize(item Item) (Item, error) {
	switch item.Kind {
	case KindDocument, KindAudio, KindVideo, KindData:
		return n.normalizeFile(item)
	case KindURL, KindParentURL:
		return n.normalizeURL(item)
	default:
		return Item{}, services.NewValidationError(services.CodeUnsupportedExtension, item.Name, fmt.Sprintf("unknown item kind %q", item.Kind))
	}
}

// NormalizeAll validates a batch in order, stopping at the first failure so
// nothing is dispatched for a partially invalid set.
func (n Normalizer) NormalizeAll(batch []Item) ([]Item, error) {
	normalized := make([]Item, 0, len(batch))
	for _, item := range batch {
		out, err := n.Normalize(item)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, out)
	}
	return normalized, nil
}

func (n Normalizer) normalizeFile(item Item) (Item, error) {
	if item.SourcePath == "" || item.SourceURL != "" {
		return Item{}, services.NewValidationError(services.CodeUnsupportedExtension, item.Name, "file item requires a source path and no URL")
	}
	if limit := n.Limits.forKind(item.Kind); limit > 0 && item.Size > limit {
		return Item{}, services.NewValidationError(
			services.CodeFileTooLarge,
			item.Name,
			fmt.Sprintf("%d bytes exceeds the %d byte limit", item.Size, limit),
		)
	}
	if item.RequiresCredential && !n.HasCredential {
		return Item{}, services.NewValidationError(services.CodeCredentialRequired, item.Name, "an API key is required for audio and video conversion")
	}
	return item, nil
}

func (n Normalizer) normalizeURL(item Item) (Item, error) {
	if item.SourceURL == "" || item.SourcePath != "" {
		return Item{}, services.NewValidationError(services.CodeInvalidURL, item.Name, "url item requires a source URL and no path")
	}
	canonical, err := CanonicalURL(item.SourceURL)
	if err != nil {
		return Item{}, err
	}
	if !n.HasCredential {
		return Item{}, services.NewValidationError(services.CodeCredentialRequired, item.Name, "an API key is required for URL conversion")
	}
	out := item
	out.SourceURL = canonical
	if out.Name == "" || out.Name == item.SourceURL {
		out.Name = canonical
	}
	return out, nil
}

// CanonicalURL lowercases the whole URL and strips a trailing slash from the
// path component only; scheme, host, and query survive. The canonical form is
// used both for display and for duplicate detection, so it must be stable
// across repeated normalization.
func CanonicalURL(raw string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return "", services.NewValidationError(services.CodeInvalidURL, raw, "empty URL")
	}
	parsed, err := url.Parse(lowered)
	if err != nil {
		return "", services.NewValidationError(services.CodeInvalidURL, raw, err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", services.NewValidationError(services.CodeInvalidURL, raw, fmt.Sprintf("unsupported scheme %q", parsed.Scheme))
	}
	if parsed.Host == "" {
		return "", services.NewValidationError(services.CodeInvalidURL, raw, "missing host")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String(), nil
}
