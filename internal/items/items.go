package items

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"marklift/internal/services"
)

// Kind classifies an item for endpoint routing and validation.
type Kind string

const (
	KindDocument  Kind = "document"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindData      Kind = "data"
	KindURL       Kind = "url"
	KindParentURL Kind = "parentUrl"
)

var allKinds = []Kind{KindDocument, KindAudio, KindVideo, KindData, KindURL, KindParentURL}

// Options carries conversion parameters forwarded to the service.
type Options struct {
	CrawlDepth    int  `json:"crawlDepth,omitempty"`
	MaxPages      int  `json:"maxPages,omitempty"`
	IncludeImages bool `json:"includeImages,omitempty"`
}

// Item is a single unit of conversion work. Once normalized it is treated as
// immutable; Normalize returns copies rather than mutating in place.
type Item struct {
	ID                 string
	Name               string
	Kind               Kind
	SourcePath         string
	SourceURL          string
	Size               int64
	Options            Options
	RequiresCredential bool
}

// IsFileBacked reports whether the item reads from a local file.
func (i Item) IsFileBacked() bool {
	switch i.Kind {
	case KindDocument, KindAudio, KindVideo, KindData:
		return true
	default:
		return false
	}
}

// AllKinds returns the ordered list of known kinds.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

var extensionKinds = map[string]Kind{
	".pdf":  KindDocument,
	".doc":  KindDocument,
	".docx": KindDocument,
	".ppt":  KindDocument,
	".pptx": KindDocument,
	".txt":  KindDocument,
	".rtf":  KindDocument,
	".html": KindDocument,
	".htm":  KindDocument,
	".epub": KindDocument,
	".md":   KindDocument,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".m4a":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".mp4":  KindVideo,
	".mkv":  KindVideo,
	".mov":  KindVideo,
	".avi":  KindVideo,
	".webm": KindVideo,
	".csv":  KindData,
	".tsv":  KindData,
	".json": KindData,
	".xml":  KindData,
	".xls":  KindData,
	".xlsx": KindData,
}

// KindForExtension maps a file extension (with leading dot) to its kind.
func KindForExtension(ext string) (Kind, bool) {
	kind, ok := extensionKinds[strings.ToLower(strings.TrimSpace(ext))]
	return kind, ok
}

func credentialGated(kind Kind) bool {
	switch kind {
	case KindAudio, KindVideo, KindURL, KindParentURL:
		return true
	default:
		return false
	}
}

// NewFileItem builds an unnormalized item from a local file path. The file is
// stat'd so size validation can run without reopening it later.
func NewFileItem(path string, opts Options) (Item, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Item{}, services.NewValidationError(services.CodeUnsupportedExtension, path, "empty path")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return Item{}, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Item{}, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return Item{}, services.NewValidationError(services.CodeUnsupportedExtension, abs, "path is a directory")
	}
	name := filepath.Base(abs)
	kind, ok := KindForExtension(filepath.Ext(name))
	if !ok {
		return Item{}, services.NewValidationError(services.CodeUnsupportedExtension, name, fmt.Sprintf("unsupported extension %q", filepath.Ext(name)))
	}
	return Item{
		ID:                 uuid.NewString(),
		Name:               name,
		Kind:               kind,
		SourcePath:         abs,
		Size:               info.Size(),
		Options:            opts,
		RequiresCredential: credentialGated(kind),
	}, nil
}

// NewURLItem builds an unnormalized item from a raw URL. Parent items request
// a crawl of the page and its children.
func NewURLItem(rawURL string, parent bool, opts Options) Item {
	kind := KindURL
	if parent {
		kind = KindParentURL
	}
	return Item{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(rawURL),
		Kind:               kind,
		SourceURL:          strings.TrimSpace(rawURL),
		Options:            opts,
		RequiresCredential: true,
	}
}

// ContainsURL reports whether the batch already holds an item with the same
// canonical URL. Duplicates are a silent no-op for the caller, not an error.
func ContainsURL(batch []Item, canonical string) bool {
	for _, item := range batch {
		if item.SourceURL != "" && item.SourceURL == canonical {
			return true
		}
	}
	return false
}
