package tracker

import "strings"

// Status is the lifecycle of a tracked job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusStreaming   Status = "streaming"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

var statusSet = map[Status]struct{}{
	StatusQueued:      {},
	StatusProcessing:  {},
	StatusStreaming:   {},
	StatusDownloading: {},
	StatusCompleted:   {},
	StatusError:       {},
	StatusCancelled:   {},
}

// ParseStatus converts a wire string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}
