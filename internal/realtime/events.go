package realtime

// EventType names the four event families emitted per job.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one frame on the realtime channel, keyed by job id.
type Event struct {
	JobID       string    `json:"jobId"`
	Type        EventType `json:"type"`
	Status      string    `json:"status,omitempty"`
	Progress    float64   `json:"progress,omitempty"`
	Message     string    `json:"message,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ResultURL   string    `json:"resultUrl,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Terminal reports whether no further events are expected for the job.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Locator returns the artifact locator carried by a complete event. The
// canonical field is downloadUrl; resultUrl is accepted as a known alternate
// before the event is rejected as malformed.
func (e Event) Locator() string {
	if e.DownloadURL != "" {
		return e.DownloadURL
	}
	return e.ResultURL
}

// Handler consumes events for a single job.
type Handler func(Event)

type controlFrame struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}
