package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"marklift/internal/items"
	"marklift/internal/logging"
	"marklift/internal/realtime"
	"marklift/internal/results"
	"marklift/internal/services"
)

// Subscription is the cancellation handle for one job's event stream.
type Subscription interface {
	Close()
}

// Channel is the subscription surface the tracker needs from the realtime
// client.
type Channel interface {
	Subscribe(jobID string, handler realtime.Handler) (Subscription, error)
}

// ArtifactFetcher downloads a finished conversion given its locator.
type ArtifactFetcher interface {
	FetchArtifact(ctx context.Context, locator, credential string) ([]byte, string, error)
}

// Job is the tracked view of one server-side job. ItemIDs are back-references
// for lookup, not ownership; a batch answered with a single job id spans
// several items.
type Job struct {
	JobID       string
	ItemIDs     []string
	Status      Status
	Progress    float64
	Message     string
	DownloadURL string
}

// Update notifies the owner about a job transition. Err carries item-level
// failures such as a completion without a usable artifact.
type Update struct {
	Job      Job
	Terminal bool
	Err      error
}

type jobState struct {
	job   Job
	items []items.Item
	sub   Subscription
}

// Tracker aggregates job progress for a single conversion run.
type Tracker struct {
	channel    Channel
	fetcher    ArtifactFetcher
	store      *results.Store
	credential string
	onUpdate   func(Update)
	logger     *slog.Logger

	mu   sync.Mutex
	jobs map[string]*jobState
}

// New builds a tracker for one conversion. onUpdate may be nil.
func New(channel Channel, fetcher ArtifactFetcher, store *results.Store, credential string, onUpdate func(Update), logger *slog.Logger) *Tracker {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Tracker{
		channel:    channel,
		fetcher:    fetcher,
		store:      store,
		credential: credential,
		onUpdate:   onUpdate,
		logger:     logging.WithComponent(logger, "tracker"),
		jobs:       make(map[string]*jobState),
	}
}

// Track registers a job and subscribes to its events. The context bounds the
// artifact fetch triggered by the job's completion.
func (t *Tracker) Track(ctx context.Context, jobID string, sourceItems []items.Item) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	itemIDs := make([]string, len(sourceItems))
	for i, item := range sourceItems {
		itemIDs[i] = item.ID
	}

	t.mu.Lock()
	if _, exists := t.jobs[jobID]; exists {
		t.mu.Unlock()
		return fmt.Errorf("job %s is already tracked", jobID)
	}
	state := &jobState{
		job:   Job{JobID: jobID, ItemIDs: itemIDs, Status: StatusQueued},
		items: append([]items.Item(nil), sourceItems...),
	}
	t.jobs[jobID] = state
	t.mu.Unlock()

	sub, err := t.channel.Subscribe(jobID, func(event realtime.Event) {
		t.handle(ctx, event)
	})
	if err != nil {
		t.mu.Lock()
		delete(t.jobs, jobID)
		t.mu.Unlock()
		return fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}

	t.mu.Lock()
	state.sub = sub
	t.mu.Unlock()
	return nil
}

func (t *Tracker) handle(ctx context.Context, event realtime.Event) {
	t.mu.Lock()
	state, ok := t.jobs[event.JobID]
	if !ok || state.job.Status.Terminal() {
		t.mu.Unlock()
		return
	}

	switch event.Type {
	case realtime.EventStatus:
		if parsed, known := ParseStatus(event.Status); known && !parsed.Terminal() {
			state.job.Status = parsed
		}
		if event.Message != "" {
			state.job.Message = event.Message
		}
		update := Update{Job: snapshot(state)}
		t.mu.Unlock()
		t.onUpdate(update)

	case realtime.EventProgress:
		// Out-of-order and duplicate progress events arrive from independent
		// async completions; only forward movement counts.
		if event.Progress > state.job.Progress {
			state.job.Progress = min(event.Progress, 100)
		}
		if state.job.Status == StatusQueued {
			state.job.Status = StatusProcessing
		}
		update := Update{Job: snapshot(state)}
		t.mu.Unlock()
		t.onUpdate(update)

	case realtime.EventComplete:
		state.job.Status = StatusCompleted
		state.job.Progress = 100
		state.job.DownloadURL = event.Locator()
		if event.Message != "" {
			state.job.Message = event.Message
		}
		sub := state.sub
		state.sub = nil
		sourceItems := state.items
		job := snapshot(state)
		t.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		t.finishJob(ctx, event, job, sourceItems)

	case realtime.EventError:
		state.job.Status = StatusError
		state.job.Message = firstNonEmpty(event.Error, event.Message, "conversion failed")
		sub := state.sub
		state.sub = nil
		update := Update{Job: snapshot(state), Terminal: true}
		t.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		t.logger.Warn("job failed", logging.FieldJobID, update.Job.JobID, "message", update.Job.Message)
		t.onUpdate(update)

	default:
		t.mu.Unlock()
		t.logger.Debug("unknown event type", logging.FieldJobID, event.JobID, "type", string(event.Type))
	}
}

// finishJob retrieves the artifact for a completed job. A missing locator or
// failed fetch degrades to an item-level error; the rest of the batch keeps
// going.
func (t *Tracker) finishJob(ctx context.Context, event realtime.Event, job Job, sourceItems []items.Item) {
	locator := event.Locator()
	if locator == "" {
		err := services.Wrap(services.ErrResponseFormat, "tracker", "complete event", "no recognizable download locator", nil)
		t.failCompleted(job.JobID, "completion carried no download locator")
		job.Status = StatusError
		job.Message = "completion carried no download locator"
		t.onUpdate(Update{Job: job, Terminal: true, Err: err})
		return
	}

	payload, contentType, err := t.fetcher.FetchArtifact(ctx, locator, t.credential)
	if err != nil {
		t.logger.Warn("artifact retrieval failed", logging.FieldJobID, job.JobID, "error", err)
		t.failCompleted(job.JobID, "artifact retrieval failed")
		job.Status = StatusError
		job.Message = "artifact retrieval failed"
		t.onUpdate(Update{Job: job, Terminal: true, Err: err})
		return
	}

	if event.ContentType != "" {
		contentType = event.ContentType
	}
	t.store.Set(results.Result{
		Payload:     payload,
		ContentKind: contentType,
		SourceItems: sourceItems,
	})
	t.logger.Info("job completed", logging.FieldJobID, job.JobID, "bytes", len(payload), "content_kind", contentType)
	t.onUpdate(Update{Job: job, Terminal: true})
}

func (t *Tracker) failCompleted(jobID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.jobs[jobID]; ok {
		state.job.Status = StatusError
		state.job.Message = message
	}
}

// Progress returns the arithmetic mean of all tracked jobs' progress, with
// jobs that have not reported yet contributing zero.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.jobs) == 0 {
		return 0
	}
	var sum float64
	for _, state := range t.jobs {
		sum += state.job.Progress
	}
	return sum / float64(len(t.jobs))
}

// Counts returns how many jobs finished cleanly and how many failed.
func (t *Tracker) Counts() (completed, errored int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, state := range t.jobs {
		switch state.job.Status {
		case StatusCompleted:
			completed++
		case StatusError:
			errored++
		}
	}
	return completed, errored
}

// ActiveCount returns the number of jobs still expecting events.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, state := range t.jobs {
		if !state.job.Status.Terminal() {
			count++
		}
	}
	return count
}

// Jobs returns a snapshot of every tracked job.
func (t *Tracker) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.jobs))
	for _, state := range t.jobs {
		out = append(out, snapshot(state))
	}
	return out
}

// CancelAll closes every live subscription and marks non-terminal jobs
// cancelled. Jobs that already completed server-side are left alone.
func (t *Tracker) CancelAll() []Job {
	t.mu.Lock()
	var subs []Subscription
	var cancelled []Job
	for _, state := range t.jobs {
		if state.sub != nil {
			subs = append(subs, state.sub)
			state.sub = nil
		}
		if !state.job.Status.Terminal() {
			state.job.Status = StatusCancelled
			cancelled = append(cancelled, snapshot(state))
		}
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return cancelled
}

func snapshot(state *jobState) Job {
	job := state.job
	job.ItemIDs = append([]string(nil), state.job.ItemIDs...)
	return job
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
