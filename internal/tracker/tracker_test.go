package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"marklift/internal/items"
	"marklift/internal/realtime"
	"marklift/internal/results"
	"marklift/internal/services"
	"marklift/internal/tracker"
)

type fakeSub struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
	subs     map[string]*fakeSub
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: make(map[string]realtime.Handler),
		subs:     make(map[string]*fakeSub),
	}
}

func (c *fakeChannel) Subscribe(jobID string, handler realtime.Handler) (tracker.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &fakeSub{}
	c.handlers[jobID] = handler
	c.subs[jobID] = sub
	return sub, nil
}

func (c *fakeChannel) emit(event realtime.Event) {
	c.mu.Lock()
	handler := c.handlers[event.JobID]
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

type fakeFetcher struct {
	payload     []byte
	contentType string
	err         error
	gotLocator  string
}

func (f *fakeFetcher) FetchArtifact(ctx context.Context, locator, credential string) ([]byte, string, error) {
	f.gotLocator = locator
	if f.err != nil {
		return nil, "", f.err
	}
	return f.payload, f.contentType, nil
}

func testItem(id, name string) items.Item {
	return items.Item{ID: id, Name: name, Kind: items.KindDocument}
}

func TestProgressIsMonotonic(t *testing.T) {
	channel := newFakeChannel()
	tr := tracker.New(channel, &fakeFetcher{}, results.NewStore(), "", nil, nil)
	if err := tr.Track(context.Background(), "job-1", []items.Item{testItem("i1", "a.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventProgress, Progress: 40})
	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventProgress, Progress: 25})

	jobs := tr.Jobs()
	if len(jobs) != 1 || jobs[0].Progress != 40 {
		t.Fatalf("expected progress pinned at 40, got %#v", jobs)
	}
	if jobs[0].Status != tracker.StatusProcessing {
		t.Fatalf("progress should move queued to processing, got %s", jobs[0].Status)
	}
}

func TestAggregateProgressIsMean(t *testing.T) {
	channel := newFakeChannel()
	tr := tracker.New(channel, &fakeFetcher{}, results.NewStore(), "", nil, nil)
	for _, jobID := range []string{"a", "b", "c"} {
		if err := tr.Track(context.Background(), jobID, []items.Item{testItem("i-"+jobID, jobID+".pdf")}); err != nil {
			t.Fatalf("Track failed: %v", err)
		}
	}

	channel.emit(realtime.Event{JobID: "a", Type: realtime.EventProgress, Progress: 90})
	channel.emit(realtime.Event{JobID: "b", Type: realtime.EventProgress, Progress: 30})
	// job c never reported; contributes zero.

	if got := tr.Progress(); got != 40 {
		t.Fatalf("Progress = %v, want 40", got)
	}
}

func TestCompleteFetchesArtifactIntoStore(t *testing.T) {
	channel := newFakeChannel()
	fetcher := &fakeFetcher{payload: []byte("# md"), contentType: results.ContentMarkdown}
	store := results.NewStore()

	var updates []tracker.Update
	var mu sync.Mutex
	tr := tracker.New(channel, fetcher, store, "key", func(u tracker.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}, nil)

	item := testItem("i1", "original.pdf")
	if err := tr.Track(context.Background(), "job-1", []items.Item{item}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventComplete, DownloadURL: "/artifacts/1"})

	if fetcher.gotLocator != "/artifacts/1" {
		t.Fatalf("unexpected locator %q", fetcher.gotLocator)
	}
	result := store.Get()
	if result == nil || result.ContentKind != results.ContentMarkdown {
		t.Fatalf("result not stored: %#v", result)
	}
	if result.Filename() != "original.md" {
		t.Fatalf("Filename = %q, want original.md", result.Filename())
	}
	if !channel.subs["job-1"].isClosed() {
		t.Fatal("subscription should close on terminal event")
	}

	mu.Lock()
	defer mu.Unlock()
	last := updates[len(updates)-1]
	if !last.Terminal || last.Err != nil || last.Job.Status != tracker.StatusCompleted {
		t.Fatalf("unexpected final update: %#v", last)
	}

	completed, errored := tr.Counts()
	if completed != 1 || errored != 0 {
		t.Fatalf("Counts = %d/%d", completed, errored)
	}
}

func TestCompleteWithoutLocatorIsItemLevelError(t *testing.T) {
	channel := newFakeChannel()
	store := results.NewStore()

	var last tracker.Update
	var mu sync.Mutex
	tr := tracker.New(channel, &fakeFetcher{}, store, "", func(u tracker.Update) {
		mu.Lock()
		last = u
		mu.Unlock()
	}, nil)

	if err := tr.Track(context.Background(), "job-1", []items.Item{testItem("i1", "a.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventComplete})

	mu.Lock()
	defer mu.Unlock()
	if !last.Terminal || last.Err == nil {
		t.Fatalf("expected terminal update with error, got %#v", last)
	}
	if !errors.Is(last.Err, services.ErrResponseFormat) {
		t.Fatalf("expected response format error, got %v", last.Err)
	}
	if store.Get() != nil {
		t.Fatal("no artifact should be stored")
	}
}

func TestCompleteAcceptsAlternateLocatorField(t *testing.T) {
	channel := newFakeChannel()
	fetcher := &fakeFetcher{payload: []byte("x"), contentType: results.ContentMarkdown}
	tr := tracker.New(channel, fetcher, results.NewStore(), "", nil, nil)

	if err := tr.Track(context.Background(), "job-1", []items.Item{testItem("i1", "a.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventComplete, ResultURL: "/alt/9"})

	if fetcher.gotLocator != "/alt/9" {
		t.Fatalf("alternate locator not used: %q", fetcher.gotLocator)
	}
}

func TestArtifactFetchFailureDoesNotSinkBatch(t *testing.T) {
	channel := newFakeChannel()
	fetcher := &fakeFetcher{err: services.Wrap(services.ErrNetwork, "convertapi", "get", "boom", nil)}
	tr := tracker.New(channel, fetcher, results.NewStore(), "", nil, nil)

	if err := tr.Track(context.Background(), "job-1", []items.Item{testItem("i1", "a.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if err := tr.Track(context.Background(), "job-2", []items.Item{testItem("i2", "b.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventComplete, DownloadURL: "/a/1"})

	completed, errored := tr.Counts()
	if completed != 0 || errored != 1 {
		t.Fatalf("Counts = %d/%d, want 0/1", completed, errored)
	}
	if tr.ActiveCount() != 1 {
		t.Fatalf("job-2 should remain active, ActiveCount = %d", tr.ActiveCount())
	}
}

func TestErrorEventClosesSubscription(t *testing.T) {
	channel := newFakeChannel()
	tr := tracker.New(channel, &fakeFetcher{}, results.NewStore(), "", nil, nil)

	if err := tr.Track(context.Background(), "job-1", []items.Item{testItem("i1", "a.pdf")}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventError, Error: "conversion blew up"})

	if !channel.subs["job-1"].isClosed() {
		t.Fatal("subscription should close on error event")
	}
	jobs := tr.Jobs()
	if jobs[0].Status != tracker.StatusError || jobs[0].Message != "conversion blew up" {
		t.Fatalf("unexpected job state: %#v", jobs[0])
	}

	// Late events after the terminal one are ignored.
	channel.emit(realtime.Event{JobID: "job-1", Type: realtime.EventProgress, Progress: 99})
	if tr.Jobs()[0].Progress == 99 {
		t.Fatal("events after terminal state must be dropped")
	}
}

func TestCancelAllClosesSubscriptionsAndMarksJobs(t *testing.T) {
	channel := newFakeChannel()
	fetcher := &fakeFetcher{payload: []byte("x"), contentType: results.ContentMarkdown}
	tr := tracker.New(channel, fetcher, results.NewStore(), "", nil, nil)

	for _, jobID := range []string{"a", "b", "c"} {
		if err := tr.Track(context.Background(), jobID, []items.Item{testItem("i-"+jobID, jobID+".pdf")}); err != nil {
			t.Fatalf("Track failed: %v", err)
		}
	}
	// One job completes before the cancel lands; it is not rolled back.
	channel.emit(realtime.Event{JobID: "a", Type: realtime.EventComplete, DownloadURL: "/a"})

	cancelled := tr.CancelAll()
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 cancelled jobs, got %d", len(cancelled))
	}
	for _, jobID := range []string{"a", "b", "c"} {
		if !channel.subs[jobID].isClosed() {
			t.Fatalf("subscription %s still open after CancelAll", jobID)
		}
	}
	if tr.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d after CancelAll", tr.ActiveCount())
	}

	completed, _ := tr.Counts()
	if completed != 1 {
		t.Fatalf("completed job must survive cancellation, Counts completed = %d", completed)
	}
}
