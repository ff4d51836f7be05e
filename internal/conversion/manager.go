package conversion

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"marklift/internal/fileutil"
	"marklift/internal/items"
	"marklift/internal/logging"
	"marklift/internal/realtime"
	"marklift/internal/results"
	"marklift/internal/services"
	"marklift/internal/services/convertapi"
	"marklift/internal/textutil"
	"marklift/internal/tracker"
)

// API is the conversion service surface the manager depends on.
type API interface {
	Dispatch(ctx context.Context, batch []items.Item, credential string) ([]convertapi.DispatchResult, error)
	FetchArtifact(ctx context.Context, locator, credential string) ([]byte, string, error)
}

// RealtimeChannel adapts a realtime client to the tracker's channel
// interface.
func RealtimeChannel(client *realtime.Client) tracker.Channel {
	return realtimeChannel{client: client}
}

type realtimeChannel struct {
	client *realtime.Client
}

func (c realtimeChannel) Subscribe(jobID string, handler realtime.Handler) (tracker.Subscription, error) {
	return c.client.Subscribe(jobID, handler)
}

// Deps collects the manager's collaborators. All of them are injected so
// tests can substitute fakes.
type Deps struct {
	API        API
	Channel    tracker.Channel
	Store      *results.Store
	Normalizer items.Normalizer
	Credential string
	OnState    func(State)
	Logger     *slog.Logger
}

// Manager owns the item list and drives conversion runs end to end.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu            sync.Mutex
	batch         []items.Item
	itemStatus    map[string]tracker.Status
	state         State
	tracker       *tracker.Tracker
	cancelRun     context.CancelFunc
	active        bool
	trackedJobs   int
	untrackedDone int
	sessionID     string
}

// NewManager builds an idle manager.
func NewManager(deps Deps) *Manager {
	if deps.OnState == nil {
		deps.OnState = func(State) {}
	}
	return &Manager{
		deps:       deps,
		logger:     logging.WithComponent(deps.Logger, "conversion"),
		itemStatus: make(map[string]tracker.Status),
		state:      State{Status: StatusIdle},
	}
}

// AddFile queues a local file for conversion.
func (m *Manager) AddFile(path string, opts items.Options) (items.Item, error) {
	item, err := items.NewFileItem(path, opts)
	if err != nil {
		return items.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = append(m.batch, item)
	m.itemStatus[item.ID] = tracker.StatusQueued
	return item, nil
}

// AddURL queues a URL for conversion. A URL whose canonical form is already
// queued is a silent no-op; added reports whether the item went in.
func (m *Manager) AddURL(raw string, parent bool, opts items.Options) (item items.Item, added bool, err error) {
	canonical, err := items.CanonicalURL(raw)
	if err != nil {
		return items.Item{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if items.ContainsURL(m.batch, canonical) {
		return items.Item{}, false, nil
	}
	item = items.NewURLItem(canonical, parent, opts)
	m.batch = append(m.batch, item)
	m.itemStatus[item.ID] = tracker.StatusQueued
	return item, true, nil
}

// Items returns a snapshot of the queued batch.
func (m *Manager) Items() []items.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]items.Item(nil), m.batch...)
}

// ItemStates returns the per-item statuses keyed by item id.
func (m *Manager) ItemStates() map[string]tracker.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]tracker.Status, len(m.itemStatus))
	for id, status := range m.itemStatus {
		out[id] = status
	}
	return out
}

// State returns the current aggregate state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID identifies the most recent run.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Jobs returns the tracked jobs of the current run.
func (m *Manager) Jobs() []tracker.Job {
	m.mu.Lock()
	tr := m.tracker
	m.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Jobs()
}

// Start runs the conversion for the queued batch. It validates, normalizes,
// dispatches, and registers job tracking; a normalization failure aborts
// before anything is sent. The context bounds the whole run and is combined
// with Cancel's abort signal.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return services.NewValidationError(services.CodeConversionActive, "", "a conversion is already running")
	}
	if len(m.batch) == 0 {
		m.mu.Unlock()
		return services.NewValidationError(services.CodeNoItems, "", "no items queued for conversion")
	}
	m.state = Reduce(m.state, Started{})
	m.sessionID = uuid.NewString()
	batch := append([]items.Item(nil), m.batch...)
	started := m.state
	m.mu.Unlock()

	m.deps.Store.Clear()
	m.notify(started)

	normalized, err := m.deps.Normalizer.NormalizeAll(batch)
	if err != nil {
		m.fail("normalization failed", err)
		return err
	}

	// Each run gets a fresh abort context so a cancelled previous run cannot
	// poison this one.
	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.batch = normalized
	m.itemStatus = make(map[string]tracker.Status, len(normalized))
	for _, item := range normalized {
		m.itemStatus[item.ID] = tracker.StatusQueued
	}
	m.cancelRun = cancel
	m.active = true
	m.trackedJobs = 0
	m.untrackedDone = 0
	m.tracker = tracker.New(m.deps.Channel, m.deps.API, m.deps.Store, m.deps.Credential, m.handleUpdate, m.deps.Logger)
	m.mu.Unlock()

	dispatched, err := m.deps.API.Dispatch(runCtx, normalized, m.deps.Credential)
	if err != nil {
		cancel()
		m.mu.Lock()
		m.active = false
		m.cancelRun = nil
		m.mu.Unlock()
		m.fail("dispatch failed", err)
		return err
	}

	m.mu.Lock()
	m.state = Reduce(m.state, Dispatched{Jobs: len(dispatched)})
	dispatchedState := m.state
	m.mu.Unlock()
	m.notify(dispatchedState)

	for _, result := range dispatched {
		switch {
		case result.Err != nil:
			m.logger.Warn("item dispatch failed", "items", len(result.Items), "error", result.Err)
			m.finishUntracked(result.Items, tracker.StatusError, true)

		case result.Synchronous():
			m.deps.Store.Set(results.Result{
				Payload:     result.Payload,
				ContentKind: result.ContentType,
				SourceItems: result.Items,
			})
			m.finishUntracked(result.Items, tracker.StatusCompleted, false)

		default:
			if err := m.tracker.Track(runCtx, result.JobID, result.Items); err != nil {
				m.logger.Warn("job tracking failed", logging.FieldJobID, result.JobID, "error", err)
				m.finishUntracked(result.Items, tracker.StatusError, true)
				continue
			}
			m.mu.Lock()
			m.trackedJobs++
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.finalizeLocked()
	state := m.state
	m.mu.Unlock()
	m.notify(state)
	return nil
}

// Cancel aborts the current run: in-flight requests are cancelled through the
// shared context, every live subscription is closed, and items that had not
// reached a terminal status are marked cancelled. Jobs that completed
// server-side before the abort landed are left alone.
func (m *Manager) Cancel() []tracker.Job {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = false
	cancel := m.cancelRun
	m.cancelRun = nil
	tr := m.tracker
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var cancelledJobs []tracker.Job
	if tr != nil {
		cancelledJobs = tr.CancelAll()
	}

	m.mu.Lock()
	for id, status := range m.itemStatus {
		if !status.Terminal() {
			m.itemStatus[id] = tracker.StatusCancelled
		}
	}
	m.state = Reduce(m.state, Cancelled{})
	state := m.state
	m.mu.Unlock()

	m.logger.Info("conversion cancelled", logging.FieldSessionID, m.SessionID(), "jobs", len(cancelledJobs))
	m.notify(state)
	return cancelledJobs
}

// Download writes the live result into dir and returns the saved path. The
// result is consumed: a successful save clears the store, so a second call
// fails instead of re-saving a stale artifact.
func (m *Manager) Download(dir string) (string, error) {
	result := m.deps.Store.Get()
	if result == nil {
		return "", services.NewValidationError(services.CodeNoDownloadURL, "", "no conversion result available")
	}
	filename := textutil.SanitizeFileName(result.Filename())
	path, err := fileutil.WritePayload(dir, filename, result.Payload)
	if err != nil {
		return "", err
	}
	m.deps.Store.Clear()
	m.logger.Info("artifact saved", "path", path, "bytes", len(result.Payload))
	return path, nil
}

// handleUpdate receives tracker transitions and folds them into the
// aggregate state.
func (m *Manager) handleUpdate(update tracker.Update) {
	m.mu.Lock()
	for _, id := range update.Job.ItemIDs {
		m.itemStatus[id] = update.Job.Status
	}
	m.state = Reduce(m.state, ProgressUpdated{Progress: m.aggregateProgressLocked()})
	if update.Terminal {
		m.state = Reduce(m.state, JobFinished{Failed: update.Job.Status != tracker.StatusCompleted})
	}
	m.finalizeLocked()
	state := m.state
	m.mu.Unlock()
	m.notify(state)
}

// finishUntracked records a terminal outcome for a dispatch result that never
// entered the tracker (synchronous responses and immediate failures).
func (m *Manager) finishUntracked(affected []items.Item, status tracker.Status, failed bool) {
	m.mu.Lock()
	for _, item := range affected {
		m.itemStatus[item.ID] = status
	}
	m.untrackedDone++
	m.state = Reduce(m.state, JobFinished{Failed: failed})
	m.state = Reduce(m.state, ProgressUpdated{Progress: m.aggregateProgressLocked()})
	m.finalizeLocked()
	state := m.state
	m.mu.Unlock()
	m.notify(state)
}

// aggregateProgressLocked blends tracked job progress with finished
// untracked results over the total job count.
func (m *Manager) aggregateProgressLocked() float64 {
	if m.state.TotalJobs == 0 {
		return 0
	}
	var tracked float64
	if m.tracker != nil && m.trackedJobs > 0 {
		tracked = m.tracker.Progress() * float64(m.trackedJobs)
	}
	return (tracked + 100*float64(m.untrackedDone)) / float64(m.state.TotalJobs)
}

func (m *Manager) finalizeLocked() {
	if m.active && m.state.Status.Terminal() {
		m.active = false
		if m.cancelRun != nil {
			m.cancelRun()
			m.cancelRun = nil
		}
	}
}

func (m *Manager) fail(message string, err error) {
	m.mu.Lock()
	m.state = Reduce(m.state, Failed{Message: message + ": " + err.Error()})
	state := m.state
	m.mu.Unlock()
	m.logger.Error(message, "error", err)
	m.notify(state)
}

func (m *Manager) notify(state State) {
	m.deps.OnState(state)
}
