package conversion

// Status is the aggregate lifecycle of one conversion run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConverting Status = "converting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// Terminal reports whether the run can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// State is the aggregate view of a conversion run.
type State struct {
	Status         Status
	Progress       float64
	TotalJobs      int
	CompletedCount int
	ErrorCount     int
	Message        string
}

// Event is one aggregate state transition input.
type Event interface {
	isEvent()
}

// Started marks the beginning of a run; counters and progress reset.
type Started struct{}

// Dispatched records that the service accepted the batch as Jobs units of
// asynchronous work.
type Dispatched struct {
	Jobs int
}

// ProgressUpdated carries a fresh aggregate progress reading.
type ProgressUpdated struct {
	Progress float64
}

// JobFinished records one job reaching a terminal state.
type JobFinished struct {
	Failed bool
}

// Failed marks the whole run as unable to proceed.
type Failed struct {
	Message string
}

// Cancelled marks the run as cancelled by the caller.
type Cancelled struct{}

func (Started) isEvent()         {}
func (Dispatched) isEvent()      {}
func (ProgressUpdated) isEvent() {}
func (JobFinished) isEvent()     {}
func (Failed) isEvent()          {}
func (Cancelled) isEvent()       {}

// Reduce applies one event to the aggregate state. It is a pure function;
// the tracker and orchestrator mutate shared state only through it. Terminal
// states accept nothing but Started.
func Reduce(state State, event Event) State {
	if _, ok := event.(Started); ok {
		return State{Status: StatusConverting}
	}
	if state.Status.Terminal() {
		return state
	}

	switch e := event.(type) {
	case Dispatched:
		state.Status = StatusProcessing
		state.TotalJobs = e.Jobs

	case ProgressUpdated:
		// Regressive readings from out-of-order completions are dropped.
		if e.Progress > state.Progress {
			state.Progress = min(e.Progress, 100)
		}

	case JobFinished:
		if e.Failed {
			state.ErrorCount++
		} else {
			state.CompletedCount++
		}
		if state.TotalJobs > 0 && state.CompletedCount+state.ErrorCount >= state.TotalJobs {
			// Per-item failures do not fail the run; the error count carries
			// them.
			state.Status = StatusCompleted
			state.Progress = 100
		}

	case Failed:
		state.Status = StatusError
		state.Message = e.Message

	case Cancelled:
		state.Status = StatusCancelled
	}
	return state
}
