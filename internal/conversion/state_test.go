package conversion

import "testing"

func TestReduceStartedResetsEverything(t *testing.T) {
	state := State{
		Status:         StatusError,
		Progress:       70,
		TotalJobs:      3,
		CompletedCount: 1,
		ErrorCount:     2,
		Message:        "boom",
	}
	got := Reduce(state, Started{})
	want := State{Status: StatusConverting}
	if got != want {
		t.Fatalf("Reduce(Started) = %#v, want %#v", got, want)
	}
}

func TestReduceDispatchedMovesToProcessing(t *testing.T) {
	state := Reduce(State{Status: StatusConverting}, Dispatched{Jobs: 4})
	if state.Status != StatusProcessing || state.TotalJobs != 4 {
		t.Fatalf("unexpected state %#v", state)
	}
}

func TestReduceProgressIsMonotonic(t *testing.T) {
	state := State{Status: StatusProcessing, TotalJobs: 1}
	state = Reduce(state, ProgressUpdated{Progress: 40})
	state = Reduce(state, ProgressUpdated{Progress: 25})
	if state.Progress != 40 {
		t.Fatalf("Progress = %v, want 40", state.Progress)
	}
	state = Reduce(state, ProgressUpdated{Progress: 140})
	if state.Progress != 100 {
		t.Fatalf("Progress must cap at 100, got %v", state.Progress)
	}
}

func TestReduceJobFinishedCompletesTheRun(t *testing.T) {
	state := State{Status: StatusProcessing, TotalJobs: 2}
	state = Reduce(state, JobFinished{})
	if state.Status != StatusProcessing || state.CompletedCount != 1 {
		t.Fatalf("run finished early: %#v", state)
	}
	state = Reduce(state, JobFinished{Failed: true})
	if state.Status != StatusCompleted {
		t.Fatalf("run should complete once every job is terminal: %#v", state)
	}
	if state.ErrorCount != 1 || state.Progress != 100 {
		t.Fatalf("unexpected final state %#v", state)
	}
}

func TestReducePartialFailureDoesNotFailTheRun(t *testing.T) {
	state := State{Status: StatusProcessing, TotalJobs: 3}
	state = Reduce(state, JobFinished{Failed: true})
	if state.Status != StatusProcessing {
		t.Fatalf("one failed job must not sink the run: %#v", state)
	}
}

func TestReduceTerminalStatesIgnoreEvents(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusCancelled, StatusError} {
		state := State{Status: status, Progress: 50}
		got := Reduce(state, ProgressUpdated{Progress: 90})
		if got != state {
			t.Errorf("terminal state %s mutated: %#v", status, got)
		}
	}
}

func TestReduceFailedAndCancelled(t *testing.T) {
	state := Reduce(State{Status: StatusConverting}, Failed{Message: "dispatch failed"})
	if state.Status != StatusError || state.Message != "dispatch failed" {
		t.Fatalf("unexpected state %#v", state)
	}

	state = Reduce(State{Status: StatusProcessing}, Cancelled{})
	if state.Status != StatusCancelled {
		t.Fatalf("unexpected state %#v", state)
	}
}
