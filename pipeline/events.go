package pipeline

import "time"

// EventType is the closed set of events a running pipeline emits.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline_started"
	EventStageStarted      EventType = "stage_started"
	EventStageCompleted    EventType = "stage_completed"
	EventStageFailed       EventType = "stage_failed"
	EventStageRetrying     EventType = "stage_retrying"
	EventParallelStarted   EventType = "parallel_started"
	EventBranchStarted     EventType = "branch_started"
	EventBranchCompleted   EventType = "branch_completed"
	EventParallelCompleted EventType = "parallel_completed"
	EventInterviewStarted  EventType = "interview_started"
	EventInterviewCompleted EventType = "interview_completed"
	EventInterviewTimeout  EventType = "interview_timeout"
	EventCheckpointSaved   EventType = "checkpoint_saved"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineFailed    EventType = "pipeline_failed"
)

// Event is one notification emitted as a pipeline run progresses. Only the
// fields relevant to Type are populated; Data carries anything specific to
// one event kind (e.g. a branch id, an interview's offered choices) rather
// than growing this struct a field per handler.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	NodeID    string
	Attempt   int
	Status    Status
	Notes     string
	Err       error
	Data      map[string]any
}

// Emitter receives Events as a pipeline runs. Emit must not block for long;
// the Engine and built-in handlers call it synchronously on the goroutine
// driving the run (or one branch of it).
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(e Event) { f(e) }

// NopEmitter discards every event. Used as the Engine's default so callers
// that don't care about progress notifications don't have to supply one.
var NopEmitter Emitter = EmitterFunc(func(Event) {})
