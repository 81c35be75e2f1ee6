package pipeline

// EventKind classifies progress events.
type EventKind string

const (
	EventStageStarted  EventKind = "stage_started"
	EventStageFinished EventKind = "stage_finished"
	EventSlideRendered EventKind = "slide_rendered"
	EventSlideSkipped  EventKind = "slide_skipped"
	EventPageCaptured  EventKind = "page_captured"
)

// Event is one progress notification.
type Event struct {
	RunID string
	Kind  EventKind
	Stage Stage
	Slide int
	Done  int
	Total int
	Err   error
}

// Observer receives events synchronously from the run goroutine.
type Observer func(Event)

func (o *Orchestrator) emit(ev Event) {
	if o.observer != nil {
		o.observer(ev)
	}
}
