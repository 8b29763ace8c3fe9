package domain

import "encoding/json"

// EventKind classifies a raw event delivered by an external source.
// It is the filter key callbacks register against.
type EventKind string

const (
	// Compositor IPC events.
	EventWorkspace EventKind = "workspace"
	EventMode      EventKind = "mode"
	EventWindow    EventKind = "window"
	EventBinding   EventKind = "binding"
	EventShutdown  EventKind = "shutdown"
	EventTick      EventKind = "tick"
	EventBarState  EventKind = "bar_state_update"
	EventInput     EventKind = "input"

	// System-bus events.
	EventPropertiesChanged EventKind = "properties_changed"

	// EventUnknown is the forward-compatibility fallback for raw events the
	// bridge does not recognize. It is never an error.
	EventUnknown EventKind = "unknown"
)

// RawEvent is one event as read off an external source, before any domain
// projection. Payload carries the untouched wire body so callbacks can
// extract what they need.
type RawEvent struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq"`
}

// Callback is invoked by the dispatcher with each raw event of a matching
// kind. Callbacks must not block; typical implementations forward the event
// onto a channel.
type Callback func(ev *RawEvent)
