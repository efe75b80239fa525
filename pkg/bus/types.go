package bus

import "time"

// EventType identifies what happened inside the assistant core.
type EventType string

const (
	EventWakeDetected     EventType = "wake_detected"
	EventListening        EventType = "listening"
	EventCommandReceived  EventType = "command_received"
	EventProcessing       EventType = "processing"
	EventAgentStarted     EventType = "agent_started"
	EventAgentCompleted   EventType = "agent_completed"
	EventSpeaking         EventType = "speaking"
	EventFollowUpDetected EventType = "follow_up_detected"
	EventTurnEnded        EventType = "turn_ended"
	EventSessionEnded     EventType = "session_ended"
	EventError            EventType = "error"
	EventStatusChange     EventType = "status_change"
	EventShutdownRequest  EventType = "shutdown_request"
	EventCancelConfirmed  EventType = "cancel_confirmed"
	EventMemorySweep      EventType = "memory_sweep"
	EventFallbackActive   EventType = "memory_fallback_active"
	EventFallbackRestored EventType = "memory_fallback_restored"
)

// Status values reported alongside status_change events.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusThinking  Status = "thinking"
	StatusSpeaking  Status = "speaking"
	StatusError     Status = "error"
)

// StatusEvent flows from the core out to observers (UI, logs, tests).
type StatusEvent struct {
	Type      EventType
	Status    Status
	SessionID string
	Data      map[string]interface{}
	Error     string
	Timestamp time.Time
}

// ControlEvent flows the other way: observers asking the core to do
// something, like a shutdown request.
type ControlEvent struct {
	Type      EventType
	Data      map[string]interface{}
	Timestamp time.Time
}

// StatusHandler receives status events published while it is subscribed.
type StatusHandler func(StatusEvent)
