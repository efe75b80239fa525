package memory

import "time"

// EntryType classifies what an activity record captures.
type EntryType string

const (
	TypeCommand     EntryType = "command"
	TypeAgentAction EntryType = "agent_action"
	TypeToolCall    EntryType = "tool_call"
	TypeResult      EntryType = "result"
	TypeContext     EntryType = "context"
	TypeError       EntryType = "error"
)

// ValidEntryType reports whether t is one of the known record types.
func ValidEntryType(t EntryType) bool {
	switch t {
	case TypeCommand, TypeAgentAction, TypeToolCall, TypeResult, TypeContext, TypeError:
		return true
	}
	return false
}

// Entry is one append-only activity record. Entries expire at
// ExpiresAt; a zero ExpiresAt means they are kept until a retention
// sweep removes them.
type Entry struct {
	ID        string
	SessionID string
	Type      EntryType
	Agent     string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry's TTL has passed at the given time.
func (e Entry) Expired(at time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(at)
}

// Session captures persistent per-conversation state.
type Session struct {
	SessionID   string
	UserID      string
	CreatedAtMS int64
	UpdatedAtMS int64
	EntryCount  int
}
