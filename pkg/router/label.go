package router

import "strings"

// Label is a routing destination. The set is closed: anything a
// classifier produces outside it collapses to Finish.
type Label string

const (
	LabelBrowser      Label = "Browser"
	LabelMusic        Label = "Music"
	LabelMeeting      Label = "Meeting"
	LabelSystem       Label = "System"
	LabelProductivity Label = "Productivity"

	// LabelFinish is the terminal decision: nothing to dispatch.
	LabelFinish Label = "FINISH"
)

// AgentLabels lists every dispatchable label, in prompt order.
// LabelFinish is deliberately not included.
func AgentLabels() []Label {
	return []Label{LabelBrowser, LabelMusic, LabelMeeting, LabelSystem, LabelProductivity}
}

// ParseLabel maps raw classifier output to a Label. Matching is
// strict: the text must be exactly one canonical label name after
// surrounding whitespace is removed. Everything else is Finish.
func ParseLabel(raw string) Label {
	trimmed := strings.TrimSpace(raw)
	switch Label(trimmed) {
	case LabelBrowser, LabelMusic, LabelMeeting, LabelSystem, LabelProductivity, LabelFinish:
		return Label(trimmed)
	}
	return LabelFinish
}

// Terminal reports whether the label ends the routing turn.
func (l Label) Terminal() bool {
	return l == LabelFinish
}
