package conversation

import (
	"context"
	"strings"
	"time"
)

// State names the phase the conversation loop is in.
type State string

const (
	StateWaitWake       State = "WAIT_WAKE"
	StateListenCommand  State = "LISTEN_COMMAND"
	StateActiveTurn     State = "ACTIVE_TURN"
	StateSpeakResponse  State = "SPEAK_RESPONSE"
	StateListenFollowUp State = "LISTEN_FOLLOWUP"
	StateEnded          State = "ENDED"
)

// WakeTrigger blocks until the wake word is detected.
type WakeTrigger interface {
	WaitForWake(ctx context.Context) error
}

// CommandSource captures one utterance as text. An empty string with a
// nil error means nothing usable was heard before the timeout.
type CommandSource interface {
	Capture(ctx context.Context, timeout time.Duration) (string, error)
}

// SpeechSink renders a response to the user.
type SpeechSink interface {
	Speak(ctx context.Context, text string) error
}

// cancellationPhrases end the session immediately when heard on their
// own. Matching is case-insensitive on the trimmed utterance.
var cancellationPhrases = map[string]struct{}{
	"cancel":     {},
	"stop":       {},
	"nevermind":  {},
	"never mind": {},
	"forget it":  {},
}

// IsCancellation reports whether the utterance is a bare cancellation
// phrase.
func IsCancellation(text string) bool {
	key := strings.ToLower(strings.TrimSpace(text))
	key = strings.TrimRight(key, ".!")
	_, ok := cancellationPhrases[key]
	return ok
}

// followUpCues mark a spoken response as inviting another utterance.
var followUpCues = []string{
	"anything else",
	"would you like",
	"do you want",
	"could you",
	"can you",
	"please specify",
	"should i",
	"shall i",
	"which one",
	"what else",
}

// ExpectsFollowUp decides whether the assistant's response invites the
// user to keep talking. A question mark anywhere counts, so trailing
// chatter after the question does not hide it. Unknown shapes default
// to false so a session never hangs open on an ambiguous answer.
func ExpectsFollowUp(speech string) bool {
	s := strings.ToLower(strings.TrimSpace(speech))
	if s == "" {
		return false
	}
	if strings.Contains(s, "?") {
		return true
	}
	for _, cue := range followUpCues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
