package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sentinelai/sentinel/pkg/providers"
)

type errClient struct{}

func (errClient) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("provider down")
}

// recordClient captures the user message handed to the classifier.
type recordClient struct {
	lastUser string
	answer   string
}

func (c *recordClient) Complete(_ context.Context, _ string, user string) (string, error) {
	c.lastUser = user
	return c.answer, nil
}

func TestParseLabel(t *testing.T) {
	cases := []struct {
		raw  string
		want Label
	}{
		{"Browser", LabelBrowser},
		{"Music", LabelMusic},
		{"Meeting", LabelMeeting},
		{"System", LabelSystem},
		{"Productivity", LabelProductivity},
		{"FINISH", LabelFinish},
		{"  Browser ", LabelBrowser},
		{"\nFINISH\n", LabelFinish},
		{"browser", LabelFinish},    // wrong case
		{"MUSIC", LabelFinish},      // wrong case
		{"Browser.", LabelFinish},   // trailing punctuation
		{"Use Browser", LabelFinish}, // multi-word
		{"Spotify", LabelFinish},    // unknown worker
		{"", LabelFinish},
	}
	for _, tc := range cases {
		if got := ParseLabel(tc.raw); got != tc.want {
			t.Errorf("ParseLabel(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDecide_RoutesValidAnswer(t *testing.T) {
	r := New(&providers.StaticClient{Responses: []string{"Music"}})
	if got := r.Decide(context.Background(), []string{"user: play some jazz"}); got != LabelMusic {
		t.Fatalf("Decide = %q, want Music", got)
	}
}

func TestDecide_EmptyHistoryFinishes(t *testing.T) {
	r := New(&providers.StaticClient{Responses: []string{"Browser"}})
	if got := r.Decide(context.Background(), nil); got != LabelFinish {
		t.Fatalf("Decide on nil history = %q, want FINISH", got)
	}
	if got := r.Decide(context.Background(), []string{"   ", ""}); got != LabelFinish {
		t.Fatalf("Decide on blank history = %q, want FINISH", got)
	}
}

func TestDecide_PassesFullHistoryToClassifier(t *testing.T) {
	client := &recordClient{answer: "Music"}
	r := New(client)

	history := []string{
		"user: play some jazz",
		"assistant: I found two jazz playlists, which one?",
		"user: the first one",
	}
	if got := r.Decide(context.Background(), history); got != LabelMusic {
		t.Fatalf("Decide = %q, want Music", got)
	}

	for _, line := range history {
		if !strings.Contains(client.lastUser, line) {
			t.Errorf("classifier input missing %q: %q", line, client.lastUser)
		}
	}
	if !strings.HasSuffix(client.lastUser, "user: the first one") {
		t.Errorf("latest utterance not last in classifier input: %q", client.lastUser)
	}
}

func TestDecide_ClassifierErrorFinishes(t *testing.T) {
	r := New(errClient{})
	if got := r.Decide(context.Background(), []string{"user: play some jazz"}); got != LabelFinish {
		t.Fatalf("Decide on error = %q, want FINISH", got)
	}
}

func TestDecide_NilClassifierFinishes(t *testing.T) {
	r := New(nil)
	if got := r.Decide(context.Background(), []string{"user: open a tab"}); got != LabelFinish {
		t.Fatalf("Decide with nil client = %q, want FINISH", got)
	}
}

func TestDecide_OutOfSetAnswerFinishes(t *testing.T) {
	r := New(&providers.StaticClient{Responses: []string{"I think the Browser agent should handle this"}})
	if got := r.Decide(context.Background(), []string{"user: open a tab"}); got != LabelFinish {
		t.Fatalf("Decide on chatty answer = %q, want FINISH", got)
	}
}

func TestTerminal(t *testing.T) {
	if !LabelFinish.Terminal() {
		t.Error("FINISH must be terminal")
	}
	for _, l := range AgentLabels() {
		if l.Terminal() {
			t.Errorf("%q must not be terminal", l)
		}
	}
}
