package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/pkg/providers"
	"github.com/sentinelai/sentinel/pkg/router"
)

// LLMAgent answers a command through a chat model with a fixed role
// description. Each built-in worker is one of these until it grows a
// real integration behind it.
type LLMAgent struct {
	name         string
	description  string
	capabilities []string
	client       providers.ChatClient
}

func NewLLMAgent(name, description string, capabilities []string, client providers.ChatClient) *LLMAgent {
	return &LLMAgent{
		name:         name,
		description:  description,
		capabilities: capabilities,
		client:       client,
	}
}

func (a *LLMAgent) Name() string { return a.name }

func (a *LLMAgent) Capabilities() []string { return a.capabilities }

func (a *LLMAgent) Handle(ctx context.Context, req Request) (Response, error) {
	if a.client == nil {
		return Response{}, fmt.Errorf("agent %s: no chat client", a.name)
	}

	var sys strings.Builder
	sys.WriteString("You are the ")
	sys.WriteString(a.name)
	sys.WriteString(" agent of a voice assistant. ")
	sys.WriteString(a.description)
	sys.WriteString("\nAnswer in one or two short sentences suitable for speech.")
	if req.Context != "" {
		sys.WriteString("\n\n")
		sys.WriteString(req.Context)
	}

	speech, err := a.client.Complete(ctx, sys.String(), req.Command)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Speech:       strings.TrimSpace(speech),
		Capabilities: []string{"respond"},
	}, nil
}

// DefaultRegistry wires an LLM-backed worker for every routing label.
func DefaultRegistry(client providers.ChatClient) *Registry {
	reg := NewRegistry()
	reg.Register(router.LabelBrowser, NewLLMAgent(
		"browser",
		"You handle web lookups: opening sites, searching, and summarizing pages the user asks about.",
		[]string{"open_url", "search", "summarize"},
		client,
	))
	reg.Register(router.LabelMusic, NewLLMAgent(
		"music",
		"You control music playback: playing, pausing, skipping, and finding songs or playlists.",
		[]string{"play", "pause", "skip", "find_track"},
		client,
	))
	reg.Register(router.LabelMeeting, NewLLMAgent(
		"meeting",
		"You manage meetings: scheduling, joining, and recapping calendar events.",
		[]string{"schedule", "join", "recap"},
		client,
	))
	reg.Register(router.LabelSystem, NewLLMAgent(
		"system",
		"You handle machine controls: volume, display, timers, and simple system settings.",
		[]string{"volume", "display", "timer"},
		client,
	))
	reg.Register(router.LabelProductivity, NewLLMAgent(
		"productivity",
		"You manage notes, reminders, and todo lists for the user.",
		[]string{"note", "remind", "todo"},
		client,
	))
	return reg
}
