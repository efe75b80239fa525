package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/pkg/logger"
	"github.com/sentinelai/sentinel/pkg/providers"
)

// Router decides which agent handles a transcribed command. It fails
// closed: any classifier problem yields the terminal Finish decision
// instead of a guessed dispatch.
type Router struct {
	client providers.ChatClient
	prompt string
}

func New(client providers.ChatClient) *Router {
	return &Router{
		client: client,
		prompt: supervisorPrompt(),
	}
}

func supervisorPrompt() string {
	names := make([]string, 0, len(AgentLabels()))
	for _, l := range AgentLabels() {
		names = append(names, string(l))
	}
	return fmt.Sprintf(
		"You are a supervisor routing a voice conversation to a worker or deciding the request is complete.\n"+
			"Workers: %s.\n"+
			"You receive the conversation so far; the most recent user line decides the route, earlier lines are context.\n"+
			"Respond with FINISH when no worker applies or the conversation is done.\n"+
			"Your response MUST BE exactly one word: %s, or FINISH.",
		strings.Join(names, ", "), strings.Join(names, ", "))
}

// Decide classifies the conversation so far into a Label. The full
// ordered history goes to the classifier so follow-ups like "the
// first one" are read against the turns before them. An empty
// history, a nil classifier, classifier errors, and out-of-set
// answers all return Finish.
func (r *Router) Decide(ctx context.Context, history []string) Label {
	transcript := strings.TrimSpace(strings.Join(history, "\n"))
	if transcript == "" {
		return LabelFinish
	}
	if r.client == nil {
		logger.WarnCF("router", "no classifier configured, finishing", nil)
		return LabelFinish
	}

	raw, err := r.client.Complete(ctx, r.prompt, transcript)
	if err != nil {
		logger.WarnCF("router", "classifier failed, finishing", map[string]interface{}{
			"error": err.Error(),
		})
		return LabelFinish
	}

	label := ParseLabel(raw)
	if label == LabelFinish && strings.TrimSpace(raw) != string(LabelFinish) {
		logger.WarnCF("router", "classifier returned out-of-set answer", map[string]interface{}{
			"raw": raw,
		})
	}
	logger.DebugCF("router", "routing decision", map[string]interface{}{
		"label": string(label),
	})
	return label
}
