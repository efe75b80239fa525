package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentinelai/sentinel/pkg/logger"
	"github.com/sentinelai/sentinel/pkg/memory"
	"github.com/sentinelai/sentinel/pkg/router"
)

// ErrNoAgent means the routing label has no registered capability set.
var ErrNoAgent = errors.New("no agent registered for label")

// sanitizedFailure is the only failure text that ever reaches the
// user's ears. Details stay in logs and memory.
const sanitizedFailure = "Sorry, I ran into a problem with that request."

// Result is the outcome of one agent execution.
type Result struct {
	Agent        string
	Speech       string
	Capabilities []string
	Duration     time.Duration
}

// Executor dispatches routed commands to agents, injects recent
// activity context, records the outcome in memory, and bounds every
// run with a timeout.
type Executor struct {
	registry *Registry
	mem      *memory.Service
	timeout  time.Duration
}

func NewExecutor(registry *Registry, mem *memory.Service, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{registry: registry, mem: mem, timeout: timeout}
}

// Execute runs the agent registered for label. The returned error is
// sanitized for speech via FailureSpeech; the underlying cause is
// logged and stored as an error record.
func (e *Executor) Execute(ctx context.Context, label router.Label, sessionID, command string) (Result, error) {
	cs, ok := e.registry.Lookup(label)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoAgent, label)
		e.recordFailure(ctx, sessionID, strings.ToLower(string(label)), err)
		return Result{}, err
	}

	req := Request{
		SessionID: sessionID,
		Command:   command,
		Context:   e.mem.ContextForAgent(ctx, cs.Name(), true),
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := cs.Handle(runCtx, req)
	elapsed := time.Since(start)

	if err != nil {
		e.recordFailure(ctx, sessionID, cs.Name(), err)
		e.mem.StoreAgentAction(ctx, sessionID, cs.Name(), clip(err.Error(), actionClipChars), map[string]string{
			"input":       clip(command, actionClipChars),
			"success":     "false",
			"duration_ms": fmt.Sprintf("%d", elapsed.Milliseconds()),
		})
		return Result{Agent: cs.Name(), Duration: elapsed}, fmt.Errorf("agent %s: %w", cs.Name(), err)
	}

	caps := dedupe(resp.Capabilities)
	meta := map[string]string{
		"input":       clip(command, actionClipChars),
		"success":     "true",
		"duration_ms": fmt.Sprintf("%d", elapsed.Milliseconds()),
	}
	if len(caps) > 0 {
		meta["capabilities"] = strings.Join(caps, ",")
	}
	e.mem.StoreAgentAction(ctx, sessionID, cs.Name(), clip(resp.Speech, actionClipChars), meta)

	logger.InfoCF("agents", "agent completed", map[string]interface{}{
		"agent":       cs.Name(),
		"duration_ms": elapsed.Milliseconds(),
	})

	return Result{
		Agent:        cs.Name(),
		Speech:       resp.Speech,
		Capabilities: caps,
		Duration:     elapsed,
	}, nil
}

func (e *Executor) recordFailure(ctx context.Context, sessionID, agent string, err error) {
	logger.ErrorCF("agents", "agent execution failed", map[string]interface{}{
		"agent": agent,
		"error": err.Error(),
	})
	e.mem.StoreError(ctx, sessionID, agent, err.Error())
}

// FailureSpeech is the user-facing line for any execution error.
func FailureSpeech(error) string {
	return sanitizedFailure
}

// actionClipChars bounds the input/output text kept on an agent
// action record so one verbose turn cannot bloat memory.
const actionClipChars = 500

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
