package conversation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/sentinelai/sentinel/pkg/agents"
	"github.com/sentinelai/sentinel/pkg/bus"
	"github.com/sentinelai/sentinel/pkg/logger"
	"github.com/sentinelai/sentinel/pkg/memory"
	"github.com/sentinelai/sentinel/pkg/router"
)

// Session end reasons, reported on the session_ended event.
const (
	EndReasonFinish       = "finish"
	EndReasonCancelled    = "cancelled"
	EndReasonSilence      = "silence"
	EndReasonTurnLimit    = "turn_limit"
	EndReasonNoFollowUp   = "no_follow_up"
	EndReasonAgentFailure = "agent_failure"
	EndReasonShutdown     = "shutdown"
)

// Spoken lines for session endings that reach no agent.
const (
	cancelAcknowledgement = "Okay, cancelling that."
	finishCompletion      = "The task is complete, but I don't have a specific answer to show."
)

// Options tune the conversation loop.
type Options struct {
	MaxTurns        int
	CommandTimeout  time.Duration
	FollowUpTimeout time.Duration
}

func (o *Options) defaults() {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 5
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.FollowUpTimeout <= 0 {
		o.FollowUpTimeout = 10 * time.Second
	}
}

// Loop is the wake-to-sleep conversation state machine. One Loop
// handles one user; sessions run strictly one at a time.
type Loop struct {
	wake   WakeTrigger
	source CommandSource
	sink   SpeechSink
	router *router.Router
	exec   *agents.Executor
	mem    *memory.Service
	events *bus.EventBus
	opts   Options

	state   atomic.Value // State
	running atomic.Bool
}

func NewLoop(wake WakeTrigger, source CommandSource, sink SpeechSink, rt *router.Router, exec *agents.Executor, mem *memory.Service, events *bus.EventBus, opts Options) *Loop {
	opts.defaults()
	l := &Loop{
		wake:   wake,
		source: source,
		sink:   sink,
		router: rt,
		exec:   exec,
		mem:    mem,
		events: events,
		opts:   opts,
	}
	l.state.Store(StateWaitWake)
	return l
}

// CurrentState reports the loop's phase for status surfaces.
func (l *Loop) CurrentState() State {
	return l.state.Load().(State)
}

func (l *Loop) setState(s State) {
	l.state.Store(s)
}

// Run blocks, cycling wake -> session -> wake until ctx is done or a
// shutdown request arrives on the control channel. Session failures
// never escape: every path lands back at WAIT_WAKE.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}
	defer l.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go l.watchControl(ctx, cancel)

	logger.InfoCF("conversation", "loop started", map[string]interface{}{
		"max_turns": l.opts.MaxTurns,
	})

	for {
		l.setState(StateWaitWake)
		l.events.EmitStatus("", bus.StatusIdle)

		if err := l.wake.WaitForWake(ctx); err != nil {
			if ctx.Err() != nil {
				logger.InfoCF("conversation", "loop stopped", nil)
				return nil
			}
			logger.WarnCF("conversation", "wake trigger failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		l.events.Emit(bus.StatusEvent{Type: bus.EventWakeDetected})
		l.runSession(ctx)
	}
}

func (l *Loop) watchControl(ctx context.Context, cancel context.CancelFunc) {
	for {
		ev, ok := l.events.NextControl(ctx)
		if !ok {
			return
		}
		if ev.Type == bus.EventShutdownRequest {
			logger.InfoCF("conversation", "shutdown requested", nil)
			cancel()
			return
		}
	}
}

// runSession drives one woken conversation to its end.
func (l *Loop) runSession(ctx context.Context) {
	sessionID := "sess-" + uuid.NewString()
	logger.InfoCF("conversation", "session started", map[string]interface{}{
		"session_id": sessionID,
	})

	endReason := EndReasonSilence
	defer func() {
		l.setState(StateEnded)
		l.events.Emit(bus.StatusEvent{
			Type:      bus.EventSessionEnded,
			SessionID: sessionID,
			Data:      map[string]interface{}{"reason": endReason},
		})
		logger.InfoCF("conversation", "session ended", map[string]interface{}{
			"session_id": sessionID,
			"reason":     endReason,
		})
	}()

	command, reason, ok := l.listen(ctx, sessionID, StateListenCommand, l.opts.CommandTimeout)
	if !ok {
		endReason = reason
		return
	}

	var history []string
	for turn := 0; ; turn++ {
		if turn >= l.opts.MaxTurns {
			endReason = EndReasonTurnLimit
			return
		}

		history = append(history, "user: "+command)
		speech, reason, ok := l.runTurn(ctx, sessionID, turn, command, history)
		if !ok {
			endReason = reason
			return
		}
		history = append(history, "assistant: "+speech)

		if !ExpectsFollowUp(speech) {
			endReason = EndReasonNoFollowUp
			return
		}
		l.events.Emit(bus.StatusEvent{
			Type:      bus.EventFollowUpDetected,
			SessionID: sessionID,
			Data:      map[string]interface{}{"speech": speech},
		})

		command, reason, ok = l.listen(ctx, sessionID, StateListenFollowUp, l.opts.FollowUpTimeout)
		if !ok {
			endReason = reason
			return
		}
	}
}

// listen captures one utterance and screens it for cancellation.
func (l *Loop) listen(ctx context.Context, sessionID string, phase State, timeout time.Duration) (string, string, bool) {
	l.setState(phase)
	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventListening,
		Status:    bus.StatusListening,
		SessionID: sessionID,
		Data:      map[string]interface{}{"phase": string(phase)},
	})

	text, err := l.source.Capture(ctx, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", EndReasonShutdown, false
		}
		logger.WarnCF("conversation", "capture failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return "", EndReasonSilence, false
	}
	if text == "" {
		return "", EndReasonSilence, false
	}
	if IsCancellation(text) {
		l.events.Emit(bus.StatusEvent{Type: bus.EventCancelConfirmed, SessionID: sessionID})
		l.speak(ctx, sessionID, cancelAcknowledgement)
		return "", EndReasonCancelled, false
	}
	return text, "", true
}

// runTurn routes and executes one command and speaks the outcome.
// The returned bool is false when the session should end.
func (l *Loop) runTurn(ctx context.Context, sessionID string, turn int, command string, history []string) (string, string, bool) {
	turnID := "turn-" + shortuuid.New()
	l.setState(StateActiveTurn)

	l.mem.Store(ctx, memory.Entry{
		SessionID: sessionID,
		Type:      memory.TypeCommand,
		Content:   command,
		Metadata:  map[string]string{"turn_id": turnID},
	})
	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventCommandReceived,
		SessionID: sessionID,
		Data:      map[string]interface{}{"turn_id": turnID, "command": command},
	})

	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventProcessing,
		Status:    bus.StatusThinking,
		SessionID: sessionID,
	})

	label := l.router.Decide(ctx, history)
	if label.Terminal() {
		l.speak(ctx, sessionID, finishCompletion)
		l.emitTurnEnded(sessionID, turnID, "")
		return "", EndReasonFinish, false
	}

	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventAgentStarted,
		SessionID: sessionID,
		Data:      map[string]interface{}{"label": string(label), "turn_id": turnID},
	})

	result, err := l.exec.Execute(ctx, label, sessionID, command)
	if err != nil {
		l.events.EmitError(sessionID, agents.FailureSpeech(err))
		l.speak(ctx, sessionID, agents.FailureSpeech(err))
		l.emitTurnEnded(sessionID, turnID, result.Agent)
		return "", EndReasonAgentFailure, false
	}

	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventAgentCompleted,
		SessionID: sessionID,
		Data: map[string]interface{}{
			"agent":       result.Agent,
			"turn_id":     turnID,
			"duration_ms": result.Duration.Milliseconds(),
		},
	})

	if !l.speak(ctx, sessionID, result.Speech) {
		l.emitTurnEnded(sessionID, turnID, result.Agent)
		return "", EndReasonAgentFailure, false
	}
	l.emitTurnEnded(sessionID, turnID, result.Agent)
	return result.Speech, "", true
}

func (l *Loop) speak(ctx context.Context, sessionID, text string) bool {
	if text == "" {
		return true
	}
	l.setState(StateSpeakResponse)
	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventSpeaking,
		Status:    bus.StatusSpeaking,
		SessionID: sessionID,
		Data:      map[string]interface{}{"text": text},
	})
	if err := l.sink.Speak(ctx, text); err != nil {
		logger.WarnCF("conversation", "speech output failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return false
	}
	return true
}

func (l *Loop) emitTurnEnded(sessionID, turnID, agent string) {
	data := map[string]interface{}{"turn_id": turnID}
	if agent != "" {
		data["agent"] = agent
	}
	l.events.Emit(bus.StatusEvent{
		Type:      bus.EventTurnEnded,
		SessionID: sessionID,
		Data:      data,
	})
}
