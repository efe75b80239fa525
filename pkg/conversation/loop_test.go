package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/pkg/agents"
	"github.com/sentinelai/sentinel/pkg/bus"
	"github.com/sentinelai/sentinel/pkg/memory"
	"github.com/sentinelai/sentinel/pkg/providers"
	"github.com/sentinelai/sentinel/pkg/router"
)

// scriptWake fires immediately a fixed number of times, then blocks.
type scriptWake struct {
	remaining int
}

func (w *scriptWake) WaitForWake(ctx context.Context) error {
	if w.remaining <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	w.remaining--
	return nil
}

// scriptSource returns scripted utterances, then silence.
type scriptSource struct {
	mu         sync.Mutex
	utterances []string
	idx        int
}

func (s *scriptSource) Capture(context.Context, time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.utterances) {
		return "", nil
	}
	u := s.utterances[s.idx]
	s.idx++
	return u, nil
}

// recordSink collects everything spoken.
type recordSink struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (r *recordSink) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.spoken = append(r.spoken, text)
	return nil
}

func (r *recordSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spoken...)
}

// scriptedAgent returns canned speeches in order.
type scriptedAgent struct {
	mu       sync.Mutex
	name     string
	speeches []string
	err      error
	idx      int
}

func (a *scriptedAgent) Name() string           { return a.name }
func (a *scriptedAgent) Capabilities() []string { return []string{"scripted"} }
func (a *scriptedAgent) Handle(context.Context, agents.Request) (agents.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return agents.Response{}, a.err
	}
	speech := a.speeches[len(a.speeches)-1]
	if a.idx < len(a.speeches) {
		speech = a.speeches[a.idx]
		a.idx++
	}
	return agents.Response{Speech: speech}, nil
}

type harness struct {
	loop    *Loop
	sink    *recordSink
	events  *bus.EventBus
	mem     *memory.Service
	mu      sync.Mutex
	seen    []bus.StatusEvent
	endedCh chan string
}

// newHarness wires a loop whose music agent follows the given script.
// The router answers Music unless routerAnswer overrides it.
func newHarness(t *testing.T, wakes int, utterances []string, agent *scriptedAgent, routerAnswer ...string) *harness {
	t.Helper()

	mem := memory.NewService(memory.Options{DBPath: filepath.Join(t.TempDir(), "memory.db")})
	t.Cleanup(func() { _ = mem.Close() })

	events := bus.NewEventBus()
	t.Cleanup(events.Close)

	reg := agents.NewRegistry()
	reg.Register(router.LabelMusic, agent)
	exec := agents.NewExecutor(reg, mem, time.Second)

	answer := "Music"
	if len(routerAnswer) > 0 {
		answer = routerAnswer[0]
	}
	rt := router.New(&providers.StaticClient{Responses: []string{answer}})

	sink := &recordSink{}
	h := &harness{
		sink:    sink,
		events:  events,
		mem:     mem,
		endedCh: make(chan string, 8),
	}
	events.Subscribe("test", func(ev bus.StatusEvent) {
		h.mu.Lock()
		h.seen = append(h.seen, ev)
		h.mu.Unlock()
		if ev.Type == bus.EventSessionEnded {
			reason, _ := ev.Data["reason"].(string)
			h.endedCh <- reason
		}
	})

	h.loop = NewLoop(
		&scriptWake{remaining: wakes},
		&scriptSource{utterances: utterances},
		sink,
		rt, exec, mem, events,
		Options{MaxTurns: 5, CommandTimeout: 50 * time.Millisecond, FollowUpTimeout: 50 * time.Millisecond},
	)
	return h
}

// runSessions runs the loop until n sessions end, then stops it.
func (h *harness) runSessions(t *testing.T, n int) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	reasons := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-h.endedCh:
			reasons = append(reasons, r)
		case <-time.After(5 * time.Second):
			cancel()
			t.Fatalf("session %d never ended", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	return reasons
}

func (h *harness) eventTypes() []bus.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bus.EventType, 0, len(h.seen))
	for _, ev := range h.seen {
		out = append(out, ev.Type)
	}
	return out
}

func hasEvent(types []bus.EventType, want bus.EventType) bool {
	for _, ty := range types {
		if ty == want {
			return true
		}
	}
	return false
}

func TestLoop_SingleTurnSession(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{"Playing jazz."}}
	h := newHarness(t, 1, []string{"play some jazz"}, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonNoFollowUp {
		t.Fatalf("end reason = %q, want %q", reasons[0], EndReasonNoFollowUp)
	}

	spoken := h.sink.all()
	if len(spoken) != 1 || spoken[0] != "Playing jazz." {
		t.Fatalf("spoken = %v", spoken)
	}

	types := h.eventTypes()
	for _, want := range []bus.EventType{
		bus.EventWakeDetected,
		bus.EventListening,
		bus.EventCommandReceived,
		bus.EventProcessing,
		bus.EventAgentStarted,
		bus.EventAgentCompleted,
		bus.EventSpeaking,
		bus.EventTurnEnded,
		bus.EventSessionEnded,
	} {
		if !hasEvent(types, want) {
			t.Errorf("missing event %s in %v", want, types)
		}
	}

	// The command and agent action both landed in memory.
	hist := h.mem.GetRecentMemories(context.Background(), 15, 10)
	if len(hist) != 2 {
		t.Fatalf("expected 2 memory records, got %d", len(hist))
	}
}

func TestLoop_FollowUpTurn(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{
		"I found two jazz playlists, which one?",
		"Playing Jazz Classics.",
	}}
	h := newHarness(t, 1, []string{"play some jazz", "the first one"}, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonNoFollowUp {
		t.Fatalf("end reason = %q", reasons[0])
	}

	spoken := h.sink.all()
	if len(spoken) != 2 {
		t.Fatalf("expected 2 responses, got %v", spoken)
	}
	if spoken[1] != "Playing Jazz Classics." {
		t.Fatalf("second response = %q", spoken[1])
	}
	if !hasEvent(h.eventTypes(), bus.EventFollowUpDetected) {
		t.Fatal("missing follow_up_detected event")
	}
}

func TestLoop_CancellationDuringFollowUp(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{"Which playlist do you want?"}}
	h := newHarness(t, 1, []string{"play some jazz", "never mind"}, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonCancelled {
		t.Fatalf("end reason = %q, want cancelled", reasons[0])
	}
	if !hasEvent(h.eventTypes(), bus.EventCancelConfirmed) {
		t.Fatal("missing cancel_confirmed event")
	}

	// The cancellation is acknowledged out loud before the session ends.
	spoken := h.sink.all()
	if len(spoken) != 2 {
		t.Fatalf("spoken = %v, want question then acknowledgement", spoken)
	}
	if spoken[1] != cancelAcknowledgement {
		t.Fatalf("acknowledgement = %q, want %q", spoken[1], cancelAcknowledgement)
	}
}

func TestLoop_FinishRouteSpeaksStockCompletion(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{"unused"}}
	h := newHarness(t, 1, []string{"thanks, that's all"}, agent, "FINISH")

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonFinish {
		t.Fatalf("end reason = %q, want finish", reasons[0])
	}

	spoken := h.sink.all()
	if len(spoken) != 1 || spoken[0] != finishCompletion {
		t.Fatalf("spoken = %v, want the stock completion line", spoken)
	}
	if hasEvent(h.eventTypes(), bus.EventAgentStarted) {
		t.Fatal("no agent should run on a terminal route")
	}
}

func TestLoop_SilentFollowUpEndsSession(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{"Which playlist do you want?"}}
	h := newHarness(t, 1, []string{"play some jazz"}, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonSilence {
		t.Fatalf("end reason = %q, want silence", reasons[0])
	}
	if len(h.sink.all()) != 1 {
		t.Fatalf("spoken = %v", h.sink.all())
	}
}

func TestLoop_TurnLimitBoundsSession(t *testing.T) {
	// Agent always invites another turn; user always answers.
	agent := &scriptedAgent{name: "music", speeches: []string{"Anything else?"}}
	utterances := []string{"one", "two", "three", "four", "five", "six", "seven"}
	h := newHarness(t, 1, utterances, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonTurnLimit {
		t.Fatalf("end reason = %q, want turn_limit", reasons[0])
	}
	if got := len(h.sink.all()); got != 5 {
		t.Fatalf("spoke %d times, want exactly MaxTurns=5", got)
	}
}

func TestLoop_AgentFailureSpeaksSanitizedAndEnds(t *testing.T) {
	agent := &scriptedAgent{name: "music", err: errors.New("spotify api 500 at /v1/play")}
	h := newHarness(t, 1, []string{"play some jazz"}, agent)

	reasons := h.runSessions(t, 1)
	if reasons[0] != EndReasonAgentFailure {
		t.Fatalf("end reason = %q, want agent_failure", reasons[0])
	}

	spoken := h.sink.all()
	if len(spoken) != 1 {
		t.Fatalf("spoken = %v", spoken)
	}
	for _, s := range spoken {
		if s == "" || containsAny(s, "500", "/v1/play", "spotify") {
			t.Fatalf("sanitized speech leaked detail: %q", s)
		}
	}
	if !hasEvent(h.eventTypes(), bus.EventError) {
		t.Fatal("missing error event")
	}
}

func TestLoop_SecondWakeStartsFreshSession(t *testing.T) {
	agent := &scriptedAgent{name: "music", speeches: []string{"Done."}}
	h := newHarness(t, 2, []string{"play jazz", "play rock"}, agent)

	reasons := h.runSessions(t, 2)
	if len(reasons) != 2 {
		t.Fatalf("expected 2 sessions, got %v", reasons)
	}
}

func TestIsCancellation(t *testing.T) {
	for _, yes := range []string{"cancel", "Stop", " never mind ", "NEVERMIND", "forget it."} {
		if !IsCancellation(yes) {
			t.Errorf("IsCancellation(%q) = false", yes)
		}
	}
	for _, no := range []string{"", "stop the music", "cancel my 3pm meeting", "don't stop"} {
		if IsCancellation(no) {
			t.Errorf("IsCancellation(%q) = true", no)
		}
	}
}

func TestExpectsFollowUp(t *testing.T) {
	for _, yes := range []string{
		"Which playlist do you want?",
		"Which day? I can check both.",
		"Could you tell me which day",
		"Please specify the playlist name",
		"I can do that. Anything else",
		"Should I open the first result",
	} {
		if !ExpectsFollowUp(yes) {
			t.Errorf("ExpectsFollowUp(%q) = false", yes)
		}
	}
	for _, no := range []string{"", "Playing jazz.", "Done"} {
		if ExpectsFollowUp(no) {
			t.Errorf("ExpectsFollowUp(%q) = true", no)
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
