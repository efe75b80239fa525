package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sentinelai/sentinel/pkg/logger"
)

// Options configures the memory subsystem.
type Options struct {
	DBPath       string
	DefaultTTL   time.Duration
	FallbackCap  int
	ContextCache time.Duration

	// Context rendering knobs; zero values use the package defaults.
	ContextWindowMinutes int
	ContextMaxEntries    int
}

// Service is the single entry point the rest of the assistant talks to
// for activity memory. Writes never surface errors to callers: when the
// persistent store fails the service flips to a bounded in-memory
// fallback so a dead disk cannot take the conversation loop down.
type Service struct {
	opts     Options
	primary  Store
	fallback *FallbackStore

	usingFallback atomic.Bool

	// ctxCache holds rendered agent context strings keyed by agent
	// name. Any write purges it so agents never see stale activity.
	ctxCache *expirable.LRU[string, string]

	// OnFallback, if set, is called once when the service switches to
	// the in-memory fallback.
	OnFallback func(reason string)

	closeOnce sync.Once
	closeErr  error
}

// NewService opens the persistent store at opts.DBPath. If that fails
// the service starts directly on the in-memory fallback instead of
// returning an error.
func NewService(opts Options) *Service {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	if opts.FallbackCap <= 0 {
		opts.FallbackCap = 100
	}
	if opts.ContextCache <= 0 {
		opts.ContextCache = 30 * time.Second
	}

	svc := &Service{
		opts:     opts,
		fallback: NewFallbackStore(opts.FallbackCap),
		ctxCache: expirable.NewLRU[string, string](32, nil, opts.ContextCache),
	}

	store, err := NewSQLiteStore(opts.DBPath)
	if err != nil {
		logger.WarnCF("memory", "persistent store unavailable, using in-memory fallback", map[string]interface{}{
			"db_path": opts.DBPath,
			"error":   err.Error(),
		})
		svc.usingFallback.Store(true)
	} else {
		svc.primary = store
	}
	return svc
}

// NewServiceWithStore wires an explicit primary store. Used by tests
// and by callers that manage the store lifecycle themselves.
func NewServiceWithStore(store Store, opts Options) *Service {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	if opts.FallbackCap <= 0 {
		opts.FallbackCap = 100
	}
	if opts.ContextCache <= 0 {
		opts.ContextCache = 30 * time.Second
	}
	return &Service{
		opts:     opts,
		primary:  store,
		fallback: NewFallbackStore(opts.FallbackCap),
		ctxCache: expirable.NewLRU[string, string](32, nil, opts.ContextCache),
	}
}

func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.primary != nil {
			s.closeErr = s.primary.Close()
		}
	})
	return s.closeErr
}

// UsingFallback reports whether writes are currently going to the
// in-memory fallback.
func (s *Service) UsingFallback() bool {
	return s.usingFallback.Load()
}

func (s *Service) activeStore() Store {
	if s.usingFallback.Load() || s.primary == nil {
		return s.fallback
	}
	return s.primary
}

func (s *Service) enterFallback(op string, err error) {
	if s.usingFallback.Swap(true) {
		return
	}
	logger.ErrorCF("memory", "switching to in-memory fallback", map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
	if s.OnFallback != nil {
		s.OnFallback(fmt.Sprintf("%s: %v", op, err))
	}
}

// Store appends an activity record and returns its id. It never
// returns an error: a failed persistent write falls back to memory.
// Unknown entry types are coerced to context records rather than lost.
func (s *Service) Store(ctx context.Context, e Entry) string {
	if strings.TrimSpace(e.SessionID) == "" {
		e.SessionID = "no-session"
	}
	if !ValidEntryType(e.Type) {
		logger.WarnCF("memory", "unknown entry type, storing as context", map[string]interface{}{
			"type": string(e.Type),
		})
		e.Type = TypeContext
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = time.Now().Add(s.opts.DefaultTTL)
	}

	s.ctxCache.Purge()

	if !s.usingFallback.Load() && s.primary != nil {
		stored, err := s.primary.Append(ctx, e)
		if err == nil {
			return stored.ID
		}
		s.enterFallback("append", err)
	}

	stored, err := s.fallback.Append(ctx, e)
	if err != nil {
		// The fallback store cannot actually fail; belt and braces.
		logger.ErrorCF("memory", "fallback append failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return stored.ID
}

// StoreCommand records a transcribed user command.
func (s *Service) StoreCommand(ctx context.Context, sessionID, text string) string {
	return s.Store(ctx, Entry{
		SessionID: sessionID,
		Type:      TypeCommand,
		Content:   text,
	})
}

// StoreAgentAction records what an agent did and what came back.
func (s *Service) StoreAgentAction(ctx context.Context, sessionID, agent, action string, meta map[string]string) string {
	return s.Store(ctx, Entry{
		SessionID: sessionID,
		Type:      TypeAgentAction,
		Agent:     agent,
		Content:   action,
		Metadata:  meta,
	})
}

// StoreToolCall records a single tool invocation by an agent.
func (s *Service) StoreToolCall(ctx context.Context, sessionID, agent, tool, detail string) string {
	return s.Store(ctx, Entry{
		SessionID: sessionID,
		Type:      TypeToolCall,
		Agent:     agent,
		Content:   detail,
		Metadata:  map[string]string{"tool": tool},
	})
}

// StoreResult records an agent's final spoken answer.
func (s *Service) StoreResult(ctx context.Context, sessionID, agent, result string) string {
	return s.Store(ctx, Entry{
		SessionID: sessionID,
		Type:      TypeResult,
		Agent:     agent,
		Content:   result,
	})
}

// StoreError records a failure, keyed to the agent that hit it.
func (s *Service) StoreError(ctx context.Context, sessionID, agent, msg string) string {
	return s.Store(ctx, Entry{
		SessionID: sessionID,
		Type:      TypeError,
		Agent:     agent,
		Content:   msg,
	})
}

// GetRecentMemories returns unexpired entries from the last `minutes`
// minutes, newest first, optionally restricted to the given entry
// types. A non-positive window yields an empty slice. Read failures
// are logged and return empty rather than propagating.
func (s *Service) GetRecentMemories(ctx context.Context, minutes, limit int, types ...EntryType) []Entry {
	if minutes <= 0 {
		return []Entry{}
	}
	if limit <= 0 {
		limit = 50
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	out, err := s.activeStore().ListSince(ctx, since, limit, types)
	if err != nil {
		s.enterFallback("list_since", err)
		out, _ = s.fallback.ListSince(ctx, since, limit, types)
	}
	return out
}

// GetSessionHistory returns a session's unexpired entries oldest
// first, capped at limit.
func (s *Service) GetSessionHistory(ctx context.Context, sessionID string, limit int) []Entry {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.activeStore().ListSession(ctx, sessionID, limit)
	if err != nil {
		s.enterFallback("list_session", err)
		out, _ = s.fallback.ListSession(ctx, sessionID, limit)
	}
	return out
}

// GetAgentHistory returns one agent's unexpired entries from the last
// `minutes` minutes, newest first.
func (s *Service) GetAgentHistory(ctx context.Context, agent string, minutes, limit int) []Entry {
	if minutes <= 0 {
		return []Entry{}
	}
	if limit <= 0 {
		limit = 20
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	out, err := s.activeStore().ListAgentSince(ctx, agent, since, limit)
	if err != nil {
		s.enterFallback("list_agent", err)
		out, _ = s.fallback.ListAgentSince(ctx, agent, since, limit)
	}
	return out
}

// GetLastCommand returns the most recent command entry, if any.
func (s *Service) GetLastCommand(ctx context.Context) (Entry, bool) {
	e, ok, err := s.activeStore().LastCommand(ctx)
	if err != nil {
		s.enterFallback("last_command", err)
		e, ok, _ = s.fallback.LastCommand(ctx)
	}
	return e, ok
}

// ClearSession deletes everything recorded for a session.
func (s *Service) ClearSession(ctx context.Context, sessionID string) int {
	s.ctxCache.Purge()
	n, err := s.activeStore().DeleteSession(ctx, sessionID)
	if err != nil {
		s.enterFallback("clear_session", err)
		n, _ = s.fallback.DeleteSession(ctx, sessionID)
	}
	return n
}

// ClearOldMemories deletes entries older than the given age plus any
// whose TTL already passed, and returns the number removed.
func (s *Service) ClearOldMemories(ctx context.Context, olderThan time.Duration) int {
	s.ctxCache.Purge()
	cutoff := time.Now().Add(-olderThan)
	n, err := s.activeStore().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.enterFallback("clear_old", err)
		n, _ = s.fallback.DeleteOlderThan(ctx, cutoff)
	}
	return n
}
