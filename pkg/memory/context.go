package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	contextWindow     = 15 * time.Minute
	contextMaxEntries = 5
	contextMaxChars   = 100
)

// ContextForAgent renders recent activity as a prompt block for the
// named agent. When includeOthers is false, entries recorded by a
// different agent are left out. Empty string when there is nothing
// recent to tell. Rendered blocks are cached until the next write.
func (s *Service) ContextForAgent(ctx context.Context, agent string, includeOthers bool) string {
	key := agent
	if !includeOthers {
		key = agent + "|own"
	}
	if cached, ok := s.ctxCache.Get(key); ok {
		return cached
	}

	window := contextWindow
	if mins := s.opts.ContextWindowMinutes; mins > 0 {
		window = time.Duration(mins) * time.Minute
	}
	maxEntries := contextMaxEntries
	if s.opts.ContextMaxEntries > 0 {
		maxEntries = s.opts.ContextMaxEntries
	}

	// Only commands, agent actions, and results read well as context;
	// tool calls and error records stay out of agent prompts.
	types := []EntryType{TypeCommand, TypeAgentAction, TypeResult}
	since := time.Now().Add(-window)
	entries, err := s.activeStore().ListSince(ctx, since, maxEntries, types)
	if err != nil {
		s.enterFallback("context_for_agent", err)
		entries, _ = s.fallback.ListSince(ctx, since, maxEntries, types)
	}

	rendered := RenderContext(agent, entries, includeOthers)
	s.ctxCache.Add(key, rendered)
	return rendered
}

// RenderContext formats entries into the recent-activity block agents
// receive ahead of the user's request. Entries arrive newest first and
// are rendered oldest first so the narrative reads forward in time.
func RenderContext(agent string, entries []Entry, includeOthers bool) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("[Recent Activity]\n")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !includeOthers && e.Agent != "" && e.Agent != agent {
			continue
		}
		line := contextLine(agent, e)
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(truncate(line, contextMaxChars))
		b.WriteString("\n")
	}

	out := b.String()
	if out == "[Recent Activity]\n" {
		return ""
	}
	return strings.TrimRight(out, "\n")
}

func contextLine(agent string, e Entry) string {
	switch e.Type {
	case TypeCommand:
		return fmt.Sprintf("User asked: %q", e.Content)
	case TypeAgentAction, TypeResult:
		who := e.Agent
		if who == "" {
			who = "assistant"
		}
		if who == agent {
			return fmt.Sprintf("You previously: %s", e.Content)
		}
		return fmt.Sprintf("%s: %s", who, e.Content)
	case TypeToolCall:
		tool := e.Metadata["tool"]
		if tool == "" {
			return fmt.Sprintf("%s ran a tool: %s", e.Agent, e.Content)
		}
		return fmt.Sprintf("%s used %s: %s", e.Agent, tool, e.Content)
	case TypeError:
		return fmt.Sprintf("error (%s): %s", e.Agent, e.Content)
	case TypeContext:
		return e.Content
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never splits UTF-8.
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
