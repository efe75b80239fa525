package memory

import (
	"context"
	"time"
)

// Store provides durable persistence for activity records. All read
// methods filter out expired entries.
type Store interface {
	Close() error

	Append(ctx context.Context, e Entry) (Entry, error)
	ListSince(ctx context.Context, since time.Time, limit int, types []EntryType) ([]Entry, error)
	ListSession(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	ListAgentSince(ctx context.Context, agent string, since time.Time, limit int) ([]Entry, error)
	LastCommand(ctx context.Context) (Entry, bool, error)

	GetSession(ctx context.Context, sessionID string) (Session, error)

	DeleteSession(ctx context.Context, sessionID string) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
