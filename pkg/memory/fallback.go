package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FallbackStore is a bounded in-memory Store used when the persistent
// store is unavailable. It keeps the newest entries up to cap and
// drops the oldest beyond that. Nothing survives a restart.
type FallbackStore struct {
	mu       sync.RWMutex
	entries  []Entry
	sessions map[string]*Session
	cap      int
}

func NewFallbackStore(capacity int) *FallbackStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &FallbackStore{
		sessions: make(map[string]*Session),
		cap:      capacity,
	}
}

func (f *FallbackStore) Close() error { return nil }

func (f *FallbackStore) Append(_ context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = "mem-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, e)
	if len(f.entries) > f.cap {
		f.entries = f.entries[len(f.entries)-f.cap:]
	}

	sess, ok := f.sessions[e.SessionID]
	if !ok {
		sess = &Session{SessionID: e.SessionID, CreatedAtMS: e.CreatedAt.UnixMilli()}
		f.sessions[e.SessionID] = sess
	}
	sess.EntryCount++
	sess.UpdatedAtMS = e.CreatedAt.UnixMilli()
	return e, nil
}

func (f *FallbackStore) ListSince(_ context.Context, since time.Time, limit int, types []EntryType) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	out := []Entry{}
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.CreatedAt.Before(since) || e.Expired(now) {
			continue
		}
		if len(types) > 0 && !typeIn(e.Type, types) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func typeIn(ty EntryType, set []EntryType) bool {
	for _, t := range set {
		if t == ty {
			return true
		}
	}
	return false
}

func (f *FallbackStore) ListSession(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	newest := []Entry{}
	for i := len(f.entries) - 1; i >= 0 && len(newest) < limit; i-- {
		e := f.entries[i]
		if e.SessionID != sessionID || e.Expired(now) {
			continue
		}
		newest = append(newest, e)
	}

	// Oldest first, matching the persistent store.
	out := make([]Entry, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		out = append(out, newest[i])
	}
	return out, nil
}

func (f *FallbackStore) ListAgentSince(_ context.Context, agent string, since time.Time, limit int) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	out := []Entry{}
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.Agent != agent || e.CreatedAt.Before(since) || e.Expired(now) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *FallbackStore) LastCommand(_ context.Context) (Entry, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.Type == TypeCommand && !e.Expired(now) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (f *FallbackStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sess, ok := f.sessions[sessionID]
	if !ok {
		return Session{}, sql.ErrNoRows
	}
	return *sess, nil
}

func (f *FallbackStore) DeleteSession(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.entries[:0]
	removed := 0
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	delete(f.sessions, sessionID)
	return removed, nil
}

func (f *FallbackStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	kept := f.entries[:0]
	removed := 0
	for _, e := range f.entries {
		if !e.CreatedAt.After(cutoff) || e.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return removed, nil
}

// Len reports how many entries the fallback currently holds.
func (f *FallbackStore) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
