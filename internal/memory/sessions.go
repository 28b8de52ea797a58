// Package memory keeps a bounded recent-turn history per conversation,
// persisted on every append so a restart can pick up where it left off.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/tasks"
)

const (
	// DefaultSize is the number of turns kept per conversation
	DefaultSize = 12
	// DefaultIdleTTL is how long an untouched session stays in memory
	DefaultIdleTTL = 2 * time.Hour
)

// Scope identifies one conversation: a user within a chat
type Scope struct {
	ChatID string
	UserID string
}

// String returns a string representation of the scope
func (s Scope) String() string {
	return s.ChatID + ":" + s.UserID
}

type session struct {
	turns      []tasks.Turn
	lastActive time.Time
}

// Sessions is the in-memory ring buffer per Scope, backed by a HistoryStore
type Sessions struct {
	mu       sync.Mutex
	sessions map[Scope]*session
	store    tasks.HistoryStore
	size     int
	idleTTL  time.Duration
	now      func() time.Time
}

// New creates a session store. size <= 0 uses DefaultSize; idleTTL <= 0
// disables idle eviction.
func New(store tasks.HistoryStore, size int, idleTTL time.Duration) *Sessions {
	if size <= 0 {
		size = DefaultSize
	}
	return &Sessions{
		sessions: make(map[Scope]*session),
		store:    store,
		size:     size,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Size returns the per-conversation bound
func (s *Sessions) Size() int {
	return s.size
}

// load returns the session for scope, rehydrating it from the store on first
// use. The store read happens outside the lock.
func (s *Sessions) load(ctx context.Context, scope Scope) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[scope]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	var turns []tasks.Turn
	if s.store != nil {
		var err error
		turns, err = s.store.RecentTurns(ctx, scope.ChatID, scope.UserID, s.size)
		if err != nil {
			return nil, fmt.Errorf("rehydrate %s: %w", scope, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[scope]; ok {
		return existing, nil
	}
	sess = &session{turns: turns, lastActive: s.now()}
	s.sessions[scope] = sess
	if len(turns) > 0 {
		logging.Debug("memory", "rehydrated %d turns for %s", len(turns), scope)
	}
	return sess, nil
}

// History returns a copy of the recent turns for scope, oldest first
func (s *Sessions) History(ctx context.Context, scope Scope) ([]tasks.Turn, error) {
	sess, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.lastActive = s.now()
	out := make([]tasks.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Record appends a turn. The persisted copy is written first; the in-memory
// buffer is updated either way and trimmed from the front.
func (s *Sessions) Record(ctx context.Context, scope Scope, role, content string) error {
	sess, err := s.load(ctx, scope)
	if err != nil {
		return err
	}

	turn := tasks.Turn{
		ChatID:    scope.ChatID,
		UserID:    scope.UserID,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}

	var persistErr error
	if s.store != nil {
		if err := s.store.AppendTurn(ctx, turn, s.size); err != nil {
			persistErr = fmt.Errorf("persist turn for %s: %w", scope, err)
		}
	}

	s.mu.Lock()
	sess.turns = append(sess.turns, turn)
	if excess := len(sess.turns) - s.size; excess > 0 {
		sess.turns = append([]tasks.Turn(nil), sess.turns[excess:]...)
	}
	sess.lastActive = turn.Timestamp
	s.mu.Unlock()

	return persistErr
}

// Evict drops a session from memory; the persisted history stays
func (s *Sessions) Evict(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, scope)
}

// EvictIdle drops sessions untouched for longer than the idle TTL
func (s *Sessions) EvictIdle() int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	evicted := 0
	for scope, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, scope)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of sessions held in memory
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartJanitor evicts idle sessions every interval until ctx is done
func (s *Sessions) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.EvictIdle(); n > 0 {
					logging.Debug("memory", "evicted %d idle sessions", n)
				}
			}
		}
	}()
}
