package session

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/stella/pkg/language"
)

// MemoryStore keeps sessions in process. Sessions idle for longer than
// IdleTTL are dropped by Sweep; zero disables expiry.
type MemoryStore struct {
	IdleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		IdleTTL:  idleTTL,
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, callID string) error {
	now := s.now()
	s.mu.Lock()
	s.sessions[callID] = Session{
		CallID:    callID,
		Language:  language.Default,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, callID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	return sess, ok, nil
}

func (s *MemoryStore) Update(_ context.Context, callID string, lang language.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return nil
	}
	sess.Language = lang
	sess.UpdatedAt = s.now()
	s.sessions[callID] = sess
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, callID string) error {
	s.mu.Lock()
	delete(s.sessions, callID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions whose last write is older than IdleTTL and returns
// their call ids.
func (s *MemoryStore) Sweep(now time.Time) []string {
	if s.IdleTTL <= 0 {
		return nil
	}
	cutoff := now.Add(-s.IdleTTL)
	var expired []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	return expired
}

// Run sweeps every interval until ctx is done. onExpire, when set, receives
// each expired call id.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration, onExpire func(callID string)) {
	if s.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range s.Sweep(now) {
				if onExpire != nil {
					onExpire(id)
				}
			}
		}
	}
}
