// Package threads stores the message history of conversation threads so that a
// turn can be rehydrated from its thread id alone.
package threads

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/huandu/go-clone"
)

// DefaultTTL is how long an idle thread is kept.
const DefaultTTL = 24 * time.Hour

// Store is implemented by MemoryStore and RedisStore; it satisfies agent.ThreadStore.
type Store interface {
	Load(ctx context.Context, threadID string) ([]engine.Message, error)
	Save(ctx context.Context, threadID string, messages []engine.Message) error
	Delete(ctx context.Context, threadID string) error
	Close() error
}

type memoryEntry struct {
	messages  []engine.Message
	expiresAt time.Time
}

// MemoryStore keeps threads in process. Saving a thread extends its expiry.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	threads map[string]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{ttl: DefaultTTL, now: time.Now, threads: map[string]memoryEntry{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns a copy of the thread's messages; unknown and expired threads are empty.
func (s *MemoryStore) Load(_ context.Context, threadID string) ([]engine.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.threads, threadID)
		return nil, nil
	}
	return clone.Clone(e.messages).([]engine.Message), nil
}

func (s *MemoryStore) Save(_ context.Context, threadID string, messages []engine.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = memoryEntry{
		messages:  clone.Clone(messages).([]engine.Message),
		expiresAt: s.now().Add(s.ttl),
	}
	s.sweep()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Len is the number of live threads.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return len(s.threads)
}

func (s *MemoryStore) Close() error {
	return nil
}

// sweep drops expired threads. The caller holds mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	for id, e := range s.threads {
		if !now.Before(e.expiresAt) {
			delete(s.threads, id)
		}
	}
}
