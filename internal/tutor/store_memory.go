package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the development store used when no REDIS_URL is configured.
// Entries are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]memEntry
	clips      map[string]memEntry
	sessionTTL time.Duration
	clipTTL    time.Duration
	now        func() time.Time
}

func NewMemoryStore(sessionTTL, clipTTL time.Duration) *MemoryStore {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if clipTTL <= 0 {
		clipTTL = DefaultClipTTL
	}
	return &MemoryStore{
		sessions:   make(map[string]memEntry),
		clips:      make(map[string]memEntry),
		sessionTTL: sessionTTL,
		clipTTL:    clipTTL,
		now:        time.Now,
	}
}

func (m *MemoryStore) get(bucket map[string]memEntry, id string) []byte {
	e, ok := bucket[id]
	if !ok {
		return nil
	}
	if m.now().After(e.expiresAt) {
		delete(bucket, id)
		return nil
	}
	return append([]byte(nil), e.data...)
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	raw := m.get(m.sessions, id)
	m.mu.Unlock()
	if raw == nil {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (m *MemoryStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("cannot save nil tutor session")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	m.sessions[sess.ID] = memEntry{data: raw, expiresAt: m.now().Add(m.sessionTTL)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SaveClip(ctx context.Context, id string, audio []byte) error {
	m.mu.Lock()
	m.clips[id] = memEntry{data: append([]byte(nil), audio...), expiresAt: m.now().Add(m.clipTTL)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadClip(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(m.clips, id), nil
}
