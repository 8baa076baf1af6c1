package cache

import (
	"strings"
	"sync"
	"time"

	"context"
)

// MemoryStore is an in-process Store used by unit tests and by any
// component that wants a dependency-free double for the Cache Store,
// grounded on easyweb3-platform's internal/cache.MemoryStore, extended
// here with the pub/sub and TrySetNX operations the rest of the
// service relies on.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	subs  map[string][]chan []byte
}

type memItem struct {
	v       []byte
	expires time.Time
	noexp   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memItem),
		subs:  make(map[string][]chan []byte),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.noexp && !it.expires.IsZero() && time.Now().After(it.expires) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return cloneBytes(it.v), true, nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := memItem{v: cloneBytes(value)}
	if ttl <= 0 {
		it.noexp = true
	} else {
		it.expires = time.Now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *MemoryStore) SetPermanent(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memItem{v: cloneBytes(value), noexp: true}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

func (s *MemoryStore) ScanByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) TrySetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[key]; ok {
		if it.noexp || it.expires.IsZero() || time.Now().Before(it.expires) {
			return false, nil
		}
	}
	it := memItem{v: cloneBytes(value)}
	if ttl <= 0 {
		it.noexp = true
	} else {
		it.expires = time.Now().Add(ttl)
	}
	s.items[key] = it
	return true, nil
}

// Publish hands a copy of message to every handler currently
// subscribed to channel, without replay. The send into each
// subscriber's 64-message buffer does not block: when a buffer is
// full the message is dropped for that subscriber. Handlers run on
// their own goroutine, so Publish returns before they are called.
func (s *MemoryStore) Publish(_ context.Context, channel string, message []byte) error {
	s.mu.RLock()
	chans := append([]chan []byte(nil), s.subs[channel]...)
	s.mu.RUnlock()
	for _, ch := range chans {
		select {
		case ch <- cloneBytes(message):
		default:
		}
	}
	return nil
}

// Subscribe attaches handler to channel and returns an idempotent
// unsubscribe function.
func (s *MemoryStore) Subscribe(_ context.Context, channel string, handler func(message []byte)) (func(), error) {
	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg := <-ch:
				handler(msg)
			case <-done:
				return
			}
		}
	}()

	var closed bool
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			closed = true
			_ = closed
			close(done)
			s.mu.Lock()
			subs := s.subs[channel]
			for i, c := range subs {
				if c == ch {
					s.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
