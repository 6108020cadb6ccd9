package convctx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryBackend keeps serialized contexts in process. Expired entries are
// dropped on read and by Sweep.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption customizes a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock overrides the expiry clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) { b.now = now }
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) Load(_ context.Context, key string) (*Context, bool, error) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if ok && !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		ok = false
	}
	b.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	var c Context
	if err := json.Unmarshal(entry.data, &c); err != nil {
		return nil, false, fmt.Errorf("convctx: decode: %w", err)
	}
	return &c, true, nil
}

func (b *MemoryBackend) Save(_ context.Context, key string, c *Context, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("convctx: encode: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{data: data, expiresAt: b.now().Add(ttl)}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	removed := 0
	for key, entry := range b.entries {
		if !now.Before(entry.expiresAt) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (b *MemoryBackend) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
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
				b.Sweep()
			}
		}
	}()
}
