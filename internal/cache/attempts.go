package cache

import (
	"sync"
	"time"
)

// attempt counts failures inside one window
type attempt struct {
	count      int
	expiration int64
}

func (a attempt) isExpired(now int64) bool {
	return now > a.expiration
}

// Attempts counts failures per key over a sliding TTL window.
// The login handler uses it to lock out repeated bad passwords.
type Attempts struct {
	mu     sync.Mutex
	items  map[string]attempt
	window time.Duration
	limit  int
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

// NewAttempts allows limit failures per key within window
func NewAttempts(window time.Duration, limit int) *Attempts {
	a := &Attempts{
		items:  make(map[string]attempt),
		window: window,
		limit:  limit,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go a.cleanup()
	return a
}

// Fail records one failure and returns the count in the current window
func (a *Attempts) Fail(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UnixNano()
	item, ok := a.items[key]
	if !ok || item.isExpired(now) {
		item = attempt{}
	}
	item.count++
	item.expiration = now + int64(a.window)
	a.items[key] = item
	return item.count
}

// Blocked reports whether key has used up its failures
func (a *Attempts) Blocked(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok := a.items[key]
	if !ok || item.isExpired(a.now().UnixNano()) {
		return false
	}
	return item.count >= a.limit
}

// Reset forgets key, typically after a successful login
func (a *Attempts) Reset(key string) {
	a.mu.Lock()
	delete(a.items, key)
	a.mu.Unlock()
}

// Size returns the number of tracked keys
func (a *Attempts) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Close stops the cleanup goroutine
func (a *Attempts) Close() {
	a.once.Do(func() { close(a.stop) })
}

func (a *Attempts) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *Attempts) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now().UnixNano()
	for key, item := range a.items {
		if item.isExpired(now) {
			delete(a.items, key)
		}
	}
}
