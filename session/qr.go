package session

import (
	"sync"
	"time"
)

// QRCode is a one-time login code and the time it was issued.
type QRCode struct {
	Payload  string
	IssuedAt time.Time
}

// QRCache holds at most one login code. A new code always supersedes an
// unscanned one.
type QRCache struct {
	mu   sync.RWMutex
	code *QRCode
	now  func() time.Time
}

// NewQRCache returns an empty cache.
func NewQRCache() *QRCache {
	return &QRCache{now: time.Now}
}

// Set stores payload unconditionally and returns the stored code.
func (c *QRCache) Set(payload string) QRCode {
	code := QRCode{Payload: payload, IssuedAt: c.now().UTC()}
	c.mu.Lock()
	c.code = &code
	c.mu.Unlock()
	return code
}

// Clear drops the current code, if any.
func (c *QRCache) Clear() {
	c.mu.Lock()
	c.code = nil
	c.mu.Unlock()
}

// Get returns the current code. ok is false when no code is held, which is the
// normal state once the session is ready.
func (c *QRCache) Get() (code QRCode, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.code == nil {
		return QRCode{}, false
	}
	return *c.code, true
}

// Has reports whether a code is held.
func (c *QRCache) Has() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code != nil
}
