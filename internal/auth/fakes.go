package auth

import (
	"strings"
	"sync"
	"time"
)

const fakeHashPrefix = "$fake$"

// FakeInsecureHasher stores "$fake$<password>". Tests only: it skips argon2
// so sign-up heavy property tests stay fast.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return fakeHashPrefix + password, nil
}

func (FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	stored, ok := strings.CutPrefix(encodedHash, fakeHashPrefix)
	return ok && stored == password
}

// FakeClock only moves when told to. The HTTP server and the test goroutine
// may share one.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, e.g. past a session's expires_at.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
