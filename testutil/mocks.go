package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/wa-tender/backend/session"
)

// FakeClient is an in-memory session.Client. Tests drive it with Emit.
type FakeClient struct {
	mu         sync.Mutex
	handlers   []func(session.Event)
	connected  bool
	destroyed  int
	ConnectErr error
	DestroyErr error
	// DestroyPanic makes Destroy panic, to exercise teardown recovery.
	DestroyPanic bool
}

func (c *FakeClient) Subscribe(fn func(session.Event)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

func (c *FakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

func (c *FakeClient) Destroy(ctx context.Context) error {
	c.mu.Lock()
	c.destroyed++
	c.connected = false
	c.mu.Unlock()
	if c.DestroyPanic {
		panic("fake client destroy")
	}
	return c.DestroyErr
}

// Emit delivers ev to every subscriber synchronously, the way a transport
// callback would.
func (c *FakeClient) Emit(ev session.Event) {
	c.mu.Lock()
	hs := append([]func(session.Event){}, c.handlers...)
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Connected reports whether Connect succeeded and Destroy has not run since.
func (c *FakeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Destroyed returns how many times Destroy ran.
func (c *FakeClient) Destroyed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// FakeFactory records every client it allocates.
type FakeFactory struct {
	mu      sync.Mutex
	clients []*FakeClient
	opts    []session.ClientOptions
	// Err fails every allocation.
	Err error
	// Gate, when set, blocks New until it is closed. Entered receives a value
	// each time New starts waiting on it.
	Gate    chan struct{}
	Entered chan struct{}
	// Prepare customizes each client before it is returned.
	Prepare func(*FakeClient)
}

func (f *FakeFactory) New(ctx context.Context, opts session.ClientOptions) (session.Client, error) {
	if f.Gate != nil {
		if f.Entered != nil {
			f.Entered <- struct{}{}
		}
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.Err != nil {
		return nil, f.Err
	}
	c := &FakeClient{}
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

// Count returns how many clients were allocated.
func (f *FakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Last returns the most recently allocated client, or nil.
func (f *FakeFactory) Last() *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

// Options returns the options passed to each New call.
func (f *FakeFactory) Options() []session.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.ClientOptions{}, f.opts...)
}

// ErrFake is a generic transport error for tests.
var ErrFake = errors.New("fake transport error")

// WaitFor polls cond until it holds or the deadline passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}
