// Package coretest provides an in-memory SignalConnection for tests.
package coretest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
)

// Conn records every frame sent to it on a buffered channel.
type Conn struct {
	frames chan core.Frame

	mu     sync.Mutex
	closed bool
	full   bool
}

func NewConn() *Conn {
	return &Conn{frames: make(chan core.Frame, 128)}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	select {
	case c.frames <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetFull makes every following TrySend fail with ErrBackpressure.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

// Next waits for the next frame and decodes its envelope.
func (c *Conn) Next(t testing.TB, timeout time.Duration) core.Envelope {
	t.Helper()
	select {
	case f := <-c.frames:
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("decode frame %q: %v", f, err)
		}
		return env
	case <-time.After(timeout):
		t.Fatalf("no frame within %s", timeout)
		return core.Envelope{}
	}
}

// Expect skips frames until one of the given type arrives and decodes its
// data into v (v may be nil).
func (c *Conn) Expect(t testing.TB, eventType string, v any) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			t.Fatalf("no %q frame", eventType)
		}
		env := c.Next(t, left)
		if env.Type != eventType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Data, v); err != nil {
				t.Fatalf("decode %s data: %v", eventType, err)
			}
		}
		return
	}
}

// Drain discards all buffered frames and returns their types.
func (c *Conn) Drain() []string {
	var types []string
	for {
		select {
		case f := <-c.frames:
			var env core.Envelope
			_ = json.Unmarshal(f, &env)
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

// Quiet asserts that no frame arrives within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Fatalf("unexpected frame %s", f)
	case <-time.After(d):
	}
}

// NewSession builds a session for user id on a fresh Conn.
func NewSession(t testing.TB, id string) (core.Session, *Conn) {
	t.Helper()
	u, err := domain.NewUser(id, "")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	conn := NewConn()
	return core.NewSession(core.SessionID(id+"-"+uuid.NewString()), u, conn, nil), conn
}
