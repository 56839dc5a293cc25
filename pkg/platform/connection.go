package platform

import (
	"context"
	"sync"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// ConnState is the connection lifecycle state of a backend.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Connection guards a backend's connect/disconnect transitions.
// Disconnected -> Connected -> Closed. Closed is terminal.
type Connection struct {
	mu    sync.Mutex
	state ConnState
}

// State returns the current state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open runs dial and moves to Connected on success. Opening an already
// connected backend is a no-op; opening a closed one is a session error.
func (c *Connection) Open(ctx context.Context, dial func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Connected:
		return nil
	case Closed:
		return core.SessionError("connection already closed")
	}
	if err := dial(ctx); err != nil {
		return err
	}
	c.state = Connected
	return nil
}

// Close runs hangup if connected, then moves to Closed. The state becomes
// Closed even when hangup fails. Closing twice is a no-op.
func (c *Connection) Close(ctx context.Context, hangup func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	c.state = Closed
	if prev != Connected || hangup == nil {
		return nil
	}
	return hangup(ctx)
}

// Require returns a session error unless connected.
func (c *Connection) Require() error {
	if s := c.State(); s != Connected {
		return core.SessionError("platform is " + s.String())
	}
	return nil
}
