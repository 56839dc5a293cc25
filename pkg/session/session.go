// Package session owns one platform for its lifetime and composes finds with
// the wait engine using the session's default timeout and strategy.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/jsengine"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/metrics"
	"github.com/devicelab-dev/bryndza/pkg/platform"
	"github.com/devicelab-dev/bryndza/pkg/wait"
)

// State is the session lifecycle state.
type State int

const (
	Created State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// finalizeTimeout bounds the best-effort disconnect of an abandoned session.
const finalizeTimeout = 5 * time.Second

// Session drives one platform sequentially.
type Session struct {
	id         string
	cfg        *config.Config
	platform   platform.Platform
	timeout    time.Duration
	strategy   wait.Strategy
	maxRetries int
	retryDelay time.Duration
	observer   wait.Observer

	mu    sync.Mutex
	state State

	jsOnce sync.Once
	js     *jsengine.Engine
}

// New builds a session from cfg, opening the platform it names.
func New(cfg *config.Config) (*Session, error) {
	return NewBuilder().Config(cfg).Build()
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Platform returns the owned platform.
func (s *Session) Platform() platform.Platform { return s.platform }

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.cfg }

// Timeout returns the default wait timeout.
func (s *Session) Timeout() time.Duration { return s.timeout }

// Strategy returns the default wait strategy.
func (s *Session) Strategy() wait.Strategy { return s.strategy }

// Start connects the platform. ConnectionErrors are retried up to MaxRetries
// times, RetryDelay apart; any other error fails immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Created {
		return core.SessionError(fmt.Sprintf("cannot start a %s session", s.state))
	}

	name := s.platform.Name()
	attempt := 0
	connect := func() error {
		attempt++
		err := s.platform.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, core.ErrConnection) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(s.maxRetries)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		metrics.RecordConnectRetry(name)
		logger.Warn("session %s: connect attempt %d to %s failed, retrying in %v: %v", s.id, attempt, name, next, err)
	}

	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		logger.Error("session %s: connect to %s failed after %d attempts: %v", s.id, name, attempt, err)
		return err
	}

	s.state = Started
	metrics.SessionStarted()
	runtime.SetFinalizer(s, finalize)
	logger.Info("session %s: connected to %s", s.id, name)
	return nil
}

// Stop disconnects the platform and reports the disconnect error.
// Stopping a stopped session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev == Stopped {
		return nil
	}
	s.state = Stopped
	runtime.SetFinalizer(s, nil)

	if prev != Started {
		return nil
	}
	metrics.SessionStopped()
	if err := s.platform.Disconnect(ctx); err != nil {
		logger.Warn("session %s: disconnect from %s: %v", s.id, s.platform.Name(), err)
		return err
	}
	logger.Info("session %s: disconnected from %s", s.id, s.platform.Name())
	return nil
}

// finalize disconnects a session dropped while started. Failure is logged only.
func finalize(s *Session) {
	if s.state != Started {
		return
	}
	s.state = Stopped
	metrics.SessionStopped()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.platform.Disconnect(ctx); err != nil {
		logger.Warn("session %s: abandoned, disconnect failed: %v", s.id, err)
		return
	}
	logger.Info("session %s: abandoned, disconnected from %s", s.id, s.platform.Name())
}

func (s *Session) require() error {
	if st := s.State(); st != Started {
		return core.SessionError(fmt.Sprintf("session %s is %s", s.id, st))
	}
	return nil
}

// FindElement returns the first element matching loc.
func (s *Session) FindElement(ctx context.Context, loc locator.Locator) (*core.Element, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	start := time.Now()
	el, err := s.platform.FindElement(ctx, loc)
	metrics.RecordFind(s.platform.Name(), time.Since(start), err)
	logger.Debug("session %s: find %s: %v (%v)", s.id, loc, resultText(el, err), time.Since(start))
	return el, err
}

// FindElements returns every element matching loc, in document order.
func (s *Session) FindElements(ctx context.Context, loc locator.Locator) ([]*core.Element, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	start := time.Now()
	els, err := s.platform.FindElements(ctx, loc)
	metrics.RecordFind(s.platform.Name(), time.Since(start), err)
	logger.Debug("session %s: find all %s: %d matches, err=%v (%v)", s.id, loc, len(els), err, time.Since(start))
	return els, err
}

// ElementExists reports whether loc matches; lookup failures other than
// not-found are returned.
func (s *Session) ElementExists(ctx context.Context, loc locator.Locator) (bool, error) {
	return platform.ElementExists(ctx, s.FindElement, loc)
}

// Screenshot captures the screen as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	return s.platform.Screenshot(ctx)
}

// ElementScreenshot captures the element's bounds as PNG.
func (s *Session) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	return s.platform.ElementScreenshot(ctx, el)
}

// Click clicks or taps el.
func (s *Session) Click(ctx context.Context, el *core.Element) error {
	return s.interact("click", el, func() error { return s.platform.Click(ctx, el) })
}

// DoubleClick double-clicks or double-taps el.
func (s *Session) DoubleClick(ctx context.Context, el *core.Element) error {
	return s.interact("double click", el, func() error { return s.platform.DoubleClick(ctx, el) })
}

// LongPress presses el for d.
func (s *Session) LongPress(ctx context.Context, el *core.Element, d time.Duration) error {
	return s.interact("long press", el, func() error { return s.platform.LongPress(ctx, el, d) })
}

// TypeText types text into el.
func (s *Session) TypeText(ctx context.Context, el *core.Element, text string) error {
	return s.interact("type", el, func() error { return s.platform.TypeText(ctx, el, text) })
}

// Clear clears el's text.
func (s *Session) Clear(ctx context.Context, el *core.Element) error {
	return s.interact("clear", el, func() error { return s.platform.Clear(ctx, el) })
}

// ScrollIntoView scrolls until el is on screen.
func (s *Session) ScrollIntoView(ctx context.Context, el *core.Element) error {
	return s.interact("scroll into view", el, func() error { return s.platform.ScrollIntoView(ctx, el) })
}

// Swipe swipes from el's center.
func (s *Session) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	return s.interact("swipe "+dir.String(), el, func() error { return s.platform.Swipe(ctx, el, dir, distance) })
}

func (s *Session) interact(what string, el *core.Element, do func() error) error {
	if err := s.require(); err != nil {
		return err
	}
	if el == nil {
		return core.NotInteractable("nil element")
	}
	err := do()
	if err != nil {
		logger.Warn("session %s: %s %s: %v", s.id, what, el.ID(), err)
		return err
	}
	logger.Debug("session %s: %s %s", s.id, what, el.ID())
	return nil
}

func resultText(el *core.Element, err error) string {
	if err != nil {
		return err.Error()
	}
	return el.String()
}

func newID() string {
	return uuid.NewString()
}
