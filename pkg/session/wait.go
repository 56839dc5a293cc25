package session

import (
	"context"
	"strings"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/jsengine"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/wait"
)

// Until runs cond under the session's default timeout and strategy.
func Until[T any](ctx context.Context, s *Session, cond wait.Condition[T]) (T, error) {
	return UntilTimeout(ctx, s, s.timeout, cond)
}

// UntilTimeout runs cond under an explicit timeout and the default strategy.
func UntilTimeout[T any](ctx context.Context, s *Session, timeout time.Duration, cond wait.Condition[T]) (T, error) {
	if err := s.require(); err != nil {
		var zero T
		return zero, err
	}
	logger.Debug("session %s: wait %s (timeout %v, %s)", s.id, cond.Name, timeout, s.strategy)
	v, err := wait.Until(ctx, timeout, s.strategy, cond, wait.WithObserver(s.observer))
	if err != nil {
		logger.Debug("session %s: wait %s: %v", s.id, cond.Name, err)
	}
	return v, err
}

// WaitForElement waits for loc to match using the session defaults.
func (s *Session) WaitForElement(ctx context.Context, loc locator.Locator) (*core.Element, error) {
	return Until(ctx, s, wait.ElementPresent(s, loc))
}

// WaitForElementTimeout waits for loc to match within timeout.
func (s *Session) WaitForElementTimeout(ctx context.Context, loc locator.Locator, timeout time.Duration) (*core.Element, error) {
	return UntilTimeout(ctx, s, timeout, wait.ElementPresent(s, loc))
}

// WaitForVisible waits for loc to match a visible element.
func (s *Session) WaitForVisible(ctx context.Context, loc locator.Locator) (*core.Element, error) {
	return Until(ctx, s, wait.ElementVisible(s, loc))
}

// WaitForClickable waits for loc to match a visible, enabled element.
func (s *Session) WaitForClickable(ctx context.Context, loc locator.Locator) (*core.Element, error) {
	return Until(ctx, s, wait.ElementClickable(s, loc))
}

// WaitForNotPresent waits for loc to stop matching.
func (s *Session) WaitForNotPresent(ctx context.Context, loc locator.Locator) error {
	_, err := Until(ctx, s, wait.ElementNotPresent(s, loc))
	return err
}

// WaitForText waits for the element's text to contain substr.
func (s *Session) WaitForText(ctx context.Context, loc locator.Locator, substr string) (*core.Element, error) {
	return Until(ctx, s, wait.TextContains(s, loc, substr))
}

// WaitForScript waits for a JavaScript predicate over the matched element.
func (s *Session) WaitForScript(ctx context.Context, loc locator.Locator, expr string) (*core.Element, error) {
	return Until(ctx, s, wait.Script(s, loc, s.engine(), expr))
}

// SetVariables makes vars visible to scripts and ${...} expressions.
func (s *Session) SetVariables(vars map[string]string) {
	js := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		js[k] = v
	}
	s.engine().SetVariables(js)
}

// Expand replaces ${...} expressions in text with their JavaScript values.
// An expression that fails to evaluate is left as written.
func (s *Session) Expand(ctx context.Context, text string) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return s.engine().ExpandVariables(ctx, text)
}

func (s *Session) engine() *jsengine.Engine {
	s.jsOnce.Do(func() {
		s.js = jsengine.New()
		s.js.SetPlatform(s.platform.Name())
	})
	return s.js
}
