package session

import (
	"time"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/driver"
	"github.com/devicelab-dev/bryndza/pkg/metrics"
	"github.com/devicelab-dev/bryndza/pkg/platform"
	"github.com/devicelab-dev/bryndza/pkg/wait"
)

// Builder assembles a Session. Explicit setters override the config.
type Builder struct {
	cfg        *config.Config
	platform   platform.Platform
	timeout    *time.Duration
	maxRetries *int
	retryDelay *time.Duration
	strategy   *wait.Strategy
	observer   wait.Observer
}

// NewBuilder starts a builder over the default configuration.
func NewBuilder() *Builder {
	return &Builder{observer: metrics.WaitObserver{}}
}

// Config sets the configuration.
func (b *Builder) Config(cfg *config.Config) *Builder {
	b.cfg = cfg
	return b
}

// Platform injects a platform instead of opening the configured one.
func (b *Builder) Platform(p platform.Platform) *Builder {
	b.platform = p
	return b
}

// Timeout sets the default wait timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = &d
	return b
}

// MaxRetries sets how many times a failed connect is retried.
func (b *Builder) MaxRetries(n int) *Builder {
	b.maxRetries = &n
	return b
}

// RetryDelay sets the delay between connect retries.
func (b *Builder) RetryDelay(d time.Duration) *Builder {
	b.retryDelay = &d
	return b
}

// Strategy sets the default wait strategy.
func (b *Builder) Strategy(s wait.Strategy) *Builder {
	b.strategy = &s
	return b
}

// Observer replaces the wait observer. Nil disables wait metrics.
func (b *Builder) Observer(o wait.Observer) *Builder {
	b.observer = o
	return b
}

// Build validates the settings and creates a session in the Created state.
func (b *Builder) Build() (*Session, error) {
	cfg := b.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	if b.strategy != nil {
		strategy = *b.strategy
		if err := strategy.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Session{
		id:         newID(),
		cfg:        cfg,
		timeout:    cfg.Timeout,
		strategy:   strategy,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		observer:   b.observer,
		state:      Created,
	}
	if b.timeout != nil {
		s.timeout = *b.timeout
	}
	if b.maxRetries != nil {
		s.maxRetries = *b.maxRetries
	}
	if b.retryDelay != nil {
		s.retryDelay = *b.retryDelay
	}
	if s.timeout < 0 || s.maxRetries < 0 || s.retryDelay < 0 {
		return nil, core.ConfigError("timeout, maxRetries and retryDelay must not be negative")
	}

	s.platform = b.platform
	if s.platform == nil {
		p, err := driver.Open(cfg)
		if err != nil {
			return nil, err
		}
		s.platform = p
	}
	return s, nil
}
