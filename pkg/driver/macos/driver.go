// Package macos drives macOS applications through the Accessibility API,
// reached with JavaScript for Automation scripts run by osascript.
package macos

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/desktop"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

var (
	//go:embed ax.js
	axScript string
	//go:embed trusted.js
	trustedScript string
)

const defaultMaxDepth = 25

// Bridge runs the JXA scripts for one application.
type Bridge struct {
	App                string
	CheckAccessibility bool
	MaxDepth           int

	run     desktop.Runner
	install func(name, content string) (string, error)
	procs   func(ctx context.Context, name string) ([]desktop.ProcessInfo, error)
}

// NewBridge creates a Bridge for the macos config section.
func NewBridge(cfg config.MacOSConfig) *Bridge {
	return &Bridge{
		App:                cfg.App,
		CheckAccessibility: cfg.CheckAccessibility,
		MaxDepth:           defaultMaxDepth,
		run:                desktop.ExecRunner,
		install:            config.WriteScript,
		procs:              desktop.FindProcesses,
	}
}

func (b *Bridge) osascript(ctx context.Context, name, script string, args ...string) ([]byte, error) {
	path, err := b.install(name, script)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, "osascript", append([]string{"-l", "JavaScript", path}, args...)...)
}

// Ready checks that the target app is running and, when configured, that
// this process holds the accessibility permission.
func (b *Bridge) Ready(ctx context.Context) error {
	if b.App != "" {
		procs, err := b.procs(ctx, b.App)
		if err != nil {
			return core.ConnectionError("list processes", err)
		}
		if len(procs) == 0 {
			return core.ConnectionError(fmt.Sprintf("application %q is not running", b.App), nil)
		}
		logger.Debug("macos: %s running as pid %d", b.App, procs[0].PID)
	}
	if !b.CheckAccessibility {
		return nil
	}
	out, err := b.osascript(ctx, "bryndza-trusted.js", trustedScript)
	if err != nil {
		return core.ConnectionError("accessibility check", err)
	}
	if string(bytes.TrimSpace(out)) != "true" {
		return core.PlatformNotSupported("accessibility access; grant it in System Settings > Privacy & Security > Accessibility")
	}
	return nil
}

// Dump prints the app's window tree as JSON. An empty App uses the frontmost one.
func (b *Bridge) Dump(ctx context.Context) ([]byte, error) {
	return b.osascript(ctx, "bryndza-ax.js", axScript, b.App, strconv.Itoa(b.MaxDepth))
}

// New creates the macOS backend.
func New(cfg config.MacOSConfig) *desktop.Driver {
	return NewWithBridge(NewBridge(cfg), nil)
}

// NewWithBridge creates the backend over a bridge and input. A nil input uses the host's.
func NewWithBridge(b *Bridge, in desktop.Input) *desktop.Driver {
	return desktop.NewDriver(desktop.Options{
		Name:      platform.MacOS,
		Dump:      b.Dump,
		Ready:     b.Ready,
		Input:     in,
		SelectAll: "command",
		Walk:      platform.WalkOptions{MaxDepth: b.MaxDepth},
	})
}
