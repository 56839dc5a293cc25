// Package windows drives Windows applications through UI Automation.
//
// The accessibility tree is dumped by a PowerShell script over the managed
// System.Windows.Automation API; input goes through the desktop package.
package windows

import (
	"context"
	_ "embed"
	"strconv"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/desktop"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

//go:embed uia.ps1
var uiaScript string

const scriptName = "bryndza-uia.ps1"

// Dumper runs the UI Automation script against one window.
type Dumper struct {
	Window   string
	MaxDepth int

	run     desktop.Runner
	install func(name, content string) (string, error)
	procs   func(ctx context.Context, name string) ([]desktop.ProcessInfo, error)
}

// NewDumper creates a Dumper for the windows config section.
func NewDumper(cfg config.WindowsConfig) *Dumper {
	return &Dumper{
		Window:   cfg.Window,
		MaxDepth: cfg.MaxDepth,
		run:      desktop.ExecRunner,
		install:  config.WriteScript,
		procs:    desktop.FindProcesses,
	}
}

// Args returns the powershell arguments for a dump. A Window naming a running
// process targets that process's main window; otherwise it is a window title.
func (d *Dumper) Args(ctx context.Context, scriptPath string) []string {
	args := []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", scriptPath,
		"-MaxDepth", strconv.Itoa(d.MaxDepth)}
	if d.Window == "" {
		return args
	}
	if procs, err := d.procs(ctx, d.Window); err == nil && len(procs) > 0 {
		if len(procs) > 1 {
			logger.Debug("windows: %d processes named %s, using pid %d", len(procs), d.Window, procs[0].PID)
		}
		return append(args, "-ProcessId", strconv.Itoa(int(procs[0].PID)))
	}
	return append(args, "-Title", d.Window)
}

// Dump prints the target window's tree as JSON.
func (d *Dumper) Dump(ctx context.Context) ([]byte, error) {
	path, err := d.install(scriptName, uiaScript)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, "powershell", d.Args(ctx, path)...)
}

// New creates the Windows backend.
func New(cfg config.WindowsConfig) *desktop.Driver {
	return NewWithDumper(NewDumper(cfg), nil)
}

// NewWithDumper creates the backend over a dumper and input. A nil input uses the host's.
func NewWithDumper(d *Dumper, in desktop.Input) *desktop.Driver {
	return desktop.NewDriver(desktop.Options{
		Name:      platform.Windows,
		Dump:      d.Dump,
		Input:     in,
		SelectAll: "control",
		Walk:      platform.WalkOptions{MaxDepth: d.MaxDepth},
	})
}
