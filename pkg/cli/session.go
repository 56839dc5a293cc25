package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/driver"
	"github.com/devicelab-dev/bryndza/pkg/platform"
	"github.com/devicelab-dev/bryndza/pkg/session"
)

// openPlatform constructs the backend for a config. Tests replace it.
var openPlatform = driver.Open

// target is one session the command runs against.
type target struct {
	label   string
	session *session.Session
}

// loadConfig layers the config file, BRYNDZA_* variables and global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if p := c.String("platform"); p != "" {
		cfg.Platform = p
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if s := c.String("strategy"); s != "" {
		cfg.Wait.Strategy = s
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// forDevice returns a copy of cfg pointed at one device. What a device id
// means depends on the backend: a serial, a UDID, a window or an app.
func forDevice(cfg *config.Config, id string) (*config.Config, error) {
	name, err := platform.Detect(cfg.Platform)
	if err != nil {
		return nil, err
	}
	dup := *cfg
	switch name {
	case platform.Android:
		dup.Android.Serial = id
	case platform.IOS:
		dup.IOS.UDID = id
	case platform.Windows:
		dup.Windows.Window = id
	case platform.MacOS:
		dup.MacOS.App = id
	case platform.Web:
		dup.Web.RemoteURL = id
	}
	return &dup, nil
}

// buildTargets creates one unstarted session per --device, or a single
// session for the configured default device.
func buildTargets(c *cli.Context, cfg *config.Config) ([]target, error) {
	ids := c.StringSlice("device")
	if len(ids) == 0 {
		ids = []string{""}
	}
	vars, err := parseEnvVars(c.StringSlice("env"))
	if err != nil {
		return nil, err
	}
	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		devCfg := cfg
		if id != "" {
			if devCfg, err = forDevice(cfg, id); err != nil {
				return nil, err
			}
		}
		p, err := openPlatform(devCfg)
		if err != nil {
			return nil, err
		}
		s, err := session.NewBuilder().Config(devCfg).Platform(p).Build()
		if err != nil {
			return nil, err
		}
		if len(vars) > 0 {
			s.SetVariables(vars)
		}
		label := id
		if label == "" {
			label = p.Name()
		}
		targets = append(targets, target{label: label, session: s})
	}
	return targets, nil
}

// parseEnvVars splits KEY=VALUE pairs from --env.
func parseEnvVars(envs []string) (map[string]string, error) {
	result := make(map[string]string, len(envs))
	for _, e := range envs {
		key, value, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, core.ConfigError(fmt.Sprintf("--env %q: want KEY=VALUE", e))
		}
		result[strings.TrimSpace(key)] = value
	}
	return result, nil
}

// commandContext is cancelled on interrupt or SIGTERM.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// onTargets runs fn on every target in parallel. Each target's output is
// buffered and written whole, under a "# label" header when there are several.
func onTargets(c *cli.Context, fn func(ctx context.Context, t target, w io.Writer) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	targets, err := buildTargets(c, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	byID := make(map[string]target, len(targets))
	sessions := make([]*session.Session, len(targets))
	for i, t := range targets {
		byID[t.session.ID()] = t
		sessions[i] = t.session
	}

	var mu sync.Mutex
	out := c.App.Writer
	return session.RunParallel(ctx, sessions, func(ctx context.Context, s *session.Session) error {
		t := byID[s.ID()]
		var buf bytes.Buffer
		err := fn(ctx, t, &buf)

		mu.Lock()
		defer mu.Unlock()
		if len(targets) > 1 {
			fmt.Fprintf(out, "# %s\n", t.label)
		}
		_, _ = out.Write(buf.Bytes())
		return err
	})
}
