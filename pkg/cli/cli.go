// Package cli provides the command-line interface for bryndza.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/metrics"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "platform",
		Aliases: []string{"p"},
		Usage:   "Platform to automate (android, ios, windows, macos, web, mock); default detects the host",
		EnvVars: []string{"BRYNDZA_PLATFORM"},
	},
	&cli.StringSliceFlag{
		Name:    "device",
		Aliases: []string{"udid", "serial"},
		Usage:   "Device serial or UDID; repeat or comma-separate to run on several devices",
		EnvVars: []string{"BRYNDZA_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to bryndza.yaml (default: ./bryndza.yaml if present)",
		EnvVars: []string{"BRYNDZA_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "env-file",
		Usage: "Load environment variables from this file",
		Value: ".env",
	},
	&cli.StringSliceFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Variables for --script and for ${...} expressions in --text (KEY=VALUE)",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "Override the default wait timeout",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable debug logging",
		EnvVars: []string{"BRYNDZA_VERBOSE"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Minimum log level: debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"BRYNDZA_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write logs to this file instead of stderr",
		EnvVars: []string{"BRYNDZA_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:  "metrics",
		Usage: "Print Prometheus metrics when the command finishes",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve Prometheus metrics on this address (e.g. :9464) while the command runs",
	},
}

// NewApp builds the CLI application writing results to out.
func NewApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "bryndza",
		Usage:   "Cross-platform UI automation for mobile, desktop and web",
		Version: Version,
		Description: `Bryndza finds and drives UI elements on Android, iOS, Windows, macOS
and web pages through one locator syntax.

Locators are YAML, for example:
  --locator 'id: login'
  --locator 'text: Sign in'
  --locator '{and: [{className: Button}, {partialText: Save}]}'

Examples:
  bryndza -p android find --locator 'id: com.app:id/login'
  bryndza -p ios wait --locator 'accessibilityId: loginButton' --timeout 20s
  bryndza -p web -c bryndza.yaml tap --locator 'css: button.primary'
  bryndza -p android --device emulator-5554,emulator-5556 screenshot -o shot.png
  bryndza devices`,
		Flags:  GlobalFlags,
		Before: setup,
		After: func(c *cli.Context) error {
			stopMetricsServer()
			if c.Bool("metrics") {
				if err := metrics.WriteText(out); err != nil {
					return err
				}
			}
			logger.Close()
			return nil
		},
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			findCommand,
			existsCommand,
			waitCommand,
			tapCommand,
			typeCommand,
			swipeCommand,
			screenshotCommand,
			treeCommand,
			devicesCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	app := NewApp(os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// setup loads the env file and configures logging before any command runs.
func setup(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	switch path := c.String("log-file"); {
	case path != "":
		if err := logger.Init(path); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	case c.Bool("verbose"):
		logger.InitWriter(c.App.ErrWriter)
	}
	level := logger.ParseLevel(c.String("log-level"))
	if c.Bool("verbose") {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)
	if addr := c.String("metrics-addr"); addr != "" {
		return startMetricsServer(addr)
	}
	return nil
}

// exitCode maps error categories to process exit codes.
func exitCode(err error) int {
	switch core.CategoryOf(err) {
	case core.ErrCategoryElement, core.ErrCategoryInteraction:
		return 2
	case core.ErrCategoryTimeout:
		return 3
	case core.ErrCategoryConnection, core.ErrCategorySession:
		return 4
	case core.ErrCategoryConfig:
		return 5
	}
	return 1
}
