// Package config handles configuration for bryndza.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/wait"
)

// Config represents the workspace configuration (bryndza.yaml).
type Config struct {
	// Session defaults
	Timeout    time.Duration `yaml:"timeout"`    // Default wait timeout
	MaxRetries int           `yaml:"maxRetries"` // Connect retry budget
	RetryDelay time.Duration `yaml:"retryDelay"` // Delay between connect retries

	Wait WaitConfig `yaml:"wait"`

	// Platform forces a backend; empty means detect from the host.
	Platform string `yaml:"platform"`

	Android    AndroidConfig    `yaml:"android"`
	IOS        IOSConfig        `yaml:"ios"`
	Windows    WindowsConfig    `yaml:"windows"`
	MacOS      MacOSConfig      `yaml:"macos"`
	Web        WebConfig        `yaml:"web"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
}

// WaitConfig selects the default polling strategy.
type WaitConfig struct {
	Strategy        string        `yaml:"strategy"` // fixed, exponential, linear, fibonacci
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// AndroidConfig configures the adb backend.
type AndroidConfig struct {
	Serial     string        `yaml:"serial"`     // adb -s; empty uses the only attached device
	ADBPath    string        `yaml:"adbPath"`    // defaults to "adb" on PATH
	ADBTimeout time.Duration `yaml:"adbTimeout"` // per adb invocation
}

// IOSConfig configures the WebDriverAgent backend.
type IOSConfig struct {
	UDID     string `yaml:"udid"`     // empty discovers the first attached device
	WDAURL   string `yaml:"wdaUrl"`   // e.g. http://localhost:8100
	BundleID string `yaml:"bundleId"` // app to activate on connect
}

// WindowsConfig configures the UI Automation backend.
type WindowsConfig struct {
	Window   string `yaml:"window"`   // window title; empty uses the foreground window
	MaxDepth int    `yaml:"maxDepth"` // tree dump depth
}

// MacOSConfig configures the Accessibility backend.
type MacOSConfig struct {
	App                string `yaml:"app"` // application name; empty uses the frontmost app
	CheckAccessibility bool   `yaml:"checkAccessibility"`
}

// WebConfig configures the Chrome DevTools backend.
type WebConfig struct {
	URL       string `yaml:"url"`       // page to open on connect
	RemoteURL string `yaml:"remoteUrl"` // attach to a running browser instead of launching
	Headless  bool   `yaml:"headless"`
}

// ScreenshotConfig controls capture output.
type ScreenshotConfig struct {
	Format  string `yaml:"format"`  // png only
	Quality int    `yaml:"quality"` // reserved for lossy formats
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Wait: WaitConfig{
			Strategy:        "fixed",
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      1.5,
		},
		Android:    AndroidConfig{ADBPath: "adb", ADBTimeout: 30 * time.Second},
		IOS:        IOSConfig{WDAURL: "http://localhost:8100"},
		Windows:    WindowsConfig{MaxDepth: 25},
		MacOS:      MacOSConfig{CheckAccessibility: true},
		Web:        WebConfig{Headless: true},
		Screenshot: ScreenshotConfig{Format: "png", Quality: 90},
	}
}

// Load loads configuration from a file, layered over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.ConfigError(fmt.Sprintf("%s: %v", path, err))
	}
	return cfg, nil
}

// LoadFromDir looks for bryndza.yaml or bryndza.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"bryndza.yaml", "bryndza.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default(), nil
}

// ApplyEnv overrides fields from BRYNDZA_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("BRYNDZA_PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := os.Getenv("BRYNDZA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return core.ConfigError("BRYNDZA_TIMEOUT: " + err.Error())
		}
		c.Timeout = d
	}
	if v := os.Getenv("BRYNDZA_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.ConfigError("BRYNDZA_MAX_RETRIES: " + err.Error())
		}
		c.MaxRetries = n
	}
	if v := os.Getenv("BRYNDZA_ANDROID_SERIAL"); v != "" {
		c.Android.Serial = v
	}
	if v := os.Getenv("BRYNDZA_IOS_UDID"); v != "" {
		c.IOS.UDID = v
	}
	if v := os.Getenv("BRYNDZA_WDA_URL"); v != "" {
		c.IOS.WDAURL = v
	}
	if v := os.Getenv("BRYNDZA_WEB_URL"); v != "" {
		c.Web.URL = v
	}
	if v := os.Getenv("BRYNDZA_WEB_REMOTE_URL"); v != "" {
		c.Web.RemoteURL = v
	}
	return nil
}

// Strategy builds the default wait strategy.
func (c *Config) Strategy() (wait.Strategy, error) {
	typ, err := wait.ParseStrategyType(c.Wait.Strategy)
	if err != nil {
		return wait.Strategy{}, err
	}
	s := wait.Strategy{
		Type:            typ,
		InitialInterval: c.Wait.InitialInterval,
		MaxInterval:     c.Wait.MaxInterval,
		Multiplier:      c.Wait.Multiplier,
	}
	return s, s.Validate()
}

// Validate checks the configuration before anything connects.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return core.ConfigError("timeout must not be negative")
	}
	if c.MaxRetries < 0 {
		return core.ConfigError("maxRetries must not be negative")
	}
	if c.RetryDelay < 0 {
		return core.ConfigError("retryDelay must not be negative")
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	switch strings.ToLower(c.Platform) {
	case "", "android", "ios", "windows", "macos", "darwin", "mac", "web", "chrome", "mock":
	default:
		return core.ConfigError(fmt.Sprintf("unknown platform %q", c.Platform))
	}
	if c.Windows.MaxDepth < 0 {
		return core.ConfigError("windows.maxDepth must not be negative")
	}
	if f := strings.ToLower(c.Screenshot.Format); f != "" && f != "png" {
		return core.ConfigError(fmt.Sprintf("screenshot format %q is not supported", c.Screenshot.Format))
	}
	if c.Screenshot.Quality < 0 || c.Screenshot.Quality > 100 {
		return core.ConfigError("screenshot.quality must be between 0 and 100")
	}
	return nil
}
