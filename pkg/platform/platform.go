// Package platform defines the capability interface every native backend
// implements, and the canonical tree-matching algorithm they all share.
//
// Backends expose their accessibility tree as Nodes; FindFirst and FindAll walk
// that tree depth-first in pre-order and evaluate locators through Match, so
// match order, short-circuiting and failure containment are identical on every
// backend.
package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// Backend names.
const (
	Android = "Android"
	IOS     = "iOS"
	Windows = "Windows"
	MacOS   = "macOS"
	Web     = "Web"
	Mock    = "Mock"
)

// Platform is the uniform contract each native backend implements.
//
// Elements passed to interaction methods are snapshots; implementations must
// re-resolve the live node (see Relocate) instead of trusting stored handles.
// Interactions never retry: timing policy belongs to the wait package.
type Platform interface {
	// Connect establishes the connection to the native automation service.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. It is terminal.
	Disconnect(ctx context.Context) error

	// Screenshot captures the whole screen as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// FindElement returns the first match in pre-order, or core.ErrElementNotFound.
	FindElement(ctx context.Context, loc locator.Locator) (*core.Element, error)
	// FindElements returns all matches in pre-order; no match is not an error.
	FindElements(ctx context.Context, loc locator.Locator) ([]*core.Element, error)
	// ElementExists maps ErrElementNotFound to false and propagates other errors.
	ElementExists(ctx context.Context, loc locator.Locator) (bool, error)

	Click(ctx context.Context, el *core.Element) error
	DoubleClick(ctx context.Context, el *core.Element) error
	LongPress(ctx context.Context, el *core.Element, d time.Duration) error
	TypeText(ctx context.Context, el *core.Element, text string) error
	Clear(ctx context.Context, el *core.Element) error
	ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error)
	ScrollIntoView(ctx context.Context, el *core.Element) error
	Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error

	// Name returns the backend name.
	Name() string
	// Capabilities returns the static capability flags.
	Capabilities() Capabilities
}

// Capabilities describes what a backend can do. Fixed at construction.
type Capabilities struct {
	Touch           bool `json:"touch" yaml:"touch"`
	Mouse           bool `json:"mouse" yaml:"mouse"`
	Keyboard        bool `json:"keyboard" yaml:"keyboard"`
	ImageLocation   bool `json:"imageLocation" yaml:"imageLocation"`
	Accessibility   bool `json:"accessibility" yaml:"accessibility"`
	MultipleWindows bool `json:"multipleWindows" yaml:"multipleWindows"`
	Screenshots     bool `json:"screenshots" yaml:"screenshots"`
}

// DesktopCapabilities are the flags shared by mouse-and-keyboard backends.
func DesktopCapabilities() Capabilities {
	return Capabilities{
		Mouse:           true,
		Keyboard:        true,
		Accessibility:   true,
		MultipleWindows: true,
		Screenshots:     true,
	}
}

// MobileCapabilities are the flags shared by touch backends.
func MobileCapabilities() Capabilities {
	return Capabilities{
		Touch:         true,
		Keyboard:      true,
		Accessibility: true,
		Screenshots:   true,
	}
}

// ElementExists implements Platform.ElementExists on top of a find function.
func ElementExists(ctx context.Context, find func(context.Context, locator.Locator) (*core.Element, error), loc locator.Locator) (bool, error) {
	_, err := find(ctx, loc)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// HostPlatform maps an operating system (runtime.GOOS) to the backend
// selected when no platform is configured.
func HostPlatform(goos string) (string, error) {
	switch goos {
	case "windows":
		return Windows, nil
	case "darwin":
		return MacOS, nil
	case "linux":
		return Android, nil
	}
	return "", core.PlatformNotSupported(fmt.Sprintf("host operating system %q", goos))
}

// Detect returns the backend name to use. A configured name (android, ios,
// windows, macos, web, mock; case-insensitive) wins over host detection.
func Detect(configured string) (string, error) {
	if configured == "" {
		return HostPlatform(runtime.GOOS)
	}
	return Normalize(configured)
}

// Normalize maps a user-supplied platform name to its canonical backend name.
func Normalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "android":
		return Android, nil
	case "ios":
		return IOS, nil
	case "windows":
		return Windows, nil
	case "macos", "darwin", "mac":
		return MacOS, nil
	case "web", "chrome":
		return Web, nil
	case "mock":
		return Mock, nil
	}
	return "", core.PlatformNotSupported(fmt.Sprintf("platform %q", name))
}

// TreeSource is implemented by backends that can snapshot their whole tree.
type TreeSource interface {
	Tree(ctx context.Context) (*StaticNode, error)
}
