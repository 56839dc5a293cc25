// Package desktop is the shared core of the Windows and macOS backends:
// mouse, keyboard and screen capture through robotgo, a JSON accessibility
// tree produced by a native script, and a Platform built on both.
package desktop

import (
	"context"
	"image"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// Input drives the host's mouse, keyboard and screen. Points are in screen
// coordinates as reported by the accessibility tree.
type Input interface {
	// Check reports whether input and capture work on this host.
	Check() error
	// ScreenSize returns the main display bounds.
	ScreenSize() (core.Bounds, error)
	Click(p core.Point, double bool) error
	// Press holds the left button at p for hold.
	Press(ctx context.Context, p core.Point, hold time.Duration) error
	Drag(from, to core.Point) error
	// Scroll turns the wheel at p by dx, dy pixels; positive dy scrolls down.
	Scroll(p core.Point, dx, dy int) error
	Type(text string) error
	KeyTap(key string, modifiers ...string) error
	// Capture grabs a region of the screen. An empty region means the whole screen.
	Capture(region core.Bounds) (image.Image, error)
}

// wheelStep is the pixel distance of one wheel notch.
const wheelStep = 40

func notches(px int) int {
	n := px / wheelStep
	if n == 0 && px != 0 {
		n = 1
	}
	if n < 0 {
		n = -n
	}
	return n
}

func holdFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
