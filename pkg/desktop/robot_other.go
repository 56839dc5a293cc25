//go:build !windows && !darwin

package desktop

import (
	"context"
	"image"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// unsupported is the Input on hosts without a desktop backend.
type unsupported struct{}

// NewInput returns the host input implementation.
func NewInput() Input { return unsupported{} }

func errUnsupported() error { return core.PlatformNotSupported("desktop input on this host") }

func (unsupported) Check() error { return errUnsupported() }
func (unsupported) ScreenSize() (core.Bounds, error) { return core.Bounds{}, errUnsupported() }
func (unsupported) Click(core.Point, bool) error { return errUnsupported() }
func (unsupported) Press(context.Context, core.Point, time.Duration) error { return errUnsupported() }
func (unsupported) Drag(core.Point, core.Point) error { return errUnsupported() }
func (unsupported) Scroll(core.Point, int, int) error { return errUnsupported() }
func (unsupported) Type(string) error { return errUnsupported() }
func (unsupported) KeyTap(string, ...string) error { return errUnsupported() }
func (unsupported) Capture(core.Bounds) (image.Image, error) { return nil, errUnsupported() }
