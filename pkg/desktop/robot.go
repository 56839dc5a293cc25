//go:build windows || darwin

package desktop

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// Robot is the robotgo implementation of Input.
type Robot struct{}

// NewInput returns the host input implementation.
func NewInput() Input { return Robot{} }

func (Robot) Check() error {
	if w, h := robotgo.GetScreenSize(); w <= 0 || h <= 0 {
		return core.PlatformNotSupported("desktop input without a display")
	}
	return nil
}

func (Robot) ScreenSize() (core.Bounds, error) {
	w, h := robotgo.GetScreenSize()
	return core.Bounds{Width: w, Height: h}, nil
}

func (Robot) Click(p core.Point, double bool) error {
	robotgo.Move(p.X, p.Y)
	time.Sleep(50 * time.Millisecond)
	robotgo.Click("left", double)
	return nil
}

func (Robot) Press(ctx context.Context, p core.Point, hold time.Duration) error {
	robotgo.Move(p.X, p.Y)
	if err := robotgo.Toggle("left"); err != nil {
		return fmt.Errorf("mouse down: %w", err)
	}
	waitErr := holdFor(ctx, hold)
	if err := robotgo.Toggle("left", "up"); err != nil {
		return fmt.Errorf("mouse up: %w", err)
	}
	return waitErr
}

func (Robot) Drag(from, to core.Point) error {
	robotgo.Move(from.X, from.Y)
	if err := robotgo.Toggle("left"); err != nil {
		return fmt.Errorf("mouse down: %w", err)
	}
	robotgo.MoveSmooth(to.X, to.Y)
	if err := robotgo.Toggle("left", "up"); err != nil {
		return fmt.Errorf("mouse up: %w", err)
	}
	return nil
}

func (Robot) Scroll(p core.Point, dx, dy int) error {
	robotgo.Move(p.X, p.Y)
	switch {
	case dy > 0:
		robotgo.ScrollDir(notches(dy), "down")
	case dy < 0:
		robotgo.ScrollDir(notches(dy), "up")
	}
	switch {
	case dx > 0:
		robotgo.ScrollDir(notches(dx), "right")
	case dx < 0:
		robotgo.ScrollDir(notches(dx), "left")
	}
	return nil
}

func (Robot) Type(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (Robot) KeyTap(key string, modifiers ...string) error {
	if len(modifiers) == 0 {
		return robotgo.KeyTap(key)
	}
	return robotgo.KeyTap(key, modifiers)
}

func (Robot) Capture(region core.Bounds) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	if region.IsEmpty() {
		img, err = robotgo.CaptureImg()
	} else {
		img, err = robotgo.CaptureImg(region.X, region.Y, region.Width, region.Height)
	}
	if err != nil {
		return nil, core.ScreenshotError("capture", err)
	}
	return img, nil
}
