package desktop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// Options configures a desktop Driver.
type Options struct {
	// Name is the backend name reported by the driver.
	Name string
	// Dump prints the target window or application as a JSON tree.
	Dump func(ctx context.Context) ([]byte, error)
	// Ready runs on connect after the input check. Optional.
	Ready func(ctx context.Context) error
	// Input drives mouse, keyboard and capture. Defaults to NewInput().
	Input Input
	// SelectAll is the modifier used with "a" to select text before clearing
	// ("control" on Windows, "command" on macOS).
	SelectAll string
	Walk      platform.WalkOptions
}

// Driver implements platform.Platform for a desktop session.
type Driver struct {
	platform.Searcher

	opts Options
	conn platform.Connection
}

// NewDriver creates a desktop driver.
func NewDriver(opts Options) *Driver {
	if opts.Input == nil {
		opts.Input = NewInput()
	}
	if opts.SelectAll == "" {
		opts.SelectAll = "control"
	}
	d := &Driver{opts: opts}
	d.Searcher = platform.Searcher{Root: d.root, Options: opts.Walk}
	return d
}

// Name implements platform.Platform.
func (d *Driver) Name() string { return d.opts.Name }

// Capabilities implements platform.Platform.
func (d *Driver) Capabilities() platform.Capabilities { return platform.DesktopCapabilities() }

// Connect implements platform.Platform.
func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Open(ctx, func(ctx context.Context) error {
		if err := d.opts.Input.Check(); err != nil {
			return err
		}
		if d.opts.Ready != nil {
			if err := d.opts.Ready(ctx); err != nil {
				return err
			}
		}
		logger.Info("%s: desktop session ready", d.opts.Name)
		return nil
	})
}

// Disconnect implements platform.Platform. Desktop sessions hold no remote state.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.conn.Close(ctx, nil)
}

// Tree dumps and parses the target's accessibility tree.
func (d *Driver) Tree(ctx context.Context) (*platform.StaticNode, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	out, err := d.opts.Dump(ctx)
	if err != nil {
		return nil, core.NativeError(d.opts.Name, err)
	}
	tree, err := ParseTree(out)
	if err != nil {
		return nil, core.NativeError(d.opts.Name, err)
	}
	return tree, nil
}

func (d *Driver) root(ctx context.Context) (platform.Node, error) {
	tree, err := d.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// Screenshot implements platform.Platform.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	img, err := d.opts.Input.Capture(core.Bounds{})
	if err != nil {
		return nil, captureError("screen", err)
	}
	return platform.EncodePNG(img)
}

// ElementScreenshot implements platform.Platform by capturing the element's region.
func (d *Driver) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	if live.Bounds().IsEmpty() {
		return nil, core.ScreenshotError(live.ID()+" has no area", nil)
	}
	img, err := d.opts.Input.Capture(live.Bounds())
	if err != nil {
		return nil, captureError(live.ID(), err)
	}
	return platform.EncodePNG(img)
}

// Click implements platform.Platform.
func (d *Driver) Click(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.opts.Input.Click(p, false))
}

// DoubleClick implements platform.Platform.
func (d *Driver) DoubleClick(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.opts.Input.Click(p, true))
}

// LongPress implements platform.Platform.
func (d *Driver) LongPress(ctx context.Context, el *core.Element, hold time.Duration) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.opts.Input.Press(ctx, p, hold))
}

// TypeText implements platform.Platform. The element is clicked to focus it first.
func (d *Driver) TypeText(ctx context.Context, el *core.Element, text string) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	if err := d.native(d.opts.Input.Click(p, false)); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.native(d.opts.Input.Type(text))
}

// Clear implements platform.Platform with select-all and backspace.
func (d *Driver) Clear(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	if err := d.native(d.opts.Input.Click(p, false)); err != nil {
		return err
	}
	if err := d.native(d.opts.Input.KeyTap("a", d.opts.SelectAll)); err != nil {
		return err
	}
	return d.native(d.opts.Input.KeyTap("backspace"))
}

// ScrollIntoView implements platform.Platform with the mouse wheel.
func (d *Driver) ScrollIntoView(ctx context.Context, el *core.Element) error {
	return platform.Scroller{
		Relocate: d.relocate,
		Screen: func(context.Context) (core.Bounds, error) {
			return d.opts.Input.ScreenSize()
		},
		// A drag of the content by (to-from) is a wheel turn the other way.
		Drag: func(ctx context.Context, from, to core.Point) error {
			return d.native(d.opts.Input.Scroll(from, from.X-to.X, from.Y-to.Y))
		},
	}.ScrollIntoView(ctx, el)
}

// Swipe implements platform.Platform as a mouse drag.
func (d *Driver) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	from, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.opts.Input.Drag(from, core.SwipeEnd(from, dir, distance)))
}

func (d *Driver) relocate(ctx context.Context, el *core.Element) (*core.Element, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	return d.Relocate(ctx, el)
}

func (d *Driver) target(ctx context.Context, el *core.Element) (core.Point, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return core.Point{}, err
	}
	if !live.IsClickable() {
		return core.Point{}, core.NotInteractable(fmt.Sprintf("%s is not visible and enabled", live.ID()))
	}
	return live.Center(), nil
}

// native tags input failures with the backend, leaving core errors as they are.
// captureError tags a capture failure as a screenshot error unless the
// input already categorized it.
func captureError(what string, err error) error {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return core.ScreenshotError("capture "+what, err)
}

func (d *Driver) native(err error) error {
	if err == nil || core.CategoryOf(err) != core.ErrCategoryNone {
		return err
	}
	return core.NativeError(d.opts.Name, err)
}

var _ platform.Platform = (*Driver)(nil)
