// Package android drives Android devices over adb: `uiautomator dump` for the
// tree, `input` for gestures and keys, `screencap` for screenshots.
package android

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/device"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

const (
	swipeDuration = 300 * time.Millisecond
	keycodeDel    = "67"
)

// Driver implements platform.Platform for one Android device.
type Driver struct {
	platform.Searcher

	adb  *device.ADB
	conn platform.Connection

	mu     sync.Mutex
	screen core.Bounds
}

// New creates a driver from the android config section.
func New(cfg config.AndroidConfig) *Driver {
	return NewWithADB(device.NewADB(cfg.ADBPath, cfg.Serial, cfg.ADBTimeout))
}

// NewWithADB creates a driver over an existing adb client.
func NewWithADB(adb *device.ADB) *Driver {
	d := &Driver{adb: adb}
	d.Searcher = platform.Searcher{Root: d.root}
	return d
}

// Name implements platform.Platform.
func (d *Driver) Name() string { return platform.Android }

// Capabilities implements platform.Platform.
func (d *Driver) Capabilities() platform.Capabilities { return platform.MobileCapabilities() }

// Serial returns the device serial, detected on connect when not configured.
func (d *Driver) Serial() string { return d.adb.Serial() }

// Connect implements platform.Platform. With no serial configured the first
// ready device is used.
func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Open(ctx, func(ctx context.Context) error {
		if d.adb.Serial() == "" {
			serial, err := d.adb.FirstAvailable(ctx)
			if err != nil {
				return core.ConnectionError("no Android device", err)
			}
			d.adb.SetSerial(serial)
		}
		state, err := d.adb.State(ctx)
		if err != nil {
			return core.ConnectionError("adb device "+d.adb.Serial(), err)
		}
		if state != "device" {
			return core.ConnectionError(fmt.Sprintf("device %s is %s", d.adb.Serial(), state), nil)
		}
		logger.Info("android: connected to %s", d.adb.Serial())
		return nil
	})
}

// Disconnect implements platform.Platform. adb keeps no session, so this only
// closes the driver.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.conn.Close(ctx, nil)
}

// Tree dumps the current hierarchy.
func (d *Driver) Tree(ctx context.Context) (*platform.StaticNode, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	out, err := d.adb.ExecOut(ctx, "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, core.NativeError(platform.Android, err)
	}
	tree, err := ParseHierarchy(out)
	if err != nil {
		return nil, core.NativeError(platform.Android, err)
	}
	if len(tree.Kids) > 0 {
		d.mu.Lock()
		d.screen = tree.Kids[0].Projection.Bounds
		d.mu.Unlock()
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
	out, err := d.adb.ExecOut(ctx, "screencap", "-p")
	if err != nil {
		return nil, core.ScreenshotError("adb screencap", err)
	}
	return out, nil
}

// ElementScreenshot implements platform.Platform.
func (d *Driver) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	shot, err := d.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return platform.CropPNG(shot, live.Bounds())
}

// Click implements platform.Platform.
func (d *Driver) Click(ctx context.Context, el *core.Element) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	return d.tap(ctx, live.Center())
}

// DoubleClick implements platform.Platform.
func (d *Driver) DoubleClick(ctx context.Context, el *core.Element) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	if err := d.tap(ctx, live.Center()); err != nil {
		return err
	}
	return d.tap(ctx, live.Center())
}

// LongPress implements platform.Platform as a zero-length swipe.
func (d *Driver) LongPress(ctx context.Context, el *core.Element, hold time.Duration) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	p := live.Center()
	return d.swipe(ctx, p, p, hold)
}

// TypeText implements platform.Platform. The element is tapped to focus it first.
func (d *Driver) TypeText(ctx context.Context, el *core.Element, text string) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	if err := d.tap(ctx, live.Center()); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.input(ctx, "text", escapeInputText(text))
}

// Clear implements platform.Platform by deleting the element's current text.
func (d *Driver) Clear(ctx context.Context, el *core.Element) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	if err := d.tap(ctx, live.Center()); err != nil {
		return err
	}
	text, _ := live.Text()
	n := len([]rune(text))
	if n == 0 {
		return nil
	}
	if err := d.input(ctx, "keyevent", "KEYCODE_MOVE_END"); err != nil {
		return err
	}
	dels := make([]string, n)
	for i := range dels {
		dels[i] = keycodeDel
	}
	return d.input(ctx, append([]string{"keyevent"}, dels...)...)
}

// ScrollIntoView implements platform.Platform.
func (d *Driver) ScrollIntoView(ctx context.Context, el *core.Element) error {
	return platform.Scroller{
		Relocate: d.relocate,
		Screen: func(context.Context) (core.Bounds, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.screen, nil
		},
		Drag: func(ctx context.Context, from, to core.Point) error {
			return d.swipe(ctx, from, to, swipeDuration)
		},
	}.ScrollIntoView(ctx, el)
}

// Swipe implements platform.Platform.
func (d *Driver) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	from := live.Center()
	return d.swipe(ctx, from, core.SwipeEnd(from, dir, distance), swipeDuration)
}

func (d *Driver) relocate(ctx context.Context, el *core.Element) (*core.Element, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	return d.Relocate(ctx, el)
}

func (d *Driver) interactable(ctx context.Context, el *core.Element) (*core.Element, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	if !live.IsClickable() {
		return nil, core.NotInteractable(fmt.Sprintf("%s is not visible and enabled", live.ID()))
	}
	return live, nil
}

func (d *Driver) tap(ctx context.Context, p core.Point) error {
	return d.input(ctx, "tap", strconv.Itoa(p.X), strconv.Itoa(p.Y))
}

func (d *Driver) swipe(ctx context.Context, from, to core.Point, dur time.Duration) error {
	ms := dur.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return d.input(ctx, "swipe",
		strconv.Itoa(from.X), strconv.Itoa(from.Y),
		strconv.Itoa(to.X), strconv.Itoa(to.Y),
		strconv.FormatInt(ms, 10))
}

func (d *Driver) input(ctx context.Context, args ...string) error {
	if _, err := d.adb.Shell(ctx, append([]string{"input"}, args...)...); err != nil {
		return core.NativeError(platform.Android, err)
	}
	return nil
}

// escapeInputText prepares text for `input text`, which runs through the
// device shell and reads %s as a space.
func escapeInputText(s string) string {
	const special = "\\'\"()<>|;&*~$`?#!"
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteString("%s")
		case strings.ContainsRune(special, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ platform.Platform = (*Driver)(nil)
