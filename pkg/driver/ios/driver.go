// Package ios drives iOS devices and simulators through WebDriverAgent.
package ios

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

const dragDuration = 300 * time.Millisecond

// Driver implements platform.Platform over a WDA server.
type Driver struct {
	platform.Searcher

	client   *Client
	bundleID string
	conn     platform.Connection
	discover func() ([]Device, error)

	mu     sync.Mutex
	udid   string
	screen core.Bounds
}

// New creates a driver from the ios config section.
func New(cfg config.IOSConfig) *Driver {
	return NewWithClient(NewClient(cfg.WDAURL), cfg.UDID, cfg.BundleID)
}

// NewWithClient creates a driver over an existing WDA client.
func NewWithClient(client *Client, udid, bundleID string) *Driver {
	d := &Driver{client: client, udid: udid, bundleID: bundleID, discover: ListDevices}
	d.Searcher = platform.Searcher{Root: d.root}
	return d
}

// Name implements platform.Platform.
func (d *Driver) Name() string { return platform.IOS }

// Capabilities implements platform.Platform.
func (d *Driver) Capabilities() platform.Capabilities { return platform.MobileCapabilities() }

// UDID returns the configured or discovered device id. Empty for a simulator
// reached only through its WDA URL.
func (d *Driver) UDID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.udid
}

// Connect implements platform.Platform: discover the device when no UDID is
// configured, check WDA is up, then open a session.
func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Open(ctx, func(ctx context.Context) error {
		if d.UDID() == "" {
			d.discoverDevice()
		}
		if err := d.client.Status(ctx); err != nil {
			return core.ConnectionError("WebDriverAgent at "+d.client.baseURL, err)
		}
		if err := d.client.CreateSession(ctx, d.bundleID); err != nil {
			return core.ConnectionError("WebDriverAgent session", err)
		}
		w, h, err := d.client.WindowSize(ctx)
		if err != nil {
			logger.Warn("ios: window size: %v", err)
		}
		d.mu.Lock()
		d.screen = core.Bounds{Width: w, Height: h}
		d.mu.Unlock()
		logger.Info("ios: session %s on %s", d.client.SessionID(), d.describe())
		return nil
	})
}

// discoverDevice records the first usbmuxd device. Simulators are not
// visible to usbmuxd, so a failed discovery is only logged.
func (d *Driver) discoverDevice() {
	devices, err := d.discover()
	if err != nil {
		logger.Debug("ios: device discovery: %v", err)
		return
	}
	if len(devices) == 0 {
		logger.Debug("ios: no usbmuxd devices, assuming simulator")
		return
	}
	d.mu.Lock()
	d.udid = devices[0].UDID
	d.mu.Unlock()
}

func (d *Driver) describe() string {
	if udid := d.UDID(); udid != "" {
		return udid
	}
	return d.client.baseURL
}

// Disconnect implements platform.Platform by deleting the WDA session.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.conn.Close(ctx, func(ctx context.Context) error {
		if err := d.client.DeleteSession(ctx); err != nil {
			return core.NativeError(platform.IOS, err)
		}
		return nil
	})
}

// Tree fetches and parses the current source.
func (d *Driver) Tree(ctx context.Context) (*platform.StaticNode, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	src, err := d.client.Source(ctx)
	if err != nil {
		return nil, core.NativeError(platform.IOS, err)
	}
	tree, err := ParseSource(src)
	if err != nil {
		return nil, core.NativeError(platform.IOS, err)
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
	data, err := d.client.Screenshot(ctx)
	if err != nil {
		return nil, core.ScreenshotError("WDA screenshot", err)
	}
	return data, nil
}

// ElementScreenshot implements platform.Platform. WDA screenshots are in
// pixels and bounds in points, so bounds are scaled first.
func (d *Driver) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	shot, err := d.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return nil, core.ScreenshotError("decode", err)
	}
	d.mu.Lock()
	screen := d.screen
	d.mu.Unlock()
	return platform.CropPNG(shot, scaleBounds(live.Bounds(), cfg.Width, screen.Width))
}

// Click implements platform.Platform.
func (d *Driver) Click(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.client.Tap(ctx, float64(p.X), float64(p.Y)))
}

// DoubleClick implements platform.Platform.
func (d *Driver) DoubleClick(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.client.DoubleTap(ctx, float64(p.X), float64(p.Y)))
}

// LongPress implements platform.Platform.
func (d *Driver) LongPress(ctx context.Context, el *core.Element, hold time.Duration) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.native(d.client.TouchAndHold(ctx, float64(p.X), float64(p.Y), hold))
}

// TypeText implements platform.Platform. The element is tapped to focus it first.
func (d *Driver) TypeText(ctx context.Context, el *core.Element, text string) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	if err := d.native(d.client.Tap(ctx, float64(p.X), float64(p.Y))); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.native(d.client.Keys(ctx, text))
}

// Clear implements platform.Platform by focusing el and clearing the active element.
func (d *Driver) Clear(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	if err := d.native(d.client.Tap(ctx, float64(p.X), float64(p.Y))); err != nil {
		return err
	}
	id, err := d.client.ActiveElement(ctx)
	if err != nil {
		return core.NotInteractable(fmt.Sprintf("%s did not take focus: %v", el.ID(), err))
	}
	return d.native(d.client.ElementClear(ctx, id))
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
		Drag: d.drag,
	}.ScrollIntoView(ctx, el)
}

// Swipe implements platform.Platform.
func (d *Driver) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	from, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return d.drag(ctx, from, core.SwipeEnd(from, dir, distance))
}

func (d *Driver) drag(ctx context.Context, from, to core.Point) error {
	return d.native(d.client.Drag(ctx, float64(from.X), float64(from.Y), float64(to.X), float64(to.Y), dragDuration))
}

func (d *Driver) relocate(ctx context.Context, el *core.Element) (*core.Element, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	return d.Relocate(ctx, el)
}

// target relocates el, checks it can be touched and returns its center.
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

func (d *Driver) native(err error) error {
	if err != nil {
		return core.NativeError(platform.IOS, err)
	}
	return nil
}

// scaleBounds converts point bounds to pixel bounds given the screenshot and
// screen widths. An unknown screen width leaves bounds unscaled.
func scaleBounds(b core.Bounds, pixelWidth, pointWidth int) core.Bounds {
	if pointWidth <= 0 || pixelWidth <= 0 || pixelWidth == pointWidth {
		return b
	}
	scale := float64(pixelWidth) / float64(pointWidth)
	return core.Bounds{
		X:      int(float64(b.X) * scale),
		Y:      int(float64(b.Y) * scale),
		Width:  int(float64(b.Width) * scale),
		Height: int(float64(b.Height) * scale),
	}
}

var _ platform.Platform = (*Driver)(nil)
