// Package web drives a browser page through the Chrome DevTools Protocol.
//
// The DOM is snapshotted by an in-page script into the shared node tree, so
// locators match the same way as on native backends; CSS and XPath leaves are
// evaluated by the browser against that snapshot.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// Driver implements platform.Platform over one browser tab.
type Driver struct {
	platform.Searcher

	browser Browser
	conn    platform.Connection
}

// New creates a web driver that launches or attaches to Chrome.
func New(cfg config.WebConfig) *Driver {
	return NewWithBrowser(NewChrome(cfg))
}

// NewWithBrowser creates a web driver over an existing browser.
func NewWithBrowser(b Browser) *Driver {
	d := &Driver{browser: b}
	d.Searcher = platform.Searcher{
		Root:    d.root,
		Options: platform.WalkOptions{Resolver: resolver{d}},
	}
	return d
}

// Name implements platform.Platform.
func (d *Driver) Name() string { return platform.Web }

// Capabilities implements platform.Platform.
func (d *Driver) Capabilities() platform.Capabilities {
	return platform.Capabilities{
		Mouse:         true,
		Keyboard:      true,
		Accessibility: true,
		Screenshots:   true,
	}
}

// Connect implements platform.Platform.
func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Open(ctx, func(ctx context.Context) error {
		if err := d.browser.Start(ctx); err != nil {
			return core.ConnectionError("start browser", err)
		}
		return nil
	})
}

// Disconnect implements platform.Platform.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.conn.Close(ctx, func(context.Context) error {
		return d.browser.Stop()
	})
}

// Tree snapshots the current document.
func (d *Driver) Tree(ctx context.Context) (*platform.StaticNode, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	var raw string
	if err := d.browser.Eval(ctx, snapshotJS, &raw); err != nil {
		return nil, native(err)
	}
	tree, err := ParseDOM(raw)
	if err != nil {
		return nil, native(err)
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

// resolver answers CSS and XPath leaves from the browser.
type resolver struct{ d *Driver }

func (r resolver) Resolve(ctx context.Context, loc locator.Locator) (func(platform.Projection) bool, error) {
	var kind string
	switch loc.Kind() {
	case locator.KindCSSSelector:
		kind = "css"
	case locator.KindXPath:
		kind = "xpath"
	default:
		return nil, core.PlatformNotSupported(loc.Kind().String() + " locators on web")
	}
	var raw string
	if err := r.d.browser.Eval(ctx, queryScript(kind, loc.Value()), &raw); err != nil {
		return nil, core.ConfigError(fmt.Sprintf("%s %q: %v", kind, loc.Value(), err))
	}
	var indices []int
	if err := json.Unmarshal([]byte(raw), &indices); err != nil {
		return nil, native(err)
	}
	hits := make(map[string]bool, len(indices))
	for _, i := range indices {
		hits[nodeID(i)] = true
	}
	logger.Debug("web: %s %q selects %d nodes", kind, loc.Value(), len(hits))
	return func(p platform.Projection) bool { return hits[p.ID] }, nil
}

// Screenshot implements platform.Platform.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.conn.Require(); err != nil {
		return nil, err
	}
	buf, err := d.browser.Screenshot(ctx, core.Bounds{})
	if err != nil {
		return nil, core.ScreenshotError("capture page", err)
	}
	return buf, nil
}

// ElementScreenshot implements platform.Platform with a clipped capture.
func (d *Driver) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	if live.Bounds().IsEmpty() {
		return nil, core.ScreenshotError(live.ID()+" has no area", nil)
	}
	buf, err := d.browser.Screenshot(ctx, live.Bounds())
	if err != nil {
		return nil, core.ScreenshotError("capture "+live.ID(), err)
	}
	return buf, nil
}

// Click implements platform.Platform.
func (d *Driver) Click(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return native(d.browser.Click(ctx, p, 1))
}

// DoubleClick implements platform.Platform.
func (d *Driver) DoubleClick(ctx context.Context, el *core.Element) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return native(d.browser.Click(ctx, p, 2))
}

// LongPress implements platform.Platform.
func (d *Driver) LongPress(ctx context.Context, el *core.Element, hold time.Duration) error {
	p, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return native(d.browser.Press(ctx, p, hold))
}

// TypeText implements platform.Platform: focus the element, then send key events.
func (d *Driver) TypeText(ctx context.Context, el *core.Element, text string) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	if err := d.call(ctx, live, "el.focus();"); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return native(d.browser.Keys(ctx, text))
}

// Clear implements platform.Platform by resetting the value and firing input events.
func (d *Driver) Clear(ctx context.Context, el *core.Element) error {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return err
	}
	return d.call(ctx, live, `el.focus();
  if ("value" in el) { el.value = ""; } else if (el.isContentEditable) { el.textContent = ""; }
  el.dispatchEvent(new Event("input", { bubbles: true }));
  el.dispatchEvent(new Event("change", { bubbles: true }));`)
}

// ScrollIntoView implements platform.Platform with the DOM's own scrolling.
func (d *Driver) ScrollIntoView(ctx context.Context, el *core.Element) error {
	live, err := d.relocate(ctx, el)
	if err != nil {
		return err
	}
	return d.call(ctx, live, `el.scrollIntoView({ block: "center", inline: "center" });`)
}

// Swipe implements platform.Platform as a mouse drag.
func (d *Driver) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	from, err := d.target(ctx, el)
	if err != nil {
		return err
	}
	return native(d.browser.Drag(ctx, from, core.SwipeEnd(from, dir, distance)))
}

// call runs body in the page with el bound to live's DOM element.
func (d *Driver) call(ctx context.Context, live *core.Element, body string) error {
	i, ok := nodeIndex(live.ID())
	if !ok {
		return core.NotInteractable("no DOM node for " + live.ID())
	}
	var found bool
	if err := d.browser.Eval(ctx, nodeCall(i, body), &found); err != nil {
		return native(err)
	}
	if !found {
		return core.NotInteractable(live.ID() + " is detached from the document")
	}
	return nil
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

func (d *Driver) target(ctx context.Context, el *core.Element) (core.Point, error) {
	live, err := d.interactable(ctx, el)
	if err != nil {
		return core.Point{}, err
	}
	return live.Center(), nil
}

func native(err error) error {
	if err == nil {
		return nil
	}
	return core.NativeError(platform.Web, err)
}

var _ platform.Platform = (*Driver)(nil)
