package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/logger"
)

// Browser is the DevTools surface the web driver needs. Points are CSS pixels
// in the viewport.
type Browser interface {
	Start(ctx context.Context) error
	Stop() error
	// Eval evaluates a JavaScript expression and stores its result in out.
	Eval(ctx context.Context, expr string, out any) error
	Click(ctx context.Context, p core.Point, count int) error
	Press(ctx context.Context, p core.Point, hold time.Duration) error
	Drag(ctx context.Context, from, to core.Point) error
	// Keys sends text as key events to the focused element.
	Keys(ctx context.Context, text string) error
	// Screenshot captures the viewport as PNG, or only clip when it is not empty.
	Screenshot(ctx context.Context, clip core.Bounds) ([]byte, error)
}

// Chrome drives a Chrome or Chromium tab through chromedp.
type Chrome struct {
	cfg config.WebConfig

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChrome creates a Chrome browser for the web config section.
func NewChrome(cfg config.WebConfig) *Chrome {
	return &Chrome{cfg: cfg}
}

// Start launches Chrome, or attaches to RemoteURL, and opens the configured page.
func (c *Chrome) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab != nil {
		return nil
	}

	var allocCtx context.Context
	if c.cfg.RemoteURL != "" {
		allocCtx, c.cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), c.cfg.RemoteURL)
		logger.Info("web: attaching to %s", c.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-popup-blocking", true),
		)
		if !c.cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		allocCtx, c.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	c.tab, c.cancelTab = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debug),
		chromedp.WithErrorf(logger.Warn),
	)

	// The first Run allocates the browser and is bound to the tab context;
	// a derived context here would take the browser down when it ends.
	if err := chromedp.Run(c.tab); err != nil {
		c.stopLocked()
		return err
	}
	if c.cfg.URL != "" {
		if err := runIn(c.tab, ctx, chromedp.Navigate(c.cfg.URL)); err != nil {
			c.stopLocked()
			return err
		}
	}
	logger.Info("web: tab ready at %q", c.cfg.URL)
	return nil
}

// Stop closes the tab and, when launched by us, the browser.
func (c *Chrome) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *Chrome) stopLocked() {
	if c.cancelTab != nil {
		c.cancelTab()
	}
	if c.cancelAlloc != nil {
		c.cancelAlloc()
	}
	c.tab, c.cancelTab, c.cancelAlloc = nil, nil, nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	tab := c.tab
	c.mu.Unlock()
	if tab == nil {
		return fmt.Errorf("browser not started")
	}
	return runIn(tab, ctx, actions...)
}

// runIn executes actions in tab, cancelled when either tab or ctx ends.
func runIn(tab, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Eval(ctx context.Context, expr string, out any) error {
	return c.run(ctx, chromedp.Evaluate(expr, out))
}

func (c *Chrome) Click(ctx context.Context, p core.Point, count int) error {
	return c.run(ctx, chromedp.MouseClickXY(float64(p.X), float64(p.Y), chromedp.ClickCount(count)))
}

func (c *Chrome) Press(ctx context.Context, p core.Point, hold time.Duration) error {
	x, y := float64(p.X), float64(p.Y)
	return c.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1),
		chromedp.Sleep(hold),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
}

// dragSteps is the number of intermediate mouse moves in a drag.
const dragSteps = 10

func (c *Chrome) Drag(ctx context.Context, from, to core.Point) error {
	fx, fy := float64(from.X), float64(from.Y)
	actions := []chromedp.Action{
		input.DispatchMouseEvent(input.MouseMoved, fx, fy),
		input.DispatchMouseEvent(input.MousePressed, fx, fy).WithButton(input.Left).WithClickCount(1),
	}
	for i := 1; i <= dragSteps; i++ {
		x := fx + (float64(to.X)-fx)*float64(i)/dragSteps
		y := fy + (float64(to.Y)-fy)*float64(i)/dragSteps
		actions = append(actions, input.DispatchMouseEvent(input.MouseMoved, x, y).WithButton(input.Left))
	}
	actions = append(actions,
		input.DispatchMouseEvent(input.MouseReleased, float64(to.X), float64(to.Y)).WithButton(input.Left).WithClickCount(1))
	return c.run(ctx, actions...)
}

func (c *Chrome) Keys(ctx context.Context, text string) error {
	return c.run(ctx, chromedp.KeyEvent(text))
}

func (c *Chrome) Screenshot(ctx context.Context, clip core.Bounds) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		capture := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if !clip.IsEmpty() {
			capture = capture.WithClip(&page.Viewport{
				X:      float64(clip.X),
				Y:      float64(clip.Y),
				Width:  float64(clip.Width),
				Height: float64(clip.Height),
				Scale:  1,
			})
		}
		var err error
		buf, err = capture.Do(ctx)
		return err
	}))
	return buf, err
}

var _ Browser = (*Chrome)(nil)
