package platform

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// MaxScrolls bounds the swipes ScrollIntoView makes before giving up.
const MaxScrolls = 10

// OnScreen reports whether b's center lies inside screen. An empty screen is
// unknown and counts as containing everything.
func OnScreen(b, screen core.Bounds) bool {
	if screen.IsEmpty() {
		return true
	}
	return !b.IsEmpty() && screen.Contains(b.Center())
}

// Scroller is the backend surface ScrollIntoView needs.
type Scroller struct {
	// Relocate re-finds the element in the live tree.
	Relocate func(ctx context.Context, el *core.Element) (*core.Element, error)
	// Screen returns the visible screen or viewport bounds.
	Screen func(ctx context.Context) (core.Bounds, error)
	// Drag performs a touch drag or swipe between two points.
	Drag func(ctx context.Context, from, to core.Point) error
}

// ScrollIntoView drags a third of the screen at a time toward el until its
// center is on screen, re-locating it after every drag.
func (s Scroller) ScrollIntoView(ctx context.Context, el *core.Element) error {
	live, err := s.Relocate(ctx, el)
	if err != nil {
		return err
	}
	for i := 0; i < MaxScrolls; i++ {
		screen, err := s.Screen(ctx)
		if err != nil {
			return err
		}
		b := live.Bounds()
		if OnScreen(b, screen) {
			return nil
		}

		// Content moves with the finger: drag up to reveal what is below.
		dir := core.SwipeUp
		switch {
		case b.Y+b.Height <= screen.Y:
			dir = core.SwipeDown
		case b.X+b.Width <= screen.X:
			dir = core.SwipeRight
		case b.X >= screen.X+screen.Width:
			dir = core.SwipeLeft
		}
		distance := float64(screen.Height / 3)
		if dir == core.SwipeLeft || dir == core.SwipeRight {
			distance = float64(screen.Width / 3)
		}
		from := screen.Center()
		if err := s.Drag(ctx, from, core.SwipeEnd(from, dir, distance)); err != nil {
			return err
		}
		if live, err = s.Relocate(ctx, el); err != nil {
			return err
		}
	}
	return core.NotInteractable(fmt.Sprintf("%s still off screen after %d scrolls", el.ID(), MaxScrolls))
}
