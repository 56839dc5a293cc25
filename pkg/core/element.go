// Package core provides the element model and error taxonomy shared by every backend.
package core

import (
	"fmt"
	"strings"
)

// Normalized attribute keys every backend writes into an Element.
const (
	AttrText            = "text"
	AttrClassName       = "className"
	AttrResourceID      = "resourceId"
	AttrAccessibilityID = "accessibilityId"
	AttrTagName         = "tagName"
)

// Element is an immutable point-in-time snapshot of a matched UI node.
// It holds no native handle; interactions re-resolve the live node from it.
type Element struct {
	id         string
	attributes map[string]string
	bounds     Bounds
	visible    bool
	enabled    bool
}

// NewElement creates an Element. The attribute map is copied.
func NewElement(id string, attributes map[string]string, bounds Bounds, visible, enabled bool) *Element {
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	return &Element{
		id:         id,
		attributes: attrs,
		bounds:     bounds,
		visible:    visible,
		enabled:    enabled,
	}
}

// ID returns the platform-specific element identifier.
func (e *Element) ID() string {
	return e.id
}

// Text returns the element's text content.
func (e *Element) Text() (string, bool) {
	return e.Attribute(AttrText)
}

// ClassName returns the element's class name (role on desktop backends).
func (e *Element) ClassName() (string, bool) {
	return e.Attribute(AttrClassName)
}

// ResourceID returns the resource ID (Android) or the accessibility identifier.
func (e *Element) ResourceID() (string, bool) {
	if v, ok := e.Attribute(AttrResourceID); ok {
		return v, true
	}
	return e.Attribute(AttrAccessibilityID)
}

// Attribute returns an attribute value. Lookup is case-sensitive.
func (e *Element) Attribute(name string) (string, bool) {
	v, ok := e.attributes[name]
	return v, ok
}

// Attributes returns a copy of all attributes.
func (e *Element) Attributes() map[string]string {
	out := make(map[string]string, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// Bounds returns the element's bounds.
func (e *Element) Bounds() Bounds {
	return e.bounds
}

// Center returns the center point of the element.
func (e *Element) Center() Point {
	return e.bounds.Center()
}

// IsVisible reports whether the element was visible when captured.
func (e *Element) IsVisible() bool {
	return e.visible
}

// IsEnabled reports whether the element was enabled when captured.
func (e *Element) IsEnabled() bool {
	return e.enabled
}

// IsClickable reports whether the element is ready to interact with: visible and enabled.
func (e *Element) IsClickable() bool {
	return e.visible && e.enabled
}

// String returns a short description for logs and error messages.
func (e *Element) String() string {
	var b strings.Builder
	b.WriteString(e.id)
	if cls, ok := e.ClassName(); ok && cls != "" {
		fmt.Fprintf(&b, " <%s>", cls)
	}
	if text, ok := e.Text(); ok && text != "" {
		fmt.Fprintf(&b, " %q", text)
	}
	fmt.Fprintf(&b, " %s", e.bounds)
	return b.String()
}

// Info returns a serializable copy of the element.
func (e *Element) Info() ElementInfo {
	return ElementInfo{
		ID:         e.id,
		Bounds:     e.bounds,
		Visible:    e.visible,
		Enabled:    e.enabled,
		Attributes: e.Attributes(),
	}
}

// MarshalYAML renders the element through ElementInfo.
func (e *Element) MarshalYAML() (interface{}, error) {
	return e.Info(), nil
}

// ElementInfo is the exported, serializable form of an Element.
type ElementInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Bounds     Bounds            `json:"bounds" yaml:"bounds"`
	Visible    bool              `json:"visible" yaml:"visible"`
	Enabled    bool              `json:"enabled" yaml:"enabled"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Bounds represents element position and size in integer pixels.
type Bounds struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Center returns the center point of the bounds, truncating toward zero.
func (b Bounds) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains checks if a point is within the bounds (right/bottom edges exclusive).
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.X && p.X < b.X+b.Width && p.Y >= b.Y && p.Y < b.Y+b.Height
}

// IsEmpty reports whether the bounds have no area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", b.X, b.Y, b.Width, b.Height)
}

// Point is a position in screen pixels.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// SwipeDirection is the direction of a swipe gesture.
type SwipeDirection int

const (
	SwipeUp SwipeDirection = iota
	SwipeDown
	SwipeLeft
	SwipeRight
)

func (d SwipeDirection) String() string {
	switch d {
	case SwipeUp:
		return "up"
	case SwipeDown:
		return "down"
	case SwipeLeft:
		return "left"
	case SwipeRight:
		return "right"
	default:
		return "unknown"
	}
}

// ParseSwipeDirection parses "up", "down", "left" or "right" (case-insensitive).
func ParseSwipeDirection(s string) (SwipeDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return SwipeUp, nil
	case "down":
		return SwipeDown, nil
	case "left":
		return SwipeLeft, nil
	case "right":
		return SwipeRight, nil
	}
	return 0, fmt.Errorf("unknown swipe direction %q", s)
}

// SwipeEnd returns the end point of a swipe of distance pixels starting at from.
func SwipeEnd(from Point, dir SwipeDirection, distance float64) Point {
	d := int(distance)
	switch dir {
	case SwipeUp:
		return Point{X: from.X, Y: from.Y - d}
	case SwipeDown:
		return Point{X: from.X, Y: from.Y + d}
	case SwipeLeft:
		return Point{X: from.X - d, Y: from.Y}
	case SwipeRight:
		return Point{X: from.X + d, Y: from.Y}
	}
	return from
}
