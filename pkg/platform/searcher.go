package platform

import (
	"context"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// Searcher implements the find half of Platform on top of the canonical walker.
// Backends embed it and set Root to their tree source.
type Searcher struct {
	Root    RootFunc
	Options WalkOptions
}

// FindElement implements Platform.FindElement.
func (s *Searcher) FindElement(ctx context.Context, loc locator.Locator) (*core.Element, error) {
	return FindFirst(ctx, s.Root, loc, s.Options)
}

// FindElements implements Platform.FindElements.
func (s *Searcher) FindElements(ctx context.Context, loc locator.Locator) ([]*core.Element, error) {
	return FindAll(ctx, s.Root, loc, s.Options)
}

// ElementExists implements Platform.ElementExists.
func (s *Searcher) ElementExists(ctx context.Context, loc locator.Locator) (bool, error) {
	return ElementExists(ctx, s.FindElement, loc)
}

// Relocate re-resolves a snapshot against the live tree.
func (s *Searcher) Relocate(ctx context.Context, el *core.Element) (*core.Element, error) {
	return Relocate(ctx, s.FindElements, el)
}

// IdentityLocator builds the locator that re-finds el: its resource id, class
// and accessibility id when present, otherwise its class and text.
func IdentityLocator(el *core.Element) locator.Locator {
	var parts []locator.Locator
	class, hasClass := el.ClassName()
	if hasClass {
		parts = append(parts, locator.ClassName(class))
	}
	id, hasID := el.Attribute(core.AttrResourceID)
	if hasID {
		parts = append(parts, locator.ID(id))
	}
	a11y, hasA11y := el.Attribute(core.AttrAccessibilityID)
	if hasA11y {
		parts = append(parts, locator.AccessibilityID(a11y))
	}
	if !hasID && !hasA11y {
		if text, ok := el.Text(); ok {
			parts = append(parts, locator.Text(text))
		}
	}
	if tag, ok := el.Attribute(core.AttrTagName); ok {
		parts = append(parts, locator.TagName(tag))
	}
	return locator.And(parts...)
}

// Relocate finds the live counterpart of el. Among identity matches it prefers
// the same element ID, then the same bounds, then the first in document order.
func Relocate(ctx context.Context, findAll func(context.Context, locator.Locator) ([]*core.Element, error), el *core.Element) (*core.Element, error) {
	if el == nil {
		return nil, core.NotInteractable("nil element")
	}
	loc := IdentityLocator(el)
	if len(loc.Locators()) == 0 {
		return nil, core.NotInteractable("element " + el.ID() + " has no identifying attributes")
	}
	candidates, err := findAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, core.ElementNotFound(loc.Describe())
	}
	for _, c := range candidates {
		if c.ID() == el.ID() {
			return c, nil
		}
	}
	for _, c := range candidates {
		if c.Bounds() == el.Bounds() {
			return c, nil
		}
	}
	return candidates[0], nil
}
