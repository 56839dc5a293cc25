package platform

import (
	"context"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// Match evaluates loc against a single projection without a LeafResolver.
// XPath, CSS and image leaves fail with ErrPlatformNotSupported.
func Match(loc locator.Locator, p Projection) (bool, error) {
	m := newMatcher(context.Background(), nil)
	return m.match(loc, p)
}

// matcher evaluates the locator contract for one walk. Resolver results are
// cached per leaf so a resolver runs at most once per walk.
type matcher struct {
	ctx      context.Context
	resolver LeafResolver
	resolved map[leafKey]func(Projection) bool
}

// leafKey identifies a resolver leaf by its full value, image payload and
// region included.
type leafKey struct {
	kind      locator.Kind
	value     string
	data      locator.ImageData
	threshold float64
	region    core.Bounds
	hasRegion bool
}

func keyOf(loc locator.Locator) leafKey {
	k := leafKey{kind: loc.Kind(), value: loc.Value()}
	if img, ok := loc.Image(); ok {
		k.data = img.Data
		k.threshold = img.Threshold
		if img.Region != nil {
			k.region, k.hasRegion = *img.Region, true
		}
	}
	return k
}

func newMatcher(ctx context.Context, r LeafResolver) *matcher {
	return &matcher{ctx: ctx, resolver: r, resolved: make(map[leafKey]func(Projection) bool)}
}

func (m *matcher) match(loc locator.Locator, p Projection) (bool, error) {
	switch loc.Kind() {
	case locator.KindAnd:
		for _, sub := range loc.Locators() {
			ok, err := m.match(sub, p)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case locator.KindOr:
		for _, sub := range loc.Locators() {
			ok, err := m.match(sub, p)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case locator.KindID:
		return p.Identifier == loc.Value(), nil
	case locator.KindClassName:
		return p.Class == loc.Value(), nil
	case locator.KindText:
		return p.Text == loc.Value(), nil
	case locator.KindPartialText:
		return strings.Contains(p.Text, loc.Value()), nil
	case locator.KindAccessibilityID:
		return p.Description == loc.Value(), nil
	case locator.KindTagName:
		return strings.EqualFold(p.Tag, loc.Value()), nil
	case locator.KindAttribute:
		v, ok := p.Attribute(loc.Name())
		return ok && v == loc.Value(), nil
	case locator.KindCoordinates:
		return !p.Bounds.IsEmpty() && p.Bounds.Contains(loc.Point()), nil
	case locator.KindXPath, locator.KindCSSSelector, locator.KindImage:
		test, err := m.resolve(loc)
		if err != nil {
			return false, err
		}
		return test(p), nil
	}
	return false, core.ConfigError("invalid locator: " + loc.Describe())
}

func (m *matcher) resolve(loc locator.Locator) (func(Projection) bool, error) {
	if m.resolver == nil {
		return nil, core.PlatformNotSupported(loc.Kind().String() + " locators")
	}
	key := keyOf(loc)
	if test, ok := m.resolved[key]; ok {
		return test, nil
	}
	test, err := m.resolver.Resolve(m.ctx, loc)
	if err != nil {
		return nil, err
	}
	m.resolved[key] = test
	return test, nil
}
