package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/jsengine"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// Finder is the part of a platform conditions poll.
type Finder interface {
	FindElement(ctx context.Context, loc locator.Locator) (*core.Element, error)
	FindElements(ctx context.Context, loc locator.Locator) ([]*core.Element, error)
}

// ElementPresent is satisfied once loc matches.
func ElementPresent(f Finder, loc locator.Locator) Condition[*core.Element] {
	return Condition[*core.Element]{
		Name: "present " + loc.Describe(),
		Check: func(ctx context.Context, _ int) (*core.Element, error) {
			return f.FindElement(ctx, loc)
		},
	}
}

// ElementVisible is satisfied once loc matches a visible element.
func ElementVisible(f Finder, loc locator.Locator) Condition[*core.Element] {
	return elementWhere(f, loc, "visible", func(el *core.Element) error {
		if !el.IsVisible() {
			return core.NotInteractable("element not visible")
		}
		return nil
	})
}

// ElementClickable is satisfied once loc matches a visible, enabled element.
func ElementClickable(f Finder, loc locator.Locator) Condition[*core.Element] {
	return elementWhere(f, loc, "clickable", func(el *core.Element) error {
		if !el.IsClickable() {
			return core.NotInteractable("element not clickable")
		}
		return nil
	})
}

// ElementNotPresent is satisfied once loc stops matching.
func ElementNotPresent(f Finder, loc locator.Locator) Condition[struct{}] {
	return Condition[struct{}]{
		Name: "absent " + loc.Describe(),
		Check: func(ctx context.Context, _ int) (struct{}, error) {
			_, err := f.FindElement(ctx, loc)
			switch {
			case errors.Is(err, core.ErrElementNotFound):
				return struct{}{}, nil
			case err != nil:
				return struct{}{}, err
			}
			return struct{}{}, fmt.Errorf("element still present: %s", loc.Describe())
		},
	}
}

// ElementNotVisible is satisfied once loc matches nothing or an invisible element.
func ElementNotVisible(f Finder, loc locator.Locator) Condition[struct{}] {
	return Condition[struct{}]{
		Name: "not visible " + loc.Describe(),
		Check: func(ctx context.Context, _ int) (struct{}, error) {
			el, err := f.FindElement(ctx, loc)
			switch {
			case errors.Is(err, core.ErrElementNotFound):
				return struct{}{}, nil
			case err != nil:
				return struct{}{}, err
			case !el.IsVisible():
				return struct{}{}, nil
			}
			return struct{}{}, fmt.Errorf("element still visible: %s", loc.Describe())
		},
	}
}

// TextContains is satisfied once the element's text contains substr.
func TextContains(f Finder, loc locator.Locator, substr string) Condition[*core.Element] {
	return elementWhere(f, loc, fmt.Sprintf("text contains %q", substr), func(el *core.Element) error {
		text, ok := el.Text()
		if !ok {
			return errors.New("element has no text")
		}
		if !strings.Contains(text, substr) {
			return fmt.Errorf("text %q does not contain %q", text, substr)
		}
		return nil
	})
}

// TextEquals is satisfied once the element's text equals want.
func TextEquals(f Finder, loc locator.Locator, want string) Condition[*core.Element] {
	return elementWhere(f, loc, fmt.Sprintf("text equals %q", want), func(el *core.Element) error {
		text, ok := el.Text()
		if !ok {
			return errors.New("element has no text")
		}
		if text != want {
			return fmt.Errorf("text %q does not equal %q", text, want)
		}
		return nil
	})
}

// AttributeEquals is satisfied once the element's attribute name equals want.
func AttributeEquals(f Finder, loc locator.Locator, name, want string) Condition[*core.Element] {
	return elementWhere(f, loc, fmt.Sprintf("%s equals %q", name, want), func(el *core.Element) error {
		got, ok := el.Attribute(name)
		if !ok {
			return fmt.Errorf("element has no attribute %q", name)
		}
		if got != want {
			return fmt.Errorf("attribute %s = %q, want %q", name, got, want)
		}
		return nil
	})
}

// CountEquals is satisfied once exactly n elements match.
func CountEquals(f Finder, loc locator.Locator, n int) Condition[[]*core.Element] {
	return countWhere(f, loc, fmt.Sprintf("count == %d", n), func(got int) bool { return got == n })
}

// CountAtLeast is satisfied once at least n elements match.
func CountAtLeast(f Finder, loc locator.Locator, n int) Condition[[]*core.Element] {
	return countWhere(f, loc, fmt.Sprintf("count >= %d", n), func(got int) bool { return got >= n })
}

// Predicate is satisfied once the element satisfies fn.
func Predicate(f Finder, loc locator.Locator, name string, fn func(*core.Element) bool) Condition[*core.Element] {
	return elementWhere(f, loc, name, func(el *core.Element) error {
		if !fn(el) {
			return fmt.Errorf("predicate %s not satisfied", name)
		}
		return nil
	})
}

// Script is satisfied once the JavaScript expression is truthy with the
// matched element bound to `element`, e.g. "element.text.length > 3".
func Script(f Finder, loc locator.Locator, engine *jsengine.Engine, expr string) Condition[*core.Element] {
	return Condition[*core.Element]{
		Name: fmt.Sprintf("%s where %s", loc.Describe(), expr),
		Check: func(ctx context.Context, _ int) (*core.Element, error) {
			el, err := f.FindElement(ctx, loc)
			if err != nil {
				return nil, err
			}
			engine.SetElement(el)
			ok, err := engine.EvalBool(ctx, expr)
			if err != nil {
				return nil, core.ConfigError(err.Error())
			}
			if !ok {
				return nil, fmt.Errorf("script %q is false", expr)
			}
			return el, nil
		},
	}
}

func elementWhere(f Finder, loc locator.Locator, what string, test func(*core.Element) error) Condition[*core.Element] {
	return Condition[*core.Element]{
		Name: what + " " + loc.Describe(),
		Check: func(ctx context.Context, _ int) (*core.Element, error) {
			el, err := f.FindElement(ctx, loc)
			if err != nil {
				return nil, err
			}
			if err := test(el); err != nil {
				return nil, err
			}
			return el, nil
		},
	}
}

func countWhere(f Finder, loc locator.Locator, what string, test func(int) bool) Condition[[]*core.Element] {
	return Condition[[]*core.Element]{
		Name: what + " " + loc.Describe(),
		Check: func(ctx context.Context, _ int) ([]*core.Element, error) {
			els, err := f.FindElements(ctx, loc)
			if err != nil {
				return nil, err
			}
			if !test(len(els)) {
				return nil, fmt.Errorf("%d elements match %s, want %s", len(els), loc.Describe(), what)
			}
			return els, nil
		},
	}
}
