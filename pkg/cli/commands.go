package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

var locatorFlag = &cli.StringFlag{
	Name:     "locator",
	Aliases:  []string{"l"},
	Usage:    "Element locator as YAML, e.g. 'id: login' or 'text: Sign in'",
	Required: true,
}

var findCommand = &cli.Command{
	Name:  "find",
	Usage: "Find elements and print them",
	Description: `Find the first element matching a locator, or all of them with --all.

Examples:
  bryndza find --locator 'text: Sign in'
  bryndza find --all --locator 'className: android.widget.Button'`,
	Flags: []cli.Flag{
		locatorFlag,
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Print every match in document order"},
		&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait up to the timeout for the first match"},
	},
	Action: runFind,
}

var existsCommand = &cli.Command{
	Name:   "exists",
	Usage:  "Report whether an element exists; exits 2 when it does not",
	Flags:  []cli.Flag{locatorFlag},
	Action: runExists,
}

var waitCommand = &cli.Command{
	Name:  "wait",
	Usage: "Wait for an element condition",
	Description: `Poll until the condition holds or the timeout expires.

Examples:
  bryndza wait --locator 'id: spinner' --until gone
  bryndza wait --locator 'id: status' --text Done --strategy exponential
  bryndza wait --locator 'id: total' --script 'Number(element.text) > 10'`,
	Flags: []cli.Flag{
		locatorFlag,
		&cli.StringFlag{Name: "until", Value: "present", Usage: "Condition: present, visible, clickable or gone"},
		&cli.StringFlag{Name: "text", Usage: "Wait until the element's text contains this"},
		&cli.StringFlag{Name: "script", Usage: "Wait until this JavaScript expression is truthy (element, platform in scope)"},
		&cli.StringFlag{Name: "strategy", Usage: "Polling strategy: fixed, exponential, linear or fibonacci"},
	},
	Action: runWait,
}

var tapCommand = &cli.Command{
	Name:  "tap",
	Usage: "Click or tap an element once it is clickable",
	Flags: []cli.Flag{
		locatorFlag,
		&cli.BoolFlag{Name: "double", Usage: "Double click"},
		&cli.DurationFlag{Name: "long", Usage: "Long press for this duration"},
	},
	Action: runTap,
}

var typeCommand = &cli.Command{
	Name:  "type",
	Usage: "Type text into an element",
	Flags: []cli.Flag{
		locatorFlag,
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Text to type"},
		&cli.BoolFlag{Name: "clear", Usage: "Clear the element first"},
	},
	Action: runType,
}

var swipeCommand = &cli.Command{
	Name:  "swipe",
	Usage: "Swipe from an element, or scroll it into view",
	Flags: []cli.Flag{
		locatorFlag,
		&cli.StringFlag{Name: "direction", Value: "up", Usage: "up, down, left or right"},
		&cli.Float64Flag{Name: "distance", Value: 300, Usage: "Swipe distance in pixels"},
		&cli.BoolFlag{Name: "into-view", Usage: "Scroll until the element is on screen instead of swiping"},
	},
	Action: runSwipe,
}

var screenshotCommand = &cli.Command{
	Name:  "screenshot",
	Usage: "Save a PNG screenshot of the screen or of one element",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "screenshot.png", Usage: "Output file"},
		&cli.StringFlag{Name: "locator", Aliases: []string{"l"}, Usage: "Capture only this element"},
	},
	Action: runScreenshot,
}

var treeCommand = &cli.Command{
	Name:  "tree",
	Usage: "Print the UI tree of the connected device",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "format", Value: "yaml", Usage: "yaml or json"},
	},
	Action: runTree,
}

func parseLocator(c *cli.Context, name string) (locator.Locator, error) {
	loc, err := locator.Parse(c.String(name))
	if err != nil {
		return locator.Locator{}, core.ConfigError(fmt.Sprintf("--%s: %v", name, err))
	}
	return loc, nil
}

func runFind(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		s := t.session
		if c.Bool("all") {
			if c.Bool("wait") {
				if _, err := s.WaitForElement(ctx, loc); err != nil {
					return err
				}
			}
			els, err := s.FindElements(ctx, loc)
			if err != nil {
				return err
			}
			return writeYAML(w, els)
		}
		var (
			el  *core.Element
			err error
		)
		if c.Bool("wait") {
			el, err = s.WaitForElement(ctx, loc)
		} else {
			el, err = s.FindElement(ctx, loc)
		}
		if err != nil {
			return err
		}
		return writeYAML(w, el)
	})
}

func runExists(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		ok, err := t.session.ElementExists(ctx, loc)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, ok)
		if !ok {
			return core.ElementNotFound(loc.Describe())
		}
		return nil
	})
}

func runWait(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	until := strings.ToLower(c.String("until"))
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		s := t.session
		var (
			el  *core.Element
			err error
		)
		switch {
		case c.String("script") != "":
			el, err = s.WaitForScript(ctx, loc, c.String("script"))
		case c.String("text") != "":
			el, err = s.WaitForText(ctx, loc, s.Expand(ctx, c.String("text")))
		case until == "present":
			el, err = s.WaitForElement(ctx, loc)
		case until == "visible":
			el, err = s.WaitForVisible(ctx, loc)
		case until == "clickable":
			el, err = s.WaitForClickable(ctx, loc)
		case until == "gone":
			if err := s.WaitForNotPresent(ctx, loc); err != nil {
				return err
			}
			fmt.Fprintln(w, "gone")
			return nil
		default:
			return core.ConfigError(fmt.Sprintf("unknown --until %q", until))
		}
		if err != nil {
			return err
		}
		return writeYAML(w, el)
	})
}

func runTap(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		el, err := t.session.WaitForClickable(ctx, loc)
		if err != nil {
			return err
		}
		switch {
		case c.IsSet("long"):
			err = t.session.LongPress(ctx, el, c.Duration("long"))
		case c.Bool("double"):
			err = t.session.DoubleClick(ctx, el)
		default:
			err = t.session.Click(ctx, el)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "tapped %s\n", el)
		return nil
	})
}

func runType(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		el, err := t.session.WaitForClickable(ctx, loc)
		if err != nil {
			return err
		}
		if c.Bool("clear") {
			if err := t.session.Clear(ctx, el); err != nil {
				return err
			}
		}
		if err := t.session.TypeText(ctx, el, t.session.Expand(ctx, c.String("text"))); err != nil {
			return err
		}
		fmt.Fprintf(w, "typed into %s\n", el)
		return nil
	})
}

func runSwipe(c *cli.Context) error {
	loc, err := parseLocator(c, "locator")
	if err != nil {
		return err
	}
	dir, err := core.ParseSwipeDirection(c.String("direction"))
	if err != nil {
		return core.ConfigError(err.Error())
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		el, err := t.session.WaitForElement(ctx, loc)
		if err != nil {
			return err
		}
		if c.Bool("into-view") {
			if err := t.session.ScrollIntoView(ctx, el); err != nil {
				return err
			}
			fmt.Fprintf(w, "scrolled to %s\n", el)
			return nil
		}
		if err := t.session.Swipe(ctx, el, dir, c.Float64("distance")); err != nil {
			return err
		}
		fmt.Fprintf(w, "swiped %s from %s\n", dir, el)
		return nil
	})
}

func runScreenshot(c *cli.Context) error {
	var (
		loc    locator.Locator
		hasLoc = c.String("locator") != ""
	)
	if hasLoc {
		var err error
		if loc, err = parseLocator(c, "locator"); err != nil {
			return err
		}
	}
	multi := len(c.StringSlice("device")) > 1
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		var (
			data []byte
			err  error
		)
		if hasLoc {
			var el *core.Element
			if el, err = t.session.WaitForElement(ctx, loc); err != nil {
				return err
			}
			data, err = t.session.ElementScreenshot(ctx, el)
		} else {
			data, err = t.session.Screenshot(ctx)
		}
		if err != nil {
			return err
		}
		path := c.String("output")
		if multi {
			path = suffixPath(path, t.label)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil { //#nosec G306 -- screenshots are not secret
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(w, "saved %s (%d bytes)\n", path, len(data))
		return nil
	})
}

// suffixPath inserts label before the extension: shot.png -> shot-emulator-5554.png.
func suffixPath(path, label string) string {
	ext := filepath.Ext(path)
	clean := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(label)
	return strings.TrimSuffix(path, ext) + "-" + clean + ext
}

func runTree(c *cli.Context) error {
	format := strings.ToLower(c.String("format"))
	if format != "yaml" && format != "json" {
		return core.ConfigError(fmt.Sprintf("unknown --format %q", format))
	}
	return onTargets(c, func(ctx context.Context, t target, w io.Writer) error {
		src, ok := t.session.Platform().(platform.TreeSource)
		if !ok {
			return core.PlatformNotSupported("tree dump on " + t.session.Platform().Name())
		}
		start := time.Now()
		tree, err := src.Tree(ctx)
		if err != nil {
			return err
		}
		view := newTreeView(tree)
		if format == "json" {
			return writeJSON(w, view)
		}
		fmt.Fprintf(w, "# %d nodes in %v\n", tree.Count(), time.Since(start).Round(time.Millisecond))
		return writeYAML(w, view)
	})
}
