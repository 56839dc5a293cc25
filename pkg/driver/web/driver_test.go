package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

const loginPage = `{"i":0,"tag":"html","x":0,"y":0,"w":1280,"h":800,"visible":true,"enabled":true,"attrs":{"lang":"en"},"kids":[
 {"i":1,"tag":"body","x":0,"y":0,"w":1280,"h":800,"visible":true,"enabled":true,"kids":[
  {"i":2,"tag":"form","id":"login","x":40,"y":40,"w":400,"h":200,"visible":true,"enabled":true,"attrs":{"id":"login"},"kids":[
   {"i":3,"tag":"input","id":"user","text":"alice","x":50,"y":50,"w":300,"h":30,"visible":true,"enabled":true,"attrs":{"id":"user","name":"username"}},
   {"i":4,"tag":"button","cls":"btn primary","text":"Sign in","x":50,"y":100,"w":120,"h":40,"visible":true,"enabled":true,"attrs":{"class":"btn primary","type":"submit"}}
  ]},
  {"i":5,"tag":"a","text":"Help","label":"Open help","x":500,"y":20,"w":60,"h":20,"visible":true,"enabled":true,"attrs":{"href":"/help"}},
  {"i":6,"tag":"div","cls":"toast","text":"Saved","x":0,"y":0,"w":0,"h":0,"visible":false,"enabled":true},
  {"i":7,"tag":"button","text":"Delete","x":50,"y":300,"w":120,"h":40,"visible":true,"enabled":false}
 ]}
]}`

type fakeBrowser struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	page     string
	queries  map[string]string
	events   []string
	calls    []string
	detached bool
}

func (f *fakeBrowser) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeBrowser) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeBrowser) Eval(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case expr == snapshotJS:
		*out.(*string) = f.page
		return nil
	case strings.Contains(expr, "XPathResult"):
		for q, res := range f.queries {
			if strings.HasSuffix(expr, q+")") {
				*out.(*string) = res
				return nil
			}
		}
		return errors.New("SyntaxError: not a valid selector")
	default:
		f.calls = append(f.calls, expr)
		*out.(*bool) = !f.detached
		return nil
	}
}

func (f *fakeBrowser) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeBrowser) Click(_ context.Context, p core.Point, count int) error {
	return f.record("click %d,%d x%d", p.X, p.Y, count)
}

func (f *fakeBrowser) Press(_ context.Context, p core.Point, hold time.Duration) error {
	return f.record("press %d,%d %v", p.X, p.Y, hold)
}

func (f *fakeBrowser) Drag(_ context.Context, from, to core.Point) error {
	return f.record("drag %d,%d %d,%d", from.X, from.Y, to.X, to.Y)
}

func (f *fakeBrowser) Keys(_ context.Context, text string) error {
	return f.record("keys %s", text)
}

func (f *fakeBrowser) Screenshot(_ context.Context, clip core.Bounds) ([]byte, error) {
	return []byte("png " + clip.String()), nil
}

func newDriver(t *testing.T) (*Driver, *fakeBrowser) {
	t.Helper()
	b := &fakeBrowser{
		page: loginPage,
		queries: map[string]string{
			`"css", "button.primary"`: `[4]`,
			`"css", "form input"`:     `[3]`,
			`"xpath", "//a"`:          `[5]`,
			`"css", "table"`:          `[]`,
		},
	}
	d := NewWithBrowser(b)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return d, b
}

func TestParseDOM(t *testing.T) {
	tree, err := ParseDOM(loginPage)
	if err != nil {
		t.Fatalf("ParseDOM() error = %v", err)
	}
	if got := tree.Count(); got != 8 {
		t.Errorf("Count() = %d, want 8", got)
	}
	btn := tree.Kids[0].Kids[0].Kids[1].Projection
	if btn.ID != "node-4" || btn.Tag != "button" || btn.Class != "btn primary" || btn.Text != "Sign in" {
		t.Errorf("button = %+v", btn)
	}
	if _, err := ParseDOM(""); err == nil {
		t.Error("ParseDOM(\"\") expected error")
	}
	if _, err := ParseDOM("{"); err == nil {
		t.Error("ParseDOM(invalid) expected error")
	}
}

func TestNodeIndex(t *testing.T) {
	tests := []struct {
		id   string
		want int
		ok   bool
	}{
		{"node-0", 0, true},
		{"node-17", 17, true},
		{"node-x", 0, false},
		{"node--1", 0, false},
		{"button@/0/1", 0, false},
	}
	for _, tt := range tests {
		got, ok := nodeIndex(tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("nodeIndex(%q) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQueryScriptQuotes(t *testing.T) {
	got := queryScript("css", `a[title="x"]`)
	if !strings.HasSuffix(got, `("css", "a[title=\"x\"]")`) {
		t.Errorf("queryScript() = %q", got[len(got)-40:])
	}
}

func TestFindElementKinds(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	tests := []struct {
		name string
		loc  locator.Locator
		want string
	}{
		{"id", locator.ID("user"), "node-3"},
		{"text", locator.Text("Sign in"), "node-4"},
		{"tag", locator.TagName("BUTTON"), "node-4"},
		{"class", locator.ClassName("btn primary"), "node-4"},
		{"aria label", locator.AccessibilityID("Open help"), "node-5"},
		{"attribute", locator.Attribute("name", "username"), "node-3"},
		{"css", locator.CSS("button.primary"), "node-4"},
		{"xpath", locator.XPath("//a"), "node-5"},
		{"css and text", locator.And(locator.CSS("form input"), locator.Text("alice")), "node-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := d.FindElement(ctx, tt.loc)
			if err != nil {
				t.Fatalf("FindElement(%s) error = %v", tt.loc, err)
			}
			if el.ID() != tt.want {
				t.Errorf("FindElement(%s) = %s, want %s", tt.loc, el.ID(), tt.want)
			}
		})
	}

	if _, err := d.FindElement(ctx, locator.CSS("table")); !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("FindElement(no match) error = %v, want not found", err)
	}
	if _, err := d.FindElement(ctx, locator.CSS("[[")); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("FindElement(bad selector) error = %v, want config error", err)
	}
}

func TestInteractions(t *testing.T) {
	d, b := newDriver(t)
	ctx := context.Background()

	btn, err := d.FindElement(ctx, locator.Text("Sign in"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Click(ctx, btn); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if err := d.DoubleClick(ctx, btn); err != nil {
		t.Fatal(err)
	}
	if err := d.LongPress(ctx, btn, 500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := d.Swipe(ctx, btn, core.SwipeDown, 100); err != nil {
		t.Fatal(err)
	}

	user, err := d.FindElement(ctx, locator.ID("user"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Clear(ctx, user); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := d.TypeText(ctx, user, "bob"); err != nil {
		t.Fatalf("TypeText() error = %v", err)
	}
	if err := d.ScrollIntoView(ctx, user); err != nil {
		t.Fatalf("ScrollIntoView() error = %v", err)
	}

	want := "click 110,120 x1|click 110,120 x2|press 110,120 500ms|drag 110,120 110,220|keys bob"
	if got := strings.Join(b.events, "|"); got != want {
		t.Errorf("events = %q\nwant     %q", got, want)
	}
	if len(b.calls) != 3 {
		t.Fatalf("page calls = %d, want 3", len(b.calls))
	}
	for i, frag := range []string{`el.value = ""`, "el.focus();", "scrollIntoView"} {
		if !strings.Contains(b.calls[i], frag) || !strings.HasSuffix(b.calls[i], "})(3)") {
			t.Errorf("call %d = %q, want %q on node 3", i, b.calls[i], frag)
		}
	}
}

func TestInteractionErrors(t *testing.T) {
	d, b := newDriver(t)
	ctx := context.Background()

	del, err := d.FindElement(ctx, locator.Text("Delete"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Click(ctx, del); !errors.Is(err, core.ErrElementNotInteractable) {
		t.Errorf("Click(disabled) error = %v, want not interactable", err)
	}

	toast, err := d.FindElement(ctx, locator.ClassName("toast"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ElementScreenshot(ctx, toast); !errors.Is(err, core.ErrScreenshot) {
		t.Errorf("ElementScreenshot(hidden) error = %v, want screenshot error", err)
	}

	user, err := d.FindElement(ctx, locator.ID("user"))
	if err != nil {
		t.Fatal(err)
	}
	b.detached = true
	if err := d.ScrollIntoView(ctx, user); !errors.Is(err, core.ErrElementNotInteractable) {
		t.Errorf("ScrollIntoView(detached) error = %v, want not interactable", err)
	}
}

func TestScreenshots(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	full, err := d.Screenshot(ctx)
	if err != nil || string(full) != "png [0,0 0x0]" {
		t.Errorf("Screenshot() = %q, %v", full, err)
	}
	link, err := d.FindElement(ctx, locator.Text("Help"))
	if err != nil {
		t.Fatal(err)
	}
	shot, err := d.ElementScreenshot(ctx, link)
	if err != nil || string(shot) != "png [500,20 60x20]" {
		t.Errorf("ElementScreenshot() = %q, %v", shot, err)
	}
}

func TestLifecycle(t *testing.T) {
	b := &fakeBrowser{startErr: errors.New("chrome not found")}
	d := NewWithBrowser(b)
	ctx := context.Background()
	if err := d.Connect(ctx); !errors.Is(err, core.ErrConnection) {
		t.Errorf("Connect() error = %v, want connection error", err)
	}
	if _, err := d.FindElement(ctx, locator.ID("user")); !errors.Is(err, core.ErrSession) {
		t.Errorf("FindElement() before connect error = %v, want session error", err)
	}

	d2, b2 := newDriver(t)
	if err := d2.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if !b2.stopped {
		t.Error("Disconnect() did not stop the browser")
	}
	if d2.Name() != platform.Web || d2.Capabilities().Touch {
		t.Errorf("Name/Capabilities = %s %+v", d2.Name(), d2.Capabilities())
	}
}
